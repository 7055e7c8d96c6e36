package shield

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/oarkflow/shield/utils"
)

// Config is the declarative form of an engine: the resource hierarchy plus
// tuning knobs. It round-trips through YAML and JSON.
type Config struct {
	Version   uint16            `json:"version" yaml:"version"`
	Resources []*ResourceConfig `json:"resources" yaml:"resources"`
	Engine    EngineConfig      `json:"engine" yaml:"engine"`
}

// ResourceConfig describes one resource to seed. Parent references are by
// id and must point at another entry in the same config.
type ResourceConfig struct {
	ID           string `json:"id" yaml:"id"`
	Name         string `json:"name,omitempty" yaml:"name,omitempty"`
	URI          string `json:"uri" yaml:"uri"`
	ResourceType string `json:"resource_type,omitempty" yaml:"resource_type,omitempty"`
	Version      string `json:"version,omitempty" yaml:"version,omitempty"`
	ParentID     string `json:"parent_id,omitempty" yaml:"parent_id,omitempty"`
	Inactive     bool   `json:"inactive,omitempty" yaml:"inactive,omitempty"`
}

// EngineConfig carries the tuning knobs applied by WithConfig.
// Durations are milliseconds.
type EngineConfig struct {
	ResolveCacheTTL     int64 `json:"resolve_cache_ttl_ms" yaml:"resolve_cache_ttl_ms"`
	MaxDepth            int   `json:"max_depth" yaml:"max_depth"`
	AuditBatchSize      int   `json:"audit_batch_size" yaml:"audit_batch_size"`
	AuditFlushInterval  int64 `json:"audit_flush_interval_ms" yaml:"audit_flush_interval_ms"`
	RistrettoNumCounter int64 `json:"ristretto_num_counter" yaml:"ristretto_num_counter"`
	RistrettoMaxCost    int64 `json:"ristretto_max_cost" yaml:"ristretto_max_cost"`
	RistrettoBuffer     int64 `json:"ristretto_buffer" yaml:"ristretto_buffer"`
}

// ConfigLoader loads configuration from the supported formats.
type ConfigLoader struct{}

func NewConfigLoader() *ConfigLoader {
	return &ConfigLoader{}
}

func (l *ConfigLoader) LoadYAML(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *ConfigLoader) LoadJSON(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile picks the format from the file extension (.yaml/.yml or .json).
func (l *ConfigLoader) LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return l.LoadYAML(data)
	case ".json":
		return l.LoadJSON(data)
	default:
		return nil, fmt.Errorf("unsupported config format: %s", path)
	}
}

func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// Validate checks the config the same way the engine would at apply time:
// every pattern must compile, URIs must be unique case-insensitively,
// parents must exist within the config and must not form cycles.
func (c *Config) Validate() []error {
	errs := make([]error, 0)
	byID := make(map[string]*ResourceConfig, len(c.Resources))
	seenURI := make(map[string]string, len(c.Resources))

	for i, rc := range c.Resources {
		if rc.ID == "" {
			errs = append(errs, fmt.Errorf("resource %d: missing id", i))
			continue
		}
		if _, dup := byID[rc.ID]; dup {
			errs = append(errs, fmt.Errorf("resource %s: duplicate id", rc.ID))
			continue
		}
		byID[rc.ID] = rc

		if _, err := CompilePattern(rc.URI); err != nil {
			errs = append(errs, fmt.Errorf("resource %s: %w", rc.ID, err))
		}
		key := strings.ToLower(utils.NormalizeURI(rc.URI))
		if other, dup := seenURI[key]; dup {
			errs = append(errs, fmt.Errorf("resource %s: uri duplicates %s", rc.ID, other))
		} else {
			seenURI[key] = rc.ID
		}
	}

	for _, rc := range c.Resources {
		if rc.ParentID == "" {
			continue
		}
		if _, ok := byID[rc.ParentID]; !ok {
			errs = append(errs, fmt.Errorf("resource %s: unknown parent %s", rc.ID, rc.ParentID))
			continue
		}
		visited := map[string]struct{}{}
		cur := rc.ParentID
		for cur != "" {
			if cur == rc.ID {
				errs = append(errs, fmt.Errorf("resource %s: parent chain forms a cycle", rc.ID))
				break
			}
			if _, seen := visited[cur]; seen {
				break
			}
			visited[cur] = struct{}{}
			p, ok := byID[cur]
			if !ok {
				break
			}
			cur = p.ParentID
		}
	}
	return errs
}

// ApplyConfig seeds the engine's store from the config. Parents are
// created before children regardless of declaration order. Validation
// failures abort before any resource is written.
func (e *Engine) ApplyConfig(ctx context.Context, cfg *Config) error {
	if errs := cfg.Validate(); len(errs) > 0 {
		return fmt.Errorf("invalid config: %v", errs[0])
	}

	byID := make(map[string]*ResourceConfig, len(cfg.Resources))
	for _, rc := range cfg.Resources {
		byID[rc.ID] = rc
	}
	created := make(map[string]bool, len(cfg.Resources))

	var create func(rc *ResourceConfig) error
	create = func(rc *ResourceConfig) error {
		if created[rc.ID] {
			return nil
		}
		if rc.ParentID != "" {
			if parent, ok := byID[rc.ParentID]; ok && !created[rc.ParentID] {
				if err := create(parent); err != nil {
					return err
				}
			}
		}
		active := !rc.Inactive
		_, err := e.CreateResource(ctx, CreateResourceRequest{
			ID:           rc.ID,
			Name:         rc.Name,
			URI:          rc.URI,
			ResourceType: rc.ResourceType,
			Version:      rc.Version,
			ParentID:     rc.ParentID,
			IsActive:     &active,
		})
		if err != nil {
			return fmt.Errorf("apply resource %s: %w", rc.ID, err)
		}
		created[rc.ID] = true
		return nil
	}

	for _, rc := range cfg.Resources {
		if err := create(rc); err != nil {
			return err
		}
	}
	e.logger.Info("config applied", "resources", len(cfg.Resources))
	return nil
}

// ExportConfig snapshots the current hierarchy back into a Config.
func (e *Engine) ExportConfig(ctx context.Context) (*Config, error) {
	resources, err := e.store.ListResources(ctx)
	if err != nil {
		return nil, err
	}
	cfg := &Config{
		Version:   1,
		Resources: make([]*ResourceConfig, 0, len(resources)),
		Engine: EngineConfig{
			ResolveCacheTTL:     e.resolveTTL.Milliseconds(),
			MaxDepth:            e.maxDepth,
			AuditBatchSize:      e.auditBatchSize,
			AuditFlushInterval:  e.auditFlushInterval.Milliseconds(),
			RistrettoNumCounter: e.ristrettoNumCounter,
			RistrettoMaxCost:    e.ristrettoMaxCost,
			RistrettoBuffer:     e.ristrettoBuffer,
		},
	}
	for _, r := range resources {
		cfg.Resources = append(cfg.Resources, &ResourceConfig{
			ID:           r.ID,
			Name:         r.Name,
			URI:          r.URI,
			ResourceType: r.ResourceType,
			Version:      r.Version,
			ParentID:     r.ParentID,
			Inactive:     !r.IsActive,
		})
	}
	return cfg, nil
}

package shield

import (
	"context"
	"strings"
	"testing"
)

const sampleYAML = `
version: 1
resources:
  - id: api
    uri: /api
  - id: users
    uri: /api/users
    parent_id: api
    resource_type: endpoint
  - id: user-detail
    uri: /api/users/{id}
    parent_id: users
    resource_type: endpoint
  - id: legacy
    uri: /api/legacy
    parent_id: api
    inactive: true
engine:
  resolve_cache_ttl_ms: 500
  max_depth: 5
  audit_batch_size: 32
  audit_flush_interval_ms: 10
`

func TestConfigLoadYAML(t *testing.T) {
	cfg, err := NewConfigLoader().LoadYAML([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("load yaml: %v", err)
	}
	if len(cfg.Resources) != 4 {
		t.Fatalf("expected 4 resources, got %d", len(cfg.Resources))
	}
	if cfg.Resources[2].ParentID != "users" {
		t.Fatalf("expected parent_id preserved, got %q", cfg.Resources[2].ParentID)
	}
	if !cfg.Resources[3].Inactive {
		t.Fatalf("expected legacy marked inactive")
	}
	if cfg.Engine.ResolveCacheTTL != 500 || cfg.Engine.MaxDepth != 5 {
		t.Fatalf("engine knobs not loaded: %+v", cfg.Engine)
	}
}

func TestConfigRoundTrip(t *testing.T) {
	loader := NewConfigLoader()
	cfg, err := loader.LoadYAML([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("load yaml: %v", err)
	}

	asJSON, err := cfg.ToJSON()
	if err != nil {
		t.Fatalf("to json: %v", err)
	}
	back, err := loader.LoadJSON(asJSON)
	if err != nil {
		t.Fatalf("load json: %v", err)
	}
	if len(back.Resources) != len(cfg.Resources) {
		t.Fatalf("round trip lost resources: %d vs %d", len(back.Resources), len(cfg.Resources))
	}
	for i := range cfg.Resources {
		if back.Resources[i].URI != cfg.Resources[i].URI || back.Resources[i].ParentID != cfg.Resources[i].ParentID {
			t.Fatalf("resource %d changed in round trip", i)
		}
	}
	if back.Engine != cfg.Engine {
		t.Fatalf("engine knobs changed in round trip: %+v vs %+v", back.Engine, cfg.Engine)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		problem string
	}{
		{
			name: "valid",
			cfg: NewConfigBuilder().
				AddResource("a", "/api", "").
				AddResource("b", "/api/users", "a").
				Build(),
		},
		{
			name:    "missing id",
			cfg:     &Config{Resources: []*ResourceConfig{{URI: "/api"}}},
			problem: "missing id",
		},
		{
			name: "duplicate id",
			cfg: NewConfigBuilder().
				AddResource("a", "/api", "").
				AddResource("a", "/other", "").
				Build(),
			problem: "duplicate id",
		},
		{
			name: "invalid pattern",
			cfg: NewConfigBuilder().
				AddResource("a", "/api/{}/x", "").
				Build(),
			problem: "a:",
		},
		{
			name: "duplicate uri case insensitive",
			cfg: NewConfigBuilder().
				AddResource("a", "/api/users", "").
				AddResource("b", "/API/Users/", "").
				Build(),
			problem: "duplicates",
		},
		{
			name: "unknown parent",
			cfg: NewConfigBuilder().
				AddResource("a", "/api", "ghost").
				Build(),
			problem: "unknown parent",
		},
		{
			name: "parent cycle",
			cfg: NewConfigBuilder().
				AddResource("a", "/api", "b").
				AddResource("b", "/api/users", "a").
				Build(),
			problem: "cycle",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := tt.cfg.Validate()
			if tt.problem == "" {
				if len(errs) != 0 {
					t.Fatalf("expected valid, got %v", errs)
				}
				return
			}
			if len(errs) == 0 {
				t.Fatalf("expected a validation error containing %q", tt.problem)
			}
			found := false
			for _, err := range errs {
				if strings.Contains(err.Error(), tt.problem) {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected an error containing %q, got %v", tt.problem, errs)
			}
		})
	}
}

func TestApplyConfigOrdersParentsFirst(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)

	// children declared before their parents
	cfg := NewConfigBuilder().
		AddResource("user-detail", "/api/users/{id}", "users").
		AddResource("users", "/api/users", "api").
		AddResource("api", "/api", "").
		Build()

	if err := eng.ApplyConfig(ctx, cfg); err != nil {
		t.Fatalf("apply: %v", err)
	}

	anc, err := eng.AncestorsOf(ctx, "user-detail")
	if err != nil {
		t.Fatalf("ancestors: %v", err)
	}
	if len(anc) != 2 || anc[0].ID != "users" || anc[1].ID != "api" {
		t.Fatalf("expected chain users->api, got %+v", anc)
	}

	res, _ := eng.Resolve(ctx, "/api/users/7")
	if res == nil || res.Resource.ID != "user-detail" {
		t.Fatalf("expected applied hierarchy to resolve, got %+v", res)
	}
}

func TestApplyConfigRejectsInvalidBeforeWriting(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)

	cfg := NewConfigBuilder().
		AddResource("good", "/api/users", "").
		AddResource("bad", "/api/{", "").
		Build()

	if err := eng.ApplyConfig(ctx, cfg); err == nil {
		t.Fatalf("expected apply to fail on invalid pattern")
	}
	if _, total, _ := eng.ListResources(ctx, Filter{}, 0, 0); total != 0 {
		t.Fatalf("failed apply must not write anything, got %d resources", total)
	}
}

func TestExportConfigRoundTrip(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)
	mustCreate(t, eng, CreateResourceRequest{ID: "api", URI: "/api"})
	mustCreate(t, eng, CreateResourceRequest{ID: "users", URI: "/api/users", ParentID: "api"})
	inactive := false
	mustCreate(t, eng, CreateResourceRequest{ID: "legacy", URI: "/api/legacy", ParentID: "api", IsActive: &inactive})

	cfg, err := eng.ExportConfig(ctx)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Fatalf("exported config must validate, got %v", errs)
	}
	if len(cfg.Resources) != 3 {
		t.Fatalf("expected 3 exported resources, got %d", len(cfg.Resources))
	}

	fresh := newTestEngine(t)
	if err := fresh.ApplyConfig(ctx, cfg); err != nil {
		t.Fatalf("reapply: %v", err)
	}
	r, err := fresh.GetResource(ctx, "legacy")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if r.IsActive {
		t.Fatalf("inactive flag must survive export and reapply")
	}
}

func TestResourceBuilder(t *testing.T) {
	req := NewResourceBuilder().
		ID("users").
		Name("user collection").
		URI("/api/users").
		Type("endpoint").
		Version("v2").
		Parent("api").
		Inactive().
		Build()

	if req.ID != "users" || req.URI != "/api/users" || req.ParentID != "api" {
		t.Fatalf("builder dropped fields: %+v", req)
	}
	if req.IsActive == nil || *req.IsActive {
		t.Fatalf("expected inactive request, got %+v", req.IsActive)
	}
}

func TestFilterBuilder(t *testing.T) {
	f := NewFilterBuilder().
		Type("endpoint").
		Active(true).
		URIContains("users").
		Version("v2").
		Build()

	if f.ResourceType != "endpoint" || f.URIContains != "users" || f.Version != "v2" {
		t.Fatalf("builder dropped fields: %+v", f)
	}
	if f.IsActive == nil || !*f.IsActive {
		t.Fatalf("expected active filter")
	}
}

func TestConfigBuilderEngineSettings(t *testing.T) {
	cfg := NewConfigBuilder().
		Version(3).
		EngineSettings(func(ec *EngineConfig) {
			ec.ResolveCacheTTL = 250
			ec.MaxDepth = 4
		}).
		Build()

	if cfg.Version != 3 {
		t.Fatalf("expected version 3, got %d", cfg.Version)
	}
	if cfg.Engine.ResolveCacheTTL != 250 || cfg.Engine.MaxDepth != 4 {
		t.Fatalf("engine settings not applied: %+v", cfg.Engine)
	}
}

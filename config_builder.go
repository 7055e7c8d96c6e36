package shield

// ConfigBuilder provides a fluent API for building configurations.
type ConfigBuilder struct {
	cfg *Config
}

func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{
		cfg: &Config{
			Version:   1,
			Resources: []*ResourceConfig{},
			Engine: EngineConfig{
				ResolveCacheTTL:    1000,
				MaxDepth:           10,
				AuditBatchSize:     64,
				AuditFlushInterval: 25,
			},
		},
	}
}

func (b *ConfigBuilder) Version(v uint16) *ConfigBuilder {
	b.cfg.Version = v
	return b
}

// AddResource appends an active resource under an optional parent.
func (b *ConfigBuilder) AddResource(id, uri, parent string) *ConfigBuilder {
	b.cfg.Resources = append(b.cfg.Resources, &ResourceConfig{ID: id, URI: uri, ParentID: parent})
	return b
}

// AddResourceConfig appends a fully specified resource entry.
func (b *ConfigBuilder) AddResourceConfig(rc *ResourceConfig) *ConfigBuilder {
	b.cfg.Resources = append(b.cfg.Resources, rc)
	return b
}

func (b *ConfigBuilder) EngineSettings(fn func(*EngineConfig)) *ConfigBuilder {
	fn(&b.cfg.Engine)
	return b
}

func (b *ConfigBuilder) Build() *Config {
	return b.cfg
}

func (b *ConfigBuilder) ToYAML() ([]byte, error) {
	return b.cfg.ToYAML()
}

func (b *ConfigBuilder) ToJSON() ([]byte, error) {
	return b.cfg.ToJSON()
}

package shield

// Builders provide a fluent API for creating resources and filters.

// ResourceBuilder builds a CreateResourceRequest.
type ResourceBuilder struct {
	req CreateResourceRequest
}

func NewResourceBuilder() *ResourceBuilder {
	return &ResourceBuilder{}
}

func (b *ResourceBuilder) ID(id string) *ResourceBuilder     { b.req.ID = id; return b }
func (b *ResourceBuilder) Name(name string) *ResourceBuilder { b.req.Name = name; return b }
func (b *ResourceBuilder) URI(uri string) *ResourceBuilder   { b.req.URI = uri; return b }
func (b *ResourceBuilder) Type(t string) *ResourceBuilder    { b.req.ResourceType = t; return b }
func (b *ResourceBuilder) Version(v string) *ResourceBuilder { b.req.Version = v; return b }
func (b *ResourceBuilder) Parent(id string) *ResourceBuilder { b.req.ParentID = id; return b }
func (b *ResourceBuilder) Inactive() *ResourceBuilder {
	inactive := false
	b.req.IsActive = &inactive
	return b
}
func (b *ResourceBuilder) Build() CreateResourceRequest { return b.req }

// FilterBuilder builds a listing Filter.
type FilterBuilder struct {
	f Filter
}

func NewFilterBuilder() *FilterBuilder {
	return &FilterBuilder{}
}

func (b *FilterBuilder) Type(t string) *FilterBuilder { b.f.ResourceType = t; return b }
func (b *FilterBuilder) Active(v bool) *FilterBuilder { b.f.IsActive = &v; return b }
func (b *FilterBuilder) URIContains(s string) *FilterBuilder {
	b.f.URIContains = s
	return b
}
func (b *FilterBuilder) Version(v string) *FilterBuilder { b.f.Version = v; return b }
func (b *FilterBuilder) Build() Filter                   { return b.f }

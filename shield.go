package shield

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// ============================================================================
// DOMAIN OBJECTS
// ============================================================================

// Resource is a configured URI pattern representing a protected endpoint
// family. Resources form a parent/child hierarchy through ParentID.
type Resource struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	URI          string    `json:"uri"`
	ResourceType string    `json:"resource_type,omitempty"`
	Version      string    `json:"version,omitempty"`
	ParentID     string    `json:"parent_id,omitempty"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Clone returns a shallow copy, used to keep store snapshots immutable.
func (r *Resource) Clone() *Resource {
	if r == nil {
		return nil
	}
	dup := *r
	return &dup
}

// MatchResult is the verdict of resolving a URI against the hierarchy.
type MatchResult struct {
	Resource   *Resource         `json:"resource"`
	Parameters map[string]string `json:"parameters"`
	Confidence float64           `json:"confidence"`
}

// Clone deep-copies the result so cached verdicts stay isolated from
// caller mutation.
func (m *MatchResult) Clone() *MatchResult {
	if m == nil {
		return nil
	}
	dup := *m
	dup.Resource = m.Resource.Clone()
	if m.Parameters != nil {
		params := make(map[string]string, len(m.Parameters))
		for k, v := range m.Parameters {
			params[k] = v
		}
		dup.Parameters = params
	}
	return &dup
}

// ProtectionStatus aggregates every resource governing a URI.
type ProtectionStatus struct {
	URI       string          `json:"uri"`
	Protected bool            `json:"is_protected"`
	Level     ProtectionLevel `json:"level"`
	Matches   []*Resource     `json:"matching_resources"`
}

// ValidationResult reports pattern syntax analysis.
type ValidationResult struct {
	Pattern string   `json:"pattern"`
	IsValid bool     `json:"is_valid"`
	Errors  []string `json:"errors,omitempty"`
}

// PatternTestResult is one row of a pattern dry-run against a test URI.
type PatternTestResult struct {
	URI        string            `json:"uri"`
	IsMatch    bool              `json:"is_match"`
	Parameters map[string]string `json:"parameters,omitempty"`
	Confidence float64           `json:"confidence"`
}

// ============================================================================
// ERRORS
// ============================================================================

// ErrNotFound marks lookups for unknown resource ids. A URI that resolves
// to nothing is not an error and never produces ErrNotFound.
var ErrNotFound = errors.New("resource not found")

// PatternError reports malformed pattern syntax. It is always surfaced to
// the caller: an unusable pattern must not be read as "no match", which
// would wrongly imply an unprotected endpoint.
type PatternError struct {
	Pattern  string
	Problems []string
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("invalid pattern %q: %s", e.Pattern, strings.Join(e.Problems, "; "))
}

// ConflictError blocks a mutation that would corrupt the hierarchy:
// duplicate URIs at creation, deleting a resource that still has children,
// or reparenting a resource under its own descendant.
type ConflictError struct {
	Reason         string
	ConflictingIDs []string
}

func (e *ConflictError) Error() string {
	if len(e.ConflictingIDs) == 0 {
		return e.Reason
	}
	return fmt.Sprintf("%s (conflicting: %s)", e.Reason, strings.Join(e.ConflictingIDs, ", "))
}

// ============================================================================
// SPECIFICATIONS (listing filters)
// ============================================================================

// Specification is a composable, side-effect-free predicate over resources.
// Specifications are safe to evaluate repeatedly and to combine further
// with pagination slicing.
type Specification interface {
	Evaluate(r *Resource) bool
	String() string
}

// AndSpec is logical AND of two specifications.
type AndSpec struct {
	Left  Specification
	Right Specification
}

func (s *AndSpec) Evaluate(r *Resource) bool { return s.Left.Evaluate(r) && s.Right.Evaluate(r) }
func (s *AndSpec) String() string {
	return fmt.Sprintf("(%s AND %s)", s.Left.String(), s.Right.String())
}

// TypeSpec matches on exact resource type.
type TypeSpec struct{ Value string }

func (s *TypeSpec) Evaluate(r *Resource) bool { return r.ResourceType == s.Value }
func (s *TypeSpec) String() string            { return fmt.Sprintf("type == %q", s.Value) }

// ActiveSpec matches on the soft-enable flag.
type ActiveSpec struct{ Value bool }

func (s *ActiveSpec) Evaluate(r *Resource) bool { return r.IsActive == s.Value }
func (s *ActiveSpec) String() string            { return fmt.Sprintf("active == %v", s.Value) }

// URIContainsSpec matches URIs containing a substring, case-insensitively.
type URIContainsSpec struct{ Value string }

func (s *URIContainsSpec) Evaluate(r *Resource) bool {
	return strings.Contains(strings.ToLower(r.URI), strings.ToLower(s.Value))
}
func (s *URIContainsSpec) String() string { return fmt.Sprintf("uri CONTAINS %q", s.Value) }

// VersionSpec matches on exact version.
type VersionSpec struct{ Value string }

func (s *VersionSpec) Evaluate(r *Resource) bool { return r.Version == s.Value }
func (s *VersionSpec) String() string            { return fmt.Sprintf("version == %q", s.Value) }

// TrueSpec matches everything (the empty filter).
type TrueSpec struct{}

func (s *TrueSpec) Evaluate(*Resource) bool { return true }
func (s *TrueSpec) String() string          { return "true" }

// Filter carries the optional listing clauses. Nil / empty fields are
// omitted from the built specification rather than evaluated as
// match-everything placeholders.
type Filter struct {
	ResourceType string `json:"resource_type,omitempty"`
	IsActive     *bool  `json:"is_active,omitempty"`
	URIContains  string `json:"uri_contains,omitempty"`
	Version      string `json:"version,omitempty"`
}

// BuildSpecification composes the supplied clauses into a single AND
// predicate. An empty filter yields TrueSpec.
func BuildSpecification(f Filter) Specification {
	var spec Specification
	add := func(s Specification) {
		if spec == nil {
			spec = s
			return
		}
		spec = &AndSpec{Left: spec, Right: s}
	}
	if f.ResourceType != "" {
		add(&TypeSpec{Value: f.ResourceType})
	}
	if f.IsActive != nil {
		add(&ActiveSpec{Value: *f.IsActive})
	}
	if f.URIContains != "" {
		add(&URIContainsSpec{Value: f.URIContains})
	}
	if f.Version != "" {
		add(&VersionSpec{Value: f.Version})
	}
	if spec == nil {
		return &TrueSpec{}
	}
	return spec
}

// ============================================================================
// STORAGE INTERFACES
// ============================================================================

// ResourceStore manages resource persistence. Implementations must return
// resources from ListResources in creation order: the match engine breaks
// specificity ties by first-registered-wins.
type ResourceStore interface {
	CreateResource(ctx context.Context, r *Resource) error
	UpdateResource(ctx context.Context, r *Resource) error
	DeleteResource(ctx context.Context, id string) error
	GetResource(ctx context.Context, id string) (*Resource, error)
	ListResources(ctx context.Context) ([]*Resource, error)
	GetChildren(ctx context.Context, id string) ([]*Resource, error)
}

// AuditStore manages the administration / resolution audit trail.
type AuditStore interface {
	LogEvent(ctx context.Context, entry *AuditEntry) error
	GetAuditLog(ctx context.Context, filter AuditFilter) ([]*AuditEntry, error)
}

// AuditEntry records one engine operation.
type AuditEntry struct {
	ID         string         `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	Operation  string         `json:"operation"`
	URI        string         `json:"uri,omitempty"`
	ResourceID string         `json:"resource_id,omitempty"`
	Outcome    string         `json:"outcome"`
	TraceID    string         `json:"trace_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// GetTraceID returns the entry trace id, falling back to metadata.
func (e *AuditEntry) GetTraceID() string {
	if e.TraceID != "" {
		return e.TraceID
	}
	if e.Metadata != nil {
		if v, ok := e.Metadata["trace_id"].(string); ok {
			return v
		}
	}
	return ""
}

// AuditFilter narrows audit log queries.
type AuditFilter struct {
	Operation  string
	ResourceID string
	StartTime  time.Time
	EndTime    time.Time
	Limit      int
}

// ============================================================================
// IN-MEMORY STORES
// ============================================================================

// MemoryResourceStore keeps resources in memory, preserving creation order.
type MemoryResourceStore struct {
	mu      sync.RWMutex
	byID    map[string]*Resource
	ordered []string
}

func NewMemoryResourceStore() *MemoryResourceStore {
	return &MemoryResourceStore{byID: make(map[string]*Resource)}
}

func (s *MemoryResourceStore) CreateResource(ctx context.Context, r *Resource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[r.ID]; exists {
		return &ConflictError{Reason: "resource id already exists", ConflictingIDs: []string{r.ID}}
	}
	s.byID[r.ID] = r.Clone()
	s.ordered = append(s.ordered, r.ID)
	return nil
}

func (s *MemoryResourceStore) UpdateResource(ctx context.Context, r *Resource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[r.ID]; !exists {
		return fmt.Errorf("update %s: %w", r.ID, ErrNotFound)
	}
	s.byID[r.ID] = r.Clone()
	return nil
}

func (s *MemoryResourceStore) DeleteResource(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[id]; !exists {
		return fmt.Errorf("delete %s: %w", id, ErrNotFound)
	}
	delete(s.byID, id)
	for i, rid := range s.ordered {
		if rid == id {
			s.ordered = append(s.ordered[:i], s.ordered[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryResourceStore) GetResource(ctx context.Context, id string) (*Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", id, ErrNotFound)
	}
	return r.Clone(), nil
}

func (s *MemoryResourceStore) ListResources(ctx context.Context) ([]*Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Resource, 0, len(s.ordered))
	for _, id := range s.ordered {
		out = append(out, s.byID[id].Clone())
	}
	return out, nil
}

func (s *MemoryResourceStore) GetChildren(ctx context.Context, id string) ([]*Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Resource, 0)
	for _, rid := range s.ordered {
		if r := s.byID[rid]; r.ParentID == id {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

// MemoryAuditStore keeps audit entries in memory for tests and demos.
type MemoryAuditStore struct {
	mu      sync.RWMutex
	entries []*AuditEntry
}

func NewMemoryAuditStore() *MemoryAuditStore {
	return &MemoryAuditStore{entries: make([]*AuditEntry, 0)}
}

func (s *MemoryAuditStore) LogEvent(ctx context.Context, entry *AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dup := *entry
	s.entries = append(s.entries, &dup)
	return nil
}

func (s *MemoryAuditStore) GetAuditLog(ctx context.Context, filter AuditFilter) ([]*AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*AuditEntry, 0)
	for _, e := range s.entries {
		if filter.Operation != "" && e.Operation != filter.Operation {
			continue
		}
		if filter.ResourceID != "" && e.ResourceID != filter.ResourceID {
			continue
		}
		if !filter.StartTime.IsZero() && e.Timestamp.Before(filter.StartTime) {
			continue
		}
		if !filter.EndTime.IsZero() && e.Timestamp.After(filter.EndTime) {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

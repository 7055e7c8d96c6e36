package shield

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/oarkflow/shield/logger"
	"github.com/oarkflow/shield/utils"
)

// ============================================================================
// RESOURCE INDEX
// ============================================================================

// compiledResource pairs a resource with its compiled pattern. Pattern is
// nil when the stored URI failed to compile; such resources are skipped by
// the match engine but still take part in hierarchy traversal.
type compiledResource struct {
	R       *Resource
	Pattern *CompiledPattern
	Seq     int
}

// resourceIndex is the read-optimized view of the hierarchy. Rebuild
// replaces the whole index under a single writer lock so readers never see
// a partially applied mutation.
type resourceIndex struct {
	mu        sync.RWMutex
	ordered   []*compiledResource
	byID      map[string]*compiledResource
	byParent  map[string][]*compiledResource
	byURIFold map[string]*compiledResource
	lastBuilt time.Time
}

func newResourceIndex() *resourceIndex {
	return &resourceIndex{
		byID:      make(map[string]*compiledResource),
		byParent:  make(map[string][]*compiledResource),
		byURIFold: make(map[string]*compiledResource),
	}
}

func (idx *resourceIndex) rebuild(resources []*Resource, compile func(string) (*CompiledPattern, error), log logger.Logger) {
	ordered := make([]*compiledResource, 0, len(resources))
	byID := make(map[string]*compiledResource, len(resources))
	byParent := make(map[string][]*compiledResource, len(resources))
	byURIFold := make(map[string]*compiledResource, len(resources))

	for i, r := range resources {
		cr := &compiledResource{R: r, Seq: i}
		cp, err := compile(r.URI)
		if err != nil {
			// unusable candidates never abort the rebuild
			log.Error("skipping resource with invalid pattern", "resource_id", r.ID, "uri", r.URI, "error", err.Error())
		} else {
			cr.Pattern = cp
		}
		ordered = append(ordered, cr)
		byID[r.ID] = cr
		byURIFold[strings.ToLower(utils.NormalizeURI(r.URI))] = cr
		if r.ParentID != "" {
			byParent[r.ParentID] = append(byParent[r.ParentID], cr)
		}
	}

	idx.mu.Lock()
	idx.ordered = ordered
	idx.byID = byID
	idx.byParent = byParent
	idx.byURIFold = byURIFold
	idx.lastBuilt = time.Now()
	idx.mu.Unlock()
}

// snapshot returns the currently committed resource set in registration order.
func (idx *resourceIndex) snapshot() []*compiledResource {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.ordered
}

func (idx *resourceIndex) get(id string) (*compiledResource, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	cr, ok := idx.byID[id]
	return cr, ok
}

func (idx *resourceIndex) byNormalizedURI(uri string) (*compiledResource, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	cr, ok := idx.byURIFold[strings.ToLower(utils.NormalizeURI(uri))]
	return cr, ok
}

func (idx *resourceIndex) children(id string) []*compiledResource {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.byParent[id]
}

// ============================================================================
// MATCH ENGINE
// ============================================================================

// findBestMatch evaluates every compatible candidate against the URI
// segments and selects the highest-specificity match. Ties go to the first
// registered resource so the outcome is deterministic.
func findBestMatch(segments []string, candidates []*compiledResource) *MatchResult {
	var (
		best       *compiledResource
		bestParams map[string]string
	)
	for _, cr := range candidates {
		if cr.Pattern == nil {
			continue
		}
		params, ok := cr.Pattern.Match(segments)
		if !ok {
			continue
		}
		if best == nil || cr.Pattern.Score() > best.Pattern.Score() {
			best = cr
			bestParams = params
		}
	}
	if best == nil {
		return nil
	}
	return &MatchResult{
		Resource:   best.R.Clone(),
		Parameters: bestParams,
		Confidence: best.Pattern.Confidence(),
	}
}

// ============================================================================
// ENGINE
// ============================================================================

// Engine exposes resolution, protection classification, pattern analysis
// and resource administration over a ResourceStore. All reads run against
// an index that is rebuilt atomically after each committed mutation.
type Engine struct {
	store      ResourceStore
	auditStore AuditStore
	index      *resourceIndex

	patternCache *ristretto.Cache // raw pattern -> *CompiledPattern
	resolveCache *ristretto.Cache // normalized uri -> *MatchResult
	resolveTTL   time.Duration

	logger      logger.Logger
	traceIDFunc logger.TraceIDFunc

	maxDepth           int
	auditBatchSize     int
	auditFlushInterval time.Duration

	ristrettoNumCounter int64
	ristrettoMaxCost    int64
	ristrettoBuffer     int64

	auditCh   chan AuditEntry
	auditQuit chan struct{}
	auditDone chan struct{}
	closed    atomic.Bool
	idSeq     atomic.Uint64
}

// EngineOption configures an Engine at construction time.
type EngineOption func(*Engine) error

// WithResolveCacheTTL sets how long resolve verdicts stay cached. Zero
// disables the resolve cache entirely.
func WithResolveCacheTTL(d time.Duration) EngineOption {
	return func(e *Engine) error {
		e.resolveTTL = d
		return nil
	}
}

// WithMaxDepth sets the default traversal bound used when callers pass a
// non-positive maxDepth to Discover.
func WithMaxDepth(depth int) EngineOption {
	return func(e *Engine) error {
		if depth < 1 {
			return fmt.Errorf("max depth must be >= 1, got %d", depth)
		}
		e.maxDepth = depth
		return nil
	}
}

// WithConfig applies the engine tuning knobs from a Config.
func WithConfig(cfg *Config) EngineOption {
	return func(e *Engine) error {
		if cfg == nil {
			return nil
		}
		ec := cfg.Engine
		if ec.ResolveCacheTTL > 0 {
			e.resolveTTL = time.Duration(ec.ResolveCacheTTL) * time.Millisecond
		}
		if ec.MaxDepth > 0 {
			e.maxDepth = ec.MaxDepth
		}
		if ec.AuditBatchSize > 0 {
			e.auditBatchSize = ec.AuditBatchSize
		}
		if ec.AuditFlushInterval > 0 {
			e.auditFlushInterval = time.Duration(ec.AuditFlushInterval) * time.Millisecond
		}
		if ec.RistrettoNumCounter > 0 {
			e.ristrettoNumCounter = ec.RistrettoNumCounter
		}
		if ec.RistrettoMaxCost > 0 {
			e.ristrettoMaxCost = ec.RistrettoMaxCost
		}
		if ec.RistrettoBuffer > 0 {
			e.ristrettoBuffer = ec.RistrettoBuffer
		}
		return nil
	}
}

// NewEngine builds an Engine over the given stores. The audit store may be
// nil, in which case no audit trail is written.
func NewEngine(store ResourceStore, audit AuditStore, opts ...EngineOption) (*Engine, error) {
	e := &Engine{
		store:               store,
		auditStore:          audit,
		index:               newResourceIndex(),
		resolveTTL:          time.Second,
		logger:              logger.NewNullLogger(),
		maxDepth:            10,
		auditBatchSize:      64,
		auditFlushInterval:  25 * time.Millisecond,
		ristrettoNumCounter: 1e4,
		ristrettoMaxCost:    1 << 20,
		ristrettoBuffer:     64,
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}

	var err error
	e.patternCache, err = ristretto.NewCache(&ristretto.Config{
		NumCounters: e.ristrettoNumCounter,
		MaxCost:     e.ristrettoMaxCost,
		BufferItems: e.ristrettoBuffer,
	})
	if err != nil {
		return nil, fmt.Errorf("pattern cache: %w", err)
	}
	e.resolveCache, err = ristretto.NewCache(&ristretto.Config{
		NumCounters: e.ristrettoNumCounter,
		MaxCost:     e.ristrettoMaxCost,
		BufferItems: e.ristrettoBuffer,
	})
	if err != nil {
		return nil, fmt.Errorf("resolve cache: %w", err)
	}

	if e.auditStore != nil {
		e.auditCh = make(chan AuditEntry, 1024)
		e.auditQuit = make(chan struct{})
		e.auditDone = make(chan struct{})
		go e.auditWorker()
	}

	if err := e.ReloadResources(context.Background()); err != nil {
		return nil, err
	}
	return e, nil
}

// Close flushes pending audit entries and stops the audit worker. The
// audit channel itself is never closed, so operations racing Close can
// still enqueue safely; their entries are either drained or dropped.
func (e *Engine) Close() error {
	if e.closed.Swap(true) {
		return nil
	}
	if e.auditCh != nil {
		close(e.auditQuit)
		<-e.auditDone
	}
	return nil
}

// ReloadResources rebuilds the index from the store and drops cached
// resolve verdicts.
func (e *Engine) ReloadResources(ctx context.Context) error {
	resources, err := e.store.ListResources(ctx)
	if err != nil {
		return fmt.Errorf("list resources: %w", err)
	}
	e.index.rebuild(resources, e.compilePattern, e.logger)
	e.resolveCache.Clear()
	return nil
}

// compilePattern compiles through the ristretto cache; compilation is pure
// so entries never need invalidation.
func (e *Engine) compilePattern(raw string) (*CompiledPattern, error) {
	if v, ok := e.patternCache.Get(raw); ok {
		if cp, ok := v.(*CompiledPattern); ok {
			return cp, nil
		}
	}
	cp, err := CompilePattern(raw)
	if err != nil {
		return nil, err
	}
	e.patternCache.Set(raw, cp, 1)
	return cp, nil
}

// ----------------------------------------------------------------------------
// Resolution surface
// ----------------------------------------------------------------------------

// Resolve finds the single best resource governing the URI. A nil result
// with nil error means no configured resource matches; that is a
// legitimate outcome, not a fault.
func (e *Engine) Resolve(ctx context.Context, uri string) (*MatchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	norm := utils.NormalizeURI(uri)
	if e.resolveTTL > 0 {
		if v, ok := e.resolveCache.Get(norm); ok {
			if res, ok := v.(*MatchResult); ok {
				// hand out a copy so the cached verdict stays pristine
				return res.Clone(), nil
			}
		}
	}

	segments := utils.SplitSegments(norm)
	result := findBestMatch(segments, e.activeCandidates())
	if e.resolveTTL > 0 {
		e.resolveCache.SetWithTTL(norm, result, 1, e.resolveTTL)
	}
	if result != nil {
		e.audit("resolve", norm, result.Resource.ID, "match", map[string]any{"confidence": result.Confidence})
	} else {
		e.audit("resolve", norm, "", "no_match", nil)
	}
	return result.Clone(), nil
}

// ProtectionStatus reports every active resource matching the URI and the
// aggregate protection level derived from their pattern shapes.
func (e *Engine) ProtectionStatus(ctx context.Context, uri string) (*ProtectionStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	norm := utils.NormalizeURI(uri)
	segments := utils.SplitSegments(norm)

	matched := make([]*compiledResource, 0, 4)
	for _, cr := range e.activeCandidates() {
		if cr.Pattern == nil {
			continue
		}
		if _, ok := cr.Pattern.Match(segments); ok {
			matched = append(matched, cr)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Pattern.Score() > matched[j].Pattern.Score()
	})

	patterns := make([]*CompiledPattern, 0, len(matched))
	resources := make([]*Resource, 0, len(matched))
	for _, m := range matched {
		patterns = append(patterns, m.Pattern)
		resources = append(resources, m.R.Clone())
	}
	level := ClassifyProtection(patterns)
	return &ProtectionStatus{
		URI:       norm,
		Protected: level != Unprotected,
		Level:     level,
		Matches:   resources,
	}, nil
}

// ValidatePattern analyzes pattern syntax without touching the hierarchy.
func (e *Engine) ValidatePattern(pattern string) *ValidationResult {
	res := &ValidationResult{Pattern: pattern}
	if _, err := e.compilePattern(pattern); err != nil {
		var perr *PatternError
		if errors.As(err, &perr) {
			res.Errors = append(res.Errors, perr.Problems...)
		} else {
			res.Errors = append(res.Errors, err.Error())
		}
		return res
	}
	res.IsValid = true
	return res
}

// TestPattern dry-runs a pattern against a set of URIs. The pattern itself
// must be valid; a malformed pattern is an error, never an all-no-match
// result.
func (e *Engine) TestPattern(pattern string, uris []string) ([]PatternTestResult, error) {
	cp, err := e.compilePattern(pattern)
	if err != nil {
		return nil, err
	}
	out := make([]PatternTestResult, 0, len(uris))
	for _, uri := range uris {
		r := PatternTestResult{URI: uri}
		if params, ok := cp.MatchURI(uri); ok {
			r.IsMatch = true
			r.Parameters = params
			r.Confidence = cp.Confidence()
		}
		out = append(out, r)
	}
	return out, nil
}

// activeCandidates returns the committed snapshot filtered to active
// resources.
func (e *Engine) activeCandidates() []*compiledResource {
	all := e.index.snapshot()
	out := make([]*compiledResource, 0, len(all))
	for _, cr := range all {
		if cr.R.IsActive {
			out = append(out, cr)
		}
	}
	return out
}

// ----------------------------------------------------------------------------
// Hierarchy traversal
// ----------------------------------------------------------------------------

// Discover returns the resources whose patterns start with basePath's
// literal prefix plus their descendants, down to maxDepth levels below the
// seeds. A non-positive maxDepth falls back to the engine's configured
// default bound. Inactive resources and their subtrees are pruned unless
// includeInactive is set. Traversal keeps a visited set, so shared
// ancestry never produces duplicates.
func (e *Engine) Discover(ctx context.Context, basePath string, maxDepth int, includeInactive bool) ([]*Resource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if maxDepth <= 0 {
		maxDepth = e.maxDepth
	}
	baseSegs := utils.SplitSegments(utils.NormalizeURI(basePath))

	type item struct {
		cr    *compiledResource
		depth int
	}
	queue := make([]item, 0, 8)
	for _, cr := range e.index.snapshot() {
		if cr.Pattern == nil {
			continue
		}
		if !includeInactive && !cr.R.IsActive {
			continue
		}
		if hasLiteralPrefix(cr.Pattern, baseSegs) {
			queue = append(queue, item{cr: cr})
		}
	}

	visited := make(map[string]struct{}, len(queue))
	out := make([]*Resource, 0, len(queue))
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if _, seen := visited[cur.cr.R.ID]; seen {
			continue
		}
		visited[cur.cr.R.ID] = struct{}{}
		out = append(out, cur.cr.R.Clone())
		if cur.depth >= maxDepth {
			continue
		}
		for _, child := range e.index.children(cur.cr.R.ID) {
			if !includeInactive && !child.R.IsActive {
				continue
			}
			queue = append(queue, item{cr: child, depth: cur.depth + 1})
		}
	}
	return out, nil
}

// hasLiteralPrefix reports whether the pattern's leading literal segments
// cover every base segment, compared case-insensitively.
func hasLiteralPrefix(p *CompiledPattern, base []string) bool {
	if len(base) == 0 {
		return true
	}
	prefix := p.LiteralPrefix()
	if len(prefix) < len(base) {
		return false
	}
	for i, seg := range base {
		if !utils.SegmentsEqualFold(prefix[i], seg) {
			return false
		}
	}
	return true
}

// ChildrenOf lists the direct children of a resource.
func (e *Engine) ChildrenOf(ctx context.Context, id string) ([]*Resource, error) {
	if _, ok := e.index.get(id); !ok {
		return nil, fmt.Errorf("children of %s: %w", id, ErrNotFound)
	}
	kids := e.index.children(id)
	out := make([]*Resource, 0, len(kids))
	for _, cr := range kids {
		out = append(out, cr.R.Clone())
	}
	return out, nil
}

// AncestorsOf walks the parent chain from a resource to the root. Cycles
// are rejected at write time; the visited set keeps the read path safe
// regardless.
func (e *Engine) AncestorsOf(ctx context.Context, id string) ([]*Resource, error) {
	cr, ok := e.index.get(id)
	if !ok {
		return nil, fmt.Errorf("ancestors of %s: %w", id, ErrNotFound)
	}
	out := make([]*Resource, 0, 4)
	visited := map[string]struct{}{id: {}}
	cur := cr
	for cur.R.ParentID != "" {
		parent, ok := e.index.get(cur.R.ParentID)
		if !ok {
			break
		}
		if _, seen := visited[parent.R.ID]; seen {
			e.logger.Error("ancestor cycle detected", "resource_id", id, "at", parent.R.ID)
			break
		}
		visited[parent.R.ID] = struct{}{}
		out = append(out, parent.R.Clone())
		cur = parent
	}
	return out, nil
}

// ----------------------------------------------------------------------------
// Administration
// ----------------------------------------------------------------------------

// CreateResourceRequest carries the fields of a creation request. ID and
// Name are optional: the engine assigns an id and derives the name from
// the URI's last segment when absent. IsActive defaults to true.
type CreateResourceRequest struct {
	ID           string `json:"id,omitempty"`
	Name         string `json:"name,omitempty"`
	URI          string `json:"uri"`
	ResourceType string `json:"resource_type,omitempty"`
	Version      string `json:"version,omitempty"`
	ParentID     string `json:"parent_id,omitempty"`
	IsActive     *bool  `json:"is_active,omitempty"`
}

// UpdateResourceRequest is a partial-field merge: only non-nil fields
// overwrite the stored resource.
type UpdateResourceRequest struct {
	Name         *string `json:"name,omitempty"`
	URI          *string `json:"uri,omitempty"`
	ResourceType *string `json:"resource_type,omitempty"`
	Version      *string `json:"version,omitempty"`
	ParentID     *string `json:"parent_id,omitempty"`
	IsActive     *bool   `json:"is_active,omitempty"`
}

// CreateResource validates and persists a new resource, then republishes
// the index. URI uniqueness is checked case-insensitively here, not at the
// storage layer.
func (e *Engine) CreateResource(ctx context.Context, req CreateResourceRequest) (*Resource, error) {
	if _, err := e.compilePattern(req.URI); err != nil {
		return nil, err
	}
	if existing, ok := e.index.byNormalizedURI(req.URI); ok {
		return nil, &ConflictError{
			Reason:         fmt.Sprintf("uri %q already configured", req.URI),
			ConflictingIDs: []string{existing.R.ID},
		}
	}
	if req.ParentID != "" {
		if _, err := e.store.GetResource(ctx, req.ParentID); err != nil {
			return nil, fmt.Errorf("parent %s: %w", req.ParentID, ErrNotFound)
		}
	}

	now := time.Now()
	r := &Resource{
		ID:           req.ID,
		Name:         req.Name,
		URI:          strings.TrimSpace(req.URI),
		ResourceType: req.ResourceType,
		Version:      req.Version,
		ParentID:     req.ParentID,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if req.IsActive != nil {
		r.IsActive = *req.IsActive
	}
	if r.ID == "" {
		r.ID = e.newResourceID()
	}
	if r.Name == "" {
		r.Name = utils.LastSegment(r.URI)
	}

	if err := e.store.CreateResource(ctx, r); err != nil {
		return nil, err
	}
	if err := e.ReloadResources(ctx); err != nil {
		return nil, err
	}
	e.audit("create", r.URI, r.ID, "ok", nil)
	e.logger.Info("resource created", "resource_id", r.ID, "uri", r.URI)
	return r.Clone(), nil
}

// UpdateResource merges the supplied fields into the stored resource.
// Changing the URI re-runs compilation and uniqueness checks; changing the
// parent re-runs existence and cycle checks.
func (e *Engine) UpdateResource(ctx context.Context, id string, req UpdateResourceRequest) (*Resource, error) {
	cur, err := e.store.GetResource(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.URI != nil && !strings.EqualFold(utils.NormalizeURI(*req.URI), utils.NormalizeURI(cur.URI)) {
		if _, err := e.compilePattern(*req.URI); err != nil {
			return nil, err
		}
		if existing, ok := e.index.byNormalizedURI(*req.URI); ok && existing.R.ID != id {
			return nil, &ConflictError{
				Reason:         fmt.Sprintf("uri %q already configured", *req.URI),
				ConflictingIDs: []string{existing.R.ID},
			}
		}
		cur.URI = strings.TrimSpace(*req.URI)
	} else if req.URI != nil {
		cur.URI = strings.TrimSpace(*req.URI)
	}

	if req.ParentID != nil && *req.ParentID != cur.ParentID {
		if *req.ParentID != "" {
			if err := e.checkReparent(ctx, id, *req.ParentID); err != nil {
				return nil, err
			}
		}
		cur.ParentID = *req.ParentID
	}
	if req.Name != nil {
		cur.Name = *req.Name
	}
	if req.ResourceType != nil {
		cur.ResourceType = *req.ResourceType
	}
	if req.Version != nil {
		cur.Version = *req.Version
	}
	if req.IsActive != nil {
		cur.IsActive = *req.IsActive
	}
	cur.UpdatedAt = time.Now()

	if err := e.store.UpdateResource(ctx, cur); err != nil {
		return nil, err
	}
	if err := e.ReloadResources(ctx); err != nil {
		return nil, err
	}
	e.audit("update", cur.URI, cur.ID, "ok", nil)
	e.logger.Info("resource updated", "resource_id", cur.ID, "uri", cur.URI)
	return cur.Clone(), nil
}

// checkReparent rejects unknown parents, self-parenting and moves that
// would place a resource under its own descendant.
func (e *Engine) checkReparent(ctx context.Context, id, newParent string) error {
	if newParent == id {
		return &ConflictError{Reason: "resource cannot be its own parent", ConflictingIDs: []string{id}}
	}
	if _, err := e.store.GetResource(ctx, newParent); err != nil {
		return fmt.Errorf("parent %s: %w", newParent, ErrNotFound)
	}
	// walk up from the new parent; hitting id means a cycle
	visited := map[string]struct{}{}
	cur := newParent
	for cur != "" {
		if cur == id {
			return &ConflictError{Reason: "reparenting would create a cycle", ConflictingIDs: []string{id, newParent}}
		}
		if _, seen := visited[cur]; seen {
			break
		}
		visited[cur] = struct{}{}
		cr, ok := e.index.get(cur)
		if !ok {
			break
		}
		cur = cr.R.ParentID
	}
	return nil
}

// DeleteResource removes a leaf resource. Referential integrity is
// checked, not cascaded: a resource with children cannot be deleted.
func (e *Engine) DeleteResource(ctx context.Context, id string) error {
	if _, err := e.store.GetResource(ctx, id); err != nil {
		return err
	}
	children, err := e.store.GetChildren(ctx, id)
	if err != nil {
		return err
	}
	if len(children) > 0 {
		ids := make([]string, 0, len(children))
		for _, c := range children {
			ids = append(ids, c.ID)
		}
		return &ConflictError{Reason: fmt.Sprintf("resource %s has %d children", id, len(children)), ConflictingIDs: ids}
	}
	if err := e.store.DeleteResource(ctx, id); err != nil {
		return err
	}
	if err := e.ReloadResources(ctx); err != nil {
		return err
	}
	e.audit("delete", "", id, "ok", nil)
	e.logger.Info("resource deleted", "resource_id", id)
	return nil
}

// GetResource fetches a resource by id, active or not.
func (e *Engine) GetResource(ctx context.Context, id string) (*Resource, error) {
	return e.store.GetResource(ctx, id)
}

// ListResources applies the filter specification and slices the result by
// page (1-based) and pageSize. Inactive resources are excluded unless the
// filter asks for them explicitly. The returned total counts all filtered
// resources, not just the returned page.
func (e *Engine) ListResources(ctx context.Context, f Filter, page, pageSize int) ([]*Resource, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	if f.IsActive == nil {
		active := true
		f.IsActive = &active
	}
	spec := BuildSpecification(f)

	filtered := make([]*Resource, 0)
	for _, cr := range e.index.snapshot() {
		if spec.Evaluate(cr.R) {
			filtered = append(filtered, cr.R.Clone())
		}
	}
	total := len(filtered)
	if pageSize <= 0 {
		return filtered, total, nil
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * pageSize
	if start >= total {
		return []*Resource{}, total, nil
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return filtered[start:end], total, nil
}

func (e *Engine) newResourceID() string {
	return "res-" + strconv.FormatInt(time.Now().UnixNano(), 36) + "-" + strconv.FormatUint(e.idSeq.Add(1), 10)
}

// ----------------------------------------------------------------------------
// Audit trail
// ----------------------------------------------------------------------------

// audit enqueues an entry without blocking the caller. A full queue drops
// the entry; audit failures never fail the operation.
func (e *Engine) audit(op, uri, resourceID, outcome string, metadata map[string]any) {
	if e.auditCh == nil || e.closed.Load() {
		return
	}
	entry := AuditEntry{
		ID:         "evt-" + strconv.FormatInt(time.Now().UnixNano(), 36) + "-" + strconv.FormatUint(e.idSeq.Add(1), 10),
		Timestamp:  time.Now(),
		Operation:  op,
		URI:        uri,
		ResourceID: resourceID,
		Outcome:    outcome,
		Metadata:   metadata,
	}
	if e.traceIDFunc != nil {
		entry.TraceID = e.traceIDFunc()
	}
	select {
	case <-e.auditQuit:
		return
	default:
	}
	select {
	case e.auditCh <- entry:
	default:
		e.logger.Debug("audit queue full, dropping entry", "operation", op)
	}
}

// auditWorker drains the channel in batches, flushing on batch size or on
// the flush interval, whichever comes first.
func (e *Engine) auditWorker() {
	defer close(e.auditDone)
	ticker := time.NewTicker(e.auditFlushInterval)
	defer ticker.Stop()

	batch := make([]AuditEntry, 0, e.auditBatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		bg := context.Background()
		for i := range batch {
			if err := e.auditStore.LogEvent(bg, &batch[i]); err != nil {
				e.logger.Error("audit write failed", "operation", batch[i].Operation, "error", err.Error())
			}
		}
		batch = batch[:0]
	}

	for {
		select {
		case entry := <-e.auditCh:
			batch = append(batch, entry)
			if len(batch) >= e.auditBatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-e.auditQuit:
			// drain entries that were buffered before shutdown
			for {
				select {
				case entry := <-e.auditCh:
					batch = append(batch, entry)
				default:
					flush()
					return
				}
			}
		}
	}
}

// GetAuditLog proxies audit queries to the configured store.
func (e *Engine) GetAuditLog(ctx context.Context, filter AuditFilter) ([]*AuditEntry, error) {
	if e.auditStore == nil {
		return nil, nil
	}
	return e.auditStore.GetAuditLog(ctx, filter)
}

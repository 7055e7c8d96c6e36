package stores

import (
	"context"
	"fmt"

	"github.com/oarkflow/squealx"

	"github.com/oarkflow/shield"
)

// SQLResourceStore persists resources in SQL (squealx). Listing preserves
// creation order, which the match engine relies on for tie-breaking.
type SQLResourceStore struct {
	db *squealx.DB
}

func NewSQLResourceStore(db *squealx.DB) *SQLResourceStore {
	return &SQLResourceStore{db: db}
}

func (s *SQLResourceStore) CreateResource(ctx context.Context, r *shield.Resource) error {
	q := `INSERT INTO resources(id, name, uri, resource_type, version, parent_id, is_active, created_at, updated_at)
	      VALUES(:id, :name, :uri, :resource_type, :version, :parent_id, :is_active, :created_at, :updated_at)`
	_, err := s.db.NamedExecContext(ctx, q, resourceArgs(r))
	return err
}

func (s *SQLResourceStore) UpdateResource(ctx context.Context, r *shield.Resource) error {
	q := `UPDATE resources SET name = :name, uri = :uri, resource_type = :resource_type, version = :version,
	      parent_id = :parent_id, is_active = :is_active, updated_at = :updated_at WHERE id = :id`
	res, err := s.db.NamedExecContext(ctx, q, resourceArgs(r))
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update %s: %w", r.ID, shield.ErrNotFound)
	}
	return nil
}

func (s *SQLResourceStore) DeleteResource(ctx context.Context, id string) error {
	q := `DELETE FROM resources WHERE id = :id`
	res, err := s.db.NamedExecContext(ctx, q, map[string]any{"id": id})
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("delete %s: %w", id, shield.ErrNotFound)
	}
	return nil
}

func (s *SQLResourceStore) GetResource(ctx context.Context, id string) (*shield.Resource, error) {
	q := selectResources + ` WHERE id = :id`
	rows, err := s.db.NamedQueryContext(ctx, q, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, fmt.Errorf("get %s: %w", id, shield.ErrNotFound)
	}
	return scanResource(rows)
}

func (s *SQLResourceStore) ListResources(ctx context.Context) ([]*shield.Resource, error) {
	q := selectResources + ` ORDER BY created_at, id`
	rows, err := s.db.NamedQueryContext(ctx, q, map[string]any{})
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*shield.Resource, 0)
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *SQLResourceStore) GetChildren(ctx context.Context, id string) ([]*shield.Resource, error) {
	q := selectResources + ` WHERE parent_id = :parent_id ORDER BY created_at, id`
	rows, err := s.db.NamedQueryContext(ctx, q, map[string]any{"parent_id": id})
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*shield.Resource, 0)
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

const selectResources = `SELECT id, name, uri, resource_type, version, parent_id, is_active, created_at, updated_at FROM resources`

func resourceArgs(r *shield.Resource) map[string]any {
	return map[string]any{
		"id":            r.ID,
		"name":          r.Name,
		"uri":           r.URI,
		"resource_type": r.ResourceType,
		"version":       r.Version,
		"parent_id":     r.ParentID,
		"is_active":     boolToInt(r.IsActive),
		"created_at":    r.CreatedAt,
		"updated_at":    r.UpdatedAt,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResource(rows rowScanner) (*shield.Resource, error) {
	var id, name, uri, resourceType, version, parentID string
	var isActive int
	var createdRaw, updatedRaw any
	if err := rows.Scan(&id, &name, &uri, &resourceType, &version, &parentID, &isActive, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	return &shield.Resource{
		ID:           id,
		Name:         name,
		URI:          uri,
		ResourceType: resourceType,
		Version:      version,
		ParentID:     parentID,
		IsActive:     isActive != 0,
		CreatedAt:    scanTime(createdRaw),
		UpdatedAt:    scanTime(updatedRaw),
	}, nil
}

package stores

import (
	"context"
	"encoding/json"

	"github.com/oarkflow/squealx"

	"github.com/oarkflow/shield"
)

// SQLAuditStore persists audit entries in SQL.
type SQLAuditStore struct {
	db *squealx.DB
}

func NewSQLAuditStore(db *squealx.DB) (*SQLAuditStore, error) {
	return &SQLAuditStore{db: db}, nil
}

func (s *SQLAuditStore) LogEvent(ctx context.Context, entry *shield.AuditEntry) error {
	metaB, _ := json.Marshal(entry.Metadata)
	q := `INSERT INTO audit_log(id, timestamp, operation, uri, resource_id, outcome, trace_id, metadata_json)
	      VALUES(:id, :timestamp, :operation, :uri, :resource_id, :outcome, :trace_id, :metadata_json)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":            entry.ID,
		"timestamp":     entry.Timestamp,
		"operation":     entry.Operation,
		"uri":           entry.URI,
		"resource_id":   entry.ResourceID,
		"outcome":       entry.Outcome,
		"trace_id":      entry.TraceID,
		"metadata_json": string(metaB),
	})
	return err
}

func (s *SQLAuditStore) GetAuditLog(ctx context.Context, filter shield.AuditFilter) ([]*shield.AuditEntry, error) {
	q := `SELECT id, timestamp, operation, uri, resource_id, outcome, trace_id, metadata_json FROM audit_log WHERE 1=1`
	params := map[string]any{}
	if filter.Operation != "" {
		q += ` AND operation = :operation`
		params["operation"] = filter.Operation
	}
	if filter.ResourceID != "" {
		q += ` AND resource_id = :resource_id`
		params["resource_id"] = filter.ResourceID
	}
	if !filter.StartTime.IsZero() {
		q += ` AND timestamp >= :start_time`
		params["start_time"] = filter.StartTime
	}
	if !filter.EndTime.IsZero() {
		q += ` AND timestamp <= :end_time`
		params["end_time"] = filter.EndTime
	}
	q += ` ORDER BY timestamp`
	if filter.Limit > 0 {
		q += ` LIMIT :limit`
		params["limit"] = filter.Limit
	}

	rows, err := s.db.NamedQueryContext(ctx, q, params)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*shield.AuditEntry, 0)
	for rows.Next() {
		var id, operation, uri, resourceID, outcome, traceID, metadataJSON string
		var tsRaw any
		if err := rows.Scan(&id, &tsRaw, &operation, &uri, &resourceID, &outcome, &traceID, &metadataJSON); err != nil {
			return nil, err
		}
		e := &shield.AuditEntry{
			ID:         id,
			Timestamp:  scanTime(tsRaw),
			Operation:  operation,
			URI:        uri,
			ResourceID: resourceID,
			Outcome:    outcome,
			TraceID:    traceID,
		}
		if metadataJSON != "" {
			_ = json.Unmarshal([]byte(metadataJSON), &e.Metadata)
		}
		out = append(out, e)
	}
	return out, nil
}

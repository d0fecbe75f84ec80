package database

import (
	"context"
	"encoding/json"
	"time"

	"media-viewer/internal/apperr"
)

// AuditLogEntry is the durable row shape backing access_audit_log, mirroring
// internal/audit.Entry so callers can persist a ring entry verbatim.
type AuditLogEntry struct {
	ID         int64
	Kind       string
	ResourceID string
	ActorID    string
	Detail     map[string]string
	CreatedAt  time.Time
}

// InsertAuditLog appends one row to the durable access_audit_log mirror.
// This table is append-only and never read back to drive access decisions
// (the in-memory internal/audit.Ring is authoritative for hot reads) — it
// exists purely as a compliance sink.
func (d *Database) InsertAuditLog(ctx context.Context, kind, resourceID, actorID string, detail map[string]string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	done := observeQuery("insert_audit_log")

	var detailJSON []byte
	if len(detail) > 0 {
		var err error
		detailJSON, err = json.Marshal(detail)
		if err != nil {
			done(err)
			return apperr.Wrap(apperr.Database, "marshal audit log detail", err)
		}
	}

	_, err := d.db.ExecContext(ctx,
		"INSERT INTO access_audit_log (kind, resource_id, actor_id, detail) VALUES (?, ?, ?, ?)",
		kind, resourceID, actorID, string(detailJSON),
	)
	done(err)
	if err != nil {
		return apperr.Wrap(apperr.Database, "insert audit log entry", err)
	}
	return nil
}

// ListAuditLog returns the most recent limit entries for a resource, newest
// first. Intended for admin/compliance review, not for access decisions.
func (d *Database) ListAuditLog(ctx context.Context, resourceID string, limit int) ([]AuditLogEntry, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	done := observeQuery("list_audit_log")
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, kind, resource_id, actor_id, detail, created_at
		 FROM access_audit_log WHERE resource_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		resourceID, limit,
	)
	if err != nil {
		done(err)
		return nil, apperr.Wrap(apperr.Database, "list audit log", err)
	}
	defer rows.Close()

	var out []AuditLogEntry
	for rows.Next() {
		var e AuditLogEntry
		var detailJSON string
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.Kind, &e.ResourceID, &e.ActorID, &detailJSON, &createdAt); err != nil {
			done(err)
			return nil, apperr.Wrap(apperr.Database, "scan audit log entry", err)
		}
		e.CreatedAt = time.Unix(createdAt, 0).UTC()
		if detailJSON != "" {
			if err := json.Unmarshal([]byte(detailJSON), &e.Detail); err != nil {
				e.Detail = nil
			}
		}
		out = append(out, e)
	}
	done(rows.Err())
	return out, rows.Err()
}

package sqlite

import (
	"context"
	"database/sql"
	"time"

	gateway "github.com/eugener/gandalf/internal"
)

// CreateIngressRoute inserts a persisted ingress route binding.
func (s *Store) CreateIngressRoute(ctx context.Context, b *gateway.IngressRouteBinding) error {
	_, err := s.write.ExecContext(ctx,
		`INSERT INTO ingress_routes (id, kind, match, processor_name, pool_workers, pool_queue_size, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Kind, b.Match, b.ProcessorName, b.PoolWorkers, b.PoolQueueSize,
		b.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// ListIngressRoutes returns all persisted ingress route bindings, code
// routes before URI routes, so startup can rebuild codeRoutes and
// uriRoutes in a deterministic order before Freeze sorts the latter.
func (s *Store) ListIngressRoutes(ctx context.Context) ([]*gateway.IngressRouteBinding, error) {
	rows, err := s.read.QueryContext(ctx,
		`SELECT id, kind, match, processor_name, pool_workers, pool_queue_size, created_at
		 FROM ingress_routes ORDER BY kind, created_at`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*gateway.IngressRouteBinding
	for rows.Next() {
		b, err := scanIngressRoute(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// DeleteIngressRoute removes a persisted ingress route binding.
func (s *Store) DeleteIngressRoute(ctx context.Context, id string) error {
	_, err := s.write.ExecContext(ctx, `DELETE FROM ingress_routes WHERE id=?`, id)
	return err
}

func scanIngressRoute(row scanner) (*gateway.IngressRouteBinding, error) {
	var b gateway.IngressRouteBinding
	var createdAt string
	if err := row.Scan(&b.ID, &b.Kind, &b.Match, &b.ProcessorName, &b.PoolWorkers, &b.PoolQueueSize, &createdAt); err != nil {
		return nil, err
	}
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		b.CreatedAt = t
	}
	return &b, nil
}

// InsertIngressAudit records a batch of ingress audit entries in a single transaction.
func (s *Store) InsertIngressAudit(ctx context.Context, entries []gateway.IngressAuditEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.write.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO ingress_audit_log (id, actor, action, target, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range entries {
		var detail sql.NullString
		if e.Detail != "" {
			detail = sql.NullString{String: e.Detail, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, e.ID, e.Actor, e.Action, e.Target, detail,
			e.CreatedAt.UTC().Format(time.RFC3339)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListIngressAudit returns audit entries ordered most-recent first.
func (s *Store) ListIngressAudit(ctx context.Context, offset, limit int) ([]gateway.IngressAuditEntry, error) {
	rows, err := s.read.QueryContext(ctx,
		`SELECT id, actor, action, target, detail, created_at
		 FROM ingress_audit_log ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []gateway.IngressAuditEntry
	for rows.Next() {
		var e gateway.IngressAuditEntry
		var detail sql.NullString
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Actor, &e.Action, &e.Target, &detail, &createdAt); err != nil {
			return nil, err
		}
		e.Detail = detail.String
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			e.CreatedAt = t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

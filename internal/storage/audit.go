package storage

import (
	"context"
	"time"
)

// AppendAuditEntry writes one immutable activity record. The audit log is a
// write-only sink from the engine's point of view.
func (p *SQLProvider) AppendAuditEntry(ctx context.Context, entry *AuditEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := p.db.ExecContext(ctx, p.db.Rebind(`
		INSERT INTO audit_log (actor, action, resource, diff, created_at)
		VALUES (?, ?, ?, ?, ?)`),
		entry.Actor, entry.Action, entry.Resource, entry.Diff, entry.CreatedAt,
	)
	return err
}

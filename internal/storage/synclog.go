package storage

import (
	"context"
	"time"
)

func (p *SQLProvider) AppendSyncLog(ctx context.Context, entry *SyncLogEntry) error {
	res, err := p.db.ExecContext(ctx, p.db.Rebind(`
		INSERT INTO sync_logs (device_uuid, started_at, finished_at, success, pulled, message)
		VALUES (?, ?, ?, ?, ?, ?)`),
		entry.DeviceUUID, entry.StartedAt.UTC(), entry.FinishedAt.UTC(),
		entry.Success, entry.Pulled, entry.Message,
	)
	if err != nil {
		return err
	}
	if id, err := res.LastInsertId(); err == nil {
		entry.ID = id
	}
	return nil
}

func (p *SQLProvider) ListSyncLogs(ctx context.Context, deviceUUID string, limit int) ([]SyncLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	var entries []SyncLogEntry
	err := p.db.SelectContext(ctx, &entries, p.db.Rebind(`
		SELECT id, device_uuid, started_at, finished_at, success, pulled, message
		FROM sync_logs WHERE device_uuid = ? ORDER BY started_at DESC LIMIT ?`),
		deviceUUID, limit)
	return entries, err
}

func (p *SQLProvider) PruneSyncLogs(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := p.db.ExecContext(ctx,
		p.db.Rebind(`DELETE FROM sync_logs WHERE started_at < ?`), olderThan.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Package audit records admin-triggered actions (device changes, manual
// attendance entries, template writes) into the append-only activity log.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/mubeen104/uips-attendance/internal/storage"
)

// Action names recorded in the audit log.
const (
	ActionDeviceCreate   = "device.create"
	ActionDeviceUpdate   = "device.update"
	ActionDeviceDelete   = "device.delete"
	ActionDeviceApprove  = "device.approve"
	ActionTemplateCreate = "template.create"
	ActionManualEntry    = "attendance.manual_entry"
	ActionTimeSet        = "device.set_time"
)

type Store interface {
	AppendAuditEntry(ctx context.Context, entry *storage.AuditEntry) error
}

// Recorder writes audit entries. Failures are logged and swallowed so a
// broken audit sink never blocks the action it describes.
type Recorder struct {
	store  Store
	logger *slog.Logger
}

func NewRecorder(store Store) *Recorder {
	return &Recorder{
		store:  store,
		logger: slog.With("component", "audit"),
	}
}

// Record appends one entry. details is marshalled to JSON; pass nil for
// actions with nothing to diff.
func (r *Recorder) Record(ctx context.Context, actor, action, resource string, details any) {
	var diff string
	if details != nil {
		b, err := json.Marshal(details)
		if err != nil {
			r.logger.Warn("Failed to encode audit details", "action", action, "error", err)
		} else {
			diff = string(b)
		}
	}

	entry := &storage.AuditEntry{
		Actor:     actor,
		Action:    action,
		Resource:  resource,
		Diff:      diff,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.store.AppendAuditEntry(ctx, entry); err != nil {
		r.logger.Error("Failed to append audit entry", "action", action, "resource", resource, "error", err)
	}
}

// Package protocol defines the uniform capability surface every vendor
// family implements. Callers never see vendor wire formats; new vendors are
// added by implementing Adapter, never by branching downstream.
package protocol

import (
	"context"
	"time"

	"github.com/mubeen104/uips-attendance/internal/storage"
)

// RawEvent is one attendance event as reported by a terminal, before any
// employee resolution or folding.
type RawEvent struct {
	// Identifier the device reports for the person. Resolved to an
	// employee by the ingestion pipeline.
	DeviceUserID string
	Time         time.Time
	Type         storage.LogType
	// fingerprint, card, password, face ...
	VerificationMethod string
	MatchScore         int
}

// Descriptor describes a protocol family.
type Descriptor struct {
	Family string
	// Families that cannot be dialed from the hosting environment
	// (serial/USB, NAT'd TCP) and need a locally deployed relay.
	RequiresBridge bool

	CanPull    bool
	CanEnroll  bool
	CanSetTime bool
}

// ProgressFunc receives enrollment capture progress: a percentage in [0,100]
// and a short status line.
type ProgressFunc func(percent int, status string)

// Diagnostic is the human-actionable outcome of a connection test.
type Diagnostic struct {
	Online  bool
	Message string
	// Round-trip of the probe, zero when unreachable.
	Latency time.Duration
}

type Adapter interface {
	Descriptor() Descriptor

	// TestConnection is idempotent and side-effect-free on the device.
	TestConnection(ctx context.Context, device *storage.Device) (Diagnostic, error)

	// Enroll drives a multi-step capture on the terminal and returns the
	// vendor-opaque template blob with its quality score (0-100).
	Enroll(ctx context.Context, device *storage.Device, deviceUserID string, finger storage.FingerPosition, progress ProgressFunc) (template []byte, quality int, err error)

	// PullLogs fetches events recorded after the cursor. The returned
	// cursor is opaque to callers and only advances after the batch has
	// been ingested.
	PullLogs(ctx context.Context, device *storage.Device, since string) (events []RawEvent, cursor string, err error)

	SetTime(ctx context.Context, device *storage.Device, t time.Time) error
}

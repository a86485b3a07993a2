// Package enroll drives the capture-quality-store workflow for one
// biometric template against one device/employee pair. The orchestrator is
// an explicit state machine whose progress any consumer can poll; it does
// not care how the progress is transported.
package enroll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mubeen104/uips-attendance/internal/notify"
	"github.com/mubeen104/uips-attendance/internal/protocol"
	"github.com/mubeen104/uips-attendance/internal/storage"
)

type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateCapturing  State = "capturing"
	StateScoring    State = "scoring"
	StatePersisting State = "persisting"
	StateComplete   State = "complete"
	StateFailed     State = "failed"
)

var (
	// Enrollment refuses to start against a device not known online.
	ErrDeviceOffline = errors.New("device offline")
	// Capture scored below the configured minimum.
	ErrLowQuality = errors.New("capture quality below minimum")
	ErrCancelled  = errors.New("enrollment cancelled")
	ErrNoSession  = errors.New("no such enrollment session")
)

// Store is the slice of the storage provider the orchestrator needs.
type Store interface {
	CreateTemplateDeactivatingPrior(ctx context.Context, tpl *storage.BiometricTemplate) error
	TouchDeviceState(ctx context.Context, uuid string, online bool, observedAt time.Time) (bool, error)
}

// AdapterSource resolves the protocol adapter for a device.
type AdapterSource interface {
	ForDevice(device *storage.Device) (protocol.Adapter, error)
}

// Snapshot is the poll-able view of one enrollment attempt.
type Snapshot struct {
	ID         string                 `json:"id"`
	EmployeeID int64                  `json:"employee_id"`
	DeviceUUID string                 `json:"device_uuid"`
	Finger     storage.FingerPosition `json:"finger_position"`
	State      State                  `json:"state"`
	Percent    int                    `json:"percent"`
	Status     string                 `json:"status"`
	Error      string                 `json:"error,omitempty"`
	StartedAt  time.Time              `json:"started_at"`
	FinishedAt *time.Time             `json:"finished_at,omitempty"`
}

type session struct {
	mu sync.Mutex

	id       string
	employee storage.Employee
	device   storage.Device
	finger   storage.FingerPosition

	state   State
	percent int
	status  string
	err     error

	cancelled bool
	cancel    context.CancelFunc

	startedAt  time.Time
	finishedAt *time.Time
}

// advance moves the session forward. Percent is monotonic: a stale lower
// report never rolls the bar back.
func (s *session) advance(state State, percent int, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	if percent > s.percent {
		s.percent = percent
	}
	if status != "" {
		s.status = status
	}
}

func (s *session) fail(err error) {
	now := time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateFailed
	s.err = err
	s.status = err.Error()
	s.finishedAt = &now
}

func (s *session) complete() {
	now := time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateComplete
	s.percent = 100
	s.status = "template stored"
	s.finishedAt = &now
}

func (s *session) isCancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

func (s *session) snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		ID:         s.id,
		EmployeeID: s.employee.ID,
		DeviceUUID: s.device.UUID,
		Finger:     s.finger,
		State:      s.state,
		Percent:    s.percent,
		Status:     s.status,
		StartedAt:  s.startedAt,
		FinishedAt: s.finishedAt,
	}
	if s.err != nil {
		snap.Error = s.err.Error()
	}
	return snap
}

type Orchestrator struct {
	store    Store
	adapters AdapterSource
	notifier notify.Notifier

	minQuality int
	timeout    time.Duration

	mu       sync.RWMutex
	sessions map[string]*session

	logger *slog.Logger
}

func NewOrchestrator(store Store, adapters AdapterSource, notifier notify.Notifier, minQuality int, timeout time.Duration) *Orchestrator {
	if minQuality <= 0 {
		minQuality = 60
	}
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	return &Orchestrator{
		store:      store,
		adapters:   adapters,
		notifier:   notifier,
		minQuality: minQuality,
		timeout:    timeout,
		sessions:   make(map[string]*session),
		logger:     slog.With("component", "enroll"),
	}
}

// Start begins an enrollment attempt and returns its session ID. The
// workflow runs in the background; consumers poll Get for progress.
func (o *Orchestrator) Start(ctx context.Context, employee storage.Employee, device storage.Device, finger storage.FingerPosition) (string, error) {
	if finger < 0 || finger > 9 {
		return "", fmt.Errorf("finger position %d out of range", finger)
	}
	if !device.IsOnline {
		// Fail fast instead of attempting a capture that cannot start.
		return "", fmt.Errorf("%w: %s", ErrDeviceOffline, device.SerialNumber)
	}

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.timeout)

	s := &session{
		id:        uuid.NewString(),
		employee:  employee,
		device:    device,
		finger:    finger,
		state:     StateIdle,
		status:    "queued",
		cancel:    cancel,
		startedAt: time.Now().UTC(),
	}

	o.mu.Lock()
	o.sessions[s.id] = s
	o.mu.Unlock()

	go o.run(runCtx, s)

	return s.id, nil
}

func (o *Orchestrator) run(ctx context.Context, s *session) {
	defer s.cancel()

	adapter, err := o.adapters.ForDevice(&s.device)
	if err != nil {
		s.fail(err)
		return
	}

	s.advance(StateConnecting, 5, "connecting to terminal")

	// The adapter reports raw capture progress; it occupies the middle of
	// the overall bar between connect and persist.
	sink := func(percent int, status string) {
		scaled := 10 + percent*70/100
		s.advance(StateCapturing, scaled, status)
	}

	template, quality, err := adapter.Enroll(ctx, &s.device, s.employee.DeviceUserID, s.finger, sink)
	if err != nil {
		if s.isCancelled() {
			s.fail(ErrCancelled)
			return
		}
		if errors.Is(err, context.DeadlineExceeded) {
			// A terminal that missed the whole capture window may be gone.
			// The session context is already expired, so the observation
			// goes out on a fresh one.
			if _, terr := o.store.TouchDeviceState(context.WithoutCancel(ctx), s.device.UUID, false, time.Now().UTC()); terr != nil {
				o.logger.Warn("Recording offline state failed", "device", s.device.SerialNumber, "error", terr)
			}
			s.fail(fmt.Errorf("%w: capture window expired", protocol.ErrUnreachable))
			return
		}
		s.fail(err)
		return
	}

	s.advance(StateScoring, 85, fmt.Sprintf("scoring capture (quality %d)", quality))
	if quality < o.minQuality {
		s.fail(fmt.Errorf("%w: scored %d, minimum %d", ErrLowQuality, quality, o.minQuality))
		return
	}

	// A cancellation request must be observable before persistence.
	if s.isCancelled() {
		s.fail(ErrCancelled)
		return
	}

	s.advance(StatePersisting, 95, "storing template")
	tpl := &storage.BiometricTemplate{
		EmployeeID:   s.employee.ID,
		DeviceUUID:   s.device.UUID,
		Finger:       s.finger,
		TemplateData: template,
		QualityScore: quality,
	}
	if err := o.store.CreateTemplateDeactivatingPrior(ctx, tpl); err != nil {
		s.fail(fmt.Errorf("storing template: %w", err))
		return
	}

	s.complete()
	o.logger.Info("Enrollment complete",
		"employee", s.employee.ID, "device", s.device.SerialNumber,
		"finger", s.finger, "quality", quality,
	)

	go o.notifier.Send(context.Background(), notify.Notification{
		Recipient: s.employee.Email,
		Category:  notify.CategoryEnrollment,
		Title:     "Fingerprint enrolled",
		Message:   fmt.Sprintf("A fingerprint template was enrolled for you on terminal %s.", s.device.Name),
	})
}

// Cancel requests cancellation. It is honored at every step up to and
// including the gate before persistence; a session already persisting or
// finished reports false.
func (o *Orchestrator) Cancel(id string) (bool, error) {
	o.mu.RLock()
	s, ok := o.sessions[id]
	o.mu.RUnlock()
	if !ok {
		return false, ErrNoSession
	}

	s.mu.Lock()
	switch s.state {
	case StatePersisting, StateComplete, StateFailed:
		s.mu.Unlock()
		return false, nil
	}
	s.cancelled = true
	s.mu.Unlock()

	s.cancel()
	return true, nil
}

func (o *Orchestrator) Get(id string) (Snapshot, error) {
	o.mu.RLock()
	s, ok := o.sessions[id]
	o.mu.RUnlock()
	if !ok {
		return Snapshot{}, ErrNoSession
	}
	return s.snapshot(), nil
}

// List returns snapshots of all known sessions, newest first kept simple:
// callers sort if they care.
func (o *Orchestrator) List() []Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]Snapshot, 0, len(o.sessions))
	for _, s := range o.sessions {
		out = append(out, s.snapshot())
	}
	return out
}

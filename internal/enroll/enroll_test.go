package enroll

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mubeen104/uips-attendance/internal/protocol"
	"github.com/mubeen104/uips-attendance/internal/storage"
)

type fakeTemplateStore struct {
	mu        sync.Mutex
	templates []storage.BiometricTemplate
	failWith  error
	online    map[string]bool
}

func (f *fakeTemplateStore) CreateTemplateDeactivatingPrior(_ context.Context, tpl *storage.BiometricTemplate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	f.templates = append(f.templates, *tpl)
	return nil
}

func (f *fakeTemplateStore) TouchDeviceState(_ context.Context, uuid string, online bool, _ time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.online == nil {
		f.online = make(map[string]bool)
	}
	f.online[uuid] = online
	return true, nil
}

func (f *fakeTemplateStore) onlineState(uuid string) (bool, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, touched := f.online[uuid]
	return state, touched
}

func (f *fakeTemplateStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.templates)
}

// fakeAdapter scripts one Enroll outcome.
type fakeAdapter struct {
	protocol.Adapter

	template []byte
	quality  int
	err      error
	// capture delay before returning, so tests can cancel mid-flight
	delay    time.Duration
	progress []int
}

func (f *fakeAdapter) Enroll(ctx context.Context, _ *storage.Device, _ string, _ storage.FingerPosition, sink protocol.ProgressFunc) ([]byte, int, error) {
	for _, p := range f.progress {
		sink(p, "capturing")
	}
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if f.err != nil {
		return nil, 0, f.err
	}
	return f.template, f.quality, nil
}

type fakeAdapterSource struct {
	adapter protocol.Adapter
	err     error
}

func (f *fakeAdapterSource) ForDevice(*storage.Device) (protocol.Adapter, error) {
	return f.adapter, f.err
}

func onlineDevice() storage.Device {
	return storage.Device{UUID: "dev-1", SerialNumber: "SN1", Name: "Lobby", IsOnline: true}
}

func testEmployee() storage.Employee {
	return storage.Employee{ID: 1, FullName: "Test Person", Email: "t@example.com", DeviceUserID: "101"}
}

func waitTerminal(t *testing.T, o *Orchestrator, id string) Snapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snap, err := o.Get(id)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if snap.State == StateComplete || snap.State == StateFailed {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("session never reached a terminal state")
	return Snapshot{}
}

func TestStart_OfflineDevice_FailsFast(t *testing.T) {
	store := &fakeTemplateStore{}
	o := NewOrchestrator(store, &fakeAdapterSource{}, nil, 60, time.Second)

	device := onlineDevice()
	device.IsOnline = false

	_, err := o.Start(context.Background(), testEmployee(), device, 1)
	if !errors.Is(err, ErrDeviceOffline) {
		t.Fatalf("err = %v, want ErrDeviceOffline", err)
	}
}

func TestStart_InvalidFinger_Rejected(t *testing.T) {
	o := NewOrchestrator(&fakeTemplateStore{}, &fakeAdapterSource{}, nil, 60, time.Second)

	if _, err := o.Start(context.Background(), testEmployee(), onlineDevice(), 10); err == nil {
		t.Fatal("finger 10 accepted")
	}
	if _, err := o.Start(context.Background(), testEmployee(), onlineDevice(), -1); err == nil {
		t.Fatal("finger -1 accepted")
	}
}

func TestEnroll_HappyPath_StoresExactlyOneTemplate(t *testing.T) {
	store := &fakeTemplateStore{}
	adapter := &fakeAdapter{
		template: []byte("blob"),
		quality:  88,
		progress: []int{25, 50, 100},
	}
	o := NewOrchestrator(store, &fakeAdapterSource{adapter: adapter}, nil, 60, time.Second)

	id, err := o.Start(context.Background(), testEmployee(), onlineDevice(), 1)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	snap := waitTerminal(t, o, id)
	if snap.State != StateComplete {
		t.Fatalf("state = %s (%s), want complete", snap.State, snap.Error)
	}
	if snap.Percent != 100 {
		t.Errorf("percent = %d, want 100", snap.Percent)
	}
	if store.count() != 1 {
		t.Errorf("templates stored = %d, want 1", store.count())
	}
	if q := store.templates[0].QualityScore; q != 88 {
		t.Errorf("quality = %d, want 88", q)
	}
}

func TestEnroll_LowQuality_FailsWithoutPersisting(t *testing.T) {
	store := &fakeTemplateStore{}
	adapter := &fakeAdapter{template: []byte("blob"), quality: 40}
	o := NewOrchestrator(store, &fakeAdapterSource{adapter: adapter}, nil, 60, time.Second)

	id, err := o.Start(context.Background(), testEmployee(), onlineDevice(), 1)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	snap := waitTerminal(t, o, id)
	if snap.State != StateFailed {
		t.Fatalf("state = %s, want failed", snap.State)
	}
	if snap.Error == "" || !errorContains(snap.Error, ErrLowQuality) {
		t.Errorf("error = %q, want low quality", snap.Error)
	}
	if store.count() != 0 {
		t.Errorf("low-quality capture was persisted")
	}
}

func TestEnroll_CancelBeforePersist_LeavesNoTemplate(t *testing.T) {
	store := &fakeTemplateStore{}
	adapter := &fakeAdapter{template: []byte("blob"), quality: 90, delay: 2 * time.Second}
	o := NewOrchestrator(store, &fakeAdapterSource{adapter: adapter}, nil, 60, 10*time.Second)

	id, err := o.Start(context.Background(), testEmployee(), onlineDevice(), 1)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Let the capture begin, then cancel mid-flight.
	time.Sleep(50 * time.Millisecond)
	cancelled, err := o.Cancel(id)
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if !cancelled {
		t.Fatal("Cancel refused before persisting")
	}

	snap := waitTerminal(t, o, id)
	if snap.State != StateFailed {
		t.Fatalf("state = %s, want failed", snap.State)
	}
	if !errorContains(snap.Error, ErrCancelled) {
		t.Errorf("error = %q, want cancelled", snap.Error)
	}
	if store.count() != 0 {
		t.Errorf("cancelled enrollment stored a template")
	}
}

func TestCancel_TerminalSession_Refused(t *testing.T) {
	store := &fakeTemplateStore{}
	adapter := &fakeAdapter{template: []byte("blob"), quality: 90}
	o := NewOrchestrator(store, &fakeAdapterSource{adapter: adapter}, nil, 60, time.Second)

	id, err := o.Start(context.Background(), testEmployee(), onlineDevice(), 1)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitTerminal(t, o, id)

	cancelled, err := o.Cancel(id)
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if cancelled {
		t.Error("Cancel succeeded on a finished session")
	}
}

func TestCancel_UnknownSession(t *testing.T) {
	o := NewOrchestrator(&fakeTemplateStore{}, &fakeAdapterSource{}, nil, 60, time.Second)
	if _, err := o.Cancel("nope"); !errors.Is(err, ErrNoSession) {
		t.Fatalf("err = %v, want ErrNoSession", err)
	}
}

func TestEnroll_Timeout_MapsToUnreachable(t *testing.T) {
	store := &fakeTemplateStore{}
	adapter := &fakeAdapter{template: []byte("blob"), quality: 90, delay: 5 * time.Second}
	o := NewOrchestrator(store, &fakeAdapterSource{adapter: adapter}, nil, 60, 50*time.Millisecond)

	id, err := o.Start(context.Background(), testEmployee(), onlineDevice(), 1)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	snap := waitTerminal(t, o, id)
	if snap.State != StateFailed {
		t.Fatalf("state = %s, want failed", snap.State)
	}
	if !errorContains(snap.Error, protocol.ErrUnreachable) {
		t.Errorf("error = %q, want unreachable", snap.Error)
	}
	state, touched := store.onlineState("dev-1")
	if !touched {
		t.Fatal("expired capture window left device state untouched")
	}
	if state {
		t.Error("device still marked online after capture window expired")
	}
}

func TestEnroll_AdapterFailure_LeavesDeviceStateAlone(t *testing.T) {
	store := &fakeTemplateStore{}
	adapter := &fakeAdapter{err: errors.New("sensor fault")}
	o := NewOrchestrator(store, &fakeAdapterSource{adapter: adapter}, nil, 60, time.Second)

	id, err := o.Start(context.Background(), testEmployee(), onlineDevice(), 1)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	snap := waitTerminal(t, o, id)
	if snap.State != StateFailed {
		t.Fatalf("state = %s, want failed", snap.State)
	}
	if _, touched := store.onlineState("dev-1"); touched {
		t.Error("a plain adapter failure must not change device state")
	}
}

func TestSession_PercentNeverRollsBack(t *testing.T) {
	s := &session{state: StateIdle}

	s.advance(StateCapturing, 50, "halfway")
	s.advance(StateCapturing, 30, "stale report")

	if s.percent != 50 {
		t.Errorf("percent rolled back to %d", s.percent)
	}
}

// errorContains matches a formatted session error against a sentinel.
func errorContains(msg string, sentinel error) bool {
	return msg != "" && strings.Contains(msg, sentinel.Error())
}

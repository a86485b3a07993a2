package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mubeen104/uips-attendance/internal/protocol"
	"github.com/mubeen104/uips-attendance/internal/storage"
)

// fakeStore is an in-memory Store with the same dedup and default-schedule
// behavior as the SQL provider.
type fakeStore struct {
	mu sync.Mutex

	employees map[string]*storage.Employee // device_user_id -> employee
	logs      map[string]storage.AttendanceLogEntry
	records   map[string]*storage.AttendanceRecord // "employeeID/date"
	schedules map[int64]map[int]*storage.AttendanceSchedule
	processed map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		employees: make(map[string]*storage.Employee),
		logs:      make(map[string]storage.AttendanceLogEntry),
		records:   make(map[string]*storage.AttendanceRecord),
		schedules: make(map[int64]map[int]*storage.AttendanceSchedule),
		processed: make(map[string]bool),
	}
}

func (f *fakeStore) addEmployee(id int64, deviceUserID string) {
	f.employees[deviceUserID] = &storage.Employee{ID: id, DeviceUserID: deviceUserID, IsActive: true}
}

func (f *fakeStore) setSchedule(employeeID int64, dayOfWeek int, s *storage.AttendanceSchedule) {
	if f.schedules[employeeID] == nil {
		f.schedules[employeeID] = make(map[int]*storage.AttendanceSchedule)
	}
	f.schedules[employeeID][dayOfWeek] = s
}

func (f *fakeStore) dedupKey(e *storage.AttendanceLogEntry) string {
	return e.DeviceUUID + "/" + e.DeviceUserID + "/" + e.LogTime.Format(time.RFC3339) + "/" + string(e.LogType)
}

func (f *fakeStore) InsertLogEntry(_ context.Context, entry *storage.AttendanceLogEntry) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := f.dedupKey(entry)
	for _, existing := range f.logs {
		if f.dedupKey(&existing) == key {
			return false, nil
		}
	}
	f.logs[entry.ID] = *entry
	return true, nil
}

func (f *fakeStore) ResolveDeviceUser(_ context.Context, deviceUserID string) (*storage.Employee, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.employees[deviceUserID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return e, nil
}

func (f *fakeStore) GetEmployee(_ context.Context, id int64) (*storage.Employee, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.employees {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (f *fakeStore) ListDayLogs(_ context.Context, employeeID int64, date string) ([]storage.AttendanceLogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []storage.AttendanceLogEntry
	for _, entry := range f.logs {
		if entry.EmployeeID != nil && *entry.EmployeeID == employeeID && entry.LogTime.Format("2006-01-02") == date {
			out = append(out, entry)
		}
	}
	// provider returns logs ordered by log_time
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].LogTime.Before(out[i].LogTime) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (f *fakeStore) MarkLogsProcessed(_ context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		entry := f.logs[id]
		entry.Processed = true
		f.logs[id] = entry
		f.processed[id] = true
	}
	return nil
}

func (f *fakeStore) UpsertAttendanceRecord(_ context.Context, rec *storage.AttendanceRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *rec
	f.records[recordKey(rec.EmployeeID, rec.Date)] = &copied
	return nil
}

func (f *fakeStore) GetSchedule(_ context.Context, employeeID int64, dayOfWeek int) (*storage.AttendanceSchedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if days, ok := f.schedules[employeeID]; ok {
		if s, ok := days[dayOfWeek]; ok {
			return s, nil
		}
	}
	return storage.DefaultSchedule(employeeID, dayOfWeek), nil
}

func (f *fakeStore) record(employeeID int64, date string) *storage.AttendanceRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records[recordKey(employeeID, date)]
}

func recordKey(employeeID int64, date string) string {
	return fmt.Sprintf("%d/%s", employeeID, date)
}

func punch(userID string, t time.Time, typ storage.LogType) protocol.RawEvent {
	return protocol.RawEvent{
		DeviceUserID:       userID,
		Time:               t,
		Type:               typ,
		VerificationMethod: "fingerprint",
		MatchScore:         90,
	}
}

// 2026-03-02 is a Monday.
func day(hour, minute int) time.Time {
	return time.Date(2026, 3, 2, hour, minute, 0, 0, time.UTC)
}

func newTestPipeline(store *fakeStore) *Pipeline {
	return NewPipeline(store, 5*time.Minute)
}

func TestProcess_WithinGrace_MarksPresent(t *testing.T) {
	store := newFakeStore()
	store.addEmployee(1, "101")
	pipeline := newTestPipeline(store)
	device := &storage.Device{UUID: "dev-1", SerialNumber: "SN1"}

	result, err := pipeline.Process(context.Background(), device, []protocol.RawEvent{
		punch("101", day(9, 2), storage.LogCheckIn),
		punch("101", day(17, 0), storage.LogCheckOut),
	})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if result.Inserted != 2 || result.Folded != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}

	rec := store.record(1, "2026-03-02")
	if rec == nil {
		t.Fatal("no attendance record written")
	}
	if rec.Status != storage.StatusPresent {
		t.Errorf("status = %s, want present", rec.Status)
	}
	if rec.LateByMinutes != 0 {
		t.Errorf("late_by_minutes = %d, want 0", rec.LateByMinutes)
	}
}

func TestProcess_PastGrace_MarksLate(t *testing.T) {
	store := newFakeStore()
	store.addEmployee(1, "101")
	pipeline := newTestPipeline(store)
	device := &storage.Device{UUID: "dev-1", SerialNumber: "SN1"}

	// 09:07 against a 09:00 schedule with 5 minutes of grace.
	_, err := pipeline.Process(context.Background(), device, []protocol.RawEvent{
		punch("101", day(9, 7), storage.LogCheckIn),
		punch("101", day(17, 0), storage.LogCheckOut),
	})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	rec := store.record(1, "2026-03-02")
	if rec.Status != storage.StatusLate {
		t.Errorf("status = %s, want late", rec.Status)
	}
	if rec.LateByMinutes != 7 {
		t.Errorf("late_by_minutes = %d, want 7", rec.LateByMinutes)
	}
}

func TestProcess_Replay_IsIdempotent(t *testing.T) {
	store := newFakeStore()
	store.addEmployee(1, "101")
	pipeline := newTestPipeline(store)
	device := &storage.Device{UUID: "dev-1", SerialNumber: "SN1"}

	batch := []protocol.RawEvent{
		punch("101", day(9, 0), storage.LogCheckIn),
		punch("101", day(17, 30), storage.LogCheckOut),
	}

	if _, err := pipeline.Process(context.Background(), device, batch); err != nil {
		t.Fatalf("first Process failed: %v", err)
	}
	first := *store.record(1, "2026-03-02")

	result, err := pipeline.Process(context.Background(), device, batch)
	if err != nil {
		t.Fatalf("replay Process failed: %v", err)
	}
	if result.Inserted != 0 {
		t.Errorf("replay inserted %d entries, want 0", result.Inserted)
	}
	if result.Duplicates != 2 {
		t.Errorf("replay duplicates = %d, want 2", result.Duplicates)
	}

	second := *store.record(1, "2026-03-02")
	if first.Status != second.Status || first.TotalHours != second.TotalHours || first.LateByMinutes != second.LateByMinutes {
		t.Errorf("replay changed the record: first %+v, second %+v", first, second)
	}
}

func TestProcess_UnknownDeviceUser_KeptButNotFolded(t *testing.T) {
	store := newFakeStore()
	pipeline := newTestPipeline(store)
	device := &storage.Device{UUID: "dev-1", SerialNumber: "SN1"}

	result, err := pipeline.Process(context.Background(), device, []protocol.RawEvent{
		punch("999", day(9, 0), storage.LogCheckIn),
	})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if result.Unknown != 1 || result.Inserted != 0 || result.Folded != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(store.logs) != 1 {
		t.Errorf("raw entry not persisted, have %d logs", len(store.logs))
	}
	if len(store.records) != 0 {
		t.Errorf("record written for unknown user")
	}
}

func TestProcess_BreaksAndOvertime(t *testing.T) {
	store := newFakeStore()
	store.addEmployee(1, "101")
	pipeline := newTestPipeline(store)
	device := &storage.Device{UUID: "dev-1", SerialNumber: "SN1"}

	// 09:00 to 19:00 with a one hour break: 9h worked against an 8h
	// schedule, one hour of overtime.
	_, err := pipeline.Process(context.Background(), device, []protocol.RawEvent{
		punch("101", day(9, 0), storage.LogCheckIn),
		punch("101", day(12, 0), storage.LogBreakStart),
		punch("101", day(13, 0), storage.LogBreakEnd),
		punch("101", day(19, 0), storage.LogCheckOut),
	})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	rec := store.record(1, "2026-03-02")
	if rec.TotalHours != 9 {
		t.Errorf("total_hours = %v, want 9", rec.TotalHours)
	}
	if rec.OvertimeMinutes != 60 {
		t.Errorf("overtime_minutes = %d, want 60", rec.OvertimeMinutes)
	}
}

func TestProcess_ShortDay_MarksHalfDay(t *testing.T) {
	store := newFakeStore()
	store.addEmployee(1, "101")
	pipeline := newTestPipeline(store)
	device := &storage.Device{UUID: "dev-1", SerialNumber: "SN1"}

	// Three hours worked against an eight hour schedule.
	_, err := pipeline.Process(context.Background(), device, []protocol.RawEvent{
		punch("101", day(9, 0), storage.LogCheckIn),
		punch("101", day(12, 0), storage.LogCheckOut),
	})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	rec := store.record(1, "2026-03-02")
	if rec.Status != storage.StatusHalfDay {
		t.Errorf("status = %s, want half_day", rec.Status)
	}
}

func TestProcess_NonWorkingDay_NoLateness(t *testing.T) {
	store := newFakeStore()
	store.addEmployee(1, "101")
	store.setSchedule(1, 1, &storage.AttendanceSchedule{
		EmployeeID: 1, DayOfWeek: 1, IsWorkingDay: false,
		CheckInTime: "09:00", CheckOutTime: "17:00",
	})
	pipeline := newTestPipeline(store)
	device := &storage.Device{UUID: "dev-1", SerialNumber: "SN1"}

	_, err := pipeline.Process(context.Background(), device, []protocol.RawEvent{
		punch("101", day(11, 0), storage.LogCheckIn),
		punch("101", day(15, 0), storage.LogCheckOut),
	})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	rec := store.record(1, "2026-03-02")
	if rec.Status != storage.StatusPresent {
		t.Errorf("status = %s, want present on a non-working day", rec.Status)
	}
	if rec.LateByMinutes != 0 {
		t.Errorf("late_by_minutes = %d, want 0", rec.LateByMinutes)
	}
}

func TestProcess_EarliestInLatestOutWin(t *testing.T) {
	store := newFakeStore()
	store.addEmployee(1, "101")
	pipeline := newTestPipeline(store)
	device := &storage.Device{UUID: "dev-1", SerialNumber: "SN1"}

	_, err := pipeline.Process(context.Background(), device, []protocol.RawEvent{
		punch("101", day(9, 30), storage.LogCheckIn),
		punch("101", day(8, 55), storage.LogCheckIn),
		punch("101", day(16, 0), storage.LogCheckOut),
		punch("101", day(17, 10), storage.LogCheckOut),
	})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	rec := store.record(1, "2026-03-02")
	if !rec.CheckIn.Equal(day(8, 55)) {
		t.Errorf("check_in = %v, want 08:55", rec.CheckIn)
	}
	if !rec.CheckOut.Equal(day(17, 10)) {
		t.Errorf("check_out = %v, want 17:10", rec.CheckOut)
	}
	if rec.Status != storage.StatusPresent {
		t.Errorf("status = %s, want present", rec.Status)
	}
}

func TestManualEntry_TagsSource(t *testing.T) {
	store := newFakeStore()
	store.addEmployee(1, "101")
	pipeline := newTestPipeline(store)

	checkIn := day(9, 0)
	checkOut := day(17, 0)
	rec, err := pipeline.ManualEntry(context.Background(), 1, "2026-03-02", &checkIn, &checkOut)
	if err != nil {
		t.Fatalf("ManualEntry failed: %v", err)
	}
	if rec.EntrySource != storage.SourceManual {
		t.Errorf("entry_source = %s, want manual", rec.EntrySource)
	}
	if rec.TotalHours != 8 {
		t.Errorf("total_hours = %v, want 8", rec.TotalHours)
	}

	stored := store.record(1, "2026-03-02")
	if stored == nil || stored.EntrySource != storage.SourceManual {
		t.Errorf("stored record not tagged manual: %+v", stored)
	}
}

func TestManualEntry_UnknownEmployee(t *testing.T) {
	store := newFakeStore()
	pipeline := newTestPipeline(store)

	checkIn := day(9, 0)
	_, err := pipeline.ManualEntry(context.Background(), 99, "2026-03-02", &checkIn, nil)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if store.record(99, "2026-03-02") != nil {
		t.Error("record written for nonexistent employee")
	}
}

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	km := newKeyedMutex()

	var inside int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.lock("1/2026-03-02")
			defer unlock()

			mu.Lock()
			inside++
			if inside > 1 {
				t.Error("two holders inside the same key")
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()

	km.mu.Lock()
	remaining := len(km.locks)
	km.mu.Unlock()
	if remaining != 0 {
		t.Errorf("lock map not drained, %d entries remain", remaining)
	}
}

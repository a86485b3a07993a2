package reconcile

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/mubeen104/uips-attendance/internal/storage"
)

// 2026-03-02 is a Monday, 2026-03-01 a Sunday.
const (
	monday = "2026-03-02"
	sunday = "2026-03-01"
)

type fakeReconcileStore struct {
	mu sync.Mutex

	employees   []storage.Employee
	schedules   map[int64]*storage.AttendanceSchedule // per employee, same for all days
	records     map[string]*storage.AttendanceRecord  // "employeeID/date"
	leaves      map[string]bool                       // approved leave per "employeeID/date"
	allocations map[int64][]storage.LeaveAllocation

	absences []storage.AbsenceRecord
	// allocation IDs whose balance is exhausted regardless of Remaining
	exhausted map[int64]bool
	// employee IDs whose schedule lookup fails
	brokenSchedule map[int64]bool
}

func newFakeReconcileStore() *fakeReconcileStore {
	return &fakeReconcileStore{
		schedules:      make(map[int64]*storage.AttendanceSchedule),
		records:        make(map[string]*storage.AttendanceRecord),
		leaves:         make(map[string]bool),
		allocations:    make(map[int64][]storage.LeaveAllocation),
		exhausted:      make(map[int64]bool),
		brokenSchedule: make(map[int64]bool),
	}
}

func (f *fakeReconcileStore) addEmployee(id int64) {
	f.employees = append(f.employees, storage.Employee{
		ID: id, FullName: fmt.Sprintf("Employee %d", id),
		Email: fmt.Sprintf("e%d@example.com", id), IsActive: true,
	})
}

func (f *fakeReconcileStore) ListActiveEmployees(context.Context) ([]storage.Employee, error) {
	return f.employees, nil
}

func (f *fakeReconcileStore) GetSchedule(_ context.Context, employeeID int64, dayOfWeek int) (*storage.AttendanceSchedule, error) {
	if f.brokenSchedule[employeeID] {
		return nil, fmt.Errorf("schedule lookup exploded")
	}
	if s, ok := f.schedules[employeeID]; ok {
		return s, nil
	}
	return storage.DefaultSchedule(employeeID, dayOfWeek), nil
}

func (f *fakeReconcileStore) GetAttendanceRecord(_ context.Context, employeeID int64, date string) (*storage.AttendanceRecord, error) {
	rec, ok := f.records[fmt.Sprintf("%d/%s", employeeID, date)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return rec, nil
}

func (f *fakeReconcileStore) ApprovedLeaveExists(_ context.Context, employeeID int64, date string) (bool, error) {
	return f.leaves[fmt.Sprintf("%d/%s", employeeID, date)], nil
}

func (f *fakeReconcileStore) AbsenceExists(_ context.Context, employeeID int64, date string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.absences {
		if a.EmployeeID == employeeID && a.Date == date {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeReconcileStore) ListLeaveAllocations(_ context.Context, employeeID int64) ([]storage.LeaveAllocation, error) {
	return f.allocations[employeeID], nil
}

func (f *fakeReconcileStore) CreateAbsenceWithDeduction(_ context.Context, absence *storage.AbsenceRecord, allocationID *int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, a := range f.absences {
		if a.EmployeeID == absence.EmployeeID && a.Date == absence.Date {
			return storage.ErrDuplicateAbsence
		}
	}
	if allocationID != nil {
		if f.exhausted[*allocationID] {
			return storage.ErrInsufficientBalance
		}
		for id, allocs := range f.allocations {
			for i := range allocs {
				if allocs[i].ID == *allocationID {
					f.allocations[id][i].UsedDays += absence.DaysDeducted
				}
			}
		}
	}

	absence.ProcessedAt = time.Now().UTC()
	f.absences = append(f.absences, *absence)
	return nil
}

func newTestReconciler(store Store) *Reconciler {
	return New(store, DefaultLeavePolicy(), nil)
}

func TestRun_AbsentEmployee_DeductsAnnualFirst(t *testing.T) {
	store := newFakeReconcileStore()
	store.addEmployee(1)
	store.allocations[1] = []storage.LeaveAllocation{
		{ID: 10, EmployeeID: 1, LeaveTypeID: 2, LeaveTypeCode: "casual", AllocatedDays: 5},
		{ID: 11, EmployeeID: 1, LeaveTypeID: 1, LeaveTypeCode: "annual", AllocatedDays: 20},
	}

	summary, err := newTestReconciler(store).Run(context.Background(), monday)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.Absences != 1 || summary.Deductions != 1 || summary.Unfunded != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if len(store.absences) != 1 {
		t.Fatalf("expected 1 absence, got %d", len(store.absences))
	}

	absence := store.absences[0]
	if !absence.LeaveDeducted || absence.LeaveTypeID == nil || *absence.LeaveTypeID != 1 {
		t.Errorf("deduction did not hit annual: %+v", absence)
	}
	if got := store.allocations[1][1].UsedDays; got != 1 {
		t.Errorf("annual used_days = %v, want 1", got)
	}
	if got := store.allocations[1][0].UsedDays; got != 0 {
		t.Errorf("casual used_days = %v, want 0", got)
	}
}

func TestRun_NonWorkingDay_Skipped(t *testing.T) {
	store := newFakeReconcileStore()
	store.addEmployee(1)

	summary, err := newTestReconciler(store).Run(context.Background(), sunday)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.SkippedNonWorking != 1 || summary.Absences != 0 {
		t.Errorf("unexpected summary: %+v", summary)
	}
}

func TestRun_PresentEmployee_Skipped(t *testing.T) {
	store := newFakeReconcileStore()
	store.addEmployee(1)
	checkIn := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	store.records["1/"+monday] = &storage.AttendanceRecord{
		EmployeeID: 1, Date: monday, CheckIn: &checkIn, Status: storage.StatusPresent,
	}

	summary, err := newTestReconciler(store).Run(context.Background(), monday)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.SkippedPresent != 1 || summary.Absences != 0 {
		t.Errorf("unexpected summary: %+v", summary)
	}
}

func TestRun_ApprovedLeave_Skipped(t *testing.T) {
	store := newFakeReconcileStore()
	store.addEmployee(1)
	store.leaves["1/"+monday] = true

	summary, err := newTestReconciler(store).Run(context.Background(), monday)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.SkippedOnLeave != 1 || summary.Absences != 0 {
		t.Errorf("unexpected summary: %+v", summary)
	}
}

func TestRun_Rerun_NeverDoubleDeducts(t *testing.T) {
	store := newFakeReconcileStore()
	store.addEmployee(1)
	store.allocations[1] = []storage.LeaveAllocation{
		{ID: 10, EmployeeID: 1, LeaveTypeID: 1, LeaveTypeCode: "annual", AllocatedDays: 20},
	}

	reconciler := newTestReconciler(store)
	if _, err := reconciler.Run(context.Background(), monday); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
	summary, err := reconciler.Run(context.Background(), monday)
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}

	if summary.SkippedExisting != 1 || summary.Absences != 0 {
		t.Errorf("rerun summary: %+v", summary)
	}
	if len(store.absences) != 1 {
		t.Errorf("expected 1 absence after rerun, got %d", len(store.absences))
	}
	if got := store.allocations[1][0].UsedDays; got != 1 {
		t.Errorf("used_days = %v after rerun, want 1", got)
	}
}

func TestRun_NoBalance_RecordsUnfundedAbsence(t *testing.T) {
	store := newFakeReconcileStore()
	store.addEmployee(1)
	store.allocations[1] = []storage.LeaveAllocation{
		{ID: 10, EmployeeID: 1, LeaveTypeID: 1, LeaveTypeCode: "annual", AllocatedDays: 5, UsedDays: 5},
	}

	summary, err := newTestReconciler(store).Run(context.Background(), monday)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.Absences != 1 || summary.Unfunded != 1 || summary.Deductions != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	absence := store.absences[0]
	if absence.LeaveDeducted || absence.LeaveTypeID != nil || absence.DaysDeducted != 0 {
		t.Errorf("unfunded absence carries deduction fields: %+v", absence)
	}
}

func TestRun_BalanceRace_FallsBackToUnfunded(t *testing.T) {
	store := newFakeReconcileStore()
	store.addEmployee(1)
	store.allocations[1] = []storage.LeaveAllocation{
		{ID: 10, EmployeeID: 1, LeaveTypeID: 1, LeaveTypeCode: "annual", AllocatedDays: 20},
	}
	// Remaining() says yes but the conditional decrement loses the race.
	store.exhausted[10] = true

	summary, err := newTestReconciler(store).Run(context.Background(), monday)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.Absences != 1 || summary.Unfunded != 1 || summary.Deductions != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if store.absences[0].LeaveDeducted {
		t.Errorf("absence marked deducted despite lost race")
	}
}

func TestRun_OneFailure_DoesNotAbortBatch(t *testing.T) {
	store := newFakeReconcileStore()
	store.addEmployee(1)
	store.addEmployee(2)
	store.brokenSchedule[1] = true

	summary, err := newTestReconciler(store).Run(context.Background(), monday)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(summary.Unresolved) != 1 {
		t.Fatalf("unresolved = %v, want one entry", summary.Unresolved)
	}
	// Employee 2 was still reconciled.
	if summary.Absences != 1 {
		t.Errorf("absences = %d, want 1", summary.Absences)
	}
}

func TestLeavePolicy_Pick(t *testing.T) {
	allocations := []storage.LeaveAllocation{
		{ID: 1, LeaveTypeCode: "annual", AllocatedDays: 5, UsedDays: 5},
		{ID: 2, LeaveTypeCode: "casual", AllocatedDays: 5, UsedDays: 2},
		{ID: 3, LeaveTypeCode: "sick", AllocatedDays: 5, UsedDays: 0},
	}

	tests := []struct {
		name   string
		policy LeavePolicy
		want   int64 // 0 = nil
	}{
		{"priority order", DefaultLeavePolicy(), 2},
		{"priority exhausted falls through", LeavePolicy{Priority: []string{"annual"}, AnyWithBalance: true}, 2},
		{"no fallthrough", LeavePolicy{Priority: []string{"annual"}, AnyWithBalance: false}, 0},
		{"unknown code with fallthrough", LeavePolicy{Priority: []string{"parental"}, AnyWithBalance: true}, 2},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.policy.pick(allocations, 1)
			if tc.want == 0 {
				if got != nil {
					t.Fatalf("pick = %+v, want nil", got)
				}
				return
			}
			if got == nil || got.ID != tc.want {
				t.Fatalf("pick = %+v, want allocation %d", got, tc.want)
			}
		})
	}
}

func TestLoadLeavePolicy_File(t *testing.T) {
	path := t.TempDir() + "/policy.yaml"
	content := "priority: [sick, annual]\nany_with_balance: false\nabsence_type: unapproved\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	policy, err := LoadLeavePolicy(path)
	if err != nil {
		t.Fatalf("LoadLeavePolicy failed: %v", err)
	}
	if len(policy.Priority) != 2 || policy.Priority[0] != "sick" {
		t.Errorf("priority = %v", policy.Priority)
	}
	if policy.AnyWithBalance {
		t.Errorf("any_with_balance should be false")
	}
	if policy.AbsenceType != "unapproved" {
		t.Errorf("absence_type = %q", policy.AbsenceType)
	}
}

func TestLoadLeavePolicy_EmptyPath_UsesDefault(t *testing.T) {
	policy, err := LoadLeavePolicy("")
	if err != nil {
		t.Fatalf("LoadLeavePolicy failed: %v", err)
	}
	def := DefaultLeavePolicy()
	if len(policy.Priority) != len(def.Priority) || policy.AbsenceType != def.AbsenceType {
		t.Errorf("policy = %+v, want default %+v", policy, def)
	}
}

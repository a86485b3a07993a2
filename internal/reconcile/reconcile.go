// Package reconcile compares each active employee's schedule against the
// day's attendance and approved-leave state, producing absence records and
// automatic leave deductions. It is the only writer of either.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mubeen104/uips-attendance/internal/notify"
	"github.com/mubeen104/uips-attendance/internal/storage"
)

// Store is the slice of the storage provider the reconciler needs.
type Store interface {
	ListActiveEmployees(ctx context.Context) ([]storage.Employee, error)
	GetSchedule(ctx context.Context, employeeID int64, dayOfWeek int) (*storage.AttendanceSchedule, error)
	GetAttendanceRecord(ctx context.Context, employeeID int64, date string) (*storage.AttendanceRecord, error)
	ApprovedLeaveExists(ctx context.Context, employeeID int64, date string) (bool, error)
	AbsenceExists(ctx context.Context, employeeID int64, date string) (bool, error)
	ListLeaveAllocations(ctx context.Context, employeeID int64) ([]storage.LeaveAllocation, error)
	CreateAbsenceWithDeduction(ctx context.Context, absence *storage.AbsenceRecord, allocationID *int64) error
}

type Reconciler struct {
	store    Store
	policy   LeavePolicy
	notifier notify.Notifier
	logger   *slog.Logger
}

func New(store Store, policy LeavePolicy, notifier notify.Notifier) *Reconciler {
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	return &Reconciler{
		store:    store,
		policy:   policy,
		notifier: notifier,
		logger:   slog.With("component", "reconcile"),
	}
}

// Summary is the job report; unresolved pairs need operator follow-up.
type Summary struct {
	Date      string `json:"date"`
	Employees int    `json:"employees"`

	Absences   int `json:"absences"`
	Deductions int `json:"deductions"`
	// Absences recorded without a deduction because no balance covered it.
	Unfunded int `json:"unfunded"`

	SkippedNonWorking int `json:"skipped_non_working"`
	SkippedPresent    int `json:"skipped_present"`
	SkippedOnLeave    int `json:"skipped_on_leave"`
	SkippedExisting   int `json:"skipped_existing"`

	Unresolved []string `json:"unresolved,omitempty"`
}

// Run reconciles one calendar date, typically yesterday. Each employee is a
// failure-isolated unit: one bad row never aborts the batch. Re-running the
// same date is safe; existing absence rows are skipped, never duplicated or
// double-deducted.
func (r *Reconciler) Run(ctx context.Context, date string) (Summary, error) {
	summary := Summary{Date: date}

	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return summary, fmt.Errorf("bad date %q: %w", date, err)
	}

	employees, err := r.store.ListActiveEmployees(ctx)
	if err != nil {
		return summary, err
	}
	summary.Employees = len(employees)

	for _, employee := range employees {
		if err := r.reconcileEmployee(ctx, employee, date, day, &summary); err != nil {
			summary.Unresolved = append(summary.Unresolved, fmt.Sprintf("employee %d: %v", employee.ID, err))
			r.logger.Error("Reconciliation failed for employee", "employee", employee.ID, "date", date, "error", err)
		}
	}

	r.logger.Info("Reconciliation finished",
		"date", date,
		"employees", summary.Employees,
		"absences", summary.Absences,
		"deductions", summary.Deductions,
		"unresolved", len(summary.Unresolved),
	)
	return summary, nil
}

func (r *Reconciler) reconcileEmployee(ctx context.Context, employee storage.Employee, date string, day time.Time, summary *Summary) error {
	schedule, err := r.store.GetSchedule(ctx, employee.ID, int(day.Weekday()))
	if err != nil {
		return err
	}
	if !schedule.IsWorkingDay {
		summary.SkippedNonWorking++
		return nil
	}

	rec, err := r.store.GetAttendanceRecord(ctx, employee.ID, date)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	if rec != nil && rec.CheckIn != nil {
		summary.SkippedPresent++
		return nil
	}

	onLeave, err := r.store.ApprovedLeaveExists(ctx, employee.ID, date)
	if err != nil {
		return err
	}
	if onLeave {
		summary.SkippedOnLeave++
		return nil
	}

	exists, err := r.store.AbsenceExists(ctx, employee.ID, date)
	if err != nil {
		return err
	}
	if exists {
		summary.SkippedExisting++
		return nil
	}

	allocations, err := r.store.ListLeaveAllocations(ctx, employee.ID)
	if err != nil {
		return err
	}

	const days = 1.0
	allocation := r.policy.pick(allocations, days)

	absence := &storage.AbsenceRecord{
		EmployeeID:  employee.ID,
		Date:        date,
		AbsenceType: r.policy.AbsenceType,
	}

	if allocation != nil {
		absence.LeaveDeducted = true
		absence.LeaveTypeID = &allocation.LeaveTypeID
		absence.DaysDeducted = days

		err = r.store.CreateAbsenceWithDeduction(ctx, absence, &allocation.ID)
		switch {
		case errors.Is(err, storage.ErrInsufficientBalance):
			// Balance moved under us; record the absence unfunded.
			allocation = nil
		case errors.Is(err, storage.ErrDuplicateAbsence):
			summary.SkippedExisting++
			return nil
		case err != nil:
			return err
		default:
			summary.Absences++
			summary.Deductions++
			r.notifyAbsence(employee, date, true)
			return nil
		}
	}

	// No balance anywhere: absence is still recorded, flagged for HR.
	absence.LeaveDeducted = false
	absence.LeaveTypeID = nil
	absence.DaysDeducted = 0

	err = r.store.CreateAbsenceWithDeduction(ctx, absence, nil)
	if errors.Is(err, storage.ErrDuplicateAbsence) {
		summary.SkippedExisting++
		return nil
	}
	if err != nil {
		return err
	}

	summary.Absences++
	summary.Unfunded++
	r.notifyAbsence(employee, date, false)
	return nil
}

func (r *Reconciler) notifyAbsence(employee storage.Employee, date string, deducted bool) {
	message := fmt.Sprintf("You were recorded absent on %s.", date)
	if deducted {
		message += " One day was deducted from your leave balance."
	} else {
		message += " No leave balance was available; HR will follow up."
	}

	go r.notifier.Send(context.Background(), notify.Notification{
		Recipient: employee.Email,
		Category:  notify.CategoryAbsence,
		Title:     "Absence recorded",
		Message:   message,
	})
}

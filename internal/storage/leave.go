package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

func (p *SQLProvider) ListActiveEmployees(ctx context.Context) ([]Employee, error) {
	var employees []Employee
	err := p.db.SelectContext(ctx, &employees, p.db.Rebind(`
		SELECT id, full_name, email, device_user_id, is_active
		FROM employees WHERE is_active = ? ORDER BY id`), true)
	return employees, err
}

func (p *SQLProvider) GetEmployee(ctx context.Context, id int64) (*Employee, error) {
	var e Employee
	err := p.db.GetContext(ctx, &e, p.db.Rebind(`
		SELECT id, full_name, email, device_user_id, is_active FROM employees WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ResolveDeviceUser maps a terminal-reported user identifier to an employee.
func (p *SQLProvider) ResolveDeviceUser(ctx context.Context, deviceUserID string) (*Employee, error) {
	var e Employee
	err := p.db.GetContext(ctx, &e, p.db.Rebind(`
		SELECT id, full_name, email, device_user_id, is_active FROM employees WHERE device_user_id = ?`),
		deviceUserID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (p *SQLProvider) UpsertEmployee(ctx context.Context, e *Employee) error {
	var query string
	switch p.driver {
	case "mysql":
		query = `INSERT INTO employees (full_name, email, device_user_id, is_active)
			VALUES (?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE
				full_name = VALUES(full_name), email = VALUES(email), is_active = VALUES(is_active)`
	default:
		query = `INSERT INTO employees (full_name, email, device_user_id, is_active)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (device_user_id) DO UPDATE SET
				full_name = excluded.full_name, email = excluded.email, is_active = excluded.is_active`
	}
	_, err := p.db.ExecContext(ctx, p.db.Rebind(query),
		e.FullName, e.Email, e.DeviceUserID, e.IsActive)
	return err
}

func (p *SQLProvider) ApprovedLeaveExists(ctx context.Context, employeeID int64, date string) (bool, error) {
	var count int
	err := p.db.GetContext(ctx, &count, p.db.Rebind(`
		SELECT COUNT(*) FROM leave_requests
		WHERE employee_id = ? AND status = 'approved' AND start_date <= ? AND end_date >= ?`),
		employeeID, date, date)
	return count > 0, err
}

func (p *SQLProvider) ListLeaveAllocations(ctx context.Context, employeeID int64) ([]LeaveAllocation, error) {
	var allocations []LeaveAllocation
	err := p.db.SelectContext(ctx, &allocations, p.db.Rebind(`
		SELECT a.id, a.employee_id, a.leave_type_id, t.code AS leave_type_code, a.allocated_days, a.used_days
		FROM leave_allocations a JOIN leave_types t ON t.id = a.leave_type_id
		WHERE a.employee_id = ?`),
		employeeID)
	return allocations, err
}

func (p *SQLProvider) AbsenceExists(ctx context.Context, employeeID int64, date string) (bool, error) {
	var count int
	err := p.db.GetContext(ctx, &count, p.db.Rebind(`
		SELECT COUNT(*) FROM absence_records WHERE employee_id = ? AND date = ?`),
		employeeID, date)
	return count > 0, err
}

func (p *SQLProvider) CreateAbsenceWithDeduction(ctx context.Context, absence *AbsenceRecord, allocationID *int64) error {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if absence.ProcessedAt.IsZero() {
		absence.ProcessedAt = time.Now().UTC()
	}

	res, err := tx.ExecContext(ctx, p.db.Rebind(`
		INSERT INTO absence_records (employee_id, date, absence_type, leave_deducted, leave_type_id, days_deducted, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		absence.EmployeeID, absence.Date, absence.AbsenceType,
		absence.LeaveDeducted, absence.LeaveTypeID, absence.DaysDeducted, absence.ProcessedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateAbsence
		}
		return err
	}
	if id, err := res.LastInsertId(); err == nil {
		absence.ID = id
	}

	if allocationID != nil {
		// Conditional decrement: no row moves unless the balance covers it.
		res, err := tx.ExecContext(ctx, p.db.Rebind(`
			UPDATE leave_allocations SET used_days = used_days + ?
			WHERE id = ? AND allocated_days - used_days >= ?`),
			absence.DaysDeducted, *allocationID, absence.DaysDeducted,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			// Rolls back the absence row with it.
			return ErrInsufficientBalance
		}
	}

	return tx.Commit()
}

func (p *SQLProvider) ListAbsencesByDate(ctx context.Context, date string) ([]AbsenceRecord, error) {
	var absences []AbsenceRecord
	err := p.db.SelectContext(ctx, &absences, p.db.Rebind(`
		SELECT id, employee_id, date, absence_type, leave_deducted, leave_type_id, days_deducted, processed_at
		FROM absence_records WHERE date = ? ORDER BY employee_id`),
		date)
	return absences, err
}

// isUniqueViolation sniffs driver error text; neither driver exports a
// stable typed error for constraint violations that works across both.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || // sqlite3
		strings.Contains(msg, "Error 1062") // mysql duplicate entry
}

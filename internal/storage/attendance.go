package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

// InsertLogEntry appends a raw event. A repeated event (same device, device
// user, time and type) is silently absorbed; the return value reports
// whether a row was actually written.
func (p *SQLProvider) InsertLogEntry(ctx context.Context, entry *AttendanceLogEntry) (bool, error) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	res, err := p.db.ExecContext(ctx, p.db.Rebind(p.insertIgnore()+` INTO attendance_logs
		(id, device_uuid, employee_id, device_user_id, log_time, log_type, verification_method, match_score, processed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		entry.ID, entry.DeviceUUID, entry.EmployeeID, entry.DeviceUserID,
		entry.LogTime.UTC(), entry.LogType, entry.VerificationMethod, entry.MatchScore,
		entry.Processed, entry.CreatedAt,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (p *SQLProvider) ListDayLogs(ctx context.Context, employeeID int64, date string) ([]AttendanceLogEntry, error) {
	dayStart, err := time.Parse("2006-01-02", date)
	if err != nil {
		return nil, err
	}
	dayEnd := dayStart.Add(24 * time.Hour)

	var logs []AttendanceLogEntry
	err = p.db.SelectContext(ctx, &logs, p.db.Rebind(`
		SELECT id, device_uuid, employee_id, device_user_id, log_time, log_type, verification_method, match_score, processed, created_at
		FROM attendance_logs
		WHERE employee_id = ? AND log_time >= ? AND log_time < ?
		ORDER BY log_time`),
		employeeID, dayStart, dayEnd)
	return logs, err
}

func (p *SQLProvider) MarkLogsProcessed(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`UPDATE attendance_logs SET processed = ? WHERE id IN (?)`, true, ids)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, p.db.Rebind(query), args...)
	return err
}

func (p *SQLProvider) UpsertAttendanceRecord(ctx context.Context, rec *AttendanceRecord) error {
	rec.UpdatedAt = time.Now().UTC()

	var query string
	switch p.driver {
	case "mysql":
		query = `INSERT INTO attendance_records
			(employee_id, date, check_in, check_out, status, entry_source, total_hours, late_by_minutes, overtime_minutes, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE
				check_in = VALUES(check_in), check_out = VALUES(check_out),
				status = VALUES(status), entry_source = VALUES(entry_source),
				total_hours = VALUES(total_hours), late_by_minutes = VALUES(late_by_minutes),
				overtime_minutes = VALUES(overtime_minutes), updated_at = VALUES(updated_at)`
	default:
		query = `INSERT INTO attendance_records
			(employee_id, date, check_in, check_out, status, entry_source, total_hours, late_by_minutes, overtime_minutes, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (employee_id, date) DO UPDATE SET
				check_in = excluded.check_in, check_out = excluded.check_out,
				status = excluded.status, entry_source = excluded.entry_source,
				total_hours = excluded.total_hours, late_by_minutes = excluded.late_by_minutes,
				overtime_minutes = excluded.overtime_minutes, updated_at = excluded.updated_at`
	}

	_, err := p.db.ExecContext(ctx, p.db.Rebind(query),
		rec.EmployeeID, rec.Date, rec.CheckIn, rec.CheckOut, rec.Status, rec.EntrySource,
		rec.TotalHours, rec.LateByMinutes, rec.OvertimeMinutes, rec.UpdatedAt,
	)
	return err
}

func (p *SQLProvider) GetAttendanceRecord(ctx context.Context, employeeID int64, date string) (*AttendanceRecord, error) {
	var rec AttendanceRecord
	err := p.db.GetContext(ctx, &rec, p.db.Rebind(`
		SELECT id, employee_id, date, check_in, check_out, status, entry_source, total_hours, late_by_minutes, overtime_minutes, updated_at
		FROM attendance_records WHERE employee_id = ? AND date = ?`),
		employeeID, date)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (p *SQLProvider) ListAttendanceByDate(ctx context.Context, date string) ([]AttendanceRecord, error) {
	var recs []AttendanceRecord
	err := p.db.SelectContext(ctx, &recs, p.db.Rebind(`
		SELECT id, employee_id, date, check_in, check_out, status, entry_source, total_hours, late_by_minutes, overtime_minutes, updated_at
		FROM attendance_records WHERE date = ? ORDER BY employee_id`),
		date)
	return recs, err
}

// GetSchedule returns the configured schedule for the weekday, or the
// product default (Mon-Fri 09:00-17:00) when none is configured.
func (p *SQLProvider) GetSchedule(ctx context.Context, employeeID int64, dayOfWeek int) (*AttendanceSchedule, error) {
	var s AttendanceSchedule
	err := p.db.GetContext(ctx, &s, p.db.Rebind(`
		SELECT id, employee_id, day_of_week, is_working_day, check_in_time, check_out_time
		FROM attendance_schedules WHERE employee_id = ? AND day_of_week = ?`),
		employeeID, dayOfWeek)
	if errors.Is(err, sql.ErrNoRows) {
		return DefaultSchedule(employeeID, dayOfWeek), nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func DefaultSchedule(employeeID int64, dayOfWeek int) *AttendanceSchedule {
	return &AttendanceSchedule{
		EmployeeID:   employeeID,
		DayOfWeek:    dayOfWeek,
		IsWorkingDay: dayOfWeek >= 1 && dayOfWeek <= 5,
		CheckInTime:  "09:00",
		CheckOutTime: "17:00",
	}
}

func (p *SQLProvider) UpsertSchedule(ctx context.Context, s *AttendanceSchedule) error {
	var query string
	switch p.driver {
	case "mysql":
		query = `INSERT INTO attendance_schedules (employee_id, day_of_week, is_working_day, check_in_time, check_out_time)
			VALUES (?, ?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE
				is_working_day = VALUES(is_working_day),
				check_in_time = VALUES(check_in_time), check_out_time = VALUES(check_out_time)`
	default:
		query = `INSERT INTO attendance_schedules (employee_id, day_of_week, is_working_day, check_in_time, check_out_time)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (employee_id, day_of_week) DO UPDATE SET
				is_working_day = excluded.is_working_day,
				check_in_time = excluded.check_in_time, check_out_time = excluded.check_out_time`
	}
	_, err := p.db.ExecContext(ctx, p.db.Rebind(query),
		s.EmployeeID, s.DayOfWeek, s.IsWorkingDay, s.CheckInTime, s.CheckOutTime)
	return err
}

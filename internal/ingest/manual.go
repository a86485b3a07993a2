package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/mubeen104/uips-attendance/internal/storage"
)

// ManualEntry writes an attendance record entered by an operator instead of
// a terminal. Manual records are tagged as such; callers are expected to
// audit the action.
func (p *Pipeline) ManualEntry(ctx context.Context, employeeID int64, date string, checkIn, checkOut *time.Time) (*storage.AttendanceRecord, error) {
	unlock := p.days.lock(fmt.Sprintf("%d/%s", employeeID, date))
	defer unlock()

	if _, err := p.store.GetEmployee(ctx, employeeID); err != nil {
		return nil, fmt.Errorf("employee %d: %w", employeeID, err)
	}

	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return nil, err
	}

	schedule, err := p.store.GetSchedule(ctx, employeeID, int(day.Weekday()))
	if err != nil {
		return nil, err
	}

	var logs []storage.AttendanceLogEntry
	if checkIn != nil {
		logs = append(logs, storage.AttendanceLogEntry{LogTime: checkIn.UTC(), LogType: storage.LogCheckIn})
	}
	if checkOut != nil {
		logs = append(logs, storage.AttendanceLogEntry{LogTime: checkOut.UTC(), LogType: storage.LogCheckOut})
	}

	rec := p.buildRecord(employeeID, date, day, logs, schedule)
	rec.EntrySource = storage.SourceManual

	if err := p.store.UpsertAttendanceRecord(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

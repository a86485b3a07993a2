// Package ingest normalizes raw terminal events into the canonical
// attendance timeline: append-only log entries first, then a derived
// per-employee-per-day attendance record.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/mubeen104/uips-attendance/internal/protocol"
	"github.com/mubeen104/uips-attendance/internal/storage"
)

// Store is the slice of the storage provider the pipeline needs.
type Store interface {
	InsertLogEntry(ctx context.Context, entry *storage.AttendanceLogEntry) (bool, error)
	ResolveDeviceUser(ctx context.Context, deviceUserID string) (*storage.Employee, error)
	GetEmployee(ctx context.Context, id int64) (*storage.Employee, error)
	ListDayLogs(ctx context.Context, employeeID int64, date string) ([]storage.AttendanceLogEntry, error)
	MarkLogsProcessed(ctx context.Context, ids []string) error
	UpsertAttendanceRecord(ctx context.Context, rec *storage.AttendanceRecord) error
	GetSchedule(ctx context.Context, employeeID int64, dayOfWeek int) (*storage.AttendanceSchedule, error)
}

type Pipeline struct {
	store Store
	// Lateness tolerated before a day turns late.
	grace  time.Duration
	days   *keyedMutex
	logger *slog.Logger
}

func NewPipeline(store Store, grace time.Duration) *Pipeline {
	if grace < 0 {
		grace = 0
	}
	return &Pipeline{
		store:  store,
		grace:  grace,
		days:   newKeyedMutex(),
		logger: slog.With("component", "ingest"),
	}
}

// Result summarizes one processed batch.
type Result struct {
	Inserted   int
	Duplicates int
	Unknown    int
	Folded     int
}

type dayKey struct {
	employeeID int64
	date       string
}

// Process persists a batch of raw events and folds every touched
// (employee, day) into its attendance record. Replaying the same batch
// yields the same records.
func (p *Pipeline) Process(ctx context.Context, device *storage.Device, events []protocol.RawEvent) (Result, error) {
	var result Result
	touched := make(map[dayKey]struct{})

	for _, event := range events {
		entry := &storage.AttendanceLogEntry{
			ID:                 ulid.Make().String(),
			DeviceUUID:         device.UUID,
			DeviceUserID:       event.DeviceUserID,
			LogTime:            event.Time.UTC(),
			LogType:            event.Type,
			VerificationMethod: event.VerificationMethod,
			MatchScore:         event.MatchScore,
		}

		employee, err := p.store.ResolveDeviceUser(ctx, event.DeviceUserID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			// Keep the raw entry for audit, skip folding.
			if _, err := p.store.InsertLogEntry(ctx, entry); err != nil {
				return result, fmt.Errorf("persisting unmapped event: %w", err)
			}
			result.Unknown++
			p.logger.Warn("Event from unmapped device user", "device", device.SerialNumber, "device_user", event.DeviceUserID)
			continue
		case err != nil:
			return result, err
		}

		entry.EmployeeID = &employee.ID

		inserted, err := p.store.InsertLogEntry(ctx, entry)
		if err != nil {
			return result, err
		}
		if !inserted {
			// Repeated push of the same event: silently absorbed.
			result.Duplicates++
			continue
		}
		result.Inserted++

		touched[dayKey{employee.ID, entry.LogTime.Format("2006-01-02")}] = struct{}{}
	}

	for key := range touched {
		if err := p.Fold(ctx, key.employeeID, key.date); err != nil {
			return result, fmt.Errorf("folding %s for employee %d: %w", key.date, key.employeeID, err)
		}
		result.Folded++
	}

	return result, nil
}

// Fold recomputes the attendance record for one employee-day from all of
// its raw entries. Recomputing from the full day keeps folding idempotent
// under replay; the per-day lock keeps concurrent push and pull folds from
// losing updates.
func (p *Pipeline) Fold(ctx context.Context, employeeID int64, date string) error {
	unlock := p.days.lock(fmt.Sprintf("%d/%s", employeeID, date))
	defer unlock()

	logs, err := p.store.ListDayLogs(ctx, employeeID, date)
	if err != nil {
		return err
	}
	if len(logs) == 0 {
		return nil
	}

	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return err
	}

	schedule, err := p.store.GetSchedule(ctx, employeeID, int(day.Weekday()))
	if err != nil {
		return err
	}

	rec := p.buildRecord(employeeID, date, day, logs, schedule)
	if err := p.store.UpsertAttendanceRecord(ctx, rec); err != nil {
		return err
	}

	var unprocessed []string
	for _, entry := range logs {
		if !entry.Processed {
			unprocessed = append(unprocessed, entry.ID)
		}
	}
	return p.store.MarkLogsProcessed(ctx, unprocessed)
}

func (p *Pipeline) buildRecord(employeeID int64, date string, day time.Time, logs []storage.AttendanceLogEntry, schedule *storage.AttendanceSchedule) *storage.AttendanceRecord {
	rec := &storage.AttendanceRecord{
		EmployeeID:  employeeID,
		Date:        date,
		Status:      storage.StatusPresent,
		EntrySource: storage.SourceFingerprint,
	}

	var checkIn, checkOut *time.Time
	var breaks time.Duration
	var breakStart *time.Time

	// logs are ordered by time
	for i := range logs {
		entry := logs[i]
		t := entry.LogTime

		switch entry.LogType {
		case storage.LogCheckIn:
			// Earliest check-in wins; later ones stay logged but ignored.
			if checkIn == nil || t.Before(*checkIn) {
				checkIn = &t
			}
		case storage.LogCheckOut:
			if checkOut == nil || t.After(*checkOut) {
				checkOut = &t
			}
		case storage.LogBreakStart:
			if breakStart == nil {
				breakStart = &t
			}
		case storage.LogBreakEnd:
			if breakStart != nil && t.After(*breakStart) {
				breaks += t.Sub(*breakStart)
				breakStart = nil
			}
		}
	}

	rec.CheckIn = checkIn
	rec.CheckOut = checkOut

	scheduledIn := atTime(day, schedule.CheckInTime)
	scheduledOut := atTime(day, schedule.CheckOutTime)
	scheduled := scheduledOut.Sub(scheduledIn)

	if checkIn != nil && schedule.IsWorkingDay {
		if checkIn.After(scheduledIn.Add(p.grace)) {
			rec.Status = storage.StatusLate
			rec.LateByMinutes = int(checkIn.Sub(scheduledIn) / time.Minute)
		}
	}

	if checkIn != nil && checkOut != nil && checkOut.After(*checkIn) {
		worked := checkOut.Sub(*checkIn) - breaks
		if worked < 0 {
			worked = 0
		}
		rec.TotalHours = worked.Hours()

		if overtime := worked - scheduled; overtime > 0 {
			rec.OvertimeMinutes = int(overtime / time.Minute)
		}

		if schedule.IsWorkingDay && worked < scheduled/2 && rec.Status != storage.StatusLate {
			rec.Status = storage.StatusHalfDay
		}
	}

	return rec
}

// atTime anchors an HH:MM schedule time onto a calendar day.
func atTime(day time.Time, hhmm string) time.Time {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		t, _ = time.Parse("15:04", "09:00")
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC)
}

package storage

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mubeen104/uips-attendance/internal/config"
)

var (
	ErrNotFound = errors.New("not found")
	// Conditional leave decrement matched no row: balance exhausted or
	// concurrently consumed.
	ErrInsufficientBalance = errors.New("insufficient leave balance")
	ErrDuplicateAbsence    = errors.New("absence already recorded for date")
)

type Provider interface {
	Close() error
	GetSchemaVersion(ctx context.Context) (int, error)

	// Device registry
	CreateDevice(ctx context.Context, device *Device) error
	GetDevice(ctx context.Context, uuid string) (*Device, error)
	GetDeviceBySerial(ctx context.Context, serial string) (*Device, error)
	ListDevices(ctx context.Context) ([]Device, error)
	ListAutoSyncDevices(ctx context.Context) ([]Device, error)
	UpdateDevice(ctx context.Context, device *Device) error
	DeleteDevice(ctx context.Context, uuid string) error
	// TouchDeviceState applies an online/heartbeat observation under a
	// monotonic timestamp guard. Returns false when a newer observation
	// already won.
	TouchDeviceState(ctx context.Context, uuid string, online bool, observedAt time.Time) (bool, error)
	// UpdateDeviceSync advances the cursor and accumulates newRecords into
	// the device usage counter.
	UpdateDeviceSync(ctx context.Context, uuid string, cursor string, newRecords int, observedAt time.Time) error

	// Biometric templates
	CreateTemplateDeactivatingPrior(ctx context.Context, tpl *BiometricTemplate) error
	ListTemplatesByEmployee(ctx context.Context, employeeID int64) ([]BiometricTemplate, error)
	GetActiveTemplate(ctx context.Context, employeeID int64, finger FingerPosition) (*BiometricTemplate, error)

	// Raw attendance log
	InsertLogEntry(ctx context.Context, entry *AttendanceLogEntry) (inserted bool, err error)
	ListDayLogs(ctx context.Context, employeeID int64, date string) ([]AttendanceLogEntry, error)
	MarkLogsProcessed(ctx context.Context, ids []string) error

	// Derived attendance records
	UpsertAttendanceRecord(ctx context.Context, rec *AttendanceRecord) error
	GetAttendanceRecord(ctx context.Context, employeeID int64, date string) (*AttendanceRecord, error)
	ListAttendanceByDate(ctx context.Context, date string) ([]AttendanceRecord, error)

	// Schedules
	GetSchedule(ctx context.Context, employeeID int64, dayOfWeek int) (*AttendanceSchedule, error)
	UpsertSchedule(ctx context.Context, s *AttendanceSchedule) error

	// Employee / leave boundary
	ListActiveEmployees(ctx context.Context) ([]Employee, error)
	GetEmployee(ctx context.Context, id int64) (*Employee, error)
	ResolveDeviceUser(ctx context.Context, deviceUserID string) (*Employee, error)
	UpsertEmployee(ctx context.Context, e *Employee) error
	ApprovedLeaveExists(ctx context.Context, employeeID int64, date string) (bool, error)
	ListLeaveAllocations(ctx context.Context, employeeID int64) ([]LeaveAllocation, error)

	// Absences
	AbsenceExists(ctx context.Context, employeeID int64, date string) (bool, error)
	// CreateAbsenceWithDeduction writes the absence row and, when
	// allocationID is non-nil, decrements that allocation in the same
	// transaction. A failed decrement rolls back the absence row.
	CreateAbsenceWithDeduction(ctx context.Context, absence *AbsenceRecord, allocationID *int64) error
	ListAbsencesByDate(ctx context.Context, date string) ([]AbsenceRecord, error)

	// Sync log
	AppendSyncLog(ctx context.Context, entry *SyncLogEntry) error
	ListSyncLogs(ctx context.Context, deviceUUID string, limit int) ([]SyncLogEntry, error)
	PruneSyncLogs(ctx context.Context, olderThan time.Time) (int64, error)

	// Audit sink (write-only)
	AppendAuditEntry(ctx context.Context, entry *AuditEntry) error
}

func NewProvider(config *config.Storage) Provider {
	// The defaults always materialize the sqlite block, so the explicit
	// type selector decides, not block presence.
	switch {
	case config.Type == "mysql":
		if config.MySQL == nil {
			slog.Error("Storage type is mysql but no mysql block is configured")
			return nil
		}
		provider := NewMySQLProvider(config)
		if provider == nil {
			return nil
		}
		if err := provider.runMigrations("mysql"); err != nil {
			slog.Error("Failed to run migrations", "error", err)
			return nil
		}
		return provider

	case config.Type == "sqlite" || config.Type == "":
		if config.SQLite == nil {
			slog.Error("Storage type is sqlite but no sqlite block is configured")
			return nil
		}
		provider := NewSQLiteProvider(config)
		if provider == nil {
			return nil
		}
		if err := provider.runMigrations("sqlite3"); err != nil {
			slog.Error("Failed to run migrations", "error", err)
			return nil
		}
		return provider

	default:
		slog.Error("Unsupported storage configuration", "config", config)
	}

	return nil
}

package storage

import "time"

type ProtocolType string

const (
	ProtocolGenericTCP ProtocolType = "generic-tcp"
	ProtocolADMS       ProtocolType = "adms"
	ProtocolAnviz      ProtocolType = "anviz"
	// Serial/USB terminals reachable only through a locally deployed
	// bridge relay.
	ProtocolSerial ProtocolType = "serial"
)

type DeviceStatus string

const (
	// Self-registered push devices wait here until an admin approves them.
	DeviceStatusPending  DeviceStatus = "pending"
	DeviceStatusApproved DeviceStatus = "approved"
	DeviceStatusRejected DeviceStatus = "rejected"
)

// Device is one row of the terminal registry.
type Device struct {
	ID   int64  `db:"id"`
	UUID string `db:"uuid"`
	// Vendor-assigned identifier (serial number) as reported by the terminal.
	SerialNumber string       `db:"serial_number"`
	Name         string       `db:"name"`
	IP           string       `db:"ip"`
	Port         int          `db:"port"`
	ProtocolType ProtocolType `db:"protocol_type"`
	Status       DeviceStatus `db:"status"`

	DevicePassword *string `db:"device_password"`

	MaxUsers        int `db:"max_users"`
	MaxFingerprints int `db:"max_fingerprints"`
	MaxRecords      int `db:"max_records"`

	CurrentUsers        int `db:"current_users"`
	CurrentFingerprints int `db:"current_fingerprints"`
	CurrentRecords      int `db:"current_records"`

	IsOnline      bool       `db:"is_online"`
	LastHeartbeat *time.Time `db:"last_heartbeat"`
	LastSync      *time.Time `db:"last_sync"`
	// Timestamp of the observation the online/heartbeat fields reflect.
	// Writes carrying an older observation never overwrite a newer one.
	StateObservedAt time.Time `db:"state_observed_at"`

	AutoSyncEnabled     bool   `db:"auto_sync_enabled"`
	SyncIntervalSeconds int    `db:"sync_interval_seconds"`
	SyncCursor          string `db:"sync_cursor"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// FingerPosition enumerates the ten finger slots, left pinky = 0 .. right pinky = 9.
type FingerPosition int

type BiometricTemplate struct {
	ID         int64          `db:"id"`
	EmployeeID int64          `db:"employee_id"`
	DeviceUUID string         `db:"device_uuid"`
	Finger     FingerPosition `db:"finger_position"`
	// Vendor-specific blob, opaque to the engine.
	TemplateData []byte    `db:"template_data"`
	QualityScore int       `db:"quality_score"`
	IsActive     bool      `db:"is_active"`
	CreatedAt    time.Time `db:"created_at"`
}

type LogType string

const (
	LogCheckIn    LogType = "check_in"
	LogCheckOut   LogType = "check_out"
	LogBreakStart LogType = "break_start"
	LogBreakEnd   LogType = "break_end"
)

// AttendanceLogEntry is one raw event from a terminal. Append-only; the
// Processed flag flips false to true exactly once when the entry is folded
// into an AttendanceRecord.
type AttendanceLogEntry struct {
	// ULID: lexicographic order follows arrival time.
	ID         string `db:"id"`
	DeviceUUID string `db:"device_uuid"`
	// Nil when the device-reported user could not be resolved; the row is
	// still kept for audit.
	EmployeeID         *int64    `db:"employee_id"`
	DeviceUserID       string    `db:"device_user_id"`
	LogTime            time.Time `db:"log_time"`
	LogType            LogType   `db:"log_type"`
	VerificationMethod string    `db:"verification_method"`
	MatchScore         int       `db:"match_score"`
	Processed          bool      `db:"processed"`
	CreatedAt          time.Time `db:"created_at"`
}

type AttendanceStatus string

const (
	StatusPresent AttendanceStatus = "present"
	StatusAbsent  AttendanceStatus = "absent"
	StatusLate    AttendanceStatus = "late"
	StatusHalfDay AttendanceStatus = "half_day"
)

type EntrySource string

const (
	SourceFingerprint EntrySource = "fingerprint"
	SourceManual      EntrySource = "manual"
)

// AttendanceRecord is the derived per-employee-per-date row.
type AttendanceRecord struct {
	ID         int64  `db:"id"`
	EmployeeID int64  `db:"employee_id"`
	Date       string `db:"date"` // YYYY-MM-DD

	CheckIn  *time.Time `db:"check_in"`
	CheckOut *time.Time `db:"check_out"`

	Status      AttendanceStatus `db:"status"`
	EntrySource EntrySource      `db:"entry_source"`

	TotalHours      float64 `db:"total_hours"`
	LateByMinutes   int     `db:"late_by_minutes"`
	OvertimeMinutes int     `db:"overtime_minutes"`

	UpdatedAt time.Time `db:"updated_at"`
}

type AttendanceSchedule struct {
	ID           int64  `db:"id"`
	EmployeeID   int64  `db:"employee_id"`
	DayOfWeek    int    `db:"day_of_week"` // 0 = Sunday
	IsWorkingDay bool   `db:"is_working_day"`
	CheckInTime  string `db:"check_in_time"`  // HH:MM
	CheckOutTime string `db:"check_out_time"` // HH:MM
}

type AbsenceRecord struct {
	ID          int64  `db:"id"`
	EmployeeID  int64  `db:"employee_id"`
	Date        string `db:"date"`
	AbsenceType string `db:"absence_type"`

	LeaveDeducted bool    `db:"leave_deducted"`
	LeaveTypeID   *int64  `db:"leave_type_id"`
	DaysDeducted  float64 `db:"days_deducted"`

	ProcessedAt time.Time `db:"processed_at"`
}

type Employee struct {
	ID       int64  `db:"id"`
	FullName string `db:"full_name"`
	Email    string `db:"email"`
	// Identifier the terminals report for this person.
	DeviceUserID string `db:"device_user_id"`
	IsActive     bool   `db:"is_active"`
}

type LeaveType struct {
	ID   int64  `db:"id"`
	Code string `db:"code"` // annual, casual, sick, ...
	Name string `db:"name"`
}

type LeaveAllocation struct {
	ID            int64   `db:"id"`
	EmployeeID    int64   `db:"employee_id"`
	LeaveTypeID   int64   `db:"leave_type_id"`
	LeaveTypeCode string  `db:"leave_type_code"`
	AllocatedDays float64 `db:"allocated_days"`
	UsedDays      float64 `db:"used_days"`
}

func (a LeaveAllocation) Remaining() float64 {
	return a.AllocatedDays - a.UsedDays
}

type SyncLogEntry struct {
	ID         int64     `db:"id"`
	DeviceUUID string    `db:"device_uuid"`
	StartedAt  time.Time `db:"started_at"`
	FinishedAt time.Time `db:"finished_at"`
	Success    bool      `db:"success"`
	Pulled     int       `db:"pulled"`
	Message    string    `db:"message"`
}

// AuditEntry is an immutable activity record for admin-triggered actions.
type AuditEntry struct {
	ID        int64     `db:"id"`
	Actor     string    `db:"actor"`
	Action    string    `db:"action"`
	Resource  string    `db:"resource"`
	Diff      string    `db:"diff"`
	CreatedAt time.Time `db:"created_at"`
}

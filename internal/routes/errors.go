package routes

import (
	"errors"
	"net/http"

	"github.com/mubeen104/uips-attendance/internal/enroll"
	"github.com/mubeen104/uips-attendance/internal/protocol"
	"github.com/mubeen104/uips-attendance/internal/storage"
	"github.com/mubeen104/uips-attendance/internal/syncer"
)

// HTTPError represents an error with an associated HTTP status code and user message
type HTTPError struct {
	Err        error    // The underlying error
	StatusCode int      // HTTP status code
	Message    string   // User-friendly message
	StopCodes  []string // Optional stop codes for client-side handling
	Internal   bool     // Whether this is an internal error (hide details from user)
}

// ErrorInfo contains error metadata for user-facing errors
type ErrorInfo struct {
	Message   string
	StopCodes []string
}

// Error implements the error interface
func (e *HTTPError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *HTTPError) Unwrap() error {
	return e.Err
}

// NewHTTPError creates a new HTTPError
func NewHTTPError(statusCode int, err error, message string, stopCodes ...string) *HTTPError {
	return &HTTPError{
		Err:        err,
		StatusCode: statusCode,
		Message:    message,
		StopCodes:  stopCodes,
		Internal:   statusCode >= 500,
	}
}

// Routes-specific errors (that don't conflict with other packages)
var (
	// Validation errors
	ErrInvalidRequest   = errors.New("invalid request")
	ErrMissingParameter = errors.New("missing required parameter")
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrSerialRequired   = errors.New("serial number is required")

	// Device registry errors
	ErrDeviceNotFound       = errors.New("device not found")
	ErrDeviceNotApproved    = errors.New("device is not approved")
	ErrFailedToCreateDevice = errors.New("failed to create device")

	// Internal errors
	ErrInternalServer          = errors.New("internal server error")
	ErrDatabaseError           = errors.New("database error")
	ErrStorageProviderNotFound = errors.New("storage provider not found")
	ErrInvalidStorageProvider  = errors.New("invalid storage provider")
	ErrEngineNotFound          = errors.New("engine not found")
)

// errorStatusMap maps errors to HTTP status codes
var errorStatusMap = map[error]int{
	// 400 Bad Request
	ErrInvalidRequest:   http.StatusBadRequest,
	ErrMissingParameter: http.StatusBadRequest,
	ErrInvalidParameter: http.StatusBadRequest,
	ErrSerialRequired:   http.StatusBadRequest,

	// 401 Unauthorized
	protocol.ErrAuthRequired: http.StatusUnauthorized,

	// 403 Forbidden
	ErrDeviceNotApproved: http.StatusForbidden,

	// 404 Not Found
	ErrDeviceNotFound:   http.StatusNotFound,
	storage.ErrNotFound: http.StatusNotFound,
	enroll.ErrNoSession: http.StatusNotFound,

	// 409 Conflict
	enroll.ErrCancelled:            http.StatusConflict,
	storage.ErrDuplicateAbsence:    http.StatusConflict,
	storage.ErrInsufficientBalance: http.StatusConflict,
	syncer.ErrSyncInFlight:         http.StatusConflict,

	// 422 Unprocessable Entity
	enroll.ErrLowQuality:       http.StatusUnprocessableEntity,
	protocol.ErrUnsupported:    http.StatusUnprocessableEntity,
	protocol.ErrBridgeRequired: http.StatusUnprocessableEntity,

	// 500 Internal Server Error
	ErrInternalServer:          http.StatusInternalServerError,
	ErrDatabaseError:           http.StatusInternalServerError,
	ErrStorageProviderNotFound: http.StatusInternalServerError,
	ErrInvalidStorageProvider:  http.StatusInternalServerError,
	ErrEngineNotFound:          http.StatusInternalServerError,
	ErrFailedToCreateDevice:    http.StatusInternalServerError,

	// 502 Bad Gateway (the terminal, not us)
	protocol.ErrUnreachable: http.StatusBadGateway,

	// 503 Service Unavailable
	protocol.ErrDeviceBusy:  http.StatusServiceUnavailable,
	enroll.ErrDeviceOffline: http.StatusServiceUnavailable,
}

// errorInfoMap maps errors to user-friendly messages and optional stop codes
var errorInfoMap = map[error]ErrorInfo{
	// Validation
	ErrInvalidRequest: {
		Message:   "Invalid request format",
		StopCodes: []string{"INVALID_REQUEST"},
	},
	ErrMissingParameter: {
		Message:   "Required parameter is missing",
		StopCodes: []string{"MISSING_PARAMETER"},
	},
	ErrInvalidParameter: {
		Message:   "Invalid parameter value",
		StopCodes: []string{"INVALID_PARAMETER"},
	},
	ErrSerialRequired: {
		Message:   "Serial number is required",
		StopCodes: []string{"SERIAL_REQUIRED"},
	},

	// Device registry
	ErrDeviceNotFound: {
		Message:   "Device not found",
		StopCodes: []string{"DEVICE_NOT_FOUND"},
	},
	ErrDeviceNotApproved: {
		Message:   "Device has not been approved",
		StopCodes: []string{"DEVICE_NOT_APPROVED"},
	},

	// Protocol taxonomy
	protocol.ErrUnreachable: {
		Message:   "Device is unreachable",
		StopCodes: []string{"DEVICE_UNREACHABLE"},
	},
	protocol.ErrAuthRequired: {
		Message:   "Device rejected the configured password",
		StopCodes: []string{"DEVICE_AUTH_REQUIRED"},
	},
	protocol.ErrDeviceBusy: {
		Message:   "Device is busy, try again shortly",
		StopCodes: []string{"DEVICE_BUSY"},
	},
	protocol.ErrUnsupported: {
		Message:   "Operation is not supported by this device's protocol",
		StopCodes: []string{"PROTOCOL_UNSUPPORTED"},
	},
	protocol.ErrBridgeRequired: {
		Message:   "Device needs a local bridge relay; none is configured",
		StopCodes: []string{"BRIDGE_REQUIRED"},
	},

	// Enrollment
	enroll.ErrDeviceOffline: {
		Message:   "Device is offline, enrollment cannot start",
		StopCodes: []string{"DEVICE_OFFLINE"},
	},
	enroll.ErrLowQuality: {
		Message:   "Capture quality was below the configured minimum",
		StopCodes: []string{"LOW_QUALITY"},
	},
	enroll.ErrNoSession: {
		Message:   "Enrollment session not found",
		StopCodes: []string{"SESSION_NOT_FOUND"},
	},
	enroll.ErrCancelled: {
		Message:   "Enrollment session was cancelled",
		StopCodes: []string{"SESSION_CANCELLED"},
	},

	// Attendance / leave
	storage.ErrDuplicateAbsence: {
		Message:   "An absence is already recorded for that date",
		StopCodes: []string{"ABSENCE_EXISTS"},
	},
	storage.ErrInsufficientBalance: {
		Message:   "Leave balance is insufficient",
		StopCodes: []string{"INSUFFICIENT_BALANCE"},
	},
	syncer.ErrSyncInFlight: {
		Message:   "A sync is already running for this device",
		StopCodes: []string{"SYNC_IN_FLIGHT"},
	},

	// Internal (no stop codes for internal errors)
	ErrInternalServer: {
		Message: "An internal error occurred",
	},
	ErrDatabaseError: {
		Message: "Database operation failed",
	},
	ErrStorageProviderNotFound: {
		Message: "Storage service is not available",
	},
	ErrInvalidStorageProvider: {
		Message: "Storage service configuration error",
	},
	ErrEngineNotFound: {
		Message: "Attendance engine is not available",
	},
	ErrFailedToCreateDevice: {
		Message: "Failed to create device record",
	},
}

// GetErrorStatus returns the HTTP status code for an error
func GetErrorStatus(err error) int {
	// Check if it's already an HTTPError
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}

	// Check direct match
	if status, ok := errorStatusMap[err]; ok {
		return status
	}

	// Check if error wraps a known error
	for knownErr, status := range errorStatusMap {
		if errors.Is(err, knownErr) {
			return status
		}
	}

	// Default to 500 Internal Server Error
	return http.StatusInternalServerError
}

// GetErrorInfo returns error information including message and stop codes
func GetErrorInfo(err error) ErrorInfo {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return ErrorInfo{
			Message:   httpErr.Message,
			StopCodes: httpErr.StopCodes,
		}
	}

	if info, ok := errorInfoMap[err]; ok {
		return info
	}

	for knownErr, info := range errorInfoMap {
		if errors.Is(err, knownErr) {
			return info
		}
	}

	// For unknown errors, return a generic message for 5xx, specific for others
	status := GetErrorStatus(err)
	if status >= 500 {
		return ErrorInfo{Message: "An internal error occurred"}
	}
	return ErrorInfo{Message: err.Error()}
}

// GetErrorMessage returns a user-friendly message for an error
func GetErrorMessage(err error) string {
	return GetErrorInfo(err).Message
}

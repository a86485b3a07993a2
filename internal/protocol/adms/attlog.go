package adms

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mubeen104/uips-attendance/internal/protocol"
	"github.com/mubeen104/uips-attendance/internal/storage"
)

const attLogTimeLayout = "2006-01-02 15:04:05"

// ParseAttLog parses an ATTLOG push body: one event per line, tab-separated
// fields "PIN<TAB>datetime<TAB>status<TAB>verify[<TAB>workcode]".
// Malformed lines are skipped and reported; one bad line must not drop the
// whole batch.
func ParseAttLog(body string, loc *time.Location) ([]protocol.RawEvent, []error) {
	if loc == nil {
		loc = time.UTC
	}

	var events []protocol.RawEvent
	var parseErrs []error

	for lineNo, line := range strings.Split(body, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) < 4 {
			parseErrs = append(parseErrs, fmt.Errorf("line %d: expected 4+ fields, got %d", lineNo+1, len(fields)))
			continue
		}

		ts, err := time.ParseInLocation(attLogTimeLayout, strings.TrimSpace(fields[1]), loc)
		if err != nil {
			parseErrs = append(parseErrs, fmt.Errorf("line %d: bad timestamp: %w", lineNo+1, err))
			continue
		}

		status, err := strconv.Atoi(strings.TrimSpace(fields[2]))
		if err != nil {
			parseErrs = append(parseErrs, fmt.Errorf("line %d: bad status: %w", lineNo+1, err))
			continue
		}

		verify, _ := strconv.Atoi(strings.TrimSpace(fields[3]))

		events = append(events, protocol.RawEvent{
			DeviceUserID:       strings.TrimSpace(fields[0]),
			Time:               ts.UTC(),
			Type:               attLogType(status),
			VerificationMethod: attLogVerify(verify),
		})
	}

	return events, parseErrs
}

func attLogType(status int) storage.LogType {
	switch status {
	case 0:
		return storage.LogCheckIn
	case 1:
		return storage.LogCheckOut
	case 2:
		return storage.LogBreakStart
	case 3:
		return storage.LogBreakEnd
	default:
		return storage.LogCheckIn
	}
}

func attLogVerify(verify int) string {
	switch verify {
	case 1:
		return "fingerprint"
	case 2:
		return "card"
	case 3:
		return "password"
	case 15:
		return "face"
	default:
		return "unknown"
	}
}

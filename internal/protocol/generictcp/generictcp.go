// Package generictcp speaks the binary-framed TCP protocol common to the
// generic fingerprint terminal family.
package generictcp

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/mubeen104/uips-attendance/internal/protocol"
	"github.com/mubeen104/uips-attendance/internal/storage"
)

type Adapter struct {
	// Dial timeout for the initial connect.
	ConnectTimeout time.Duration
}

func New(connectTimeout time.Duration) *Adapter {
	if connectTimeout <= 0 {
		connectTimeout = 5 * time.Second
	}
	return &Adapter{ConnectTimeout: connectTimeout}
}

func (a *Adapter) Descriptor() protocol.Descriptor {
	return protocol.Descriptor{
		Family:         "generic-tcp",
		RequiresBridge: false,
		CanPull:        true,
		CanEnroll:      true,
		CanSetTime:     true,
	}
}

// connect dials the terminal and performs the password handshake.
func (a *Adapter) connect(ctx context.Context, device *storage.Device) (net.Conn, error) {
	dialer := net.Dialer{Timeout: a.ConnectTimeout}
	addr := net.JoinHostPort(device.IP, strconv.Itoa(device.Port))

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, protocol.ClassifyDialError(err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	password := ""
	if device.DevicePassword != nil {
		password = *device.DevicePassword
	}

	if err := writeFrame(conn, frame{Cmd: cmdHandshake, Payload: putString(nil, password)}); err != nil {
		conn.Close()
		return nil, protocol.ClassifyDialError(err)
	}

	reply, err := readFrame(conn)
	if err != nil {
		conn.Close()
		return nil, protocol.ClassifyDialError(err)
	}

	if err := replyError(reply); err != nil {
		conn.Close()
		return nil, err
	}

	return conn, nil
}

func replyError(f frame) error {
	if len(f.Payload) == 0 {
		return fmt.Errorf("%w: empty reply", protocol.ErrUnreachable)
	}
	switch f.Payload[0] {
	case replyOK:
		return nil
	case replyAuthRequired:
		return fmt.Errorf("%w: terminal rejected password", protocol.ErrAuthRequired)
	case replyBusy:
		return protocol.ErrDeviceBusy
	case replyUnsupported:
		return protocol.ErrUnsupported
	default:
		return fmt.Errorf("unexpected reply status 0x%02x", f.Payload[0])
	}
}

func (a *Adapter) TestConnection(ctx context.Context, device *storage.Device) (protocol.Diagnostic, error) {
	start := time.Now()
	conn, err := a.connect(ctx, device)
	if err != nil {
		return protocol.Diagnostic{Online: false, Message: err.Error()}, err
	}
	defer conn.Close()

	return protocol.Diagnostic{
		Online:  true,
		Message: "handshake ok",
		Latency: time.Since(start),
	}, nil
}

func (a *Adapter) PullLogs(ctx context.Context, device *storage.Device, since string) ([]protocol.RawEvent, string, error) {
	var sinceSerial uint64
	if since != "" {
		v, err := strconv.ParseUint(since, 10, 64)
		if err != nil {
			return nil, "", fmt.Errorf("malformed cursor %q: %w", since, err)
		}
		sinceSerial = v
	}

	conn, err := a.connect(ctx, device)
	if err != nil {
		return nil, "", err
	}
	defer conn.Close()

	payload := binary.BigEndian.AppendUint64(nil, sinceSerial)
	if err := writeFrame(conn, frame{Cmd: cmdPullLogs, Payload: payload}); err != nil {
		return nil, "", protocol.ClassifyDialError(err)
	}

	reply, err := readFrame(conn)
	if err != nil {
		return nil, "", protocol.ClassifyDialError(err)
	}
	if err := replyError(reply); err != nil {
		return nil, "", err
	}

	events, cursor, err := decodeLogBatch(reply.Payload[1:])
	if err != nil {
		return nil, "", fmt.Errorf("malformed log batch: %w", err)
	}
	return events, strconv.FormatUint(cursor, 10), nil
}

// Smallest possible record: empty user id (2-byte length prefix), 8-byte
// timestamp, type, method, and score bytes.
const minRecordSize = 13

// Batch layout after the status byte: record count uint32, then per record
// a length-prefixed device user id, unix seconds int64, type byte, method
// byte, score byte; finally the new cursor serial uint64.
func decodeLogBatch(buf []byte) ([]protocol.RawEvent, uint64, error) {
	if len(buf) < 4 {
		return nil, 0, fmt.Errorf("short batch header")
	}
	count := binary.BigEndian.Uint32(buf)
	buf = buf[4:]

	// Every record occupies at least 13 bytes, so the claimed count is
	// bounded by the frame itself. A count past that bound is a corrupt or
	// hostile frame, rejected before it sizes any allocation.
	if int64(count) > int64(len(buf))/minRecordSize {
		return nil, 0, fmt.Errorf("record count %d exceeds frame size", count)
	}

	events := make([]protocol.RawEvent, 0, count)
	for i := uint32(0); i < count; i++ {
		uid, rest, err := getString(buf)
		if err != nil {
			return nil, 0, err
		}
		buf = rest
		if len(buf) < 11 {
			return nil, 0, fmt.Errorf("short record body")
		}
		ts := int64(binary.BigEndian.Uint64(buf))
		typ, method, score := buf[8], buf[9], buf[10]
		buf = buf[11:]

		events = append(events, protocol.RawEvent{
			DeviceUserID:       uid,
			Time:               time.Unix(ts, 0).UTC(),
			Type:               logType(typ),
			VerificationMethod: verificationMethod(method),
			MatchScore:         int(score),
		})
	}

	if len(buf) < 8 {
		return nil, 0, fmt.Errorf("short batch trailer")
	}
	return events, binary.BigEndian.Uint64(buf), nil
}

func logType(b byte) storage.LogType {
	switch b {
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

func verificationMethod(b byte) string {
	switch b {
	case 0:
		return "fingerprint"
	case 1:
		return "card"
	case 2:
		return "password"
	default:
		return "unknown"
	}
}

func (a *Adapter) Enroll(ctx context.Context, device *storage.Device, deviceUserID string, finger storage.FingerPosition, progress protocol.ProgressFunc) ([]byte, int, error) {
	conn, err := a.connect(ctx, device)
	if err != nil {
		return nil, 0, err
	}
	defer conn.Close()

	payload := putString(nil, deviceUserID)
	payload = append(payload, byte(finger))
	if err := writeFrame(conn, frame{Cmd: cmdEnrollStart, Payload: payload}); err != nil {
		return nil, 0, protocol.ClassifyDialError(err)
	}

	// The terminal streams progress frames while the person presents the
	// finger, then a final frame carrying the template.
	for {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}

		f, err := readFrame(conn)
		if err != nil {
			return nil, 0, protocol.ClassifyDialError(err)
		}
		if len(f.Payload) == 0 {
			return nil, 0, fmt.Errorf("empty enroll frame")
		}

		switch f.Payload[0] {
		case enrollProgress:
			if len(f.Payload) < 2 {
				return nil, 0, fmt.Errorf("short progress frame")
			}
			percent := int(f.Payload[1])
			status, _, _ := getString(f.Payload[2:])
			if progress != nil {
				progress(percent, status)
			}

		case enrollDone:
			if len(f.Payload) < 2 {
				return nil, 0, fmt.Errorf("short enroll result")
			}
			quality := int(f.Payload[1])
			template := make([]byte, len(f.Payload)-2)
			copy(template, f.Payload[2:])
			return template, quality, nil

		case enrollFailed:
			reason, _, _ := getString(f.Payload[1:])
			return nil, 0, fmt.Errorf("terminal aborted capture: %s", reason)

		default:
			return nil, 0, fmt.Errorf("unexpected enroll frame kind 0x%02x", f.Payload[0])
		}
	}
}

func (a *Adapter) SetTime(ctx context.Context, device *storage.Device, t time.Time) error {
	conn, err := a.connect(ctx, device)
	if err != nil {
		return err
	}
	defer conn.Close()

	payload := binary.BigEndian.AppendUint64(nil, uint64(t.UTC().Unix()))
	if err := writeFrame(conn, frame{Cmd: cmdSetTime, Payload: payload}); err != nil {
		return protocol.ClassifyDialError(err)
	}

	reply, err := readFrame(conn)
	if err != nil {
		return protocol.ClassifyDialError(err)
	}
	return replyError(reply)
}

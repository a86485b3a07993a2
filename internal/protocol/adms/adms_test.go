package adms

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mubeen104/uips-attendance/internal/protocol"
	"github.com/mubeen104/uips-attendance/internal/storage"
)

func TestParseAttLog(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantEvents int
		wantErrs   int
		check      func(t *testing.T, events []protocol.RawEvent)
	}{
		{
			name:       "single check-in",
			body:       "101\t2026-03-02 09:02:11\t0\t1\n",
			wantEvents: 1,
			check: func(t *testing.T, events []protocol.RawEvent) {
				e := events[0]
				if e.DeviceUserID != "101" {
					t.Errorf("device user = %q", e.DeviceUserID)
				}
				if e.Type != storage.LogCheckIn {
					t.Errorf("type = %s, want check_in", e.Type)
				}
				if e.VerificationMethod != "fingerprint" {
					t.Errorf("verify = %q, want fingerprint", e.VerificationMethod)
				}
				want := time.Date(2026, 3, 2, 9, 2, 11, 0, time.UTC)
				if !e.Time.Equal(want) {
					t.Errorf("time = %v, want %v", e.Time, want)
				}
			},
		},
		{
			name: "full day with CRLF and workcode",
			body: "101\t2026-03-02 09:00:00\t0\t1\t0\r\n" +
				"101\t2026-03-02 12:00:00\t2\t1\r\n" +
				"101\t2026-03-02 13:00:00\t3\t1\r\n" +
				"101\t2026-03-02 17:00:00\t1\t15\r\n",
			wantEvents: 4,
			check: func(t *testing.T, events []protocol.RawEvent) {
				wantTypes := []storage.LogType{storage.LogCheckIn, storage.LogBreakStart, storage.LogBreakEnd, storage.LogCheckOut}
				for i, want := range wantTypes {
					if events[i].Type != want {
						t.Errorf("event %d type = %s, want %s", i, events[i].Type, want)
					}
				}
				if events[3].VerificationMethod != "face" {
					t.Errorf("verify = %q, want face", events[3].VerificationMethod)
				}
			},
		},
		{
			name: "bad line does not drop batch",
			body: "101\t2026-03-02 09:00:00\t0\t1\n" +
				"garbage line\n" +
				"102\tnot-a-date\t0\t1\n" +
				"103\t2026-03-02 09:05:00\t0\t2\n",
			wantEvents: 2,
			wantErrs:   2,
		},
		{
			name:       "blank lines skipped",
			body:       "\n\r\n101\t2026-03-02 09:00:00\t0\t1\n\n",
			wantEvents: 1,
		},
		{
			name:       "unknown status defaults to check-in",
			body:       "101\t2026-03-02 09:00:00\t9\t7\n",
			wantEvents: 1,
			check: func(t *testing.T, events []protocol.RawEvent) {
				if events[0].Type != storage.LogCheckIn {
					t.Errorf("type = %s, want check_in", events[0].Type)
				}
				if events[0].VerificationMethod != "unknown" {
					t.Errorf("verify = %q, want unknown", events[0].VerificationMethod)
				}
			},
		},
		{
			name:     "empty body",
			body:     "",
			wantErrs: 0,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			events, errs := ParseAttLog(tc.body, time.UTC)
			if len(events) != tc.wantEvents {
				t.Fatalf("events = %d, want %d (errs: %v)", len(events), tc.wantEvents, errs)
			}
			if len(errs) != tc.wantErrs {
				t.Fatalf("errs = %d (%v), want %d", len(errs), errs, tc.wantErrs)
			}
			if tc.check != nil {
				tc.check(t, events)
			}
		})
	}
}

func TestParseAttLog_Timezone(t *testing.T) {
	loc := time.FixedZone("PKT", 5*3600)
	events, errs := ParseAttLog("101\t2026-03-02 14:00:00\t0\t1\n", loc)
	if len(errs) != 0 || len(events) != 1 {
		t.Fatalf("events=%d errs=%v", len(events), errs)
	}
	// 14:00 PKT is 09:00 UTC.
	want := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	if !events[0].Time.Equal(want) {
		t.Errorf("time = %v, want %v", events[0].Time, want)
	}
}

func TestTestConnection_HeartbeatRecency(t *testing.T) {
	adapter := New(nil)

	fresh := time.Now().Add(-time.Minute)
	stale := time.Now().Add(-10 * time.Minute)

	tests := []struct {
		name       string
		heartbeat  *time.Time
		wantOnline bool
	}{
		{"never pushed", nil, false},
		{"fresh heartbeat", &fresh, true},
		{"stale heartbeat", &stale, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			device := &storage.Device{SerialNumber: "SN1", LastHeartbeat: tc.heartbeat}
			diag, err := adapter.TestConnection(context.Background(), device)
			if diag.Online != tc.wantOnline {
				t.Errorf("online = %t, want %t", diag.Online, tc.wantOnline)
			}
			if !tc.wantOnline && !errors.Is(err, protocol.ErrUnreachable) {
				t.Errorf("err = %v, want ErrUnreachable", err)
			}
			if tc.wantOnline && err != nil {
				t.Errorf("err = %v, want nil", err)
			}
		})
	}
}

func TestPullLogs_Unsupported(t *testing.T) {
	adapter := New(nil)
	_, _, err := adapter.PullLogs(context.Background(), &storage.Device{}, "")
	if !errors.Is(err, protocol.ErrUnsupported) {
		t.Fatalf("err = %v, want ErrUnsupported", err)
	}
}

func TestSetTime_QueuesCommand(t *testing.T) {
	queue := NewCommandQueue()
	adapter := New(queue)
	device := &storage.Device{SerialNumber: "SN1"}

	when := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	if err := adapter.SetTime(context.Background(), device, when); err != nil {
		t.Fatalf("SetTime failed: %v", err)
	}

	commands := queue.Drain("SN1")
	if len(commands) != 1 {
		t.Fatalf("queued = %d commands, want 1", len(commands))
	}
	if want := "SET TIME 2026-03-02 12:00:00"; !strings.Contains(commands[0], want) {
		t.Errorf("command = %q, want it to contain %q", commands[0], want)
	}

	// Drain clears the queue.
	if again := queue.Drain("SN1"); len(again) != 0 {
		t.Errorf("second drain returned %d commands", len(again))
	}
}

func TestCommandQueue_PerSerial(t *testing.T) {
	queue := NewCommandQueue()
	queue.Push("A", "cmd-a1")
	queue.Push("B", "cmd-b1")
	queue.Push("A", "cmd-a2")

	a := queue.Drain("A")
	if len(a) != 2 || a[0] != "cmd-a1" || a[1] != "cmd-a2" {
		t.Errorf("drain A = %v", a)
	}
	b := queue.Drain("B")
	if len(b) != 1 || b[0] != "cmd-b1" {
		t.Errorf("drain B = %v", b)
	}
}

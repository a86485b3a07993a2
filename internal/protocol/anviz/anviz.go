// Package anviz speaks the HTTP/JSON pull protocol of the Anviz-style
// terminal family.
package anviz

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mubeen104/uips-attendance/internal/protocol"
	"github.com/mubeen104/uips-attendance/internal/storage"
)

type Adapter struct {
	client *http.Client
}

func New(connectTimeout time.Duration) *Adapter {
	if connectTimeout <= 0 {
		connectTimeout = 5 * time.Second
	}
	return &Adapter{client: &http.Client{Timeout: connectTimeout}}
}

func (a *Adapter) Descriptor() protocol.Descriptor {
	return protocol.Descriptor{
		Family:         "anviz",
		RequiresBridge: false,
		CanPull:        true,
		CanEnroll:      true,
		CanSetTime:     true,
	}
}

func baseURL(device *storage.Device) string {
	return fmt.Sprintf("http://%s:%d", device.IP, device.Port)
}

func (a *Adapter) do(ctx context.Context, device *storage.Device, method, path string, body any, out any) error {
	var reqBody *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(b)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, baseURL(device)+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if device.DevicePassword != nil {
		req.SetBasicAuth("admin", *device.DevicePassword)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return protocol.ClassifyDialError(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: terminal returned %d", protocol.ErrAuthRequired, resp.StatusCode)
	case resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: terminal returned %d", protocol.ErrDeviceBusy, resp.StatusCode)
	case resp.StatusCode >= 400:
		return fmt.Errorf("terminal returned %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("malformed terminal response: %w", err)
		}
	}
	return nil
}

type statusResponse struct {
	Serial      string `json:"serial"`
	UserCount   int    `json:"user_count"`
	RecordCount int    `json:"record_count"`
}

func (a *Adapter) TestConnection(ctx context.Context, device *storage.Device) (protocol.Diagnostic, error) {
	start := time.Now()
	var status statusResponse
	if err := a.do(ctx, device, http.MethodGet, "/status", nil, &status); err != nil {
		return protocol.Diagnostic{Online: false, Message: err.Error()}, err
	}
	return protocol.Diagnostic{
		Online:  true,
		Message: fmt.Sprintf("serial %s, %d users, %d records", status.Serial, status.UserCount, status.RecordCount),
		Latency: time.Since(start),
	}, nil
}

type recordPayload struct {
	UserID string `json:"user_id"`
	Time   string `json:"time"` // RFC3339
	Type   string `json:"type"`
	Verify string `json:"verify"`
	Score  int    `json:"score"`
}

type recordsResponse struct {
	Records []recordPayload `json:"records"`
	Cursor  string          `json:"cursor"`
}

func (a *Adapter) PullLogs(ctx context.Context, device *storage.Device, since string) ([]protocol.RawEvent, string, error) {
	path := "/records"
	if since != "" {
		path += "?since=" + since
	}

	var resp recordsResponse
	if err := a.do(ctx, device, http.MethodGet, path, nil, &resp); err != nil {
		return nil, "", err
	}

	events := make([]protocol.RawEvent, 0, len(resp.Records))
	for _, r := range resp.Records {
		ts, err := time.Parse(time.RFC3339, r.Time)
		if err != nil {
			return nil, "", fmt.Errorf("malformed record time %q: %w", r.Time, err)
		}
		events = append(events, protocol.RawEvent{
			DeviceUserID:       r.UserID,
			Time:               ts.UTC(),
			Type:               recordType(r.Type),
			VerificationMethod: r.Verify,
			MatchScore:         r.Score,
		})
	}

	cursor := resp.Cursor
	if cursor == "" {
		cursor = since
	}
	return events, cursor, nil
}

func recordType(t string) storage.LogType {
	switch t {
	case "out":
		return storage.LogCheckOut
	case "break_start":
		return storage.LogBreakStart
	case "break_end":
		return storage.LogBreakEnd
	default:
		return storage.LogCheckIn
	}
}

type enrollRequest struct {
	UserID string `json:"user_id"`
	Finger int    `json:"finger"`
}

type enrollResponse struct {
	Phase    string `json:"phase"` // capturing, scoring, done, failed
	Percent  int    `json:"percent"`
	Message  string `json:"message"`
	Template []byte `json:"template,omitempty"`
	Quality  int    `json:"quality"`
}

// Enroll starts a capture session and polls its progress. The terminal
// keeps session state server-side and reports phases until done.
func (a *Adapter) Enroll(ctx context.Context, device *storage.Device, deviceUserID string, finger storage.FingerPosition, progress protocol.ProgressFunc) ([]byte, int, error) {
	var state enrollResponse
	if err := a.do(ctx, device, http.MethodPost, "/enroll", enrollRequest{UserID: deviceUserID, Finger: int(finger)}, &state); err != nil {
		return nil, 0, err
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		if progress != nil {
			progress(state.Percent, state.Message)
		}

		switch state.Phase {
		case "done":
			return state.Template, state.Quality, nil
		case "failed":
			return nil, 0, fmt.Errorf("terminal aborted capture: %s", state.Message)
		}

		select {
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		case <-ticker.C:
		}

		if err := a.do(ctx, device, http.MethodGet, "/enroll", nil, &state); err != nil {
			return nil, 0, err
		}
	}
}

func (a *Adapter) SetTime(ctx context.Context, device *storage.Device, t time.Time) error {
	return a.do(ctx, device, http.MethodPost, "/time", map[string]string{
		"time": t.UTC().Format(time.RFC3339),
	}, nil)
}

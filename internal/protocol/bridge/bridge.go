// Package bridge reaches terminals that cannot be dialed from the hosting
// environment (serial/USB, NAT'd TCP) through a locally deployed relay
// process. The relay translates HTTP JSON requests into the vendor wire
// protocol and returns results in the same shape as a direct adapter would.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mubeen104/uips-attendance/internal/protocol"
	"github.com/mubeen104/uips-attendance/internal/storage"
)

type Client struct {
	// Base URL of the relay. Empty means no relay is deployed; operations
	// fail with ErrBridgeRequired so operators are told to deploy one
	// instead of retrying a timeout.
	baseURL string
	tokens  *TokenSource
	client  *http.Client
}

func New(baseURL string, tokens *TokenSource, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *Client) Descriptor() protocol.Descriptor {
	return protocol.Descriptor{
		Family:         "serial-bridge",
		RequiresBridge: true,
		CanPull:        true,
		CanEnroll:      false,
		CanSetTime:     false,
	}
}

// deviceRef is the device description the relay needs to reach the terminal
// on its local bus.
type deviceRef struct {
	SerialNumber string `json:"serial_number"`
	Address      string `json:"address"`
	Port         int    `json:"port"`
	Password     string `json:"password,omitempty"`
}

func ref(device *storage.Device) deviceRef {
	password := ""
	if device.DevicePassword != nil {
		password = *device.DevicePassword
	}
	return deviceRef{
		SerialNumber: device.SerialNumber,
		Address:      device.IP,
		Port:         device.Port,
		Password:     password,
	}
}

func (c *Client) post(ctx context.Context, device *storage.Device, path string, body any, out any) error {
	if c.baseURL == "" {
		return fmt.Errorf("%w: no relay configured for %s", protocol.ErrBridgeRequired, device.SerialNumber)
	}

	b, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	if c.tokens != nil {
		token, err := c.tokens.Token(device.SerialNumber)
		if err != nil {
			return fmt.Errorf("failed to sign bridge request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return protocol.ClassifyDialError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("relay returned %d", resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("malformed relay response: %w", err)
		}
	}
	return nil
}

type connectResponse struct {
	Online    bool   `json:"online"`
	Message   string `json:"message"`
	LatencyMS int64  `json:"latency_ms"`
}

func (c *Client) TestConnection(ctx context.Context, device *storage.Device) (protocol.Diagnostic, error) {
	var resp connectResponse
	if err := c.post(ctx, device, "/device/connect", ref(device), &resp); err != nil {
		return protocol.Diagnostic{Online: false, Message: err.Error()}, err
	}
	diag := protocol.Diagnostic{
		Online:  resp.Online,
		Message: resp.Message,
		Latency: time.Duration(resp.LatencyMS) * time.Millisecond,
	}
	if !resp.Online {
		return diag, fmt.Errorf("%w: %s", protocol.ErrUnreachable, resp.Message)
	}
	return diag, nil
}

type syncRequest struct {
	Device deviceRef `json:"device"`
	Since  string    `json:"since,omitempty"`
}

type syncEvent struct {
	UserID string `json:"user_id"`
	Time   string `json:"time"` // RFC3339
	Type   string `json:"type"`
	Verify string `json:"verify"`
	Score  int    `json:"score"`
}

type syncResponse struct {
	Events []syncEvent `json:"events"`
	Cursor string      `json:"cursor"`
}

func (c *Client) PullLogs(ctx context.Context, device *storage.Device, since string) ([]protocol.RawEvent, string, error) {
	var resp syncResponse
	if err := c.post(ctx, device, "/device/sync", syncRequest{Device: ref(device), Since: since}, &resp); err != nil {
		return nil, "", err
	}

	events := make([]protocol.RawEvent, 0, len(resp.Events))
	for _, e := range resp.Events {
		ts, err := time.Parse(time.RFC3339, e.Time)
		if err != nil {
			return nil, "", fmt.Errorf("malformed relay event time %q: %w", e.Time, err)
		}
		events = append(events, protocol.RawEvent{
			DeviceUserID:       e.UserID,
			Time:               ts.UTC(),
			Type:               storage.LogType(e.Type),
			VerificationMethod: e.Verify,
			MatchScore:         e.Score,
		})
	}

	cursor := resp.Cursor
	if cursor == "" {
		cursor = since
	}
	return events, cursor, nil
}

func (c *Client) Enroll(context.Context, *storage.Device, string, storage.FingerPosition, protocol.ProgressFunc) ([]byte, int, error) {
	return nil, 0, fmt.Errorf("%w: enrollment is not relayed", protocol.ErrUnsupported)
}

func (c *Client) SetTime(context.Context, *storage.Device, time.Time) error {
	return fmt.Errorf("%w: time sync is not relayed", protocol.ErrUnsupported)
}

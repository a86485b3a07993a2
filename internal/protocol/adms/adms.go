// Package adms handles the ADMS/iclock push family. These terminals are not
// dialed: they POST attendance lines to the server and poll for queued
// commands, so the adapter works from server-side observations.
package adms

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mubeen104/uips-attendance/internal/protocol"
	"github.com/mubeen104/uips-attendance/internal/storage"
)

// Terminals heartbeat roughly once a minute; silence beyond this marks the
// device offline.
const heartbeatWindow = 3 * time.Minute

type Adapter struct {
	commands *CommandQueue
}

func New(commands *CommandQueue) *Adapter {
	if commands == nil {
		commands = NewCommandQueue()
	}
	return &Adapter{commands: commands}
}

func (a *Adapter) Descriptor() protocol.Descriptor {
	return protocol.Descriptor{
		Family:         "adms",
		RequiresBridge: false,
		CanPull:        false,
		CanEnroll:      false,
		CanSetTime:     true,
	}
}

// TestConnection for a push device is a heartbeat-recency check; there is
// no channel to probe from this side.
func (a *Adapter) TestConnection(_ context.Context, device *storage.Device) (protocol.Diagnostic, error) {
	if device.LastHeartbeat == nil {
		return protocol.Diagnostic{Online: false, Message: "no heartbeat received yet"},
			fmt.Errorf("%w: device has never pushed", protocol.ErrUnreachable)
	}
	age := time.Since(*device.LastHeartbeat)
	if age > heartbeatWindow {
		return protocol.Diagnostic{Online: false, Message: fmt.Sprintf("last heartbeat %s ago", age.Round(time.Second))},
			fmt.Errorf("%w: heartbeat stale", protocol.ErrUnreachable)
	}
	return protocol.Diagnostic{Online: true, Message: fmt.Sprintf("heartbeat %s ago", age.Round(time.Second))}, nil
}

func (a *Adapter) PullLogs(context.Context, *storage.Device, string) ([]protocol.RawEvent, string, error) {
	return nil, "", fmt.Errorf("%w: adms terminals push their logs", protocol.ErrUnsupported)
}

func (a *Adapter) Enroll(context.Context, *storage.Device, string, storage.FingerPosition, protocol.ProgressFunc) ([]byte, int, error) {
	return nil, 0, fmt.Errorf("%w: enrollment runs on the terminal keypad for this family", protocol.ErrUnsupported)
}

// SetTime queues a command the terminal picks up on its next poll.
func (a *Adapter) SetTime(_ context.Context, device *storage.Device, t time.Time) error {
	a.commands.Push(device.SerialNumber, fmt.Sprintf("C:%d:SET TIME %s", time.Now().UnixNano(), t.UTC().Format("2006-01-02 15:04:05")))
	return nil
}

// CommandQueue holds pending commands per terminal serial, delivered when
// the terminal polls its command endpoint.
type CommandQueue struct {
	mu      sync.Mutex
	pending map[string][]string
}

func NewCommandQueue() *CommandQueue {
	return &CommandQueue{pending: make(map[string][]string)}
}

func (q *CommandQueue) Push(serial string, command string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending[serial] = append(q.pending[serial], command)
}

// Drain returns and clears all pending commands for the serial.
func (q *CommandQueue) Drain(serial string) []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	commands := q.pending[serial]
	delete(q.pending, serial)
	return commands
}

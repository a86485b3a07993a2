// Package syncer periodically walks the device registry and pulls new
// attendance events from every auto-sync terminal, with bounded concurrency
// across devices and strict sequencing per device.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/mubeen104/uips-attendance/internal/ingest"
	"github.com/mubeen104/uips-attendance/internal/protocol"
	"github.com/mubeen104/uips-attendance/internal/storage"
)

// ErrSyncInFlight reports a sync-now request for a device already syncing.
var ErrSyncInFlight = errors.New("sync already in flight for device")

// Store is the slice of the storage provider the coordinator needs.
type Store interface {
	ListAutoSyncDevices(ctx context.Context) ([]storage.Device, error)
	TouchDeviceState(ctx context.Context, uuid string, online bool, observedAt time.Time) (bool, error)
	UpdateDeviceSync(ctx context.Context, uuid string, cursor string, records int, observedAt time.Time) error
	AppendSyncLog(ctx context.Context, entry *storage.SyncLogEntry) error
}

// Ingestor folds pulled batches into the attendance timeline.
type Ingestor interface {
	Process(ctx context.Context, device *storage.Device, events []protocol.RawEvent) (ingest.Result, error)
}

// AdapterSource resolves the protocol adapter for a device.
type AdapterSource interface {
	ForDevice(device *storage.Device) (protocol.Adapter, error)
}

type Coordinator struct {
	store    Store
	adapters AdapterSource
	pipeline Ingestor

	// Global bound across devices; protects outbound network and storage.
	sem *semaphore.Weighted
	// Floor applied to per-device intervals.
	minInterval    time.Duration
	connectTimeout time.Duration

	mu       sync.Mutex
	inFlight map[string]*sync.Mutex

	logger *slog.Logger
}

func New(store Store, adapters AdapterSource, pipeline Ingestor, maxConcurrent int, minInterval, connectTimeout time.Duration) *Coordinator {
	if maxConcurrent <= 0 {
		maxConcurrent = 8
	}
	if minInterval <= 0 {
		minInterval = 30 * time.Second
	}
	if connectTimeout <= 0 {
		connectTimeout = 5 * time.Second
	}
	return &Coordinator{
		store:          store,
		adapters:       adapters,
		pipeline:       pipeline,
		sem:            semaphore.NewWeighted(int64(maxConcurrent)),
		minInterval:    minInterval,
		connectTimeout: connectTimeout,
		inFlight:       make(map[string]*sync.Mutex),
		logger:         slog.With("component", "syncer"),
	}
}

// Run drives periodic syncs until the context is cancelled.
func (c *Coordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.minInterval)
	defer ticker.Stop()

	c.logger.Info("Sync coordinator started", "min_interval", c.minInterval)

	for {
		c.tick(ctx)

		select {
		case <-ctx.Done():
			c.logger.Info("Sync coordinator stopped")
			return
		case <-ticker.C:
		}
	}
}

func (c *Coordinator) tick(ctx context.Context) {
	devices, err := c.store.ListAutoSyncDevices(ctx)
	if err != nil {
		c.logger.Error("Failed to list devices", "error", err)
		return
	}

	now := time.Now().UTC()
	var wg sync.WaitGroup

	for i := range devices {
		device := devices[i]
		if !c.due(&device, now) {
			continue
		}

		if err := c.sem.Acquire(ctx, 1); err != nil {
			return
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer c.sem.Release(1)

			if err := c.SyncDevice(ctx, &device); err != nil && !errors.Is(err, ErrSyncInFlight) {
				// Per-device failures are logged and isolated; they never
				// abort the run for other devices.
				c.logger.Warn("Device sync failed", "device", device.SerialNumber, "error", err)
			}
		}()
	}

	wg.Wait()
}

func (c *Coordinator) due(device *storage.Device, now time.Time) bool {
	if device.LastSync == nil {
		return true
	}
	interval := time.Duration(device.SyncIntervalSeconds) * time.Second
	if interval < c.minInterval {
		interval = c.minInterval
	}
	return now.Sub(*device.LastSync) >= interval
}

// deviceLock returns the mutex serializing operations against one device.
func (c *Coordinator) deviceLock(uuid string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.inFlight[uuid]
	if !ok {
		l = &sync.Mutex{}
		c.inFlight[uuid] = l
	}
	return l
}

// SyncDevice performs one full sync pass for a device: probe, pull, ingest,
// advance cursor. The cursor only moves after successful ingestion, so a
// failed attempt retries from the same point.
func (c *Coordinator) SyncDevice(ctx context.Context, device *storage.Device) error {
	lock := c.deviceLock(device.UUID)
	if !lock.TryLock() {
		// Never two concurrent pulls against the same cursor.
		return ErrSyncInFlight
	}
	defer lock.Unlock()

	started := time.Now().UTC()

	pulled, err := c.syncOnce(ctx, device)

	entry := &storage.SyncLogEntry{
		DeviceUUID: device.UUID,
		StartedAt:  started,
		FinishedAt: time.Now().UTC(),
		Success:    err == nil,
		Pulled:     pulled,
	}
	if err != nil {
		entry.Message = err.Error()
	}
	if logErr := c.store.AppendSyncLog(ctx, entry); logErr != nil {
		c.logger.Error("Failed to append sync log", "device", device.SerialNumber, "error", logErr)
	}

	return err
}

func (c *Coordinator) syncOnce(ctx context.Context, device *storage.Device) (int, error) {
	adapter, err := c.adapters.ForDevice(device)
	if err != nil {
		return 0, err
	}

	probeCtx, cancel := context.WithTimeout(ctx, c.connectTimeout)
	diag, err := adapter.TestConnection(probeCtx, device)
	cancel()

	observed := time.Now().UTC()
	if _, touchErr := c.store.TouchDeviceState(ctx, device.UUID, diag.Online, observed); touchErr != nil {
		c.logger.Error("Failed to record device state", "device", device.SerialNumber, "error", touchErr)
	}
	if err != nil {
		return 0, fmt.Errorf("connection test: %w", err)
	}
	device.IsOnline = true

	if !adapter.Descriptor().CanPull {
		// Push families deliver their own events; the probe was the sync.
		return 0, c.store.UpdateDeviceSync(ctx, device.UUID, device.SyncCursor, 0, observed)
	}

	events, cursor, err := adapter.PullLogs(ctx, device, device.SyncCursor)
	if err != nil {
		return 0, fmt.Errorf("pulling logs: %w", err)
	}

	result, err := c.pipeline.Process(ctx, device, events)
	if err != nil {
		// Ingestion failed: leave the cursor untouched for the retry.
		return 0, fmt.Errorf("ingesting batch: %w", err)
	}

	device.SyncCursor = cursor
	if err := c.store.UpdateDeviceSync(ctx, device.UUID, cursor, result.Inserted, time.Now().UTC()); err != nil {
		return len(events), fmt.Errorf("advancing cursor: %w", err)
	}

	c.logger.Info("Device synced",
		"device", device.SerialNumber,
		"pulled", len(events),
		"inserted", result.Inserted,
		"duplicates", result.Duplicates,
		"unknown", result.Unknown,
	)
	return len(events), nil
}

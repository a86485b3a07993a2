package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

const deviceColumns = `id, uuid, serial_number, name, ip, port, protocol_type, status,
	device_password, max_users, max_fingerprints, max_records,
	current_users, current_fingerprints, current_records,
	is_online, last_heartbeat, last_sync, state_observed_at,
	auto_sync_enabled, sync_interval_seconds, sync_cursor, created_at, updated_at`

func (p *SQLProvider) CreateDevice(ctx context.Context, device *Device) error {
	now := time.Now().UTC()
	device.CreatedAt = now
	device.UpdatedAt = now
	if device.StateObservedAt.IsZero() {
		device.StateObservedAt = now
	}

	res, err := p.db.ExecContext(ctx, p.db.Rebind(`
		INSERT INTO devices (uuid, serial_number, name, ip, port, protocol_type, status,
			device_password, max_users, max_fingerprints, max_records,
			is_online, state_observed_at, auto_sync_enabled, sync_interval_seconds, sync_cursor,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		device.UUID, device.SerialNumber, device.Name, device.IP, device.Port,
		device.ProtocolType, device.Status, device.DevicePassword,
		device.MaxUsers, device.MaxFingerprints, device.MaxRecords,
		device.IsOnline, device.StateObservedAt,
		device.AutoSyncEnabled, device.SyncIntervalSeconds, device.SyncCursor,
		device.CreatedAt, device.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if id, err := res.LastInsertId(); err == nil {
		device.ID = id
	}
	return nil
}

func (p *SQLProvider) GetDevice(ctx context.Context, uuid string) (*Device, error) {
	var device Device
	err := p.db.GetContext(ctx, &device,
		p.db.Rebind(`SELECT `+deviceColumns+` FROM devices WHERE uuid = ?`), uuid)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &device, nil
}

func (p *SQLProvider) GetDeviceBySerial(ctx context.Context, serial string) (*Device, error) {
	var device Device
	err := p.db.GetContext(ctx, &device,
		p.db.Rebind(`SELECT `+deviceColumns+` FROM devices WHERE serial_number = ?`), serial)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &device, nil
}

func (p *SQLProvider) ListDevices(ctx context.Context) ([]Device, error) {
	var devices []Device
	err := p.db.SelectContext(ctx, &devices,
		`SELECT `+deviceColumns+` FROM devices ORDER BY name, serial_number`)
	return devices, err
}

func (p *SQLProvider) ListAutoSyncDevices(ctx context.Context) ([]Device, error) {
	var devices []Device
	err := p.db.SelectContext(ctx, &devices, p.db.Rebind(
		`SELECT `+deviceColumns+` FROM devices WHERE auto_sync_enabled = ? AND status = ?`),
		true, DeviceStatusApproved)
	return devices, err
}

func (p *SQLProvider) UpdateDevice(ctx context.Context, device *Device) error {
	device.UpdatedAt = time.Now().UTC()
	_, err := p.db.ExecContext(ctx, p.db.Rebind(`
		UPDATE devices SET name = ?, ip = ?, port = ?, protocol_type = ?, status = ?,
			device_password = ?, max_users = ?, max_fingerprints = ?, max_records = ?,
			auto_sync_enabled = ?, sync_interval_seconds = ?, updated_at = ?
		WHERE uuid = ?`),
		device.Name, device.IP, device.Port, device.ProtocolType, device.Status,
		device.DevicePassword, device.MaxUsers, device.MaxFingerprints, device.MaxRecords,
		device.AutoSyncEnabled, device.SyncIntervalSeconds, device.UpdatedAt,
		device.UUID,
	)
	return err
}

// DeleteDevice removes the device row. Dependent log rows cascade, per
// product policy.
func (p *SQLProvider) DeleteDevice(ctx context.Context, uuid string) error {
	res, err := p.db.ExecContext(ctx, p.db.Rebind(`DELETE FROM devices WHERE uuid = ?`), uuid)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *SQLProvider) TouchDeviceState(ctx context.Context, uuid string, online bool, observedAt time.Time) (bool, error) {
	observedAt = observedAt.UTC()
	res, err := p.db.ExecContext(ctx, p.db.Rebind(`
		UPDATE devices SET is_online = ?, last_heartbeat = ?, state_observed_at = ?, updated_at = ?
		WHERE uuid = ? AND state_observed_at <= ?`),
		online, observedAt, observedAt, observedAt, uuid, observedAt,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// UpdateDeviceSync advances the cursor and adds the batch's new records to
// the device usage counter. A quiet sync (zero new records) leaves the
// counter where it was.
func (p *SQLProvider) UpdateDeviceSync(ctx context.Context, uuid string, cursor string, newRecords int, observedAt time.Time) error {
	observedAt = observedAt.UTC()
	_, err := p.db.ExecContext(ctx, p.db.Rebind(`
		UPDATE devices SET sync_cursor = ?, current_records = current_records + ?, last_sync = ?, updated_at = ?
		WHERE uuid = ?`),
		cursor, newRecords, observedAt, observedAt, uuid,
	)
	return err
}

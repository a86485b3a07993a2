package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// CreateTemplateDeactivatingPrior inserts a freshly captured template and
// deactivates any previously active template for the same (employee, finger)
// in one transaction. Old templates are kept for audit history, never
// physically removed.
func (p *SQLProvider) CreateTemplateDeactivatingPrior(ctx context.Context, tpl *BiometricTemplate) error {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, p.db.Rebind(`
		UPDATE biometric_templates SET is_active = ?
		WHERE employee_id = ? AND finger_position = ? AND is_active = ?`),
		false, tpl.EmployeeID, tpl.Finger, true,
	)
	if err != nil {
		return err
	}

	tpl.CreatedAt = time.Now().UTC()
	tpl.IsActive = true
	res, err := tx.ExecContext(ctx, p.db.Rebind(`
		INSERT INTO biometric_templates (employee_id, device_uuid, finger_position, template_data, quality_score, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		tpl.EmployeeID, tpl.DeviceUUID, tpl.Finger, tpl.TemplateData, tpl.QualityScore, tpl.IsActive, tpl.CreatedAt,
	)
	if err != nil {
		return err
	}
	if id, err := res.LastInsertId(); err == nil {
		tpl.ID = id
	}

	return tx.Commit()
}

func (p *SQLProvider) ListTemplatesByEmployee(ctx context.Context, employeeID int64) ([]BiometricTemplate, error) {
	var templates []BiometricTemplate
	err := p.db.SelectContext(ctx, &templates, p.db.Rebind(`
		SELECT id, employee_id, device_uuid, finger_position, template_data, quality_score, is_active, created_at
		FROM biometric_templates WHERE employee_id = ? ORDER BY created_at DESC`),
		employeeID)
	return templates, err
}

func (p *SQLProvider) GetActiveTemplate(ctx context.Context, employeeID int64, finger FingerPosition) (*BiometricTemplate, error) {
	var tpl BiometricTemplate
	err := p.db.GetContext(ctx, &tpl, p.db.Rebind(`
		SELECT id, employee_id, device_uuid, finger_position, template_data, quality_score, is_active, created_at
		FROM biometric_templates WHERE employee_id = ? AND finger_position = ? AND is_active = ?`),
		employeeID, finger, true)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tpl, nil
}

package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"slotforge/internal/model"
)

// CreateTemplate inserts a template and its blueprints in one transaction.
func (db *DB) CreateTemplate(ctx context.Context, t *model.AvailabilityTemplate, blueprints []model.TemplateRule) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO availability_templates (tenant_id, name, created_at, updated_at)
		VALUES (?, ?, ?, ?)`,
		t.TenantID, t.Name, now, now,
	)
	if err != nil {
		return fmt.Errorf("create template: %w", err)
	}
	t.ID, _ = res.LastInsertId()
	t.CreatedAt = now
	t.UpdatedAt = now

	for i, b := range blueprints {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO template_rules (
				template_id, kind, day_of_week, specific_date,
				start_time, end_time, is_closed, service_duration, position
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, b.Kind, b.DayOfWeek, b.SpecificDate,
			b.StartTime, b.EndTime, b.IsClosed, b.ServiceDuration, i,
		); err != nil {
			return fmt.Errorf("insert blueprint: %w", err)
		}
	}

	return tx.Commit()
}

// GetTemplate returns a tenant's template by id. Returns
// model.ErrTemplateNotFound when the id is unknown to the tenant.
func (db *DB) GetTemplate(ctx context.Context, tenantID, templateID int64) (*model.AvailabilityTemplate, error) {
	var t model.AvailabilityTemplate
	err := db.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, created_at, updated_at
		FROM availability_templates
		WHERE tenant_id = ? AND id = ?
		LIMIT 1`,
		tenantID, templateID,
	).Scan(&t.ID, &t.TenantID, &t.Name, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, model.ErrTemplateNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTemplateRules returns a template's blueprints in edit order.
func (db *DB) ListTemplateRules(ctx context.Context, templateID int64) ([]model.TemplateRule, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, template_id, kind, day_of_week, specific_date,
		       start_time, end_time, is_closed, service_duration, position
		FROM template_rules
		WHERE template_id = ?
		ORDER BY position`,
		templateID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var blueprints []model.TemplateRule
	for rows.Next() {
		var b model.TemplateRule
		var dayOfWeek sql.NullInt64
		var specificDate, startTime, endTime sql.NullString
		if err := rows.Scan(
			&b.ID, &b.TemplateID, &b.Kind, &dayOfWeek, &specificDate,
			&startTime, &endTime, &b.IsClosed, &b.ServiceDuration, &b.Position,
		); err != nil {
			return nil, err
		}
		if dayOfWeek.Valid {
			b.DayOfWeek = int(dayOfWeek.Int64)
		}
		if specificDate.Valid {
			b.SpecificDate = specificDate.String
		}
		if startTime.Valid {
			b.StartTime = startTime.String
		}
		if endTime.Valid {
			b.EndTime = endTime.String
		}
		blueprints = append(blueprints, b)
	}
	return blueprints, rows.Err()
}

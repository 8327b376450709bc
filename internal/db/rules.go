package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"slotforge/internal/model"
)

// CreateRule inserts a single availability rule. The partial unique indexes
// reject a second active recurring rule for the same weekday or a second
// active one-time rule for the same date within a scope.
func (db *DB) CreateRule(ctx context.Context, r *model.AvailabilityRule) error {
	now := time.Now()
	res, err := db.ExecContext(ctx, `
		INSERT INTO availability_rules (
			tenant_id, location_id, scope_kind, unit_id, kind,
			day_of_week, specific_date, start_time, end_time, is_closed,
			service_duration, position, is_active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.TenantID, r.LocationID, r.ScopeKind, r.UnitID, r.Kind,
		r.DayOfWeek, r.SpecificDate, r.StartTime, r.EndTime, r.IsClosed,
		r.ServiceDuration, r.Position, r.IsActive, now, now,
	)
	if err != nil {
		return fmt.Errorf("create rule: %w", err)
	}
	r.ID, _ = res.LastInsertId()
	r.CreatedAt = now
	r.UpdatedAt = now
	return nil
}

// CreateRules inserts a batch of rules in one transaction. Used by the
// template applier so a partially materialized template is never visible.
func (db *DB) CreateRules(ctx context.Context, rules []model.AvailabilityRule) ([]model.AvailabilityRule, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	created := make([]model.AvailabilityRule, 0, len(rules))
	for _, r := range rules {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO availability_rules (
				tenant_id, location_id, scope_kind, unit_id, kind,
				day_of_week, specific_date, start_time, end_time, is_closed,
				service_duration, position, is_active, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.TenantID, r.LocationID, r.ScopeKind, r.UnitID, r.Kind,
			r.DayOfWeek, r.SpecificDate, r.StartTime, r.EndTime, r.IsClosed,
			r.ServiceDuration, r.Position, r.IsActive, now, now,
		)
		if err != nil {
			return nil, fmt.Errorf("insert rule: %w", err)
		}
		r.ID, _ = res.LastInsertId()
		r.CreatedAt = now
		r.UpdatedAt = now
		created = append(created, r)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit rules: %w", err)
	}
	return created, nil
}

// ListActiveRules returns the active rules for every unit of the given kind
// at a location, ordered deterministically.
func (db *DB) ListActiveRules(ctx context.Context, tenantID, locationID int64, kind model.ScopeKind) ([]model.AvailabilityRule, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, tenant_id, location_id, scope_kind, unit_id, kind,
		       day_of_week, specific_date, start_time, end_time, is_closed,
		       service_duration, position, is_active, created_at, updated_at
		FROM availability_rules
		WHERE tenant_id = ? AND location_id = ? AND scope_kind = ? AND is_active = 1
		ORDER BY unit_id, kind, day_of_week, specific_date`,
		tenantID, locationID, kind,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRules(rows)
}

// HasActiveRules reports whether the scope already has active rules.
func (db *DB) HasActiveRules(ctx context.Context, scope model.Scope) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM availability_rules
		WHERE tenant_id = ? AND location_id = ? AND scope_kind = ? AND unit_id = ?
		AND is_active = 1`,
		scope.TenantID, scope.LocationID, scope.Kind, scope.UnitID,
	).Scan(&count)
	return count > 0, err
}

// DeactivateRules retires all active rules of a scope, keeping them for
// history. Called before overwriting a scope with a template.
func (db *DB) DeactivateRules(ctx context.Context, scope model.Scope) error {
	_, err := db.ExecContext(ctx, `
		UPDATE availability_rules
		SET is_active = 0, updated_at = ?
		WHERE tenant_id = ? AND location_id = ? AND scope_kind = ? AND unit_id = ?
		AND is_active = 1`,
		time.Now(), scope.TenantID, scope.LocationID, scope.Kind, scope.UnitID,
	)
	return err
}

func scanRules(rows *sql.Rows) ([]model.AvailabilityRule, error) {
	var rules []model.AvailabilityRule
	for rows.Next() {
		var r model.AvailabilityRule
		var dayOfWeek sql.NullInt64
		var specificDate, startTime, endTime sql.NullString
		if err := rows.Scan(
			&r.ID, &r.TenantID, &r.LocationID, &r.ScopeKind, &r.UnitID, &r.Kind,
			&dayOfWeek, &specificDate, &startTime, &endTime, &r.IsClosed,
			&r.ServiceDuration, &r.Position, &r.IsActive, &r.CreatedAt, &r.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if dayOfWeek.Valid {
			r.DayOfWeek = int(dayOfWeek.Int64)
		}
		if specificDate.Valid {
			r.SpecificDate = specificDate.String
		}
		if startTime.Valid {
			r.StartTime = startTime.String
		}
		if endTime.Valid {
			r.EndTime = endTime.String
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

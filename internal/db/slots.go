package db

import (
	"context"
	"fmt"
	"time"

	"slotforge/internal/model"
)

// ReplaceSlotsForDate atomically supersedes every generated slot for
// (tenant, location, scope kind) on one calendar date with the given rows.
// Other dates are untouched, so regenerating one day can never corrupt the
// rest of the horizon.
func (db *DB) ReplaceSlotsForDate(ctx context.Context, tenantID, locationID int64, kind model.ScopeKind, date string, slots []model.GeneratedSlot) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM generated_slots
		WHERE tenant_id = ? AND location_id = ? AND scope_kind = ? AND date = ?`,
		tenantID, locationID, kind, date,
	); err != nil {
		return fmt.Errorf("delete slots for %s: %w", date, err)
	}

	now := time.Now()
	for _, s := range slots {
		var startAt, endAt any
		if !s.StartAt.IsZero() {
			startAt = s.StartAt.UTC()
			endAt = s.EndAt.UTC()
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO generated_slots (
				tenant_id, location_id, scope_kind, unit_id, date,
				start_at, end_at, is_closed, service_duration, generated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			s.TenantID, s.LocationID, s.ScopeKind, s.UnitID, s.Date,
			startAt, endAt, s.IsClosed, s.ServiceDuration, now,
		); err != nil {
			return fmt.Errorf("insert slot for %s: %w", date, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit slots for %s: %w", date, err)
	}
	return nil
}

// ListSlots returns generated slots for a date range (inclusive), ordered by
// date, unit and start time.
func (db *DB) ListSlots(ctx context.Context, tenantID, locationID int64, kind model.ScopeKind, fromDate, toDate string) ([]model.GeneratedSlot, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, tenant_id, location_id, scope_kind, unit_id, date,
		       start_at, end_at, is_closed, service_duration, generated_at
		FROM generated_slots
		WHERE tenant_id = ? AND location_id = ? AND scope_kind = ?
		AND date >= ? AND date <= ?
		ORDER BY date, unit_id, start_at`,
		tenantID, locationID, kind, fromDate, toDate,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var slots []model.GeneratedSlot
	for rows.Next() {
		var s model.GeneratedSlot
		var startAt, endAt *time.Time
		if err := rows.Scan(
			&s.ID, &s.TenantID, &s.LocationID, &s.ScopeKind, &s.UnitID, &s.Date,
			&startAt, &endAt, &s.IsClosed, &s.ServiceDuration, &s.GeneratedAt,
		); err != nil {
			return nil, err
		}
		if startAt != nil {
			s.StartAt = *startAt
		}
		if endAt != nil {
			s.EndAt = *endAt
		}
		slots = append(slots, s)
	}
	return slots, rows.Err()
}

// CountSlotsForDate returns the number of slot rows for one date.
func (db *DB) CountSlotsForDate(ctx context.Context, tenantID, locationID int64, kind model.ScopeKind, date string) (int, error) {
	var count int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM generated_slots
		WHERE tenant_id = ? AND location_id = ? AND scope_kind = ? AND date = ?`,
		tenantID, locationID, kind, date,
	).Scan(&count)
	return count, err
}

package db

import (
	"context"
	"database/sql"
	"time"

	"slotforge/internal/model"
)

// UpsertLocation creates or updates a location row.
func (db *DB) UpsertLocation(ctx context.Context, l *model.Location) error {
	now := time.Now()
	_, err := db.ExecContext(ctx, `
		INSERT INTO locations (
			tenant_id, location_id, name, timezone, location_type,
			default_service_duration, trigger_hour, is_active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, location_id) DO UPDATE SET
			name = excluded.name,
			timezone = excluded.timezone,
			location_type = excluded.location_type,
			default_service_duration = excluded.default_service_duration,
			trigger_hour = excluded.trigger_hour,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at`,
		l.TenantID, l.LocationID, l.Name, l.Timezone, l.LocationType,
		l.DefaultServiceDuration, l.TriggerHour, l.IsActive, now, now,
	)
	return err
}

// GetLocation returns the location for (tenant, location).
func (db *DB) GetLocation(ctx context.Context, tenantID, locationID int64) (*model.Location, error) {
	var l model.Location
	var locType sql.NullString
	err := db.QueryRowContext(ctx, `
		SELECT tenant_id, location_id, name, timezone, location_type,
		       default_service_duration, trigger_hour, is_active, created_at, updated_at
		FROM locations
		WHERE tenant_id = ? AND location_id = ?
		LIMIT 1`,
		tenantID, locationID,
	).Scan(
		&l.TenantID, &l.LocationID, &l.Name, &l.Timezone, &locType,
		&l.DefaultServiceDuration, &l.TriggerHour, &l.IsActive, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if locType.Valid {
		l.LocationType = locType.String
	}
	return &l, nil
}

// ListActiveLocations returns every active location across all tenants.
// Used by the dispatchers to enumerate (tenant, location) pairs.
func (db *DB) ListActiveLocations(ctx context.Context) ([]model.Location, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT tenant_id, location_id, name, timezone, location_type,
		       default_service_duration, trigger_hour, is_active, created_at, updated_at
		FROM locations
		WHERE is_active = 1
		ORDER BY tenant_id, location_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var locations []model.Location
	for rows.Next() {
		var l model.Location
		var locType sql.NullString
		if err := rows.Scan(
			&l.TenantID, &l.LocationID, &l.Name, &l.Timezone, &locType,
			&l.DefaultServiceDuration, &l.TriggerHour, &l.IsActive, &l.CreatedAt, &l.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if locType.Valid {
			l.LocationType = locType.String
		}
		locations = append(locations, l)
	}
	return locations, rows.Err()
}

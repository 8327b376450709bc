package db

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps sql.DB for the availability engine.
type DB struct {
	*sql.DB
}

// NewDB opens the database at path and runs migrations.
func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if err := createTables(db); err != nil {
		return nil, err
	}
	return &DB{db}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		// Locations
		`CREATE TABLE IF NOT EXISTS locations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tenant_id INTEGER NOT NULL,
			location_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			timezone TEXT NOT NULL DEFAULT 'UTC',
			location_type TEXT,
			default_service_duration INTEGER NOT NULL DEFAULT 60,
			trigger_hour INTEGER NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(tenant_id, location_id)
		)`,

		// Availability rules (recurring weekly + one-time date overrides)
		`CREATE TABLE IF NOT EXISTS availability_rules (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tenant_id INTEGER NOT NULL,
			location_id INTEGER NOT NULL,
			scope_kind TEXT NOT NULL,
			unit_id INTEGER NOT NULL DEFAULT 0,
			kind TEXT NOT NULL,
			day_of_week INTEGER,
			specific_date TEXT,
			start_time TEXT,
			end_time TEXT,
			is_closed BOOLEAN NOT NULL DEFAULT 0,
			service_duration INTEGER NOT NULL DEFAULT 0,
			position INTEGER NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Tenant-scoped rule templates
		`CREATE TABLE IF NOT EXISTS availability_templates (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tenant_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(tenant_id, name)
		)`,

		// Rule blueprints inside a template
		`CREATE TABLE IF NOT EXISTS template_rules (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			template_id INTEGER NOT NULL,
			kind TEXT NOT NULL,
			day_of_week INTEGER,
			specific_date TEXT,
			start_time TEXT,
			end_time TEXT,
			is_closed BOOLEAN NOT NULL DEFAULT 0,
			service_duration INTEGER NOT NULL DEFAULT 0,
			position INTEGER NOT NULL DEFAULT 0,
			FOREIGN KEY (template_id) REFERENCES availability_templates(id)
		)`,

		// Derived slots; replaced per (scope, date), never edited in place
		`CREATE TABLE IF NOT EXISTS generated_slots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tenant_id INTEGER NOT NULL,
			location_id INTEGER NOT NULL,
			scope_kind TEXT NOT NULL,
			unit_id INTEGER NOT NULL DEFAULT 0,
			date TEXT NOT NULL,
			start_at DATETIME,
			end_at DATETIME,
			is_closed BOOLEAN NOT NULL DEFAULT 0,
			service_duration INTEGER NOT NULL DEFAULT 0,
			generated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// At most one recurring interval per weekday and one override per
		// date within a scope. Partial indexes keep inactive history rows.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_rules_recurring_unique
			ON availability_rules(tenant_id, location_id, scope_kind, unit_id, day_of_week)
			WHERE kind = 'recurring' AND is_active = 1`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_rules_onetime_unique
			ON availability_rules(tenant_id, location_id, scope_kind, unit_id, specific_date)
			WHERE kind = 'one_time' AND is_active = 1`,
		`CREATE INDEX IF NOT EXISTS idx_rules_scope
			ON availability_rules(tenant_id, location_id, scope_kind, is_active)`,
		`CREATE INDEX IF NOT EXISTS idx_template_rules_template
			ON template_rules(template_id, position)`,
		`CREATE INDEX IF NOT EXISTS idx_slots_scope_date
			ON generated_slots(tenant_id, location_id, scope_kind, date)`,
		`CREATE INDEX IF NOT EXISTS idx_locations_active ON locations(is_active)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}
	return nil
}

func trimSQL(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}

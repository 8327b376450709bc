package model

import "time"

// Location is a physical place owned by a tenant. Timezone is an IANA zone
// name; all rule wall-clock times for the location are interpreted in it.
type Location struct {
	TenantID     int64  `json:"tenant_id"`
	LocationID   int64  `json:"location_id"`
	Name         string `json:"name"`
	Timezone     string `json:"timezone"`
	LocationType string `json:"location_type"`

	// DefaultServiceDuration in minutes, inherited by rules that do not
	// set their own.
	DefaultServiceDuration int `json:"default_service_duration"`

	// TriggerHour is the local hour (0-23) at which the hourly dispatcher
	// enqueues a full-horizon job for this location. Default 0 (midnight).
	TriggerHour int `json:"trigger_hour"`

	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

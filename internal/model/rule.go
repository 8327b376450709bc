package model

import "time"

// RuleKind distinguishes weekly-repeating rules from single-date overrides.
type RuleKind string

const (
	RuleRecurring RuleKind = "recurring"
	RuleOneTime   RuleKind = "one_time"
)

// AvailabilityRule describes when a unit is open or closed.
//
// A recurring rule keys on DayOfWeek (0=Sunday .. 6=Saturday) and repeats
// weekly. A one-time rule keys on SpecificDate ("2006-01-02") and overrides
// any recurring rule for that date within the same scope. Closures are
// expressed with IsClosed=true, not by omitting the rule.
type AvailabilityRule struct {
	ID         int64     `json:"id"`
	TenantID   int64     `json:"tenant_id"`
	LocationID int64     `json:"location_id"`
	ScopeKind  ScopeKind `json:"scope_kind"`
	UnitID     int64     `json:"unit_id"`

	Kind         RuleKind `json:"kind"`
	DayOfWeek    int      `json:"day_of_week"`   // recurring only
	SpecificDate string   `json:"specific_date"` // one-time only
	StartTime    string   `json:"start_time"`    // "09:00" local wall clock
	EndTime      string   `json:"end_time"`      // "17:00"
	IsClosed     bool     `json:"is_closed"`

	// ServiceDuration in minutes; zero inherits the location default.
	ServiceDuration int `json:"service_duration"`

	// Position preserves blueprint order when the rule was materialized
	// from a template. It does not affect generation.
	Position int `json:"position"`

	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Scope returns the owning scope of the rule.
func (r *AvailabilityRule) Scope() Scope {
	return Scope{
		TenantID:   r.TenantID,
		LocationID: r.LocationID,
		Kind:       r.ScopeKind,
		UnitID:     r.UnitID,
	}
}

package model

import "fmt"

// ScopeKind selects which kind of bookable unit a rule or job applies to.
type ScopeKind string

const (
	ScopeVenue ScopeKind = "venue"
	ScopeStaff ScopeKind = "staff"
)

// Valid reports whether the scope kind is one of the known kinds.
func (k ScopeKind) Valid() bool {
	return k == ScopeVenue || k == ScopeStaff
}

// Scope identifies the (tenant, location, unit) triple that owns a rule set.
// UnitID is a venue unit id or a staff id depending on Kind; zero means the
// scope covers the whole location.
type Scope struct {
	TenantID   int64     `json:"tenant_id"`
	LocationID int64     `json:"location_id"`
	Kind       ScopeKind `json:"scope_kind"`
	UnitID     int64     `json:"unit_id"`
}

func (s Scope) String() string {
	return fmt.Sprintf("%d/%d/%s/%d", s.TenantID, s.LocationID, s.Kind, s.UnitID)
}

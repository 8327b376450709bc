package model

import "time"

// AvailabilityTemplate is a named, tenant-scoped bundle of rule blueprints.
// Applying a template copies its blueprints into concrete rules owned by the
// target scope; there is no live link back to the template afterwards.
type AvailabilityTemplate struct {
	ID        int64     `json:"id"`
	TenantID  int64     `json:"tenant_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TemplateRule is a rule blueprint: the shape of an AvailabilityRule minus
// the scope binding. Position is the edit order within the template.
type TemplateRule struct {
	ID              int64    `json:"id"`
	TemplateID      int64    `json:"template_id"`
	Kind            RuleKind `json:"kind"`
	DayOfWeek       int      `json:"day_of_week"`
	SpecificDate    string   `json:"specific_date"`
	StartTime       string   `json:"start_time"`
	EndTime         string   `json:"end_time"`
	IsClosed        bool     `json:"is_closed"`
	ServiceDuration int      `json:"service_duration"`
	Position        int      `json:"position"`
}

// Materialize binds the blueprint to a concrete scope.
func (t *TemplateRule) Materialize(target Scope) AvailabilityRule {
	return AvailabilityRule{
		TenantID:        target.TenantID,
		LocationID:      target.LocationID,
		ScopeKind:       target.Kind,
		UnitID:          target.UnitID,
		Kind:            t.Kind,
		DayOfWeek:       t.DayOfWeek,
		SpecificDate:    t.SpecificDate,
		StartTime:       t.StartTime,
		EndTime:         t.EndTime,
		IsClosed:        t.IsClosed,
		ServiceDuration: t.ServiceDuration,
		Position:        t.Position,
		IsActive:        true,
	}
}

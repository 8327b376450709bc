package model

import "time"

// GeneratedSlot is one materialized availability entry for a unit on a
// concrete date. It is derived data: regenerating a date replaces every slot
// row for that (scope, date) pair in one transaction.
//
// Closed markers carry IsClosed=true and zero StartAt/EndAt so consumers can
// tell an explicitly closed or ruleless day from a day that was never
// generated.
type GeneratedSlot struct {
	ID         int64     `json:"-"`
	TenantID   int64     `json:"tenant_id"`
	LocationID int64     `json:"location_id"`
	ScopeKind  ScopeKind `json:"scope_kind"`
	UnitID     int64     `json:"unit_id"`

	Date    string    `json:"date"` // local calendar date "2006-01-02"
	StartAt time.Time `json:"start_at,omitempty"`
	EndAt   time.Time `json:"end_at,omitempty"`

	IsClosed        bool `json:"is_closed"`
	ServiceDuration int  `json:"service_duration"` // minutes; 0 on closed markers

	GeneratedAt time.Time `json:"generated_at"`
}

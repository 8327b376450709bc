package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// JobStatus is the lifecycle state of a generation job.
type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobRunning JobStatus = "running"
	JobSuccess JobStatus = "success"
	JobFailure JobStatus = "failure"
	JobRetry   JobStatus = "retry"
)

// Terminal reports whether the status is final.
func (s JobStatus) Terminal() bool {
	return s == JobSuccess || s == JobFailure
}

// JobError is the structured failure reason attached to a failed job.
type JobError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (e *JobError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Failure reason kinds.
const (
	ErrKindValidation = "validation"
	ErrKindStorage    = "storage"
	ErrKindTimeout    = "timeout"
)

// GenerationJob is one asynchronous generation request. Key is deterministic
// for the (tenant, location, scope kind, affected date) quadruple so that
// duplicate submissions coalesce onto the same job.
type GenerationJob struct {
	ID         int64  `json:"-"`
	JobID      string `json:"job_id"`
	Key        string `json:"job_key"`
	TenantID   int64  `json:"tenant_id"`
	LocationID int64  `json:"location_id"`

	ScopeKind ScopeKind `json:"scope_kind"`
	Timezone  string    `json:"timezone"`

	// AffectedDate is empty for full-horizon jobs and "2006-01-02" for
	// single-date regeneration.
	AffectedDate string `json:"affected_date,omitempty"`

	// TemplateID, when non-zero, applies the template to the scope
	// (ScopeKind, TemplateUnitID) before generating.
	TemplateID        int64 `json:"template_id,omitempty"`
	TemplateUnitID    int64 `json:"template_unit_id,omitempty"`
	TemplateOverwrite bool  `json:"template_overwrite,omitempty"`

	Status   JobStatus `json:"status"`
	Attempts int       `json:"attempts"`

	Result json.RawMessage `json:"result,omitempty"`
	Error  *JobError       `json:"error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// IsRegeneration reports whether the job targets a single affected date.
func (j *GenerationJob) IsRegeneration() bool {
	return j.AffectedDate != ""
}

// JobKey builds the deterministic dedup key. Full-horizon jobs use the
// literal segment "full" in place of a date.
func JobKey(tenantID, locationID int64, kind ScopeKind, affectedDate string) string {
	scope := affectedDate
	if scope == "" {
		scope = "full"
	}
	return fmt.Sprintf("gen:%d:%d:%s:%s", tenantID, locationID, kind, scope)
}

// Package dispatch holds the time-triggered drivers that enqueue generation
// jobs. Dispatchers only produce work items; execution belongs to the worker
// pool, and duplicate firings collapse onto the same job key downstream.
package dispatch

import (
	"context"

	"slotforge/internal/jobs"
	"slotforge/internal/model"
)

// LocationSource enumerates the (tenant, location) pairs eligible for
// generation.
type LocationSource interface {
	ListActiveLocations(ctx context.Context) ([]model.Location, error)
}

// Submitter accepts generation requests. Implemented by the job
// orchestrator.
type Submitter interface {
	Submit(ctx context.Context, req jobs.SubmitRequest) (*model.GenerationJob, bool, error)
}

// scopeKinds are the scope kinds every dispatcher fans out over.
var scopeKinds = []model.ScopeKind{model.ScopeVenue, model.ScopeStaff}

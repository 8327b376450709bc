package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"slotforge/internal/db"
	"slotforge/internal/metrics"
	"slotforge/internal/model"
	"slotforge/internal/slots"
	"slotforge/internal/template"
)

// ExecutorConfig tunes the generation pipeline.
type ExecutorConfig struct {
	// HorizonDays is the full-horizon window length. Default 60.
	HorizonDays int
	// ChunkDays is the snapshot chunk size; single-date regeneration
	// recomputes the chunk containing the affected date. Default 3.
	ChunkDays int
	// FallbackDuration is the service duration (minutes) used when neither
	// the rule nor the location defines one. Default 60.
	FallbackDuration int
}

// DefaultExecutorConfig returns the production defaults.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		HorizonDays:      60,
		ChunkDays:        3,
		FallbackDuration: slots.FallbackServiceDuration,
	}
}

// DateFailure reports one calendar date that failed validation during an
// otherwise successful run.
type DateFailure struct {
	Date   string `json:"date"`
	UnitID int64  `json:"unit_id"`
	Reason string `json:"reason"`
}

// ExecResult is the structured payload attached to a successful job.
type ExecResult struct {
	Status       string        `json:"status"`
	TenantID     int64         `json:"tenant_id"`
	LocationID   int64         `json:"location_id"`
	ScopeKind    string        `json:"scope_kind"`
	StartDate    string        `json:"start_date,omitempty"`
	Days         int           `json:"days,omitempty"`
	SlotsWritten int           `json:"slots_written,omitempty"`
	DatesFailed  []DateFailure `json:"dates_failed,omitempty"`
}

// Executor runs one generation job end to end: resolve the location, apply a
// template when requested, generate slots, replace them per date, publish
// snapshot chunks.
type Executor struct {
	store     *db.DB
	applier   *template.Applier
	snapshots *SnapshotCache
	config    ExecutorConfig
	logger    *zerolog.Logger
}

// NewExecutor creates an executor.
func NewExecutor(store *db.DB, applier *template.Applier, snapshots *SnapshotCache, config ExecutorConfig, logger *zerolog.Logger) *Executor {
	if config.HorizonDays <= 0 {
		config.HorizonDays = 60
	}
	if config.ChunkDays <= 0 {
		config.ChunkDays = 3
	}
	if config.FallbackDuration <= 0 {
		config.FallbackDuration = slots.FallbackServiceDuration
	}
	return &Executor{store: store, applier: applier, snapshots: snapshots, config: config, logger: logger}
}

// Execute runs the job and returns the result payload. Validation errors are
// deterministic and must not be retried; storage errors come back as
// *model.TransientStorageError.
func (e *Executor) Execute(ctx context.Context, job *model.GenerationJob) (json.RawMessage, error) {
	location, err := e.store.GetLocation(ctx, job.TenantID, job.LocationID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &model.ValidationError{Reason: fmt.Sprintf("unknown location %d/%d", job.TenantID, job.LocationID)}
	}
	if err != nil {
		return nil, &model.TransientStorageError{Op: "load location", Err: err}
	}

	tzName := job.Timezone
	if tzName == "" {
		tzName = location.Timezone
	}
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, &model.ValidationError{Reason: fmt.Sprintf("unknown timezone %q", tzName)}
	}

	if job.TemplateID != 0 {
		target := model.Scope{
			TenantID:   job.TenantID,
			LocationID: job.LocationID,
			Kind:       job.ScopeKind,
			UnitID:     job.TemplateUnitID,
		}
		if _, err := e.applier.Apply(ctx, job.TemplateID, target, job.TemplateOverwrite); err != nil {
			if model.IsValidation(err) {
				return nil, err
			}
			return nil, &model.TransientStorageError{Op: "apply template", Err: err}
		}
	}

	horizonStart := slots.LocalMidnight(time.Now(), loc)
	start, days, skipped := e.window(job, horizonStart)
	if skipped {
		e.logger.Info().Str("job_id", job.JobID).Str("affected_date", job.AffectedDate).
			Msg("affected date in the past, nothing to regenerate")
		return json.Marshal(ExecResult{
			Status:     "skipped",
			TenantID:   job.TenantID,
			LocationID: job.LocationID,
			ScopeKind:  string(job.ScopeKind),
		})
	}

	rules, err := e.store.ListActiveRules(ctx, job.TenantID, job.LocationID, job.ScopeKind)
	if err != nil {
		return nil, &model.TransientStorageError{Op: "list rules", Err: err}
	}

	byDate, failures := e.generate(job, rules, start, days, location.DefaultServiceDuration)

	written := 0
	for offset := 0; offset < days; offset++ {
		date := start.AddDate(0, 0, offset).Format(slots.DateFormat)
		daySlots := byDate[date]
		if err := e.store.ReplaceSlotsForDate(ctx, job.TenantID, job.LocationID, job.ScopeKind, date, daySlots); err != nil {
			return nil, &model.TransientStorageError{Op: "replace slots", Err: err}
		}
		written += len(daySlots)
	}
	metrics.AddSlotsGenerated(string(job.ScopeKind), written)

	if e.snapshots != nil {
		if err := e.publishSnapshots(ctx, job, start, days, byDate); err != nil {
			return nil, err
		}
	}

	result := ExecResult{
		Status:       "success",
		TenantID:     job.TenantID,
		LocationID:   job.LocationID,
		ScopeKind:    string(job.ScopeKind),
		StartDate:    start.Format(slots.DateFormat),
		Days:         days,
		SlotsWritten: written,
		DatesFailed:  failures,
	}
	return json.Marshal(result)
}

// window computes the generation range. Full-horizon jobs cover
// [horizonStart, horizonStart+HorizonDays); regeneration covers the
// ChunkDays-aligned chunk containing the affected date. Past affected dates
// are skipped.
func (e *Executor) window(job *model.GenerationJob, horizonStart time.Time) (start time.Time, days int, skipped bool) {
	if !job.IsRegeneration() {
		return horizonStart, e.config.HorizonDays, false
	}

	affected, err := time.ParseInLocation(slots.DateFormat, job.AffectedDate, horizonStart.Location())
	if err != nil {
		// Caught earlier by request validation; treat as nothing to do.
		return horizonStart, 0, true
	}

	offset := calendarDays(horizonStart, affected)
	if offset < 0 {
		return horizonStart, 0, true
	}

	chunkStart := (offset / e.config.ChunkDays) * e.config.ChunkDays
	return horizonStart.AddDate(0, 0, chunkStart), e.config.ChunkDays, false
}

// calendarDays returns the number of calendar days from a to b. The elapsed
// time between two local midnights is not a whole number of days across a
// DST transition, so the dates are compared on a fixed-offset clock.
func calendarDays(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	au := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	bu := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(bu.Sub(au) / (24 * time.Hour))
}

// generate runs the pure generator per unit and regroups outcomes by date.
// A validation failure on one (unit, date) is recorded and excluded; it
// never aborts other units or dates.
func (e *Executor) generate(job *model.GenerationJob, rules []model.AvailabilityRule, start time.Time, days int, defaultDuration int) (map[string][]model.GeneratedSlot, []DateFailure) {
	byUnit := make(map[int64][]model.AvailabilityRule)
	unitIDs := make([]int64, 0)
	for _, r := range rules {
		if _, seen := byUnit[r.UnitID]; !seen {
			unitIDs = append(unitIDs, r.UnitID)
		}
		byUnit[r.UnitID] = append(byUnit[r.UnitID], r)
	}
	sort.Slice(unitIDs, func(i, j int) bool { return unitIDs[i] < unitIDs[j] })

	if defaultDuration <= 0 {
		defaultDuration = e.config.FallbackDuration
	}

	byDate := make(map[string][]model.GeneratedSlot, days)
	var failures []DateFailure

	if len(unitIDs) == 0 {
		// No rules at all: every date is closed for the location scope.
		scope := model.Scope{TenantID: job.TenantID, LocationID: job.LocationID, Kind: job.ScopeKind}
		for _, outcome := range slots.Generate(scope, nil, start, days, defaultDuration) {
			byDate[outcome.Date] = append(byDate[outcome.Date], outcome.Slot)
		}
		return byDate, nil
	}

	for _, unitID := range unitIDs {
		scope := model.Scope{
			TenantID:   job.TenantID,
			LocationID: job.LocationID,
			Kind:       job.ScopeKind,
			UnitID:     unitID,
		}
		for _, outcome := range slots.Generate(scope, byUnit[unitID], start, days, defaultDuration) {
			if outcome.Err != nil {
				failures = append(failures, DateFailure{
					Date:   outcome.Date,
					UnitID: unitID,
					Reason: outcome.Err.Error(),
				})
				continue
			}
			byDate[outcome.Date] = append(byDate[outcome.Date], outcome.Slot)
		}
	}

	return byDate, failures
}

func (e *Executor) publishSnapshots(ctx context.Context, job *model.GenerationJob, start time.Time, days int, byDate map[string][]model.GeneratedSlot) error {
	for chunkOffset := 0; chunkOffset < days; chunkOffset += e.config.ChunkDays {
		chunkStart := start.AddDate(0, 0, chunkOffset)
		chunkDays := e.config.ChunkDays
		if remaining := days - chunkOffset; remaining < chunkDays {
			chunkDays = remaining
		}

		chunk := make(map[string][]model.GeneratedSlot, chunkDays)
		for d := 0; d < chunkDays; d++ {
			date := chunkStart.AddDate(0, 0, d).Format(slots.DateFormat)
			chunk[date] = byDate[date]
		}

		if err := e.snapshots.Publish(ctx, job, chunkStart, chunkDays, chunk, !job.IsRegeneration()); err != nil {
			return err
		}
	}
	return nil
}

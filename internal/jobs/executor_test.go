package jobs

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slotforge/internal/db"
	"slotforge/internal/model"
	"slotforge/internal/slots"
	"slotforge/internal/template"
)

type executorEnv struct {
	store    *db.DB
	rdb      *redis.Client
	executor *Executor
}

func newExecutorEnv(t *testing.T, config ExecutorConfig) *executorEnv {
	t.Helper()
	database, err := db.NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	rdb := newTestRedis(t)
	logger := discardLogger()
	applier := template.NewApplier(database, logger)
	snapshots := NewSnapshotCache(rdb, 0, logger)

	return &executorEnv{
		store:    database,
		rdb:      rdb,
		executor: NewExecutor(database, applier, snapshots, config, logger),
	}
}

func (env *executorEnv) seedLocation(t *testing.T, timezone string, defaultDuration int) {
	t.Helper()
	require.NoError(t, env.store.UpsertLocation(context.Background(), &model.Location{
		TenantID: 1, LocationID: 10, Name: "Main", Timezone: timezone,
		DefaultServiceDuration: defaultDuration, IsActive: true,
	}))
}

func (env *executorEnv) seedOpenWeek(t *testing.T, kind model.ScopeKind, unitID int64) {
	t.Helper()
	rules := make([]model.AvailabilityRule, 0, 7)
	for dow := 0; dow < 7; dow++ {
		rules = append(rules, model.AvailabilityRule{
			TenantID: 1, LocationID: 10, ScopeKind: kind, UnitID: unitID,
			Kind: model.RuleRecurring, DayOfWeek: dow,
			StartTime: "09:00", EndTime: "17:00", IsActive: true,
		})
	}
	_, err := env.store.CreateRules(context.Background(), rules)
	require.NoError(t, err)
}

func fullHorizonJob(kind model.ScopeKind) *model.GenerationJob {
	return &model.GenerationJob{
		JobID:      "test-job",
		Key:        model.JobKey(1, 10, kind, ""),
		TenantID:   1,
		LocationID: 10,
		ScopeKind:  kind,
	}
}

func decodeResult(t *testing.T, raw json.RawMessage) ExecResult {
	t.Helper()
	var result ExecResult
	require.NoError(t, json.Unmarshal(raw, &result))
	return result
}

func TestExecuteFullHorizon(t *testing.T) {
	env := newExecutorEnv(t, ExecutorConfig{HorizonDays: 6, ChunkDays: 3})
	env.seedLocation(t, "America/New_York", 30)
	env.seedOpenWeek(t, model.ScopeVenue, 0)
	ctx := context.Background()

	raw, err := env.executor.Execute(ctx, fullHorizonJob(model.ScopeVenue))
	require.NoError(t, err)

	result := decodeResult(t, raw)
	assert.Equal(t, "success", result.Status)
	assert.Equal(t, 6, result.Days)
	assert.Equal(t, 6, result.SlotsWritten)
	assert.Empty(t, result.DatesFailed)

	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	start := slots.LocalMidnight(time.Now(), loc)
	from := start.Format(slots.DateFormat)
	to := start.AddDate(0, 0, 5).Format(slots.DateFormat)

	stored, err := env.store.ListSlots(ctx, 1, 10, model.ScopeVenue, from, to)
	require.NoError(t, err)
	require.Len(t, stored, 6)
	for _, s := range stored {
		assert.False(t, s.IsClosed)
		assert.Equal(t, 30, s.ServiceDuration, "location default duration is inherited")
	}

	// One snapshot document per 3-day chunk.
	for _, chunkStart := range []string{from, start.AddDate(0, 0, 3).Format(slots.DateFormat)} {
		key := SnapshotKey(1, 10, model.ScopeVenue, chunkStart)
		data, err := env.rdb.Get(ctx, key).Bytes()
		require.NoError(t, err, "missing snapshot %s", key)

		var doc snapshotDoc
		require.NoError(t, json.Unmarshal(data, &doc))
		assert.Len(t, doc.Availabilities, 3)
		for _, day := range doc.Availabilities {
			assert.True(t, day.IsOpen)
			require.Len(t, day.Units, 1)
			require.Len(t, day.Units[0].Slots, 1)
			assert.Equal(t, "09:00", day.Units[0].Slots[0].Start)
			assert.Equal(t, "17:00", day.Units[0].Slots[0].End)
		}
	}
}

func TestExecuteNoRulesWritesClosedMarkers(t *testing.T) {
	env := newExecutorEnv(t, ExecutorConfig{HorizonDays: 4, ChunkDays: 2})
	env.seedLocation(t, "UTC", 60)
	ctx := context.Background()

	raw, err := env.executor.Execute(ctx, fullHorizonJob(model.ScopeVenue))
	require.NoError(t, err)

	result := decodeResult(t, raw)
	assert.Equal(t, "success", result.Status)
	assert.Equal(t, 4, result.SlotsWritten)

	start := slots.LocalMidnight(time.Now(), time.UTC)
	stored, err := env.store.ListSlots(ctx, 1, 10, model.ScopeVenue,
		start.Format(slots.DateFormat), start.AddDate(0, 0, 3).Format(slots.DateFormat))
	require.NoError(t, err)
	require.Len(t, stored, 4)
	for _, s := range stored {
		assert.True(t, s.IsClosed)
	}
}

func TestExecuteUnknownLocationIsValidationError(t *testing.T) {
	env := newExecutorEnv(t, ExecutorConfig{})

	_, err := env.executor.Execute(context.Background(), fullHorizonJob(model.ScopeVenue))
	require.Error(t, err)
	assert.True(t, model.IsValidation(err))
	assert.False(t, model.IsTransient(err))
}

func TestExecuteUnknownTimezoneIsValidationError(t *testing.T) {
	env := newExecutorEnv(t, ExecutorConfig{})
	env.seedLocation(t, "UTC", 60)

	job := fullHorizonJob(model.ScopeVenue)
	job.Timezone = "Mars/Olympus"
	_, err := env.executor.Execute(context.Background(), job)
	require.Error(t, err)
	assert.True(t, model.IsValidation(err))
}

func TestExecuteRegenerationPastDateSkipped(t *testing.T) {
	env := newExecutorEnv(t, ExecutorConfig{HorizonDays: 6, ChunkDays: 3})
	env.seedLocation(t, "UTC", 60)

	job := fullHorizonJob(model.ScopeVenue)
	job.AffectedDate = time.Now().UTC().AddDate(0, 0, -2).Format(slots.DateFormat)

	raw, err := env.executor.Execute(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, "skipped", decodeResult(t, raw).Status)

	count, err := env.store.CountSlotsForDate(context.Background(), 1, 10, model.ScopeVenue, job.AffectedDate)
	require.NoError(t, err)
	assert.Zero(t, count, "past dates are never rewritten")
}

func TestExecuteRegenerationCoversOnlyAffectedChunk(t *testing.T) {
	env := newExecutorEnv(t, ExecutorConfig{HorizonDays: 9, ChunkDays: 3})
	env.seedLocation(t, "UTC", 60)
	env.seedOpenWeek(t, model.ScopeVenue, 0)
	ctx := context.Background()

	start := slots.LocalMidnight(time.Now(), time.UTC)

	job := fullHorizonJob(model.ScopeVenue)
	job.AffectedDate = start.AddDate(0, 0, 4).Format(slots.DateFormat)

	raw, err := env.executor.Execute(ctx, job)
	require.NoError(t, err)

	result := decodeResult(t, raw)
	assert.Equal(t, "success", result.Status)
	assert.Equal(t, 3, result.Days, "regeneration recomputes one chunk")
	assert.Equal(t, start.AddDate(0, 0, 3).Format(slots.DateFormat), result.StartDate,
		"chunk start is aligned to the horizon grid")

	// Dates outside the chunk stay untouched.
	count, err := env.store.CountSlotsForDate(ctx, 1, 10, model.ScopeVenue, start.Format(slots.DateFormat))
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestWindowCoversAffectedDateAcrossDST(t *testing.T) {
	executor := NewExecutor(nil, nil, nil, ExecutorConfig{HorizonDays: 60, ChunkDays: 3}, discardLogger())
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	tests := []struct {
		name         string
		horizonStart time.Time
		affectedDate string
		wantStart    string
	}{
		{
			// 2026-03-08 springs forward, so the elapsed time between
			// the two midnights is one hour short of 12 whole days.
			name:         "spring forward",
			horizonStart: time.Date(2026, 3, 1, 0, 0, 0, 0, loc),
			affectedDate: "2026-03-13",
			wantStart:    "2026-03-13",
		},
		{
			// 2026-11-01 falls back, one hour over 3 whole days.
			name:         "fall back",
			horizonStart: time.Date(2026, 10, 30, 0, 0, 0, 0, loc),
			affectedDate: "2026-11-02",
			wantStart:    "2026-11-02",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := &model.GenerationJob{AffectedDate: tt.affectedDate}

			start, days, skipped := executor.window(job, tt.horizonStart)
			require.False(t, skipped)
			assert.Equal(t, 3, days)
			assert.Equal(t, tt.wantStart, start.Format(slots.DateFormat))

			covered := false
			for offset := 0; offset < days; offset++ {
				if start.AddDate(0, 0, offset).Format(slots.DateFormat) == tt.affectedDate {
					covered = true
				}
			}
			assert.True(t, covered, "regenerated window must include the affected date")
		})
	}
}

func TestExecuteRecordsPerDateFailuresWithoutAborting(t *testing.T) {
	env := newExecutorEnv(t, ExecutorConfig{HorizonDays: 2, ChunkDays: 2})
	env.seedLocation(t, "UTC", 60)
	ctx := context.Background()

	// Unit 1 has a broken interval, unit 2 a valid one.
	badRule := model.AvailabilityRule{
		TenantID: 1, LocationID: 10, ScopeKind: model.ScopeStaff, UnitID: 1,
		Kind:         model.RuleOneTime,
		SpecificDate: slots.LocalMidnight(time.Now(), time.UTC).Format(slots.DateFormat),
		StartTime:    "17:00", EndTime: "09:00", IsActive: true,
	}
	require.NoError(t, env.store.CreateRule(ctx, &badRule))
	env.seedOpenWeek(t, model.ScopeStaff, 2)

	raw, err := env.executor.Execute(ctx, fullHorizonJob(model.ScopeStaff))
	require.NoError(t, err, "a per-date validation failure must not fail the job")

	result := decodeResult(t, raw)
	assert.Equal(t, "success", result.Status)
	require.Len(t, result.DatesFailed, 1)
	assert.Equal(t, int64(1), result.DatesFailed[0].UnitID)

	// Unit 2 produced a slot on both days regardless.
	start := slots.LocalMidnight(time.Now(), time.UTC)
	stored, err := env.store.ListSlots(ctx, 1, 10, model.ScopeStaff,
		start.Format(slots.DateFormat), start.AddDate(0, 0, 1).Format(slots.DateFormat))
	require.NoError(t, err)

	unit2 := 0
	for _, s := range stored {
		if s.UnitID == 2 && !s.IsClosed {
			unit2++
		}
	}
	assert.Equal(t, 2, unit2)
}

func TestExecuteAppliesTemplateBeforeGenerating(t *testing.T) {
	env := newExecutorEnv(t, ExecutorConfig{HorizonDays: 7, ChunkDays: 7})
	env.seedLocation(t, "UTC", 45)
	ctx := context.Background()

	tmpl := &model.AvailabilityTemplate{TenantID: 1, Name: "mon-only"}
	require.NoError(t, env.store.CreateTemplate(ctx, tmpl, []model.TemplateRule{
		{Kind: model.RuleRecurring, DayOfWeek: 1, StartTime: "10:00", EndTime: "16:00"},
	}))

	job := fullHorizonJob(model.ScopeStaff)
	job.TemplateID = tmpl.ID
	job.TemplateUnitID = 3

	raw, err := env.executor.Execute(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, "success", decodeResult(t, raw).Status)

	rules, err := env.store.ListActiveRules(ctx, 1, 10, model.ScopeStaff)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, int64(3), rules[0].UnitID)

	// A 7-day window with a Monday-only rule: one open slot, six closed.
	start := slots.LocalMidnight(time.Now(), time.UTC)
	stored, err := env.store.ListSlots(ctx, 1, 10, model.ScopeStaff,
		start.Format(slots.DateFormat), start.AddDate(0, 0, 6).Format(slots.DateFormat))
	require.NoError(t, err)
	require.Len(t, stored, 7)

	open, closed := 0, 0
	for _, s := range stored {
		if s.IsClosed {
			closed++
		} else {
			open++
		}
	}
	assert.Equal(t, 1, open)
	assert.Equal(t, 6, closed)
}

func TestExecuteTemplateConflictIsValidationError(t *testing.T) {
	env := newExecutorEnv(t, ExecutorConfig{})
	env.seedLocation(t, "UTC", 60)
	ctx := context.Background()

	tmpl := &model.AvailabilityTemplate{TenantID: 1, Name: "conflicting"}
	require.NoError(t, env.store.CreateTemplate(ctx, tmpl, []model.TemplateRule{
		{Kind: model.RuleRecurring, DayOfWeek: 1, StartTime: "10:00", EndTime: "16:00"},
	}))
	env.seedOpenWeek(t, model.ScopeVenue, 0)

	job := fullHorizonJob(model.ScopeVenue)
	job.TemplateID = tmpl.ID

	_, err := env.executor.Execute(ctx, job)
	require.Error(t, err)
	assert.True(t, model.IsValidation(err))
}

func TestExecuteIdempotentForSameInputs(t *testing.T) {
	env := newExecutorEnv(t, ExecutorConfig{HorizonDays: 5, ChunkDays: 5})
	env.seedLocation(t, "UTC", 60)
	env.seedOpenWeek(t, model.ScopeVenue, 0)
	ctx := context.Background()

	first, err := env.executor.Execute(ctx, fullHorizonJob(model.ScopeVenue))
	require.NoError(t, err)
	second, err := env.executor.Execute(ctx, fullHorizonJob(model.ScopeVenue))
	require.NoError(t, err)

	assert.Equal(t, decodeResult(t, first).SlotsWritten, decodeResult(t, second).SlotsWritten)

	start := slots.LocalMidnight(time.Now(), time.UTC)
	count, err := env.store.CountSlotsForDate(ctx, 1, 10, model.ScopeVenue, start.Format(slots.DateFormat))
	require.NoError(t, err)
	assert.Equal(t, 1, count, "re-running must replace, not accumulate")
}

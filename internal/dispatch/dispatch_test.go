package dispatch

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slotforge/internal/jobs"
	"slotforge/internal/model"
)

type fakeLocations struct {
	locations []model.Location
	err       error
}

func (f *fakeLocations) ListActiveLocations(ctx context.Context) ([]model.Location, error) {
	return f.locations, f.err
}

type fakeSubmitter struct {
	mu       sync.Mutex
	requests []jobs.SubmitRequest
}

func (f *fakeSubmitter) Submit(ctx context.Context, req jobs.SubmitRequest) (*model.GenerationJob, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return &model.GenerationJob{JobID: "fake", Status: model.JobPending}, false, nil
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func discardLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

func testLocation(tenantID, locationID int64, tz string, triggerHour int) model.Location {
	return model.Location{
		TenantID:    tenantID,
		LocationID:  locationID,
		Name:        "loc",
		Timezone:    tz,
		TriggerHour: triggerHour,
		IsActive:    true,
	}
}

func TestFullHorizonRunNowFansOutOverScopeKinds(t *testing.T) {
	locations := &fakeLocations{locations: []model.Location{
		testLocation(1, 10, "America/New_York", 0),
		testLocation(2, 20, "Europe/Berlin", 0),
	}}
	submitter := &fakeSubmitter{}

	d, err := NewFullHorizonDispatcher(DefaultFullHorizonConfig(), locations, submitter, discardLogger())
	require.NoError(t, err)

	d.RunNow(context.Background())

	require.Equal(t, 4, submitter.count(), "two scope kinds per location")
	kinds := map[model.ScopeKind]int{}
	for _, req := range submitter.requests {
		kinds[req.ScopeKind]++
		assert.Empty(t, req.AffectedDate, "calendar trigger always requests the full horizon")
	}
	assert.Equal(t, 2, kinds[model.ScopeVenue])
	assert.Equal(t, 2, kinds[model.ScopeStaff])

	// The location's own timezone rides along with the request.
	assert.Equal(t, "America/New_York", submitter.requests[0].Timezone)
}

func TestFullHorizonFiresOncePerDay(t *testing.T) {
	locations := &fakeLocations{locations: []model.Location{testLocation(1, 10, "UTC", 0)}}
	submitter := &fakeSubmitter{}

	config := DefaultFullHorizonConfig()
	config.DailyHour = 3
	config.DailyMinute = 0

	d, err := NewFullHorizonDispatcher(config, locations, submitter, discardLogger())
	require.NoError(t, err)

	ctx := context.Background()
	trigger := time.Date(2026, 5, 4, 3, 0, 10, 0, time.UTC)

	d.checkAndRun(ctx, trigger)
	assert.Equal(t, 2, submitter.count())

	// Same calendar day: no second run, even at the trigger minute.
	d.checkAndRun(ctx, trigger.Add(30*time.Second))
	assert.Equal(t, 2, submitter.count())

	// Wrong minute next day: nothing.
	d.checkAndRun(ctx, trigger.AddDate(0, 0, 1).Add(5*time.Minute))
	assert.Equal(t, 2, submitter.count())

	// Next day at the trigger: runs again.
	d.checkAndRun(ctx, trigger.AddDate(0, 0, 1))
	assert.Equal(t, 4, submitter.count())
}

func TestHourlyDispatchMatchesLocalTriggerHour(t *testing.T) {
	// 14:00 UTC is 09:00 in New York (EST, winter) and 15:00 in Berlin.
	now := time.Date(2026, 1, 15, 14, 0, 0, 0, time.UTC)

	// New York is at 09:00 local and matches; Berlin is at 15:00 and does
	// not; the broken timezone is skipped; the UTC location matches on 14.
	locations := &fakeLocations{locations: []model.Location{
		testLocation(1, 10, "America/New_York", 9),
		testLocation(2, 20, "Europe/Berlin", 9),
		testLocation(3, 30, "Not/AZone", 9),
		testLocation(4, 40, "UTC", 14),
	}}
	submitter := &fakeSubmitter{}

	d, err := NewHourlyDispatcher(DefaultHourlyConfig(), locations, submitter, discardLogger())
	require.NoError(t, err)

	d.dispatch(context.Background(), now)

	require.Equal(t, 4, submitter.count(), "two matching locations, two scope kinds each")
	tenants := map[int64]bool{}
	for _, req := range submitter.requests {
		tenants[req.TenantID] = true
	}
	assert.True(t, tenants[1])
	assert.True(t, tenants[4])
	assert.False(t, tenants[2])
	assert.False(t, tenants[3])
}

func TestHourlyFiresOncePerHour(t *testing.T) {
	locations := &fakeLocations{locations: []model.Location{testLocation(1, 10, "UTC", 14)}}
	submitter := &fakeSubmitter{}

	d, err := NewHourlyDispatcher(DefaultHourlyConfig(), locations, submitter, discardLogger())
	require.NoError(t, err)

	ctx := context.Background()
	now := time.Date(2026, 1, 15, 14, 0, 0, 0, time.UTC)

	d.checkAndRun(ctx, now)
	assert.Equal(t, 2, submitter.count())

	d.checkAndRun(ctx, now.Add(20*time.Minute))
	assert.Equal(t, 2, submitter.count(), "same hour must not dispatch twice")

	d.checkAndRun(ctx, now.Add(time.Hour))
	assert.Equal(t, 2, submitter.count(), "trigger hour passed, nothing to do at 15:00 local")
}

func TestDispatchersSurviveLocationListErrors(t *testing.T) {
	locations := &fakeLocations{err: assert.AnError}
	submitter := &fakeSubmitter{}

	full, err := NewFullHorizonDispatcher(DefaultFullHorizonConfig(), locations, submitter, discardLogger())
	require.NoError(t, err)
	full.RunNow(context.Background())
	assert.Zero(t, submitter.count())

	hourly, err := NewHourlyDispatcher(DefaultHourlyConfig(), locations, submitter, discardLogger())
	require.NoError(t, err)
	hourly.dispatch(context.Background(), time.Now())
	assert.Zero(t, submitter.count())
}

func TestNewDispatcherRejectsBadTimezone(t *testing.T) {
	config := DefaultFullHorizonConfig()
	config.Timezone = "Nowhere/Here"
	_, err := NewFullHorizonDispatcher(config, &fakeLocations{}, &fakeSubmitter{}, discardLogger())
	assert.Error(t, err)

	hc := DefaultHourlyConfig()
	hc.Timezone = "Nowhere/Here"
	_, err = NewHourlyDispatcher(hc, &fakeLocations{}, &fakeSubmitter{}, discardLogger())
	assert.Error(t, err)
}

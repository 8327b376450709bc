package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"slotforge/internal/jobs"
)

// HourlyConfig holds configuration for the hourly local-time dispatcher.
type HourlyConfig struct {
	// Timezone is the fixed reference zone the hourly tick is evaluated in.
	Timezone string
	// CheckInterval is how often to check for the top of the hour.
	CheckInterval time.Duration
	// SubmitRate paces enqueues across many locations.
	SubmitRate float64
	// SubmitBurst is the rate limiter burst.
	SubmitBurst int
}

// DefaultHourlyConfig returns the default configuration.
func DefaultHourlyConfig() HourlyConfig {
	return HourlyConfig{
		Timezone:      "UTC",
		CheckInterval: time.Minute,
		SubmitRate:    20,
		SubmitBurst:   30,
	}
}

// HourlyDispatcher fires every hour in the reference zone and, for each
// location, converts the current instant into the location's own timezone.
// A job is enqueued only when the local hour matches the location's trigger
// hour, so locations across many zones (and DST offsets) each regenerate at
// their own local trigger point instead of a single fixed-UTC moment.
type HourlyDispatcher struct {
	config    HourlyConfig
	locations LocationSource
	submitter Submitter
	limiter   *rate.Limiter
	location  *time.Location
	logger    *zerolog.Logger

	mu          sync.Mutex
	lastRunHour string // YYYY-MM-DDTHH of last run in the reference zone
}

// NewHourlyDispatcher creates an hourly local-time dispatcher.
func NewHourlyDispatcher(config HourlyConfig, locations LocationSource, submitter Submitter, logger *zerolog.Logger) (*HourlyDispatcher, error) {
	loc, err := time.LoadLocation(config.Timezone)
	if err != nil {
		return nil, err
	}
	if config.CheckInterval <= 0 {
		config.CheckInterval = time.Minute
	}
	if config.SubmitRate <= 0 {
		config.SubmitRate = 20
	}
	if config.SubmitBurst <= 0 {
		config.SubmitBurst = 30
	}

	return &HourlyDispatcher{
		config:    config,
		locations: locations,
		submitter: submitter,
		limiter:   rate.NewLimiter(rate.Limit(config.SubmitRate), config.SubmitBurst),
		location:  loc,
		logger:    logger,
	}, nil
}

// Start begins the dispatcher loop.
func (d *HourlyDispatcher) Start(ctx context.Context) {
	d.logger.Info().Str("timezone", d.config.Timezone).Msg("hourly dispatcher started")

	ticker := time.NewTicker(d.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info().Msg("hourly dispatcher stopped")
			return
		case <-ticker.C:
			d.checkAndRun(ctx, time.Now())
		}
	}
}

// checkAndRun fires at most once per reference-zone hour.
func (d *HourlyDispatcher) checkAndRun(ctx context.Context, now time.Time) {
	ref := now.In(d.location)
	hourStamp := ref.Format("2006-01-02T15")

	d.mu.Lock()
	alreadyRan := d.lastRunHour == hourStamp
	d.mu.Unlock()

	if alreadyRan {
		return
	}

	d.mu.Lock()
	d.lastRunHour = hourStamp
	d.mu.Unlock()

	d.dispatch(ctx, now)
}

// dispatch enqueues jobs for locations whose local hour matches their
// trigger hour at the given instant.
func (d *HourlyDispatcher) dispatch(ctx context.Context, now time.Time) {
	locations, err := d.locations.ListActiveLocations(ctx)
	if err != nil {
		d.logger.Error().Err(err).Msg("failed to list locations")
		return
	}

	submitted := 0
	for _, loc := range locations {
		tz, err := time.LoadLocation(loc.Timezone)
		if err != nil {
			d.logger.Error().Err(err).
				Int64("tenant_id", loc.TenantID).Int64("location_id", loc.LocationID).
				Str("timezone", loc.Timezone).Msg("bad location timezone")
			continue
		}

		if now.In(tz).Hour() != loc.TriggerHour {
			continue
		}

		for _, kind := range scopeKinds {
			if err := d.limiter.Wait(ctx); err != nil {
				return
			}
			if _, existing, err := d.submitter.Submit(ctx, jobs.SubmitRequest{
				TenantID:   loc.TenantID,
				LocationID: loc.LocationID,
				ScopeKind:  kind,
				Timezone:   loc.Timezone,
			}); err != nil {
				d.logger.Error().Err(err).
					Int64("tenant_id", loc.TenantID).Int64("location_id", loc.LocationID).
					Msg("submit hourly job failed")
			} else if !existing {
				submitted++
			}
		}
	}

	if submitted > 0 {
		d.logger.Info().Int("submitted", submitted).Msg("hourly dispatch enqueued jobs")
	}
}

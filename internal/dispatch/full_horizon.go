package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"slotforge/internal/jobs"
)

// FullHorizonConfig holds configuration for the full-horizon dispatcher.
type FullHorizonConfig struct {
	// Timezone is the reference zone for the daily trigger.
	Timezone string
	// DailyHour is the hour (0-23) when the full horizon is regenerated.
	DailyHour int
	// DailyMinute is the minute (0-59) of the trigger.
	DailyMinute int
	// CheckInterval is how often to check if it's time to run.
	CheckInterval time.Duration
	// SubmitRate paces enqueues across many locations.
	SubmitRate float64
	// SubmitBurst is the rate limiter burst.
	SubmitBurst int
}

// DefaultFullHorizonConfig returns the default dispatcher configuration.
func DefaultFullHorizonConfig() FullHorizonConfig {
	return FullHorizonConfig{
		Timezone:      "UTC",
		DailyHour:     3,
		DailyMinute:   0,
		CheckInterval: time.Minute,
		SubmitRate:    20,
		SubmitBurst:   30,
	}
}

// FullHorizonDispatcher enqueues a full-horizon job per (location, scope
// kind) on a daily calendar trigger. It never computes slots itself.
type FullHorizonDispatcher struct {
	config    FullHorizonConfig
	locations LocationSource
	submitter Submitter
	limiter   *rate.Limiter
	location  *time.Location
	logger    *zerolog.Logger

	mu          sync.Mutex
	lastRunDate string // YYYY-MM-DD of last run
}

// NewFullHorizonDispatcher creates a full-horizon dispatcher.
func NewFullHorizonDispatcher(config FullHorizonConfig, locations LocationSource, submitter Submitter, logger *zerolog.Logger) (*FullHorizonDispatcher, error) {
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

	return &FullHorizonDispatcher{
		config:    config,
		locations: locations,
		submitter: submitter,
		limiter:   rate.NewLimiter(rate.Limit(config.SubmitRate), config.SubmitBurst),
		location:  loc,
		logger:    logger,
	}, nil
}

// Start begins the dispatcher loop.
func (d *FullHorizonDispatcher) Start(ctx context.Context) {
	d.logger.Info().Str("timezone", d.config.Timezone).
		Int("hour", d.config.DailyHour).Int("minute", d.config.DailyMinute).
		Msg("full-horizon dispatcher started")

	ticker := time.NewTicker(d.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info().Msg("full-horizon dispatcher stopped")
			return
		case <-ticker.C:
			d.checkAndRun(ctx, time.Now())
		}
	}
}

// checkAndRun fires at most once per calendar day, at the configured time.
func (d *FullHorizonDispatcher) checkAndRun(ctx context.Context, now time.Time) {
	now = now.In(d.location)
	today := now.Format("2006-01-02")

	d.mu.Lock()
	alreadyRan := d.lastRunDate == today
	d.mu.Unlock()

	if alreadyRan {
		return
	}
	if now.Hour() != d.config.DailyHour || now.Minute() != d.config.DailyMinute {
		return
	}

	d.mu.Lock()
	d.lastRunDate = today
	d.mu.Unlock()

	d.RunNow(ctx)
}

// RunNow enqueues full-horizon jobs for every active location immediately.
func (d *FullHorizonDispatcher) RunNow(ctx context.Context) {
	start := time.Now()
	locations, err := d.locations.ListActiveLocations(ctx)
	if err != nil {
		d.logger.Error().Err(err).Msg("failed to list locations")
		return
	}

	submitted, coalesced := 0, 0
	for _, loc := range locations {
		for _, kind := range scopeKinds {
			if err := d.limiter.Wait(ctx); err != nil {
				return
			}
			_, existing, err := d.submitter.Submit(ctx, jobs.SubmitRequest{
				TenantID:   loc.TenantID,
				LocationID: loc.LocationID,
				ScopeKind:  kind,
				Timezone:   loc.Timezone,
			})
			if err != nil {
				d.logger.Error().Err(err).
					Int64("tenant_id", loc.TenantID).Int64("location_id", loc.LocationID).
					Msg("submit full-horizon job failed")
				continue
			}
			if existing {
				coalesced++
			} else {
				submitted++
			}
		}
	}

	d.logger.Info().Int("locations", len(locations)).
		Int("submitted", submitted).Int("coalesced", coalesced).
		Dur("duration", time.Since(start)).
		Msg("full-horizon dispatch completed")
}

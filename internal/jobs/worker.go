package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"slotforge/internal/metrics"
	"slotforge/internal/model"
)

// PoolConfig tunes the worker pool.
type PoolConfig struct {
	// Workers is the number of concurrent executors. Default 4.
	Workers int
	// JobTimeout is the wall-clock budget per job. Default 2 minutes.
	JobTimeout time.Duration
	// MaxRetries bounds transient-failure retries per job. Default 3.
	MaxRetries int
	// BackoffBase is the first retry delay; it doubles per retry.
	BackoffBase time.Duration
	// PollTimeout is how long a worker blocks waiting for work.
	PollTimeout time.Duration
}

// DefaultPoolConfig returns the production defaults.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Workers:     4,
		JobTimeout:  2 * time.Minute,
		MaxRetries:  3,
		BackoffBase: 500 * time.Millisecond,
		PollTimeout: time.Second,
	}
}

// Pool consumes the shared work queue with a fixed set of workers. Each
// worker drives one job at a time through the orchestrator's state machine;
// the per-key guard ensures two workers never execute the same key.
type Pool struct {
	orch     *Orchestrator
	executor *Executor
	config   PoolConfig
	logger   *zerolog.Logger
}

// NewPool creates a worker pool.
func NewPool(orch *Orchestrator, executor *Executor, config PoolConfig, logger *zerolog.Logger) *Pool {
	if config.Workers <= 0 {
		config.Workers = 4
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = 2 * time.Minute
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.BackoffBase <= 0 {
		config.BackoffBase = 500 * time.Millisecond
	}
	if config.PollTimeout <= 0 {
		config.PollTimeout = time.Second
	}
	return &Pool{orch: orch, executor: executor, config: config, logger: logger}
}

// Run blocks until ctx is cancelled and all workers drain.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.config.Workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			p.loop(ctx, worker)
		}(i)
	}

	p.logger.Info().Int("workers", p.config.Workers).Msg("worker pool started")
	wg.Wait()
	p.logger.Info().Msg("worker pool stopped")
}

func (p *Pool) loop(ctx context.Context, worker int) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		jobID, err := p.orch.dequeue(ctx, p.config.PollTimeout)
		if err == redis.Nil {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Error().Err(err).Int("worker", worker).Msg("dequeue failed")
			select {
			case <-time.After(p.config.PollTimeout):
			case <-ctx.Done():
				return
			}
			continue
		}

		p.process(ctx, jobID)
	}
}

// process executes one job, deciding retry-vs-terminal. This is the sole
// error boundary of the engine: validation failures are terminal at once,
// transient storage failures retry with exponential backoff, and a job
// exceeding its wall-clock budget fails with a timeout reason.
func (p *Pool) process(ctx context.Context, jobID string) {
	job, err := p.orch.GetJob(ctx, jobID)
	if err == redis.Nil {
		p.logger.Warn().Str("job_id", jobID).Msg("dequeued unknown job")
		return
	}
	if err != nil {
		p.logger.Error().Err(err).Str("job_id", jobID).Msg("load job failed")
		return
	}
	if job.Status.Terminal() {
		return
	}

	started := time.Now()
	jobCtx, cancel := context.WithTimeout(ctx, p.config.JobTimeout)
	defer cancel()

	for {
		if err := p.orch.markRunning(jobCtx, job); err != nil {
			p.logger.Error().Err(err).Str("job_id", job.JobID).Msg("mark running failed")
			return
		}

		result, execErr := p.executor.Execute(jobCtx, job)
		if execErr == nil {
			if err := p.orch.complete(ctx, job, result, nil); err != nil {
				p.logger.Error().Err(err).Str("job_id", job.JobID).Msg("complete failed")
			}
			metrics.ObserveGenerationDuration(time.Since(started).Seconds())
			p.logger.Info().Str("job_id", job.JobID).Str("job_key", job.Key).
				Dur("duration", time.Since(started)).Msg("job succeeded")
			return
		}

		jobErr := p.classify(jobCtx, execErr)
		if jobErr == nil && job.Attempts >= p.config.MaxRetries {
			jobErr = &model.JobError{
				Kind:    model.ErrKindStorage,
				Message: "retry budget exhausted: " + execErr.Error(),
			}
		}
		if jobErr != nil {
			// complete uses the parent context: a timed-out job must
			// still reach its terminal state.
			if err := p.orch.complete(ctx, job, nil, jobErr); err != nil {
				p.logger.Error().Err(err).Str("job_id", job.JobID).Msg("complete failed")
			}
			metrics.ObserveGenerationDuration(time.Since(started).Seconds())
			p.logger.Warn().Str("job_id", job.JobID).Str("kind", jobErr.Kind).
				Str("reason", jobErr.Message).Msg("job failed")
			return
		}

		// Transient failure with retry budget left.
		if err := p.orch.markRetry(jobCtx, job, execErr); err != nil {
			p.logger.Error().Err(err).Str("job_id", job.JobID).Msg("mark retry failed")
			return
		}
		backoff := p.config.BackoffBase << (job.Attempts - 1)
		p.logger.Warn().Err(execErr).Str("job_id", job.JobID).
			Int("attempt", job.Attempts).Dur("backoff", backoff).
			Msg("transient failure, retrying")

		select {
		case <-time.After(backoff):
		case <-jobCtx.Done():
			if err := p.orch.complete(ctx, job, nil, &model.JobError{
				Kind:    model.ErrKindTimeout,
				Message: "job exceeded wall-clock budget",
			}); err != nil {
				p.logger.Error().Err(err).Str("job_id", job.JobID).Msg("complete failed")
			}
			return
		}
	}
}

// classify maps an execution error onto a terminal JobError, or nil when the
// error is transient and the retry budget allows another attempt. The job's
// Attempts counter must already reflect the attempt that failed.
func (p *Pool) classify(jobCtx context.Context, execErr error) *model.JobError {
	if jobCtx.Err() != nil || errors.Is(execErr, context.DeadlineExceeded) {
		return &model.JobError{Kind: model.ErrKindTimeout, Message: "job exceeded wall-clock budget"}
	}
	if model.IsValidation(execErr) {
		return &model.JobError{Kind: model.ErrKindValidation, Message: execErr.Error()}
	}
	if model.IsTransient(execErr) {
		return nil
	}
	// Unclassified errors are treated as storage failures but not retried:
	// without a transient marker a retry would likely reproduce them.
	return &model.JobError{Kind: model.ErrKindStorage, Message: execErr.Error()}
}

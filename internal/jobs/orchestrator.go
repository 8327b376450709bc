// Package jobs wraps slot generation in idempotent, pollable asynchronous
// jobs. Job records and the per-key in-flight guard live in Redis so that
// many workers and dispatcher processes share one view of what is running.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"slotforge/internal/metrics"
	"slotforge/internal/model"
)

const (
	queueKey        = "jobs:queue"
	activeKeyPrefix = "jobs:active:"
	recordKeyPrefix = "jobs:record:"

	// Terminal records stay queryable for a week.
	terminalRecordTTL = 7 * 24 * time.Hour

	// Guards expire well above the worst-case job wall clock (per-attempt
	// timeout times the retry budget, plus backoff), so a worker that dies
	// mid-job cannot wedge its key forever.
	activeGuardTTL = 15 * time.Minute
)

// reclaimGuardScript swaps the guard onto a new job only if it still holds
// the stale id the caller observed, so two submitters can never both reclaim
// the same key.
var reclaimGuardScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	redis.call("set", KEYS[1], ARGV[2], "px", ARGV[3])
	return 1
end
return 0
`)

// releaseGuardScript deletes the guard only if it still points at the
// finishing job, so a key reclaimed by a newer submission is never freed
// from under its new owner.
var releaseGuardScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// SubmitRequest describes one generation request.
type SubmitRequest struct {
	TenantID     int64
	LocationID   int64
	ScopeKind    model.ScopeKind
	Timezone     string
	AffectedDate string // empty for full horizon

	TemplateID        int64
	TemplateUnitID    int64
	TemplateOverwrite bool
}

// StatusResponse is the read-only view of a job returned to callers.
type StatusResponse struct {
	JobID  string          `json:"job_id"`
	Status model.JobStatus `json:"status"`
	Ready  bool            `json:"ready"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *model.JobError `json:"error,omitempty"`
}

// Orchestrator owns the job state machine. It is the only component that
// mutates job records, and the only one allowed to write generated slots
// (through its executor).
type Orchestrator struct {
	rdb    *redis.Client
	logger *zerolog.Logger
}

// NewOrchestrator creates an orchestrator backed by rdb.
func NewOrchestrator(rdb *redis.Client, logger *zerolog.Logger) *Orchestrator {
	return &Orchestrator{rdb: rdb, logger: logger}
}

func activeKey(jobKey string) string { return activeKeyPrefix + jobKey }
func recordKey(jobID string) string  { return recordKeyPrefix + jobID }

// Submit enqueues a generation job, or returns the already-in-flight job for
// the same key. The bool result reports coalescing: true means no new job
// was created. This is the at-most-one-concurrent-per-key guarantee.
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (*model.GenerationJob, bool, error) {
	if !req.ScopeKind.Valid() {
		return nil, false, &model.ValidationError{Reason: fmt.Sprintf("unknown scope kind %q", req.ScopeKind)}
	}

	key := model.JobKey(req.TenantID, req.LocationID, req.ScopeKind, req.AffectedDate)
	job := &model.GenerationJob{
		JobID:             uuid.NewString(),
		Key:               key,
		TenantID:          req.TenantID,
		LocationID:        req.LocationID,
		ScopeKind:         req.ScopeKind,
		Timezone:          req.Timezone,
		AffectedDate:      req.AffectedDate,
		TemplateID:        req.TemplateID,
		TemplateUnitID:    req.TemplateUnitID,
		TemplateOverwrite: req.TemplateOverwrite,
		Status:            model.JobPending,
		CreatedAt:         time.Now().UTC(),
	}

	// The record is saved before the guard is taken, so any submitter that
	// loses the SetNX race finds a live record behind the guard and never
	// mistakes a freshly acquired key for a stale one.
	if err := o.saveJob(ctx, job, 0); err != nil {
		return nil, false, err
	}

	for {
		acquired, err := o.rdb.SetNX(ctx, activeKey(key), job.JobID, activeGuardTTL).Result()
		if err != nil {
			return nil, false, &model.TransientStorageError{Op: "acquire job key", Err: err}
		}
		if acquired {
			break
		}

		holderID, err := o.rdb.Get(ctx, activeKey(key)).Result()
		if err == redis.Nil {
			// Released between SetNX and Get; contend again.
			continue
		}
		if err != nil {
			return nil, false, &model.TransientStorageError{Op: "resolve active job", Err: err}
		}

		existing, err := o.jobIfActive(ctx, holderID)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			o.rdb.Del(ctx, recordKey(job.JobID))
			metrics.IncJobsCoalesced()
			o.logger.Debug().Str("job_key", key).Str("job_id", existing.JobID).
				Msg("submission coalesced onto in-flight job")
			return existing, true, nil
		}

		// The guard points at a lost or terminal record. Take it over,
		// unless another submitter swapped it since we looked.
		taken, err := reclaimGuardScript.Run(ctx, o.rdb, []string{activeKey(key)},
			holderID, job.JobID, activeGuardTTL.Milliseconds()).Int()
		if err != nil {
			return nil, false, &model.TransientStorageError{Op: "reclaim job key", Err: err}
		}
		if taken == 1 {
			break
		}
	}

	if err := o.rdb.LPush(ctx, queueKey, job.JobID).Err(); err != nil {
		return nil, false, &model.TransientStorageError{Op: "enqueue job", Err: err}
	}

	metrics.IncJobsSubmitted(string(req.ScopeKind))
	o.logger.Info().Str("job_key", key).Str("job_id", job.JobID).
		Bool("regeneration", job.IsRegeneration()).Msg("job submitted")
	return job, false, nil
}

// Regenerate submits a single-date job so correcting one day never re-runs
// the full horizon.
func (o *Orchestrator) Regenerate(ctx context.Context, req SubmitRequest, affectedDate string) (*model.GenerationJob, bool, error) {
	req.AffectedDate = affectedDate
	return o.Submit(ctx, req)
}

// GetJob loads a job record by id. Returns redis.Nil if unknown.
func (o *Orchestrator) GetJob(ctx context.Context, jobID string) (*model.GenerationJob, error) {
	data, err := o.rdb.Get(ctx, recordKey(jobID)).Bytes()
	if err == redis.Nil {
		return nil, err
	}
	if err != nil {
		return nil, &model.TransientStorageError{Op: "load job record", Err: err}
	}
	var job model.GenerationJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("decode job record %s: %w", jobID, err)
	}
	return &job, nil
}

// GetStatus returns the pollable status view for a job id.
func (o *Orchestrator) GetStatus(ctx context.Context, jobID string) (*StatusResponse, error) {
	job, err := o.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return &StatusResponse{
		JobID:  job.JobID,
		Status: job.Status,
		Ready:  job.Status.Terminal(),
		Result: job.Result,
		Error:  job.Error,
	}, nil
}

// jobIfActive loads a job record and returns it only while non-terminal;
// missing and terminal records both come back nil.
func (o *Orchestrator) jobIfActive(ctx context.Context, jobID string) (*model.GenerationJob, error) {
	job, err := o.GetJob(ctx, jobID)
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		return nil, nil
	}
	return job, nil
}

func (o *Orchestrator) saveJob(ctx context.Context, job *model.GenerationJob, ttl time.Duration) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job record: %w", err)
	}
	if err := o.rdb.Set(ctx, recordKey(job.JobID), data, ttl).Err(); err != nil {
		return &model.TransientStorageError{Op: "save job record", Err: err}
	}
	return nil
}

// markRunning transitions a job to Running and persists it.
func (o *Orchestrator) markRunning(ctx context.Context, job *model.GenerationJob) error {
	job.Status = model.JobRunning
	job.Attempts++
	return o.saveJob(ctx, job, 0)
}

// markRetry records a transient failure that will be retried.
func (o *Orchestrator) markRetry(ctx context.Context, job *model.GenerationJob, cause error) error {
	job.Status = model.JobRetry
	job.Error = &model.JobError{Kind: model.ErrKindStorage, Message: cause.Error()}
	metrics.IncJobRetries()
	return o.saveJob(ctx, job, 0)
}

// complete drives the job to a terminal state and releases the per-key
// guard so the next submission for this key creates a fresh job. The guard
// is released only while it still points at this job.
func (o *Orchestrator) complete(ctx context.Context, job *model.GenerationJob, result json.RawMessage, jobErr *model.JobError) error {
	now := time.Now().UTC()
	job.CompletedAt = &now
	if jobErr != nil {
		job.Status = model.JobFailure
		job.Error = jobErr
	} else {
		job.Status = model.JobSuccess
		job.Result = result
		job.Error = nil
	}

	if err := o.saveJob(ctx, job, terminalRecordTTL); err != nil {
		return err
	}
	if err := releaseGuardScript.Run(ctx, o.rdb, []string{activeKey(job.Key)}, job.JobID).Err(); err != nil {
		return &model.TransientStorageError{Op: "release job key", Err: err}
	}

	metrics.IncJobsCompleted(string(job.Status))
	return nil
}

// dequeue pops the next job id, blocking up to timeout. Returns redis.Nil
// when the queue stayed empty.
func (o *Orchestrator) dequeue(ctx context.Context, timeout time.Duration) (string, error) {
	res, err := o.rdb.BRPop(ctx, timeout, queueKey).Result()
	if err != nil {
		return "", err
	}
	// BRPOP returns [key, value].
	return res[1], nil
}

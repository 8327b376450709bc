package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slotforge/internal/model"
)

func newTestPool(t *testing.T, env *executorEnv, config PoolConfig) (*Pool, *Orchestrator) {
	t.Helper()
	orch := NewOrchestrator(env.rdb, discardLogger())
	return NewPool(orch, env.executor, config, discardLogger()), orch
}

func TestProcessSuccess(t *testing.T) {
	env := newExecutorEnv(t, ExecutorConfig{HorizonDays: 3, ChunkDays: 3})
	env.seedLocation(t, "UTC", 60)
	env.seedOpenWeek(t, model.ScopeVenue, 0)

	pool, orch := newTestPool(t, env, DefaultPoolConfig())
	ctx := context.Background()

	job, _, err := orch.Submit(ctx, venueRequest())
	require.NoError(t, err)

	pool.process(ctx, job.JobID)

	status, err := orch.GetStatus(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobSuccess, status.Status)
	assert.True(t, status.Ready)
	assert.NotEmpty(t, status.Result)
	assert.Nil(t, status.Error)
}

func TestProcessValidationFailureIsNotRetried(t *testing.T) {
	// No location seeded: execution fails deterministically.
	env := newExecutorEnv(t, ExecutorConfig{})
	pool, orch := newTestPool(t, env, DefaultPoolConfig())
	ctx := context.Background()

	job, _, err := orch.Submit(ctx, venueRequest())
	require.NoError(t, err)

	pool.process(ctx, job.JobID)

	final, err := orch.GetJob(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobFailure, final.Status)
	require.NotNil(t, final.Error)
	assert.Equal(t, model.ErrKindValidation, final.Error.Kind)
	assert.Equal(t, 1, final.Attempts, "validation failures must not burn retries")

	// The key is free again.
	fresh, coalesced, err := orch.Submit(ctx, venueRequest())
	require.NoError(t, err)
	assert.False(t, coalesced)
	assert.NotEqual(t, job.JobID, fresh.JobID)
}

func TestProcessTransientFailureExhaustsRetryBudget(t *testing.T) {
	env := newExecutorEnv(t, ExecutorConfig{})
	env.seedLocation(t, "UTC", 60)

	config := DefaultPoolConfig()
	config.MaxRetries = 3
	config.BackoffBase = time.Millisecond
	pool, orch := newTestPool(t, env, config)
	ctx := context.Background()

	job, _, err := orch.Submit(ctx, venueRequest())
	require.NoError(t, err)

	// Closing the store makes every query fail with a transient error.
	require.NoError(t, env.store.Close())

	pool.process(ctx, job.JobID)

	final, err := orch.GetJob(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobFailure, final.Status)
	require.NotNil(t, final.Error)
	assert.Equal(t, model.ErrKindStorage, final.Error.Kind)
	assert.Contains(t, final.Error.Message, "retry budget exhausted")
	assert.Equal(t, 3, final.Attempts)
}

func TestProcessSkipsTerminalJob(t *testing.T) {
	env := newExecutorEnv(t, ExecutorConfig{})
	pool, orch := newTestPool(t, env, DefaultPoolConfig())
	ctx := context.Background()

	job, _, err := orch.Submit(ctx, venueRequest())
	require.NoError(t, err)
	require.NoError(t, orch.complete(ctx, job, []byte(`{}`), nil))

	pool.process(ctx, job.JobID)

	final, err := orch.GetJob(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobSuccess, final.Status)
	assert.Equal(t, 0, final.Attempts, "a finished job must not run again")
}

func TestClassify(t *testing.T) {
	pool := NewPool(nil, nil, DefaultPoolConfig(), discardLogger())
	ctx := context.Background()

	expiredCtx, cancel := context.WithDeadline(ctx, time.Now().Add(-time.Second))
	defer cancel()

	tests := []struct {
		name     string
		ctx      context.Context
		err      error
		wantKind string
		wantNil  bool
	}{
		{
			name:     "validation terminal",
			ctx:      ctx,
			err:      &model.ValidationError{Reason: "bad interval"},
			wantKind: model.ErrKindValidation,
		},
		{
			name:    "transient retried",
			ctx:     ctx,
			err:     &model.TransientStorageError{Op: "write", Err: assert.AnError},
			wantNil: true,
		},
		{
			name:     "deadline exceeded",
			ctx:      expiredCtx,
			err:      context.DeadlineExceeded,
			wantKind: model.ErrKindTimeout,
		},
		{
			name:     "unclassified treated as storage",
			ctx:      ctx,
			err:      assert.AnError,
			wantKind: model.ErrKindStorage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := pool.classify(tt.ctx, tt.err)
			if tt.wantNil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.wantKind, got.Kind)
		})
	}
}

func TestPoolRunDrainsQueue(t *testing.T) {
	env := newExecutorEnv(t, ExecutorConfig{HorizonDays: 2, ChunkDays: 2})
	env.seedLocation(t, "UTC", 60)
	env.seedOpenWeek(t, model.ScopeVenue, 0)

	config := DefaultPoolConfig()
	config.Workers = 2
	config.PollTimeout = 50 * time.Millisecond
	pool, orch := newTestPool(t, env, config)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	job, _, err := orch.Submit(ctx, venueRequest())
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		pool.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		status, err := orch.GetStatus(context.Background(), job.JobID)
		return err == nil && status.Ready
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pool did not stop after cancellation")
	}

	status, err := orch.GetStatus(context.Background(), job.JobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobSuccess, status.Status)
}

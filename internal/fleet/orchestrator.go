// Package fleet runs entity pipelines concurrently under a shared
// semaphore and folds their outcomes into a run summary. Tasks are
// processed in sequential fixed-size batches; within a batch, entities
// run in parallel but never more than the concurrency limit at once.
package fleet

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"secbrief/internal/logging"
	"secbrief/internal/types"
)

// ErrNoTasks is returned when a run is started with an empty task list.
// It is a setup error: no pipelines run and no summary is produced.
var ErrNoTasks = errors.New("fleet: no entity tasks submitted")

// EntityRunner executes the full pipeline for one entity. Satisfied by
// *pipeline.EntityPipeline.
type EntityRunner interface {
	Run(ctx context.Context, task types.EntityTask) *types.EntityOutcome
}

// Config holds the orchestrator's concurrency policy.
type Config struct {
	ConcurrencyLimit int
	BatchSize        int
}

// Orchestrator fans entity tasks out to the pipeline under a weighted
// semaphore. A slot is held for an entity's whole pipeline; it is not
// released between the gather, generate, and persist phases.
type Orchestrator struct {
	runner EntityRunner
	cfg    Config
	sem    *semaphore.Weighted
}

// New creates an orchestrator. ConcurrencyLimit must be >= 1; BatchSize
// of 0 defaults to the concurrency limit.
func New(runner EntityRunner, cfg Config) (*Orchestrator, error) {
	if cfg.ConcurrencyLimit < 1 {
		return nil, fmt.Errorf("fleet: concurrency limit must be >= 1, got %d", cfg.ConcurrencyLimit)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = cfg.ConcurrencyLimit
	}
	return &Orchestrator{
		runner: runner,
		cfg:    cfg,
		sem:    semaphore.NewWeighted(int64(cfg.ConcurrencyLimit)),
	}, nil
}

// Run processes every task and returns exactly one outcome per task
// plus the folded summary. Cancellation is cooperative: entities already
// in flight finish, no new batch starts, and tasks never started are
// reported as failed outcomes so the count invariant holds.
func (o *Orchestrator) Run(ctx context.Context, runID string, tasks []types.EntityTask) ([]*types.EntityOutcome, *types.FleetSummary, error) {
	if len(tasks) == 0 {
		return nil, nil, ErrNoTasks
	}

	start := time.Now()
	logging.Fleet("run %s: %d tasks, concurrency=%d batch=%d",
		runID, len(tasks), o.cfg.ConcurrencyLimit, o.cfg.BatchSize)

	// Entities admitted to a batch run detached from run cancellation:
	// the cancel gate sits between batches only, and per-call timeouts
	// bound in-flight work. A hard-killed entity would burn its retry
	// budget on synthetic errors and leave a half-persisted outcome.
	entityCtx := context.WithoutCancel(ctx)

	outcomes := make([]*types.EntityOutcome, len(tasks))
	next := 0
	for next < len(tasks) {
		if err := ctx.Err(); err != nil {
			logging.Fleet("run %s: cancelled before batch at task %d", runID, next)
			break
		}

		end := next + o.cfg.BatchSize
		if end > len(tasks) {
			end = len(tasks)
		}
		o.runBatch(entityCtx, runID, tasks[next:end], outcomes[next:end])
		next = end
	}

	// Tasks skipped by cancellation still get an outcome each.
	for i := next; i < len(tasks); i++ {
		outcomes[i] = cancelledOutcome(tasks[i])
	}

	summary := Summarize(runID, outcomes, time.Since(start))
	logging.Fleet("run %s: done status=%s succeeded=%d failed=%d elapsed=%s",
		runID, summary.Status, summary.Succeeded, summary.Failed, summary.Elapsed.Round(time.Millisecond))
	return outcomes, summary, nil
}

// runBatch runs one batch to completion. ctx is detached from run
// cancellation, so every batch member drains naturally and no outcome
// slot is left unfilled.
func (o *Orchestrator) runBatch(ctx context.Context, runID string, tasks []types.EntityTask, out []*types.EntityOutcome) {
	var wg sync.WaitGroup
	for i, task := range tasks {
		// Acquire cannot fail: the detached context is never done.
		_ = o.sem.Acquire(ctx, 1)
		wg.Add(1)
		go func(i int, task types.EntityTask) {
			defer wg.Done()
			defer o.sem.Release(1)
			out[i] = o.runOne(ctx, runID, task)
		}(i, task)
	}
	wg.Wait()
}

// runOne executes a single entity and converts panics into failed
// outcomes so one bad entity never takes down the fleet.
func (o *Orchestrator) runOne(ctx context.Context, runID string, task types.EntityTask) (outcome *types.EntityOutcome) {
	defer func() {
		if r := recover(); r != nil {
			logging.FleetError("run %s: entity %s panicked: %v\n%s", runID, task.EntityID, r, debug.Stack())
			outcome = &types.EntityOutcome{
				Task:    task,
				Storage: types.StorageFailed,
				Err:     fmt.Sprintf("pipeline panic: %v", r),
			}
		}
	}()
	return o.runner.Run(ctx, task)
}

func cancelledOutcome(task types.EntityTask) *types.EntityOutcome {
	return &types.EntityOutcome{
		Task:    task,
		Storage: types.StorageFailed,
		Err:     "run cancelled before entity started",
	}
}

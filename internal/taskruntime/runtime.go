package taskruntime

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/ensembl-io/handover/internal/handoverspec"
	"github.com/ensembl-io/handover/internal/journal"
)

// defaultRetryDelay is the pacing interval between re-attempts of a
// non-terminal stage (spec.md §6 "Retry delay (default 60 s)").
const defaultRetryDelay = 60 * time.Second

// StageResolver looks up the Task implementation for a stage name
// (injected by cmd/worker, which owns the orchestrator's concrete stage
// constructors — taskruntime itself has no C5 dependency).
type StageResolver func(stageName string) (Task, bool)

// Runtime pulls task_ids off the Queue, re-loads their TaskRecord (state
// changes are made under a row lock), runs the matching Task, and persists the resulting Signal —
// requeueing on Retry at a rate-limited pace, advancing the chain on
// Continue, and terminating on Fail (spec.md §4.4/§4.5).
type Runtime struct {
	store   *Store
	queue   *Queue
	chain   *Chain
	journal journal.Appender
	resolve StageResolver
	limiter *rate.Limiter
	logger  *slog.Logger
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithRetryDelay overrides the default 60s retry pacing interval.
func WithRetryDelay(d time.Duration) Option {
	return func(r *Runtime) {
		r.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

// NewRuntime constructs a Runtime.
func NewRuntime(store *Store, queue *Queue, j journal.Appender, resolve StageResolver, opts ...Option) *Runtime {
	r := &Runtime{
		store:   store,
		queue:   queue,
		chain:   NewChain(store, queue),
		journal: j,
		resolve: resolve,
		limiter: rate.NewLimiter(rate.Every(defaultRetryDelay), 1),
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// ProcessOne dequeues and runs exactly one task message. Intended to be
// called in a loop by cmd/worker's consumer goroutines.
func (r *Runtime) ProcessOne(ctx context.Context) error {
	msg, err := r.queue.Dequeue(ctx)
	if err != nil {
		return err
	}

	return r.run(ctx, msg.TaskID)
}

func (r *Runtime) run(ctx context.Context, taskID string) error {
	rec, err := r.store.Get(ctx, taskID)
	if err != nil {
		return err
	}

	if rec.State == StateRevoked {
		r.announce(ctx, rec, handoverspec.ReportInfo, "Revoked")

		return nil
	}

	task, ok := r.resolve(rec.StageName)
	if !ok {
		return ErrUnknownTask
	}

	// Announce the task_id before the external side-effect (spec.md
	// §4.5's "Design rationale" invariant: stop/restart must be able to
	// target the stage cleanly).
	rec.Spec.TaskID = rec.TaskID
	rec.Spec.ChainID = rec.ChainID
	rec.Spec.StageIndex = rec.StageIndex
	r.announce(ctx, rec, handoverspec.ReportInfo, "Running stage "+rec.StageName)

	updatedSpec, signal := task.Run(ctx, rec.Spec)

	switch signal.Kind {
	case SignalContinue:
		return r.onContinue(ctx, rec, updatedSpec)
	case SignalRetry:
		return r.onRetry(ctx, rec, updatedSpec)
	case SignalFail:
		return r.onFail(ctx, rec, updatedSpec, signal.Err)
	default:
		return nil
	}
}

func (r *Runtime) onContinue(ctx context.Context, rec TaskRecord, spec handoverspec.HandoverSpec) error {
	_, err := r.store.Transition(ctx, rec.TaskID, func(locked TaskRecord) (TaskRecord, error) {
		locked.State = StateComplete
		locked.Spec = spec

		return locked, nil
	})
	if err != nil {
		return err
	}

	rec.Spec = spec

	r.announce(ctx, rec, handoverspec.ReportInfo, "Stage "+rec.StageName+" finished")

	advanced, err := r.chain.NextStage(ctx, rec)
	if err != nil {
		return err
	}

	if !advanced {
		r.announce(ctx, rec, handoverspec.ReportInfo, "Handover complete")
	}

	return nil
}

func (r *Runtime) onRetry(ctx context.Context, rec TaskRecord, spec handoverspec.HandoverSpec) error {
	updated, err := r.store.Transition(ctx, rec.TaskID, func(locked TaskRecord) (TaskRecord, error) {
		locked.RetryCount++
		locked.Spec = spec

		return locked, nil
	})
	if err != nil {
		return err
	}

	if updated.State == StateRevoked {
		return nil
	}

	// Pace retries per spec.md §6's default 60s retry delay; an
	// operator-stuck stage can still be ended via C7 stop (spec.md §5
	// "No per-task timeout ... The only way to end a stuck stage is
	// operator stop").
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}

	return r.queue.Enqueue(ctx, rec.TaskID)
}

func (r *Runtime) onFail(ctx context.Context, rec TaskRecord, spec handoverspec.HandoverSpec, cause error) error {
	_, err := r.store.Transition(ctx, rec.TaskID, func(locked TaskRecord) (TaskRecord, error) {
		locked.State = StateFailed
		locked.Spec = spec

		return locked, nil
	})
	if err != nil {
		return err
	}

	rec.Spec = spec

	msg := "Stage " + rec.StageName + " failed"
	if cause != nil {
		msg += ": " + cause.Error()
	}

	r.announce(ctx, rec, handoverspec.ReportError, msg)

	// Revoke the rest of the chain: a failed stage ends the whole
	// pipeline (spec.md §4.5), not just itself.
	if revokeErr := r.store.Revoke(ctx, rec.TaskID, true); revokeErr != nil && !errors.Is(revokeErr, ErrUnknownTask) {
		r.logger.Warn("taskruntime: failed to abort remaining chain",
			slog.String("chain_id", rec.ChainID), slog.String("error", revokeErr.Error()))
	}

	return nil
}

func (r *Runtime) announce(ctx context.Context, rec TaskRecord, level handoverspec.ReportType, message string) {
	if r.journal == nil {
		return
	}

	report := handoverspec.Report{
		ReportType: level,
		ReportTime: time.Now().UTC(),
		Message:    message,
		Source:     "taskruntime",
		Params:     rec.Spec,
	}

	if err := r.journal.Append(ctx, report); err != nil {
		r.logger.Warn("taskruntime: journal append failed", slog.String("error", err.Error()))
	}
}

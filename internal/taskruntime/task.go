// Package taskruntime implements the task runtime (C4): the chain
// composer, persistent task_id/state, revoke, and retry-delay scheduling
// that drives the orchestrator's four pipeline stages.
package taskruntime

import (
	"context"
	"errors"

	"github.com/ensembl-io/handover/internal/handoverspec"
)

// Sentinel errors for the C4/C5 error taxonomy (spec.md §7).
var (
	// ErrRevoked marks a chain abandoned by an operator stop/restart
	// (spec.md §7 "Revoked | C7 | INFO report; chain abandoned").
	ErrRevoked = errors.New("taskruntime: task revoked")

	// ErrUnknownTask is returned when a task_id has no matching row.
	ErrUnknownTask = errors.New("taskruntime: unknown task_id")

	// ErrChainAborted marks a chain that failed a prior stage and must
	// not continue (spec.md §4.5 "Design rationale": a stage's terminal
	// failure ends the whole chain).
	ErrChainAborted = errors.New("taskruntime: chain aborted by a prior stage")
)

// SignalKind tags a Task's disposition after one Run call, mapping
// spec.md §3's "run(spec) → spec | Retry | Fail" contract onto a Go type.
type SignalKind int

// Recognized signal kinds.
const (
	// SignalContinue means the stage completed; the runtime should
	// either run the next stage in the chain or, for the chain's last
	// stage, finish successfully.
	SignalContinue SignalKind = iota

	// SignalRetry means the stage is not yet done (a non-terminal
	// downstream poll); the runtime re-queues the same stage after the
	// configured retry delay.
	SignalRetry

	// SignalFail means the stage hit a terminal failure or client
	// error; the runtime terminates the whole chain (spec.md §7).
	SignalFail
)

// Signal is a Task's verdict for one Run call.
type Signal struct {
	Kind SignalKind
	Err  error // set only when Kind == SignalFail
}

// Continue is the zero-value "proceed" signal.
func Continue() Signal { return Signal{Kind: SignalContinue} }

// Retry requests a re-run of the same stage after the retry delay.
func Retry() Signal { return Signal{Kind: SignalRetry} }

// Fail terminates the chain with err.
func Fail(err error) Signal { return Signal{Kind: SignalFail, Err: err} }

// Task is one pipeline stage (spec.md §4.5: data-check, copy, metadata,
// dispatch). Each Task owns its own task_id and survives independent
// retries and restarts (spec.md §4.5 "Design rationale").
type Task interface {
	// Name identifies the stage for C7 restart targeting (spec.md §4.7,
	// ALLOWED_TASK_RESTART).
	Name() string

	// Run executes one attempt of the stage. Revoking the chain does not
	// cancel ctx; a revoked task is skipped when next dequeued and is not
	// requeued after a Retry.
	Run(ctx context.Context, spec handoverspec.HandoverSpec) (handoverspec.HandoverSpec, Signal)
}

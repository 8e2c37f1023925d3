package taskruntime

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ensembl-io/handover/internal/handoverspec"
)

// Chain is an ordered sequence of stage names the orchestrator runs for a
// given HandoverSpec (spec.md §4.5: data-check, copy, metadata, dispatch).
// Each stage gets its own task_id and row, so it survives independent
// retries and can be restarted individually by C7 (spec.md §4.5 "Design
// rationale").
type Chain struct {
	store *Store
	queue *Queue
}

// NewChain constructs a Chain bound to store and queue.
func NewChain(store *Store, queue *Queue) *Chain {
	return &Chain{store: store, queue: queue}
}

// Submit creates one TaskRecord per stage name and enqueues the first
// one, returning the chain_id, a fresh identifier distinct from every
// stage's task_id. C7 addresses the chain by handover_token via the
// journal's task_id recovery (spec.md §4.2 "the only place to discover
// task_id for revocation").
func (c *Chain) Submit(ctx context.Context, spec handoverspec.HandoverSpec, stageNames []string) (string, error) {
	if len(stageNames) == 0 {
		return "", fmt.Errorf("taskruntime: chain requires at least one stage")
	}

	chainID := uuid.NewString()

	var firstTaskID string

	for i, name := range stageNames {
		taskID := uuid.NewString()
		if i == 0 {
			firstTaskID = taskID
		}

		rec := TaskRecord{
			TaskID:     taskID,
			ChainID:    chainID,
			StageName:  name,
			StageIndex: i,
			State:      StatePending,
			Spec:       spec,
		}

		if err := c.store.Create(ctx, rec); err != nil {
			return "", err
		}
	}

	if err := c.queue.Enqueue(ctx, firstTaskID); err != nil {
		return "", err
	}

	return chainID, nil
}

// Extend appends one more stage to an already-running chain: it creates a
// pending TaskRecord at stageIndex carrying spec, without enqueueing it.
// The caller (the metadata stage, via the dispatch decision in spec.md
// §4.5) is expected to have already arranged for its own Continue signal
// to make Runtime.onContinue's subsequent Chain.NextStage call pick this
// row up and enqueue it — Extend only needs to make the row exist first.
func (c *Chain) Extend(ctx context.Context, chainID string, stageIndex int, stageName string, spec handoverspec.HandoverSpec) error {
	rec := TaskRecord{
		TaskID:     uuid.NewString(),
		ChainID:    chainID,
		StageName:  stageName,
		StageIndex: stageIndex,
		State:      StatePending,
		Spec:       spec,
	}

	return c.store.Create(ctx, rec)
}

// NextStage advances a completed stage's output spec to the next stage in
// its chain, enqueueing it. Returns (false, nil) if stage was the chain's
// last stage (nothing left to run).
func (c *Chain) NextStage(ctx context.Context, rec TaskRecord) (bool, error) {
	const query = `
		SELECT task_id FROM tasks
		WHERE chain_id = $1 AND stage_index = $2 AND state = $3`

	var nextTaskID string

	err := c.store.conn.QueryRowContext(ctx, query, rec.ChainID, rec.StageIndex+1, StatePending).Scan(&nextTaskID)
	if err != nil {
		return false, nil //nolint:nilerr // no next stage is not an error condition
	}

	if _, err := c.store.Transition(ctx, nextTaskID, func(locked TaskRecord) (TaskRecord, error) {
		locked.Spec = rec.Spec

		return locked, nil
	}); err != nil {
		return false, err
	}

	if err := c.queue.Enqueue(ctx, nextTaskID); err != nil {
		return false, err
	}

	return true, nil
}

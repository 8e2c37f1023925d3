package taskruntime

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ensembl-io/handover/internal/handoverspec"
	"github.com/ensembl-io/handover/internal/storage"
)

// State is a task row's lifecycle state.
type State string

// Recognized task states.
const (
	StatePending  State = "pending"
	StateRunning  State = "running"
	StateComplete State = "complete"
	StateFailed   State = "failed"
	StateRevoked  State = "revoked"
)

// TaskRecord is one persisted row of the tasks table: the unit C7 targets
// for stop/restart and the unit C4 requeues on Retry.
type TaskRecord struct {
	TaskID     string
	ChainID    string
	StageName  string
	StageIndex int
	State      State
	RetryCount int
	Spec       handoverspec.HandoverSpec
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ErrTaskStoreFailed wraps Postgres task-store failures.
var ErrTaskStoreFailed = errors.New("taskruntime: task store operation failed")

// Store persists TaskRecords and mediates the row-level locking needed
// for concurrent revoke/transition safety (grounded on
// internal/storage/lineage_store.go's fetchJobRunState "SELECT ... FOR
// UPDATE" pattern).
type Store struct {
	conn *storage.Connection
}

// NewStore constructs a Store bound to conn.
func NewStore(conn *storage.Connection) (*Store, error) {
	if conn == nil {
		return nil, ErrNoConnection
	}

	return &Store{conn: conn}, nil
}

// ErrNoConnection is returned when a Store/Runtime is constructed without
// a database connection.
var ErrNoConnection = errors.New("taskruntime: no database connection")

// Create inserts a new task row in StatePending.
func (s *Store) Create(ctx context.Context, rec TaskRecord) error {
	specJSON, err := json.Marshal(rec.Spec)
	if err != nil {
		return fmt.Errorf("%w: marshal spec: %w", ErrTaskStoreFailed, err)
	}

	const insert = `
		INSERT INTO tasks (task_id, chain_id, stage_name, stage_index, state, retry_count, spec)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = s.conn.ExecContext(ctx, insert,
		rec.TaskID, rec.ChainID, rec.StageName, rec.StageIndex, StatePending, 0, specJSON)
	if err != nil {
		return fmt.Errorf("%w: create: %w", ErrTaskStoreFailed, err)
	}

	return nil
}

// Get loads a task row by task_id.
func (s *Store) Get(ctx context.Context, taskID string) (TaskRecord, error) {
	const query = `
		SELECT task_id, chain_id, stage_name, stage_index, state, retry_count, spec, created_at, updated_at
		FROM tasks WHERE task_id = $1`

	row := s.conn.QueryRowContext(ctx, query, taskID)

	rec, err := scanTaskRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return TaskRecord{}, ErrUnknownTask
	}

	if err != nil {
		return TaskRecord{}, fmt.Errorf("%w: get: %w", ErrTaskStoreFailed, err)
	}

	return rec, nil
}

// TransitionFunc mutates a locked TaskRecord and returns the record to
// persist. Returning a non-nil error aborts the transaction.
type TransitionFunc func(rec TaskRecord) (TaskRecord, error)

// Transition loads taskID under a row lock, applies fn, and persists the
// result in the same transaction — preventing a concurrent revoke() from
// racing a stage's own state update (grounded on lineage_store.go's
// fetchJobRunState + tx upsert shape).
func (s *Store) Transition(ctx context.Context, taskID string, fn TransitionFunc) (TaskRecord, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return TaskRecord{}, fmt.Errorf("%w: begin tx: %w", ErrTaskStoreFailed, err)
	}

	defer func() { _ = tx.Rollback() }()

	const lockQuery = `
		SELECT task_id, chain_id, stage_name, stage_index, state, retry_count, spec, created_at, updated_at
		FROM tasks WHERE task_id = $1
		FOR UPDATE`

	row := tx.QueryRowContext(ctx, lockQuery, taskID)

	rec, err := scanTaskRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return TaskRecord{}, ErrUnknownTask
	}

	if err != nil {
		return TaskRecord{}, fmt.Errorf("%w: lock: %w", ErrTaskStoreFailed, err)
	}

	updated, err := fn(rec)
	if err != nil {
		return TaskRecord{}, err
	}

	specJSON, err := json.Marshal(updated.Spec)
	if err != nil {
		return TaskRecord{}, fmt.Errorf("%w: marshal spec: %w", ErrTaskStoreFailed, err)
	}

	const update = `
		UPDATE tasks SET state = $1, retry_count = $2, spec = $3, updated_at = now()
		WHERE task_id = $4`

	if _, err := tx.ExecContext(ctx, update, updated.State, updated.RetryCount, specJSON, taskID); err != nil {
		return TaskRecord{}, fmt.Errorf("%w: update: %w", ErrTaskStoreFailed, err)
	}

	if err := tx.Commit(); err != nil {
		return TaskRecord{}, fmt.Errorf("%w: commit: %w", ErrTaskStoreFailed, err)
	}

	return updated, nil
}

// Revoke marks taskID StateRevoked regardless of its current state
// (operator stop, spec.md §4.7). terminate additionally marks every other
// non-terminal task sharing chainID as revoked, for a full-chain stop.
func (s *Store) Revoke(ctx context.Context, taskID string, terminate bool) error {
	_, err := s.Transition(ctx, taskID, func(rec TaskRecord) (TaskRecord, error) {
		rec.State = StateRevoked

		return rec, nil
	})
	if err != nil {
		return err
	}

	if !terminate {
		return nil
	}

	rec, err := s.Get(ctx, taskID)
	if err != nil {
		return err
	}

	const revokeChain = `
		UPDATE tasks SET state = $1, updated_at = now()
		WHERE chain_id = $2 AND state IN ($3, $4)`

	if _, err := s.conn.ExecContext(ctx, revokeChain, StateRevoked, rec.ChainID, StatePending, StateRunning); err != nil {
		return fmt.Errorf("%w: revoke chain: %w", ErrTaskStoreFailed, err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTaskRow(row rowScanner) (TaskRecord, error) {
	var (
		rec      TaskRecord
		specJSON []byte
	)

	err := row.Scan(&rec.TaskID, &rec.ChainID, &rec.StageName, &rec.StageIndex,
		&rec.State, &rec.RetryCount, &specJSON, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return TaskRecord{}, err
	}

	if err := json.Unmarshal(specJSON, &rec.Spec); err != nil {
		return TaskRecord{}, fmt.Errorf("unmarshal spec: %w", err)
	}

	return rec, nil
}

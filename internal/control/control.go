// Package control implements the restart/cancel controller (C7): looking
// up a handover's current task_id from the journal, revoking it, and
// optionally re-entering the pipeline at a named stage (spec.md §4.7).
package control

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ensembl-io/handover/internal/handoverspec"
	"github.com/ensembl-io/handover/internal/ingress"
	"github.com/ensembl-io/handover/internal/journal"
	"github.com/ensembl-io/handover/internal/orchestrator"
	"github.com/ensembl-io/handover/internal/taskruntime"
)

// ErrUnknownToken is returned when no report exists for the given token.
var ErrUnknownToken = errors.New("control: no report found for token")

// ErrInvalidRestartStage is returned for any stage name other than
// datacheck, dbcopy, or metadata (spec.md §4.7: "Reject other stage
// names").
var ErrInvalidRestartStage = errors.New("control: stage is not restartable")

// Restartable stage names, matching the submitter-facing vocabulary
// (spec.md §4.7), mapped to the orchestrator's internal stage names.
const (
	StageDataCheck = "datacheck"
	StageDBCopy    = "dbcopy"
	StageMetadata  = "metadata"
)

// progressStartFor gives the progress_complete value a restart rewinds to
// (spec.md §4.7: "0/2/3 respectively").
var progressStartFor = map[string]int{
	StageDataCheck: 0,
	StageDBCopy:    2,
	StageMetadata:  3,
}

// chainSuffixFor lists the stages a direct re-enqueue (dbcopy/metadata
// restart) must run through to completion.
var chainSuffixFor = map[string][]string{
	StageDBCopy:   {orchestrator.StageCopy, orchestrator.StageMetadata},
	StageMetadata: {orchestrator.StageMetadata},
}

// Controller implements stop/restart.
type Controller struct {
	journal journal.Store
	tasks   *taskruntime.Store
	chain   *taskruntime.Chain
	ingress *ingress.Ingress
}

// New constructs a Controller.
func New(j journal.Store, tasks *taskruntime.Store, chain *taskruntime.Chain, ing *ingress.Ingress) *Controller {
	return &Controller{journal: j, tasks: tasks, chain: chain, ingress: ing}
}

// Stop implements spec.md §4.7's stop(token): revokes the token's current
// task (if not already terminal) and records a terminal report. Safe to
// call more than once.
func (c *Controller) Stop(ctx context.Context, token string) error {
	latest, found, err := c.journal.LatestByToken(ctx, token)
	if err != nil {
		return fmt.Errorf("control: lookup failed: %w", err)
	}

	if !found {
		return ErrUnknownToken
	}

	taskID := latest.Params.TaskID
	if taskID != "" {
		rec, err := c.tasks.Get(ctx, taskID)

		switch {
		case errors.Is(err, taskruntime.ErrUnknownTask):
			// Already purged or never persisted; nothing to revoke.
		case err != nil:
			return fmt.Errorf("control: task lookup failed: %w", err)
		case rec.State != taskruntime.StateComplete && rec.State != taskruntime.StateFailed && rec.State != taskruntime.StateRevoked:
			if err := c.tasks.Revoke(ctx, taskID, true); err != nil {
				return fmt.Errorf("control: revoke failed: %w", err)
			}
		}
	}

	report := handoverspec.Report{
		ReportType: handoverspec.ReportInfo,
		ReportTime: time.Now().UTC(),
		Message:    "Handover failed, Job Revoked",
		Source:     latest.Params.SrcURI,
		Params:     latest.Params,
	}

	if err := c.journal.Append(ctx, report); err != nil {
		return fmt.Errorf("control: failed to record revocation: %w", err)
	}

	return nil
}

// Restart implements spec.md §4.7's restart(token, stage): stops the
// current chain, then either fully re-admits through ingress (datacheck)
// or directly re-enqueues the remaining chain suffix (dbcopy/metadata).
// Returns the new handover_token (datacheck restart mints one; dbcopy and
// metadata restarts keep the original).
func (c *Controller) Restart(ctx context.Context, token, stage string) (string, error) {
	startProgress, ok := progressStartFor[stage]
	if !ok {
		return "", ErrInvalidRestartStage
	}

	if err := c.Stop(ctx, token); err != nil && !errors.Is(err, ErrUnknownToken) {
		return "", err
	}

	latest, found, err := c.journal.LatestByToken(ctx, token)
	if err != nil {
		return "", fmt.Errorf("control: reload failed: %w", err)
	}

	if !found {
		return "", ErrUnknownToken
	}

	spec := latest.Params
	spec.JobProgress = ""
	spec.ProgressComplete = startProgress

	if stage == StageDataCheck {
		newToken, err := c.ingress.Submit(ctx, ingress.Request{
			SrcURI:   spec.SrcURI,
			Database: spec.Database,
			Contact:  spec.Contact,
			Comment:  spec.Comment,
		})
		if err != nil {
			return "", fmt.Errorf("control: datacheck restart re-admission failed: %w", err)
		}

		return newToken, nil
	}

	suffix, ok := chainSuffixFor[stage]
	if !ok {
		return "", ErrInvalidRestartStage
	}

	if _, err := c.chain.Submit(ctx, spec, suffix); err != nil {
		return "", fmt.Errorf("control: chain re-enqueue failed: %w", err)
	}

	return token, nil
}

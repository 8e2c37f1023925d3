package orchestrator

import (
	"context"
	"fmt"

	"github.com/ensembl-io/handover/internal/downstream"
	"github.com/ensembl-io/handover/internal/handoverspec"
	"github.com/ensembl-io/handover/internal/journal"
	"github.com/ensembl-io/handover/internal/notify"
	"github.com/ensembl-io/handover/internal/taskruntime"
)

// DataCheckStage polls the data-check job submitted at ingress (spec.md
// §4.6) until terminal. It is the first stage of every chain.
type DataCheckStage struct {
	reporter
	client *downstream.DataCheckClient
}

// NewDataCheckStage constructs the data-check stage.
func NewDataCheckStage(client *downstream.DataCheckClient, j journal.Appender, n notify.Notifier) *DataCheckStage {
	return &DataCheckStage{reporter: newReporter(j, n, nil), client: client}
}

// Name identifies this stage to the task runtime.
func (s *DataCheckStage) Name() string { return StageDataCheck }

// Run polls dc_job_id's status and translates the result into the DC
// stage contract (spec.md §4.5): non-terminal → Retry with progress
// propagated into job_progress; passed → strip job_progress, advance
// progress_complete to 1, continue; failed/dc-run-error → ERROR + email +
// terminate.
func (s *DataCheckStage) Run(ctx context.Context, spec handoverspec.HandoverSpec) (handoverspec.HandoverSpec, taskruntime.Signal) {
	result, err := s.client.Status(ctx, spec.DCJobID)
	if err != nil {
		// Transport failure is handled the same way as job failure:
		// surfaced to the contact, chain terminated, not retried
		// (spec.md §4.5 "Cancellation and timeouts").
		return s.terminateWithError(ctx, spec, spec.SrcURI,
			fmt.Sprintf("data-check poll failed: %s", err),
			"Handover data-check error",
			fmt.Sprintf("Data-check polling for %s failed: %s", spec.Database, err))
	}

	if !s.client.IsTerminal(result.Status) {
		spec.JobProgress = result.Progress

		return spec, taskruntime.Retry()
	}

	if result.Status != "passed" {
		link := downloadOutputLink(spec.StagingURI, spec.DCJobID)

		return s.terminateWithError(ctx, spec, spec.SrcURI,
			fmt.Sprintf("data-check %s: %s", result.Status, link),
			"Handover data-check failed",
			fmt.Sprintf("Data-check for %s reported %s. Output: %s", spec.Database, result.Status, link))
	}

	spec.JobProgress = ""
	spec = spec.WithProgress(1)

	return spec, taskruntime.Continue()
}

func downloadOutputLink(stagingURI, jobID string) string {
	return stagingURI + "/datacheck/output/" + jobID
}

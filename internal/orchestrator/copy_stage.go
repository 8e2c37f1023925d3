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

// CopyStage submits and polls the staging copy job (spec.md §4.5 "Copy
// stage"). It is also reused, unmodified, as the dispatch stage's second
// copy (spec.md "Dispatch stage": "Submit a further copy").
type CopyStage struct {
	reporter
	client       *downstream.DbCopyClient
	operatorUser string
	// onComplete decides the next progress value and whether the chain
	// should stop here. The staging copy and the dispatch copy differ
	// only in this decision (spec.md §4.5), so both share one
	// implementation parameterized by it.
	onComplete func(spec handoverspec.HandoverSpec) (handoverspec.HandoverSpec, taskruntime.Signal)
	name       string
}

// NewCopyStage constructs the staging copy stage: on Complete, a GRCh37
// handover ends the pipeline at progress_complete=3; otherwise it advances
// to progress_complete=2 and continues to metadata.
func NewCopyStage(client *downstream.DbCopyClient, operatorUser string, j journal.Appender, n notify.Notifier) *CopyStage {
	stage := &CopyStage{
		reporter:     newReporter(j, n, nil),
		client:       client,
		operatorUser: operatorUser,
		name:         StageCopy,
	}

	stage.onComplete = func(spec handoverspec.HandoverSpec) (handoverspec.HandoverSpec, taskruntime.Signal) {
		if spec.GRCh37 {
			return spec.WithProgress(3), taskruntime.Continue()
		}

		return spec.WithProgress(2), taskruntime.Continue()
	}

	return stage
}

// NewDispatchCopyStage constructs the dispatch stage's copy: on Complete,
// it always ends the pipeline at progress_complete=4 (spec.md §4.5
// "Dispatch stage").
func NewDispatchCopyStage(client *downstream.DbCopyClient, operatorUser string, j journal.Appender, n notify.Notifier) *CopyStage {
	stage := &CopyStage{
		reporter:     newReporter(j, n, nil),
		client:       client,
		operatorUser: operatorUser,
		name:         StageDispatch,
	}

	stage.onComplete = func(spec handoverspec.HandoverSpec) (handoverspec.HandoverSpec, taskruntime.Signal) {
		return spec.WithProgress(4), taskruntime.Continue()
	}

	return stage
}

// Name identifies this stage to the task runtime.
func (s *CopyStage) Name() string { return s.name }

// Run submits the copy job on first entry (job ID absent) then polls
// until terminal.
func (s *CopyStage) Run(ctx context.Context, spec handoverspec.HandoverSpec) (handoverspec.HandoverSpec, taskruntime.Signal) {
	jobID, err := s.jobID(spec)
	if err != nil {
		return s.terminateWithError(ctx, spec, spec.SrcURI,
			fmt.Sprintf("copy submission rejected: %s", err), "Handover copy error",
			fmt.Sprintf("Copy submission for %s could not be built: %s", spec.Database, err))
	}

	if jobID == "" {
		jobID, err = s.submit(ctx, spec)
		if err != nil {
			return s.terminateWithError(ctx, spec, spec.SrcURI,
				fmt.Sprintf("copy submit failed: %s", err), "Handover copy error",
				fmt.Sprintf("Copy submission for %s failed: %s", spec.Database, err))
		}

		s.setJobID(&spec, jobID)

		return spec, taskruntime.Retry()
	}

	result, err := s.client.Status(ctx, jobID)
	if err != nil {
		return s.terminateWithError(ctx, spec, spec.SrcURI,
			fmt.Sprintf("copy poll failed: %s", err), "Handover copy error",
			fmt.Sprintf("Copy polling for %s failed: %s", spec.Database, err))
	}

	if !s.client.IsTerminal(result.Status) {
		return spec, taskruntime.Retry()
	}

	if result.Status != "Complete" {
		return s.terminateWithError(ctx, spec, spec.SrcURI,
			fmt.Sprintf("copy %s", result.Status), "Handover copy failed",
			fmt.Sprintf("Copy for %s reported %s", spec.Database, result.Status))
	}

	return s.onComplete(spec)
}

// jobID returns the already-stored job id for this stage's name, or "" if
// the job has not yet been submitted.
func (s *CopyStage) jobID(spec handoverspec.HandoverSpec) (string, error) {
	switch s.name {
	case StageCopy:
		return spec.CopyJobID, nil
	case StageDispatch:
		return spec.DispatchJobID, nil
	default:
		return "", fmt.Errorf("orchestrator: unknown copy stage name %q", s.name)
	}
}

func (s *CopyStage) setJobID(spec *handoverspec.HandoverSpec, jobID string) {
	switch s.name {
	case StageCopy:
		spec.CopyJobID = jobID
	case StageDispatch:
		spec.DispatchJobID = jobID
	}
}

func (s *CopyStage) submit(ctx context.Context, spec handoverspec.HandoverSpec) (string, error) {
	src, err := parseDBURI(spec.SrcURI)
	if err != nil {
		return "", err
	}

	tgt, err := parseDBURI(spec.TgtURI)
	if err != nil {
		return "", err
	}

	return s.client.Submit(ctx, downstream.CopyRequest{
		SrcHost:   src.HostPort,
		SrcDB:     src.Database,
		TgtHost:   tgt.HostPort,
		TgtDB:     tgt.Database,
		Overwrite: false,
		Operator:  s.operatorUser,
	})
}

// Package orchestrator implements the four-stage handover pipeline (C5):
// data-check, copy, metadata, and optional dispatch, wired together as
// taskruntime.Task implementations so the chain composer and runtime (C4)
// can schedule, retry, and revoke each stage uninvolved with its business
// logic.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ensembl-io/handover/internal/handoverspec"
	"github.com/ensembl-io/handover/internal/journal"
	"github.com/ensembl-io/handover/internal/notify"
	"github.com/ensembl-io/handover/internal/taskruntime"
)

// Stage names, used both as taskruntime.TaskRecord.StageName values and as
// the keys Stages.Resolver dispatches on.
const (
	StageDataCheck = "datacheck"
	StageCopy      = "copy"
	StageMetadata  = "metadata"
	StageDispatch  = "dispatch"
)

// reporter is embedded by every stage: it emits stage-specific journal
// reports (beyond the generic per-transition ones taskruntime.Runtime
// already announces) and sends the operator emails the stage contracts
// require at fatal points (spec.md §4.5).
type reporter struct {
	journal  journal.Appender
	notifier notify.Notifier
	logger   *slog.Logger
}

func newReporter(j journal.Appender, n notify.Notifier, logger *slog.Logger) reporter {
	if n == nil {
		n = notify.NoopNotifier{}
	}

	if logger == nil {
		logger = slog.Default()
	}

	return reporter{journal: j, notifier: n, logger: logger}
}

// emit appends a report with the given level/message/source, logging a
// warning (never failing the stage) if the journal append fails.
func (r reporter) emit(ctx context.Context, spec handoverspec.HandoverSpec, level handoverspec.ReportType, message, source string) {
	if r.journal == nil {
		return
	}

	report := handoverspec.Report{
		ReportType: level,
		ReportTime: time.Now().UTC(),
		Message:    message,
		Source:     source,
		Params:     spec,
	}

	if err := r.journal.Append(ctx, report); err != nil {
		r.logger.Warn("orchestrator: journal append failed",
			slog.String("handover_token", spec.HandoverToken), slog.String("error", err.Error()))
	}
}

// notifyContact emails spec.Contact, logging (never failing the stage) on
// send failure — spec.md §4.5 stage contracts require "email the contact"
// as a side effect, not a precondition for finishing the transition.
func (r reporter) notifyContact(spec handoverspec.HandoverSpec, subject, body string) {
	if err := r.notifier.Notify(spec.Contact, subject, body); err != nil {
		r.logger.Warn("orchestrator: contact notification failed",
			slog.String("handover_token", spec.HandoverToken), slog.String("error", err.Error()))
	}
}

// notifyProduction emails the production address for BLAT-species
// new_assembly configuration reminders (spec.md §4.5 metadata stage).
func (r reporter) notifyProduction(to string, subject, body string) {
	if err := r.notifier.Notify(to, subject, body); err != nil {
		r.logger.Warn("orchestrator: production notification failed", slog.String("error", err.Error()))
	}
}

// terminateWithError emits an ERROR report, emails the contact, and
// returns the Fail signal that aborts the rest of the chain (spec.md
// §4.5's uniform "ERROR + email + terminate" shape, repeated at every
// stage's failure exit).
func (r reporter) terminateWithError(
	ctx context.Context,
	spec handoverspec.HandoverSpec,
	source, message, emailSubject, emailBody string,
) (handoverspec.HandoverSpec, taskruntime.Signal) {
	r.emit(ctx, spec, handoverspec.ReportError, message, source)
	r.notifyContact(spec, emailSubject, emailBody)

	return spec, taskruntime.Fail(fmt.Errorf("orchestrator: %s", message))
}

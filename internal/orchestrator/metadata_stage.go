package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/ensembl-io/handover/internal/downstream"
	"github.com/ensembl-io/handover/internal/handoverspec"
	"github.com/ensembl-io/handover/internal/journal"
	"github.com/ensembl-io/handover/internal/notify"
	"github.com/ensembl-io/handover/internal/router"
	"github.com/ensembl-io/handover/internal/taskruntime"
)

// MetadataStage submits and polls metadata registration, drops superseded
// or failed target databases, emails production on BLAT-relevant new
// assemblies, and decides whether the chain continues to dispatch
// (spec.md §4.5 "Metadata stage").
type MetadataStage struct {
	reporter
	client          *downstream.MetadataClient
	dropper         *downstream.DropClient
	cfg             *router.Config
	chain           *taskruntime.Chain
	productionEmail string
}

// NewMetadataStage constructs the metadata stage. productionEmail is the
// address notified on a BLAT-species new_assembly event. chain is used
// solely to append a dispatch task to the running chain when the
// dispatch decision fires (spec.md §4.5) — the initial chain submitted
// at ingress never includes the dispatch stage up front, since whether it
// runs at all is this stage's own decision.
func NewMetadataStage(
	client *downstream.MetadataClient,
	dropper *downstream.DropClient,
	cfg *router.Config,
	chain *taskruntime.Chain,
	productionEmail string,
	j journal.Appender,
	n notify.Notifier,
) *MetadataStage {
	return &MetadataStage{
		reporter:        newReporter(j, n, nil),
		client:          client,
		dropper:         dropper,
		cfg:             cfg,
		chain:           chain,
		productionEmail: productionEmail,
	}
}

// Name identifies this stage to the task runtime.
func (s *MetadataStage) Name() string { return StageMetadata }

// Run submits on first entry, then polls. Terminal dispositions fan out
// into the drop/notify/dispatch-decision logic spec.md §4.5 describes.
func (s *MetadataStage) Run(ctx context.Context, spec handoverspec.HandoverSpec) (handoverspec.HandoverSpec, taskruntime.Signal) {
	if spec.MetadataJobID == "" {
		jobID, err := s.client.Submit(ctx, downstream.MetadataRequest{
			TgtURI:  spec.TgtURI,
			Contact: spec.Contact,
			Comment: spec.Comment,
			Source:  "Handover",
		})
		if err != nil {
			return s.terminateWithError(ctx, spec, spec.TgtURI,
				fmt.Sprintf("metadata submit failed: %s", err), "Handover metadata error",
				fmt.Sprintf("Metadata submission for %s failed: %s", spec.Database, err))
		}

		spec.MetadataJobID = jobID

		return spec, taskruntime.Retry()
	}

	result, err := s.client.Status(ctx, spec.MetadataJobID)
	if err != nil {
		return s.terminateWithError(ctx, spec, spec.TgtURI,
			fmt.Sprintf("metadata poll failed: %s", err), "Handover metadata error",
			fmt.Sprintf("Metadata polling for %s failed: %s", spec.Database, err))
	}

	if !s.client.IsTerminal(result.Status) {
		return spec, taskruntime.Retry()
	}

	if result.Status == "failed" {
		return s.onFailed(ctx, spec)
	}

	return s.onComplete(ctx, spec, result)
}

func (s *MetadataStage) onFailed(
	ctx context.Context,
	spec handoverspec.HandoverSpec,
) (handoverspec.HandoverSpec, taskruntime.Signal) {
	tgt, err := parseDBURI(spec.TgtURI)
	if err == nil {
		if dropErr := s.dropper.Drop(ctx, downstream.DropRequest{Host: tgt.HostPort, Database: tgt.Database}); dropErr != nil {
			s.logger.Warn("orchestrator: failed to drop target database after metadata failure",
				slog.String("error", dropErr.Error()))
		}
	}

	link := failureViewLink(spec.StagingURI, spec.MetadataJobID)

	return s.terminateWithError(ctx, spec, spec.TgtURI,
		fmt.Sprintf("metadata registration failed: %s", link), "Handover metadata failed",
		fmt.Sprintf("Metadata registration for %s failed. Details: %s", spec.Database, link))
}

func (s *MetadataStage) onComplete(
	ctx context.Context,
	spec handoverspec.HandoverSpec,
	result downstream.StatusResult,
) (handoverspec.HandoverSpec, taskruntime.Signal) {
	tgt, err := parseDBURI(spec.TgtURI)
	if err != nil {
		return s.terminateWithError(ctx, spec, spec.TgtURI,
			fmt.Sprintf("metadata complete but tgt_uri unparseable: %s", err), "Handover metadata error",
			fmt.Sprintf("Metadata completed for %s but its target URI could not be parsed: %s", spec.Database, err))
	}

	stagingHost := hostOf(spec.StagingURI)
	events := s.client.Events(result)

	s.dropSupersededDatabases(ctx, stagingHost, tgt.Database, events)
	s.notifyBLATAssemblies(events)

	dispatchURL, genome, dispatch := s.decideDispatch(spec, events)
	if !dispatch {
		spec = spec.WithProgress(3)

		return spec, taskruntime.Continue()
	}

	spec.Genome = genome
	spec.TgtURI = buildURI(dispatchURL, tgt.Database)
	spec.ProgressTotal = 4

	if err := s.chain.Extend(ctx, spec.ChainID, spec.StageIndex+1, StageDispatch, spec); err != nil {
		return s.terminateWithError(ctx, spec, spec.TgtURI,
			fmt.Sprintf("dispatch stage could not be scheduled: %s", err), "Handover dispatch error",
			fmt.Sprintf("Dispatch for %s could not be scheduled: %s", spec.Database, err))
	}

	return spec, taskruntime.Continue()
}

// dropSupersededDatabases drops every database an event's
// current_database_list names on staging, except the one that is still
// the handover's own target (spec.md §4.5: "drop every listed database on
// staging_uri except one whose name equals tgt_uri.database").
func (s *MetadataStage) dropSupersededDatabases(ctx context.Context, stagingHost, keep string, events []downstream.MetadataEvent) {
	for _, event := range events {
		for _, name := range event.CurrentDatabaseList {
			if name == keep {
				continue
			}

			if err := s.dropper.Drop(ctx, downstream.DropRequest{Host: stagingHost, Database: name}); err != nil {
				s.logger.Warn("orchestrator: failed to drop superseded database", slog.String("error", err.Error()))
			}
		}
	}
}

// notifyBLATAssemblies emails production a configuration-update reminder
// for each new_assembly event whose genome is BLAT-relevant (spec.md
// §4.5).
func (s *MetadataStage) notifyBLATAssemblies(events []downstream.MetadataEvent) {
	for _, event := range events {
		if event.Type == "new_assembly" && s.cfg.IsBLATSpecies(event.Genome) {
			s.notifyProduction(s.productionEmail, "BLAT configuration update required",
				fmt.Sprintf("New assembly for %s requires a BLAT configuration update.", event.Genome))
		}
	}
}

// decideDispatch dispatches when a dispatch target is configured for
// db_type (or the core fallback target) AND at least one event's genome is
// in the compara allow-list (or dispatch_all is set). dispatch_all does not
// replace a missing target: with no target configured, nothing dispatches.
func (s *MetadataStage) decideDispatch(
	spec handoverspec.HandoverSpec,
	events []downstream.MetadataEvent,
) (dispatchURL, genome string, ok bool) {
	target, hasTarget := s.cfg.DispatchTargetFor(spec.DBType)
	if !hasTarget {
		return "", "", false
	}

	for _, event := range events {
		if s.cfg.IsCompareSpecies(event.Genome) {
			return target, event.Genome, true
		}
	}

	return "", "", false
}

func failureViewLink(stagingURI, jobID string) string {
	return stagingURI + "/metadata/failures/" + jobID
}

func hostOf(uriPrefix string) string {
	u, err := url.Parse(uriPrefix)
	if err != nil {
		return uriPrefix
	}

	return u.Host
}

package orchestrator

import "github.com/ensembl-io/handover/internal/taskruntime"

// Stages bundles the four pipeline stages cmd/worker constructs once at
// startup and hands to taskruntime.NewRuntime as a StageResolver.
type Stages struct {
	DataCheck    *DataCheckStage
	Copy         *CopyStage
	Metadata     *MetadataStage
	DispatchCopy *CopyStage
}

// Resolver returns a taskruntime.StageResolver backed by s. Stage names
// are matched against the StageXxx constants (spec.md §4.5: "written as
// four tasks... each stage has its own task_id").
func (s Stages) Resolver() taskruntime.StageResolver {
	return func(name string) (taskruntime.Task, bool) {
		switch name {
		case StageDataCheck:
			return s.DataCheck, true
		case StageCopy:
			return s.Copy, true
		case StageMetadata:
			return s.Metadata, true
		case StageDispatch:
			return s.DispatchCopy, true
		default:
			return nil, false
		}
	}
}

// DefaultChain is the stage-name list ingress hands to taskruntime.Chain.Submit
// for an ordinary (non-GRCh37) handover. Dispatch is deliberately absent:
// whether it runs at all is the metadata stage's own decision (spec.md
// §4.5's dispatch predicate), so its task row is appended dynamically via
// taskruntime.Chain.Extend only when that decision fires, rather than
// created — and then skipped — up front.
var DefaultChain = []string{StageDataCheck, StageCopy, StageMetadata}

// GRCh37Chain is the shortened pipeline for GRCh37 handovers, which end
// after the copy stage (spec.md §4.1 "GRCh37 ... forces shorter
// pipeline").
var GRCh37Chain = []string{StageDataCheck, StageCopy}

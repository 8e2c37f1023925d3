package router

import (
	"errors"
	"strings"

	"github.com/ensembl-io/handover/internal/handoverspec"
)

// Sentinel errors for the C1 routing error taxonomy (spec.md §7).
var (
	ErrInvalidDatabaseName = errors.New("router: database name does not match any recognized pattern")
	ErrReleaseMismatch     = errors.New("router: parsed release does not match the configured release")
	ErrDivisionNotAllowed  = errors.New("router: db_division is not in the configured allow-list")
)

// defaultPipelineLength is progress_total before any shortening/lengthening
// rule applies (spec.md §4.1 "progress_total is 3 by default").
const defaultPipelineLength = 3

// grch37PipelineLength is progress_total when routed to GRCh37 (copy-only
// pipeline; spec.md §4.1 "becomes 2 for GRCh37").
const grch37PipelineLength = 2

// dispatchPipelineLength is progress_total once the metadata stage commits
// to a dispatch decision (spec.md §4.1 / §4.5). Router only seeds the
// default; the metadata stage (C5) is what actually extends it, per
// spec.md's "decided later in metadata stage" note.
const dispatchPipelineLength = 4

// Router applies C1: parses a database name, resolves its staging target,
// validates it against the configured release/division/dispatch state.
type Router struct {
	cfg *Config
}

// New constructs a Router bound to cfg.
func New(cfg *Config) *Router {
	return &Router{cfg: cfg}
}

// Route resolves the routing fields of a HandoverSpec: db_type, db_division,
// staging_uri, grch37 marker, and progress_total (spec.md §4.1). It does not
// mutate spec; it returns an updated copy.
func (r *Router) Route(name string, spec handoverspec.HandoverSpec) (handoverspec.HandoverSpec, error) {
	class, err := Classify(name)
	if err != nil {
		return spec, err
	}

	if class.Release != r.cfg.Release {
		return spec, ErrReleaseMismatch
	}

	division := r.resolveDivision(class)
	if !r.cfg.AllowsDatabaseType(class.DBType) {
		return spec, ErrInvalidDatabaseName
	}

	if !r.cfg.AllowsDivision(division) {
		return spec, ErrDivisionNotAllowed
	}

	spec.DBType = class.DBType
	spec.DBDivision = division

	grch37 := r.isGRCh37(name, class)
	spec.GRCh37 = grch37
	spec.StagingURI = r.stagingURI(name, grch37)

	spec.ProgressTotal = defaultPipelineLength
	if grch37 {
		spec.ProgressTotal = grch37PipelineLength
	}

	return spec, nil
}

// resolveDivision maps a species Classification to its taxonomic division.
// Compara/ancestral names already carry a division; every other name
// resolves to vertebrates, the Ensembl default division. No configuration
// maps a species to another division.
func (r *Router) resolveDivision(class Classification) handoverspec.Division {
	if class.Division != "" {
		return class.Division
	}

	return handoverspec.DivisionVertebrates
}

// isGRCh37 reports whether the name routes to the GRCh37 legacy pipeline:
// homo_sapiens species databases with assembly==37, or a compara database
// whose member species is GRCh37 (spec.md §4.1 "Staging selection").
func (r *Router) isGRCh37(name string, class Classification) bool {
	if class.IsGRCh37Assembly() {
		return true
	}

	if class.DBType == handoverspec.DBTypeCompara && r.cfg.isGRCh37ComparaDivision(class.Division) {
		return true
	}

	return strings.Contains(name, "grch37")
}

// stagingURI picks primary vs secondary staging per spec.md §4.1: bacteria*
// prefixes and GRCh37 databases route to secondary; everything else to
// primary.
func (r *Router) stagingURI(name string, grch37 bool) string {
	if (IsBacteria(name) || grch37) && r.cfg.SecondaryStagingURI != "" {
		return r.cfg.SecondaryStagingURI
	}

	return r.cfg.StagingURI
}

// Package handoverspec defines the HandoverSpec envelope and journal Report
// threaded through the handover pipeline (C1-C7).
package handoverspec

import (
	"errors"
	"fmt"
	"time"
)

// DBType classifies the kind of database a handover concerns.
type DBType string

// Recognized database types (spec.md §3).
const (
	DBTypeCore           DBType = "core"
	DBTypeRNASeq         DBType = "rnaseq"
	DBTypeCDNA           DBType = "cdna"
	DBTypeOtherFeatures  DBType = "otherfeatures"
	DBTypeVariation      DBType = "variation"
	DBTypeFuncgen        DBType = "funcgen"
	DBTypeCompara        DBType = "compara"
	DBTypeAncestral      DBType = "ancestral"
)

// IsValid reports whether t is one of the recognized database types.
func (t DBType) IsValid() bool {
	switch t {
	case DBTypeCore, DBTypeRNASeq, DBTypeCDNA, DBTypeOtherFeatures,
		DBTypeVariation, DBTypeFuncgen, DBTypeCompara, DBTypeAncestral:
		return true
	default:
		return false
	}
}

// Division is the taxonomic grouping a database belongs to.
type Division string

// Recognized divisions (spec.md §3).
const (
	DivisionVertebrates Division = "vertebrates"
	DivisionPlants      Division = "plants"
	DivisionMetazoa     Division = "metazoa"
	DivisionFungi       Division = "fungi"
	DivisionProtists    Division = "protists"
	DivisionBacteria    Division = "bacteria"
	DivisionPan         Division = "pan"
)

// Sentinel errors for HandoverSpec validation.
var (
	ErrMissingSrcURI  = errors.New("src_uri is required")
	ErrMissingContact = errors.New("contact is required")
	ErrMissingDatabase = errors.New("database is required")
	ErrInvalidDBType   = errors.New("db_type is not a recognized database type")
)

// HandoverSpec is the single mutable envelope threaded through the pipeline
// (spec.md §3). It is treated as an immutable value: each stage consumes one
// HandoverSpec and returns a new one rather than mutating in place.
type HandoverSpec struct {
	SrcURI        string `json:"src_uri"`
	TgtURI        string `json:"tgt_uri"`
	Contact       string `json:"contact"`
	Comment       string `json:"comment"`
	Database      string `json:"database"`
	HandoverToken string `json:"handover_token"`

	DBType      DBType   `json:"db_type"`
	DBDivision  Division `json:"db_division"`
	StagingURI  string   `json:"staging_uri"`
	GRCh37      bool     `json:"grch37"`

	ProgressTotal    int `json:"progress_total"`
	ProgressComplete int `json:"progress_complete"`

	DCJobID       string `json:"dc_job_id,omitempty"`
	CopyJobID     string `json:"copy_job_id,omitempty"`
	MetadataJobID string `json:"metadata_job_id,omitempty"`
	DispatchJobID string `json:"dispatch_job_id,omitempty"`

	TaskID string `json:"task_id,omitempty"`

	// ChainID and StageIndex are task-runtime bookkeeping, not part of the
	// submitter-facing contract: they let the metadata stage append a
	// dispatch task to its own chain when the dispatch decision fires
	// (spec.md §4.5), without the orchestrator needing direct store
	// access. Set by taskruntime.Runtime before every stage invocation.
	ChainID    string `json:"-"`
	StageIndex int    `json:"-"`

	// JobProgress is transient sub-progress reported by the data-check
	// client; pruned once the data-check stage completes.
	JobProgress string `json:"job_progress,omitempty"`

	// Genome is set by the metadata stage when a dispatch decision is made;
	// it records which genome triggered the dispatch.
	Genome string `json:"genome,omitempty"`
}

// Validate checks the fields that must be populated before a HandoverSpec
// can be admitted at ingress (C6). Routing fields (DBType, DBDivision, ...)
// are validated separately by the router (C1), since they are derived, not
// submitter-supplied.
func (s HandoverSpec) Validate() error {
	if s.SrcURI == "" {
		return ErrMissingSrcURI
	}

	if s.Contact == "" {
		return ErrMissingContact
	}

	if s.Database == "" {
		return ErrMissingDatabase
	}

	return nil
}

// WithProgress returns a copy of s with ProgressComplete advanced to at
// least the given value. Progress is monotonically non-decreasing
// (spec.md §3 invariants): calling WithProgress with a lower value is a
// no-op.
func (s HandoverSpec) WithProgress(complete int) HandoverSpec {
	if complete > s.ProgressComplete {
		s.ProgressComplete = complete
	}

	return s
}

// ReportType is the severity level of a journal Report.
type ReportType string

// Recognized report types (spec.md §3).
const (
	ReportDebug   ReportType = "DEBUG"
	ReportInfo    ReportType = "INFO"
	ReportWarning ReportType = "WARNING"
	ReportError   ReportType = "ERROR"
)

// Report is one row of the journal (spec.md §3): a structured progress
// event emitted by the orchestrator, keyed by HandoverToken.
type Report struct {
	ReportType    ReportType     `json:"report_type"`
	ReportTime    time.Time      `json:"report_time"`
	Message       string         `json:"message"`
	Params        HandoverSpec   `json:"params"`
	Source        string         `json:"source"`
}

// String renders the report for log lines and email bodies.
func (r Report) String() string {
	return fmt.Sprintf("[%s] %s (token=%s, task=%s)",
		r.ReportType, r.Message, r.Params.HandoverToken, r.Params.TaskID)
}

// Package journal implements the searchable append-only report store (C2):
// the only source of truth for in-flight state, consulted by ingress for
// duplicate detection and by the restart/cancel controller for task_id
// recovery.
package journal

import (
	"context"
	"errors"

	"github.com/ensembl-io/handover/internal/handoverspec"
)

// Sentinel errors for journal operations.
var (
	ErrJournalFailed  = errors.New("journal: operation failed")
	ErrNoConnection   = errors.New("journal: no database connection")
)

// Appender is the write-only interface for the journal: report ingestion.
// Segregated from Reader so C5 stages (which only append) don't depend on
// the aggregate query surface used by the status API.
type Appender interface {
	// Append stores report and broadcasts it fire-and-forget to the
	// pub/sub channel "report.<lowercase_level>" (spec.md §4.2).
	Append(ctx context.Context, report handoverspec.Report) error
}

// ReleaseBucket is one token's latest report within an aggregate_by_release
// query result, annotated with submission/last-message bookkeeping.
type ReleaseBucket struct {
	Token          string
	Latest         handoverspec.Report
	SubmissionTime handoverspec.Report // carries ReportTime as min(report_time)
	LastMessage    string
}

// Reader is the read-only interface for the journal: status and
// duplicate-detection queries. Segregated from Appender so read-only
// callers (the status API) don't depend on the write surface.
type Reader interface {
	// LatestByToken returns the highest report_time report among
	// report_type in {INFO,ERROR} for token, or (zero, false) if none
	// exists (spec.md §4.2).
	LatestByToken(ctx context.Context, token string) (handoverspec.Report, bool, error)

	// AggregateByRelease groups reports by token whose params.database
	// matches the given release, returning the top-1 report per token
	// bucket by report_time (spec.md §4.2).
	AggregateByRelease(ctx context.Context, release int) ([]ReleaseBucket, error)

	// InFlightForDatabase reports whether the latest report for database
	// has a non-terminal message (spec.md §4.2, §4.6 duplicate check).
	InFlightForDatabase(ctx context.Context, database string) (bool, error)

	// LatestByDatabase returns the most recent report for database, or
	// (zero, false) if none exists. Used by ingress (C6) to recover the
	// existing handover_token when rejecting a duplicate submission with
	// AlreadyInFlight (spec.md §4.6 step 1: "including the existing
	// token").
	LatestByDatabase(ctx context.Context, database string) (handoverspec.Report, bool, error)

	// DeleteByToken purges all reports for token (spec.md §4.2, used by
	// the C7 DELETE /jobs/<token> control operation).
	DeleteByToken(ctx context.Context, token string) error
}

// Store is the full journal surface; PostgresStore implements both halves.
type Store interface {
	Appender
	Reader
}

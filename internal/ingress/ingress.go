// Package ingress implements submission validation, duplicate detection,
// token minting, and chain handoff (C6): everything spec.md §4.6 runs
// before a handover becomes a chain of C4 tasks.
package ingress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ensembl-io/handover/internal/downstream"
	"github.com/ensembl-io/handover/internal/handoverspec"
	"github.com/ensembl-io/handover/internal/journal"
	"github.com/ensembl-io/handover/internal/orchestrator"
	"github.com/ensembl-io/handover/internal/router"
	"github.com/ensembl-io/handover/internal/taskruntime"
)

// ErrAlreadyInFlight is returned when an in-flight token already exists
// for the submitted database (spec.md §4.6 step 1). Token carries the
// existing handover_token so the caller can surface it to the submitter.
type ErrAlreadyInFlight struct {
	Token string
}

func (e *ErrAlreadyInFlight) Error() string {
	return fmt.Sprintf("ingress: database already in flight under token %s", e.Token)
}

// ErrSourceNotFound is returned when the source database is unreachable
// at src_uri (spec.md §4.6 step 3).
var ErrSourceNotFound = errors.New("ingress: source database not found")

// SourceVerifier checks that a source database is reachable. The core
// never queries the database itself (spec.md §1 Non-goals); this is a
// connectivity probe, not a schema check.
type SourceVerifier interface {
	Exists(ctx context.Context, srcURI string) (bool, error)
}

// Request is the submitter-facing payload (spec.md §6 "Submission API"):
// {src_uri, database, contact, comment, [source]}.
type Request struct {
	SrcURI   string
	Database string
	Contact  string
	Comment  string
	Source   string
}

// Ingress validates and admits handover submissions.
type Ingress struct {
	journal  journal.Store
	router   *router.Router
	verifier SourceVerifier
	dc       *downstream.DataCheckClient
	chain    *taskruntime.Chain
}

// New constructs an Ingress.
func New(j journal.Store, r *router.Router, verifier SourceVerifier, dc *downstream.DataCheckClient, chain *taskruntime.Chain) *Ingress {
	return &Ingress{journal: j, router: r, verifier: verifier, dc: dc, chain: chain}
}

// Submit runs the full ingress pipeline (spec.md §4.6) and returns the
// minted handover_token.
func (ing *Ingress) Submit(ctx context.Context, req Request) (string, error) {
	if err := (handoverspec.HandoverSpec{
		SrcURI:  req.SrcURI,
		Contact: req.Contact,
		Database: req.Database,
	}).Validate(); err != nil {
		return "", err
	}

	inFlight, err := ing.journal.InFlightForDatabase(ctx, req.Database)
	if err != nil {
		return "", fmt.Errorf("ingress: duplicate check failed: %w", err)
	}

	if inFlight {
		existing, found, err := ing.journal.LatestByDatabase(ctx, req.Database)
		if err != nil {
			return "", fmt.Errorf("ingress: duplicate lookup failed: %w", err)
		}

		token := ""
		if found {
			token = existing.Params.HandoverToken
		}

		return "", &ErrAlreadyInFlight{Token: token}
	}

	exists, err := ing.verifier.Exists(ctx, req.SrcURI)
	if err != nil {
		return "", fmt.Errorf("ingress: source verification failed: %w", err)
	}

	if !exists {
		return "", ErrSourceNotFound
	}

	spec := handoverspec.HandoverSpec{
		SrcURI:        req.SrcURI,
		Contact:       req.Contact,
		Comment:       req.Comment,
		Database:      req.Database,
		HandoverToken: uuid.NewString(),
	}

	spec, err = ing.router.Route(req.Database, spec)
	if err != nil {
		return "", fmt.Errorf("ingress: routing rejected submission: %w", err)
	}

	if spec.TgtURI == "" {
		spec.TgtURI = spec.StagingURI + spec.Database
	}

	ing.announce(ctx, spec, handoverspec.ReportInfo, fmt.Sprintf("Handling %s", spec.Database))

	dcJobID, err := ing.dc.Submit(ctx, spec)
	if err != nil {
		return "", fmt.Errorf("ingress: data-check submission failed: %w", err)
	}

	spec.DCJobID = dcJobID

	stages := orchestrator.DefaultChain
	if spec.GRCh37 {
		stages = orchestrator.GRCh37Chain
	}

	if _, err := ing.chain.Submit(ctx, spec, stages); err != nil {
		return "", fmt.Errorf("ingress: chain submission failed: %w", err)
	}

	return spec.HandoverToken, nil
}

func (ing *Ingress) announce(ctx context.Context, spec handoverspec.HandoverSpec, level handoverspec.ReportType, message string) {
	report := handoverspec.Report{
		ReportType: level,
		ReportTime: time.Now().UTC(),
		Message:    message,
		Source:     spec.SrcURI,
		Params:     spec,
	}

	_ = ing.journal.Append(ctx, report)
}

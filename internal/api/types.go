// Package api provides the HTTP surface for the handover orchestrator:
// Submission, Status, and Control APIs (spec.md §6).
package api

import (
	"time"

	"github.com/ensembl-io/handover/internal/handoverspec"
)

type (
	// SubmissionRequest is the Submission API payload (spec.md §6):
	// {src_uri, database, contact, comment, [source]}. Accepted as JSON or
	// form-encoded.
	SubmissionRequest struct {
		SrcURI   string `json:"src_uri"`
		Database string `json:"database"`
		Contact  string `json:"contact"`
		Comment  string `json:"comment"`
		Source   string `json:"source,omitempty"`
	}

	// SubmissionResponse is returned on successful admission.
	SubmissionResponse struct {
		HandoverToken string `json:"handover_token"` //nolint:tagliatelle
	}

	// StatusEntry is one row of the Status API response (spec.md §6):
	// {id, message, comment, handover_token, contact, src_uri, tgt_uri,
	// progress_complete, progress_total, report_time, [job_progress]}.
	//
	// ID mirrors HandoverToken: the journal has no surrogate key
	// independent of the token, so the token doubles as id.
	StatusEntry struct {
		ID               string    `json:"id"`
		Message          string    `json:"message"`
		Comment          string    `json:"comment"`
		HandoverToken    string    `json:"handover_token"` //nolint:tagliatelle
		Contact          string    `json:"contact"`
		SrcURI           string    `json:"src_uri"`                //nolint:tagliatelle
		TgtURI           string    `json:"tgt_uri"`                //nolint:tagliatelle
		ProgressComplete int       `json:"progress_complete"`      //nolint:tagliatelle
		ProgressTotal    int       `json:"progress_total"`         //nolint:tagliatelle
		ReportTime       time.Time `json:"report_time"`            //nolint:tagliatelle
		JobProgress      string    `json:"job_progress,omitempty"` //nolint:tagliatelle
	}

	// RestartResponse is returned on successful Control API restart.
	RestartResponse struct {
		HandoverToken string `json:"handover_token"` //nolint:tagliatelle
	}

	// Version represents the API version response structure.
	Version struct {
		Version     string `json:"version"`
		ServiceName string `json:"serviceName"`
		BuildInfo   string `json:"buildInfo,omitempty"`
	}

	// HealthStatus represents the health check response structure.
	HealthStatus struct {
		Status      string `json:"status"`
		ServiceName string `json:"serviceName"`
		Version     string `json:"version"`
		Uptime      string `json:"uptime,omitempty"`
	}
)

// statusEntryFromReport converts a journal report into its Status API
// wire shape.
func statusEntryFromReport(report handoverspec.Report) StatusEntry {
	spec := report.Params

	return StatusEntry{
		ID:               spec.HandoverToken,
		Message:          report.Message,
		Comment:          spec.Comment,
		HandoverToken:    spec.HandoverToken,
		Contact:          spec.Contact,
		SrcURI:           spec.SrcURI,
		TgtURI:           spec.TgtURI,
		ProgressComplete: spec.ProgressComplete,
		ProgressTotal:    spec.ProgressTotal,
		ReportTime:       report.ReportTime,
		JobProgress:      spec.JobProgress,
	}
}

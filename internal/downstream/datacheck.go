package downstream

import (
	"context"
	"net/http"

	"github.com/ensembl-io/handover/internal/handoverspec"
)

// dataCheckTerminal holds the terminal statuses for the DataCheck client
// (spec.md §4.3 table): "passed", "failed", "dc-run-error".
var dataCheckTerminal = terminalSet{
	"passed":       true,
	"failed":       true,
	"dc-run-error": true,
}

// DataCheckClient submits and polls data-check jobs. Argument shape varies
// by db_type (spec.md §4.6 step 7: "different argument shapes by db_type
// (compara / ancestral / rnaseq|cdna|otherfeatures / other)").
type DataCheckClient struct {
	baseURL string
	client  *http.Client
}

// NewDataCheckClient constructs a client bound to baseURL.
func NewDataCheckClient(baseURL string) *DataCheckClient {
	return &DataCheckClient{baseURL: baseURL, client: newHTTPClient()}
}

// dataCheckSubmission is the request payload; its shape is selected by
// db_type at the call site (buildSubmission below).
type dataCheckSubmission struct {
	Database string   `json:"database"`
	DBType   string   `json:"db_type"`
	Division string   `json:"division,omitempty"`
	Species  []string `json:"species,omitempty"`
}

// buildSubmission varies the request shape per spec.md §4.6 step 7.
func buildSubmission(spec handoverspec.HandoverSpec) dataCheckSubmission {
	sub := dataCheckSubmission{
		Database: spec.Database,
		DBType:   string(spec.DBType),
	}

	switch spec.DBType {
	case handoverspec.DBTypeCompara, handoverspec.DBTypeAncestral:
		sub.Division = string(spec.DBDivision)
	case handoverspec.DBTypeRNASeq, handoverspec.DBTypeCDNA, handoverspec.DBTypeOtherFeatures:
		sub.Species = []string{spec.Database}
	}

	return sub
}

// Submit submits a data-check job for spec, returning its job_id.
func (c *DataCheckClient) Submit(ctx context.Context, spec handoverspec.HandoverSpec) (string, error) {
	var out struct {
		JobID string `json:"job_id"`
	}

	sub := buildSubmission(spec)
	if err := doJSON(ctx, c.client, "datacheck", http.MethodPost, c.baseURL+"/submit", sub, &out); err != nil {
		return "", err
	}

	return out.JobID, nil
}

// Status polls job_id's current status.
func (c *DataCheckClient) Status(ctx context.Context, jobID string) (StatusResult, error) {
	var out StatusResult

	url := c.baseURL + "/status/" + jobID
	if err := doJSON(ctx, c.client, "datacheck", http.MethodGet, url, nil, &out); err != nil {
		return StatusResult{}, err
	}

	return out, nil
}

// IsTerminal reports whether status ends the data-check stage's poll loop.
func (c *DataCheckClient) IsTerminal(status Status) bool {
	return dataCheckTerminal.isTerminal(status)
}

package downstream

import (
	"context"
	"net/http"
)

// dbCopyTerminal holds the terminal statuses for the DbCopy client
// (spec.md §4.3 table): "Complete", "Failed".
var dbCopyTerminal = terminalSet{
	"Complete": true,
	"Failed":   true,
}

// DbCopyClient submits and polls database-copy jobs.
type DbCopyClient struct {
	baseURL string
	client  *http.Client
}

// NewDbCopyClient constructs a client bound to baseURL.
func NewDbCopyClient(baseURL string) *DbCopyClient {
	return &DbCopyClient{baseURL: baseURL, client: newHTTPClient()}
}

// CopyRequest is the copy submission payload (spec.md §4.5 "Copy stage":
// "submit(src_host, src_db, tgt_host, tgt_db, overwrite=false, …)").
type CopyRequest struct {
	SrcHost   string `json:"src_host"`
	SrcDB     string `json:"src_db"`
	TgtHost   string `json:"tgt_host"`
	TgtDB     string `json:"tgt_db"`
	Overwrite bool   `json:"overwrite"`
	Operator  string `json:"operator"`
}

// Submit submits a copy job, returning its job_id.
func (c *DbCopyClient) Submit(ctx context.Context, req CopyRequest) (string, error) {
	var out struct {
		JobID string `json:"job_id"`
	}

	if err := doJSON(ctx, c.client, "dbcopy", http.MethodPost, c.baseURL+"/submit", req, &out); err != nil {
		return "", err
	}

	return out.JobID, nil
}

// Status polls job_id's current status.
func (c *DbCopyClient) Status(ctx context.Context, jobID string) (StatusResult, error) {
	var out StatusResult

	url := c.baseURL + "/status/" + jobID
	if err := doJSON(ctx, c.client, "dbcopy", http.MethodGet, url, nil, &out); err != nil {
		return StatusResult{}, err
	}

	return out, nil
}

// IsTerminal reports whether status ends the copy stage's poll loop.
func (c *DbCopyClient) IsTerminal(status Status) bool {
	return dbCopyTerminal.isTerminal(status)
}

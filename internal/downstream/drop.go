package downstream

import (
	"context"
	"net/http"
)

// DropClient issues the destructive "remove this database from staging"
// operation the metadata stage performs on `failed` and on superseded
// `current_database_list` entries (spec.md §4.5). Modeled as its own
// typed client rather than folded into DbCopyClient since it has no
// submit/status shape — it is synchronous and fire-once.
type DropClient struct {
	baseURL string
	client  *http.Client
}

// NewDropClient constructs a client bound to baseURL (the staging admin
// endpoint).
func NewDropClient(baseURL string) *DropClient {
	return &DropClient{baseURL: baseURL, client: newHTTPClient()}
}

// DropRequest names the database to remove from a staging host.
type DropRequest struct {
	Host     string `json:"host"`
	Database string `json:"database"`
}

// Drop deletes database from host. Synchronous: returns once the staging
// admin endpoint confirms removal.
func (c *DropClient) Drop(ctx context.Context, req DropRequest) error {
	return doJSON(ctx, c.client, "drop", http.MethodPost, c.baseURL+"/drop", req, nil)
}

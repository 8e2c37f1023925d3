package downstream

import (
	"context"
	"net/http"
)

// EventClient fires notification events downstream. Fire-and-forget: no
// status() method (spec.md §4.3 table, "Event | (fire-and-forget) | n/a").
type EventClient struct {
	baseURL string
	client  *http.Client
}

// NewEventClient constructs a client bound to baseURL.
func NewEventClient(baseURL string) *EventClient {
	return &EventClient{baseURL: baseURL, client: newHTTPClient()}
}

// NotifyRequest is the fire-and-forget event payload.
type NotifyRequest struct {
	Genome  string `json:"genome"`
	Message string `json:"message"`
}

// Submit fires a notification event. Errors are surfaced as *ClientError
// but, per spec.md §4.3, have no status to subsequently poll.
func (c *EventClient) Submit(ctx context.Context, req NotifyRequest) error {
	return doJSON(ctx, c.client, "event", http.MethodPost, c.baseURL+"/notify", req, nil)
}

package downstream

import (
	"context"
	"net/http"
)

// metadataTerminal holds the terminal statuses for the Metadata client
// (spec.md §4.3 table): "complete", "failed".
var metadataTerminal = terminalSet{
	"complete": true,
	"failed":   true,
}

// MetadataClient submits and polls metadata-registration jobs.
type MetadataClient struct {
	baseURL string
	client  *http.Client
}

// NewMetadataClient constructs a client bound to baseURL.
func NewMetadataClient(baseURL string) *MetadataClient {
	return &MetadataClient{baseURL: baseURL, client: newHTTPClient()}
}

// MetadataRequest is the metadata submission payload (spec.md §4.5
// "Metadata stage": "submit(tgt_uri, …, contact, comment,
// source=\"Handover\")").
type MetadataRequest struct {
	TgtURI  string `json:"tgt_uri"`
	Contact string `json:"contact"`
	Comment string `json:"comment"`
	Source  string `json:"source"`
}

// MetadataEvent is one entry of a metadata job's result.output.events
// (spec.md §4.5 "inspect result.output.events").
type MetadataEvent struct {
	Type                string   `json:"type"`
	Genome              string   `json:"genome"`
	CurrentDatabaseList []string `json:"current_database_list,omitempty"`
}

// Submit submits a metadata job, returning its job_id.
func (c *MetadataClient) Submit(ctx context.Context, req MetadataRequest) (string, error) {
	var out struct {
		JobID string `json:"job_id"`
	}

	if err := doJSON(ctx, c.client, "metadata", http.MethodPost, c.baseURL+"/submit", req, &out); err != nil {
		return "", err
	}

	return out.JobID, nil
}

// Status polls job_id's current status.
func (c *MetadataClient) Status(ctx context.Context, jobID string) (StatusResult, error) {
	var out StatusResult

	url := c.baseURL + "/status/" + jobID
	if err := doJSON(ctx, c.client, "metadata", http.MethodGet, url, nil, &out); err != nil {
		return StatusResult{}, err
	}

	return out, nil
}

// IsTerminal reports whether status ends the metadata stage's poll loop.
func (c *MetadataClient) IsTerminal(status Status) bool {
	return metadataTerminal.isTerminal(status)
}

// Events extracts the typed event list from a terminal StatusResult's
// output, per spec.md §4.5's inspection of result.output.events.
func (c *MetadataClient) Events(result StatusResult) []MetadataEvent {
	raw, ok := result.Output["events"].([]any)
	if !ok {
		return nil
	}

	events := make([]MetadataEvent, 0, len(raw))

	for _, r := range raw {
		m, ok := r.(map[string]any)
		if !ok {
			continue
		}

		event := MetadataEvent{
			Type:   stringField(m, "type"),
			Genome: stringField(m, "genome"),
		}

		if details, ok := m["details"].(map[string]any); ok {
			if list, ok := details["current_database_list"].([]any); ok {
				for _, v := range list {
					if s, ok := v.(string); ok {
						event.CurrentDatabaseList = append(event.CurrentDatabaseList, s)
					}
				}
			}
		}

		events = append(events, event)
	}

	return events
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}

	return ""
}

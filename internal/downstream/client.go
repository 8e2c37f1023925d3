// Package downstream implements the typed HTTP clients for the four
// external services the orchestrator drives: DataCheck, DbCopy, Metadata,
// and Event (spec.md §4.3).
package downstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"
)

// shortConnectTimeout bounds connection establishment only (spec.md §5
// "Each downstream HTTP call uses a short connection timeout; on
// transport failure the stage emits ERROR and terminates the chain").
const shortConnectTimeout = 5 * time.Second

// ClientError surfaces a downstream HTTP failure (spec.md §7
// "ClientError(service, status, detail)").
type ClientError struct {
	Service string
	Status  int
	Detail  string
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("downstream: %s returned %d: %s", e.Service, e.Status, e.Detail)
}

// httpClient is the shared transport used by every typed client: a short
// connect timeout, no overall request deadline (spec.md §5 "No per-task
// timeout: the pipeline is designed for potentially day-long external
// jobs" — the timeout below only bounds establishing the TCP connection,
// not the response).
func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout: shortConnectTimeout,
			}).DialContext,
		},
	}
}

// doJSON POSTs body as JSON to url and decodes the response into out.
// Returns a *ClientError for non-2xx responses and for transport failures
// alike: per spec.md §5, transport errors are "not indistinguishable from
// job failure" at this layer — the orchestrator decides disposition, the
// client only reports.
func doJSON(ctx context.Context, client *http.Client, service, method, url string, body, out any) error {
	var reqBody []byte

	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("downstream: %s: encode request: %w", service, err)
		}

		reqBody = encoded
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytesReader(reqBody))
	if err != nil {
		return fmt.Errorf("downstream: %s: build request: %w", service, err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return &ClientError{Service: service, Status: 0, Detail: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return &ClientError{Service: service, Status: resp.StatusCode, Detail: readBody(resp)}
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("downstream: %s: decode response: %w", service, err)
	}

	return nil
}

package ingress

import (
	"context"
	"net"
	"net/url"
	"time"
)

// dialTimeout bounds the reachability probe; src_uri hosts are expected
// to answer immediately or not at all (spec.md §5's short-connect-timeout
// convention, reused here for the ingress-time reachability check).
const dialTimeout = 5 * time.Second

// TCPVerifier verifies a source database is reachable by dialing its
// host:port. The core never queries the database itself (spec.md §1
// Non-goals) — this is a connectivity probe only, not a schema check.
type TCPVerifier struct {
	dialer net.Dialer
}

// NewTCPVerifier constructs a TCPVerifier.
func NewTCPVerifier() *TCPVerifier {
	return &TCPVerifier{dialer: net.Dialer{Timeout: dialTimeout}}
}

// Exists implements SourceVerifier.
func (v *TCPVerifier) Exists(ctx context.Context, srcURI string) (bool, error) {
	u, err := url.Parse(srcURI)
	if err != nil {
		return false, nil //nolint:nilerr // unparseable src_uri reads as "not found", not a probe failure
	}

	conn, err := v.dialer.DialContext(ctx, "tcp", u.Host)
	if err != nil {
		return false, nil //nolint:nilerr // connection refused/timeout reads as "not found"
	}

	_ = conn.Close()

	return true, nil
}

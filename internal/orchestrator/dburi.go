package orchestrator

import (
	"fmt"
	"net/url"
	"strings"
)

// dbURI is a parsed "scheme://user@host:port/database" handover URI
// (spec.md §3: "src_uri: database URL (user, host, port, database)").
type dbURI struct {
	User     string
	HostPort string
	Database string
}

// parseDBURI parses a handover database URI. Host/port and database are
// the only parts the copy/metadata clients need; the scheme is ignored
// since the core never connects to the database directly (spec.md §1
// Non-goals — the core orchestrates, it does not touch data).
func parseDBURI(raw string) (dbURI, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return dbURI{}, fmt.Errorf("orchestrator: invalid database uri %q: %w", raw, err)
	}

	database := strings.TrimPrefix(u.Path, "/")
	if database == "" {
		return dbURI{}, fmt.Errorf("orchestrator: database uri %q has no database path", raw)
	}

	user := ""
	if u.User != nil {
		user = u.User.Username()
	}

	return dbURI{User: user, HostPort: u.Host, Database: database}, nil
}

// buildURI joins a URI prefix and a database name with a single "/", the
// shape parseDBURI accepts; the metadata stage uses it to derive tgt_uri
// from the dispatch target URL + database.
func buildURI(prefix, database string) string {
	if strings.HasSuffix(prefix, "/") {
		return prefix + database
	}

	return prefix + "/" + database
}

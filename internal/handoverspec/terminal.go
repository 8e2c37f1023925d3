package handoverspec

import "regexp"

// terminalMessagePattern matches the subset of report messages that mark a
// token as having reached a terminal state (spec.md §3 invariants). A
// non-matching latest INFO/ERROR report means the token is still in flight.
var terminalMessagePattern = regexp.MustCompile(`(?i)failed|found problems|complete|successful|revoked`)

// IsTerminalMessage reports whether message marks its token as terminal.
func IsTerminalMessage(message string) bool {
	return terminalMessagePattern.MatchString(message)
}

// IsTerminal reports whether the report itself is terminal: only INFO and
// ERROR reports are considered for terminality (DEBUG/WARNING never end a
// token's lifecycle).
func (r Report) IsTerminal() bool {
	if r.ReportType != ReportInfo && r.ReportType != ReportError {
		return false
	}

	return IsTerminalMessage(r.Message)
}

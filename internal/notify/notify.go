// Package notify sends the operator-facing emails the orchestrator stages
// trigger on terminal failures and on BLAT configuration-update reminders
// (spec.md §4.5). The transport itself is explicitly out of scope for this
// spec (only the decision of *when* to notify is load-bearing), so the
// concrete Notifier is a thin net/smtp wrapper behind a small interface
// consumed by internal/orchestrator.
package notify

import (
	"fmt"
	"net/smtp"
)

// Notifier sends a single plain-text email. Implementations must treat
// send failures as non-fatal to the caller's pipeline: a stage that cannot
// notify still has to finish transitioning its task (spec.md §4.5 only
// requires "email the contact" as a side effect, not a precondition).
type Notifier interface {
	Notify(to, subject, body string) error
}

// SMTPNotifier sends mail through a configured SMTP relay.
type SMTPNotifier struct {
	addr string
	from string
	auth smtp.Auth
}

// NewSMTPNotifier constructs a Notifier that relays through addr
// (host:port) as the given from address. auth may be nil for relays that
// accept unauthenticated local submission.
func NewSMTPNotifier(addr, from string, auth smtp.Auth) *SMTPNotifier {
	return &SMTPNotifier{addr: addr, from: from, auth: auth}
}

// Notify sends a plain-text email to to.
func (n *SMTPNotifier) Notify(to, subject, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n", n.from, to, subject, body)

	return smtp.SendMail(n.addr, n.auth, n.from, []string{to}, []byte(msg))
}

// NoopNotifier discards notifications. Useful for local development and
// for tests that don't exercise the notification path directly.
type NoopNotifier struct{}

// Notify does nothing and never fails.
func (NoopNotifier) Notify(_, _, _ string) error { return nil }

package notification

import "context"

// Message is a plain-text email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer sends transactional email. All sends in this service are
// best-effort: callers log failures and move on.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// NopMailer discards mail. Used when no SMTP relay is configured.
type NopMailer struct{}

func (NopMailer) Send(ctx context.Context, msg Message) error { return nil }

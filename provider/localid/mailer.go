package localid

import "context"

// Mailer delivers verification emails. The default implementation only
// logs the link, which is what tests and local development want.
type Mailer interface {
	SendVerification(ctx context.Context, email, token string) error
}

// MailerFunc adapts a function into a Mailer.
type MailerFunc func(ctx context.Context, email, token string) error

// SendVerification satisfies the Mailer interface.
func (f MailerFunc) SendVerification(ctx context.Context, email, token string) error {
	return f(ctx, email, token)
}

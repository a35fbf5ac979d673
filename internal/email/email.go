// Package email defines the email provider capability: sender identity
// verification and outbound send.
package email

import "context"

// Message is one outbound email.
type Message struct {
	From    string
	To      string
	Subject string
	Body    string
}

// Provider is implemented by email-sending backends.
type Provider interface {
	// VerifyIdentity starts verification of a sender address. The provider
	// mails a confirmation link to the address out of band.
	VerifyIdentity(ctx context.Context, email string) error

	// IsVerified reports whether the address has completed verification.
	IsVerified(ctx context.Context, email string) (bool, error)

	// DeleteIdentity removes the sender address from the provider.
	DeleteIdentity(ctx context.Context, email string) error

	// Send delivers msg and returns the provider's message id.
	Send(ctx context.Context, msg Message) (string, error)
}

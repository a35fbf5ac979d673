// Package ses implements email.Provider on Amazon SES.
package ses

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"github.com/mickBoat00/email-service/internal/email"
)

// API is the subset of the SES client used by Provider.
type API interface {
	VerifyEmailIdentity(ctx context.Context, in *ses.VerifyEmailIdentityInput, optFns ...func(*ses.Options)) (*ses.VerifyEmailIdentityOutput, error)
	GetIdentityVerificationAttributes(ctx context.Context, in *ses.GetIdentityVerificationAttributesInput, optFns ...func(*ses.Options)) (*ses.GetIdentityVerificationAttributesOutput, error)
	DeleteIdentity(ctx context.Context, in *ses.DeleteIdentityInput, optFns ...func(*ses.Options)) (*ses.DeleteIdentityOutput, error)
	SendEmail(ctx context.Context, in *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// Provider sends mail through SES
type Provider struct {
	client API
}

var _ email.Provider = (*Provider)(nil)

// New creates a Provider from an AWS config
func New(cfg aws.Config) *Provider {
	return NewWithClient(ses.NewFromConfig(cfg))
}

// NewWithClient creates a Provider over an existing client
func NewWithClient(client API) *Provider {
	return &Provider{client: client}
}

func (p *Provider) VerifyIdentity(ctx context.Context, address string) error {
	_, err := p.client.VerifyEmailIdentity(ctx, &ses.VerifyEmailIdentityInput{
		EmailAddress: aws.String(address),
	})
	if err != nil {
		return fmt.Errorf("ses verify identity: %w", err)
	}
	return nil
}

// IsVerified is true only for verification status "Success"; pending, failed
// and unknown identities all report false.
func (p *Provider) IsVerified(ctx context.Context, address string) (bool, error) {
	out, err := p.client.GetIdentityVerificationAttributes(ctx, &ses.GetIdentityVerificationAttributesInput{
		Identities: []string{address},
	})
	if err != nil {
		return false, fmt.Errorf("ses get verification attributes: %w", err)
	}
	attrs, ok := out.VerificationAttributes[address]
	if !ok {
		return false, nil
	}
	return attrs.VerificationStatus == types.VerificationStatusSuccess, nil
}

func (p *Provider) DeleteIdentity(ctx context.Context, address string) error {
	_, err := p.client.DeleteIdentity(ctx, &ses.DeleteIdentityInput{
		Identity: aws.String(address),
	})
	if err != nil {
		return fmt.Errorf("ses delete identity: %w", err)
	}
	return nil
}

func (p *Provider) Send(ctx context.Context, msg email.Message) (string, error) {
	out, err := p.client.SendEmail(ctx, &ses.SendEmailInput{
		Source:      aws.String(msg.From),
		Destination: &types.Destination{ToAddresses: []string{msg.To}},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(msg.Body), Charset: aws.String("UTF-8")},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("ses send email: %w", err)
	}
	return aws.ToString(out.MessageId), nil
}

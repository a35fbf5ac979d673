// Package apigateway implements keymgmt.Provider on Amazon API Gateway API keys.
package apigateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/apigateway"
	"github.com/aws/aws-sdk-go-v2/service/apigateway/types"

	"github.com/mickBoat00/email-service/internal/keymgmt"
)

const usagePlanKeyType = "API_KEY"

// API is the subset of the API Gateway client used by Provider.
type API interface {
	CreateApiKey(ctx context.Context, in *apigateway.CreateApiKeyInput, optFns ...func(*apigateway.Options)) (*apigateway.CreateApiKeyOutput, error)
	GetApiKey(ctx context.Context, in *apigateway.GetApiKeyInput, optFns ...func(*apigateway.Options)) (*apigateway.GetApiKeyOutput, error)
	DeleteApiKey(ctx context.Context, in *apigateway.DeleteApiKeyInput, optFns ...func(*apigateway.Options)) (*apigateway.DeleteApiKeyOutput, error)
	CreateUsagePlanKey(ctx context.Context, in *apigateway.CreateUsagePlanKeyInput, optFns ...func(*apigateway.Options)) (*apigateway.CreateUsagePlanKeyOutput, error)
}

// Provider manages keys through API Gateway
type Provider struct {
	client API
}

var _ keymgmt.Provider = (*Provider)(nil)

// New creates a Provider from an AWS config
func New(cfg aws.Config) *Provider {
	return NewWithClient(apigateway.NewFromConfig(cfg))
}

// NewWithClient creates a Provider over an existing client
func NewWithClient(client API) *Provider {
	return &Provider{client: client}
}

// mapError translates API Gateway's not-found and conflict exceptions into
// the keymgmt sentinels, keeping the original error in the chain.
func mapError(err error, op string) error {
	var notFound *types.NotFoundException
	if errors.As(err, &notFound) {
		return fmt.Errorf("apigateway %s: %w: %w", op, keymgmt.ErrKeyNotFound, err)
	}
	var conflict *types.ConflictException
	if errors.As(err, &conflict) {
		return fmt.Errorf("apigateway %s: %w: %w", op, keymgmt.ErrConflict, err)
	}
	return fmt.Errorf("apigateway %s: %w", op, err)
}

func (p *Provider) CreateKey(ctx context.Context, name, description, value string) (*keymgmt.Key, error) {
	out, err := p.client.CreateApiKey(ctx, &apigateway.CreateApiKeyInput{
		Name:        aws.String(name),
		Description: aws.String(description),
		Enabled:     true,
		Value:       aws.String(value),
	})
	if err != nil {
		return nil, mapError(err, "create api key")
	}
	return &keymgmt.Key{
		ID:        aws.ToString(out.Id),
		Name:      aws.ToString(out.Name),
		Enabled:   out.Enabled,
		CreatedAt: aws.ToTime(out.CreatedDate),
	}, nil
}

// GetKey asks for the key value; API Gateway returns it to callers with
// apigateway:GET permission on the key.
func (p *Provider) GetKey(ctx context.Context, id string) (*keymgmt.Key, error) {
	out, err := p.client.GetApiKey(ctx, &apigateway.GetApiKeyInput{
		ApiKey:       aws.String(id),
		IncludeValue: aws.Bool(true),
	})
	if err != nil {
		return nil, mapError(err, "get api key")
	}
	return &keymgmt.Key{
		ID:        aws.ToString(out.Id),
		Name:      aws.ToString(out.Name),
		Value:     aws.ToString(out.Value),
		Enabled:   out.Enabled,
		CreatedAt: aws.ToTime(out.CreatedDate),
	}, nil
}

func (p *Provider) DeleteKey(ctx context.Context, id string) error {
	if _, err := p.client.DeleteApiKey(ctx, &apigateway.DeleteApiKeyInput{ApiKey: aws.String(id)}); err != nil {
		return mapError(err, "delete api key")
	}
	return nil
}

func (p *Provider) AttachToUsagePlan(ctx context.Context, planID, keyID string) error {
	_, err := p.client.CreateUsagePlanKey(ctx, &apigateway.CreateUsagePlanKeyInput{
		UsagePlanId: aws.String(planID),
		KeyId:       aws.String(keyID),
		KeyType:     aws.String(usagePlanKeyType),
	})
	if err != nil {
		return mapError(err, "create usage plan key")
	}
	return nil
}

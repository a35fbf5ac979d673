// Package services implements the app and API key lifecycle on top of the app
// store and the two external providers: the email provider that verifies
// sender identities and delivers mail, and the key-management provider that
// holds the issued keys.
//
// Every operation returns *Error on failure so the HTTP layer can map it to a
// status code without inspecting store or provider errors itself.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/mickBoat00/email-service/internal/auth"
	"github.com/mickBoat00/email-service/internal/config"
	"github.com/mickBoat00/email-service/internal/db/models"
	"github.com/mickBoat00/email-service/internal/email"
	"github.com/mickBoat00/email-service/internal/keymgmt"
	"github.com/mickBoat00/email-service/internal/store"
	"github.com/mickBoat00/email-service/internal/telemetry"
)

// Provider label values for ProviderErrorsTotal.
const (
	providerEmail = "ses"
	providerKeys  = "apigateway"
)

// RegisterRequest is the input to Register.
type RegisterRequest struct {
	AppName     string `json:"appName" validate:"required"`
	SenderEmail string `json:"senderEmail" validate:"required,email"`
}

// SendRequest is the input to Send.
type SendRequest struct {
	Recipient string `json:"recipient" validate:"required,email"`
	Subject   string `json:"subject" validate:"required"`
	Message   string `json:"message" validate:"required"`
}

// KeyResult is returned by ProvisionKey.
type KeyResult struct {
	App           *models.App
	ExternalKeyID string
	// APIKey is the plaintext key. It is set for a newly created key and, for
	// an existing key, only when revealing is enabled and the provider returned it.
	APIKey string
	// Created is false when the app already held a live key.
	Created bool
}

// AppService coordinates the app store with the email and key providers.
type AppService struct {
	store          store.AppStore
	email          email.Provider
	keys           keymgmt.Provider
	usagePlanID    string
	revealExisting bool

	validate    *validator.Validate
	log         zerolog.Logger
	now         func() time.Time
	generateKey func() (string, error)
}

// NewAppService creates a new app service
func NewAppService(appStore store.AppStore, emailProvider email.Provider, keyProvider keymgmt.Provider, keysCfg config.KeysConfig) *AppService {
	return &AppService{
		store:          appStore,
		email:          emailProvider,
		keys:           keyProvider,
		usagePlanID:    keysCfg.UsagePlanID,
		revealExisting: keysCfg.RevealExisting,
		validate:       validator.New(validator.WithRequiredStructEnabled()),
		log:            telemetry.Component("apps"),
		now:            func() time.Time { return time.Now().UTC() },
		generateKey:    auth.GenerateKey,
	}
}

// Ping checks the app store.
func (s *AppService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Register creates an app in pending_verification and asks the email provider
// to verify its sender address. A failed verification request is logged and
// does not fail the registration; provisioning checks verification later.
func (s *AppService) Register(ctx context.Context, req RegisterRequest) (*models.App, error) {
	req.AppName = strings.TrimSpace(req.AppName)
	req.SenderEmail = strings.TrimSpace(req.SenderEmail)

	if err := s.validate.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && fieldErrs[0].Tag() == "email" {
			return nil, validationError("Invalid sender email", fmt.Sprintf("%s is not a valid email address.", req.SenderEmail))
		}
		return nil, validationError("Missing required fields: appName and senderEmail", "")
	}

	if _, err := s.store.FindByName(ctx, req.AppName); err == nil {
		return nil, duplicateAppError(store.FieldAppName, req)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, upstreamError("Failed to register app", err)
	}
	if _, err := s.store.FindBySenderEmail(ctx, req.SenderEmail); err == nil {
		return nil, duplicateAppError(store.FieldSenderEmail, req)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, upstreamError("Failed to register app", err)
	}

	if err := s.email.VerifyIdentity(ctx, req.SenderEmail); err != nil {
		telemetry.ProviderErrorsTotal.WithLabelValues(providerEmail, "verify_identity").Inc()
		s.log.Warn().Err(err).Str("app_name", req.AppName).Msg("sender verification request failed")
	}

	now := s.now()
	app := &models.App{
		AppName:     req.AppName,
		SenderEmail: req.SenderEmail,
		Status:      models.StatusPendingVerification,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Insert(ctx, app); err != nil {
		// The store's unique index catches registrations that raced past the checks above.
		if field, ok := store.IsDuplicate(err); ok {
			return nil, duplicateAppError(field, req)
		}
		return nil, upstreamError("Failed to register app", err)
	}

	telemetry.AppsRegisteredTotal.Inc()
	s.log.Info().Str("app_id", app.ID).Str("app_name", app.AppName).Msg("app registered")
	return app, nil
}

func duplicateAppError(field string, req RegisterRequest) *Error {
	if field == store.FieldSenderEmail {
		return conflictError("Email already registered", fmt.Sprintf("%s is already linked to an existing app.", req.SenderEmail))
	}
	return conflictError("App name already exists", fmt.Sprintf("The app '%s' is already registered.", req.AppName))
}

// List returns every app ordered by creation time.
func (s *AppService) List(ctx context.Context) ([]*models.App, error) {
	apps, err := s.store.List(ctx)
	if err != nil {
		return nil, upstreamError("Failed to list apps", err)
	}
	return apps, nil
}

// getApp resolves an app id, mapping store errors to service errors.
func (s *AppService) getApp(ctx context.Context, id string) (*models.App, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, validationError("Missing required field: id", "")
	}
	app, err := s.store.FindByID(ctx, id)
	switch {
	case err == nil:
		return app, nil
	case errors.Is(err, store.ErrInvalidID):
		return nil, validationError("Invalid app ID format", "")
	case errors.Is(err, store.ErrNotFound):
		return nil, notFoundError("App not found", "")
	default:
		return nil, upstreamError("Failed to load app", err)
	}
}

// Delete removes an app: its provider key if one is held, its sender identity,
// then the record. A key already gone at the provider is not an error.
func (s *AppService) Delete(ctx context.Context, id string) (*models.App, error) {
	app, err := s.getApp(ctx, id)
	if err != nil {
		return nil, err
	}
	logger := s.log.With().Str("app_id", app.ID).Str("app_name", app.AppName).Logger()

	if app.HasKey() {
		if err := s.keys.DeleteKey(ctx, app.KeyID()); err != nil && !errors.Is(err, keymgmt.ErrKeyNotFound) {
			telemetry.ProviderErrorsTotal.WithLabelValues(providerKeys, "delete_key").Inc()
			logger.Error().Err(err).Msg("failed to delete api key")
			return nil, upstreamError("Failed to delete app", err)
		}
	}

	if err := s.email.DeleteIdentity(ctx, app.SenderEmail); err != nil {
		telemetry.ProviderErrorsTotal.WithLabelValues(providerEmail, "delete_identity").Inc()
		logger.Error().Err(err).Msg("failed to delete sender identity")
		return nil, upstreamError("Failed to delete app", err)
	}

	if err := s.store.Delete(ctx, app.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFoundError("App not found", "")
		}
		return nil, upstreamError("Failed to delete app", err)
	}

	telemetry.AppsDeletedTotal.Inc()
	logger.Info().Msg("app deleted")
	return app, nil
}

// ProvisionKey issues an API key for a verified app.
//
// If the app already holds a key that the provider still knows, the existing
// key is reported instead of creating another one. The record update is
// conditional on the key id read at the start; if a concurrent call won, the
// key created here is deleted and Conflict is returned.
func (s *AppService) ProvisionKey(ctx context.Context, id string) (*KeyResult, error) {
	app, err := s.getApp(ctx, id)
	if err != nil {
		return nil, err
	}
	logger := s.log.With().Str("app_id", app.ID).Str("app_name", app.AppName).Logger()

	verified, err := s.email.IsVerified(ctx, app.SenderEmail)
	if err != nil {
		telemetry.ProviderErrorsTotal.WithLabelValues(providerEmail, "get_verification").Inc()
		logger.Error().Err(err).Msg("failed to check sender verification")
		return nil, upstreamError("Failed to check email verification status", err)
	}
	if !verified {
		return nil, validationError("Email not verified", fmt.Sprintf("Please verify %s before creating API key.", app.SenderEmail))
	}

	expectedKeyID := app.KeyID()
	if app.HasKey() {
		existing, err := s.keys.GetKey(ctx, expectedKeyID)
		switch {
		case err == nil:
			result := &KeyResult{App: app, ExternalKeyID: existing.ID}
			if s.revealExisting {
				result.APIKey = existing.Value
			}
			telemetry.APIKeysProvisionedTotal.WithLabelValues("existing").Inc()
			return result, nil
		case errors.Is(err, keymgmt.ErrKeyNotFound):
			logger.Warn().Str("key_id", expectedKeyID).Msg("stored api key missing at provider, issuing a new one")
		default:
			telemetry.ProviderErrorsTotal.WithLabelValues(providerKeys, "get_key").Inc()
			logger.Error().Err(err).Msg("failed to look up existing api key")
			return nil, upstreamError("Failed to look up existing API key", err)
		}
	}

	plaintext, err := s.generateKey()
	if err != nil {
		return nil, upstreamError("Failed to generate API key", err)
	}

	key, err := s.keys.CreateKey(ctx, app.AppName+"-key", "API key for "+app.AppName, plaintext)
	if err != nil {
		telemetry.ProviderErrorsTotal.WithLabelValues(providerKeys, "create_key").Inc()
		logger.Error().Err(err).Msg("failed to create api key")
		return nil, upstreamError("Failed to create API key", err)
	}

	if s.usagePlanID != "" {
		if err := s.keys.AttachToUsagePlan(ctx, s.usagePlanID, key.ID); err != nil && !errors.Is(err, keymgmt.ErrConflict) {
			telemetry.ProviderErrorsTotal.WithLabelValues(providerKeys, "attach_usage_plan").Inc()
			logger.Error().Err(err).Str("usage_plan_id", s.usagePlanID).Msg("failed to attach api key to usage plan")
			s.discardKey(ctx, logger, key.ID)
			return nil, upstreamError("Failed to attach API key to usage plan", err)
		}
	}

	grant := models.KeyGrant{
		ExternalKeyID: key.ID,
		KeyHash:       auth.HashKey(plaintext),
		CreatedAt:     s.now(),
	}
	if err := s.store.ActivateKey(ctx, app.ID, expectedKeyID, grant); err != nil {
		s.discardKey(ctx, logger, key.ID)
		switch {
		case errors.Is(err, store.ErrStaleKey):
			return nil, conflictError("API key changed concurrently", "Another request updated this app's API key. Retry to fetch the current key.")
		case errors.Is(err, store.ErrNotFound):
			return nil, notFoundError("App not found", "")
		default:
			return nil, upstreamError("Failed to save API key", err)
		}
	}
	app.Apply(grant)

	telemetry.APIKeysProvisionedTotal.WithLabelValues("created").Inc()
	logger.Info().Str("key_id", key.ID).Msg("api key created")
	return &KeyResult{App: app, ExternalKeyID: key.ID, APIKey: plaintext, Created: true}, nil
}

// discardKey deletes a provider key that never reached the app record.
func (s *AppService) discardKey(ctx context.Context, logger zerolog.Logger, keyID string) {
	if err := s.keys.DeleteKey(ctx, keyID); err != nil && !errors.Is(err, keymgmt.ErrKeyNotFound) {
		telemetry.ProviderErrorsTotal.WithLabelValues(providerKeys, "delete_key").Inc()
		logger.Error().Err(err).Str("key_id", keyID).Msg("failed to delete orphaned api key")
	}
}

// RevokeKey deletes the app's key at the provider, then clears the key fields
// and marks the app inactive. If the provider delete fails the record is left
// untouched so the call can be retried.
func (s *AppService) RevokeKey(ctx context.Context, id string) (*models.App, error) {
	app, err := s.getApp(ctx, id)
	if err != nil {
		return nil, err
	}
	if !app.HasKey() {
		return nil, notFoundError("No API key found", "This app does not have an API key to delete")
	}
	logger := s.log.With().Str("app_id", app.ID).Str("app_name", app.AppName).Logger()

	if err := s.keys.DeleteKey(ctx, app.KeyID()); err != nil {
		if !errors.Is(err, keymgmt.ErrKeyNotFound) {
			telemetry.ProviderErrorsTotal.WithLabelValues(providerKeys, "delete_key").Inc()
			logger.Error().Err(err).Msg("failed to delete api key")
			return nil, upstreamError("Failed to delete API key from API Gateway", err)
		}
		logger.Warn().Str("key_id", app.KeyID()).Msg("api key already absent at provider")
	}

	now := s.now()
	if err := s.store.ClearKey(ctx, app.ID, now); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFoundError("App not found", "")
		}
		return nil, upstreamError("Failed to update app", err)
	}
	app.Revoke(now)

	telemetry.APIKeysRevokedTotal.Inc()
	logger.Info().Msg("api key revoked")
	return app, nil
}

// Authenticate resolves a presented x-api-key value to its app.
func (s *AppService) Authenticate(ctx context.Context, presented string) (*models.App, error) {
	key, err := auth.ExtractKey(presented)
	if err != nil {
		return nil, &Error{Kind: KindUnauthorized, Code: "Missing API key", Err: err}
	}
	app, err := s.store.FindByKeyHash(ctx, auth.HashKey(key))
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		return nil, &Error{Kind: KindForbidden, Code: "Invalid API key"}
	default:
		return nil, upstreamError("Failed to validate API key", err)
	}
	// The stored hash must match exactly, whatever the backend's lookup rules.
	if app.APIKeyHash == nil || !auth.MatchesHash(key, *app.APIKeyHash) || app.Status != models.StatusActive {
		return nil, &Error{Kind: KindForbidden, Code: "Invalid API key"}
	}
	return app, nil
}

// Send delivers an email from the app's verified sender address and returns
// the provider message id.
func (s *AppService) Send(ctx context.Context, app *models.App, req SendRequest) (string, error) {
	req.Recipient = strings.TrimSpace(req.Recipient)

	if err := s.validate.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && fieldErrs[0].Tag() == "email" {
			return "", validationError("Invalid recipient", fmt.Sprintf("%s is not a valid email address.", req.Recipient))
		}
		return "", validationError("Missing recipient, subject or message", "")
	}

	messageID, err := s.email.Send(ctx, email.Message{
		From:    app.SenderEmail,
		To:      req.Recipient,
		Subject: req.Subject,
		Body:    req.Message,
	})
	if err != nil {
		telemetry.EmailsSentTotal.WithLabelValues("error").Inc()
		telemetry.ProviderErrorsTotal.WithLabelValues(providerEmail, "send").Inc()
		s.log.Error().Err(err).Str("app_id", app.ID).Str("app_name", app.AppName).Msg("failed to send email")
		return "", upstreamError("Failed to send email", err)
	}

	telemetry.EmailsSentTotal.WithLabelValues("success").Inc()
	s.log.Info().Str("app_id", app.ID).Str("message_id", messageID).Msg("email sent")
	return messageID, nil
}

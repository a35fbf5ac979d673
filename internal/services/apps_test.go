package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mickBoat00/email-service/internal/auth"
	"github.com/mickBoat00/email-service/internal/config"
	"github.com/mickBoat00/email-service/internal/db/models"
	"github.com/mickBoat00/email-service/internal/keymgmt"
	"github.com/mickBoat00/email-service/internal/store"
	"github.com/mickBoat00/email-service/internal/store/memory"
	"github.com/mickBoat00/email-service/internal/telemetry"
	"github.com/mickBoat00/email-service/internal/telemetry/telemetrytest"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	svc   *AppService
	store store.AppStore
	email *fakeEmail
	keys  *fakeKeys
}

func newHarness(t *testing.T, keysCfg config.KeysConfig, verified ...string) *harness {
	t.Helper()
	h := &harness{
		store: memory.New(),
		email: newFakeEmail(verified...),
		keys:  newFakeKeys(),
	}
	h.svc = NewAppService(h.store, h.email, h.keys, keysCfg)
	h.svc.now = func() time.Time { return fixedNow }
	return h
}

func (h *harness) register(t *testing.T, name, addr string) *models.App {
	t.Helper()
	app, err := h.svc.Register(context.Background(), RegisterRequest{AppName: name, SenderEmail: addr})
	require.NoError(t, err)
	return app
}

func requireKind(t *testing.T, err error, kind Kind, code string) {
	t.Helper()
	require.Error(t, err)
	var svcErr *Error
	require.True(t, errors.As(err, &svcErr), "expected *services.Error, got %T", err)
	assert.Equal(t, kind, svcErr.Kind)
	if code != "" {
		assert.Equal(t, code, svcErr.Code)
	}
}

// ---------------------------------------------------------------------------
// Register
// ---------------------------------------------------------------------------

func TestRegister(t *testing.T) {
	h := newHarness(t, config.KeysConfig{})
	before := telemetrytest.PlainCounterValue(telemetry.AppsRegisteredTotal)

	app := h.register(t, "  billing ", "a@x.com")

	assert.NotEmpty(t, app.ID)
	assert.Equal(t, "billing", app.AppName)
	assert.Equal(t, models.StatusPendingVerification, app.Status)
	assert.False(t, app.HasKey())
	assert.Equal(t, fixedNow, app.CreatedAt)
	assert.Equal(t, []string{"a@x.com"}, h.email.verifyCalls)
	assert.Equal(t, before+1, telemetrytest.PlainCounterValue(telemetry.AppsRegisteredTotal))

	stored, err := h.store.FindByID(context.Background(), app.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", stored.SenderEmail)
}

func TestRegister_Validation(t *testing.T) {
	tests := []struct {
		name string
		req  RegisterRequest
		code string
	}{
		{"missing name", RegisterRequest{SenderEmail: "a@x.com"}, "Missing required fields: appName and senderEmail"},
		{"missing email", RegisterRequest{AppName: "billing"}, "Missing required fields: appName and senderEmail"},
		{"blank fields", RegisterRequest{AppName: "  ", SenderEmail: " "}, "Missing required fields: appName and senderEmail"},
		{"invalid email", RegisterRequest{AppName: "billing", SenderEmail: "not-an-email"}, "Invalid sender email"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, config.KeysConfig{})
			_, err := h.svc.Register(context.Background(), tt.req)
			requireKind(t, err, KindValidation, tt.code)
			assert.Empty(t, h.email.verifyCalls)
		})
	}
}

func TestRegister_Duplicates(t *testing.T) {
	h := newHarness(t, config.KeysConfig{})
	h.register(t, "billing", "a@x.com")

	_, err := h.svc.Register(context.Background(), RegisterRequest{AppName: "billing", SenderEmail: "b@x.com"})
	requireKind(t, err, KindConflict, "App name already exists")
	assert.Contains(t, err.(*Error).Message, "'billing'")

	_, err = h.svc.Register(context.Background(), RegisterRequest{AppName: "other", SenderEmail: "a@x.com"})
	requireKind(t, err, KindConflict, "Email already registered")
	assert.Equal(t, "a@x.com is already linked to an existing app.", err.(*Error).Message)
}

func TestRegister_VerificationFailureIsNotFatal(t *testing.T) {
	h := newHarness(t, config.KeysConfig{})
	h.email.verifyErr = errors.New("ses unavailable")

	app := h.register(t, "billing", "a@x.com")
	assert.Equal(t, models.StatusPendingVerification, app.Status)
}

func TestRegister_InsertConstraintViolation(t *testing.T) {
	tests := []struct {
		name    string
		field   string
		code    string
		message string
	}{
		{"sender email", store.FieldSenderEmail, "Email already registered", "a@x.com is already linked to an existing app."},
		{"app name", store.FieldAppName, "App name already exists", "The app 'billing' is already registered."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, config.KeysConfig{})
			h.svc.store = insertFailStore{
				AppStore:  h.store,
				insertErr: fmt.Errorf("insert app: %w", &store.DuplicateError{Field: tt.field}),
			}
			before := telemetrytest.PlainCounterValue(telemetry.AppsRegisteredTotal)

			_, err := h.svc.Register(context.Background(), RegisterRequest{AppName: "billing", SenderEmail: "a@x.com"})
			requireKind(t, err, KindConflict, tt.code)
			assert.Equal(t, tt.message, err.(*Error).Message)
			assert.Equal(t, before, telemetrytest.PlainCounterValue(telemetry.AppsRegisteredTotal))

			apps, err := h.store.List(context.Background())
			require.NoError(t, err)
			assert.Empty(t, apps)
		})
	}
}

func TestRegister_InsertFailure(t *testing.T) {
	h := newHarness(t, config.KeysConfig{})
	h.svc.store = insertFailStore{AppStore: h.store, insertErr: errors.New("connection reset")}

	_, err := h.svc.Register(context.Background(), RegisterRequest{AppName: "billing", SenderEmail: "a@x.com"})
	requireKind(t, err, KindUpstream, "Failed to register app")
}

// ---------------------------------------------------------------------------
// ProvisionKey
// ---------------------------------------------------------------------------

func TestProvisionKey_RequiresVerifiedSender(t *testing.T) {
	h := newHarness(t, config.KeysConfig{})
	app := h.register(t, "billing", "a@x.com")

	_, err := h.svc.ProvisionKey(context.Background(), app.ID)
	requireKind(t, err, KindValidation, "Email not verified")
	assert.Equal(t, "Please verify a@x.com before creating API key.", err.(*Error).Message)
	assert.Zero(t, h.keys.createCalls)
}

func TestProvisionKey_VerificationCheckFailure(t *testing.T) {
	h := newHarness(t, config.KeysConfig{}, "a@x.com")
	app := h.register(t, "billing", "a@x.com")
	h.email.isVerifiedErr = errors.New("throttled")

	_, err := h.svc.ProvisionKey(context.Background(), app.ID)
	requireKind(t, err, KindUpstream, "")
	assert.Zero(t, h.keys.createCalls)
}

func TestProvisionKey_Created(t *testing.T) {
	h := newHarness(t, config.KeysConfig{UsagePlanID: "plan-1"}, "a@x.com")
	app := h.register(t, "billing", "a@x.com")

	res, err := h.svc.ProvisionKey(context.Background(), app.ID)
	require.NoError(t, err)

	assert.True(t, res.Created)
	assert.Len(t, res.APIKey, 43)
	assert.Equal(t, "gw-1", res.ExternalKeyID)
	assert.Equal(t, models.StatusActive, res.App.Status)
	assert.Equal(t, []string{"plan-1/gw-1"}, h.keys.attached)
	assert.Equal(t, "billing-key", h.keys.keys["gw-1"].Name)

	stored, err := h.store.FindByID(context.Background(), app.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, stored.Status)
	require.NotNil(t, stored.APIKeyHash)
	assert.Equal(t, auth.HashKey(res.APIKey), *stored.APIKeyHash)
	assert.NotEqual(t, res.APIKey, *stored.APIKeyHash)
	assert.Equal(t, "gw-1", stored.KeyID())
	require.NotNil(t, stored.KeyCreatedAt)
	assert.Equal(t, fixedNow, *stored.KeyCreatedAt)
}

func TestProvisionKey_ExistingKeyIsIdempotent(t *testing.T) {
	h := newHarness(t, config.KeysConfig{}, "a@x.com")
	app := h.register(t, "billing", "a@x.com")

	first, err := h.svc.ProvisionKey(context.Background(), app.ID)
	require.NoError(t, err)

	second, err := h.svc.ProvisionKey(context.Background(), app.ID)
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.ExternalKeyID, second.ExternalKeyID)
	assert.Empty(t, second.APIKey)
	assert.Equal(t, models.StatusActive, second.App.Status)
	assert.Equal(t, 1, h.keys.createCalls)
}

func TestProvisionKey_RevealExisting(t *testing.T) {
	h := newHarness(t, config.KeysConfig{RevealExisting: true}, "a@x.com")
	app := h.register(t, "billing", "a@x.com")

	first, err := h.svc.ProvisionKey(context.Background(), app.ID)
	require.NoError(t, err)

	second, err := h.svc.ProvisionKey(context.Background(), app.ID)
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.APIKey, second.APIKey)
}

func TestProvisionKey_StaleProviderKeyIsReplaced(t *testing.T) {
	h := newHarness(t, config.KeysConfig{}, "a@x.com")
	app := h.register(t, "billing", "a@x.com")

	first, err := h.svc.ProvisionKey(context.Background(), app.ID)
	require.NoError(t, err)
	delete(h.keys.keys, first.ExternalKeyID)

	second, err := h.svc.ProvisionKey(context.Background(), app.ID)
	require.NoError(t, err)
	assert.True(t, second.Created)
	assert.NotEqual(t, first.ExternalKeyID, second.ExternalKeyID)
	assert.NotEqual(t, first.APIKey, second.APIKey)
}

func TestProvisionKey_LookupFailure(t *testing.T) {
	h := newHarness(t, config.KeysConfig{}, "a@x.com")
	app := h.register(t, "billing", "a@x.com")
	_, err := h.svc.ProvisionKey(context.Background(), app.ID)
	require.NoError(t, err)

	h.keys.getFn = func(string) (*keymgmt.Key, error) { return nil, errors.New("access denied") }
	_, err = h.svc.ProvisionKey(context.Background(), app.ID)
	requireKind(t, err, KindUpstream, "Failed to look up existing API key")
	assert.Equal(t, 1, h.keys.createCalls)
}

func TestProvisionKey_UsagePlanConflictTolerated(t *testing.T) {
	h := newHarness(t, config.KeysConfig{UsagePlanID: "plan-1"}, "a@x.com")
	h.keys.attachFn = func(string, string) error { return keymgmt.ErrConflict }
	app := h.register(t, "billing", "a@x.com")

	res, err := h.svc.ProvisionKey(context.Background(), app.ID)
	require.NoError(t, err)
	assert.True(t, res.Created)
}

func TestProvisionKey_UsagePlanFailureDiscardsKey(t *testing.T) {
	h := newHarness(t, config.KeysConfig{UsagePlanID: "plan-1"}, "a@x.com")
	h.keys.attachFn = func(string, string) error { return errors.New("plan missing") }
	app := h.register(t, "billing", "a@x.com")

	_, err := h.svc.ProvisionKey(context.Background(), app.ID)
	requireKind(t, err, KindUpstream, "Failed to attach API key to usage plan")
	assert.Zero(t, h.keys.count())

	stored, err := h.store.FindByID(context.Background(), app.ID)
	require.NoError(t, err)
	assert.False(t, stored.HasKey())
	assert.Equal(t, models.StatusPendingVerification, stored.Status)
}

func TestProvisionKey_LostRaceDiscardsKey(t *testing.T) {
	h := newHarness(t, config.KeysConfig{}, "a@x.com")
	app := h.register(t, "billing", "a@x.com")
	h.svc.store = racingStore{AppStore: h.store}

	_, err := h.svc.ProvisionKey(context.Background(), app.ID)
	requireKind(t, err, KindConflict, "")
	assert.Equal(t, 1, h.keys.createCalls)
	assert.Equal(t, []string{"gw-1"}, h.keys.deleted)
	assert.Zero(t, h.keys.count())
}

func TestProvisionKey_BadIDs(t *testing.T) {
	h := newHarness(t, config.KeysConfig{}, "a@x.com")

	_, err := h.svc.ProvisionKey(context.Background(), "")
	requireKind(t, err, KindValidation, "Missing required field: id")

	_, err = h.svc.ProvisionKey(context.Background(), "not-a-uuid")
	requireKind(t, err, KindValidation, "Invalid app ID format")

	_, err = h.svc.ProvisionKey(context.Background(), "8d0b8f4e-5d55-4b7e-9a57-1d2c1f0e8a11")
	requireKind(t, err, KindNotFound, "App not found")
}

// ---------------------------------------------------------------------------
// RevokeKey
// ---------------------------------------------------------------------------

func TestRevokeKey_NoKey(t *testing.T) {
	h := newHarness(t, config.KeysConfig{}, "a@x.com")
	app := h.register(t, "billing", "a@x.com")

	_, err := h.svc.RevokeKey(context.Background(), app.ID)
	requireKind(t, err, KindNotFound, "No API key found")
}

func TestRevokeKey(t *testing.T) {
	h := newHarness(t, config.KeysConfig{}, "a@x.com")
	app := h.register(t, "billing", "a@x.com")
	res, err := h.svc.ProvisionKey(context.Background(), app.ID)
	require.NoError(t, err)

	revoked, err := h.svc.RevokeKey(context.Background(), app.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInactive, revoked.Status)
	assert.Equal(t, []string{res.ExternalKeyID}, h.keys.deleted)

	stored, err := h.store.FindByID(context.Background(), app.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInactive, stored.Status)
	assert.Nil(t, stored.APIKeyHash)
	assert.Nil(t, stored.ExternalKeyID)
	assert.Nil(t, stored.KeyCreatedAt)

	_, err = h.svc.Authenticate(context.Background(), res.APIKey)
	requireKind(t, err, KindForbidden, "Invalid API key")
}

func TestRevokeKey_ProviderNotFoundTolerated(t *testing.T) {
	h := newHarness(t, config.KeysConfig{}, "a@x.com")
	app := h.register(t, "billing", "a@x.com")
	res, err := h.svc.ProvisionKey(context.Background(), app.ID)
	require.NoError(t, err)
	delete(h.keys.keys, res.ExternalKeyID)

	revoked, err := h.svc.RevokeKey(context.Background(), app.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInactive, revoked.Status)
}

func TestRevokeKey_ProviderFailureLeavesRecord(t *testing.T) {
	h := newHarness(t, config.KeysConfig{}, "a@x.com")
	app := h.register(t, "billing", "a@x.com")
	res, err := h.svc.ProvisionKey(context.Background(), app.ID)
	require.NoError(t, err)
	h.keys.deleteFn = func(string) error { return errors.New("throttled") }

	_, err = h.svc.RevokeKey(context.Background(), app.ID)
	requireKind(t, err, KindUpstream, "Failed to delete API key from API Gateway")
	assert.Equal(t, "throttled", err.(*Error).Details)

	stored, err := h.store.FindByID(context.Background(), app.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, stored.Status)
	assert.Equal(t, res.ExternalKeyID, stored.KeyID())
}

func TestRevokeThenReprovision(t *testing.T) {
	h := newHarness(t, config.KeysConfig{}, "a@x.com")
	app := h.register(t, "billing", "a@x.com")
	_, err := h.svc.ProvisionKey(context.Background(), app.ID)
	require.NoError(t, err)
	_, err = h.svc.RevokeKey(context.Background(), app.ID)
	require.NoError(t, err)

	res, err := h.svc.ProvisionKey(context.Background(), app.ID)
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, models.StatusActive, res.App.Status)
}

// ---------------------------------------------------------------------------
// Authenticate / Send
// ---------------------------------------------------------------------------

func TestAuthenticate(t *testing.T) {
	h := newHarness(t, config.KeysConfig{}, "a@x.com")
	app := h.register(t, "billing", "a@x.com")
	res, err := h.svc.ProvisionKey(context.Background(), app.ID)
	require.NoError(t, err)

	_, err = h.svc.Authenticate(context.Background(), "   ")
	requireKind(t, err, KindUnauthorized, "Missing API key")

	_, err = h.svc.Authenticate(context.Background(), "wrong-key")
	requireKind(t, err, KindForbidden, "Invalid API key")

	got, err := h.svc.Authenticate(context.Background(), " "+res.APIKey+" ")
	require.NoError(t, err)
	assert.Equal(t, app.ID, got.ID)
}

func TestAuthenticate_RequiresExactHashMatch(t *testing.T) {
	key, err := auth.GenerateKey()
	require.NoError(t, err)
	other := auth.HashKey(key + "x")
	match := auth.HashKey(key)

	tests := []struct {
		name string
		app  *models.App
		ok   bool
	}{
		{"matching hash", &models.App{ID: "a", Status: models.StatusActive, APIKeyHash: &match}, true},
		{"different hash", &models.App{ID: "a", Status: models.StatusActive, APIKeyHash: &other}, false},
		{"no stored hash", &models.App{ID: "a", Status: models.StatusActive}, false},
		{"inactive app", &models.App{ID: "a", Status: models.StatusInactive, APIKeyHash: &match}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, config.KeysConfig{})
			h.svc.store = lookupStore{AppStore: h.store, app: tt.app}

			got, err := h.svc.Authenticate(context.Background(), key)
			if tt.ok {
				require.NoError(t, err)
				assert.Equal(t, "a", got.ID)
				return
			}
			requireKind(t, err, KindForbidden, "Invalid API key")
		})
	}
}

func TestSend(t *testing.T) {
	h := newHarness(t, config.KeysConfig{}, "a@x.com")
	app := h.register(t, "billing", "a@x.com")
	res, err := h.svc.ProvisionKey(context.Background(), app.ID)
	require.NoError(t, err)
	sender, err := h.svc.Authenticate(context.Background(), res.APIKey)
	require.NoError(t, err)

	before := telemetrytest.CounterValue(telemetry.EmailsSentTotal, map[string]string{"result": "success"})

	id, err := h.svc.Send(context.Background(), sender, SendRequest{Recipient: "b@y.com", Subject: "Hi", Message: "Hello"})
	require.NoError(t, err)
	assert.Equal(t, "msg-1", id)
	require.Len(t, h.email.sent, 1)
	assert.Equal(t, "a@x.com", h.email.sent[0].From)
	assert.Equal(t, "b@y.com", h.email.sent[0].To)
	assert.Equal(t, "Hello", h.email.sent[0].Body)
	assert.Equal(t, before+1, telemetrytest.CounterValue(telemetry.EmailsSentTotal, map[string]string{"result": "success"}))
}

func TestSend_Validation(t *testing.T) {
	h := newHarness(t, config.KeysConfig{})
	app := &models.App{ID: "x", SenderEmail: "a@x.com", Status: models.StatusActive}

	_, err := h.svc.Send(context.Background(), app, SendRequest{Recipient: "b@y.com", Subject: "Hi"})
	requireKind(t, err, KindValidation, "Missing recipient, subject or message")

	_, err = h.svc.Send(context.Background(), app, SendRequest{Recipient: "nope", Subject: "Hi", Message: "x"})
	requireKind(t, err, KindValidation, "Invalid recipient")
	assert.Empty(t, h.email.sent)
}

func TestSend_ProviderFailure(t *testing.T) {
	h := newHarness(t, config.KeysConfig{})
	h.email.sendErr = errors.New("MessageRejected")
	app := &models.App{ID: "x", SenderEmail: "a@x.com", Status: models.StatusActive}

	_, err := h.svc.Send(context.Background(), app, SendRequest{Recipient: "b@y.com", Subject: "Hi", Message: "x"})
	requireKind(t, err, KindUpstream, "Failed to send email")
}

// ---------------------------------------------------------------------------
// List / Delete
// ---------------------------------------------------------------------------

func TestList(t *testing.T) {
	h := newHarness(t, config.KeysConfig{})
	h.register(t, "billing", "a@x.com")
	h.register(t, "alerts", "b@x.com")

	apps, err := h.svc.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, apps, 2)
}

func TestDelete(t *testing.T) {
	h := newHarness(t, config.KeysConfig{}, "a@x.com")
	app := h.register(t, "billing", "a@x.com")
	res, err := h.svc.ProvisionKey(context.Background(), app.ID)
	require.NoError(t, err)

	deleted, err := h.svc.Delete(context.Background(), app.ID)
	require.NoError(t, err)
	assert.Equal(t, "billing", deleted.AppName)
	assert.Equal(t, []string{res.ExternalKeyID}, h.keys.deleted)
	assert.Equal(t, []string{"a@x.com"}, h.email.deletedIdentities)

	_, err = h.store.FindByID(context.Background(), app.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = h.svc.Delete(context.Background(), app.ID)
	requireKind(t, err, KindNotFound, "App not found")
}

func TestDelete_IdentityFailureKeepsRecord(t *testing.T) {
	h := newHarness(t, config.KeysConfig{})
	app := h.register(t, "billing", "a@x.com")
	h.email.deleteErr = errors.New("boom")

	_, err := h.svc.Delete(context.Background(), app.ID)
	requireKind(t, err, KindUpstream, "Failed to delete app")

	_, err = h.store.FindByID(context.Background(), app.ID)
	assert.NoError(t, err)
}

// ---------------------------------------------------------------------------
// Error
// ---------------------------------------------------------------------------

func TestErrorIs(t *testing.T) {
	err := notFoundError("App not found", "")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrConflict)
	assert.ErrorIs(t, err, &Error{Kind: KindNotFound, Code: "App not found"})
	assert.NotErrorIs(t, err, &Error{Kind: KindNotFound, Code: "No API key found"})

	cause := errors.New("db down")
	wrapped := upstreamError("Failed to list apps", cause)
	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, KindUpstream, KindOf(wrapped))
	assert.Equal(t, KindUpstream, KindOf(cause))
	assert.Equal(t, "Failed to list apps: db down", wrapped.Error())
}

// Package store defines the AppStore interface and the common errors for all
// app record backends.
//
// New backends implement AppStore and register with the factory from an init()
// function in their own package:
//
//	func init() {
//	    store.Register("mybackend", func(ctx context.Context, cfg *config.Config) (store.AppStore, error) {
//	        return New(ctx, cfg)
//	    })
//	}
//
// cmd/server blank-imports each backend to trigger init().
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mickBoat00/email-service/internal/db/models"
)

// AppStore persists app records.
//
// Uniqueness of AppName, SenderEmail and APIKeyHash is enforced by the backend
// itself; a violating write returns a *DuplicateError.
type AppStore interface {
	// Insert stores a new app and assigns its ID.
	Insert(ctx context.Context, app *models.App) error

	// FindByID returns ErrInvalidID for an id the backend cannot parse and
	// ErrNotFound when no record matches.
	FindByID(ctx context.Context, id string) (*models.App, error)
	FindByName(ctx context.Context, name string) (*models.App, error)
	FindBySenderEmail(ctx context.Context, email string) (*models.App, error)
	FindByKeyHash(ctx context.Context, hash string) (*models.App, error)

	// List returns all apps ordered by creation time.
	List(ctx context.Context) ([]*models.App, error)

	// ActivateKey writes the key grant and sets status active, but only if the
	// app's current external key id equals expectedKeyID ("" meaning none).
	// Returns ErrStaleKey when another writer got there first.
	ActivateKey(ctx context.Context, id, expectedKeyID string, grant models.KeyGrant) error

	// ClearKey removes the key fields and sets status inactive.
	ClearKey(ctx context.Context, id string, now time.Time) error

	Delete(ctx context.Context, id string) error

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

var (
	ErrNotFound  = errors.New("app not found")
	ErrInvalidID = errors.New("invalid app id")
	ErrStaleKey  = errors.New("app key changed concurrently")
)

// Unique fields
const (
	FieldAppName     = "appName"
	FieldSenderEmail = "senderEmail"
	FieldAPIKeyHash  = "apiKeyHash"
)

// DuplicateError reports a write rejected by a uniqueness constraint.
type DuplicateError struct {
	Field string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate value for %s", e.Field)
}

// IsDuplicate reports whether err is a *DuplicateError and returns the field.
func IsDuplicate(err error) (string, bool) {
	var dup *DuplicateError
	if errors.As(err, &dup) {
		return dup.Field, true
	}
	return "", false
}

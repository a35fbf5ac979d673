// Package models defines the record types persisted by the app stores.
// Models are pure data types; business rules live in the services layer and
// query logic lives in the store backends.
package models

import "time"

// AppStatus is the lifecycle state of an app
type AppStatus string

const (
	// StatusPendingVerification is the initial state; the sender email has not been verified
	StatusPendingVerification AppStatus = "pending_verification"
	// StatusActive means a key has been issued and is live
	StatusActive AppStatus = "active"
	// StatusInactive means the key was revoked
	StatusInactive AppStatus = "inactive"
)

// App is a registered application allowed to send email from SenderEmail.
//
// APIKeyHash and ExternalKeyID are either both set (status active) or both nil.
// The plaintext key is never stored.
type App struct {
	ID            string     `db:"id"`
	AppName       string     `db:"app_name"`
	SenderEmail   string     `db:"sender_email"`
	Status        AppStatus  `db:"status"`
	APIKeyHash    *string    `db:"api_key_hash"`
	ExternalKeyID *string    `db:"external_key_id"`
	KeyCreatedAt  *time.Time `db:"key_created_at"`
	CreatedAt     time.Time  `db:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"`
}

// HasKey reports whether the app currently holds an issued key.
func (a *App) HasKey() bool {
	return a.ExternalKeyID != nil && *a.ExternalKeyID != ""
}

// KeyID returns the external key id or "" when none is held.
func (a *App) KeyID() string {
	if a.ExternalKeyID == nil {
		return ""
	}
	return *a.ExternalKeyID
}

// KeyGrant is the set of fields written when a key is issued.
type KeyGrant struct {
	ExternalKeyID string
	KeyHash       string
	CreatedAt     time.Time
}

// Apply sets the key fields and marks the app active.
func (a *App) Apply(g KeyGrant) {
	id, hash, at := g.ExternalKeyID, g.KeyHash, g.CreatedAt
	a.ExternalKeyID = &id
	a.APIKeyHash = &hash
	a.KeyCreatedAt = &at
	a.Status = StatusActive
	a.UpdatedAt = g.CreatedAt
}

// Revoke clears the key fields and marks the app inactive.
func (a *App) Revoke(now time.Time) {
	a.ExternalKeyID = nil
	a.APIKeyHash = nil
	a.KeyCreatedAt = nil
	a.Status = StatusInactive
	a.UpdatedAt = now
}

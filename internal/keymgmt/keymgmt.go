// Package keymgmt defines the key-management provider capability: registering
// API key material with an external gateway, looking it up, deleting it and
// attaching it to a usage plan.
package keymgmt

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrKeyNotFound is returned when the provider has no key with the given id.
	ErrKeyNotFound = errors.New("key not found at provider")
	// ErrConflict is returned when the provider reports the resource already exists.
	ErrConflict = errors.New("key already exists at provider")
)

// Key is a provider-side key record. Value is set only when the provider
// returns the key material.
type Key struct {
	ID        string
	Name      string
	Value     string
	Enabled   bool
	CreatedAt time.Time
}

// Provider is implemented by key-management backends.
type Provider interface {
	CreateKey(ctx context.Context, name, description, value string) (*Key, error)
	GetKey(ctx context.Context, id string) (*Key, error)
	DeleteKey(ctx context.Context, id string) error
	AttachToUsagePlan(ctx context.Context, planID, keyID string) error
}

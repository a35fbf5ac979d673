// Package memory implements an in-process AppStore. It enforces the same
// uniqueness rules as the persistent backends and is used for local
// development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mickBoat00/email-service/internal/config"
	"github.com/mickBoat00/email-service/internal/db/models"
	"github.com/mickBoat00/email-service/internal/store"
)

func init() {
	store.Register(config.BackendMemory, func(_ context.Context, _ *config.Config) (store.AppStore, error) {
		return New(), nil
	})
}

// Store is a mutex-guarded map of apps keyed by id.
type Store struct {
	mu   sync.RWMutex
	apps map[string]*models.App
}

// New creates an empty Store
func New() *Store {
	return &Store{apps: make(map[string]*models.App)}
}

func clone(a *models.App) *models.App {
	c := *a
	if a.APIKeyHash != nil {
		h := *a.APIKeyHash
		c.APIKeyHash = &h
	}
	if a.ExternalKeyID != nil {
		id := *a.ExternalKeyID
		c.ExternalKeyID = &id
	}
	if a.KeyCreatedAt != nil {
		t := *a.KeyCreatedAt
		c.KeyCreatedAt = &t
	}
	return &c
}

// conflict returns the unique field app would violate, ignoring the record with skipID.
func (s *Store) conflict(app *models.App, skipID string) string {
	for id, existing := range s.apps {
		if id == skipID {
			continue
		}
		switch {
		case existing.AppName == app.AppName:
			return store.FieldAppName
		case existing.SenderEmail == app.SenderEmail:
			return store.FieldSenderEmail
		case app.APIKeyHash != nil && existing.APIKeyHash != nil && *existing.APIKeyHash == *app.APIKeyHash:
			return store.FieldAPIKeyHash
		}
	}
	return ""
}

func (s *Store) Insert(_ context.Context, app *models.App) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if field := s.conflict(app, ""); field != "" {
		return &store.DuplicateError{Field: field}
	}
	app.ID = uuid.New().String()
	s.apps[app.ID] = clone(app)
	return nil
}

func (s *Store) FindByID(_ context.Context, id string) (*models.App, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, store.ErrInvalidID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	app, ok := s.apps[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return clone(app), nil
}

func (s *Store) findBy(match func(*models.App) bool) (*models.App, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, app := range s.apps {
		if match(app) {
			return clone(app), nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) FindByName(_ context.Context, name string) (*models.App, error) {
	return s.findBy(func(a *models.App) bool { return a.AppName == name })
}

func (s *Store) FindBySenderEmail(_ context.Context, email string) (*models.App, error) {
	return s.findBy(func(a *models.App) bool { return a.SenderEmail == email })
}

func (s *Store) FindByKeyHash(_ context.Context, hash string) (*models.App, error) {
	if hash == "" {
		return nil, store.ErrNotFound
	}
	return s.findBy(func(a *models.App) bool { return a.APIKeyHash != nil && *a.APIKeyHash == hash })
}

func (s *Store) List(_ context.Context) ([]*models.App, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	apps := make([]*models.App, 0, len(s.apps))
	for _, app := range s.apps {
		apps = append(apps, clone(app))
	}
	sort.Slice(apps, func(i, j int) bool { return apps[i].CreatedAt.Before(apps[j].CreatedAt) })
	return apps, nil
}

func (s *Store) ActivateKey(_ context.Context, id, expectedKeyID string, grant models.KeyGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	app, ok := s.apps[id]
	if !ok {
		return store.ErrNotFound
	}
	if app.KeyID() != expectedKeyID {
		return store.ErrStaleKey
	}
	next := clone(app)
	next.Apply(grant)
	if field := s.conflict(next, id); field == store.FieldAPIKeyHash {
		return &store.DuplicateError{Field: field}
	}
	s.apps[id] = next
	return nil
}

func (s *Store) ClearKey(_ context.Context, id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	app, ok := s.apps[id]
	if !ok {
		return store.ErrNotFound
	}
	app.Revoke(now)
	return nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.apps[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.apps, id)
	return nil
}

func (s *Store) Ping(context.Context) error  { return nil }
func (s *Store) Close(context.Context) error { return nil }

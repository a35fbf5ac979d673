package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/mickBoat00/email-service/internal/db/models"
	"github.com/mickBoat00/email-service/internal/email"
	"github.com/mickBoat00/email-service/internal/keymgmt"
	"github.com/mickBoat00/email-service/internal/store"
)

// fakeEmail records calls; verified addresses are listed in verified.
type fakeEmail struct {
	mu       sync.Mutex
	verified map[string]bool

	verifyErr     error
	isVerifiedErr error
	deleteErr     error
	sendErr       error

	verifyCalls       []string
	deletedIdentities []string
	sent              []email.Message
}

func newFakeEmail(verified ...string) *fakeEmail {
	f := &fakeEmail{verified: map[string]bool{}}
	for _, addr := range verified {
		f.verified[addr] = true
	}
	return f
}

func (f *fakeEmail) VerifyIdentity(_ context.Context, addr string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifyCalls = append(f.verifyCalls, addr)
	return f.verifyErr
}

func (f *fakeEmail) IsVerified(_ context.Context, addr string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.isVerifiedErr != nil {
		return false, f.isVerifiedErr
	}
	return f.verified[addr], nil
}

func (f *fakeEmail) DeleteIdentity(_ context.Context, addr string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deletedIdentities = append(f.deletedIdentities, addr)
	return nil
}

func (f *fakeEmail) Send(_ context.Context, msg email.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.sent = append(f.sent, msg)
	return fmt.Sprintf("msg-%d", len(f.sent)), nil
}

// fakeKeys is an in-memory key provider. The *Fn fields override the default
// behaviour of the matching method when set.
type fakeKeys struct {
	mu   sync.Mutex
	keys map[string]*keymgmt.Key
	seq  int

	getFn    func(id string) (*keymgmt.Key, error)
	deleteFn func(id string) error
	attachFn func(planID, keyID string) error

	createCalls int
	deleted     []string
	attached    []string
}

func newFakeKeys() *fakeKeys {
	return &fakeKeys{keys: map[string]*keymgmt.Key{}}
}

func (f *fakeKeys) CreateKey(_ context.Context, name, _ string, value string) (*keymgmt.Key, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	f.seq++
	key := &keymgmt.Key{ID: fmt.Sprintf("gw-%d", f.seq), Name: name, Value: value, Enabled: true}
	f.keys[key.ID] = key
	out := *key
	out.Value = ""
	return &out, nil
}

func (f *fakeKeys) GetKey(_ context.Context, id string) (*keymgmt.Key, error) {
	if f.getFn != nil {
		return f.getFn(id)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key, ok := f.keys[id]
	if !ok {
		return nil, keymgmt.ErrKeyNotFound
	}
	out := *key
	return &out, nil
}

func (f *fakeKeys) DeleteKey(_ context.Context, id string) error {
	if f.deleteFn != nil {
		return f.deleteFn(id)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.keys[id]; !ok {
		return keymgmt.ErrKeyNotFound
	}
	delete(f.keys, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeKeys) AttachToUsagePlan(_ context.Context, planID, keyID string) error {
	if f.attachFn != nil {
		return f.attachFn(planID, keyID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attached = append(f.attached, planID+"/"+keyID)
	return nil
}

func (f *fakeKeys) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.keys)
}

// racingStore loses every ActivateKey race.
type racingStore struct {
	store.AppStore
}

func (racingStore) ActivateKey(context.Context, string, string, models.KeyGrant) error {
	return store.ErrStaleKey
}

// insertFailStore passes the uniqueness pre-checks but fails every Insert
// with insertErr, as a store does when a concurrent registration wins.
type insertFailStore struct {
	store.AppStore
	insertErr error
}

func (s insertFailStore) Insert(context.Context, *models.App) error {
	return s.insertErr
}

// lookupStore answers every FindByKeyHash with app.
type lookupStore struct {
	store.AppStore
	app *models.App
}

func (s lookupStore) FindByKeyHash(context.Context, string) (*models.App, error) {
	return s.app, nil
}

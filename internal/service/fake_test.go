package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"sync"

	"github.com/sakif/login-gateway/internal/apperror"
	"github.com/sakif/login-gateway/internal/model"
	"github.com/sakif/login-gateway/internal/repository"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// fakeStore is an in-memory repository.UserRepository + repository.Transactor.
//
// Each transaction works on a private copy of the rows and is applied on
// commit, so a failed unit of work leaves nothing behind. UNIQUE rules are
// checked on every write inside the transaction and again at commit against
// whatever other transactions committed in the meantime.
type fakeStore struct {
	mu     sync.Mutex
	rows   map[string]model.User
	nextID int

	// set to a non-nil error to simulate a database failure
	findErr   error
	insertErr error
	updateErr error

	// the next conflicts writes fail with a UNIQUE violation on conflictField
	conflicts     int
	conflictField string

	txCount   int
	commits   int
	rollbacks int
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[string]model.User)}
}

// seed stores u directly, bypassing transactions and failure injection.
func (s *fakeStore) seed(u model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[u.ID] = u
}

func (s *fakeStore) snapshot() map[string]model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.rows)
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

func (s *fakeStore) WithinTx(ctx context.Context, fn func(users repository.UserRepository) error) error {
	s.mu.Lock()
	s.txCount++
	tx := &fakeTx{store: s, rows: maps.Clone(s.rows), dirty: make(map[string]bool)}
	s.mu.Unlock()

	defer func() {
		if p := recover(); p != nil {
			s.mu.Lock()
			s.rollbacks++
			s.mu.Unlock()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		s.mu.Lock()
		s.rollbacks++
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range tx.dirty {
		if field := conflictingField(s.rows, tx.rows[id]); field != "" {
			s.rollbacks++
			return apperror.Conflict("user", field)
		}
	}
	for id := range tx.dirty {
		s.rows[id] = tx.rows[id]
	}
	s.commits++
	return nil
}

func (s *fakeStore) reader() *fakeTx {
	return &fakeTx{store: s, rows: s.snapshot(), dirty: make(map[string]bool)}
}

func (s *fakeStore) FindByProviderID(ctx context.Context, p model.Provider, id string) (*model.User, error) {
	return s.reader().FindByProviderID(ctx, p, id)
}

func (s *fakeStore) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.reader().FindByEmail(ctx, email)
}

func (s *fakeStore) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return s.reader().GetUserByID(ctx, id)
}

func (s *fakeStore) Insert(ctx context.Context, u *model.User) error {
	return s.WithinTx(ctx, func(users repository.UserRepository) error { return users.Insert(ctx, u) })
}

func (s *fakeStore) Update(ctx context.Context, u *model.User) error {
	return s.WithinTx(ctx, func(users repository.UserRepository) error { return users.Update(ctx, u) })
}

// fakeTx is the transaction-bound view handed to WithinTx callbacks.
type fakeTx struct {
	store *fakeStore
	rows  map[string]model.User
	dirty map[string]bool
}

func (t *fakeTx) FindByProviderID(_ context.Context, p model.Provider, id string) (*model.User, error) {
	if t.store.findErr != nil {
		return nil, t.store.findErr
	}
	for _, u := range t.rows {
		if u.ProviderID(p) == id {
			found := u
			return &found, nil
		}
	}
	return nil, apperror.NotFound("user", id)
}

func (t *fakeTx) FindByEmail(_ context.Context, email string) (*model.User, error) {
	if t.store.findErr != nil {
		return nil, t.store.findErr
	}
	for _, u := range t.rows {
		if u.Email == email {
			found := u
			return &found, nil
		}
	}
	return nil, apperror.NotFound("user", email)
}

func (t *fakeTx) GetUserByID(_ context.Context, id string) (*model.User, error) {
	u, ok := t.rows[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	return &u, nil
}

func (t *fakeTx) Insert(_ context.Context, u *model.User) error {
	if t.store.insertErr != nil {
		return t.store.insertErr
	}
	if err := t.injectedConflict(); err != nil {
		return err
	}
	if u.ID == "" {
		t.store.mu.Lock()
		t.store.nextID++
		u.ID = fmt.Sprintf("user-%d", t.store.nextID)
		t.store.mu.Unlock()
	}
	if field := conflictingField(t.rows, *u); field != "" {
		return apperror.Conflict("user", field)
	}
	t.rows[u.ID] = *u
	t.dirty[u.ID] = true
	return nil
}

func (t *fakeTx) Update(_ context.Context, u *model.User) error {
	if t.store.updateErr != nil {
		return t.store.updateErr
	}
	if err := t.injectedConflict(); err != nil {
		return err
	}
	existing, ok := t.rows[u.ID]
	if !ok {
		return apperror.NotFound("user", u.ID)
	}
	if field := conflictingField(t.rows, *u); field != "" {
		return apperror.Conflict("user", field)
	}
	updated := *u
	updated.CreatedAt = existing.CreatedAt
	t.rows[u.ID] = updated
	t.dirty[u.ID] = true
	return nil
}

func (t *fakeTx) injectedConflict() error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if t.store.conflicts == 0 {
		return nil
	}
	t.store.conflicts--
	return apperror.Conflict("user", t.store.conflictField)
}

// conflictingField reports which UNIQUE column u would violate against the
// other rows, or "" if none.
func conflictingField(rows map[string]model.User, u model.User) string {
	for id, other := range rows {
		if id == u.ID {
			continue
		}
		switch {
		case u.GoogleID != "" && u.GoogleID == other.GoogleID:
			return "google_id"
		case u.SpotifyID != "" && u.SpotifyID == other.SpotifyID:
			return "spotify_id"
		case u.Email != "" && u.Email == other.Email:
			return "email"
		}
	}
	return ""
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Package service holds the business rules of the gateway, independent of
// HTTP and of the storage backend.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/login-gateway/internal/apperror"
	"github.com/sakif/login-gateway/internal/lock"
	"github.com/sakif/login-gateway/internal/model"
	"github.com/sakif/login-gateway/internal/repository"
)

// maxConflictRetries bounds how often a write rejected by a UNIQUE constraint
// is re-run as lookup-then-update before the login fails.
const maxConflictRetries = 3

// Outcome says how a login was resolved to a user row.
type Outcome string

const (
	// OutcomeMatched: found by the provider's own id.
	OutcomeMatched Outcome = "matched"
	// OutcomeLinked: found by email, provider id attached to that row.
	OutcomeLinked Outcome = "linked"
	// OutcomeCreated: no row matched, a new one was inserted.
	OutcomeCreated Outcome = "created"
)

// Resolution is the committed result of one reconciliation.
type Resolution struct {
	User    *model.User
	Outcome Outcome
}

// Reconciler maps a verified provider profile to exactly one local user.
//
// Lookup order: provider id, then email (only when the profile has one).
// A match is updated in place (provider id set, non-empty fields
// overwrite, last_login refreshed); no match inserts a new row. Lookup and
// write share one transaction. Logins for the same identity are serialized
// through the Locker, and a UNIQUE violation from a racing writer that the
// lock could not see (another process, or a split identity) is retried as a
// fresh lookup-then-update.
type Reconciler struct {
	tx     repository.Transactor
	locker lock.Locker
	logger *slog.Logger
	now    func() time.Time
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithClock replaces time.Now; tests use it to observe last_login changes.
func WithClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) { r.now = now }
}

// NewReconciler creates a Reconciler. A nil locker means an in-process
// lock.KeyedMutex.
func NewReconciler(tx repository.Transactor, locker lock.Locker, logger *slog.Logger, opts ...ReconcilerOption) *Reconciler {
	if locker == nil {
		locker = lock.NewKeyedMutex()
	}
	r := &Reconciler{
		tx:     tx,
		locker: locker,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile resolves profile to a committed user row. Errors wrapping
// apperror.ErrUnauthorized or apperror.ErrValidation mean the profile was
// unusable and the store was not touched; any other error is a persistence
// failure after which nothing was committed.
func (r *Reconciler) Reconcile(ctx context.Context, profile *model.Profile) (*Resolution, error) {
	if err := profile.Validate(); err != nil {
		return nil, fmt.Errorf("service/identity: %w", err)
	}

	unlock, err := lock.LockAll(ctx, r.locker, profile.IdentityKey(), profile.EmailKey())
	if err != nil {
		return nil, fmt.Errorf("service/identity: locking %s: %w", profile.IdentityKey(), err)
	}
	defer unlock()

	keepStoredEmail := false
	var lastErr error
	for attempt := 0; attempt <= maxConflictRetries; attempt++ {
		res, err := r.reconcileOnce(ctx, profile, keepStoredEmail)
		if err == nil {
			r.logger.Info("identity reconciled",
				slog.String("provider", profile.Provider.String()),
				slog.String("userID", res.User.ID),
				slog.String("outcome", string(res.Outcome)),
				slog.Int("attempt", attempt+1),
			)
			return res, nil
		}
		if !errors.Is(err, apperror.ErrConflict) {
			return nil, fmt.Errorf("service/identity: reconciling %s: %w", profile.IdentityKey(), err)
		}

		lastErr = err
		var appErr *apperror.AppError
		if errors.As(err, &appErr) && appErr.Field == "email" {
			// The email belongs to another row; keep the one already stored.
			keepStoredEmail = true
		}
		r.logger.Warn("identity conflict, retrying as update",
			slog.String("provider", profile.Provider.String()),
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()),
		)
	}

	return nil, fmt.Errorf("service/identity: %s still conflicting after %d retries: %w",
		profile.IdentityKey(), maxConflictRetries, lastErr)
}

func (r *Reconciler) reconcileOnce(ctx context.Context, p *model.Profile, keepStoredEmail bool) (*Resolution, error) {
	var res *Resolution

	err := r.tx.WithinTx(ctx, func(users repository.UserRepository) error {
		now := r.now().UTC()

		user, outcome, err := lookup(ctx, users, p)
		if err != nil {
			return err
		}

		if user == nil {
			user = &model.User{CreatedAt: now, LastLogin: now}
			user.ApplyProfile(p)
			if err := users.Insert(ctx, user); err != nil {
				return err
			}
			res = &Resolution{User: user, Outcome: OutcomeCreated}
			return nil
		}

		if prev := user.ProviderID(p.Provider); prev != "" && prev != p.ProviderID {
			r.logger.Warn("replacing provider id on email match",
				slog.String("userID", user.ID),
				slog.String("provider", p.Provider.String()),
			)
		}

		storedEmail := user.Email
		user.ApplyProfile(p)
		if keepStoredEmail {
			user.Email = storedEmail
		}
		user.LastLogin = now

		if err := users.Update(ctx, user); err != nil {
			return err
		}
		res = &Resolution{User: user, Outcome: outcome}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// lookup runs the two-step search. A nil user with a nil error means no row
// matched.
func lookup(ctx context.Context, users repository.UserRepository, p *model.Profile) (*model.User, Outcome, error) {
	user, err := users.FindByProviderID(ctx, p.Provider, p.ProviderID)
	if err == nil {
		return user, OutcomeMatched, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, "", err
	}

	if p.Email == "" {
		return nil, "", nil
	}

	user, err = users.FindByEmail(ctx, p.Email)
	if err == nil {
		return user, OutcomeLinked, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, "", err
	}
	return nil, "", nil
}

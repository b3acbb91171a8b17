// Package repository declares the persistence boundary of the gateway.
// Backends live in the sqlite and postgres subpackages.
package repository

import (
	"context"

	"github.com/sakif/login-gateway/internal/model"
)

// UserRepository reads and writes rows of the users table.
//
// Find* and GetUserByID return an error wrapping apperror.ErrNotFound when no
// row matches. Insert and Update return an error wrapping apperror.ErrConflict
// when a UNIQUE constraint (google_id, spotify_id, email) rejects the write.
type UserRepository interface {
	FindByProviderID(ctx context.Context, provider model.Provider, id string) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	Insert(ctx context.Context, user *model.User) error
	Update(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
}

// Transactor runs fn inside one unit of work. The UserRepository handed to fn
// is bound to the transaction. The transaction commits when fn returns nil and
// rolls back when fn returns an error or panics; the panic is re-raised after
// the rollback.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(users UserRepository) error) error
}

// Store is a complete backend: a repository for reads outside a transaction,
// a transactor for the reconciler, and lifecycle hooks for the server.
type Store interface {
	UserRepository
	Transactor
	Ping(ctx context.Context) error
	Close() error
}

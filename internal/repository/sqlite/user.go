package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/xid"

	"github.com/sakif/login-gateway/internal/apperror"
	"github.com/sakif/login-gateway/internal/model"
	"github.com/sakif/login-gateway/internal/repository"
)

// compile-time checks
var (
	_ repository.UserRepository = (*UserDB)(nil)
	_ repository.UserRepository = (*DB)(nil)
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// UserDB runs user queries against a pool or a transaction.
type UserDB struct {
	q querier
}

const userColumns = `id, google_id, spotify_id, email, name, picture, locale, created_at, last_login`

// FindByProviderID looks a user up by the column that belongs to provider.
func (u *UserDB) FindByProviderID(ctx context.Context, provider model.Provider, id string) (*model.User, error) {
	if !provider.Valid() {
		return nil, apperror.ValidationFailed("provider", "unsupported provider "+string(provider))
	}
	// provider.Column() is one of a fixed set of identifiers, never user input.
	row := u.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+provider.Column()+` = ?`, id)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", provider.String()+":"+id)
		}
		return nil, fmt.Errorf("sqlite: finding user by %s: %w", provider.Column(), err)
	}
	return user, nil
}

// FindByEmail looks a user up by exact email.
func (u *UserDB) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	row := u.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", email)
		}
		return nil, fmt.Errorf("sqlite: finding user by email: %w", err)
	}
	return user, nil
}

// GetUserByID retrieves a user by their internal ID.
func (u *UserDB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	row := u.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return user, nil
}

// Insert stores a new user. An empty ID is filled with a fresh xid; zero
// timestamps are left to the caller (the reconciler always sets them).
func (u *UserDB) Insert(ctx context.Context, user *model.User) error {
	if user.ID == "" {
		user.ID = xid.New().String()
	}

	_, err := u.q.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		nullString(user.GoogleID),
		nullString(user.SpotifyID),
		nullString(user.Email),
		nullString(user.Name),
		nullString(user.Picture),
		nullString(user.Locale),
		user.CreatedAt.UTC(),
		user.LastLogin.UTC(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting user %s: %w", user.ID, uniqueViolation(err))
	}
	return nil
}

// Update overwrites every mutable column of an existing row. created_at is
// never written.
func (u *UserDB) Update(ctx context.Context, user *model.User) error {
	res, err := u.q.ExecContext(ctx,
		`UPDATE users
		 SET google_id = ?, spotify_id = ?, email = ?, name = ?, picture = ?, locale = ?, last_login = ?
		 WHERE id = ?`,
		nullString(user.GoogleID),
		nullString(user.SpotifyID),
		nullString(user.Email),
		nullString(user.Name),
		nullString(user.Picture),
		nullString(user.Locale),
		user.LastLogin.UTC(),
		user.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating user %s: %w", user.ID, uniqueViolation(err))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("user", user.ID)
	}
	return nil
}

// The pool-level methods let *DB serve reads outside a transaction.

func (db *DB) FindByProviderID(ctx context.Context, provider model.Provider, id string) (*model.User, error) {
	return db.Users().FindByProviderID(ctx, provider, id)
}

func (db *DB) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return db.Users().FindByEmail(ctx, email)
}

func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return db.Users().GetUserByID(ctx, id)
}

func (db *DB) Insert(ctx context.Context, user *model.User) error {
	return db.Users().Insert(ctx, user)
}

func (db *DB) Update(ctx context.Context, user *model.User) error {
	return db.Users().Update(ctx, user)
}

func scanUser(row *sql.Row) (*model.User, error) {
	var (
		user                     model.User
		googleID, spotifyID      sql.NullString
		email, name, pic, locale sql.NullString
	)
	err := row.Scan(
		&user.ID,
		&googleID,
		&spotifyID,
		&email,
		&name,
		&pic,
		&locale,
		&user.CreatedAt,
		&user.LastLogin,
	)
	if err != nil {
		return nil, err
	}
	user.GoogleID = googleID.String
	user.SpotifyID = spotifyID.String
	user.Email = email.String
	user.Name = name.String
	user.Picture = pic.String
	user.Locale = locale.String
	return &user, nil
}

// nullString maps "" to SQL NULL so partial UNIQUE indexes ignore it.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

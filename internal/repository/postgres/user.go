package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/xid"

	"github.com/sakif/login-gateway/internal/apperror"
	"github.com/sakif/login-gateway/internal/model"
	"github.com/sakif/login-gateway/internal/repository"
)

var (
	_ repository.UserRepository = (*UserDB)(nil)
	_ repository.UserRepository = (*DB)(nil)
)

// querier is satisfied by Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// UserDB runs user queries against a pool or a transaction.
type UserDB struct {
	q querier
}

const userColumns = `id, google_id, spotify_id, email, name, picture, locale, created_at, last_login`

func (u *UserDB) FindByProviderID(ctx context.Context, provider model.Provider, id string) (*model.User, error) {
	if !provider.Valid() {
		return nil, apperror.ValidationFailed("provider", "unsupported provider "+string(provider))
	}
	row := u.q.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+provider.Column()+` = $1`, id)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("user", provider.String()+":"+id)
		}
		return nil, fmt.Errorf("postgres: finding user by %s: %w", provider.Column(), err)
	}
	return user, nil
}

func (u *UserDB) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	row := u.q.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("user", email)
		}
		return nil, fmt.Errorf("postgres: finding user by email: %w", err)
	}
	return user, nil
}

func (u *UserDB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	row := u.q.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("postgres: getting user %s: %w", id, err)
	}
	return user, nil
}

func (u *UserDB) Insert(ctx context.Context, user *model.User) error {
	if user.ID == "" {
		user.ID = xid.New().String()
	}
	_, err := u.q.Exec(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		user.ID,
		nullableString(user.GoogleID),
		nullableString(user.SpotifyID),
		nullableString(user.Email),
		nullableString(user.Name),
		nullableString(user.Picture),
		nullableString(user.Locale),
		user.CreatedAt,
		user.LastLogin,
	)
	if err != nil {
		return fmt.Errorf("postgres: inserting user %s: %w", user.ID, uniqueViolation(err))
	}
	return nil
}

func (u *UserDB) Update(ctx context.Context, user *model.User) error {
	tag, err := u.q.Exec(ctx,
		`UPDATE users
		 SET google_id = $1, spotify_id = $2, email = $3, name = $4, picture = $5, locale = $6, last_login = $7
		 WHERE id = $8`,
		nullableString(user.GoogleID),
		nullableString(user.SpotifyID),
		nullableString(user.Email),
		nullableString(user.Name),
		nullableString(user.Picture),
		nullableString(user.Locale),
		user.LastLogin,
		user.ID,
	)
	if err != nil {
		return fmt.Errorf("postgres: updating user %s: %w", user.ID, uniqueViolation(err))
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("user", user.ID)
	}
	return nil
}

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

func scanUser(row pgx.Row) (*model.User, error) {
	var (
		user                     model.User
		googleID, spotifyID      *string
		email, name, pic, locale *string
	)
	err := row.Scan(
		&user.ID, &googleID, &spotifyID, &email, &name, &pic, &locale,
		&user.CreatedAt, &user.LastLogin,
	)
	if err != nil {
		return nil, err
	}
	user.GoogleID = deref(googleID)
	user.SpotifyID = deref(spotifyID)
	user.Email = deref(email)
	user.Name = deref(name)
	user.Picture = deref(pic)
	user.Locale = deref(locale)
	return &user, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/login-gateway/internal/auth"
	"github.com/sakif/login-gateway/internal/model"
	"github.com/sakif/login-gateway/internal/repository"
)

// AuthService orchestrates a login: reconcile the provider profile into a
// local user, then issue the session token bound to that user's id.
//
//	AuthHandler (HTTP) → AuthService → Reconciler → Transactor (DB)
//	                                 ↘ TokenService (JWT)
type AuthService struct {
	reconciler *Reconciler
	users      repository.UserRepository
	tokens     *auth.TokenService
	logger     *slog.Logger
}

// NewAuthService creates an AuthService with all required dependencies.
func NewAuthService(
	reconciler *Reconciler,
	users repository.UserRepository,
	tokens *auth.TokenService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		reconciler: reconciler,
		users:      users,
		tokens:     tokens,
		logger:     logger,
	}
}

// AuthResult bundles the resolved user, how it was resolved, and the session
// token so the handler can set the cookie and redirect in one step.
type AuthResult struct {
	User    *model.User
	Outcome Outcome
	Token   string
}

// Login reconciles profile and issues a session token. It does not touch
// HTTP: cookies and redirects are the handler's job.
func (s *AuthService) Login(ctx context.Context, profile *model.Profile) (*AuthResult, error) {
	res, err := s.reconciler.Reconcile(ctx, profile)
	if err != nil {
		return nil, fmt.Errorf("service/auth: %w", err)
	}

	token, err := s.tokens.Generate(res.User.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", res.User.ID, err)
	}

	s.logger.Info("user authenticated",
		slog.String("userID", res.User.ID),
		slog.String("provider", profile.Provider.String()),
		slog.String("outcome", string(res.Outcome)),
	)

	return &AuthResult{User: res.User, Outcome: res.Outcome, Token: token}, nil
}

// GetUserByID returns the user for the given internal ID.
func (s *AuthService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, fmt.Errorf("service/auth: user ID must not be empty")
	}

	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", id, err)
	}
	return user, nil
}

// ValidateToken validates a session token and returns the user id it encodes.
func (s *AuthService) ValidateToken(tokenStr string) (string, error) {
	userID, err := s.tokens.Validate(tokenStr)
	if err != nil {
		return "", fmt.Errorf("service/auth: %w", err)
	}
	return userID, nil
}

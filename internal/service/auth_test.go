package service

import (
	"context"
	"errors"
	"testing"

	"github.com/sakif/login-gateway/internal/apperror"
	"github.com/sakif/login-gateway/internal/auth"
	"github.com/sakif/login-gateway/internal/model"
)

// newTestAuthService returns an AuthService wired with fake dependencies.
// The TokenService uses a short secret, suitable for tests only.
func newTestAuthService(t *testing.T, store *fakeStore) *AuthService {
	t.Helper()

	ts, err := auth.NewTokenService("test-secret-at-least-16-chars!!", auth.DefaultSessionTTL)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}

	logger := discardLogger()
	return NewAuthService(NewReconciler(store, nil, logger), store, ts, logger)
}

// =========================================================================
// Login TESTS
// =========================================================================

func TestLogin_NewUser(t *testing.T) {
	store := newFakeStore()
	svc := newTestAuthService(t, store)

	result, err := svc.Login(context.Background(), &model.Profile{
		Provider:    model.ProviderGoogle,
		ProviderID:  "g1",
		Email:       "x@example.com",
		DisplayName: "Alice",
		AvatarURL:   "https://lh3.googleusercontent.com/a",
	})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	if result.User == nil {
		t.Fatal("Login() returned nil User")
	}
	if result.Token == "" {
		t.Fatal("Login() returned empty Token")
	}
	if result.Outcome != OutcomeCreated {
		t.Errorf("Outcome = %q, want %q", result.Outcome, OutcomeCreated)
	}
	if result.User.Name != "Alice" {
		t.Errorf("User.Name = %q, want %q", result.User.Name, "Alice")
	}
	if result.User.ID == "" {
		t.Error("User.ID should be set after insert")
	}
}

func TestLogin_SecondProviderLinksExistingUser(t *testing.T) {
	store := newFakeStore()
	svc := newTestAuthService(t, store)

	first, err := svc.Login(context.Background(), googleProfile("g1", "x@example.com", "Alice"))
	if err != nil {
		t.Fatalf("first login error: %v", err)
	}

	second, err := svc.Login(context.Background(), spotifyProfile("s1", "x@example.com", "Alicia"))
	if err != nil {
		t.Fatalf("second login error: %v", err)
	}

	if second.User.ID != first.User.ID {
		t.Errorf("second login resolved to %q, want %q", second.User.ID, first.User.ID)
	}
	if second.Outcome != OutcomeLinked {
		t.Errorf("Outcome = %q, want %q", second.Outcome, OutcomeLinked)
	}
}

func TestLogin_TokenIsBoundToResolvedUser(t *testing.T) {
	store := newFakeStore()
	svc := newTestAuthService(t, store)

	result, err := svc.Login(context.Background(), spotifyProfile("s1", "", "Bob"))
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	userID, err := svc.ValidateToken(result.Token)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if userID != result.User.ID {
		t.Errorf("token subject = %q, want %q", userID, result.User.ID)
	}
}

func TestLogin_NilProfile(t *testing.T) {
	store := newFakeStore()
	svc := newTestAuthService(t, store)

	_, err := svc.Login(context.Background(), nil)
	if !errors.Is(err, apperror.ErrUnauthorized) {
		t.Fatalf("Login(nil) error = %v, want ErrUnauthorized", err)
	}
	if store.txCount != 0 {
		t.Errorf("store touched %d times, want 0", store.txCount)
	}
}

func TestLogin_RepositoryError(t *testing.T) {
	store := newFakeStore()
	store.insertErr = errors.New("database is on fire")
	svc := newTestAuthService(t, store)

	_, err := svc.Login(context.Background(), googleProfile("g1", "x@example.com", "Alice"))
	if err == nil {
		t.Fatal("Login() should propagate repository errors")
	}
	if errors.Is(err, apperror.ErrUnauthorized) {
		t.Error("a persistence failure must not look like an authorization failure")
	}
}

// =========================================================================
// GetUserByID TESTS
// =========================================================================

func TestGetUserByID_Found(t *testing.T) {
	store := newFakeStore()
	svc := newTestAuthService(t, store)

	result, err := svc.Login(context.Background(), googleProfile("g7", "", "findme"))
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	user, err := svc.GetUserByID(context.Background(), result.User.ID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if user.Name != "findme" {
		t.Errorf("user.Name = %q, want %q", user.Name, "findme")
	}
}

func TestGetUserByID_EmptyID(t *testing.T) {
	svc := newTestAuthService(t, newFakeStore())

	_, err := svc.GetUserByID(context.Background(), "")
	if err == nil {
		t.Fatal("GetUserByID() should return error for empty ID")
	}
}

func TestGetUserByID_NotFound(t *testing.T) {
	svc := newTestAuthService(t, newFakeStore())

	_, err := svc.GetUserByID(context.Background(), "non-existent-id")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("GetUserByID() error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// ValidateToken TESTS
// =========================================================================

func TestValidateToken_InvalidToken(t *testing.T) {
	svc := newTestAuthService(t, newFakeStore())

	_, err := svc.ValidateToken("this.is.garbage")
	if err == nil {
		t.Fatal("ValidateToken() should return error for garbage token")
	}
}

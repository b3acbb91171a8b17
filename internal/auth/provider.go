package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"

	"golang.org/x/oauth2"

	"github.com/sakif/login-gateway/internal/apperror"
	"github.com/sakif/login-gateway/internal/model"
)

// Provider is an OAuth2 identity provider. Implementations only return
// identity facts; creating or linking users is the reconciler's job.
type Provider interface {
	Name() model.Provider
	// AuthURL is the consent page URL carrying the given CSRF state.
	AuthURL(state string) string
	// Exchange trades an authorization code for the user's verified profile.
	// Every failure wraps apperror.ErrUnauthorized.
	Exchange(ctx context.Context, code string) (*model.Profile, error)
}

// Option customizes a provider client. Tests point both URLs at httptest.
type Option func(*oauthClient)

// WithEndpoint overrides the provider's authorization and token URLs.
func WithEndpoint(endpoint oauth2.Endpoint) Option {
	return func(c *oauthClient) { c.config.Endpoint = endpoint }
}

// WithUserInfoURL overrides the profile endpoint.
func WithUserInfoURL(url string) Option {
	return func(c *oauthClient) { c.userInfoURL = url }
}

// oauthClient is the authorization-code plumbing shared by all providers.
type oauthClient struct {
	name        model.Provider
	config      *oauth2.Config
	userInfoURL string
}

func newOAuthClient(name model.Provider, cfg *oauth2.Config, userInfoURL string, opts []Option) *oauthClient {
	c := &oauthClient{name: name, config: cfg, userInfoURL: userInfoURL}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *oauthClient) Name() model.Provider {
	return c.name
}

func (c *oauthClient) AuthURL(state string) string {
	return c.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// fetchProfile exchanges code for a token and decodes the user-info response
// into out.
func (c *oauthClient) fetchProfile(ctx context.Context, code string, out any) error {
	if code == "" {
		return apperror.ProviderAuthFailed(c.name.String(), fmt.Errorf("missing authorization code"))
	}

	token, err := c.config.Exchange(ctx, code)
	if err != nil {
		return apperror.ProviderAuthFailed(c.name.String(), fmt.Errorf("exchanging code: %w", err))
	}

	client := c.config.Client(ctx, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.userInfoURL, nil)
	if err != nil {
		return apperror.ProviderAuthFailed(c.name.String(), err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return apperror.ProviderAuthFailed(c.name.String(), fmt.Errorf("calling user info: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return apperror.ProviderAuthFailed(c.name.String(), fmt.Errorf("user info returned status %d", resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperror.ProviderAuthFailed(c.name.String(), fmt.Errorf("decoding user info: %w", err))
	}
	return nil
}

// Registry holds the configured providers by name.
type Registry struct {
	providers map[model.Provider]Provider
}

// NewRegistry registers the given providers. Later duplicates win.
func NewRegistry(list ...Provider) *Registry {
	m := make(map[model.Provider]Provider, len(list))
	for _, p := range list {
		m[p.Name()] = p
	}
	return &Registry{providers: m}
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[model.Provider(name)]
	if !ok {
		return nil, apperror.NotFound("provider", name)
	}
	return p, nil
}

// Names lists registered providers in a stable order.
func (r *Registry) Names() []model.Provider {
	names := make([]model.Provider, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

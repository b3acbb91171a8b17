package auth

import (
	"context"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/sakif/login-gateway/internal/apperror"
	"github.com/sakif/login-gateway/internal/model"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// googleUser is the part of Google's v2 userinfo response we keep.
type googleUser struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
	Locale  string `json:"locale"`
}

// GoogleProvider signs users in with Google.
type GoogleProvider struct {
	*oauthClient
}

// NewGoogleProvider creates a Google client. callbackURL must match the
// redirect URI registered in the Google Cloud console.
func NewGoogleProvider(clientID, clientSecret, callbackURL string, opts ...Option) *GoogleProvider {
	cfg := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  callbackURL,
		Scopes:       []string{"openid", "email", "profile"},
		Endpoint:     google.Endpoint,
	}
	return &GoogleProvider{oauthClient: newOAuthClient(model.ProviderGoogle, cfg, googleUserInfoURL, opts)}
}

// Exchange implements Provider.
func (p *GoogleProvider) Exchange(ctx context.Context, code string) (*model.Profile, error) {
	var u googleUser
	if err := p.fetchProfile(ctx, code, &u); err != nil {
		return nil, err
	}
	if u.ID == "" {
		return nil, apperror.ProviderAuthFailed(p.name.String(), nil)
	}
	return &model.Profile{
		Provider:    model.ProviderGoogle,
		ProviderID:  u.ID,
		Email:       u.Email,
		DisplayName: u.Name,
		AvatarURL:   u.Picture,
		Locale:      u.Locale,
	}, nil
}

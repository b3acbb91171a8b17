package auth

import (
	"context"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/spotify"

	"github.com/sakif/login-gateway/internal/apperror"
	"github.com/sakif/login-gateway/internal/model"
)

const spotifyUserInfoURL = "https://api.spotify.com/v1/me"

// spotifyUser is the part of Spotify's /v1/me response we keep. Spotify has
// no locale; the first image is the avatar.
type spotifyUser struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Images      []struct {
		URL string `json:"url"`
	} `json:"images"`
}

// SpotifyProvider signs users in with Spotify.
type SpotifyProvider struct {
	*oauthClient
}

// NewSpotifyProvider creates a Spotify client.
func NewSpotifyProvider(clientID, clientSecret, callbackURL string, opts ...Option) *SpotifyProvider {
	cfg := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  callbackURL,
		Scopes:       []string{"user-read-email", "user-read-private"},
		Endpoint:     spotify.Endpoint,
	}
	return &SpotifyProvider{oauthClient: newOAuthClient(model.ProviderSpotify, cfg, spotifyUserInfoURL, opts)}
}

// Exchange implements Provider.
func (p *SpotifyProvider) Exchange(ctx context.Context, code string) (*model.Profile, error) {
	var u spotifyUser
	if err := p.fetchProfile(ctx, code, &u); err != nil {
		return nil, err
	}
	if u.ID == "" {
		return nil, apperror.ProviderAuthFailed(p.name.String(), nil)
	}

	profile := &model.Profile{
		Provider:    model.ProviderSpotify,
		ProviderID:  u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
	}
	if len(u.Images) > 0 {
		profile.AvatarURL = u.Images[0].URL
	}
	return profile, nil
}

// Package model defines the data structures used throughout the application.
package model

import "time"

// User is the local account a login resolves to.
//
// GoogleID, SpotifyID and Email are optional and unique when set. Empty
// strings mean "absent" and are stored as SQL NULL so the UNIQUE indexes only
// apply to real values. A user that logged in through both providers with the
// same email holds both provider ids.
type User struct {
	ID        string    `json:"id"`
	GoogleID  string    `json:"googleId,omitempty"`
	SpotifyID string    `json:"spotifyId,omitempty"`
	Email     string    `json:"email,omitempty"`
	Name      string    `json:"name,omitempty"`
	Picture   string    `json:"picture,omitempty"`
	Locale    string    `json:"locale,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	LastLogin time.Time `json:"lastLogin"`
}

// ProviderID returns the external identifier this user holds for p.
func (u *User) ProviderID(p Provider) string {
	switch p {
	case ProviderGoogle:
		return u.GoogleID
	case ProviderSpotify:
		return u.SpotifyID
	}
	return ""
}

// SetProviderID links id to this user under provider p.
// Unknown providers are ignored.
func (u *User) SetProviderID(p Provider, id string) {
	switch p {
	case ProviderGoogle:
		u.GoogleID = id
	case ProviderSpotify:
		u.SpotifyID = id
	}
}

// ApplyProfile merges a provider profile into u: the provider id is always
// set, display fields and email are overwritten only by non-empty values.
func (u *User) ApplyProfile(p *Profile) {
	u.SetProviderID(p.Provider, p.ProviderID)
	if p.DisplayName != "" {
		u.Name = p.DisplayName
	}
	if p.Email != "" {
		u.Email = p.Email
	}
	if p.AvatarURL != "" {
		u.Picture = p.AvatarURL
	}
	if p.Locale != "" {
		u.Locale = p.Locale
	}
}

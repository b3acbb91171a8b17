package model

import (
	"strings"

	"github.com/sakif/login-gateway/internal/apperror"
)

// Provider tags an external OAuth2 identity service.
type Provider string

const (
	ProviderGoogle  Provider = "google"
	ProviderSpotify Provider = "spotify"
)

// Providers lists every provider the gateway knows how to link.
var Providers = []Provider{ProviderGoogle, ProviderSpotify}

// Valid reports whether p is a supported provider.
func (p Provider) Valid() bool {
	for _, known := range Providers {
		if p == known {
			return true
		}
	}
	return false
}

func (p Provider) String() string { return string(p) }

// Column is the users table column holding this provider's id.
func (p Provider) Column() string {
	return string(p) + "_id"
}

// Profile is the verified user-info record a provider returns after a
// successful authorization-code exchange.
type Profile struct {
	Provider    Provider
	ProviderID  string
	Email       string
	DisplayName string
	AvatarURL   string
	Locale      string // Google only
}

// Validate rejects profiles the reconciler cannot key on.
func (p *Profile) Validate() error {
	if p == nil {
		return apperror.ProviderAuthFailed("unknown", nil)
	}
	if !p.Provider.Valid() {
		return apperror.ValidationFailed("provider", "unsupported provider "+string(p.Provider))
	}
	if strings.TrimSpace(p.ProviderID) == "" {
		return apperror.ProviderAuthFailed(string(p.Provider), nil)
	}
	return nil
}

// IdentityKey is the lock key for this provider identity.
func (p *Profile) IdentityKey() string {
	return "provider:" + string(p.Provider) + ":" + p.ProviderID
}

// EmailKey is the lock key for this profile's email, or "" without one.
func (p *Profile) EmailKey() string {
	if p.Email == "" {
		return ""
	}
	return "email:" + strings.ToLower(p.Email)
}

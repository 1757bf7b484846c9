package identity

import (
	"time"

	"golang.org/x/oauth2"
)

// User holds the identity claims of the signed-in user as reported by the
// identity provider. It is a plain value object; the session store hands out
// pointers to immutable copies, never shared mutable state.
type User struct {
	ID     string   `json:"id"`
	Email  string   `json:"email"`
	Name   string   `json:"name,omitempty"`
	Locale string   `json:"locale,omitempty"`
	Roles  []string `json:"roles,omitempty"`
}

// Session is an immutable snapshot of the authenticated state: the user plus
// the short-lived credential attached to protected requests. A Session is
// replaced wholesale on every refresh or sign-out, never mutated in place.
type Session struct {
	// User is the identity the credential was issued for.
	User *User `json:"user,omitempty"`

	// AccessToken is the short-lived bearer credential.
	// Usage: "Authorization: Bearer <access_token>"
	AccessToken string `json:"access_token"`

	// RefreshToken is the opaque long-lived token exchanged for fresh
	// access tokens. Rotates on each refresh.
	RefreshToken string `json:"refresh_token,omitempty"`

	// TokenType is typically "bearer".
	TokenType string `json:"token_type,omitempty"`

	// ExpiresAt is when the access token expires. May be zero when the
	// provider only communicates expiry inside the JWT itself.
	ExpiresAt time.Time `json:"expires_at,omitempty"`

	// IDToken is the OIDC ID token, present when the provider issued one.
	IDToken string `json:"id_token,omitempty"`
}

// Token converts the session credential to an oauth2.Token.
func (s *Session) Token() *oauth2.Token {
	if s == nil {
		return nil
	}
	token := &oauth2.Token{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    s.TokenType,
		Expiry:       s.ExpiresAt,
	}
	if s.IDToken != "" {
		token = token.WithExtra(map[string]interface{}{
			"id_token": s.IDToken,
		})
	}
	return token
}

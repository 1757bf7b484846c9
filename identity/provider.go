package identity

import "context"

// Provider defines the interface to the external identity provider. The SDK
// only consumes sessions; credential issuance policy lives on the other side
// of this boundary.
type Provider interface {
	// GetSession returns the current session, or (nil, nil) when nobody is
	// signed in. An error means the provider could not be reached, not that
	// the user is anonymous.
	GetSession(ctx context.Context) (*Session, error)

	// RefreshSession exchanges the current refresh credential for a new
	// session with a fresh access token.
	RefreshSession(ctx context.Context) (*Session, error)
}

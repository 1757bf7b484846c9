package identity

import (
	"context"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/pkg/errors"
)

// IDTokenVerifier validates OIDC ID tokens issued by the identity provider
// against its published key set.
type IDTokenVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewIDTokenVerifier builds a verifier for the given issuer and client ID.
// Keys are fetched lazily from the issuer's JWKS endpoint on first use.
func NewIDTokenVerifier(ctx context.Context, issuerURL, jwksURL, clientID string) *IDTokenVerifier {
	keySet := oidc.NewRemoteKeySet(ctx, jwksURL)
	return &IDTokenVerifier{
		verifier: oidc.NewVerifier(issuerURL, keySet, &oidc.Config{ClientID: clientID}),
	}
}

// Verify checks the raw ID token's signature, issuer, audience and expiry.
func (v *IDTokenVerifier) Verify(ctx context.Context, rawIDToken string) error {
	if _, err := v.verifier.Verify(ctx, rawIDToken); err != nil {
		return errors.Wrap(err, "[IDTokenVerifier.Verify] verify")
	}
	return nil
}

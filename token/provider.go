package token

import (
	"context"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-session-client/identity"
	internalerrors "github.com/jrsteele09/go-session-client/internal/errors"
	"github.com/jrsteele09/go-session-client/localstore"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// RefreshSafetyMargin is the minimum remaining lifetime a credential must
// have before it is handed out. Anything closer to expiry triggers a refresh
// first, so in-flight requests don't race natural expiry.
const RefreshSafetyMargin = 5 * time.Minute

// Local store keys for the legacy direct-login credential pair. These are the
// only two keys this SDK ever writes to durable local storage.
const (
	LegacyAccessTokenKey  = "legacy_access_token"
	LegacyRefreshTokenKey = "legacy_refresh_token"
)

// Provider hands out access credentials that are guaranteed to be valid for
// at least RefreshSafetyMargin, refreshing through the identity provider when
// needed. Concurrent callers share a single in-flight refresh.
type Provider struct {
	identityProvider identity.Provider
	localStore       localstore.Store
	nowFunc          func() time.Time
	safetyMargin     time.Duration

	group singleflight.Group

	mu      sync.RWMutex
	current *oauth2.Token
}

type ProviderOption func(*Provider)

// WithNowFunc sets the now time function (primarily for testing)
func WithNowFunc(now func() time.Time) ProviderOption {
	return func(p *Provider) {
		p.nowFunc = now
	}
}

// NewProvider creates a token provider backed by the identity provider, with
// the durable local store as the legacy-credential fallback.
func NewProvider(identityProvider identity.Provider, localStore localstore.Store, options ...ProviderOption) (*Provider, error) {
	if identityProvider == nil {
		return nil, errors.New("[NewProvider] identity provider is required")
	}
	if localStore == nil {
		return nil, errors.New("[NewProvider] local store is required")
	}

	p := &Provider{
		identityProvider: identityProvider,
		localStore:       localStore,
		nowFunc:          time.Now,
		safetyMargin:     RefreshSafetyMargin,
	}
	for _, opt := range options {
		opt(p)
	}
	return p, nil
}

// GetValidToken returns a credential valid for at least the safety margin.
// When the cached credential is closer to expiry it refreshes synchronously
// first. A failed refresh returns the previous (possibly expiring) credential
// instead of an error, leaving the server-side 401 path as the final arbiter.
// The legacy local-store credential is used only when no identity-provider
// session exists at all.
func (p *Provider) GetValidToken(ctx context.Context) (string, error) {
	p.mu.RLock()
	current := p.current
	p.mu.RUnlock()

	if current == nil {
		if err := p.loadSession(ctx); err != nil {
			return "", err
		}
		p.mu.RLock()
		current = p.current
		p.mu.RUnlock()
	}

	if current == nil {
		// No identity-provider session at all: legacy fallback
		legacy, err := p.localStore.Get(LegacyAccessTokenKey)
		if err != nil {
			if internalerrors.Is(err, internalerrors.ErrKeyNotFound) {
				return "", internalerrors.ErrNoCredential
			}
			return "", errors.Wrap(err, "[Provider.GetValidToken] legacy credential lookup")
		}
		return legacy, nil
	}

	if p.validBeyondMargin(current) {
		return current.AccessToken, nil
	}

	refreshed, err := p.refresh(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("token refresh failed, returning previous credential")
		return current.AccessToken, nil
	}
	return refreshed.AccessToken, nil
}

// Peek returns the cached credential if one happens to be available, without
// triggering any network activity. Used for unprotected endpoints.
func (p *Provider) Peek() (string, bool) {
	p.mu.RLock()
	current := p.current
	p.mu.RUnlock()

	if current != nil && current.AccessToken != "" {
		return current.AccessToken, true
	}
	legacy, err := p.localStore.Get(LegacyAccessTokenKey)
	if err != nil || legacy == "" {
		return "", false
	}
	return legacy, true
}

// ForceRefresh unconditionally refreshes the credential. It is the entry
// point for the 401 replay path, so unlike GetValidToken the error surfaces.
func (p *Provider) ForceRefresh(ctx context.Context) (string, error) {
	refreshed, err := p.refresh(ctx)
	if err != nil {
		return "", err
	}
	return refreshed.AccessToken, nil
}

// Clear drops the cached credential and removes the legacy credential pair
// from durable storage.
func (p *Provider) Clear() {
	p.mu.Lock()
	p.current = nil
	p.mu.Unlock()

	if err := p.localStore.Delete(LegacyAccessTokenKey); err != nil {
		log.Warn().Err(err).Msg("failed to delete legacy access token")
	}
	if err := p.localStore.Delete(LegacyRefreshTokenKey); err != nil {
		log.Warn().Err(err).Msg("failed to delete legacy refresh token")
	}
}

// SetSession seeds the provider from an already-fetched session, e.g. after
// an explicit login, avoiding a redundant identity fetch.
func (p *Provider) SetSession(session *identity.Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = session.Token()
}

// loadSession performs the initial session fetch, deduplicated across
// concurrent callers.
func (p *Provider) loadSession(ctx context.Context) error {
	_, err, _ := p.group.Do("load", func() (interface{}, error) {
		session, err := p.identityProvider.GetSession(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "[Provider.loadSession] GetSession")
		}
		if session != nil {
			p.mu.Lock()
			p.current = session.Token()
			p.mu.Unlock()
		}
		return nil, nil
	})
	return err
}

// refresh performs a single-flight refresh against the identity provider.
// Every caller that arrives while a refresh is in flight observes the same
// outcome.
func (p *Provider) refresh(ctx context.Context) (*oauth2.Token, error) {
	result, err, _ := p.group.Do("refresh", func() (interface{}, error) {
		session, err := p.identityProvider.RefreshSession(ctx)
		if err != nil {
			return nil, internalerrors.Wrapf(internalerrors.ErrRefreshFailed, "%s", err.Error())
		}
		if session == nil {
			return nil, internalerrors.ErrRefreshFailed
		}
		refreshed := session.Token()
		p.mu.Lock()
		p.current = refreshed
		p.mu.Unlock()
		return refreshed, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*oauth2.Token), nil
}

// validBeyondMargin reports whether the credential outlives the safety
// margin. Credentials without a discoverable expiry are treated as valid.
func (p *Provider) validBeyondMargin(token *oauth2.Token) bool {
	expiry := token.Expiry
	if expiry.IsZero() {
		expiry = jwtExpiry(token.AccessToken)
	}
	if expiry.IsZero() {
		return true
	}
	return p.nowFunc().Add(p.safetyMargin).Before(expiry)
}

// jwtExpiry extracts the exp claim from a JWT access token without verifying
// the signature; validation is the server's job, we only need the timestamp.
func jwtExpiry(accessToken string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return time.Time{}
	}
	expiresAt, err := claims.GetExpirationTime()
	if err != nil || expiresAt == nil {
		return time.Time{}
	}
	return expiresAt.Time
}

package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/jrsteele09/go-session-client/internal/utils"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const providerRequestTimeout = 30 * time.Second

// HTTPProvider talks to the identity-linked REST API:
//
//	GET  {base}/session          -> current session (204 when anonymous)
//	POST {base}/session/refresh  -> exchange refresh token for a new session
//
// It tracks the rotating refresh token across calls so that RefreshSession
// always sends the most recently issued one.
type HTTPProvider struct {
	baseURL    string
	httpClient *http.Client
	verifier   *IDTokenVerifier

	mu           sync.Mutex
	refreshToken string
}

type HTTPProviderOption func(*HTTPProvider)

// WithHTTPClient overrides the underlying HTTP client (primarily for testing).
func WithHTTPClient(c *http.Client) HTTPProviderOption {
	return func(p *HTTPProvider) {
		p.httpClient = c
	}
}

// WithIDTokenVerifier enables OIDC ID token verification on every session
// returned by the provider.
func WithIDTokenVerifier(v *IDTokenVerifier) HTTPProviderOption {
	return func(p *HTTPProvider) {
		p.verifier = v
	}
}

func NewHTTPProvider(baseURL string, options ...HTTPProviderOption) *HTTPProvider {
	p := &HTTPProvider{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: providerRequestTimeout},
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

// sessionResponse is the wire shape of the identity API's session payload.
type sessionResponse struct {
	AccessToken  *string `json:"access_token,omitempty"`
	RefreshToken *string `json:"refresh_token,omitempty"`
	TokenType    string  `json:"token_type,omitempty"`
	ExpiresAt    *string `json:"expires_at,omitempty"`
	ExpiresIn    int     `json:"expires_in,omitempty"`
	IDToken      *string `json:"id_token,omitempty"`
	User         *struct {
		ID     string `json:"id"`
		Email  string `json:"email"`
		Name   string `json:"name,omitempty"`
		Locale string `json:"locale,omitempty"`
		Roles  []any  `json:"roles,omitempty"`
	} `json:"user,omitempty"`
}

// GetSession implements Provider.
func (p *HTTPProvider) GetSession(ctx context.Context) (*Session, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/session", nil)
	if err != nil {
		return nil, errors.Wrap(err, "[HTTPProvider.GetSession] build request")
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "[HTTPProvider.GetSession] request failed")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return p.decodeSession(ctx, resp.Body)
	case http.StatusNoContent, http.StatusUnauthorized:
		return nil, nil // Anonymous, not an error
	default:
		return nil, errors.Errorf("[HTTPProvider.GetSession] unexpected status %d", resp.StatusCode)
	}
}

// RefreshSession implements Provider.
func (p *HTTPProvider) RefreshSession(ctx context.Context) (*Session, error) {
	p.mu.Lock()
	refreshToken := p.refreshToken
	p.mu.Unlock()

	body, err := json.Marshal(map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return nil, errors.Wrap(err, "[HTTPProvider.RefreshSession] marshal body")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/session/refresh", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "[HTTPProvider.RefreshSession] build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "[HTTPProvider.RefreshSession] request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("[HTTPProvider.RefreshSession] unexpected status %d", resp.StatusCode)
	}
	return p.decodeSession(ctx, resp.Body)
}

// SetRefreshToken seeds the rotating refresh token, e.g. after a direct login
// performed outside this provider.
func (p *HTTPProvider) SetRefreshToken(token string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshToken = token
}

func (p *HTTPProvider) decodeSession(ctx context.Context, r io.Reader) (*Session, error) {
	var sr sessionResponse
	if err := json.NewDecoder(r).Decode(&sr); err != nil {
		return nil, errors.Wrap(err, "[HTTPProvider.decodeSession] decode")
	}
	if utils.Value(sr.AccessToken) == "" {
		return nil, nil
	}

	session := &Session{
		AccessToken:  utils.Value(sr.AccessToken),
		RefreshToken: utils.Value(sr.RefreshToken),
		TokenType:    sr.TokenType,
		IDToken:      utils.Value(sr.IDToken),
	}
	if sr.ExpiresAt != nil {
		expiresAt, err := time.Parse(time.RFC3339, *sr.ExpiresAt)
		if err != nil {
			return nil, errors.Wrap(err, "[HTTPProvider.decodeSession] parse expires_at")
		}
		session.ExpiresAt = expiresAt
	} else if sr.ExpiresIn > 0 {
		session.ExpiresAt = time.Now().Add(time.Duration(sr.ExpiresIn) * time.Second)
	}
	if sr.User != nil {
		session.User = &User{
			ID:     sr.User.ID,
			Email:  sr.User.Email,
			Name:   sr.User.Name,
			Locale: sr.User.Locale,
			Roles:  utils.ToStringSlice(sr.User.Roles),
		}
	}

	if p.verifier != nil && session.IDToken != "" {
		if err := p.verifier.Verify(ctx, session.IDToken); err != nil {
			return nil, errors.Wrap(err, "[HTTPProvider.decodeSession] id token verification")
		}
	}

	// Keep the newest refresh token for the next refresh call
	if session.RefreshToken != "" {
		p.mu.Lock()
		p.refreshToken = session.RefreshToken
		p.mu.Unlock()
	}

	log.Debug().
		Str("user_id", utils.Value(session.User).ID).
		Time("expires_at", session.ExpiresAt).
		Msg("identity session decoded")

	return session, nil
}

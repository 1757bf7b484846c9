package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-session-client/api/cache"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultTimeout bounds ordinary calls, including their retry budget.
	DefaultTimeout = 30 * time.Second

	// InferenceTimeout bounds the small set of long-running
	// inference-backed calls (price prediction).
	InferenceTimeout = 120 * time.Second

	// maxServerErrorRetries caps local retries of 5xx responses.
	maxServerErrorRetries = 2
)

// backoffBaseDelay is the first retry delay; subsequent retries double it.
// Variable so tests can shrink the schedule.
var backoffBaseDelay = time.Second

// TokenSource supplies and refreshes the bearer credential attached to
// protected requests.
type TokenSource interface {
	// GetValidToken returns a credential valid for at least the provider's
	// safety margin, refreshing first when needed.
	GetValidToken(ctx context.Context) (string, error)

	// Peek returns a credential only if one is already available, with no
	// network activity.
	Peek() (string, bool)

	// ForceRefresh unconditionally refreshes; used by the 401 replay path.
	ForceRefresh(ctx context.Context) (string, error)

	// Clear drops all local credential state.
	Clear()
}

// Client mediates every outbound call to the backend. Pipeline order:
// request shaping, cache lookup, credential attachment, dispatch, response
// handling (coordinated 401 refresh-and-replay, bounded 5xx backoff, 429
// pass-through), error normalization.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	tokens        TokenSource
	respCache     cache.Store
	loginURL      string
	onAuthExpired func(loginURL string)

	// refreshGroup enforces "at most one refresh in flight": every request
	// that hits a 401 while a refresh is running attaches to the same call
	// and observes the same outcome.
	refreshGroup singleflight.Group
}

type ClientOption func(*Client)

// WithHTTPClient overrides the underlying transport (primarily for testing).
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithCache enables response caching for requests flagged Cacheable.
func WithCache(store cache.Store) ClientOption {
	return func(cl *Client) {
		cl.respCache = store
	}
}

// WithAuthExpiredHandler installs the hook invoked on terminal auth failure.
// The SDK performs no navigation itself; the handler receives the built
// (locale-aware) login URL.
func WithAuthExpiredHandler(loginURL string, handler func(loginURL string)) ClientOption {
	return func(cl *Client) {
		cl.loginURL = loginURL
		cl.onAuthExpired = handler
	}
}

// NewClient creates a client for baseURL. The token source is required even
// for mostly-public APIs so that unprotected calls can opportunistically
// attach an available credential.
func NewClient(baseURL string, tokens TokenSource, options ...ClientOption) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("[NewClient] baseURL is required")
	}
	if tokens == nil {
		return nil, errors.New("[NewClient] token source is required")
	}

	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: http.DefaultClient,
		tokens:     tokens,
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// Do runs req through the pipeline and, on success, unmarshals the response
// payload into out (when out is non-nil). All failures surface as *Error.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	bodyBytes, contentType, err := req.materializeBody()
	if err != nil {
		return &Error{Kind: KindAPI, Message: err.Error(), cause: err}
	}

	cacheable := c.respCache != nil && req.Cacheable && req.Method == http.MethodGet
	cacheKey := ""
	if cacheable {
		cacheKey = cache.Key(req.Method, req.Path, req.Query)
		if payload, ok, cacheErr := c.respCache.Get(ctx, cacheKey); cacheErr == nil && ok {
			return unmarshalPayload(payload, out)
		} else if cacheErr != nil {
			log.Warn().Err(cacheErr).Str("key", cacheKey).Msg("response cache lookup failed")
		}
	}

	requestID := uuid.NewString()
	logger := log.With().
		Str("request_id", requestID).
		Str("method", req.Method).
		Str("path", req.Path).
		Logger()

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload, err := c.dispatch(ctx, logger, req, bodyBytes, contentType, requestID)
	if err != nil {
		return err
	}

	if cacheable {
		if cacheErr := c.respCache.Set(ctx, cacheKey, payload); cacheErr != nil {
			logger.Warn().Err(cacheErr).Msg("response cache store failed")
		}
	}
	return unmarshalPayload(payload, out)
}

// dispatch sends the request, handling the 401 refresh-and-replay and the
// 5xx retry budget. It returns the successful response payload.
func (c *Client) dispatch(ctx context.Context, logger zerolog.Logger, req Request, bodyBytes []byte, contentType, requestID string) ([]byte, error) {
	serverRetries := 0
	replayedAfterRefresh := false

	for {
		httpReq, err := c.buildHTTPRequest(ctx, req, bodyBytes, contentType, requestID)
		if err != nil {
			return nil, &Error{Kind: KindAPI, Message: err.Error(), cause: err}
		}

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			// No response received at all: a distinct failure kind,
			// never retried automatically.
			logger.Warn().Err(err).Msg("network failure")
			return nil, &Error{Kind: KindNetwork, Message: err.Error(), cause: err}
		}

		payload, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, &Error{Kind: KindNetwork, Message: err.Error(), cause: err}
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return payload, nil

		case resp.StatusCode == http.StatusUnauthorized:
			if isAuthPath(req.Path) {
				// 401 on login/register/refresh endpoints never
				// triggers another refresh or a redirect.
				return nil, &Error{
					Kind:       KindAPI,
					StatusCode: resp.StatusCode,
					Message:    normalizeErrorMessage(resp.StatusCode, payload),
				}
			}
			if replayedAfterRefresh {
				return nil, c.authExpired(logger, resp.StatusCode, payload)
			}
			if err := c.coordinatedRefresh(ctx); err != nil {
				logger.Warn().Err(err).Msg("credential refresh failed after 401")
				return nil, c.authExpired(logger, resp.StatusCode, payload)
			}
			replayedAfterRefresh = true
			logger.Debug().Msg("replaying request with refreshed credential")

		case resp.StatusCode == http.StatusTooManyRequests:
			return nil, &Error{
				Kind:       KindRateLimited,
				StatusCode: resp.StatusCode,
				Message:    normalizeErrorMessage(resp.StatusCode, payload),
			}

		case resp.StatusCode >= 500:
			if serverRetries >= maxServerErrorRetries {
				return nil, &Error{
					Kind:       KindTransient,
					StatusCode: resp.StatusCode,
					Message:    normalizeErrorMessage(resp.StatusCode, payload),
				}
			}
			delay := backoffBaseDelay << serverRetries
			serverRetries++
			logger.Debug().
				Int("retry", serverRetries).
				Dur("delay", delay).
				Int("status", resp.StatusCode).
				Msg("retrying after server error")
			select {
			case <-ctx.Done():
				return nil, &Error{Kind: KindNetwork, Message: ctx.Err().Error(), cause: ctx.Err()}
			case <-time.After(delay):
			}

		case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
			return nil, &Error{
				Kind:       KindValidation,
				StatusCode: resp.StatusCode,
				Message:    normalizeErrorMessage(resp.StatusCode, payload),
			}

		default:
			return nil, &Error{
				Kind:       KindAPI,
				StatusCode: resp.StatusCode,
				Message:    normalizeErrorMessage(resp.StatusCode, payload),
			}
		}
	}
}

func (c *Client) buildHTTPRequest(ctx context.Context, req Request, bodyBytes []byte, contentType, requestID string) (*http.Request, error) {
	fullURL := c.baseURL + req.Path
	if len(req.Query) > 0 {
		fullURL += "?" + req.Query.Encode()
	}
	if _, err := url.Parse(fullURL); err != nil {
		return nil, errors.Wrap(err, "[Client.buildHTTPRequest] parse url")
	}

	var body io.Reader
	if len(bodyBytes) > 0 {
		body = bytes.NewReader(bodyBytes)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, fullURL, body)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.buildHTTPRequest] new request")
	}

	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.Header.Set("X-Request-ID", requestID)

	if req.Protected {
		credential, err := c.tokens.GetValidToken(ctx)
		if err != nil {
			log.Debug().Err(err).Msg("no credential for protected request")
		} else if credential != "" {
			httpReq.Header.Set("Authorization", "Bearer "+credential)
		}
	} else if credential, ok := c.tokens.Peek(); ok {
		httpReq.Header.Set("Authorization", "Bearer "+credential)
	}

	return httpReq, nil
}

// coordinatedRefresh funnels all concurrent 401-triggered refreshes through
// one singleflight call. Requests queued behind an in-flight refresh resume
// after it settles and observe the same outcome: all replay with the new
// token, or all fail together.
func (c *Client) coordinatedRefresh(ctx context.Context) error {
	_, err, _ := c.refreshGroup.Do("refresh", func() (interface{}, error) {
		return c.tokens.ForceRefresh(ctx)
	})
	return err
}

// authExpired finalizes a terminal 401: clears local identity and invokes
// the auth-expired hook with the login URL.
func (c *Client) authExpired(logger zerolog.Logger, statusCode int, payload []byte) error {
	c.tokens.Clear()
	if c.onAuthExpired != nil {
		logger.Info().Str("login_url", c.loginURL).Msg("auth expired, invoking login redirect hook")
		c.onAuthExpired(c.loginURL)
	}
	return &Error{
		Kind:       KindAuthExpired,
		StatusCode: statusCode,
		Message:    normalizeErrorMessage(statusCode, payload),
	}
}

// isAuthPath reports whether the path belongs to the login/registration/
// refresh surface, where a 401 must not start a refresh cycle.
func isAuthPath(path string) bool {
	for _, fragment := range []string{"/login", "/register", "/refresh"} {
		if strings.Contains(path, fragment) {
			return true
		}
	}
	return false
}

func unmarshalPayload(payload []byte, out any) error {
	if out == nil || len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return &Error{Kind: KindAPI, Message: "malformed response payload: " + err.Error(), cause: err}
	}
	return nil
}

package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	goerrors "errors"
)

// Kind classifies an API failure. Consumers branch on kinds, never on
// transport-specific error structures.
type Kind string

const (
	// KindAuthExpired is a 401 that persisted after one refresh attempt.
	// Terminal: local identity has been cleared.
	KindAuthExpired Kind = "auth_expired"

	// KindTransient is a 5xx that survived the local retry budget.
	KindTransient Kind = "transient"

	// KindRateLimited is a 429. Never retried automatically.
	KindRateLimited Kind = "rate_limited"

	// KindValidation is a 400/422 with structured field errors.
	KindValidation Kind = "validation"

	// KindNetwork means no response was received at all.
	KindNetwork Kind = "network"

	// KindAPI is any other non-success response.
	KindAPI Kind = "api"
)

// Error is the single error shape surfaced to consumers.
type Error struct {
	Kind       Kind
	StatusCode int
	Message    string
	cause      error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// KindOf returns the Kind of err, or "" when err is not an api error.
func KindOf(err error) Kind {
	var apiErr *Error
	if goerrors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}

func IsAuthExpired(err error) bool { return KindOf(err) == KindAuthExpired }
func IsTransient(err error) bool   { return KindOf(err) == KindTransient }
func IsRateLimited(err error) bool { return KindOf(err) == KindRateLimited }
func IsValidation(err error) bool  { return KindOf(err) == KindValidation }
func IsNetwork(err error) bool     { return KindOf(err) == KindNetwork }

// errorBody covers the two backend error shapes this layer must parse:
// {"detail": "..."} and {"detail": [{"loc": [...], "msg": "..."}]}, plus the
// {"message": "..."} fallback some endpoints use.
type errorBody struct {
	Detail  json.RawMessage `json:"detail,omitempty"`
	Message string          `json:"message,omitempty"`
}

type fieldError struct {
	Loc []any  `json:"loc,omitempty"`
	Msg string `json:"msg"`
}

// normalizeErrorMessage flattens an error response body into one
// human-readable string. Structured field errors become "field: msg; ...";
// anything unparseable falls back to the status text.
func normalizeErrorMessage(statusCode int, body []byte) string {
	fallback := http.StatusText(statusCode)
	if len(body) == 0 {
		return fallback
	}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return fallback
	}

	if len(eb.Detail) > 0 {
		var detail string
		if err := json.Unmarshal(eb.Detail, &detail); err == nil {
			return detail
		}

		var fieldErrors []fieldError
		if err := json.Unmarshal(eb.Detail, &fieldErrors); err == nil && len(fieldErrors) > 0 {
			parts := make([]string, 0, len(fieldErrors))
			for _, fe := range fieldErrors {
				if field := joinLoc(fe.Loc); field != "" {
					parts = append(parts, field+": "+fe.Msg)
				} else {
					parts = append(parts, fe.Msg)
				}
			}
			return strings.Join(parts, "; ")
		}
	}

	if eb.Message != "" {
		return eb.Message
	}
	return fallback
}

// joinLoc renders a structured field location ["body", "price"] as
// "body.price". Numeric path elements (array indices) are included as-is.
func joinLoc(loc []any) string {
	parts := make([]string, 0, len(loc))
	for _, l := range loc {
		switch v := l.(type) {
		case string:
			parts = append(parts, v)
		case float64:
			parts = append(parts, fmt.Sprintf("%d", int(v)))
		}
	}
	return strings.Join(parts, ".")
}

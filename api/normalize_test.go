package api

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeErrorMessage(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		body       string
		want       string
	}{
		{
			name:       "string detail",
			statusCode: 400,
			body:       `{"detail": "listing not available"}`,
			want:       "listing not available",
		},
		{
			name:       "field errors flattened",
			statusCode: 422,
			body:       `{"detail": [{"loc": ["body", "price"], "msg": "must be positive"}, {"loc": ["body", "title"], "msg": "required"}]}`,
			want:       "body.price: must be positive; body.title: required",
		},
		{
			name:       "numeric loc elements",
			statusCode: 422,
			body:       `{"detail": [{"loc": ["body", "items", 0, "qty"], "msg": "too large"}]}`,
			want:       "body.items.0.qty: too large",
		},
		{
			name:       "field error without loc",
			statusCode: 422,
			body:       `{"detail": [{"msg": "invalid payload"}]}`,
			want:       "invalid payload",
		},
		{
			name:       "message fallback",
			statusCode: 403,
			body:       `{"message": "insufficient permissions"}`,
			want:       "insufficient permissions",
		},
		{
			name:       "unparseable body falls back to status text",
			statusCode: 500,
			body:       `<html>oops</html>`,
			want:       "Internal Server Error",
		},
		{
			name:       "empty body falls back to status text",
			statusCode: 429,
			body:       "",
			want:       "Too Many Requests",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, normalizeErrorMessage(tt.statusCode, []byte(tt.body)))
		})
	}
}

func TestIsAuthPath(t *testing.T) {
	require.True(t, isAuthPath("/auth/login"))
	require.True(t, isAuthPath("/users/register"))
	require.True(t, isAuthPath("/session/refresh"))
	require.False(t, isAuthPath("/listings"))
	require.False(t, isAuthPath("/orders"))
}

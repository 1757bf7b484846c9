package api_test

import (
	"errors"
	"net/http"
	"testing"

	"github.com/jrsteele09/go-session-client/api"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	err := &api.Error{Kind: api.KindRateLimited, StatusCode: http.StatusTooManyRequests, Message: "slow down"}

	require.Equal(t, api.KindRateLimited, api.KindOf(err))
	require.True(t, api.IsRateLimited(err))
	require.False(t, api.IsTransient(err))
	require.Equal(t, api.Kind(""), api.KindOf(errors.New("plain")))
}

func TestErrorMessage(t *testing.T) {
	err := &api.Error{Kind: api.KindValidation, StatusCode: 422, Message: "price: must be positive"}
	require.Equal(t, "validation (422): price: must be positive", err.Error())

	err = &api.Error{Kind: api.KindNetwork, Message: "connection refused"}
	require.Equal(t, "network: connection refused", err.Error())
}

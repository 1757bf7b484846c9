package identity_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jrsteele09/go-session-client/identity"
	"github.com/stretchr/testify/require"
)

func TestEventStream(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		payload, err := json.Marshal(identity.Event{
			Type: identity.EventTokenRefreshed,
			Session: &identity.Session{
				AccessToken: "rotated",
			},
		})
		require.NoError(t, err)
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, payload))

		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type": "signed_out"}`)))

		// Hold the connection open until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	stream := identity.NewEventStream(context.Background(), wsURL)
	defer stream.Close()

	first := receiveEvent(t, stream)
	require.Equal(t, identity.EventTokenRefreshed, first.Type)
	require.NotNil(t, first.Session)
	require.Equal(t, "rotated", first.Session.AccessToken)

	second := receiveEvent(t, stream)
	require.Equal(t, identity.EventSignedOut, second.Type)
	require.Nil(t, second.Session)
}

func TestEventStreamCloseClosesChannel(t *testing.T) {
	// Nothing is listening on this address; the stream just retries until
	// closed, then the channel shuts.
	stream := identity.NewEventStream(context.Background(), "ws://127.0.0.1:1/session/events")
	stream.Close()

	select {
	case _, ok := <-stream.Events():
		require.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("events channel was not closed")
	}
}

func receiveEvent(t *testing.T, stream *identity.EventStream) identity.Event {
	t.Helper()

	select {
	case event, ok := <-stream.Events():
		require.True(t, ok)
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return identity.Event{}
	}
}

package identity

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// EventType identifies an auth-state change pushed by the identity provider.
type EventType string

const (
	EventSignedIn       EventType = "signed_in"
	EventSignedOut      EventType = "signed_out"
	EventTokenRefreshed EventType = "token_refreshed"
)

// Event is a single auth-state change. Session is present for signed_in and
// token_refreshed events.
type Event struct {
	Type    EventType `json:"type"`
	Session *Session  `json:"session,omitempty"`
}

const (
	eventReconnectBaseDelay = time.Second
	eventReconnectMaxDelay  = 30 * time.Second
)

// EventStream maintains a websocket subscription to the identity provider's
// auth-state event feed. It reconnects with capped exponential backoff and
// closes its channel when the context is cancelled.
type EventStream struct {
	wsURL  string
	dialer *websocket.Dialer
	events chan Event
	cancel context.CancelFunc
}

// NewEventStream connects to wsURL (e.g. "ws://host/session/events") and
// starts delivering events. Callers consume Events() and call Close when done.
func NewEventStream(ctx context.Context, wsURL string) *EventStream {
	ctx, cancel := context.WithCancel(ctx)
	s := &EventStream{
		wsURL:  wsURL,
		dialer: websocket.DefaultDialer,
		events: make(chan Event, 8),
		cancel: cancel,
	}
	go s.run(ctx)
	return s
}

// Events returns the stream of auth-state changes. The channel is closed on
// Close or context cancellation.
func (s *EventStream) Events() <-chan Event {
	return s.events
}

// Close stops the stream and closes the events channel.
func (s *EventStream) Close() {
	s.cancel()
}

func (s *EventStream) run(ctx context.Context) {
	defer close(s.events)

	delay := eventReconnectBaseDelay
	for {
		if err := s.readLoop(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Dur("retry_in", delay).Msg("auth event stream disconnected")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		if delay *= 2; delay > eventReconnectMaxDelay {
			delay = eventReconnectMaxDelay
		}
	}
}

func (s *EventStream) readLoop(ctx context.Context) error {
	conn, _, err := s.dialer.DialContext(ctx, s.wsURL, nil)
	if err != nil {
		return errors.Wrap(err, "[EventStream.readLoop] dial")
	}
	defer conn.Close()

	// Unblock ReadMessage when the context is cancelled
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return errors.Wrap(err, "[EventStream.readLoop] read")
		}

		var event Event
		if err := json.Unmarshal(data, &event); err != nil {
			log.Warn().Err(err).Msg("skipping malformed auth event")
			continue
		}

		select {
		case s.events <- event:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

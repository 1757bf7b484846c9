package session

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/go-session-client/identity"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const refreshTimeout = 30 * time.Second

// Snapshot is the immutable state handed to consumers. Loaded starts false
// and becomes true exactly once, whether or not the initial fetch succeeded;
// a consumer can never observe a store stuck in the loading state.
type Snapshot struct {
	Session *identity.Session
	User    *identity.User
	Loaded  bool
}

// Listener is invoked on every committed state transition.
type Listener func(Snapshot)

// Store is the process-wide authoritative record of who is signed in. Many
// independent consumers subscribe to the same store instead of each fetching
// identity state themselves. The first subscriber (or Snapshot call) triggers
// exactly one lazy initialization fetch.
type Store struct {
	provider identity.Provider

	initOnce sync.Once

	mu          sync.Mutex
	snapshot    Snapshot
	subscribers map[int]Listener
	nextID      int

	wake      <-chan struct{}
	events    <-chan identity.Event
	done      chan struct{}
	closeOnce sync.Once
}

type StoreOption func(*Store)

// WithWakeSignal attaches a wake channel: each signal triggers a passive
// re-fetch of the session (the refocus/visibility analogue). Failures are
// logged and swallowed.
func WithWakeSignal(wake <-chan struct{}) StoreOption {
	return func(s *Store) {
		s.wake = wake
	}
}

// WithAuthEvents attaches the identity provider's auth-state event stream.
// Sign-out clears the session immediately; sign-in and token-refreshed
// events replace it.
func WithAuthEvents(events <-chan identity.Event) StoreOption {
	return func(s *Store) {
		s.events = events
	}
}

// NewStore creates a session store. The store is inert until the first
// Subscribe or Snapshot call triggers initialization.
func NewStore(provider identity.Provider, options ...StoreOption) (*Store, error) {
	if provider == nil {
		return nil, errors.New("[NewStore] identity provider is required")
	}

	s := &Store{
		provider:    provider,
		subscribers: make(map[int]Listener),
		done:        make(chan struct{}),
	}
	for _, opt := range options {
		opt(s)
	}

	if s.wake != nil || s.events != nil {
		go s.watch()
	}
	return s, nil
}

// Snapshot returns the current state synchronously and triggers lazy
// initialization on first access.
func (s *Store) Snapshot() Snapshot {
	s.ensureInit()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot
}

// Subscribe registers a listener for every state transition and returns its
// unsubscribe function. Add and remove are O(1). The first subscription
// triggers lazy initialization.
func (s *Store) Subscribe(listener Listener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subscribers[id] = listener
	s.mu.Unlock()

	s.ensureInit()

	return func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}

// Refresh re-fetches the current session, replaces the snapshot and notifies
// listeners. It is the explicit trigger used after known mutations (login,
// logout, credential rotation). Unlike initialization it reports failure to
// the caller; state is left untouched on error.
func (s *Store) Refresh(ctx context.Context) error {
	session, err := s.provider.GetSession(ctx)
	if err != nil {
		return errors.Wrap(err, "[Store.Refresh] GetSession")
	}
	s.commit(session)
	return nil
}

// Close releases the wake/event subscriptions. Best-effort teardown, not
// correctness-critical.
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

// ensureInit starts the one-time initialization fetch. Concurrent callers
// all piggyback on the same operation; once settled it is never re-created.
func (s *Store) ensureInit() {
	s.initOnce.Do(func() {
		go s.initialize()
	})
}

// initialize performs the single lazy session fetch. Loaded becomes true on
// every path out of here, including fetch failure.
func (s *Store) initialize() {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	session, err := s.provider.GetSession(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("session store initialization fetch failed")
		session = nil
	}
	s.commit(session)
}

// commit replaces the snapshot and synchronously notifies every currently
// subscribed listener. Listeners run outside the state lock over a stable
// copy, so unsubscribing during notification is safe.
func (s *Store) commit(session *identity.Session) {
	snapshot := Snapshot{Session: session, Loaded: true}
	if session != nil {
		snapshot.User = session.User
	}

	s.mu.Lock()
	s.snapshot = snapshot
	listeners := make([]Listener, 0, len(s.subscribers))
	for _, listener := range s.subscribers {
		listeners = append(listeners, listener)
	}
	s.mu.Unlock()

	for _, listener := range listeners {
		listener(snapshot)
	}
}

// watch drives passive refreshes from wake signals and auth events until the
// store is closed.
func (s *Store) watch() {
	for {
		select {
		case <-s.done:
			return
		case _, ok := <-s.wake:
			if !ok {
				s.wake = nil
				continue
			}
			s.passiveRefresh()
		case event, ok := <-s.events:
			if !ok {
				s.events = nil
				continue
			}
			s.handleEvent(event)
		}
	}
}

func (s *Store) handleEvent(event identity.Event) {
	switch event.Type {
	case identity.EventSignedOut:
		s.commit(nil)
	case identity.EventSignedIn, identity.EventTokenRefreshed:
		if event.Session != nil {
			s.commit(event.Session)
			return
		}
		s.passiveRefresh()
	default:
		log.Debug().Str("type", string(event.Type)).Msg("ignoring unknown auth event")
	}
}

// passiveRefresh re-fetches and republishes without surfacing errors.
func (s *Store) passiveRefresh() {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	if err := s.Refresh(ctx); err != nil {
		log.Warn().Err(err).Msg("passive session refresh failed")
	}
}

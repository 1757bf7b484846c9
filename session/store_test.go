package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jrsteele09/go-session-client/identity"
	"github.com/jrsteele09/go-session-client/identity/providerfake"
	internalerrors "github.com/jrsteele09/go-session-client/internal/errors"
	"github.com/jrsteele09/go-session-client/session"
	"github.com/stretchr/testify/require"
)

func testSession(accessToken string) *identity.Session {
	return &identity.Session{
		AccessToken: accessToken,
		TokenType:   "bearer",
		ExpiresAt:   time.Now().Add(time.Hour),
		User: &identity.User{
			ID:    "user-1",
			Email: "john.doe@example.com",
		},
	}
}

func waitLoaded(t *testing.T, store *session.Store) session.Snapshot {
	t.Helper()

	require.Eventually(t, func() bool {
		return store.Snapshot().Loaded
	}, time.Second, 5*time.Millisecond)
	return store.Snapshot()
}

func TestLoadedBecomesTrueOnFetchFailure(t *testing.T) {
	provider := providerfake.NewFakeProvider()
	provider.GetSessionFunc = func(context.Context) (*identity.Session, error) {
		return nil, internalerrors.ErrInternal
	}

	store, err := session.NewStore(provider)
	require.NoError(t, err)

	require.False(t, store.Snapshot().Loaded)

	snapshot := waitLoaded(t, store)
	require.True(t, snapshot.Loaded)
	require.Nil(t, snapshot.Session)
	require.Nil(t, snapshot.User)
	require.Equal(t, 1, provider.GetSessionCalls())
}

func TestTwoSubscribersSingleInitializationFetch(t *testing.T) {
	provider := providerfake.NewFakeProvider()
	want := testSession("access-1")
	provider.GetSessionFunc = func(context.Context) (*identity.Session, error) {
		time.Sleep(20 * time.Millisecond) // Both subscriptions land before the fetch resolves
		return want, nil
	}

	store, err := session.NewStore(provider)
	require.NoError(t, err)

	var mu sync.Mutex
	received := make([]session.Snapshot, 0, 2)
	listener := func(snapshot session.Snapshot) {
		mu.Lock()
		received = append(received, snapshot)
		mu.Unlock()
	}

	unsubscribeA := store.Subscribe(listener)
	defer unsubscribeA()
	unsubscribeB := store.Subscribe(listener)
	defer unsubscribeB()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 2
	}, time.Second, 5*time.Millisecond)

	require.Equal(t, 1, provider.GetSessionCalls())

	mu.Lock()
	defer mu.Unlock()
	for _, snapshot := range received {
		require.True(t, snapshot.Loaded)
		require.Empty(t, cmp.Diff(want, snapshot.Session))
		require.Empty(t, cmp.Diff(want.User, snapshot.User))
	}
}

func TestRefreshNotifiesSynchronously(t *testing.T) {
	provider := providerfake.NewFakeProvider()
	store, err := session.NewStore(provider)
	require.NoError(t, err)
	waitLoaded(t, store)

	var mu sync.Mutex
	notifications := 0
	unsubscribe := store.Subscribe(func(session.Snapshot) {
		mu.Lock()
		notifications++
		mu.Unlock()
	})
	defer unsubscribe()

	provider.GetSessionFunc = func(context.Context) (*identity.Session, error) {
		return testSession("access-2"), nil
	}
	require.NoError(t, store.Refresh(context.Background()))

	// Notification happened before Refresh returned
	mu.Lock()
	require.Equal(t, 1, notifications)
	mu.Unlock()
	require.Equal(t, "access-2", store.Snapshot().Session.AccessToken)
}

func TestRefreshErrorLeavesStateUntouched(t *testing.T) {
	provider := providerfake.NewFakeProvider()
	provider.GetSessionFunc = func(context.Context) (*identity.Session, error) {
		return testSession("access-1"), nil
	}

	store, err := session.NewStore(provider)
	require.NoError(t, err)
	waitLoaded(t, store)

	provider.GetSessionFunc = func(context.Context) (*identity.Session, error) {
		return nil, internalerrors.ErrInternal
	}
	require.Error(t, store.Refresh(context.Background()))

	snapshot := store.Snapshot()
	require.True(t, snapshot.Loaded)
	require.NotNil(t, snapshot.Session)
	require.Equal(t, "access-1", snapshot.Session.AccessToken)
}

func TestUnsubscribeStopsNotifications(t *testing.T) {
	provider := providerfake.NewFakeProvider()
	store, err := session.NewStore(provider)
	require.NoError(t, err)
	waitLoaded(t, store)

	var mu sync.Mutex
	notifications := 0
	unsubscribe := store.Subscribe(func(session.Snapshot) {
		mu.Lock()
		notifications++
		mu.Unlock()
	})
	unsubscribe()

	require.NoError(t, store.Refresh(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	require.Zero(t, notifications)
}

func TestUnsubscribeDuringNotification(t *testing.T) {
	provider := providerfake.NewFakeProvider()
	store, err := session.NewStore(provider)
	require.NoError(t, err)
	waitLoaded(t, store)

	var unsubscribeB func()
	var mu sync.Mutex
	bNotifications := 0

	unsubscribeA := store.Subscribe(func(session.Snapshot) {
		unsubscribeB() // Listeners may unsubscribe others mid-publish
	})
	defer unsubscribeA()
	unsubscribeB = store.Subscribe(func(session.Snapshot) {
		mu.Lock()
		bNotifications++
		mu.Unlock()
	})

	require.NoError(t, store.Refresh(context.Background()))
	mu.Lock()
	firstRound := bNotifications
	mu.Unlock()

	// B is gone for every subsequent publish
	require.NoError(t, store.Refresh(context.Background()))
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, firstRound, bNotifications)
}

func TestSignedOutEventClearsSession(t *testing.T) {
	provider := providerfake.NewFakeProvider()
	provider.GetSessionFunc = func(context.Context) (*identity.Session, error) {
		return testSession("access-1"), nil
	}

	events := make(chan identity.Event)
	store, err := session.NewStore(provider, session.WithAuthEvents(events))
	require.NoError(t, err)
	defer store.Close()
	waitLoaded(t, store)
	require.NotNil(t, store.Snapshot().Session)

	events <- identity.Event{Type: identity.EventSignedOut}

	require.Eventually(t, func() bool {
		return store.Snapshot().Session == nil
	}, time.Second, 5*time.Millisecond)
}

func TestTokenRefreshedEventReplacesSession(t *testing.T) {
	provider := providerfake.NewFakeProvider()
	events := make(chan identity.Event)
	store, err := session.NewStore(provider, session.WithAuthEvents(events))
	require.NoError(t, err)
	defer store.Close()
	waitLoaded(t, store)

	events <- identity.Event{Type: identity.EventTokenRefreshed, Session: testSession("rotated")}

	require.Eventually(t, func() bool {
		snapshot := store.Snapshot()
		return snapshot.Session != nil && snapshot.Session.AccessToken == "rotated"
	}, time.Second, 5*time.Millisecond)
}

func TestWakeSignalTriggersPassiveRefresh(t *testing.T) {
	provider := providerfake.NewFakeProvider()
	wake := make(chan struct{})
	store, err := session.NewStore(provider, session.WithWakeSignal(wake))
	require.NoError(t, err)
	defer store.Close()
	waitLoaded(t, store)
	require.Equal(t, 1, provider.GetSessionCalls())

	wake <- struct{}{}

	require.Eventually(t, func() bool {
		return provider.GetSessionCalls() == 2
	}, time.Second, 5*time.Millisecond)
}

func TestDefaultAccessor(t *testing.T) {
	session.ResetDefault()
	require.Nil(t, session.Default())

	store, err := session.NewStore(providerfake.NewFakeProvider())
	require.NoError(t, err)

	session.SetDefault(store)
	require.Same(t, store, session.Default())

	session.ResetDefault()
	require.Nil(t, session.Default())
}

package providerfake

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-session-client/identity"
)

var _ identity.Provider = (*FakeProvider)(nil)

// FakeProvider is a scriptable in-memory identity provider for tests.
type FakeProvider struct {
	lock sync.Mutex

	GetSessionFunc     func(ctx context.Context) (*identity.Session, error)
	RefreshSessionFunc func(ctx context.Context) (*identity.Session, error)

	getSessionCalls     int
	refreshSessionCalls int
}

func NewFakeProvider() *FakeProvider {
	return &FakeProvider{}
}

func (f *FakeProvider) GetSession(ctx context.Context) (*identity.Session, error) {
	f.lock.Lock()
	f.getSessionCalls++
	fn := f.GetSessionFunc
	f.lock.Unlock()

	if fn == nil {
		return nil, nil
	}
	return fn(ctx)
}

func (f *FakeProvider) RefreshSession(ctx context.Context) (*identity.Session, error) {
	f.lock.Lock()
	f.refreshSessionCalls++
	fn := f.RefreshSessionFunc
	f.lock.Unlock()

	if fn == nil {
		return nil, nil
	}
	return fn(ctx)
}

// GetSessionCalls returns how many times GetSession was invoked.
func (f *FakeProvider) GetSessionCalls() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.getSessionCalls
}

// RefreshSessionCalls returns how many times RefreshSession was invoked.
func (f *FakeProvider) RefreshSessionCalls() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.refreshSessionCalls
}

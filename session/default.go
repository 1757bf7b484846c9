package session

import "sync"

// The package keeps exactly one process-wide store so every consumer observes
// the same identity state. The default is set explicitly at application
// startup and resettable between test cases.
var (
	defaultMu    sync.Mutex
	defaultStore *Store
)

// Default returns the process-wide store, or nil when none has been set.
func Default() *Store {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultStore
}

// SetDefault installs the process-wide store. Any previously installed store
// is closed.
func SetDefault(s *Store) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultStore != nil {
		defaultStore.Close()
	}
	defaultStore = s
}

// ResetDefault closes and clears the process-wide store. Intended for tests.
func ResetDefault() {
	SetDefault(nil)
}

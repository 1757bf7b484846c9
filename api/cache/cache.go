package cache

import (
	"context"
	"net/url"
	"time"
)

// DefaultTTL is the fixed lifetime of cached read responses. There is no
// invalidation API at this layer: mutations elsewhere do not evict matching
// reads, entries simply age out.
const DefaultTTL = 5 * time.Minute

// Store is a time-bounded store of successful read responses keyed by
// request identity. The TTL is fixed per instance.
type Store interface {
	// Get retrieves a cached payload. Returns the payload, whether it was
	// found (and fresh), and any error.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a payload under key, timestamped now.
	Set(ctx context.Context, key string, payload []byte) error
}

// Key derives the cache key from the request identity. It is a pure function
// of method, path and query: url.Values.Encode sorts by key, so two logically
// identical requests always map to the same string.
func Key(method, path string, query url.Values) string {
	if len(query) == 0 {
		return method + " " + path
	}
	return method + " " + path + "?" + query.Encode()
}

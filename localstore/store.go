package localstore

// Store is a small durable key-value store. The SDK uses it only as the
// fallback location for the legacy direct-login credential and its companion
// refresh credential (exactly two keys).
type Store interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
}

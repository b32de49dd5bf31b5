// Handles on-disk storage of cached HTTP responses
package cache

// GenericCache interface for caching operations
type GenericCache interface {
	// retrieves cached data if it exists.
	// returns nil, nil when not found
	Get(key string) ([]byte, error)
	// stores data under key, evicting older entries if needed
	Set(key string, value []byte) error
	// removes the entry for key, if any
	Delete(key string) error
	// initializes the cache (e.g., creates necessary directories)
	Init() error
	// total bytes currently stored
	Size() int64
}

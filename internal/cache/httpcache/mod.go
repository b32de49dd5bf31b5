// HTTP response caching on top of a GenericCache, following standard
// Cache-Control, ETag and Last-Modified semantics.
package httpcache

import "github.com/iTrooz/netkit/internal/cache"

func New(cache cache.GenericCache) *HTTPCache {
	return &HTTPCache{
		cache: cache,
	}
}

package request

import (
	"strconv"
	"strings"
	"time"
)

// CacheDirective is the request-side cache policy sent as Cache-Control.
type CacheDirective struct {
	MaxAge  time.Duration
	NoCache bool
	NoStore bool
}

var (
	// DefaultCacheDirective is shared by every builder, mutating ones included.
	// Callers that must never be served from cache pass NoCache or NoStore.
	DefaultCacheDirective = MaxAge(10 * time.Minute)

	// NoCache forces a network round trip; the response may still be stored.
	NoCache = CacheDirective{NoCache: true}

	// NoStore bypasses the cache entirely.
	NoStore = CacheDirective{NoCache: true, NoStore: true}
)

// MaxAge accepts cached responses up to d old.
func MaxAge(d time.Duration) CacheDirective {
	return CacheDirective{MaxAge: d}
}

// String renders the directive as a Cache-Control header value.
func (c CacheDirective) String() string {
	var parts []string
	if c.NoCache {
		parts = append(parts, "no-cache")
	}
	if c.NoStore {
		parts = append(parts, "no-store")
	}
	if !c.NoCache && !c.NoStore {
		parts = append(parts, "max-age="+strconv.FormatInt(int64(c.MaxAge/time.Second), 10))
	}
	return strings.Join(parts, ", ")
}

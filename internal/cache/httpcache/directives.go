package httpcache

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Directives represents parsed Cache-Control directives.
type Directives struct {
	NoStore        bool
	NoCache        bool
	MaxAge         *time.Duration
	MaxStale       *time.Duration
	MustRevalidate bool
	OnlyIfCached   bool
	Public         bool
	Private        bool
}

// ParseCacheControl parses a Cache-Control header value. Unknown directives
// are ignored.
func ParseCacheControl(header string) Directives {
	var d Directives
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		key, value, hasValue := strings.Cut(part, "=")
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.Trim(strings.TrimSpace(value), "\"")

		switch key {
		case "no-store":
			d.NoStore = true
		case "no-cache":
			d.NoCache = true
		case "must-revalidate":
			d.MustRevalidate = true
		case "only-if-cached":
			d.OnlyIfCached = true
		case "public":
			d.Public = true
		case "private":
			d.Private = true
		case "max-age":
			if seconds, ok := parseSeconds(value); ok {
				d.MaxAge = &seconds
			}
		case "max-stale":
			// max-stale without a value accepts any staleness
			if !hasValue {
				forever := time.Duration(1<<63 - 1)
				d.MaxStale = &forever
			} else if seconds, ok := parseSeconds(value); ok {
				d.MaxStale = &seconds
			}
		}
	}
	return d
}

func parseSeconds(value string) (time.Duration, bool) {
	seconds, err := strconv.ParseInt(value, 10, 64)
	if err != nil || seconds < 0 {
		return 0, false
	}
	if seconds > int64((1<<63-1)/time.Second) {
		return time.Duration(1<<63 - 1), true
	}
	return time.Duration(seconds) * time.Second, true
}

func parseHTTPTime(header string) (time.Time, bool) {
	if header == "" {
		return time.Time{}, false
	}
	t, err := http.ParseTime(header)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// age is the current age of the entry, counting the Age header the origin
// reported when it was stored.
func (e *Entry) age(now time.Time) time.Duration {
	age := now.Sub(e.StoredAt)
	if age < 0 {
		age = 0
	}
	if seconds, ok := parseSeconds(e.Header.Get("Age")); ok {
		age += seconds
	}
	return age
}

// lifetime is how long the entry stays fresh. Origin headers win; when the
// origin says nothing the request's max-age acts as a client-side TTL.
func (e *Entry) lifetime(reqCC Directives) time.Duration {
	respCC := ParseCacheControl(e.Header.Get("Cache-Control"))
	if respCC.MaxAge != nil {
		return *respCC.MaxAge
	}
	if expires, ok := parseHTTPTime(e.Header.Get("Expires")); ok {
		date, ok := parseHTTPTime(e.Header.Get("Date"))
		if !ok {
			date = e.StoredAt
		}
		if expires.After(date) {
			return expires.Sub(date)
		}
		return 0
	}
	if reqCC.MaxAge != nil {
		return *reqCC.MaxAge
	}
	return 0
}

// Fresh reports whether the entry may be served without contacting the origin.
func (e *Entry) Fresh(reqCC Directives, now time.Time) bool {
	respCC := ParseCacheControl(e.Header.Get("Cache-Control"))
	if respCC.NoCache || reqCC.NoCache {
		return false
	}

	age := e.age(now)
	if reqCC.MaxAge != nil && age > *reqCC.MaxAge {
		return false
	}

	lifetime := e.lifetime(reqCC)
	if age < lifetime {
		return true
	}
	if reqCC.MaxStale != nil && !respCC.MustRevalidate {
		return age-lifetime <= *reqCC.MaxStale
	}
	return false
}

// HasValidators reports whether the entry can be revalidated conditionally.
func (e *Entry) HasValidators() bool {
	return e.Header.Get("ETag") != "" || e.Header.Get("Last-Modified") != ""
}

// AddConditionalHeaders adds If-None-Match and If-Modified-Since to req.
func (e *Entry) AddConditionalHeaders(req *http.Request) {
	if etag := e.Header.Get("ETag"); etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	if lastModified := e.Header.Get("Last-Modified"); lastModified != "" {
		req.Header.Set("If-Modified-Since", lastModified)
	}
}

// cacheableStatus lists status codes that are cacheable by default.
var cacheableStatus = map[int]bool{
	http.StatusOK:                   true,
	http.StatusNonAuthoritativeInfo: true,
	http.StatusNoContent:            true,
	http.StatusMultipleChoices:      true,
	http.StatusMovedPermanently:     true,
	http.StatusPermanentRedirect:    true,
	http.StatusNotFound:             true,
	http.StatusMethodNotAllowed:     true,
	http.StatusGone:                 true,
	http.StatusRequestURITooLong:    true,
	http.StatusNotImplemented:       true,
}

// Storable reports whether resp to req may be written to the cache.
func Storable(req *http.Request, resp *http.Response) bool {
	if req.Method != http.MethodGet {
		return false
	}
	if !cacheableStatus[resp.StatusCode] {
		return false
	}
	if ParseCacheControl(req.Header.Get("Cache-Control")).NoStore {
		return false
	}
	if ParseCacheControl(resp.Header.Get("Cache-Control")).NoStore {
		return false
	}
	return resp.Header.Get("Vary") != "*"
}

package httpcache

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// X-Cache values set on every response passing through the Transport
const (
	XCache             = "X-Cache"
	CacheHit           = "HIT"
	CacheMiss          = "MISS"
	CacheRevalidated   = "REVALIDATED"
	CacheUnsatisfiable = "UNSATISFIABLE"
)

// headers a 304 must not overwrite on the stored entry
var notUpdatedOn304 = map[string]bool{
	"Content-Length":    true,
	"Content-Encoding":  true,
	"Transfer-Encoding": true,
	"Connection":        true,
}

// Transport serves GET requests from the cache when fresh, revalidates stale
// entries that carry validators and stores cacheable responses once their
// body has been read completely.
type Transport struct {
	Cache *HTTPCache
	Next  http.RoundTripper
	// Now defaults to time.Now
	Now func() time.Time
}

func (t *Transport) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	reqCC := ParseCacheControl(req.Header.Get("Cache-Control"))
	if t.Cache == nil || req.Method != http.MethodGet || reqCC.NoStore {
		return t.forward(req)
	}

	key, err := t.Cache.GenerateKey(req)
	if err != nil {
		logrus.Debugf("Not caching %s: %v", req.URL, err)
		return t.forward(req)
	}

	var entry *Entry
	if !reqCC.NoCache {
		entry, err = t.Cache.GetKey(key)
		if err != nil {
			logrus.Errorf("Failed to get cached data for %s: %v", req.URL, err)
		}
		if entry != nil && !entry.MatchesVary(req) {
			logrus.Debugf("Cached response for %s varies from this request", req.URL)
			entry = nil
		}
	}

	if entry != nil && entry.Fresh(reqCC, t.now()) {
		logrus.Debugf("Cache hit for %s %s", req.Method, req.URL)
		resp := entry.Response(req)
		resp.Header.Set(XCache, CacheHit)
		return resp, nil
	}

	if reqCC.OnlyIfCached {
		return unsatisfiable(req), nil
	}

	outReq := req
	if entry != nil && entry.HasValidators() {
		outReq = req.Clone(req.Context())
		entry.AddConditionalHeaders(outReq)
	}

	requestedAt := t.now()
	resp, err := t.Next.RoundTrip(outReq)
	if err != nil {
		return nil, err
	}
	if resp.Header == nil {
		resp.Header = make(http.Header)
	}

	if resp.StatusCode == http.StatusNotModified && entry != nil && outReq != req {
		return t.revalidated(req, key, entry, resp, requestedAt)
	}

	if !Storable(req, resp) {
		if entry != nil && resp.StatusCode < 500 {
			// the origin no longer allows this representation to be cached
			_ = t.Cache.DeleteKey(key)
		}
		resp.Header.Set(XCache, CacheMiss)
		return resp, nil
	}

	// A body that fails or is cancelled mid-read never reaches the cache.
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if err := req.Context().Err(); err != nil {
		return nil, err
	}

	stored := &Entry{
		StatusCode:  resp.StatusCode,
		Header:      resp.Header.Clone(),
		Body:        body,
		RequestedAt: requestedAt,
		StoredAt:    t.now(),
	}
	stored.Header.Del(XCache)
	stored.RecordVary(req)
	if err := t.Cache.SetKey(key, stored); err != nil {
		logrus.Errorf("Failed to cache response for %s: %v", req.URL, err)
	}

	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	resp.Header.Set(XCache, CacheMiss)
	return resp, nil
}

func (t *Transport) forward(req *http.Request) (*http.Response, error) {
	resp, err := t.Next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.Header == nil {
		resp.Header = make(http.Header)
	}
	resp.Header.Set(XCache, CacheMiss)
	return resp, nil
}

func (t *Transport) revalidated(req *http.Request, key string, entry *Entry, notModified *http.Response, requestedAt time.Time) (*http.Response, error) {
	_, _ = io.Copy(io.Discard, notModified.Body)
	_ = notModified.Body.Close()

	for name, values := range notModified.Header {
		if notUpdatedOn304[name] {
			continue
		}
		entry.Header[name] = values
	}
	entry.Header.Del(XCache)
	entry.RecordVary(req)
	entry.RequestedAt = requestedAt
	entry.StoredAt = t.now()

	if err := t.Cache.SetKey(key, entry); err != nil {
		logrus.Errorf("Failed to refresh cached response for %s: %v", req.URL, err)
	}

	logrus.Debugf("Revalidated cached response for %s", req.URL)
	resp := entry.Response(req)
	resp.Header.Set(XCache, CacheRevalidated)
	return resp, nil
}

// unsatisfiable answers an only-if-cached request that the cache cannot serve.
func unsatisfiable(req *http.Request) *http.Response {
	resp := &http.Response{
		Status:     fmt.Sprintf("%d %s", http.StatusGatewayTimeout, http.StatusText(http.StatusGatewayTimeout)),
		StatusCode: http.StatusGatewayTimeout,
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     make(http.Header),
		Body:       http.NoBody,
		Request:    req,
	}
	resp.Header.Set(XCache, CacheUnsatisfiable)
	return resp
}

package httpcache

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

func newTransport(t *testing.T, next http.RoundTripper) (*Transport, *clock) {
	t.Helper()
	httpCache, _ := newHTTPCache(t)
	c := &clock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	return &Transport{Cache: httpCache, Next: next, Now: c.Now}, c
}

func okResponse(req *http.Request, body string, header http.Header) *http.Response {
	if header == nil {
		header = make(http.Header)
	}
	return &http.Response{
		StatusCode:    http.StatusOK,
		Header:        header,
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}

func get(t *testing.T, rt http.RoundTripper, url, cacheControl string) (*http.Response, string, error) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	if cacheControl != "" {
		req.Header.Set("Cache-Control", cacheControl)
	}
	resp, err := rt.RoundTrip(req)
	if err != nil {
		return nil, "", err
	}
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body), nil
}

func TestTransportServesFreshEntryWhileOffline(t *testing.T) {
	var online atomic.Bool
	online.Store(true)
	var calls atomic.Int32

	tr, c := newTransport(t, roundTripFunc(func(req *http.Request) (*http.Response, error) {
		calls.Add(1)
		if !online.Load() {
			return nil, errors.New("network is down")
		}
		return okResponse(req, "hello", nil), nil
	}))

	resp, body, err := get(t, tr, "https://example.com/greeting", "max-age=600")
	require.NoError(t, err)
	assert.Equal(t, "hello", body)
	assert.Equal(t, CacheMiss, resp.Header.Get(XCache))

	online.Store(false)
	c.now = c.now.Add(5 * time.Minute)

	resp, body, err = get(t, tr, "https://example.com/greeting", "max-age=600")
	require.NoError(t, err)
	assert.Equal(t, "hello", body)
	assert.Equal(t, CacheHit, resp.Header.Get(XCache))
	assert.Equal(t, int32(1), calls.Load())

	// past the window the cache no longer answers and the network error surfaces
	c.now = c.now.Add(10 * time.Minute)
	_, _, err = get(t, tr, "https://example.com/greeting", "max-age=600")
	assert.Error(t, err)
}

func TestTransportRevalidatesWithETag(t *testing.T) {
	var calls atomic.Int32
	tr, c := newTransport(t, roundTripFunc(func(req *http.Request) (*http.Response, error) {
		n := calls.Add(1)
		if n == 1 {
			return okResponse(req, "v1 body", http.Header{
				"Etag":          []string{`"v1"`},
				"Cache-Control": []string{"max-age=60"},
			}), nil
		}
		assert.Equal(t, `"v1"`, req.Header.Get("If-None-Match"))
		return &http.Response{
			StatusCode: http.StatusNotModified,
			Header:     http.Header{"Cache-Control": []string{"max-age=120"}},
			Body:       http.NoBody,
			Request:    req,
		}, nil
	}))

	_, _, err := get(t, tr, "https://example.com/doc", "")
	require.NoError(t, err)

	c.now = c.now.Add(2 * time.Minute)
	resp, body, err := get(t, tr, "https://example.com/doc", "")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "v1 body", body)
	assert.Equal(t, CacheRevalidated, resp.Header.Get(XCache))
	assert.Equal(t, "max-age=120", resp.Header.Get("Cache-Control"))

	// the refreshed entry is fresh again
	c.now = c.now.Add(time.Minute)
	resp, _, err = get(t, tr, "https://example.com/doc", "")
	require.NoError(t, err)
	assert.Equal(t, CacheHit, resp.Header.Get(XCache))
	assert.Equal(t, int32(2), calls.Load())
}

func TestTransportHonoursNoStore(t *testing.T) {
	var calls atomic.Int32
	tr, _ := newTransport(t, roundTripFunc(func(req *http.Request) (*http.Response, error) {
		calls.Add(1)
		return okResponse(req, "secret", http.Header{"Cache-Control": []string{"no-store"}}), nil
	}))

	for i := 0; i < 2; i++ {
		resp, body, err := get(t, tr, "https://example.com/secret", "max-age=600")
		require.NoError(t, err)
		assert.Equal(t, "secret", body)
		assert.Equal(t, CacheMiss, resp.Header.Get(XCache))
	}
	assert.Equal(t, int32(2), calls.Load())
}

func TestTransportRequestNoCacheSkipsLookup(t *testing.T) {
	var calls atomic.Int32
	tr, _ := newTransport(t, roundTripFunc(func(req *http.Request) (*http.Response, error) {
		calls.Add(1)
		return okResponse(req, "data", nil), nil
	}))

	_, _, err := get(t, tr, "https://example.com/data", "max-age=600")
	require.NoError(t, err)
	_, _, err = get(t, tr, "https://example.com/data", "no-cache")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())

	// the no-cache response was still stored
	resp, _, err := get(t, tr, "https://example.com/data", "max-age=600")
	require.NoError(t, err)
	assert.Equal(t, CacheHit, resp.Header.Get(XCache))
}

func TestTransportDoesNotCacheOtherMethods(t *testing.T) {
	var calls atomic.Int32
	tr, _ := newTransport(t, roundTripFunc(func(req *http.Request) (*http.Response, error) {
		calls.Add(1)
		return okResponse(req, "created", nil), nil
	}))

	for i := 0; i < 2; i++ {
		req, _ := http.NewRequest(http.MethodPost, "https://example.com/items", strings.NewReader("a=1"))
		req.Header.Set("Cache-Control", "max-age=600")
		resp, err := tr.RoundTrip(req)
		require.NoError(t, err)
		_ = resp.Body.Close()
	}
	assert.Equal(t, int32(2), calls.Load())
}

func TestTransportOnlyIfCached(t *testing.T) {
	tr, _ := newTransport(t, roundTripFunc(func(req *http.Request) (*http.Response, error) {
		t.Fatal("network must not be used")
		return nil, nil
	}))

	resp, _, err := get(t, tr, "https://example.com/never", "only-if-cached")
	require.NoError(t, err)
	assert.Equal(t, http.StatusGatewayTimeout, resp.StatusCode)
	assert.Equal(t, CacheUnsatisfiable, resp.Header.Get(XCache))
}

type failingBody struct {
	read bool
}

func (b *failingBody) Read(p []byte) (int, error) {
	if !b.read {
		b.read = true
		return copy(p, "partial"), nil
	}
	return 0, context.Canceled
}

func (b *failingBody) Close() error { return nil }

func TestTransportDoesNotStorePartialBody(t *testing.T) {
	tr, _ := newTransport(t, roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusOK, Header: http.Header{}, Body: &failingBody{}, Request: req}, nil
	}))

	_, _, err := get(t, tr, "https://example.com/stream", "max-age=600")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	req, _ := http.NewRequest(http.MethodGet, "https://example.com/stream", nil)
	entry, err := tr.Cache.GetReq(req)
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestTransportCancelledRequestNotStored(t *testing.T) {
	release := make(chan struct{})
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "100")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("first half"))
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer upstream.Close()
	defer close(release)

	tr, _ := newTransport(t, http.DefaultTransport)

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, upstream.URL+"/slow", nil)
	require.NoError(t, err)
	req.Header.Set("Cache-Control", "max-age=600")

	time.AfterFunc(100*time.Millisecond, cancel)
	_, err = tr.RoundTrip(req)
	require.Error(t, err)

	check, _ := http.NewRequest(http.MethodGet, upstream.URL+"/slow", nil)
	entry, err := tr.Cache.GetReq(check)
	require.NoError(t, err)
	assert.Nil(t, entry, "cancelled request must not leave a cache entry")
}

func TestTransportSeparatesRepresentationsByVary(t *testing.T) {
	var calls atomic.Int32
	tr, _ := newTransport(t, roundTripFunc(func(req *http.Request) (*http.Response, error) {
		calls.Add(1)
		header := http.Header{"Cache-Control": {"max-age=600"}, "Vary": {"X-Api-Version"}}
		return okResponse(req, "v"+req.Header.Get("X-Api-Version"), header), nil
	}))

	fetch := func(version string) (*http.Response, string) {
		req, err := http.NewRequest(http.MethodGet, "https://example.com/items", nil)
		require.NoError(t, err)
		req.Header.Set("X-Api-Version", version)
		resp, err := tr.RoundTrip(req)
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp, string(body)
	}

	resp, body := fetch("1")
	assert.Equal(t, "v1", body)
	assert.Equal(t, CacheMiss, resp.Header.Get(XCache))

	resp, body = fetch("2")
	assert.Equal(t, "v2", body, "a stored representation for another version must not be served")
	assert.Equal(t, CacheMiss, resp.Header.Get(XCache))

	resp, body = fetch("2")
	assert.Equal(t, "v2", body)
	assert.Equal(t, CacheHit, resp.Header.Get(XCache))
	assert.Equal(t, int32(2), calls.Load())
}

func TestTransportKeepsEncodingsApart(t *testing.T) {
	tr, _ := newTransport(t, roundTripFunc(func(req *http.Request) (*http.Response, error) {
		header := http.Header{"Cache-Control": {"max-age=600"}, "Vary": {"Accept-Encoding"}}
		if req.Header.Get("Accept-Encoding") == "zstd" {
			header.Set("Content-Encoding", "zstd")
			return okResponse(req, "zstd-bytes", header), nil
		}
		return okResponse(req, "plain", header), nil
	}))

	req, _ := http.NewRequest(http.MethodGet, "https://example.com/doc", nil)
	req.Header.Set("Accept-Encoding", "zstd")
	resp, err := tr.RoundTrip(req)
	require.NoError(t, err)
	_, _ = io.ReadAll(resp.Body)

	resp, body, err := get(t, tr, "https://example.com/doc", "")
	require.NoError(t, err)
	assert.Equal(t, "plain", body)
	assert.Empty(t, resp.Header.Get("Content-Encoding"))
	assert.Equal(t, CacheMiss, resp.Header.Get(XCache))
}

package httpcache

import (
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iTrooz/netkit/internal/cache"
)

func newHTTPCache(t *testing.T) (*HTTPCache, *cache.DiskCache) {
	t.Helper()
	disk := cache.NewGenericDisk(t.TempDir(), 1<<20)
	require.NoError(t, disk.Init())
	return New(disk), disk
}

func TestGenerateKey(t *testing.T) {
	httpCache, _ := newHTTPCache(t)

	tests := []struct {
		name    string
		method  string
		url     string
		headers map[string]string
		want    string
	}{
		{
			name:   "simple URL",
			method: "GET",
			url:    "https://example.com/api/users",
			want:   filepath.Join("https", "example.com", "api", "users", "GET.bin"),
		},
		{
			name:   "URL with query params",
			method: "GET",
			url:    "https://api.github.com/users?page=1",
			want:   filepath.Join("https", "api.github.com", "users", "GET_qc5c34f0f.bin"),
		},
		{
			name:   "root path with port",
			method: "GET",
			url:    "http://localhost:8080/",
			want:   filepath.Join("http", "localhost_8080", "GET.bin"),
		},
		{
			name:   "dot segments cannot escape",
			method: "GET",
			url:    "https://example.com/a/../../../etc/passwd",
			want:   filepath.Join("https", "example.com", "etc", "passwd", "GET.bin"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, tt.url, nil)
			require.NoError(t, err)
			got, err := httpCache.GenerateKey(req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGenerateKeyVariesOnSelectedHeaders(t *testing.T) {
	httpCache, _ := newHTTPCache(t)

	plain, _ := http.NewRequest("GET", "https://example.com/data", nil)
	jsonReq, _ := http.NewRequest("GET", "https://example.com/data", nil)
	jsonReq.Header.Set("Accept", "application/json")
	traced, _ := http.NewRequest("GET", "https://example.com/data", nil)
	traced.Header.Set("X-Trace-Id", "abc")
	zstdReq, _ := http.NewRequest("GET", "https://example.com/data", nil)
	zstdReq.Header.Set("Accept-Encoding", "zstd")

	plainKey, err := httpCache.GenerateKey(plain)
	require.NoError(t, err)
	jsonKey, err := httpCache.GenerateKey(jsonReq)
	require.NoError(t, err)
	tracedKey, err := httpCache.GenerateKey(traced)
	require.NoError(t, err)
	zstdKey, err := httpCache.GenerateKey(zstdReq)
	require.NoError(t, err)

	assert.NotEqual(t, plainKey, jsonKey)
	assert.NotEqual(t, plainKey, zstdKey, "encoded and identity bodies must not share a key")
	assert.Equal(t, plainKey, tracedKey, "unrelated headers must not change the key")
}

func TestHTTPCacheGetAndSet(t *testing.T) {
	httpCache, _ := newHTTPCache(t)

	req, err := http.NewRequest("GET", "https://example.com/api/users", nil)
	require.NoError(t, err)

	now := time.Now()
	entry := &Entry{
		StatusCode:  http.StatusOK,
		Header:      http.Header{"Content-Type": []string{"application/json"}, "Etag": []string{`"v1"`}},
		Body:        []byte(`{"users":[]}`),
		RequestedAt: now.Add(-time.Second),
		StoredAt:    now,
	}
	require.NoError(t, httpCache.SetReq(req, entry))

	got, err := httpCache.GetReq(req)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, http.StatusOK, got.StatusCode)
	assert.Equal(t, entry.Body, got.Body)
	assert.Equal(t, "application/json", got.Header.Get("Content-Type"))
	assert.Equal(t, `"v1"`, got.Header.Get("ETag"))
	assert.True(t, got.StoredAt.Equal(time.Unix(0, now.UnixNano())))
	assert.True(t, got.RequestedAt.Equal(time.Unix(0, entry.RequestedAt.UnixNano())))

	resp := got.Response(req)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, entry.Body, body)
	assert.Equal(t, int64(len(entry.Body)), resp.ContentLength)
	assert.Same(t, req, resp.Request)
}

func TestHTTPCacheMiss(t *testing.T) {
	httpCache, _ := newHTTPCache(t)

	req, _ := http.NewRequest("GET", "https://example.com/nothing", nil)
	got, err := httpCache.GetReq(req)
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestHTTPCacheCorruptEntryIsDropped(t *testing.T) {
	httpCache, disk := newHTTPCache(t)

	require.NoError(t, disk.Set("corrupt.bin", []byte("not a response")))
	got, err := httpCache.GetKey("corrupt.bin")
	assert.Error(t, err)
	assert.Nil(t, got)

	data, err := disk.Get("corrupt.bin")
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestDeserializeRejectsShortInput(t *testing.T) {
	_, err := Deserialize([]byte("x"))
	assert.Error(t, err)

	_, err = Deserialize([]byte(PREFIX + "no timing"))
	assert.Error(t, err)

	_, err = Deserialize([]byte(PREFIX + "1 two\nHTTP/1.1 200 OK\r\n\r\n"))
	assert.Error(t, err)
}

func TestSerializeEmptyBody(t *testing.T) {
	now := time.Now()
	data, err := Serialize(&Entry{StatusCode: http.StatusNoContent, Header: http.Header{}, RequestedAt: now, StoredAt: now})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), PREFIX))

	entry, err := Deserialize(data)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, entry.StatusCode)
	assert.Empty(t, entry.Body)
}

func TestEntryVaryRoundTrip(t *testing.T) {
	req, _ := http.NewRequest("GET", "https://example.com/data", nil)
	req.Header.Set("Accept-Encoding", "br, zstd")
	req.Header.Set("User-Agent", "netkit")

	now := time.Now()
	entry := &Entry{
		StatusCode:  http.StatusOK,
		Header:      http.Header{"Vary": {"accept-encoding, User-Agent"}},
		Body:        []byte("body"),
		RequestedAt: now,
		StoredAt:    now,
	}
	entry.RecordVary(req)

	data, err := Serialize(entry)
	require.NoError(t, err)
	got, err := Deserialize(data)
	require.NoError(t, err)
	assert.Equal(t, "br, zstd", got.VaryHeader.Get("Accept-Encoding"))
	assert.Equal(t, "netkit", got.VaryHeader.Get("User-Agent"))
	assert.True(t, got.MatchesVary(req))

	other := req.Clone(req.Context())
	other.Header.Del("Accept-Encoding")
	assert.False(t, got.MatchesVary(other))
}

func TestDeserializeWithoutVaryLine(t *testing.T) {
	data := []byte(PREFIX + "1 2\nHTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok")
	entry, err := Deserialize(data)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(entry.Body))
	assert.Nil(t, entry.VaryHeader)

	req, _ := http.NewRequest("GET", "https://example.com/data", nil)
	assert.True(t, entry.MatchesVary(req))
}

package httpcache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/iTrooz/netkit/internal/cache"
)

// Entry is a stored response plus the times needed to compute its age.
type Entry struct {
	StatusCode  int
	Header      http.Header
	Body        []byte
	RequestedAt time.Time
	StoredAt    time.Time
	// request values of the headers named by the response's Vary
	VaryHeader http.Header
}

type HTTPCache struct {
	cache cache.GenericCache
}

// request headers that select between representations of the same URL
var keyHeaders = []string{"Accept", "Accept-Encoding", "Accept-Language", "Authorization"}

// Generates a unique key to store a value, based on method, URL and selected headers
func (d *HTTPCache) GenerateKey(request *http.Request) (string, error) {
	if request.URL == nil || request.URL.Host == "" {
		return "", fmt.Errorf("request has no absolute URL")
	}

	// Hash query parameters
	hash := sha256.Sum256([]byte(request.URL.RawQuery))
	queryHash := hex.EncodeToString(hash[:])[:8]

	// Hash selected headers
	headersStr := ""
	for _, k := range keyHeaders {
		if v := request.Header.Values(k); len(v) > 0 {
			headersStr += k + ":" + strings.Join(v, ",") + "\n"
		}
	}
	headersHash := sha256.Sum256([]byte(headersStr))
	headersHashStr := hex.EncodeToString(headersHash[:])[:8]

	// Build path: host/path/METHOD[_qqueryhash][_hheadershash].bin
	host := strings.TrimSuffix(strings.TrimSuffix(request.URL.Host, ":80"), ":443")
	host = strings.ReplaceAll(host, ":", "_")
	pathParts := []string{request.URL.Scheme, host}

	if p := cleanPath(request.URL.Path); p != "" {
		pathParts = append(pathParts, filepath.FromSlash(p))
	}

	filename := request.Method
	if request.URL.RawQuery != "" {
		filename += "_q" + queryHash
	}
	if headersStr != "" {
		filename += "_h" + headersHashStr
	}
	filename += ".bin"

	pathParts = append(pathParts, filename)

	return filepath.Join(pathParts...), nil
}

// cleanPath drops dot segments so a key can never leave its host directory.
func cleanPath(p string) string {
	p = strings.TrimPrefix(path.Clean("/"+p), "/")
	var segments []string
	for _, s := range strings.Split(p, "/") {
		if s == "" || s == "." || s == ".." {
			continue
		}
		segments = append(segments, s)
	}
	return strings.Join(segments, "/")
}

// varyNames lists the canonical header names a response varies on.
func varyNames(header http.Header) []string {
	var names []string
	for _, value := range header.Values("Vary") {
		for _, name := range strings.Split(value, ",") {
			if name = strings.TrimSpace(name); name != "" && name != "*" {
				names = append(names, http.CanonicalHeaderKey(name))
			}
		}
	}
	return names
}

// RecordVary captures the request values selected by the entry's Vary header.
func (e *Entry) RecordVary(req *http.Request) {
	e.VaryHeader = nil
	for _, name := range varyNames(e.Header) {
		if e.VaryHeader == nil {
			e.VaryHeader = make(http.Header)
		}
		e.VaryHeader[name] = append([]string(nil), req.Header.Values(name)...)
	}
}

// MatchesVary reports whether req selects the same representation the entry
// was stored for.
func (e *Entry) MatchesVary(req *http.Request) bool {
	for _, name := range varyNames(e.Header) {
		if strings.Join(req.Header.Values(name), ",") != strings.Join(e.VaryHeader.Values(name), ",") {
			return false
		}
	}
	return true
}

func (d *HTTPCache) SetReq(request *http.Request, entry *Entry) error {
	cacheKey, err := d.GenerateKey(request)
	if err != nil {
		return fmt.Errorf("failed to generate cache key: %w", err)
	}

	return d.SetKey(cacheKey, entry)
}

func (d *HTTPCache) SetKey(requestKey string, entry *Entry) error {
	data, err := Serialize(entry)
	if err != nil {
		return fmt.Errorf("failed to serialize response: %w", err)
	}

	if err := d.cache.Set(requestKey, data); err != nil {
		return fmt.Errorf("failed to set cache: %w", err)
	}

	return nil
}

func (d *HTTPCache) GetReq(req *http.Request) (*Entry, error) {
	requestKey, err := d.GenerateKey(req)
	if err != nil {
		return nil, fmt.Errorf("failed to generate cache key: %w", err)
	}

	return d.GetKey(requestKey)
}

// GetKey returns nil, nil on a cache miss.
func (d *HTTPCache) GetKey(requestKey string) (*Entry, error) {
	data, err := d.cache.Get(requestKey)
	if err != nil {
		return nil, fmt.Errorf("failed to get cache: %w", err)
	}
	if data == nil {
		return nil, nil // Cache miss
	}

	entry, err := Deserialize(data)
	if err != nil {
		// unreadable entries are dropped and rebuilt from the network
		_ = d.cache.Delete(requestKey)
		return nil, fmt.Errorf("failed to deserialize response: %w", err)
	}
	return entry, nil
}

func (d *HTTPCache) DeleteKey(requestKey string) error {
	return d.cache.Delete(requestKey)
}

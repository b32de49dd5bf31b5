package proxy

import (
	"crypto/tls"
	"errors"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iTrooz/netkit/internal/client"
	"github.com/iTrooz/netkit/internal/config"
	"github.com/iTrooz/netkit/internal/errs"
	"github.com/iTrooz/netkit/internal/request"
)

func testServer(t *testing.T, rules config.RulesConfig) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.Client.Cache.Folder = t.TempDir()
	cfg.Rules = rules

	c, err := client.Build(cfg.Client, false)
	require.NoError(t, err)
	s, err := New(cfg, c)
	require.NoError(t, err)
	return s
}

func TestNew(t *testing.T) {
	s := testServer(t, config.RulesConfig{Mode: "whitelist"})
	assert.NotNil(t, s.GetProxy())

	_, err := New(config.Default(), nil)
	assert.Error(t, err)
}

func TestNewFailsOnMissingCA(t *testing.T) {
	cfg := config.Default()
	cfg.Client.Cache.Folder = t.TempDir()
	cfg.Server.HTTPS = config.HTTPSConfig{
		Intercept:  true,
		CACertFile: filepath.Join(t.TempDir(), "ca.pem"),
		CAKeyFile:  filepath.Join(t.TempDir(), "ca.key"),
	}
	c, err := client.Build(cfg.Client, false)
	require.NoError(t, err)

	_, err = New(cfg, c)
	assert.ErrorContains(t, err, "failed to load CA certificate")
}

func TestConfigRuleMatch(t *testing.T) {
	rule := &ConfigRule{
		CacheRule: config.CacheRule{
			BaseURI: "https://api.example.com",
			Methods: []string{"GET", "POST"},
		},
	}

	tests := []struct {
		name      string
		targetURL string
		method    string
		want      bool
	}{
		{
			name:      "matching URL and method",
			targetURL: "https://api.example.com/users",
			method:    "GET",
			want:      true,
		},
		{
			name:      "method is case insensitive",
			targetURL: "https://api.example.com/users",
			method:    "post",
			want:      true,
		},
		{
			name:      "non-matching method",
			targetURL: "https://api.example.com/users",
			method:    "DELETE",
			want:      false,
		},
		{
			name:      "non-matching base URI",
			targetURL: "https://other.example.com/users",
			method:    "GET",
			want:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := url.Parse(tt.targetURL)
			if err != nil {
				t.Fatalf("Failed to parse URL %s: %v", tt.targetURL, err)
			}

			requ := &http.Request{
				URL:    u,
				Method: tt.method,
			}

			got := rule.Match(requ)
			if got != tt.want {
				t.Errorf("ConfigRule.Match() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetTargetURLFromHost(t *testing.T) {
	requ := &http.Request{Host: "example.com:8080", URL: &url.URL{Path: "/a", RawQuery: "b=1"}}
	assert.Equal(t, "http://example.com:8080/a?b=1", getTargetURL(requ))

	requ.TLS = &tls.ConnectionState{}
	assert.Equal(t, "https://example.com:8080/a?b=1", getTargetURL(requ))
}

func TestCachePolicy(t *testing.T) {
	rules := []config.CacheRule{{BaseURI: "https://api.example.com", Methods: []string{"GET"}}}
	listed, _ := http.NewRequest(http.MethodGet, "https://api.example.com/users", nil)
	other, _ := http.NewRequest(http.MethodGet, "https://cdn.example.com/app.js", nil)

	whitelist := testServer(t, config.RulesConfig{Mode: "whitelist", Rules: rules})
	assert.Equal(t, request.MaxAge(config.DefaultCacheTTL), whitelist.cachePolicy(listed))
	assert.Equal(t, request.NoStore, whitelist.cachePolicy(other))

	blacklist := testServer(t, config.RulesConfig{Mode: "blacklist", Rules: rules})
	assert.Equal(t, request.NoStore, blacklist.cachePolicy(listed))
	assert.Equal(t, request.MaxAge(config.DefaultCacheTTL), blacklist.cachePolicy(other))
}

func TestDescriptorFor(t *testing.T) {
	s := testServer(t, config.RulesConfig{Mode: "blacklist"})

	requ, _ := http.NewRequest(http.MethodPut, "http://api.example.com/items/1", strings.NewReader(`{"a":1}`))
	requ.Header.Set("Content-Type", "application/json")
	requ.Header.Set("Connection", "keep-alive, X-Hop")
	requ.Header.Set("X-Hop", "1")
	requ.Header.Set("Proxy-Authorization", "Basic Zm9v")
	requ.Header.Set("Cache-Control", "no-cache")
	requ.Header.Set("Accept", "application/json")

	d, err := s.descriptorFor(requ)
	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, d.Method())
	assert.Equal(t, "http://api.example.com/items/1", d.URL().String())
	assert.Equal(t, request.MaxAge(config.DefaultCacheTTL), d.Cache())

	headers := d.Headers()
	assert.Equal(t, "application/json", headers.Get("Accept"))
	assert.Empty(t, headers.Get("Connection"))
	assert.Empty(t, headers.Get("X-Hop"))
	assert.Empty(t, headers.Get("Proxy-Authorization"))
	assert.Empty(t, headers.Get("Cache-Control"))

	require.NotNil(t, d.Body())
	assert.Equal(t, request.BodyRaw, d.Body().Kind())
	rc, n, err := d.Body().Open()
	require.NoError(t, err)
	body, _ := io.ReadAll(rc)
	assert.Equal(t, int64(7), n)
	assert.Equal(t, `{"a":1}`, string(body))
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusGatewayTimeout, statusFor(errs.ErrTimeout))
	assert.Equal(t, http.StatusBadRequest, statusFor(errs.ErrInvalidURL))
	assert.Equal(t, http.StatusBadGateway, statusFor(errs.ErrNetworkUnavailable))
	assert.Equal(t, http.StatusBadGateway, statusFor(errors.New("other")))
}

func TestCertStoreGeneratesOncePerHost(t *testing.T) {
	store := newCertStore()
	generated := 0
	gen := func() (*tls.Certificate, error) {
		generated++
		return &tls.Certificate{}, nil
	}

	first, err := store.Fetch("example.com", gen)
	require.NoError(t, err)
	second, err := store.Fetch("example.com", gen)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, generated)

	_, err = store.Fetch("broken.example.com", func() (*tls.Certificate, error) {
		return nil, errors.New("no key")
	})
	assert.ErrorContains(t, err, "broken.example.com")
}

package tests

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/iTrooz/netkit/internal/client"
	"github.com/iTrooz/netkit/internal/config"
	"github.com/iTrooz/netkit/internal/netstate"
	"github.com/iTrooz/netkit/internal/proxy"
)

// upstream is a test origin that counts the requests it receives
type upstream struct {
	*httptest.Server
	hits atomic.Int32
}

// fixture_upstream creates a test upstream server
func fixture_upstream() *upstream {
	u := &upstream{}
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, requ *http.Request) {
		u.hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"message": "Hello from upstream", "method": "` + requ.Method + `", "path": "` + requ.URL.Path + `"}`))
	}))
	return u
}

// fixture_config creates a test config with optional rules
func fixture_config(tempDir string, rules *config.RulesConfig) *config.Config {
	cfg := config.Default()
	cfg.Server.CacheTTL = config.Duration(time.Hour)
	cfg.Client.Cache.Folder = tempDir

	if rules != nil {
		cfg.Rules = *rules
	}

	return cfg
}

// fixture_proxy creates a proxy server with the given config and returns the server, test server, and HTTP client
func fixture_proxy(cfg *config.Config) (*proxy.Server, *httptest.Server, *http.Client, error) {
	netkit, err := client.Build(cfg.Client, false, client.WithReachability(netstate.Static(true)))
	if err != nil {
		return nil, nil, nil, err
	}

	proxyServer, err := proxy.New(cfg, netkit)
	if err != nil {
		return nil, nil, nil, err
	}

	// Create test proxy HTTP server using goproxy
	proxyTestServer := httptest.NewServer(proxyServer.GetProxy())

	// Create HTTP client that uses our proxy
	proxyURL, _ := url.Parse(proxyTestServer.URL)
	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyURL(proxyURL),
		},
		Timeout: 10 * time.Second,
	}

	return proxyServer, proxyTestServer, httpClient, nil
}

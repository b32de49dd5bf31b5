// Builds the configured HTTP client: timeouts, disk response cache,
// compression negotiation and the interceptor pipeline.
package client

import (
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iTrooz/netkit/internal/cache"
	"github.com/iTrooz/netkit/internal/cache/httpcache"
	"github.com/iTrooz/netkit/internal/config"
	"github.com/iTrooz/netkit/internal/interceptor"
	"github.com/iTrooz/netkit/internal/netstate"
)

// Client executes request descriptors through the interceptor pipeline.
// It is safe for concurrent use.
type Client struct {
	cfg          config.ClientConfig
	http         *http.Client
	cache        *cache.DiskCache
	reachability netstate.Reachability

	application []string
	network     []string
}

type options struct {
	transport    http.RoundTripper
	reachability netstate.Reachability
	application  []interceptor.Interceptor
	network      []interceptor.Interceptor
	logger       *logrus.Logger
	now          func() time.Time
}

// Option customises Build
type Option func(*options)

// WithTransport replaces the network transport, typically with a mock in tests.
// Timeouts other than the read and call timeouts are then up to that transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.transport = rt }
}

// WithReachability replaces the host network probe.
func WithReachability(r netstate.Reachability) Option {
	return func(o *options) { o.reachability = r }
}

// WithInterceptors appends application interceptors. They run once per call,
// above the cache, after the exception safety interceptor.
func WithInterceptors(i ...interceptor.Interceptor) Option {
	return func(o *options) { o.application = append(o.application, i...) }
}

// WithNetworkInterceptors appends network interceptors. They run only for
// calls that reach the network, below the cache.
func WithNetworkInterceptors(i ...interceptor.Interceptor) Option {
	return func(o *options) { o.network = append(o.network, i...) }
}

// WithLogger sets the logger used by the verbose logging interceptor.
func WithLogger(l *logrus.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock overrides the clock used for cache freshness.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// Build assembles a Client from cfg. debug installs the verbose logging
// interceptor. Every call yields an independent client; clients built with
// the same cache folder share stored entries.
func Build(cfg config.ClientConfig, debug bool, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid client config: %w", err)
	}

	o := options{reachability: netstate.InterfaceProbe{}}
	for _, opt := range opts {
		opt(&o)
	}

	disk := cache.NewGenericDisk(cfg.Cache.Folder, cfg.Cache.MaxSize)
	if err := disk.Init(); err != nil {
		return nil, fmt.Errorf("initializing response cache: %w", err)
	}

	base := o.transport
	if base == nil {
		base = newTransport(cfg)
	}

	network := []interceptor.Interceptor{interceptor.IgnoreGzip(), interceptor.Compression()}
	network = append(network, o.network...)
	if debug {
		network = append(network, interceptor.Logging(o.logger))
	}
	application := append([]interceptor.Interceptor{interceptor.Recover()}, o.application...)

	cached := &httpcache.Transport{
		Cache: httpcache.New(disk),
		Next:  interceptor.Chain(&readTimeoutTransport{next: base, timeout: cfg.ReadTimeout.Std()}, network...),
		Now:   o.now,
	}

	logrus.Debugf("Built HTTP client: cache %s (%d bytes), interceptors %v / %v",
		disk.Dir(), disk.MaxBytes(), interceptor.Names(application), interceptor.Names(network))

	return &Client{
		cfg:          cfg,
		http:         &http.Client{Transport: interceptor.Chain(cached, application...)},
		cache:        disk,
		reachability: o.reachability,
		application:  interceptor.Names(application),
		network:      interceptor.Names(network),
	}, nil
}

// HTTPClient returns a plain *http.Client running the full pipeline, with the
// configured call timeout.
func (c *Client) HTTPClient() *http.Client {
	return &http.Client{
		Transport: c.http.Transport,
		Timeout:   c.cfg.CallTimeout.Std(),
	}
}

// Cache returns the disk store backing the response cache.
func (c *Client) Cache() cache.GenericCache {
	return c.cache
}

// IsNetworkReachable reports whether the host appears to have a usable
// network. Advisory only; it does not gate calls.
func (c *Client) IsNetworkReachable() bool {
	return c.reachability.IsReachable()
}

// Interceptors lists the installed interceptor names, application first.
func (c *Client) Interceptors() (application, network []string) {
	return append([]string(nil), c.application...), append([]string(nil), c.network...)
}

func (c *Client) Config() config.ClientConfig {
	return c.cfg
}

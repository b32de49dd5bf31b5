// Builds outbound request descriptors with consistent defaults
package request

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/iTrooz/netkit/internal/errs"
)

// Descriptor is an immutable description of an outbound request.
type Descriptor struct {
	method  string
	url     *url.URL
	headers Headers
	body    Body
	cache   CacheDirective
	timeout time.Duration
}

func (d *Descriptor) Method() string { return d.method }

// URL returns a copy of the target URL.
func (d *Descriptor) URL() *url.URL {
	u := *d.url
	return &u
}

// Headers returns a copy of the caller-supplied headers.
func (d *Descriptor) Headers() Headers {
	out := make(Headers, len(d.headers))
	copy(out, d.headers)
	return out
}

// Body returns the request body, nil for methods without one.
func (d *Descriptor) Body() Body { return d.body }

func (d *Descriptor) Cache() CacheDirective { return d.cache }

// Timeout is the per-call timeout override; zero means the client default.
func (d *Descriptor) Timeout() time.Duration { return d.timeout }

func (d *Descriptor) String() string {
	return d.method + " " + d.url.String()
}

// HTTPRequest materialises a new *http.Request. The body is opened afresh on
// each call.
func (d *Descriptor) HTTPRequest(ctx context.Context) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, d.method, d.url.String(), nil)
	if err != nil {
		return nil, errs.InvalidURL(d.url.String(), err)
	}
	req.Header = d.headers.HTTPHeader()
	req.Header.Set("Cache-Control", d.cache.String())

	if d.body == nil {
		return req, nil
	}

	rc, length, err := d.body.Open()
	if err != nil {
		return nil, err
	}
	req.Body = rc
	req.ContentLength = length
	if length == 0 {
		_ = rc.Close()
		req.Body = http.NoBody
	}
	req.GetBody = func() (io.ReadCloser, error) {
		rc, _, err := d.body.Open()
		return rc, err
	}
	if ct := d.body.ContentType(); ct != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", ct)
	}
	return req, nil
}

// Option overrides a builder default
type Option func(*Descriptor)

// WithHeaders replaces the header list.
func WithHeaders(h Headers) Option {
	return func(d *Descriptor) {
		d.headers = append(Headers(nil), h...)
	}
}

// WithHeader appends a single header.
func WithHeader(name, value string) Option {
	return func(d *Descriptor) {
		d.headers = d.headers.Add(name, value)
	}
}

// WithBody sets the body. It is ignored by GET.
func WithBody(b Body) Option {
	return func(d *Descriptor) {
		if d.method != http.MethodGet && b != nil {
			d.body = b
		}
	}
}

func WithCache(c CacheDirective) Option {
	return func(d *Descriptor) {
		d.cache = c
	}
}

// WithTimeout overrides the client's call timeout for this request.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Descriptor) {
		d.timeout = timeout
	}
}

// ParseURL validates rawURL as an absolute http(s) URL.
func ParseURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errs.InvalidURL(rawURL, err)
	}
	if err := checkURL(u); err != nil {
		return nil, errs.InvalidURL(rawURL, err)
	}
	return u, nil
}

func checkURL(u *url.URL) error {
	if u == nil {
		return fmt.Errorf("nil URL")
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("URL must be absolute")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return nil
}

func build(method string, u *url.URL, body Body, opts []Option) (*Descriptor, error) {
	if err := checkURL(u); err != nil {
		raw := ""
		if u != nil {
			raw = u.String()
		}
		return nil, errs.InvalidURL(raw, err)
	}
	cp := *u
	d := &Descriptor{
		method: method,
		url:    &cp,
		body:   body,
		cache:  DefaultCacheDirective,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

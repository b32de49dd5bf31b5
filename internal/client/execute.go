package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/iTrooz/netkit/internal/cache/httpcache"
	"github.com/iTrooz/netkit/internal/errs"
	"github.com/iTrooz/netkit/internal/request"
)

// Response is a fully read 2xx response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// FromCache is set when the body came from the disk cache, including
	// entries confirmed by a 304.
	FromCache bool
	Request   *request.Descriptor
}

// JSON decodes the body into v.
func (r *Response) JSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decoding JSON response: %w", err)
	}
	return nil
}

func (r *Response) String() string {
	return string(r.Body)
}

// Result is delivered by ExecuteAsync. Exactly one field is set.
type Result struct {
	Response *Response
	Err      error
}

// Do dispatches d and returns the raw response with its body still streaming,
// whatever its status. The call timeout keeps running until the body is
// closed. Failures are *errs.Error values.
func (c *Client) Do(ctx context.Context, d *request.Descriptor) (*http.Response, error) {
	timeout := d.Timeout()
	if timeout <= 0 {
		timeout = c.cfg.CallTimeout.Std()
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)

	req, err := d.HTTPRequest(ctx)
	if err != nil {
		cancel()
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		cancel()
		return nil, c.failure(d, err)
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// Execute dispatches d and reads the whole response. Non-2xx statuses are
// returned as HTTPStatus errors carrying the status code and body. There are
// no retries.
func (c *Client) Execute(ctx context.Context, d *request.Descriptor) (*Response, error) {
	resp, err := c.Do(ctx, d)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.failure(d, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logrus.Debugf("%s returned %d", d, resp.StatusCode)
		return nil, errs.HTTPStatus(d.URL().String(), resp.StatusCode, body)
	}

	xCache := resp.Header.Get(httpcache.XCache)
	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		FromCache:  xCache == httpcache.CacheHit || xCache == httpcache.CacheRevalidated,
		Request:    d,
	}, nil
}

// ExecuteAsync runs Execute in its own goroutine. The channel receives exactly
// one Result and is then closed.
func (c *Client) ExecuteAsync(ctx context.Context, d *request.Descriptor) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		defer close(out)
		resp, err := c.Execute(ctx, d)
		out <- Result{Response: resp, Err: err}
	}()
	return out
}

// failure types err and reports connection failures as NetworkUnavailable
// when the host has no usable network.
func (c *Client) failure(d *request.Descriptor, err error) error {
	typed := errs.Classify(err)
	out := *typed
	if out.URL == "" {
		out.URL = d.URL().String()
	}
	if out.Kind == errs.KindTransportFailure && !errors.Is(err, context.Canceled) && !c.reachability.IsReachable() {
		out.Kind = errs.KindNetworkUnavailable
	}
	logrus.Debugf("%s failed: %v", d, &out)
	return &out
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

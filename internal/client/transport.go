package client

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/iTrooz/netkit/internal/config"
)

func newTransport(cfg config.ClientConfig) *http.Transport {
	dialer := &net.Dialer{
		Timeout:   cfg.ConnectTimeout.Std(),
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   cfg.ConnectTimeout.Std(),
		ResponseHeaderTimeout: cfg.ReadTimeout.Std(),
		ExpectContinueTimeout: time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          100,
		ForceAttemptHTTP2:     true,
		// encodings are negotiated by the compression interceptors
		DisableCompression: true,
	}
}

// readTimeoutError is returned when a response body stalls longer than the
// read timeout. It satisfies net.Error so it classifies as a timeout.
type readTimeoutError struct{}

func (readTimeoutError) Error() string   { return "read timeout: response body stalled" }
func (readTimeoutError) Timeout() bool   { return true }
func (readTimeoutError) Temporary() bool { return true }

var errReadTimeout error = readTimeoutError{}

// readTimeoutTransport aborts a call whose response body makes no progress
// for longer than timeout. Only the stalled call is cancelled.
type readTimeoutTransport struct {
	next    http.RoundTripper
	timeout time.Duration
}

func (t *readTimeoutTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx, cancel := context.WithCancelCause(req.Context())
	resp, err := t.next.RoundTrip(req.WithContext(ctx))
	if err != nil {
		cancel(nil)
		return nil, err
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		cancel(nil)
		return resp, nil
	}

	body := &idleTimeoutBody{rc: resp.Body, ctx: ctx, cancel: cancel, timeout: t.timeout}
	body.timer = time.AfterFunc(t.timeout, func() { cancel(errReadTimeout) })
	resp.Body = body
	return resp, nil
}

type idleTimeoutBody struct {
	rc      io.ReadCloser
	ctx     context.Context
	cancel  context.CancelCauseFunc
	timeout time.Duration
	timer   *time.Timer
	once    sync.Once
}

func (b *idleTimeoutBody) Read(p []byte) (int, error) {
	if b.expired() {
		return 0, errReadTimeout
	}
	b.timer.Reset(b.timeout)
	n, err := b.rc.Read(p)
	if err != nil {
		if b.expired() {
			return n, errReadTimeout
		}
		if errors.Is(err, io.EOF) {
			b.timer.Stop()
		}
	}
	return n, err
}

func (b *idleTimeoutBody) expired() bool {
	return errors.Is(context.Cause(b.ctx), errReadTimeout)
}

func (b *idleTimeoutBody) Close() error {
	err := b.rc.Close()
	b.once.Do(func() {
		b.timer.Stop()
		b.cancel(nil)
	})
	return err
}

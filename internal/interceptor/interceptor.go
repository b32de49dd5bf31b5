// Ordered request/response transformers applied around every call
package interceptor

import (
	"net/http"
)

// Interceptor sees the outgoing request and the incoming response of a call.
// It may modify either, answer without calling next, or replace a failure
// with another one. It must not drop a failure without returning one.
type Interceptor interface {
	Name() string
	Intercept(req *http.Request, next http.RoundTripper) (*http.Response, error)
}

// RoundTripperFunc adapts a function to http.RoundTripper
type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

type funcInterceptor struct {
	name string
	fn   func(req *http.Request, next http.RoundTripper) (*http.Response, error)
}

// Func builds a named Interceptor from a function.
func Func(name string, fn func(req *http.Request, next http.RoundTripper) (*http.Response, error)) Interceptor {
	return &funcInterceptor{name: name, fn: fn}
}

func (f *funcInterceptor) Name() string { return f.name }

func (f *funcInterceptor) Intercept(req *http.Request, next http.RoundTripper) (*http.Response, error) {
	return f.fn(req, next)
}

// Chain wraps transport so that interceptors[0] is outermost: it sees the
// request first and the response last.
func Chain(transport http.RoundTripper, interceptors ...Interceptor) http.RoundTripper {
	next := transport
	for i := len(interceptors) - 1; i >= 0; i-- {
		next = link(interceptors[i], next)
	}
	return next
}

func link(i Interceptor, next http.RoundTripper) http.RoundTripper {
	return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		return i.Intercept(req, next)
	})
}

// Names lists interceptor names in order.
func Names(interceptors []Interceptor) []string {
	names := make([]string, len(interceptors))
	for i, ic := range interceptors {
		names[i] = ic.Name()
	}
	return names
}

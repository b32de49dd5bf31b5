package request

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/iTrooz/netkit/internal/errs"
)

// Get builds a GET request. GET never carries a body.
func Get(rawURL string, opts ...Option) (*Descriptor, error) {
	u, err := ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	return GetURL(u, opts...)
}

// GetURL is Get for an already parsed URL.
func GetURL(u *url.URL, opts ...Option) (*Descriptor, error) {
	return build(http.MethodGet, u, nil, opts)
}

// Post builds a POST request with an empty form body unless WithBody is given.
func Post(rawURL string, opts ...Option) (*Descriptor, error) {
	return withDefaultBody(http.MethodPost, rawURL, opts)
}

func Put(rawURL string, opts ...Option) (*Descriptor, error) {
	return withDefaultBody(http.MethodPut, rawURL, opts)
}

func Patch(rawURL string, opts ...Option) (*Descriptor, error) {
	return withDefaultBody(http.MethodPatch, rawURL, opts)
}

func Delete(rawURL string, opts ...Option) (*Descriptor, error) {
	return withDefaultBody(http.MethodDelete, rawURL, opts)
}

func withDefaultBody(method, rawURL string, opts []Option) (*Descriptor, error) {
	u, err := ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	return build(method, u, Empty(), opts)
}

// New builds a request for any method, without a default body. An empty
// method or one containing whitespace fails with errs.KindInvalidURL, since it
// would corrupt the request line the same way a bad URL does.
func New(method, rawURL string, opts ...Option) (*Descriptor, error) {
	if method == "" || strings.ContainsAny(method, " \t\r\n") {
		return nil, errs.New(errs.KindInvalidURL, "build", fmt.Errorf("invalid method %q", method))
	}
	u, err := ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	return build(strings.ToUpper(method), u, nil, opts)
}

// Typed failures surfaced by the request builders and the client pipeline
package errs

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"syscall"
)

// Kind identifies a failure category
type Kind int

const (
	KindUnknown Kind = iota
	// the request line cannot be built: a malformed URL or method
	KindInvalidURL
	KindUnreadableFile
	KindTimeout
	KindNetworkUnavailable
	KindTransportFailure
	KindUnexpectedInternalFailure
	KindHTTPStatus
)

func (k Kind) String() string {
	switch k {
	case KindInvalidURL:
		return "InvalidURL"
	case KindUnreadableFile:
		return "UnreadableFile"
	case KindTimeout:
		return "Timeout"
	case KindNetworkUnavailable:
		return "NetworkUnavailable"
	case KindTransportFailure:
		return "TransportFailure"
	case KindUnexpectedInternalFailure:
		return "UnexpectedInternalFailure"
	case KindHTTPStatus:
		return "HTTPStatusError"
	default:
		return "Unknown"
	}
}

// Error is the single error type returned by netkit.
type Error struct {
	Kind       Kind
	Op         string
	URL        string
	StatusCode int
	Body       []byte
	Err        error
}

// Sentinels for errors.Is; matching is by Kind only.
var (
	ErrInvalidURL                = &Error{Kind: KindInvalidURL}
	ErrUnreadableFile            = &Error{Kind: KindUnreadableFile}
	ErrTimeout                   = &Error{Kind: KindTimeout}
	ErrNetworkUnavailable        = &Error{Kind: KindNetworkUnavailable}
	ErrTransportFailure          = &Error{Kind: KindTransportFailure}
	ErrUnexpectedInternalFailure = &Error{Kind: KindUnexpectedInternalFailure}
	ErrHTTPStatus                = &Error{Kind: KindHTTPStatus}
)

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s %d", msg, e.StatusCode)
	}
	if e.URL != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.URL)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New creates an error of the given kind
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// InvalidURL reports a URL that cannot be used as an absolute request target.
// An unusable method is reported with the same Kind, without a URL.
func InvalidURL(rawURL string, err error) *Error {
	return &Error{Kind: KindInvalidURL, Op: "build", URL: rawURL, Err: err}
}

// UnreadableFile reports a multipart file that cannot be opened for streaming.
func UnreadableFile(path string, err error) *Error {
	return &Error{Kind: KindUnreadableFile, Op: "build", Err: fmt.Errorf("%s: %w", path, err)}
}

// HTTPStatus reports a non-2xx response. Body holds the full response body.
func HTTPStatus(rawURL string, status int, body []byte) *Error {
	return &Error{Kind: KindHTTPStatus, Op: "execute", URL: rawURL, StatusCode: status, Body: body}
}

// KindOf returns the Kind of err, or KindUnknown if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Classify maps an arbitrary failure onto a Kind. Errors that are already
// typed are returned unchanged.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: classifyKind(err), Op: "execute", Err: err}
}

func classifyKind(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if errors.Is(err, syscall.ENETUNREACH) || errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ENETDOWN) {
		return KindNetworkUnavailable
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	if errors.Is(err, context.Canceled) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return KindTransportFailure
	}

	var (
		opErr       *net.OpError
		dnsErr      *net.DNSError
		urlErr      *url.Error
		recordErr   tls.RecordHeaderError
		certErr     *tls.CertificateVerificationError
		unknownAuth x509.UnknownAuthorityError
		hostnameErr x509.HostnameError
	)
	switch {
	case errors.As(err, &dnsErr),
		errors.As(err, &opErr),
		errors.As(err, &recordErr),
		errors.As(err, &certErr),
		errors.As(err, &unknownAuth),
		errors.As(err, &hostnameErr),
		errors.As(err, &urlErr):
		return KindTransportFailure
	}
	return KindUnexpectedInternalFailure
}

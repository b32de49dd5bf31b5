package interceptor

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

const (
	IgnoreGzipName  = "ignore-gzip"
	CompressionName = "compression"

	// advertised by Compression when the caller did not negotiate itself
	acceptEncoding = "br, zstd"
)

// IgnoreGzip keeps gzip out of implicit negotiation. A request without
// Accept-Encoding is sent as identity so no transport below adds gzip on its
// own. An Accept-Encoding set by the caller, gzip included, is forwarded
// unchanged; the response then keeps its raw Content-Encoding and the caller
// decodes it, with DecodeGzip for gzip. Responses are not touched.
func IgnoreGzip() Interceptor {
	return Func(IgnoreGzipName, func(req *http.Request, next http.RoundTripper) (*http.Response, error) {
		if len(req.Header.Values("Accept-Encoding")) > 0 {
			return next.RoundTrip(req)
		}
		req = req.Clone(req.Context())
		req.Header.Set("Accept-Encoding", "identity")
		return next.RoundTrip(req)
	})
}

// Compression advertises brotli and zstd when the request asks for no
// encoding, or only identity, and transparently decodes matching responses.
// Identity responses, and responses to requests that negotiated their own
// encoding, are returned unchanged.
func Compression() Interceptor {
	return Func(CompressionName, func(req *http.Request, next http.RoundTripper) (*http.Response, error) {
		if negotiated(req.Header) {
			return next.RoundTrip(req)
		}

		req = req.Clone(req.Context())
		req.Header.Set("Accept-Encoding", acceptEncoding)

		resp, err := next.RoundTrip(req)
		if err != nil {
			return nil, err
		}
		if err := decodeResponse(resp); err != nil {
			_ = resp.Body.Close()
			return nil, err
		}
		return resp, nil
	})
}

// negotiated reports whether Accept-Encoding names an encoding other than identity.
func negotiated(header http.Header) bool {
	for _, value := range header.Values("Accept-Encoding") {
		for _, token := range strings.Split(value, ",") {
			name, _, _ := strings.Cut(token, ";")
			if name = strings.TrimSpace(name); name != "" && !strings.EqualFold(name, "identity") {
				return true
			}
		}
	}
	return false
}

func decodeResponse(resp *http.Response) error {
	if resp.Body == nil || resp.Body == http.NoBody {
		return nil
	}
	encoding := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))

	var decoded io.ReadCloser
	switch encoding {
	case "br":
		decoded = &decodingBody{Reader: brotli.NewReader(resp.Body), raw: resp.Body}
	case "zstd":
		dec, err := zstd.NewReader(resp.Body)
		if err != nil {
			return fmt.Errorf("creating zstd decoder: %w", err)
		}
		decoded = &decodingBody{Reader: dec, raw: resp.Body, release: dec.Close}
	default:
		return nil
	}

	resp.Body = decoded
	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return nil
}

// DecodeGzip replaces a gzip-encoded response body with its decoded form.
// It is a no-op for any other Content-Encoding.
func DecodeGzip(resp *http.Response) error {
	if !strings.EqualFold(strings.TrimSpace(resp.Header.Get("Content-Encoding")), "gzip") {
		return nil
	}
	zr, err := gzip.NewReader(resp.Body)
	if err != nil {
		return fmt.Errorf("creating gzip reader: %w", err)
	}
	resp.Body = &decodingBody{Reader: zr, raw: resp.Body, release: func() { _ = zr.Close() }}
	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return nil
}

type decodingBody struct {
	io.Reader
	raw     io.ReadCloser
	release func()
}

func (b *decodingBody) Close() error {
	if b.release != nil {
		b.release()
	}
	return b.raw.Close()
}

package httpcache

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const PREFIX = "---HTTP-RESPONSE---\n"

// vary lines start with this marker; entries written without one select on
// no request headers
const varyMarker = "vary "

// Serialize writes the entry as a prefix line, a timing line, a vary line,
// then the response in wire format.
func Serialize(entry *Entry) ([]byte, error) {
	resp := &http.Response{
		Status:        fmt.Sprintf("%d %s", entry.StatusCode, http.StatusText(entry.StatusCode)),
		StatusCode:    entry.StatusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        entry.Header.Clone(),
		Body:          io.NopCloser(bytes.NewReader(entry.Body)),
		ContentLength: int64(len(entry.Body)),
	}
	if resp.Header == nil {
		resp.Header = make(http.Header)
	}
	resp.Header.Del("Transfer-Encoding")

	b, err := httputil.DumpResponse(resp, true)
	if err != nil {
		return nil, err
	}

	timing := fmt.Sprintf("%d %d\n", entry.RequestedAt.UnixNano(), entry.StoredAt.UnixNano())
	vary := varyMarker + url.Values(entry.VaryHeader).Encode() + "\n"
	out := make([]byte, 0, len(PREFIX)+len(timing)+len(vary)+len(b))
	out = append(out, PREFIX...)
	out = append(out, timing...)
	out = append(out, vary...)
	return append(out, b...), nil
}

func Deserialize(b []byte) (*Entry, error) {
	if len(b) < len(PREFIX) || string(b[:len(PREFIX)]) != PREFIX {
		return nil, fmt.Errorf("invalid prefix: expected '%s'", strings.TrimSpace(PREFIX))
	}
	b = b[len(PREFIX):]

	nl := bytes.IndexByte(b, '\n')
	if nl < 0 {
		return nil, fmt.Errorf("missing timing line")
	}
	fields := strings.Fields(string(b[:nl]))
	if len(fields) != 2 {
		return nil, fmt.Errorf("malformed timing line %q", string(b[:nl]))
	}
	requestedAt, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed request time: %w", err)
	}
	storedAt, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed stored time: %w", err)
	}

	b = b[nl+1:]

	var varyHeader http.Header
	if bytes.HasPrefix(b, []byte(varyMarker)) {
		nl = bytes.IndexByte(b, '\n')
		if nl < 0 {
			return nil, fmt.Errorf("unterminated vary line")
		}
		values, err := url.ParseQuery(string(b[len(varyMarker):nl]))
		if err != nil {
			return nil, fmt.Errorf("malformed vary line: %w", err)
		}
		if len(values) > 0 {
			varyHeader = http.Header(values)
		}
		b = b[nl+1:]
	}

	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(b)), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize response: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read cached body: %w", err)
	}

	return &Entry{
		StatusCode:  resp.StatusCode,
		Header:      resp.Header,
		Body:        body,
		RequestedAt: time.Unix(0, requestedAt),
		StoredAt:    time.Unix(0, storedAt),
		VaryHeader:  varyHeader,
	}, nil
}

// Response builds a fresh *http.Response for req from the entry.
func (e *Entry) Response(req *http.Request) *http.Response {
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", e.StatusCode, http.StatusText(e.StatusCode)),
		StatusCode:    e.StatusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        e.Header.Clone(),
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}

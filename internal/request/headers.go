package request

import (
	"net/http"
	"strings"
)

// Header is a single header line
type Header struct {
	Name  string
	Value string
}

// Headers is an ordered header list. Names compare case-insensitively and
// may repeat.
type Headers []Header

// HeadersOf builds Headers from alternating name/value strings. A trailing
// name without a value is ignored.
func HeadersOf(kv ...string) Headers {
	h := make(Headers, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		h = h.Add(kv[i], kv[i+1])
	}
	return h
}

// Add returns a copy of h with name: value appended.
func (h Headers) Add(name, value string) Headers {
	out := make(Headers, len(h), len(h)+1)
	copy(out, h)
	return append(out, Header{Name: strings.TrimSpace(name), Value: strings.TrimSpace(value)})
}

// Get returns the first value for name, or "".
func (h Headers) Get(name string) string {
	for _, hdr := range h {
		if strings.EqualFold(hdr.Name, name) {
			return hdr.Value
		}
	}
	return ""
}

// Values returns every value for name in insertion order.
func (h Headers) Values(name string) []string {
	var values []string
	for _, hdr := range h {
		if strings.EqualFold(hdr.Name, name) {
			values = append(values, hdr.Value)
		}
	}
	return values
}

func (h Headers) Len() int {
	return len(h)
}

// HTTPHeader converts h to an http.Header, keeping per-name value order.
func (h Headers) HTTPHeader() http.Header {
	out := make(http.Header, len(h))
	for _, hdr := range h {
		out.Add(hdr.Name, hdr.Value)
	}
	return out
}

package proxy

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/iTrooz/netkit/internal/request"
)

// headers that only make sense for a single hop, plus Cache-Control which the
// rules decide
var notForwarded = map[string]bool{
	"Connection":          true,
	"Proxy-Connection":    true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
	"Content-Length":      true,
	"Cache-Control":       true,
}

// descriptorFor turns a proxied request into a request descriptor.
func (s *Server) descriptorFor(requ *http.Request) (*request.Descriptor, error) {
	opts := []request.Option{
		request.WithHeaders(forwardedHeaders(requ.Header)),
		request.WithCache(s.cachePolicy(requ)),
	}

	if requ.Body != nil && requ.Body != http.NoBody {
		data, err := io.ReadAll(requ.Body)
		_ = requ.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("reading request body: %w", err)
		}
		opts = append(opts, request.WithBody(request.Raw(requ.Header.Get("Content-Type"), data)))
	}

	return request.New(requ.Method, getTargetURL(requ), opts...)
}

// cachePolicy maps the rules onto a cache directive
func (s *Server) cachePolicy(requ *http.Request) request.CacheDirective {
	if !s.shouldUseCache(requ) {
		logrus.Debugf("Caching disabled by rules for %s %s", requ.Method, requ.URL)
		return request.NoStore
	}
	return request.MaxAge(s.config.Server.CacheTTL.Std())
}

func forwardedHeaders(h http.Header) request.Headers {
	hop := map[string]bool{}
	for _, v := range h.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			hop[http.CanonicalHeaderKey(strings.TrimSpace(name))] = true
		}
	}

	names := make([]string, 0, len(h))
	for name := range h {
		if !notForwarded[name] && !hop[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var out request.Headers
	for _, name := range names {
		for _, value := range h[name] {
			out = out.Add(name, value)
		}
	}
	return out
}

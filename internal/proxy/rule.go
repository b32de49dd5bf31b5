package proxy

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/iTrooz/netkit/internal/config"
)

// Rule interface for matching requests against caching rules
type Rule interface {
	Match(requ *http.Request) bool
}

// ConfigRule implements Rule interface for config-based rules
type ConfigRule struct {
	config.CacheRule
}

// Match checks if a request matches this rule
func (r *ConfigRule) Match(requ *http.Request) bool {
	// Check if URL starts with base URI
	if !strings.HasPrefix(getTargetURL(requ), r.BaseURI) {
		return false
	}

	// Check if method matches
	for _, m := range r.Methods {
		if strings.EqualFold(m, requ.Method) {
			return true
		}
	}

	return false
}

// shouldUseCache determines if a request may be answered from, and stored
// in, the cache based on rules
func (s *Server) shouldUseCache(requ *http.Request) bool {
	matched := false
	for _, rule := range s.rules {
		if rule.Match(requ) {
			matched = true
			break
		}
	}

	if s.config.Rules.Mode == "whitelist" {
		return matched
	}
	return !matched
}

func getTargetURL(r *http.Request) string {
	if r.URL.IsAbs() {
		return r.URL.String()
	}

	// Reconstruct URL from Host header
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}

	return fmt.Sprintf("%s://%s%s", scheme, r.Host, r.URL.String())
}

package proxy

import (
	"fmt"
	"net/http"

	"github.com/elazarl/goproxy"
	"github.com/sirupsen/logrus"

	"github.com/iTrooz/netkit/internal/cache/httpcache"
	"github.com/iTrooz/netkit/internal/client"
	"github.com/iTrooz/netkit/internal/config"
	"github.com/iTrooz/netkit/internal/errs"
)

// Server is a forward proxy that replays every request through the netkit
// client, so proxied traffic shares its pipeline and disk cache.
type Server struct {
	config *config.Config
	client *client.Client
	proxy  *goproxy.ProxyHttpServer
	rules  []Rule
}

// New creates a new proxy server
func New(cfg *config.Config, c *client.Client) (*Server, error) {
	if c == nil {
		return nil, fmt.Errorf("proxy needs a client")
	}

	s := &Server{
		config: cfg,
		client: c,
		proxy:  goproxy.NewProxyHttpServer(),
	}
	for _, rule := range cfg.Rules.Rules {
		s.rules = append(s.rules, &ConfigRule{CacheRule: rule})
	}

	s.proxy.Logger = logrus.StandardLogger()
	if cfg.Server.HTTPS.Intercept {
		if err := s.setupHTTPSProxyHandler(); err != nil {
			return nil, err
		}
	}
	s.proxy.OnRequest().DoFunc(s.handleRequest)

	return s, nil
}

// GetProxy returns the handler serving proxy requests
func (s *Server) GetProxy() http.Handler {
	return s.proxy
}

// Start starts the proxy server
func (s *Server) Start() error {
	cacheCfg := s.client.Config().Cache
	logrus.Infof("Starting caching proxy on port %d", s.config.Server.Port)
	logrus.Infof("Cache directory: %s (max %d bytes)", cacheCfg.Folder, cacheCfg.MaxSize)
	logrus.Infof("Cache TTL: %s", s.config.Server.CacheTTL)
	logrus.Infof("Rules mode: %s", s.config.Rules.Mode)

	return http.ListenAndServe(fmt.Sprintf(":%d", s.config.Server.Port), s.proxy)
}

func (s *Server) handleRequest(requ *http.Request, ctx *goproxy.ProxyCtx) (*http.Request, *http.Response) {
	d, err := s.descriptorFor(requ)
	if err != nil {
		logrus.Warnf("Rejecting %s %s: %v", requ.Method, requ.URL, err)
		return requ, goproxy.NewResponse(requ, goproxy.ContentTypeText, http.StatusBadRequest, err.Error())
	}

	resp, err := s.client.Do(requ.Context(), d)
	if err != nil {
		logrus.Errorf("Failed to forward %s: %v", d, err)
		return requ, goproxy.NewResponse(requ, goproxy.ContentTypeText, statusFor(err), err.Error())
	}

	logrus.Infof("Forwarded request: %s -> %d (%s)", d, resp.StatusCode, resp.Header.Get(httpcache.XCache))
	return requ, resp
}

// statusFor picks the status reported to the downstream client for a failed call
func statusFor(err error) int {
	switch errs.KindOf(err) {
	case errs.KindTimeout:
		return http.StatusGatewayTimeout
	case errs.KindInvalidURL, errs.KindUnreadableFile:
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

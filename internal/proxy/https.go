package proxy

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"time"

	"github.com/elazarl/goproxy"
	"github.com/sirupsen/logrus"

	"github.com/iTrooz/netkit/internal/config"
)

// loadCertificate reads the configured signing CA. A nil certificate means
// none is configured and goproxy's built-in CA signs the leaf certificates.
func loadCertificate(cfg config.HTTPSConfig) (*tls.Certificate, error) {
	if cfg.CACertFile == "" || cfg.CAKeyFile == "" {
		return nil, nil
	}

	pair, err := tls.LoadX509KeyPair(cfg.CACertFile, cfg.CAKeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load CA certificate and key: %w", err)
	}
	ca, err := x509.ParseCertificate(pair.Certificate[0])
	if err != nil {
		return nil, fmt.Errorf("parsing CA certificate %s: %w", cfg.CACertFile, err)
	}
	if !ca.IsCA || !ca.BasicConstraintsValid {
		return nil, fmt.Errorf("%s (%s) is not a CA certificate", cfg.CACertFile, ca.Subject)
	}
	if ca.KeyUsage != 0 && ca.KeyUsage&x509.KeyUsageCertSign == 0 {
		return nil, fmt.Errorf("CA %s may not sign certificates", ca.Subject)
	}
	if time.Now().After(ca.NotAfter) {
		logrus.Warnf("CA %s expired on %s, clients will reject intercepted connections", ca.Subject, ca.NotAfter.Format(time.DateOnly))
	}
	pair.Leaf = ca

	logrus.Infof("Signing intercepted connections with CA %s", ca.Subject)
	return &pair, nil
}

// setupHTTPSProxyHandler decrypts CONNECT tunnels so HTTPS requests also go
// through the client and its cache. Without it tunnels are passed through
// untouched.
func (s *Server) setupHTTPSProxyHandler() error {
	caCert, err := loadCertificate(s.config.Server.HTTPS)
	if err != nil {
		return err
	}

	s.proxy.CertStore = newCertStore()

	if caCert == nil {
		logrus.Warnf("TLS interception enabled but no CA certificate loaded, using goproxy default certificate")
		s.proxy.OnRequest().HandleConnect(goproxy.AlwaysMitm)
		return nil
	}

	// Make goproxy use our provided CA certificate
	customCaMitm := &goproxy.ConnectAction{
		Action:    goproxy.ConnectMitm,
		TLSConfig: goproxy.TLSConfigFromCA(caCert),
	}
	customAlwaysMitm := goproxy.FuncHttpsHandler(func(host string, ctx *goproxy.ProxyCtx) (*goproxy.ConnectAction, string) {
		logrus.Debugf("Handling CONNECT request for %s", host)
		return customCaMitm, host
	})
	s.proxy.OnRequest().HandleConnect(customAlwaysMitm)
	return nil
}

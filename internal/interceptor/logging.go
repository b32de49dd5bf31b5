package interceptor

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const LoggingName = "http-logging"

// Logging records method, URL, headers and body of every request/response
// pair at debug level. Only debug builds install it.
func Logging(logger *logrus.Logger) Interceptor {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return Func(LoggingName, func(req *http.Request, next http.RoundTripper) (*http.Response, error) {
		entry := logger.WithFields(logrus.Fields{
			"call":   uuid.NewString(),
			"method": req.Method,
			"url":    req.URL.String(),
		})

		// DumpRequestOut buffers the body and restores it on req
		if dump, err := httputil.DumpRequestOut(req, true); err != nil {
			entry.Debugf("--> request (dump failed: %v)", err)
		} else {
			entry.Debugf("--> request\n%s", dump)
		}

		start := time.Now()
		resp, err := next.RoundTrip(req)
		elapsed := time.Since(start)
		if err != nil {
			entry.WithField("elapsed", elapsed).Debugf("<-- failed: %v", err)
			return nil, err
		}

		entry = entry.WithFields(logrus.Fields{
			"status":  resp.StatusCode,
			"elapsed": elapsed,
		})
		dump, err := httputil.DumpResponse(resp, true)
		if err != nil {
			// the body is partially consumed at this point
			entry.Debugf("<-- response (body read failed: %v)", err)
			_ = resp.Body.Close()
			return nil, fmt.Errorf("reading response body: %w", err)
		}
		entry.Debugf("<-- response\n%s", dump)
		return resp, nil
	})
}

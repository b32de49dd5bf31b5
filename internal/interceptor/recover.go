package interceptor

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/sirupsen/logrus"

	"github.com/iTrooz/netkit/internal/errs"
)

const RecoverName = "uncaught-exception"

// Recover converts panics and untyped failures raised further down the chain
// into typed *errs.Error values. Successful responses pass through untouched.
func Recover() Interceptor {
	return Func(RecoverName, func(req *http.Request, next http.RoundTripper) (resp *http.Response, err error) {
		defer func() {
			if r := recover(); r != nil {
				logrus.WithFields(logrus.Fields{
					"method": req.Method,
					"url":    req.URL.String(),
				}).Errorf("Recovered from panic in HTTP pipeline: %v\n%s", r, debug.Stack())

				if resp != nil && resp.Body != nil {
					_ = resp.Body.Close()
				}
				closeRequestBody(req)
				resp = nil
				err = &errs.Error{
					Kind: errs.KindUnexpectedInternalFailure,
					Op:   "execute",
					URL:  req.URL.String(),
					Err:  fmt.Errorf("panic: %v", r),
				}
			}
		}()

		resp, err = next.RoundTrip(req)
		if err != nil {
			if resp != nil && resp.Body != nil {
				_ = resp.Body.Close()
			}
			closeRequestBody(req)
			typed := errs.Classify(err)
			if typed.URL == "" {
				withURL := *typed
				withURL.URL = req.URL.String()
				typed = &withURL
			}
			return nil, typed
		}
		return resp, nil
	})
}

// closeRequestBody releases a body that an inner layer may have abandoned.
// Closing an already closed body is harmless for every body netkit builds.
func closeRequestBody(req *http.Request) {
	if req.Body != nil {
		_ = req.Body.Close()
	}
}

package observability

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Transport is an http.RoundTripper that logs outbound requests using the request Context Observability.
// It propagates a trace id in TraceIdHeader if configured.
type Transport struct {
	Next          http.RoundTripper
	TraceIdHeader string
}

// RoundTrip implements http.RoundTripper.
func (self Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	t0 := time.Now()
	next := self.Next
	if nil == next {
		next = http.DefaultTransport
	}

	log := GetObservability(req.Context()).Log()
	if "" != self.TraceIdHeader && "" == req.Header.Get(self.TraceIdHeader) {
		tId := uuid.New().String()
		req = req.Clone(req.Context())
		req.Header.Set(self.TraceIdHeader, tId)
		log = log.With("tId", tId)
	}

	resp, err := next.RoundTrip(req)
	if nil != err {
		log.Warn(
			"failed HTTP request",
			"method", req.Method,
			"url", req.URL.String(),
			"duration", time.Since(t0),
			"error", err,
		)
		return nil, err
	}
	log.Debug(
		"sent HTTP request",
		"method", req.Method,
		"url", req.URL.String(),
		"status", resp.StatusCode,
		"duration", time.Since(t0),
	)

	return resp, nil
}

var _ http.RoundTripper = Transport{}

package observability

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Middleware adds a trace id & a request Logger to inbound HTTP requests.
type Middleware struct {
	// TraceIdHeader is read to reuse the caller trace id, and echoed in the response.
	TraceIdHeader string
}

// Wrap returns an Handler that add Observability to http Request Context and call next.
func (self Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t0 := time.Now()

		var tId string
		if "" != self.TraceIdHeader {
			tId = r.Header.Get(self.TraceIdHeader)
		}
		if "" == tId {
			tId = uuid.New().String()
		}
		if "" != self.TraceIdHeader {
			w.Header().Set(self.TraceIdHeader, tId)
		}

		ctx := WithLogAttrs(r.Context(), "tId", tId)
		sw := statusRecorder{ResponseWriter: w}
		next.ServeHTTP(&sw, r.WithContext(ctx))
		GetObservability(ctx).Log().Info(
			"processed HTTP request",
			"method", r.Method,
			"uri", r.RequestURI,
			"status", sw.Status(),
			"bytes", sw.written,
			"duration", time.Since(t0),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status  int
	written int
}

func (self *statusRecorder) WriteHeader(statusCode int) {
	if 0 == self.status {
		self.status = statusCode
	}
	self.ResponseWriter.WriteHeader(statusCode)
}

func (self *statusRecorder) Write(data []byte) (int, error) {
	if 0 == self.status {
		self.status = http.StatusOK
	}
	n, err := self.ResponseWriter.Write(data)
	self.written += n
	return n, err
}

// Status returns the response status, 200 if the handler wrote nothing.
func (self *statusRecorder) Status() int {
	if 0 == self.status {
		return http.StatusOK
	}
	return self.status
}

var _ http.ResponseWriter = &statusRecorder{}

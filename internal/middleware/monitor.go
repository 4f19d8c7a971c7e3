package middleware

import (
	"net/http"
	"time"

	"redditfit/internal/metrics"
)

// ServerErrorFunc is told about every response with a 5xx status.
type ServerErrorFunc func(r *http.Request, status int)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// Monitor records request count and latency per route pattern. It must sit
// directly outside the ServeMux so the matched pattern is visible afterwards.
func Monitor(c *metrics.Collector, onServerError ServerErrorFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()

			next.ServeHTTP(rec, r)

			endpoint := r.Pattern
			if endpoint == "" {
				endpoint = "unmatched"
			}
			c.RecordRequest(endpoint, rec.status, time.Since(start))

			if rec.status >= http.StatusInternalServerError {
				c.RecordError("http_5xx")
				if onServerError != nil {
					onServerError(r, rec.status)
				}
			}
		})
	}
}

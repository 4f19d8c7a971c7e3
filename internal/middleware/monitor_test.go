package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"

	"redditfit/internal/metrics"
)

func TestMonitor_RecordsPatternAndServerErrors(t *testing.T) {
	c := metrics.NewCollector(prometheus.NewRegistry())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("GET /ok", func(w http.ResponseWriter, r *http.Request) {})

	var reported []int
	h := Monitor(c, func(r *http.Request, status int) { reported = append(reported, status) })(mux)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/jobs/42", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/ok", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/nope", nil))

	snap := c.Requests().Snapshot()
	assert.Equal(t, 3, snap.TotalRequests)
	assert.Equal(t, 1, snap.RequestsByEndpoint["GET /jobs/{id}"])
	assert.Equal(t, 1, snap.RequestsByEndpoint["GET /ok"])
	assert.Equal(t, 1, snap.RequestsByEndpoint["unmatched"])
	assert.Equal(t, 1, snap.RequestsByStatus[404])
	assert.Equal(t, []int{500}, reported)
	assert.Equal(t, 1, snap.ErrorsByType["http_5xx"])
}

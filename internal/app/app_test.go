package app

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redditfit/internal/config"
	"redditfit/internal/logger"
)

func testConfig() *config.Config {
	return &config.Config{
		MaxConcurrentJobs: 3,
		BulkRewriteDelay:  0,
		CleanupRetention:  30 * 24 * time.Hour,
		AlertCooldown:     5 * time.Minute,
		ErrorAlertEmail:   "admin@reddit.com",
		RewriteModel:      "gemini-1.5-flash",
		ServerPort:        0,
		RateLimitEnabled:  true,
	}
}

func newTestApp(t *testing.T, cfg *config.Config) (*App, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	buf := logger.NewBuffer(50, slog.LevelDebug)
	log := logger.New(io.Discard, buf, slog.LevelDebug)

	a, err := New(cfg, db, nil, log, buf, prometheus.NewRegistry())
	require.NoError(t, err)
	t.Cleanup(func() {
		a.Scheduler.StopAll()
		a.Monitor.Close()
		a.Caches.Close()
		db.Close()
	})
	return a, mock
}

func do(a *App, method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.RemoteAddr = "10.0.0.1:5000"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	a.Handler.ServeHTTP(w, req)
	return w
}

func TestApp_Health(t *testing.T) {
	a, mock := newTestApp(t, testConfig())
	mock.ExpectPing()

	w := do(a, http.MethodGet, "/health", nil, nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
	assert.Contains(t, resp, "caches")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApp_Routes(t *testing.T) {
	a, _ := newTestApp(t, testConfig())

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		headers    map[string]string
		wantStatus int
	}{
		{"submit without user", http.MethodPost, "/jobs", `{}`, nil, http.StatusUnauthorized},
		{"submit unknown type", http.MethodPost, "/jobs", `{"type":"nope","data":{}}`, map[string]string{"X-User-ID": "u1"}, http.StatusBadRequest},
		{"list jobs", http.MethodGet, "/jobs", "", nil, http.StatusOK},
		{"unknown job", http.MethodGet, "/jobs/missing", "", nil, http.StatusNotFound},
		{"clear completed", http.MethodDelete, "/jobs/completed", "", map[string]string{"X-User-ID": "u1"}, http.StatusOK},
		{"list errors", http.MethodGet, "/errors", "", nil, http.StatusOK},
		{"unknown error", http.MethodGet, "/errors/missing", "", nil, http.StatusNotFound},
		{"logs", http.MethodGet, "/logs?level=info", "", nil, http.StatusOK},
		{"metrics", http.MethodGet, "/metrics", "", nil, http.StatusOK},
		{"preflight", http.MethodOptions, "/jobs", "", nil, http.StatusMethodNotAllowed},
		{"rewrite without user", http.MethodPost, "/rewrite", `{}`, nil, http.StatusUnauthorized},
		{"rewrite missing title", http.MethodPost, "/rewrite", `{"subreddit":"golang"}`, map[string]string{"X-User-ID": "u1"}, http.StatusBadRequest},
		{"rules without subreddit", http.MethodGet, "/rewrite/rules", "", nil, http.StatusBadRequest},
		{"history without user", http.MethodGet, "/rewrite/history", "", nil, http.StatusUnauthorized},
		{"analytics without user", http.MethodGet, "/analytics", "", nil, http.StatusUnauthorized},
		{"plan without user", http.MethodGet, "/user/plan", "", nil, http.StatusUnauthorized},
		{"export without user", http.MethodGet, "/backup", "", nil, http.StatusUnauthorized},
		{"delete data without user", http.MethodDelete, "/backup", "", nil, http.StatusUnauthorized},
		{"bulk rewrite for someone else", http.MethodPost, "/jobs", `{"type":"bulk_rewrite","data":{"userId":"u2","posts":[{"subreddit":"golang","title":"t"}]}}`, map[string]string{"X-User-ID": "u1"}, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(a, tt.method, tt.path, []byte(tt.body), tt.headers)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
		})
	}
}

func TestApp_CorrelationIDEchoed(t *testing.T) {
	a, _ := newTestApp(t, testConfig())

	w := do(a, http.MethodPost, "/jobs", []byte(`{}`), map[string]string{"X-Correlation-ID": "corr-1"})

	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "corr-1", w.Header().Get("X-Correlation-ID"))
	assert.Contains(t, w.Body.String(), `"correlationId":"corr-1"`)
}

func TestApp_Settings(t *testing.T) {
	a, mock := newTestApp(t, testConfig())
	mock.ExpectQuery("SELECT id, gemini_api_key, rewrite_model FROM settings").
		WillReturnRows(sqlmock.NewRows([]string{"id", "gemini_api_key", "rewrite_model"}).AddRow(1, "secret", ""))

	w := do(a, http.MethodGet, "/settings", nil, nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "secret")
	assert.Contains(t, w.Body.String(), "gemini-1.5-flash")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApp_RewriteRateLimit(t *testing.T) {
	a, _ := newTestApp(t, testConfig())
	headers := map[string]string{"X-User-ID": "u1"}

	for i := 0; i < 10; i++ {
		w := do(a, http.MethodPost, "/jobs", []byte(`not json`), headers)
		require.Equal(t, http.StatusBadRequest, w.Code)
	}

	w := do(a, http.MethodPost, "/jobs", []byte(`not json`), headers)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	// Another user has their own budget.
	w = do(a, http.MethodPost, "/jobs", []byte(`not json`), map[string]string{"X-User-ID": "u2"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestApp_RateLimitDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitEnabled = false
	a, _ := newTestApp(t, cfg)

	for i := 0; i < 12; i++ {
		w := do(a, http.MethodPost, "/jobs", []byte(`not json`), map[string]string{"X-User-ID": "u1"})
		require.Equal(t, http.StatusBadRequest, w.Code)
	}
}

func TestApp_MetricsRecordRoutePattern(t *testing.T) {
	a, _ := newTestApp(t, testConfig())

	do(a, http.MethodGet, "/jobs/abc", nil, nil)
	w := do(a, http.MethodGet, "/metrics", nil, nil)

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.True(t, strings.Contains(body, `endpoint="GET /jobs/{id}"`), body)
}

func TestUserOrIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.1:1234"
	assert.Equal(t, "ip:192.0.2.1", userOrIP(r))

	r.Header.Set("X-User-ID", "u9")
	assert.Equal(t, "user:u9", userOrIP(r))
}

var userColumns = []string{"id", "external_id", "email", "plan", "rewrites_used", "rewrites_limit", "created_at", "updated_at"}

func userRow(externalID, plan string, used, limit int) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(userColumns).AddRow("uuid-"+externalID, externalID, "", plan, used, limit, now, now)
}

func TestApp_RewriteQuotaExceeded(t *testing.T) {
	a, mock := newTestApp(t, testConfig())
	mock.ExpectQuery("INSERT INTO users").WithArgs("user_capped").
		WillReturnRows(userRow("user_capped", "free", 3, 3))

	w := do(a, http.MethodPost, "/rewrite", []byte(`{"subreddit":"golang","title":"t"}`),
		map[string]string{"X-User-ID": "user_capped"})

	require.Equal(t, http.StatusTooManyRequests, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "QUOTA_EXCEEDED")
	assert.Contains(t, w.Body.String(), `"canRewrite":false`)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApp_FreeUserBulkRewriteQuota(t *testing.T) {
	a, mock := newTestApp(t, testConfig())
	mock.ExpectQuery("INSERT INTO users").WithArgs("user_free").
		WillReturnRows(userRow("user_free", "free", 0, 3))
	body := []byte(`{"type":"bulk_rewrite","data":{"posts":[{"subreddit":"golang","title":"t"}]}}`)
	headers := map[string]string{"X-User-ID": "user_free"}

	w := do(a, http.MethodPost, "/jobs", body, headers)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	// The plan comes from the user cache, so no second query is expected.
	w = do(a, http.MethodPost, "/jobs", body, headers)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "QUOTA_EXCEEDED")
}

func TestApp_ProUserBulkRewriteUnlimited(t *testing.T) {
	a, mock := newTestApp(t, testConfig())
	mock.ExpectQuery("INSERT INTO users").WithArgs("user_pro").
		WillReturnRows(userRow("user_pro", "pro", 40, -1))
	body := []byte(`{"type":"bulk_rewrite","data":{"posts":[{"subreddit":"golang","title":"t"}]}}`)

	for i := 0; i < 3; i++ {
		w := do(a, http.MethodPost, "/jobs", body, map[string]string{"X-User-ID": "user_pro"})
		require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	}
}

func TestApp_AnalyticsUnknownUser(t *testing.T) {
	a, mock := newTestApp(t, testConfig())
	mock.ExpectQuery("FROM users WHERE external_id").WithArgs("user_ghost").
		WillReturnError(sql.ErrNoRows)

	w := do(a, http.MethodGet, "/analytics", nil, map[string]string{"X-User-ID": "user_ghost"})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"totalRewrites":0`)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApp_RunFailsBeforeServingWhenConsumerCannotConnect(t *testing.T) {
	l, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	cfg := testConfig()
	cfg.ServerPort = port
	cfg.EnableScheduledJobs = true
	cfg.EnableJobConsumer = true
	cfg.NSQLookupd = "bad host:4161"
	a, _ := newTestApp(t, cfg)

	err = a.Run(context.Background())
	require.ErrorContains(t, err, "NSQLookupd")
	assert.Empty(t, a.Scheduler.Names(), "no schedules registered")

	l, err = net.Listen("tcp", fmt.Sprintf(":%d", port))
	require.NoError(t, err, "server never bound the port")
	l.Close()
}

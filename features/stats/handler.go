package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"redditfit/features/job"
	"redditfit/internal/cache"
	"redditfit/internal/logger"
	"redditfit/internal/metrics"
	"redditfit/internal/middleware"
	"redditfit/internal/monitor"
)

type Counter interface {
	Count(ctx context.Context) (int, error)
}

type Pinger interface {
	PingContext(ctx context.Context) error
}

type QueueReporter interface {
	GetQueueStatus() job.QueueStatus
}

type CacheReporter interface {
	Stats() map[string]cache.Stats
}

// Deps are the components the stats and health endpoints report on. Any
// nil field is left out of the response.
type Deps struct {
	DB        Pinger
	Posts     Counter
	Users     Counter
	Jobs      QueueReporter
	Schedules job.ScheduleLister
	Monitor   *monitor.Monitor
	Caches    CacheReporter
	Metrics   *metrics.Collector
	Queries   *metrics.QueryMonitor
	Logs      *logger.Buffer
	Clock     clockwork.Clock
	// Responses caches GET /stats bodies when set.
	Responses *cache.Cache[any]
}

type Handler struct {
	deps    Deps
	clock   clockwork.Clock
	started time.Time
}

func NewHandler(d Deps) *Handler {
	clock := d.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Handler{deps: d, clock: clock, started: clock.Now()}
}

type StatsResponse struct {
	Posts      int `json:"posts"`
	Users      int `json:"users"`
	ActiveJobs int `json:"active_jobs"`
	FailedJobs int `json:"failed_jobs"`
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	slog.InfoContext(ctx, "getting stats", "correlationId", correlationID)

	load := func(ctx context.Context) (any, error) { return h.countAll(ctx) }
	var (
		resp any
		err  error
	)
	if h.deps.Responses != nil {
		resp, err = cache.GetOrLoad(ctx, h.deps.Responses, cache.APIResponseKey("stats", nil), 0, load)
	} else {
		resp, err = load(ctx)
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to compute stats", "error", err, "correlationId", correlationID)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to compute stats", http.StatusInternalServerError)
		return
	}

	h.writeJSON(ctx, w, http.StatusOK, map[string]interface{}{"data": resp})
}

func (h *Handler) countAll(ctx context.Context) (StatsResponse, error) {
	pCount, err := h.deps.Posts.Count(ctx)
	if err != nil {
		return StatsResponse{}, fmt.Errorf("count posts: %w", err)
	}

	uCount, err := h.deps.Users.Count(ctx)
	if err != nil {
		return StatsResponse{}, fmt.Errorf("count users: %w", err)
	}

	resp := StatsResponse{Posts: pCount, Users: uCount}
	if h.deps.Jobs != nil {
		qs := h.deps.Jobs.GetQueueStatus()
		resp.ActiveJobs = qs.ActiveJobs
		for _, ks := range qs.Queues {
			resp.FailedJobs += ks.Failed
		}
	}
	return resp, nil
}

// Logs serves GET /logs?level=ERROR&limit=100 from the in-memory buffer.
func (h *Handler) Logs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.deps.Logs == nil {
		h.writeError(ctx, w, "NOT_FOUND", "log buffer disabled", http.StatusNotFound)
		return
	}

	q := r.URL.Query()
	limit := defaultLogLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			h.writeError(ctx, w, "VALIDATION_ERROR", "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	entries := h.deps.Logs.Entries(strings.ToUpper(q.Get("level")), limit)
	h.writeJSON(ctx, w, http.StatusOK, map[string]interface{}{
		"data": entries,
		"meta": map[string]int{"count": len(entries)},
	})
}

const defaultLogLimit = 100

type Overall string

const (
	OverallHealthy   Overall = "healthy"
	OverallDegraded  Overall = "degraded"
	OverallUnhealthy Overall = "unhealthy"
)

type DatabaseCheck struct {
	Status    string `json:"status"`
	LatencyMs int64  `json:"latencyMs"`
	Error     string `json:"error,omitempty"`
}

type JobsReport struct {
	Queue     job.QueueStatus `json:"queue"`
	Scheduled []string        `json:"scheduled"`
}

type ErrorsReport struct {
	Status monitor.Status `json:"status"`
	Stats  monitor.Stats  `json:"stats"`
}

type LogsReport struct {
	RecentErrors int            `json:"recentErrors"`
	Latest       []logger.Entry `json:"latest"`
}

type HealthResponse struct {
	Status    Overall                       `json:"status"`
	Timestamp time.Time                     `json:"timestamp"`
	Uptime    float64                       `json:"uptimeSeconds"`
	Database  *DatabaseCheck                `json:"database,omitempty"`
	Jobs      *JobsReport                   `json:"jobs,omitempty"`
	Errors    *ErrorsReport                 `json:"errors,omitempty"`
	Caches    map[string]cache.Stats        `json:"caches,omitempty"`
	Requests  *metrics.Snapshot             `json:"requests,omitempty"`
	Queries   map[string]metrics.QueryStats `json:"queries,omitempty"`
	Logs      *LogsReport                   `json:"logs,omitempty"`
}

const latestErrorLogs = 10

// Health serves GET /health. It answers 503 only when the database is down;
// any other problem degrades the status but keeps 200.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := h.clock.Now()

	resp := HealthResponse{
		Status:    OverallHealthy,
		Timestamp: now.UTC(),
		Uptime:    now.Sub(h.started).Seconds(),
	}
	code := http.StatusOK

	if h.deps.DB != nil {
		resp.Database = h.pingDB(ctx)
		if resp.Database.Status != "up" {
			resp.Status = OverallUnhealthy
			code = http.StatusServiceUnavailable
		}
	}

	if h.deps.Jobs != nil {
		resp.Jobs = &JobsReport{Queue: h.deps.Jobs.GetQueueStatus(), Scheduled: []string{}}
		if h.deps.Schedules != nil {
			resp.Jobs.Scheduled = h.deps.Schedules.Names()
		}
		if resp.Jobs.Queue.ActiveJobs >= resp.Jobs.Queue.MaxConcurrentJobs {
			resp.Status = degrade(resp.Status)
		}
	}

	if h.deps.Monitor != nil {
		resp.Errors = &ErrorsReport{Status: h.deps.Monitor.Status(), Stats: h.deps.Monitor.GetErrorStats()}
		if resp.Errors.Status.Status == monitor.HealthCritical {
			resp.Status = degrade(resp.Status)
		}
	}

	if h.deps.Caches != nil {
		resp.Caches = h.deps.Caches.Stats()
	}
	if h.deps.Metrics != nil {
		snap := h.deps.Metrics.Requests().Snapshot()
		resp.Requests = &snap
	}
	if h.deps.Queries != nil {
		resp.Queries = h.deps.Queries.Stats()
	}
	if h.deps.Logs != nil {
		errs := h.deps.Logs.Entries(slog.LevelError.String(), 0)
		latest := errs
		if len(latest) > latestErrorLogs {
			latest = latest[len(latest)-latestErrorLogs:]
		}
		resp.Logs = &LogsReport{RecentErrors: len(errs), Latest: latest}
	}

	h.writeJSON(ctx, w, code, resp)
}

func degrade(s Overall) Overall {
	if s == OverallHealthy {
		return OverallDegraded
	}
	return s
}

func (h *Handler) pingDB(ctx context.Context) *DatabaseCheck {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	start := h.clock.Now()
	err := h.deps.DB.PingContext(ctx)
	check := &DatabaseCheck{Status: "up", LatencyMs: h.clock.Since(start).Milliseconds()}
	if err != nil {
		slog.ErrorContext(ctx, "health check database ping failed", "error", err)
		check.Status = "down"
		check.Error = err.Error()
	}
	return check
}

func (h *Handler) writeJSON(ctx context.Context, w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	h.writeJSON(ctx, w, status, map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	})
}

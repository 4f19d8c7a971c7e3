package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nsqio/go-nsq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"redditfit/features/job"
	"redditfit/features/post"
	"redditfit/features/rewrite"
	"redditfit/features/stats"
	"redditfit/features/user"
	"redditfit/internal/adapter/gemini"
	"redditfit/internal/adapter/reddit"
	"redditfit/internal/cache"
	"redditfit/internal/config"
	"redditfit/internal/logger"
	"redditfit/internal/metrics"
	"redditfit/internal/middleware"
	"redditfit/internal/monitor"
	"redditfit/internal/ratelimit"
	"redditfit/internal/settings"
	"redditfit/internal/worker"
)

const shutdownTimeout = 30 * time.Second

type App struct {
	Handler   http.Handler
	Processor *job.Processor
	Scheduler *job.ScheduledRunner
	Monitor   *monitor.Monitor
	Caches    *cache.Presets
	Limiters  *ratelimit.Presets

	JobConsumer *worker.JobConsumer

	cfg      *config.Config
	rewriter *gemini.DynamicRewriter
	logger   *slog.Logger
}

// New wires every component. pub may be nil, in which case alerts are only
// logged. logs may be nil to disable the in-memory log buffer.
func New(
	cfg *config.Config,
	db *sql.DB,
	pub monitor.Publisher,
	log *slog.Logger,
	logs *logger.Buffer,
	reg *prometheus.Registry,
) (*App, error) {
	if log == nil {
		log = slog.Default()
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	collector := metrics.NewCollector(reg)
	queries := metrics.NewQueryMonitor(log)

	// Feature: Settings
	settingsRepo := settings.NewPostgresRepo(db)
	settingsService := settings.NewService(settingsRepo, settings.WithFallback(cfg.GeminiAPIKey, cfg.RewriteModel))
	settingsHandler := settings.NewHandler(settingsService)

	// Error monitor
	var notifier monitor.Notifier = monitor.NewLogNotifier(log)
	if pub != nil {
		notifier = monitor.NewNSQNotifier(pub, config.TopicErrorAlert)
	}
	mon := monitor.New(
		monitor.WithLogger(log),
		monitor.WithNotifier(notifier),
		monitor.WithRecipient(cfg.ErrorAlertEmail),
		monitor.WithCooldown(cfg.AlertCooldown),
	)
	monitorHandler := monitor.NewHandler(mon)

	caches := cache.NewPresets(cache.WithLogger(log))
	limiters := ratelimit.NewPresets(ratelimit.WithLogger(log))

	postRepo := post.NewPostgresRepo(db)
	userRepo := user.NewPostgresRepo(db)
	rewriter := gemini.NewDynamicRewriter(settingsService)
	rules := reddit.NewRulesFetcher(caches.SubredditRules, reddit.WithLogger(log))

	// Feature: User
	userService := user.NewService(userRepo, postRepo, user.WithCache(caches.UserData), user.WithLogger(log))
	userHandler := user.NewHandler(userService)

	// Feature: Rewrite
	rewriteService := rewrite.NewService(rewriter, rules, postRepo, userService, rewrite.WithLogger(log))
	rewriteHandler := rewrite.NewHandler(rewriteService)

	// Feature: Job

	runner := job.NewRunner(rewriter, rules, postRepo, userRepo,
		job.WithPacing(cfg.BulkRewriteDelay),
		job.WithRunnerLogger(log),
		job.WithQueryMonitor(queries),
	)
	processor := job.NewProcessor(runner,
		job.WithMaxConcurrentJobs(cfg.MaxConcurrentJobs),
		job.WithLogger(log),
		job.WithMetrics(collector),
		job.WithOnFailure(func(id string, kind job.Kind, err error) {
			mon.CaptureError(err, monitor.Context{
				URL:      "job://" + string(kind),
				Metadata: map[string]any{"jobId": id, "type": string(kind)},
			}, monitor.SeverityMedium)
		}),
	)
	scheduler := job.NewScheduledRunner(processor, nil, log)
	jobHandler := job.NewHandler(processor, scheduler,
		job.WithSubmitGuard(freeBulkQuota(userService, limiters.FreeUser)))

	// Feature: Stats
	statsHandler := stats.NewHandler(stats.Deps{
		DB:        db,
		Posts:     postRepo,
		Users:     userRepo,
		Jobs:      processor,
		Schedules: scheduler,
		Monitor:   mon,
		Caches:    caches,
		Metrics:   collector,
		Queries:   queries,
		Logs:      logs,
		Responses: caches.APIResponses,
	})

	// Middleware: CORS
	enableCORS := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-User-ID, X-Correlation-ID")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next(w, r)
		}
	}
	limited := func(l *ratelimit.Limiter, keyFn middleware.KeyFunc, h http.HandlerFunc) http.Handler {
		if !cfg.RateLimitEnabled {
			return h
		}
		return middleware.RateLimit(l, keyFn)(h)
	}

	// Routes
	mux := http.NewServeMux()

	mux.Handle("POST /jobs", limited(limiters.Rewrite, userOrIP, enableCORS(jobHandler.Submit)))
	mux.Handle("GET /jobs", enableCORS(jobHandler.List))
	mux.Handle("DELETE /jobs/completed", enableCORS(jobHandler.ClearCompleted))
	mux.Handle("GET /jobs/{id}", enableCORS(jobHandler.Get))

	mux.Handle("POST /rewrite", limited(limiters.Rewrite, userOrIP, enableCORS(rewriteHandler.Rewrite)))
	mux.Handle("GET /rewrite/rules", enableCORS(rewriteHandler.Rules))
	mux.Handle("GET /rewrite/history", enableCORS(rewriteHandler.History))
	mux.Handle("DELETE /rewrite/history/{id}", enableCORS(rewriteHandler.DeleteHistory))
	mux.Handle("GET /analytics", enableCORS(rewriteHandler.Analytics))

	mux.Handle("GET /user/plan", enableCORS(userHandler.GetPlan))
	mux.Handle("GET /backup", enableCORS(userHandler.Export))
	mux.Handle("GET /backup/info", enableCORS(userHandler.Info))
	mux.Handle("DELETE /backup", limited(limiters.Auth, userOrIP, enableCORS(userHandler.Delete)))

	mux.Handle("GET /errors", enableCORS(monitorHandler.List))
	mux.Handle("DELETE /errors", enableCORS(monitorHandler.Clear))
	mux.Handle("GET /errors/{id}", enableCORS(monitorHandler.Get))
	mux.Handle("POST /errors/{id}/resolve", enableCORS(monitorHandler.Resolve))

	mux.Handle("GET /settings", enableCORS(settingsHandler.GetSettings))
	mux.Handle("PUT /settings", limited(limiters.Auth, userOrIP, enableCORS(settingsHandler.UpdateSettings)))

	mux.Handle("GET /stats", enableCORS(statsHandler.GetStats))
	mux.Handle("GET /logs", enableCORS(statsHandler.Logs))
	mux.HandleFunc("GET /health", statsHandler.Health)
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	// Monitor must wrap the mux directly so it sees the matched pattern.
	var handler http.Handler = middleware.Monitor(collector, mon.ReportServerError)(mux)
	if cfg.RateLimitEnabled {
		handler = middleware.RateLimit(limiters.API, middleware.ClientIP)(handler)
	}
	handler = middleware.CorrelationID(handler)

	return &App{
		Handler:     handler,
		Processor:   processor,
		Scheduler:   scheduler,
		Monitor:     mon,
		Caches:      caches,
		Limiters:    limiters,
		JobConsumer: worker.NewJobConsumer(processor),
		cfg:         cfg,
		rewriter:    rewriter,
		logger:      log,
	}, nil
}

// userOrIP keys authenticated callers by user id and everyone else by IP.
func userOrIP(r *http.Request) string {
	if id := r.Header.Get("X-User-ID"); id != "" {
		return "user:" + id
	}
	return "ip:" + middleware.ClientIP(r)
}

// PlanReader reports a user's plan.
type PlanReader interface {
	GetPlan(ctx context.Context, externalID string) (*user.Plan, *user.User, error)
}

// freeBulkQuota lets a free account submit one bulk rewrite per limiter
// window. Other plans and job kinds pass.
func freeBulkQuota(plans PlanReader, l *ratelimit.Limiter) job.SubmitGuard {
	return func(ctx context.Context, userID string, p job.Payload) error {
		if p.Kind() != job.KindBulkRewrite {
			return nil
		}
		plan, _, err := plans.GetPlan(ctx, userID)
		if err != nil {
			return err
		}
		if plan.Plan != user.PlanFree {
			return nil
		}
		if res := l.Allow(userID); !res.Allowed {
			return fmt.Errorf("%w: free plan allows %d bulk rewrite per day, next at %s",
				job.ErrQuotaExceeded, l.Limit(), res.ResetTime.UTC().Format(time.RFC3339))
		}
		return nil
	}
}

// Run serves HTTP and runs the scheduler and job consumer until ctx ends,
// then shuts everything down in reverse order.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.ServerPort),
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Nothing may be running yet if the consumer fails to connect.
	var consumer *nsq.Consumer
	if a.cfg.EnableJobConsumer {
		c, err := nsq.NewConsumer(config.TopicJobSubmit, "backend", nsq.NewConfig())
		if err != nil {
			return fmt.Errorf("nsq consumer error: %w", err)
		}
		c.AddHandler(a.JobConsumer)
		if err := c.ConnectToNSQLookupd(a.cfg.NSQLookupd); err != nil {
			c.Stop()
			return fmt.Errorf("failed to connect to NSQLookupd: %w", err)
		}
		a.logger.Info("NSQ job consumer connected", "topic", config.TopicJobSubmit)
		consumer = c
	}

	if a.cfg.EnableScheduledJobs {
		if err := job.ScheduleDefaults(a.Scheduler, a.cfg.CleanupRetention); err != nil {
			if consumer != nil {
				consumer.Stop()
			}
			return fmt.Errorf("schedule default jobs: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("server starting", "port", a.cfg.ServerPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if consumer != nil {
		g.Go(func() error {
			<-gctx.Done()
			consumer.Stop()
			<-consumer.StopChan
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("server shutdown failed", "error", err)
		}
		a.Scheduler.StopAll()
		if err := a.Processor.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("jobs still running at shutdown", "error", err)
		}
		a.Monitor.Close()
		a.Caches.Close()
		if err := a.rewriter.Close(); err != nil {
			a.logger.Warn("failed to close genai client", "error", err)
		}
		return nil
	})

	return g.Wait()
}

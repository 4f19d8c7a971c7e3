package job

import (
	"context"
	"fmt"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"redditfit/features/post"
	"redditfit/features/user"
	"redditfit/internal/metrics"
)

// DefaultRewritePacing is the gap between consecutive items of a bulk rewrite.
const DefaultRewritePacing = 100 * time.Millisecond

type Rewriter interface {
	Rewrite(ctx context.Context, d post.Draft, rules []string) (*post.Rewrite, error)
}

type RulesSource interface {
	Rules(ctx context.Context, subreddit string) ([]string, error)
}

type PostStore interface {
	Create(ctx context.Context, p *post.Post) error
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	ListByUser(ctx context.Context, userID string) ([]post.Post, error)
	ListAll(ctx context.Context) ([]post.Post, error)
}

type UserStore interface {
	GetOrCreate(ctx context.Context, externalID string) (*user.User, error)
	FindByExternalID(ctx context.Context, externalID string) (*user.User, error)
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Count(ctx context.Context) (int, error)
	MigratePlan(ctx context.Context, from, to string) (int64, error)
}

type RewriteItem struct {
	Original    post.Draft    `json:"original"`
	Rewrite     *post.Rewrite `json:"rewrite,omitempty"`
	PostID      string        `json:"postId,omitempty"`
	Status      string        `json:"status"`
	Error       string        `json:"error,omitempty"`
	ProcessedAt time.Time     `json:"processedAt"`
}

type BulkRewriteResult struct {
	TotalProcessed int           `json:"totalProcessed"`
	Successful     int           `json:"successful"`
	Failed         int           `json:"failed"`
	Results        []RewriteItem `json:"results"`
}

type CleanupResult struct {
	DeletedPosts int64         `json:"deletedPosts"`
	DeletedUsers int64         `json:"deletedUsers"`
	Duration     time.Duration `json:"duration"`
}

type UserAnalytics struct {
	UserID            string                `json:"userId"`
	TotalPosts        int                   `json:"totalPosts"`
	AverageCompliance int                   `json:"averageCompliance"`
	TopSubreddits     []post.SubredditCount `json:"topSubreddits"`
}

type GlobalAnalytics struct {
	TotalPosts        int `json:"totalPosts"`
	TotalUsers        int `json:"totalUsers"`
	AverageCompliance int `json:"averageCompliance"`
}

type MigrationResult struct {
	MigratedUsers int64         `json:"migratedUsers"`
	FromPlan      string        `json:"fromPlan"`
	ToPlan        string        `json:"toPlan"`
	Duration      time.Duration `json:"duration"`
}

type RunnerOption func(*Runner)

// WithPacing sets the gap between bulk rewrite items. Zero disables pacing.
func WithPacing(d time.Duration) RunnerOption {
	return func(r *Runner) { r.pacing = d }
}

func WithRunnerClock(c clockwork.Clock) RunnerOption {
	return func(r *Runner) { r.clock = c }
}

func WithRunnerLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

func WithQueryMonitor(m *metrics.QueryMonitor) RunnerOption {
	return func(r *Runner) { r.queries = m }
}

// Runner is the Executor for the four built-in job kinds.
type Runner struct {
	rewriter Rewriter
	rules    RulesSource
	posts    PostStore
	users    UserStore

	pacing  time.Duration
	clock   clockwork.Clock
	logger  *slog.Logger
	queries *metrics.QueryMonitor
}

func NewRunner(rw Rewriter, rules RulesSource, posts PostStore, users UserStore, opts ...RunnerOption) *Runner {
	r := &Runner{
		rewriter: rw,
		rules:    rules,
		posts:    posts,
		users:    users,
		pacing:   DefaultRewritePacing,
		clock:    clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

func (r *Runner) Execute(ctx context.Context, p Payload) (any, error) {
	switch v := p.(type) {
	case BulkRewrite:
		return r.bulkRewrite(ctx, v)
	case DataCleanup:
		return r.dataCleanup(ctx, v)
	case AnalyticsUpdate:
		if v.UserID != "" {
			return r.userAnalytics(ctx, v.UserID)
		}
		return r.globalAnalytics(ctx)
	case UserMigration:
		return r.userMigration(ctx, v)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownKind, p)
	}
}

// bulkRewrite handles posts one at a time. A failing item is recorded and
// the batch carries on. The account is resolved up front; without it the
// whole job fails.
func (r *Runner) bulkRewrite(ctx context.Context, p BulkRewrite) (*BulkRewriteResult, error) {
	u, err := r.users.GetOrCreate(ctx, p.UserID)
	if err != nil {
		return nil, fmt.Errorf("resolve user %s: %w", p.UserID, err)
	}

	limit := rate.Inf
	if r.pacing > 0 {
		limit = rate.Every(r.pacing)
	}
	pace := rate.NewLimiter(limit, 1)

	res := &BulkRewriteResult{TotalProcessed: len(p.Posts), Results: make([]RewriteItem, 0, len(p.Posts))}
	for _, d := range p.Posts {
		if err := pace.Wait(ctx); err != nil {
			return nil, fmt.Errorf("bulk rewrite interrupted: %w", err)
		}

		item := RewriteItem{Original: d}
		rw, id, err := r.rewriteOne(ctx, u.ID, d)
		item.ProcessedAt = r.clock.Now()
		if err != nil {
			item.Status = "failed"
			item.Error = err.Error()
			res.Failed++
			r.logger.Warn("bulk rewrite item failed", "user_id", p.UserID, "subreddit", d.Subreddit, "error", err)
		} else {
			item.Status = "completed"
			item.Rewrite = rw
			item.PostID = id
			res.Successful++
		}
		res.Results = append(res.Results, item)
	}
	return res, nil
}

func (r *Runner) rewriteOne(ctx context.Context, userID string, d post.Draft) (*post.Rewrite, string, error) {
	rules, err := r.rules.Rules(ctx, d.Subreddit)
	if err != nil {
		return nil, "", fmt.Errorf("fetch rules for r/%s: %w", d.Subreddit, err)
	}

	rw, err := r.rewriter.Rewrite(ctx, d, rules)
	if err != nil {
		return nil, "", fmt.Errorf("rewrite: %w", err)
	}

	saved := post.FromRewrite(userID, d, rw)
	if err := r.posts.Create(ctx, saved); err != nil {
		return nil, "", fmt.Errorf("save post: %w", err)
	}
	return rw, saved.ID, nil
}

// dataCleanup deletes posts created before the cutoff, then accounts older
// than the cutoff that no longer own any posts.
func (r *Runner) dataCleanup(ctx context.Context, p DataCleanup) (*CleanupResult, error) {
	start := r.clock.Now()

	posts, err := r.posts.DeleteCreatedBefore(ctx, p.OlderThan)
	if err != nil {
		return nil, fmt.Errorf("delete posts: %w", err)
	}
	users, err := r.users.DeleteCreatedBefore(ctx, p.OlderThan)
	if err != nil {
		return nil, fmt.Errorf("delete users: %w", err)
	}

	d := r.clock.Since(start)
	r.queries.RecordQuery("data_cleanup", d)
	return &CleanupResult{DeletedPosts: posts, DeletedUsers: users, Duration: d}, nil
}

// userAnalytics reports on the account known by externalID. An unknown
// account has no posts.
func (r *Runner) userAnalytics(ctx context.Context, externalID string) (*UserAnalytics, error) {
	start := r.clock.Now()

	u, err := r.users.FindByExternalID(ctx, externalID)
	if errors.Is(err, user.ErrNotFound) {
		return &UserAnalytics{UserID: externalID, TopSubreddits: []post.SubredditCount{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user %s: %w", externalID, err)
	}

	posts, err := r.posts.ListByUser(ctx, u.ID)
	if err != nil {
		return nil, fmt.Errorf("list posts for %s: %w", externalID, err)
	}

	r.queries.RecordQuery("analytics_update", r.clock.Since(start))
	return &UserAnalytics{
		UserID:            externalID,
		TotalPosts:        len(posts),
		AverageCompliance: post.AverageCompliance(posts),
		TopSubreddits:     post.TopSubreddits(posts, 10),
	}, nil
}

func (r *Runner) globalAnalytics(ctx context.Context) (*GlobalAnalytics, error) {
	start := r.clock.Now()

	posts, err := r.posts.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	users, err := r.users.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}

	r.queries.RecordQuery("global_analytics_update", r.clock.Since(start))
	return &GlobalAnalytics{
		TotalPosts:        len(posts),
		TotalUsers:        users,
		AverageCompliance: post.AverageCompliance(posts),
	}, nil
}

func (r *Runner) userMigration(ctx context.Context, p UserMigration) (*MigrationResult, error) {
	start := r.clock.Now()

	n, err := r.users.MigratePlan(ctx, p.FromPlan, p.ToPlan)
	if err != nil {
		return nil, fmt.Errorf("migrate %s to %s: %w", p.FromPlan, p.ToPlan, err)
	}

	d := r.clock.Since(start)
	r.queries.RecordQuery("user_migration", d)
	return &MigrationResult{MigratedUsers: n, FromPlan: p.FromPlan, ToPlan: p.ToPlan, Duration: d}, nil
}

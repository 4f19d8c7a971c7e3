// Package rewrite serves single interactive rewrites against a user's daily
// allowance, together with the history and analytics of saved rewrites.
package rewrite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jonboulle/clockwork"

	"redditfit/features/post"
	"redditfit/features/user"
)

// TrendDays is how many days of daily counts Analytics reports.
const TrendDays = 30

var (
	ErrInvalidDraft  = errors.New("title and subreddit are required")
	ErrQuotaExceeded = errors.New("daily rewrite limit reached")
	ErrPostNotFound  = errors.New("post not found")
)

// QuotaError carries the allowance that refused a rewrite.
type QuotaError struct {
	Plan *user.Plan
}

func (e *QuotaError) Error() string { return ErrQuotaExceeded.Error() }
func (e *QuotaError) Unwrap() error { return ErrQuotaExceeded }

type Rewriter interface {
	Rewrite(ctx context.Context, d post.Draft, rules []string) (*post.Rewrite, error)
}

type RulesSource interface {
	Rules(ctx context.Context, subreddit string) ([]string, error)
}

type PostStore interface {
	Create(ctx context.Context, p *post.Post) error
	ListByUser(ctx context.Context, userID string) ([]post.Post, error)
	DeleteForUser(ctx context.Context, id, userID string) (bool, error)
}

type Accounts interface {
	GetPlan(ctx context.Context, externalID string) (*user.Plan, *user.User, error)
	RecordRewrite(ctx context.Context, u *user.User) error
	Find(ctx context.Context, externalID string) (*user.User, error)
}

type Result struct {
	post.Rewrite
	PostID string     `json:"postId,omitempty"`
	Plan   *user.Plan `json:"plan"`
}

type Analytics struct {
	TotalRewrites     int                   `json:"totalRewrites"`
	AverageCompliance int                   `json:"averageCompliance"`
	TopSubreddits     []post.SubredditCount `json:"topSubreddits"`
	RecentTrends      []post.DayCount       `json:"recentTrends"`
}

type Option func(*Service)

func WithClock(c clockwork.Clock) Option {
	return func(s *Service) { s.clock = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

type Service struct {
	rewriter Rewriter
	rules    RulesSource
	posts    PostStore
	accounts Accounts
	clock    clockwork.Clock
	logger   *slog.Logger
}

func NewService(rw Rewriter, rules RulesSource, posts PostStore, accounts Accounts, opts ...Option) *Service {
	s := &Service{
		rewriter: rw,
		rules:    rules,
		posts:    posts,
		accounts: accounts,
		clock:    clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Rewrite runs one draft through the model for externalID. Missing rules
// degrade to a rewrite without them. Once the model has answered, failing
// to save or count the rewrite is logged and the answer is still returned.
func (s *Service) Rewrite(ctx context.Context, externalID string, d post.Draft) (*Result, error) {
	d.Title = strings.TrimSpace(d.Title)
	d.Subreddit = strings.TrimSpace(d.Subreddit)
	if d.Title == "" || d.Subreddit == "" {
		return nil, ErrInvalidDraft
	}

	plan, u, err := s.accounts.GetPlan(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if !plan.CanRewrite {
		return nil, &QuotaError{Plan: plan}
	}

	rules, err := s.rules.Rules(ctx, d.Subreddit)
	if err != nil {
		s.logger.WarnContext(ctx, "rewriting without subreddit rules", "subreddit", d.Subreddit, "error", err)
		rules = nil
	}

	rw, err := s.rewriter.Rewrite(ctx, d, rules)
	if err != nil {
		return nil, fmt.Errorf("rewrite: %w", err)
	}
	if rw.Body == "" {
		rw.Body = d.Body
	}

	res := &Result{Rewrite: *rw}
	saved := post.FromRewrite(u.ID, d, rw)
	if err := s.posts.Create(ctx, saved); err != nil {
		s.logger.ErrorContext(ctx, "failed to save rewrite", "user_id", externalID, "error", err)
	} else {
		res.PostID = saved.ID
	}
	if err := s.accounts.RecordRewrite(ctx, u); err != nil {
		s.logger.ErrorContext(ctx, "failed to count rewrite", "user_id", externalID, "error", err)
	}

	after := *plan
	after.RewritesUsed++
	after.CanRewrite = user.CanRewrite(after.Plan, after.RewritesUsed, after.RewritesLimit)
	res.Plan = &after
	return res, nil
}

// Rules returns the posting rules of subreddit.
func (s *Service) Rules(ctx context.Context, subreddit string) ([]string, error) {
	subreddit = strings.TrimSpace(subreddit)
	if subreddit == "" {
		return nil, fmt.Errorf("%w: subreddit", ErrInvalidDraft)
	}
	return s.rules.Rules(ctx, subreddit)
}

// History lists the saved rewrites of externalID, newest first.
func (s *Service) History(ctx context.Context, externalID string) ([]post.Post, error) {
	return s.postsOf(ctx, externalID)
}

// DeleteHistory removes one saved rewrite owned by externalID.
func (s *Service) DeleteHistory(ctx context.Context, externalID, postID string) error {
	u, err := s.accounts.Find(ctx, externalID)
	if errors.Is(err, user.ErrNotFound) {
		return ErrPostNotFound
	}
	if err != nil {
		return err
	}

	ok, err := s.posts.DeleteForUser(ctx, postID, u.ID)
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	if !ok {
		return ErrPostNotFound
	}
	return nil
}

// Analytics summarises the saved rewrites of externalID.
func (s *Service) Analytics(ctx context.Context, externalID string) (*Analytics, error) {
	posts, err := s.postsOf(ctx, externalID)
	if err != nil {
		return nil, err
	}
	return &Analytics{
		TotalRewrites:     len(posts),
		AverageCompliance: post.AverageCompliance(posts),
		TopSubreddits:     post.TopSubreddits(posts, 10),
		RecentTrends:      post.DailyCounts(posts, s.clock.Now(), TrendDays),
	}, nil
}

// postsOf lists the posts of externalID. An unknown account has none.
func (s *Service) postsOf(ctx context.Context, externalID string) ([]post.Post, error) {
	u, err := s.accounts.Find(ctx, externalID)
	if errors.Is(err, user.ErrNotFound) {
		return []post.Post{}, nil
	}
	if err != nil {
		return nil, err
	}

	posts, err := s.posts.ListByUser(ctx, u.ID)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	if posts == nil {
		posts = []post.Post{}
	}
	return posts, nil
}

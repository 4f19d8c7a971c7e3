package user

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"redditfit/features/post"
	"redditfit/internal/cache"
)

const backupVersion = "1.0.0"

type Repository interface {
	GetOrCreate(ctx context.Context, externalID string) (*User, error)
	FindByExternalID(ctx context.Context, externalID string) (*User, error)
	IncrementRewrites(ctx context.Context, id string) error
	ResetRewrites(ctx context.Context, id string) error
	DeleteWithPosts(ctx context.Context, id string) (int64, error)
}

type PostLister interface {
	ListByUser(ctx context.Context, userID string) ([]post.Post, error)
}

// Plan is a user's rewrite allowance as of now.
type Plan struct {
	Plan          string    `json:"plan"`
	RewritesUsed  int       `json:"rewritesUsed"`
	RewritesLimit int       `json:"rewritesLimit"`
	CanRewrite    bool      `json:"canRewrite"`
	ResetDate     time.Time `json:"resetDate"`
}

// CanRewrite reports whether one more rewrite fits the allowance. Pro
// accounts and negative limits are unlimited.
func CanRewrite(plan string, used, limit int) bool {
	return plan == PlanPro || limit < 0 || used < limit
}

type Backup struct {
	Version   string         `json:"version"`
	Timestamp time.Time      `json:"timestamp"`
	UserID    string         `json:"userId"`
	User      *User          `json:"user"`
	Posts     []post.Post    `json:"posts"`
	Metadata  BackupMetadata `json:"metadata"`
}

type BackupMetadata struct {
	TotalPosts        int `json:"totalPosts"`
	TotalRewrites     int `json:"totalRewrites"`
	AverageCompliance int `json:"averageCompliance"`
}

type BackupInfo struct {
	LastBackup    *time.Time `json:"lastBackup"`
	TotalPosts    int        `json:"totalPosts"`
	TotalRewrites int        `json:"totalRewrites"`
}

type ServiceOption func(*Service)

// WithCache keeps resolved accounts in c under cache.UserDataKey.
func WithCache(c *cache.Cache[any]) ServiceOption {
	return func(s *Service) { s.cache = c }
}

func WithClock(c clockwork.Clock) ServiceOption {
	return func(s *Service) { s.clock = c }
}

func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// Service owns account lookup, the daily rewrite allowance and the
// export/delete lifecycle of a user's data.
type Service struct {
	repo   Repository
	posts  PostLister
	cache  *cache.Cache[any]
	clock  clockwork.Clock
	logger *slog.Logger
}

func NewService(repo Repository, posts PostLister, opts ...ServiceOption) *Service {
	s := &Service{repo: repo, posts: posts, clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Resolve returns the account for externalID, creating it on first use.
func (s *Service) Resolve(ctx context.Context, externalID string) (*User, error) {
	load := func(ctx context.Context) (any, error) { return s.repo.GetOrCreate(ctx, externalID) }
	return s.lookup(ctx, externalID, load)
}

// Find returns the account for externalID without creating it.
func (s *Service) Find(ctx context.Context, externalID string) (*User, error) {
	load := func(ctx context.Context) (any, error) { return s.repo.FindByExternalID(ctx, externalID) }
	return s.lookup(ctx, externalID, load)
}

func (s *Service) lookup(ctx context.Context, externalID string, load func(context.Context) (any, error)) (*User, error) {
	var (
		v   any
		err error
	)
	if s.cache != nil {
		v, err = cache.GetOrLoad(ctx, s.cache, cache.UserDataKey(externalID), 0, load)
	} else {
		v, err = load(ctx)
	}
	if err != nil {
		return nil, err
	}
	u := *v.(*User)
	return &u, nil
}

// GetPlan reports the allowance of externalID. A free account whose last
// rewrite happened on an earlier UTC day starts the day at zero.
func (s *Service) GetPlan(ctx context.Context, externalID string) (*Plan, *User, error) {
	u, err := s.Resolve(ctx, externalID)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve user: %w", err)
	}

	now := s.clock.Now().UTC()
	if u.Plan == PlanFree && u.RewritesUsed > 0 && !sameDay(u.UpdatedAt.UTC(), now) {
		if err := s.repo.ResetRewrites(ctx, u.ID); err != nil {
			return nil, nil, fmt.Errorf("reset daily rewrites: %w", err)
		}
		s.logger.Debug("daily rewrites reset", "user_id", externalID, "used", u.RewritesUsed)
		u.RewritesUsed = 0
		u.UpdatedAt = now
		s.invalidate(externalID)
	}

	return &Plan{
		Plan:          u.Plan,
		RewritesUsed:  u.RewritesUsed,
		RewritesLimit: u.RewritesLimit,
		CanRewrite:    CanRewrite(u.Plan, u.RewritesUsed, u.RewritesLimit),
		ResetDate:     nextMidnight(now),
	}, u, nil
}

// RecordRewrite counts one rewrite against u.
func (s *Service) RecordRewrite(ctx context.Context, u *User) error {
	defer s.invalidate(u.ExternalID)
	return s.repo.IncrementRewrites(ctx, u.ID)
}

// Export collects everything stored for externalID.
func (s *Service) Export(ctx context.Context, externalID string) (*Backup, error) {
	u, err := s.Find(ctx, externalID)
	if err != nil {
		return nil, err
	}
	posts, err := s.listPosts(ctx, u)
	if err != nil {
		return nil, err
	}

	return &Backup{
		Version:   backupVersion,
		Timestamp: s.clock.Now().UTC(),
		UserID:    externalID,
		User:      u,
		Posts:     posts,
		Metadata: BackupMetadata{
			TotalPosts:        len(posts),
			TotalRewrites:     u.RewritesUsed,
			AverageCompliance: post.AverageCompliance(posts),
		},
	}, nil
}

// BackupInfo summarises what an export would contain. LastBackup is the
// time of the newest post.
func (s *Service) BackupInfo(ctx context.Context, externalID string) (*BackupInfo, error) {
	u, err := s.Find(ctx, externalID)
	if err != nil {
		return nil, err
	}
	posts, err := s.listPosts(ctx, u)
	if err != nil {
		return nil, err
	}

	info := &BackupInfo{TotalPosts: len(posts), TotalRewrites: u.RewritesUsed}
	for i := range posts {
		if info.LastBackup == nil || posts[i].CreatedAt.After(*info.LastBackup) {
			t := posts[i].CreatedAt
			info.LastBackup = &t
		}
	}
	return info, nil
}

// DeleteData removes the account and all of its posts and returns the
// number of posts deleted.
func (s *Service) DeleteData(ctx context.Context, externalID string) (int64, error) {
	u, err := s.Find(ctx, externalID)
	if err != nil {
		return 0, err
	}
	defer s.invalidate(externalID)

	n, err := s.repo.DeleteWithPosts(ctx, u.ID)
	if err != nil {
		return 0, fmt.Errorf("delete user data: %w", err)
	}
	s.logger.Info("user data deleted", "user_id", externalID, "posts", n)
	return n, nil
}

// BackupFilename names the export download for externalID on now's date.
func BackupFilename(externalID string, now time.Time) string {
	return fmt.Sprintf("redditfit-backup-%s-%s.json", externalID, now.UTC().Format(time.DateOnly))
}

func (s *Service) listPosts(ctx context.Context, u *User) ([]post.Post, error) {
	posts, err := s.posts.ListByUser(ctx, u.ID)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	if posts == nil {
		posts = []post.Post{}
	}
	return posts, nil
}

func (s *Service) invalidate(externalID string) {
	if s.cache != nil {
		s.cache.Delete(cache.UserDataKey(externalID))
	}
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

func nextMidnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC)
}

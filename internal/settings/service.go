package settings

import (
	"context"
)

const DefaultRewriteModel = "gemini-1.5-flash"

type Settings struct {
	ID           int    `json:"-"`
	GeminiAPIKey string `json:"gemini_api_key"`
	RewriteModel string `json:"rewrite_model"`
}

type Repository interface {
	Get(ctx context.Context) (*Settings, error)
	Update(ctx context.Context, s *Settings) error
}

type Option func(*Service)

// WithFallback supplies the values used when the stored row leaves a field
// empty, typically the GEMINI_API_KEY and REWRITE_MODEL environment values.
func WithFallback(apiKey, model string) Option {
	return func(s *Service) {
		s.fallbackKey = apiKey
		if model != "" {
			s.fallbackModel = model
		}
	}
}

type Service struct {
	repo          Repository
	fallbackKey   string
	fallbackModel string
}

func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{repo: repo, fallbackModel: DefaultRewriteModel}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Get(ctx context.Context) (*Settings, error) {
	set, err := s.repo.Get(ctx)
	if err != nil {
		return nil, err
	}
	if set.GeminiAPIKey == "" {
		set.GeminiAPIKey = s.fallbackKey
	}
	if set.RewriteModel == "" {
		set.RewriteModel = s.fallbackModel
	}
	return set, nil
}

func (s *Service) Update(ctx context.Context, set *Settings) error {
	if set.RewriteModel == "" {
		set.RewriteModel = s.fallbackModel
	}
	return s.repo.Update(ctx, set)
}

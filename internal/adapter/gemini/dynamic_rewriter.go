package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"redditfit/features/post"
	"redditfit/internal/settings"
)

// DynamicRewriter reads the API key and model from settings on every call
// and rebuilds its client when the key changes.
type DynamicRewriter struct {
	settingsSvc *settings.Service
	client      *genai.Client
	currentKey  string
	mu          sync.RWMutex
	clientOpts  []option.ClientOption
}

func NewDynamicRewriter(svc *settings.Service, opts ...option.ClientOption) *DynamicRewriter {
	return &DynamicRewriter{
		settingsSvc: svc,
		clientOpts:  opts,
	}
}

func (r *DynamicRewriter) Rewrite(ctx context.Context, d post.Draft, rules []string) (*post.Rewrite, error) {
	s, err := r.settingsSvc.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}

	if s.GeminiAPIKey == "" {
		return nil, fmt.Errorf("gemini api key not configured")
	}

	client, err := r.getClient(ctx, s.GeminiAPIKey)
	if err != nil {
		return nil, err
	}

	return generate(ctx, client, s.RewriteModel, d, rules)
}

func (r *DynamicRewriter) getClient(ctx context.Context, key string) (*genai.Client, error) {
	r.mu.RLock()
	if r.client != nil && r.currentKey == key {
		defer r.mu.RUnlock()
		return r.client, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client != nil && r.currentKey == key {
		return r.client, nil
	}

	if r.client != nil {
		if err := r.client.Close(); err != nil {
			slog.Warn("failed to close previous genai client", "error", err)
		}
	}

	opts := append(append([]option.ClientOption(nil), r.clientOpts...), option.WithAPIKey(key))
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}

	r.client = client
	r.currentKey = key
	return client, nil
}

func (r *DynamicRewriter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client == nil {
		return nil
	}
	err := r.client.Close()
	r.client = nil
	r.currentKey = ""
	return err
}

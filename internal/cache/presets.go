package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Tunings for the named application caches.
var (
	SubredditRulesConfig = Config{DefaultTTL: time.Hour, MaxSize: 1000, CleanupInterval: 30 * time.Minute}
	UserDataConfig       = Config{DefaultTTL: 5 * time.Minute, MaxSize: 100, CleanupInterval: 5 * time.Minute}
	APIResponsesConfig   = Config{DefaultTTL: 30 * time.Second, MaxSize: 500, CleanupInterval: time.Minute}
)

// Presets groups the application caches so they share one lifecycle.
type Presets struct {
	SubredditRules *Cache[any]
	UserData       *Cache[any]
	APIResponses   *Cache[any]
}

// NewPresets builds the three application caches. opts apply to each of
// them; the instance name is set per cache.
func NewPresets(opts ...Option) *Presets {
	named := func(name string) []Option {
		return append(append([]Option{}, opts...), WithName(name))
	}
	return &Presets{
		SubredditRules: New[any](SubredditRulesConfig, named("subreddit_rules")...),
		UserData:       New[any](UserDataConfig, named("user_data")...),
		APIResponses:   New[any](APIResponsesConfig, named("api_responses")...),
	}
}

// Stats reports every preset keyed by name.
func (p *Presets) Stats() map[string]Stats {
	return map[string]Stats{
		"subreddit_rules": p.SubredditRules.Stats(),
		"user_data":       p.UserData.Stats(),
		"api_responses":   p.APIResponses.Stats(),
	}
}

// Close stops every preset.
func (p *Presets) Close() {
	p.SubredditRules.Close()
	p.UserData.Close()
	p.APIResponses.Close()
}

func SubredditRulesKey(subreddit string) string {
	return "rules:" + strings.ToLower(subreddit)
}

func UserDataKey(userID string) string {
	return "user:" + userID
}

// APIResponseKey encodes params as JSON so equal parameter sets share a key.
func APIResponseKey(endpoint string, params any) string {
	b, err := json.Marshal(params)
	if err != nil {
		return fmt.Sprintf("api:%s:%v", endpoint, params)
	}
	return fmt.Sprintf("api:%s:%s", endpoint, b)
}

// GetOrLoad returns the cached value for key, or calls load and caches its
// result under ttl (zero means the cache default). Load errors are not cached.
func GetOrLoad[V any](ctx context.Context, c *Cache[V], key string, ttl time.Duration, load func(context.Context) (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	v, err := load(ctx)
	if err != nil {
		var zero V
		return zero, err
	}
	c.SetWithTTL(key, v, ttl)
	return v, nil
}

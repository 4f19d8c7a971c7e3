package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"redditfit/internal/cache"
)

const (
	DefaultBaseURL = "https://www.reddit.com"
	userAgent      = "ReddiFit/1.0.0"
)

var subredditName = regexp.MustCompile(`^[A-Za-z0-9_]{2,21}$`)

type Rule struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type Rules struct {
	Subreddit   string `json:"subreddit"`
	Description string `json:"description"`
	Rules       []Rule `json:"rules"`
	// Fallback is set when the rules came from the built-in table.
	Fallback bool `json:"fallback"`
}

// Lines renders each rule as "title: description".
func (r *Rules) Lines() []string {
	out := make([]string, 0, len(r.Rules))
	for _, rule := range r.Rules {
		if rule.Description == "" {
			out = append(out, rule.Title)
			continue
		}
		out = append(out, rule.Title+": "+rule.Description)
	}
	return out
}

type Option func(*RulesFetcher)

func WithBaseURL(u string) Option {
	return func(f *RulesFetcher) { f.baseURL = strings.TrimRight(u, "/") }
}

func WithHTTPClient(c *http.Client) Option {
	return func(f *RulesFetcher) { f.client = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(f *RulesFetcher) { f.logger = l }
}

// RulesFetcher loads subreddit rules through the rules cache. When reddit
// fails, it answers with built-in rules instead of an error.
type RulesFetcher struct {
	cache   *cache.Cache[any]
	client  *http.Client
	baseURL string
	logger  *slog.Logger
}

func NewRulesFetcher(c *cache.Cache[any], opts ...Option) *RulesFetcher {
	f := &RulesFetcher{
		cache:   c,
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: DefaultBaseURL,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	return f
}

// Fetch returns the rules for subreddit. The only error is an invalid name.
func (f *RulesFetcher) Fetch(ctx context.Context, subreddit string) (*Rules, error) {
	subreddit = strings.TrimPrefix(strings.TrimSpace(subreddit), "r/")
	if !subredditName.MatchString(subreddit) {
		return nil, fmt.Errorf("invalid subreddit name %q", subreddit)
	}

	v, err := cache.GetOrLoad(ctx, f.cache, cache.SubredditRulesKey(subreddit), 0, func(ctx context.Context) (any, error) {
		return f.load(ctx, subreddit), nil
	})
	if err != nil {
		return nil, err
	}
	rules, ok := v.(*Rules)
	if !ok {
		f.logger.WarnContext(ctx, "unexpected value in rules cache", "subreddit", subreddit)
		return f.load(ctx, subreddit), nil
	}
	return rules, nil
}

// Rules satisfies the job runner's rule source.
func (f *RulesFetcher) Rules(ctx context.Context, subreddit string) ([]string, error) {
	r, err := f.Fetch(ctx, subreddit)
	if err != nil {
		return nil, err
	}
	return r.Lines(), nil
}

func (f *RulesFetcher) load(ctx context.Context, subreddit string) *Rules {
	r, err := f.fetchRemote(ctx, subreddit)
	if err == nil {
		return r
	}
	f.logger.WarnContext(ctx, "falling back to default subreddit rules", "subreddit", subreddit, "error", err)
	return fallbackRules(subreddit)
}

type aboutRules struct {
	Rules []struct {
		ShortName   string `json:"short_name"`
		Description string `json:"description"`
	} `json:"rules"`
}

func (f *RulesFetcher) fetchRemote(ctx context.Context, subreddit string) (*Rules, error) {
	url := fmt.Sprintf("%s/r/%s/about/rules.json", f.baseURL, subreddit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("reddit returned %s", resp.Status)
	}

	var body aboutRules
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}
	if body.Rules == nil {
		return nil, fmt.Errorf("rules missing from response")
	}

	out := &Rules{Subreddit: subreddit, Rules: make([]Rule, 0, len(body.Rules))}
	for _, r := range body.Rules {
		out.Rules = append(out.Rules, Rule{Title: r.ShortName, Description: r.Description})
	}
	return out, nil
}

func fallbackRules(subreddit string) *Rules {
	r, ok := defaultRules[strings.ToLower(subreddit)]
	if !ok {
		r = genericRules
	}
	r.Subreddit = subreddit
	r.Fallback = true
	r.Rules = append([]Rule(nil), r.Rules...)
	return &r
}

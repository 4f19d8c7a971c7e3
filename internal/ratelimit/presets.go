package ratelimit

import "time"

var (
	APIConfig      = Config{Window: 15 * time.Minute, MaxRequests: 100}
	RewriteConfig  = Config{Window: time.Minute, MaxRequests: 10}
	AuthConfig     = Config{Window: 15 * time.Minute, MaxRequests: 5}
	FreeUserConfig = Config{Window: 24 * time.Hour, MaxRequests: 1}
)

// Presets are the limiters shared by the HTTP layer.
type Presets struct {
	API      *Limiter
	Rewrite  *Limiter
	Auth     *Limiter
	FreeUser *Limiter
}

func NewPresets(opts ...Option) *Presets {
	return &Presets{
		API:      New(APIConfig, opts...),
		Rewrite:  New(RewriteConfig, opts...),
		Auth:     New(AuthConfig, opts...),
		FreeUser: New(FreeUserConfig, opts...),
	}
}

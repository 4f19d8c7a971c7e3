package user

import (
	"errors"
	"time"
)

const (
	PlanFree = "free"
	PlanPro  = "pro"

	// DefaultRewriteLimit is the daily rewrite allowance of a free account.
	DefaultRewriteLimit = 3
)

var ErrNotFound = errors.New("user not found")

// User is an account keyed by the identity provider's id.
type User struct {
	ID            string    `json:"id"`
	ExternalID    string    `json:"externalId"`
	Email         string    `json:"email"`
	Plan          string    `json:"plan"`
	RewritesUsed  int       `json:"rewritesUsed"`
	RewritesLimit int       `json:"rewritesLimit"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

package post

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("post not found")

// Post is a rewritten submission stored for a user.
type Post struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	Subreddit       string    `json:"subreddit"`
	OriginalTitle   string    `json:"original_title"`
	OriginalBody    string    `json:"original_body"`
	Title           string    `json:"title"`
	Body            string    `json:"body"`
	ComplianceScore int       `json:"compliance_score"`
	Changes         []string  `json:"changes"`
	CreatedAt       time.Time `json:"created_at"`
}

// Draft is a post as the user wrote it, before any rewrite.
type Draft struct {
	Subreddit string `json:"subreddit"`
	Title     string `json:"title"`
	Body      string `json:"body"`
}

// Rewrite is the model's answer for one draft.
type Rewrite struct {
	Title           string   `json:"title"`
	Body            string   `json:"body"`
	ComplianceScore int      `json:"compliance_score"`
	Changes         []string `json:"changes"`
}

// FromRewrite builds the stored form of a rewritten draft.
func FromRewrite(userID string, d Draft, rw *Rewrite) *Post {
	return &Post{
		UserID:          userID,
		Subreddit:       d.Subreddit,
		OriginalTitle:   d.Title,
		OriginalBody:    d.Body,
		Title:           rw.Title,
		Body:            rw.Body,
		ComplianceScore: rw.ComplianceScore,
		Changes:         rw.Changes,
	}
}

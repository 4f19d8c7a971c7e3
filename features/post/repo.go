package post

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

const selectColumns = `SELECT id, user_id, subreddit, original_title, original_body, title, body, compliance_score, changes, created_at FROM posts`

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Create(ctx context.Context, p *Post) error {
	changes := p.Changes
	if changes == nil {
		changes = []string{}
	}
	raw, err := json.Marshal(changes)
	if err != nil {
		return err
	}
	query := `INSERT INTO posts (user_id, subreddit, original_title, original_body, title, body, compliance_score, changes) VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id, created_at`
	return r.db.QueryRowContext(ctx, query,
		p.UserID, p.Subreddit, p.OriginalTitle, p.OriginalBody, p.Title, p.Body, p.ComplianceScore, string(raw),
	).Scan(&p.ID, &p.CreatedAt)
}

// DeleteCreatedBefore removes posts created strictly before cutoff.
func (r *PostgresRepo) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM posts WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteForUser removes one post owned by userID. It reports false when no
// such post exists for that user.
func (r *PostgresRepo) DeleteForUser(ctx context.Context, id, userID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM posts WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *PostgresRepo) ListByUser(ctx context.Context, userID string) ([]Post, error) {
	return r.list(ctx, selectColumns+` WHERE user_id = $1 ORDER BY created_at DESC`, userID)
}

func (r *PostgresRepo) ListAll(ctx context.Context) ([]Post, error) {
	return r.list(ctx, selectColumns)
}

func (r *PostgresRepo) list(ctx context.Context, query string, args ...any) ([]Post, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []Post
	for rows.Next() {
		var p Post
		var score sql.NullInt64
		var changes []byte
		if err := rows.Scan(&p.ID, &p.UserID, &p.Subreddit, &p.OriginalTitle, &p.OriginalBody,
			&p.Title, &p.Body, &score, &changes, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.ComplianceScore = int(score.Int64)
		if len(changes) > 0 {
			if err := json.Unmarshal(changes, &p.Changes); err != nil {
				return nil, err
			}
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts`).Scan(&n)
	return n, err
}

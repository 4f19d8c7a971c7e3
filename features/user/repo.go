package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const userColumns = `id, external_id, email, plan, rewrites_used, rewrites_limit, created_at, updated_at`

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

// GetOrCreate returns the user for externalID, creating a free account on
// first sight.
func (r *PostgresRepo) GetOrCreate(ctx context.Context, externalID string) (*User, error) {
	query := `INSERT INTO users (external_id) VALUES ($1)
		ON CONFLICT (external_id) DO UPDATE SET external_id = EXCLUDED.external_id
		RETURNING ` + userColumns
	return scanUser(r.db.QueryRowContext(ctx, query, externalID))
}

func (r *PostgresRepo) FindByExternalID(ctx context.Context, externalID string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE external_id = $1`
	u, err := scanUser(r.db.QueryRowContext(ctx, query, externalID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return u, err
}

func (r *PostgresRepo) IncrementRewrites(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET rewrites_used = rewrites_used + 1, updated_at = NOW() WHERE id = $1`, id)
	return err
}

func (r *PostgresRepo) ResetRewrites(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET rewrites_used = 0, updated_at = NOW() WHERE id = $1`, id)
	return err
}

// DeleteWithPosts removes a user and every post they own in one transaction
// and returns how many posts went.
func (r *PostgresRepo) DeleteWithPosts(ctx context.Context, id string) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM posts WHERE user_id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("delete posts: %w", err)
	}
	posts, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id); err != nil {
		return 0, fmt.Errorf("delete user: %w", err)
	}
	return posts, tx.Commit()
}

// DeleteCreatedBefore removes accounts that were created and last touched
// before cutoff and own no posts.
func (r *PostgresRepo) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM users u WHERE u.created_at < $1 AND u.updated_at < $1
		AND NOT EXISTS (SELECT 1 FROM posts p WHERE p.user_id = u.id)`
	res, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

// MigratePlan moves every user on plan from to plan to.
func (r *PostgresRepo) MigratePlan(ctx context.Context, from, to string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET plan = $1, updated_at = NOW() WHERE plan = $2`, to, from)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.ExternalID, &u.Email, &u.Plan, &u.RewritesUsed, &u.RewritesLimit, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

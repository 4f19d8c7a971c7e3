package user_test

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redditfit/features/user"
)

func TestPostgresRepo_DeleteCreatedBefore(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cutoff := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM users u WHERE u.created_at < $1 AND u.updated_at < $1 AND NOT EXISTS (SELECT 1 FROM posts p WHERE p.user_id = u.id)")).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := user.NewPostgresRepo(db).DeleteCreatedBefore(context.Background(), cutoff)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_MigratePlan(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := user.NewPostgresRepo(db)

	t.Run("Success", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET plan = $1, updated_at = NOW() WHERE plan = $2")).
			WithArgs("pro", "free").
			WillReturnResult(sqlmock.NewResult(0, 12))

		n, err := repo.MigratePlan(context.Background(), "free", "pro")
		assert.NoError(t, err)
		assert.Equal(t, int64(12), n)
	})

	t.Run("Error", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta("UPDATE users")).
			WillReturnError(sqlmock.ErrCancelled)

		_, err := repo.MigratePlan(context.Background(), "free", "pro")
		assert.Error(t, err)
	})
}

func TestPostgresRepo_Count(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM users")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	n, err := user.NewPostgresRepo(db).Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

var userColumns = []string{"id", "external_id", "email", "plan", "rewrites_used", "rewrites_limit", "created_at", "updated_at"}

func TestPostgresRepo_GetOrCreate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := user.NewPostgresRepo(db)
	now := time.Now()

	t.Run("Success", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO users (external_id) VALUES ($1) ON CONFLICT (external_id) DO UPDATE")).
			WithArgs("user_2abc").
			WillReturnRows(sqlmock.NewRows(userColumns).AddRow("u1", "user_2abc", "", "free", 0, 3, now, now))

		u, err := repo.GetOrCreate(context.Background(), "user_2abc")
		require.NoError(t, err)
		assert.Equal(t, "u1", u.ID)
		assert.Equal(t, user.PlanFree, u.Plan)
		assert.Equal(t, user.DefaultRewriteLimit, u.RewritesLimit)
	})

	t.Run("Error", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO users")).
			WillReturnError(errors.New("connection refused"))

		_, err := repo.GetOrCreate(context.Background(), "user_2abc")
		assert.Error(t, err)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_FindByExternalID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := user.NewPostgresRepo(db)
	query := regexp.QuoteMeta("SELECT id, external_id, email, plan, rewrites_used, rewrites_limit, created_at, updated_at FROM users WHERE external_id = $1")

	t.Run("Found", func(t *testing.T) {
		now := time.Now()
		mock.ExpectQuery(query).WithArgs("user_pro").
			WillReturnRows(sqlmock.NewRows(userColumns).AddRow("u2", "user_pro", "a@b.c", "pro", 7, -1, now, now))

		u, err := repo.FindByExternalID(context.Background(), "user_pro")
		require.NoError(t, err)
		assert.Equal(t, user.PlanPro, u.Plan)
		assert.Equal(t, 7, u.RewritesUsed)
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs("ghost").WillReturnError(sql.ErrNoRows)

		_, err := repo.FindByExternalID(context.Background(), "ghost")
		assert.ErrorIs(t, err, user.ErrNotFound)
	})
}

func TestPostgresRepo_RewriteCounters(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := user.NewPostgresRepo(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET rewrites_used = rewrites_used + 1, updated_at = NOW() WHERE id = $1")).
		WithArgs("u1").WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.IncrementRewrites(context.Background(), "u1"))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET rewrites_used = 0, updated_at = NOW() WHERE id = $1")).
		WithArgs("u1").WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.ResetRewrites(context.Background(), "u1"))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_DeleteWithPosts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := user.NewPostgresRepo(db)

	t.Run("Success", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM posts WHERE user_id = $1")).WithArgs("u1").
			WillReturnResult(sqlmock.NewResult(0, 4))
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM users WHERE id = $1")).WithArgs("u1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		n, err := repo.DeleteWithPosts(context.Background(), "u1")
		require.NoError(t, err)
		assert.Equal(t, int64(4), n)
	})

	t.Run("RollsBackWhenUserDeleteFails", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM posts")).WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM users")).WillReturnError(errors.New("lock timeout"))
		mock.ExpectRollback()

		_, err := repo.DeleteWithPosts(context.Background(), "u1")
		assert.ErrorContains(t, err, "delete user")
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

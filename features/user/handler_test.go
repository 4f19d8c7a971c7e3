package user_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"redditfit/features/post"
	"redditfit/features/user"
)

func newTestMux(t *testing.T) (*http.ServeMux, *MockRepository, *MockPosts) {
	t.Helper()
	svc, repo, posts, _ := newTestService(t)
	h := user.NewHandler(svc)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /user/plan", h.GetPlan)
	mux.HandleFunc("GET /backup", h.Export)
	mux.HandleFunc("GET /backup/info", h.Info)
	mux.HandleFunc("DELETE /backup", h.Delete)
	return mux, repo, posts
}

func serve(mux *http.ServeMux, method, path, userID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestHandler_RequiresUser(t *testing.T) {
	mux, _, _ := newTestMux(t)
	for _, route := range [][2]string{
		{http.MethodGet, "/user/plan"},
		{http.MethodGet, "/backup"},
		{http.MethodGet, "/backup/info"},
		{http.MethodDelete, "/backup"},
	} {
		w := serve(mux, route[0], route[1], "")
		assert.Equal(t, http.StatusUnauthorized, w.Code, route[1])
	}
}

func TestHandler_GetPlan(t *testing.T) {
	mux, repo, _ := newTestMux(t)
	repo.On("GetOrCreate", mock.Anything, "user_2abc").
		Return(&user.User{ID: "u1", ExternalID: "user_2abc", Plan: user.PlanFree, RewritesUsed: 1, RewritesLimit: 3, UpdatedAt: now}, nil)

	w := serve(mux, http.MethodGet, "/user/plan", "user_2abc")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data user.Plan `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Data.RewritesUsed)
	assert.True(t, body.Data.CanRewrite)
}

func TestHandler_Export(t *testing.T) {
	mux, repo, posts := newTestMux(t)
	repo.On("FindByExternalID", mock.Anything, "user_2abc").Return(&user.User{ID: "u1", ExternalID: "user_2abc"}, nil)
	posts.On("ListByUser", mock.Anything, "u1").Return([]post.Post{{ID: "p1", CreatedAt: now.Add(-time.Minute)}}, nil)

	w := serve(mux, http.MethodGet, "/backup", "user_2abc")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="redditfit-backup-user_2abc-2024-06-10.json"`, w.Header().Get("Content-Disposition"))

	var b user.Backup
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &b))
	assert.Equal(t, "user_2abc", b.UserID)
	assert.Len(t, b.Posts, 1)
}

func TestHandler_UnknownUser(t *testing.T) {
	mux, repo, _ := newTestMux(t)
	repo.On("FindByExternalID", mock.Anything, "user_ghost").Return(nil, user.ErrNotFound)

	for _, route := range [][2]string{
		{http.MethodGet, "/backup"},
		{http.MethodGet, "/backup/info"},
		{http.MethodDelete, "/backup"},
	} {
		w := serve(mux, route[0], route[1], "user_ghost")
		assert.Equal(t, http.StatusNotFound, w.Code, route[1])
	}
	repo.AssertNotCalled(t, "DeleteWithPosts", mock.Anything, mock.Anything)
}

func TestHandler_Delete(t *testing.T) {
	mux, repo, _ := newTestMux(t)
	repo.On("FindByExternalID", mock.Anything, "user_2abc").Return(&user.User{ID: "u1", ExternalID: "user_2abc"}, nil)
	repo.On("DeleteWithPosts", mock.Anything, "u1").Return(int64(3), nil)

	w := serve(mux, http.MethodDelete, "/backup", "user_2abc")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data struct {
			DeletedPosts int `json:"deletedPosts"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 3, body.Data.DeletedPosts)
}

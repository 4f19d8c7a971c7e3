package rewrite

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"redditfit/features/post"
	"redditfit/internal/middleware"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Rewrite serves POST /rewrite with body {"subreddit", "title", "body"}.
func (h *Handler) Rewrite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var d post.Draft
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", "Invalid JSON body", http.StatusBadRequest)
		return
	}

	res, err := h.svc.Rewrite(ctx, userID, d)
	if err != nil {
		var qe *QuotaError
		switch {
		case errors.Is(err, ErrInvalidDraft):
			h.writeError(ctx, w, "VALIDATION_ERROR", "Title and subreddit are required", http.StatusBadRequest)
		case errors.As(err, &qe):
			h.writeJSON(ctx, w, http.StatusTooManyRequests, map[string]interface{}{
				"error": map[string]string{
					"code":    "QUOTA_EXCEEDED",
					"message": "Daily rewrite limit reached",
				},
				"plan":          qe.Plan,
				"correlationId": middleware.GetCorrelationID(ctx),
			})
		default:
			slog.ErrorContext(ctx, "rewrite failed", "error", err, "user_id", userID, "subreddit", d.Subreddit)
			h.writeError(ctx, w, "INTERNAL_ERROR", "Failed to rewrite post", http.StatusInternalServerError)
		}
		return
	}

	slog.InfoContext(ctx, "post rewritten", "user_id", userID, "subreddit", d.Subreddit, "score", res.ComplianceScore)
	h.writeJSON(ctx, w, http.StatusOK, map[string]interface{}{"data": res})
}

// Rules serves GET /rewrite/rules?subreddit=.
func (h *Handler) Rules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sub := r.URL.Query().Get("subreddit")

	rules, err := h.svc.Rules(ctx, sub)
	if err != nil {
		if errors.Is(err, ErrInvalidDraft) {
			h.writeError(ctx, w, "VALIDATION_ERROR", "subreddit is required", http.StatusBadRequest)
			return
		}
		slog.ErrorContext(ctx, "failed to fetch rules", "error", err, "subreddit", sub)
		h.writeError(ctx, w, "UPSTREAM_ERROR", "Failed to fetch subreddit rules", http.StatusBadGateway)
		return
	}
	if rules == nil {
		rules = []string{}
	}
	h.writeJSON(ctx, w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{"subreddit": sub, "rules": rules},
	})
}

// History serves GET /rewrite/history.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	posts, err := h.svc.History(ctx, userID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list history", "error", err, "user_id", userID)
		h.writeError(ctx, w, "INTERNAL_ERROR", "Failed to load history", http.StatusInternalServerError)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, map[string]interface{}{"data": posts})
}

// DeleteHistory serves DELETE /rewrite/history/{id}.
func (h *Handler) DeleteHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	id := r.PathValue("id")
	if err := h.svc.DeleteHistory(ctx, userID, id); err != nil {
		if errors.Is(err, ErrPostNotFound) {
			h.writeError(ctx, w, "NOT_FOUND", ErrPostNotFound.Error(), http.StatusNotFound)
			return
		}
		slog.ErrorContext(ctx, "failed to delete post", "error", err, "post_id", id)
		h.writeError(ctx, w, "INTERNAL_ERROR", "Failed to delete post", http.StatusInternalServerError)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, map[string]interface{}{
		"data": map[string]string{"id": id, "message": "Post deleted"},
	})
}

// Analytics serves GET /analytics.
func (h *Handler) Analytics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	a, err := h.svc.Analytics(ctx, userID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to compute analytics", "error", err, "user_id", userID)
		h.writeError(ctx, w, "INTERNAL_ERROR", "Failed to compute analytics", http.StatusInternalServerError)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, map[string]interface{}{"data": a})
}

func (h *Handler) requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.Header.Get("X-User-ID")
	if id == "" {
		h.writeError(r.Context(), w, "UNAUTHORIZED", "Unauthorized", http.StatusUnauthorized)
		return "", false
	}
	return id, true
}

func (h *Handler) writeJSON(ctx context.Context, w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	h.writeJSON(ctx, w, status, map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	})
}

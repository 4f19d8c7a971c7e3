package user

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"redditfit/internal/middleware"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// GetPlan serves GET /user/plan.
func (h *Handler) GetPlan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	plan, _, err := h.svc.GetPlan(ctx, id)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load plan", "error", err, "user_id", id)
		h.writeError(ctx, w, "INTERNAL_ERROR", "Failed to load plan", http.StatusInternalServerError)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, map[string]interface{}{"data": plan})
}

// Export serves GET /backup as a JSON file download.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	b, err := h.svc.Export(ctx, id)
	if err != nil {
		h.writeLookupError(ctx, w, "export", id, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="`+BackupFilename(id, b.Timestamp)+`"`)
	w.WriteHeader(http.StatusOK)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(b); err != nil {
		slog.ErrorContext(ctx, "failed to encode backup", "error", err)
	}
}

// Info serves GET /backup/info.
func (h *Handler) Info(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	info, err := h.svc.BackupInfo(ctx, id)
	if err != nil {
		h.writeLookupError(ctx, w, "backup info", id, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, map[string]interface{}{"data": info})
}

// Delete serves DELETE /backup, removing the caller's account and posts.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	n, err := h.svc.DeleteData(ctx, id)
	if err != nil {
		h.writeLookupError(ctx, w, "delete", id, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"deletedPosts": n,
			"message":      "User data deleted successfully",
		},
	})
}

func (h *Handler) writeLookupError(ctx context.Context, w http.ResponseWriter, op, id string, err error) {
	if errors.Is(err, ErrNotFound) {
		h.writeError(ctx, w, "NOT_FOUND", ErrNotFound.Error(), http.StatusNotFound)
		return
	}
	slog.ErrorContext(ctx, "user data request failed", "op", op, "error", err, "user_id", id)
	h.writeError(ctx, w, "INTERNAL_ERROR", "Failed to process user data", http.StatusInternalServerError)
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

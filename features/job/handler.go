package job

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"redditfit/internal/middleware"
)

// ScheduleLister reports the active schedule names.
type ScheduleLister interface {
	Names() []string
}

// SubmitGuard vets a decoded submission before it is queued. Returning an
// error wrapping ErrQuotaExceeded answers 429.
type SubmitGuard func(ctx context.Context, userID string, p Payload) error

type HandlerOption func(*Handler)

func WithSubmitGuard(g SubmitGuard) HandlerOption {
	return func(h *Handler) { h.guard = g }
}

type Handler struct {
	processor *Processor
	schedules ScheduleLister
	guard     SubmitGuard
}

func NewHandler(p *Processor, s ScheduleLister, opts ...HandlerOption) *Handler {
	h := &Handler{processor: p, schedules: s}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type submitRequest struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Submit serves POST /jobs with body {"type": ..., "data": {...}}.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", "Invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.Type == "" || len(req.Data) == 0 {
		h.writeError(ctx, w, "VALIDATION_ERROR", "Missing required fields: type, data", http.StatusBadRequest)
		return
	}

	data, err := BindUser(req.Type, req.Data, userID)
	if err != nil {
		if errors.Is(err, ErrUserMismatch) {
			h.writeError(ctx, w, "FORBIDDEN", err.Error(), http.StatusForbidden)
			return
		}
		h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	payload, err := DecodePayload(req.Type, data)
	if err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	if h.guard != nil {
		if err := h.guard(ctx, userID, payload); err != nil {
			if errors.Is(err, ErrQuotaExceeded) {
				h.writeError(ctx, w, "QUOTA_EXCEEDED", err.Error(), http.StatusTooManyRequests)
				return
			}
			slog.ErrorContext(ctx, "job submission check failed", "error", err, "user_id", userID)
			h.writeError(ctx, w, "INTERNAL_ERROR", "Failed to check job quota", http.StatusInternalServerError)
			return
		}
	}

	id, err := h.processor.Submit(ctx, payload)
	if err != nil {
		if errors.Is(err, ErrProcessorClosed) {
			h.writeError(ctx, w, "UNAVAILABLE", err.Error(), http.StatusServiceUnavailable)
			return
		}
		slog.ErrorContext(ctx, "failed to add job to queue", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "Failed to add job to queue", http.StatusInternalServerError)
		return
	}

	slog.InfoContext(ctx, "job submitted", "job_id", id, "type", req.Type, "user_id", userID)
	h.writeJSON(ctx, w, http.StatusAccepted, map[string]interface{}{
		"data": map[string]string{
			"jobId":   id,
			"status":  string(StatusPending),
			"message": "Job added to queue successfully",
		},
	})
}

// List serves GET /jobs. With ?type= it returns that kind's counters and jobs.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if kind := r.URL.Query().Get("type"); kind != "" {
		status := h.processor.GetQueueStatus()
		var counts *KindStatus
		if ks, ok := status.Queues[Kind(kind)]; ok {
			counts = &ks
		}
		h.writeJSON(ctx, w, http.StatusOK, map[string]interface{}{
			"data": map[string]interface{}{
				"type":   kind,
				"counts": counts,
				"jobs":   h.processor.ListJobs(Kind(kind)),
			},
		})
		return
	}

	scheduled := []string{}
	if h.schedules != nil {
		scheduled = h.schedules.Names()
	}
	h.writeJSON(ctx, w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"queue":     h.processor.GetQueueStatus(),
			"scheduled": scheduled,
		},
	})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	j, ok := h.processor.GetJobStatus(id)
	if !ok {
		h.writeError(ctx, w, "NOT_FOUND", ErrJobNotFound.Error(), http.StatusNotFound)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, map[string]interface{}{"data": j})
}

// ClearCompleted serves DELETE /jobs/completed.
func (h *Handler) ClearCompleted(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	n := h.processor.ClearCompletedJobs()
	slog.InfoContext(ctx, "completed jobs cleared via api", "user_id", userID, "count", n)
	h.writeJSON(ctx, w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"cleared": n,
			"message": "Completed jobs cleared successfully",
		},
	})
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

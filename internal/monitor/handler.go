package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"redditfit/internal/middleware"
)

type Handler struct {
	monitor *Monitor
}

func NewHandler(m *Monitor) *Handler {
	return &Handler{monitor: m}
}

// List serves GET /errors?severity=&resolved=&userId=&startDate=&endDate=&limit=
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	var f Filter
	if v := q.Get("severity"); v != "" {
		sev, ok := ParseSeverity(v)
		if !ok {
			h.writeError(ctx, w, "VALIDATION_ERROR", "severity must be one of low, medium, high, critical", http.StatusBadRequest)
			return
		}
		f.Severity = sev
	}
	if v := q.Get("resolved"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			h.writeError(ctx, w, "VALIDATION_ERROR", "resolved must be a boolean", http.StatusBadRequest)
			return
		}
		f.Resolved = &b
	}
	f.UserID = q.Get("userId")

	var err error
	if f.Start, err = parseTime(q.Get("startDate")); err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", "startDate must be RFC3339", http.StatusBadRequest)
		return
	}
	if f.End, err = parseTime(q.Get("endDate")); err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", "endDate must be RFC3339", http.StatusBadRequest)
		return
	}

	f.Limit = 50
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			h.writeError(ctx, w, "VALIDATION_ERROR", "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		f.Limit = n
	}

	events := h.monitor.GetErrors(f)
	alerts := h.monitor.GetAlerts(AlertFilter{})
	if len(alerts) > 10 {
		alerts = alerts[:10]
	}

	h.writeJSON(ctx, w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"errors": events,
			"stats":  h.monitor.GetErrorStats(),
			"alerts": alerts,
			"status": h.monitor.Status(),
		},
		"meta": map[string]int{"count": len(events)},
	})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	ev, err := h.monitor.GetError(id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			h.writeError(ctx, w, "NOT_FOUND", "Error not found", http.StatusNotFound)
			return
		}
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, map[string]interface{}{"data": ev})
}

// Resolve serves POST /errors/{id}/resolve with body {"resolvedBy","notes"}.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	var req struct {
		ResolvedBy string `json:"resolvedBy"`
		Notes      string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.ResolvedBy == "" {
		req.ResolvedBy = r.Header.Get("X-User-ID")
	}
	if req.ResolvedBy == "" {
		h.writeError(ctx, w, "VALIDATION_ERROR", "resolvedBy is required", http.StatusBadRequest)
		return
	}

	if !h.monitor.ResolveError(id, req.ResolvedBy, req.Notes) {
		h.writeError(ctx, w, "NOT_FOUND", "Error not found", http.StatusNotFound)
		return
	}
	slog.InfoContext(ctx, "error resolved via api", "id", id, "resolved_by", req.ResolvedBy)
	h.writeJSON(ctx, w, http.StatusOK, map[string]interface{}{"data": map[string]string{"id": id, "status": "resolved"}})
}

// Clear serves DELETE /errors?olderThan=RFC3339, defaulting to 7 days ago.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	cutoff, err := parseTime(r.URL.Query().Get("olderThan"))
	if err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", "olderThan must be RFC3339", http.StatusBadRequest)
		return
	}
	if cutoff.IsZero() {
		cutoff = h.monitor.clock.Now().Add(-7 * 24 * time.Hour)
	}

	cleared := h.monitor.ClearOldErrors(cutoff)
	h.writeJSON(ctx, w, http.StatusOK, map[string]interface{}{"data": map[string]int{"cleared": cleared}})
}

func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, v)
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

// ReportServerError captures a 5xx response as a high severity error. It
// matches middleware.ServerErrorFunc.
func (m *Monitor) ReportServerError(r *http.Request, status int) {
	m.CaptureError(
		fmt.Errorf("%s %s returned %d", r.Method, r.URL.Path, status),
		Context{
			UserID:    r.Header.Get("X-User-ID"),
			RequestID: middleware.GetCorrelationID(r.Context()),
			URL:       r.URL.Path,
			Method:    r.Method,
			UserAgent: r.UserAgent(),
			IP:        middleware.ClientIP(r),
		},
		SeverityHigh,
	)
}

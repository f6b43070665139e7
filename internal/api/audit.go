package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/solar-gateway/internal/audit"
)

// auditLog enqueues an audit entry (best-effort). The request ID is
// attached so log lines and audit rows can be correlated.
func (s *Server) auditLog(r *http.Request, e *audit.Entry) {
	if s.audit == nil {
		return
	}
	if e.Source == "" {
		e.Source = "api"
	}
	if id, ok := r.Context().Value(ctxKeyRequestID).(string); ok {
		if e.Details == nil {
			e.Details = map[string]any{}
		}
		e.Details["request_id"] = id
	}
	if err := s.audit.Enqueue(e); err != nil {
		s.logger.Warn("audit entry dropped", "action", e.Action, "error", err)
	}
}

func auditHistoryCleared(n int) *audit.Entry {
	return &audit.Entry{
		Action:     audit.ActionHistoryCleared,
		EntityType: audit.EntityHistory,
		Details:    map[string]any{"cleared": n},
	}
}

// handleListEvents returns audit log entries, most recent first.
//
// Query parameters:
//   - action: filter by action (e.g. "mode_changed", "command")
//   - entity_type: filter by entity type
//   - since: RFC 3339 lower bound on created_at
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if s.auditRepo == nil {
		writeServiceUnavailable(w, "audit log not available")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action:     q.Get("action"),
		EntityType: q.Get("entity_type"),
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeBadRequest(w, "since must be an RFC 3339 timestamp")
			return
		}
		filter.Since = t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, "offset must be a non-negative integer")
			return
		}
		filter.Offset = n
	}

	result, err := s.auditRepo.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list audit logs", "error", err)
		writeInternalError(w, "failed to list audit logs")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/solar-gateway/internal/telemetry"
)

// HealthResponse is returned by GET /api/health. It is answered from the
// cache and never waits on the device.
type HealthResponse struct {
	APIOnline           bool      `json:"apiOnline"`
	DeviceOnline        bool      `json:"deviceOnline"`
	Timestamp           int64     `json:"timestamp"`
	CollectorRunning    bool      `json:"collector_running"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastSuccess         time.Time `json:"last_success"`
	DeviceURL           string    `json:"device_url,omitempty"`
	Version             string    `json:"version,omitempty"`
}

// HistoryResponse is returned by GET /api/data-history.
type HistoryResponse struct {
	History []telemetry.TrackingSample `json:"history"`
	Count   int                        `json:"count"`
}

// handleHealth reports API and device reachability.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	snap := s.cache.Get()
	resp := HealthResponse{
		APIOnline:           true,
		DeviceOnline:        snap.SystemStatus.IsOnline,
		Timestamp:           s.now().Unix(),
		CollectorRunning:    s.collector.Running(),
		ConsecutiveFailures: s.collector.ConsecutiveFailures(),
		LastSuccess:         s.collector.LastSuccess(),
		Version:             s.version,
	}
	if s.device != nil {
		resp.DeviceURL = s.device.BaseURL()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.cache.Get())
}

func (s *Server) handleAngles(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.cache.Get().Angles)
}

func (s *Server) handleMotor(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.cache.Get().Motor)
}

func (s *Server) handlePID(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.cache.Get().PID)
}

func (s *Server) handleSystemStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.cache.Get().SystemStatus)
}

func (s *Server) handleControlSignals(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.cache.Get().ControlSignals)
}

// handleIrradiance estimates irradiance from the cached sun angle.
func (s *Server) handleIrradiance(w http.ResponseWriter, _ *http.Request) {
	snap := s.cache.Get()
	writeJSON(w, http.StatusOK, telemetry.EstimateIrradiance(snap.Angles.SunPosition, s.now()))
}

func (s *Server) handleStatistics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.collector.Statistics())
}

// handleDataHistory returns recent samples, most recent first.
// Query: ?limit=N (default 100).
func (s *Server) handleDataHistory(w http.ResponseWriter, r *http.Request) {
	limit := telemetry.DefaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	samples := s.history.Recent(limit)
	writeJSON(w, http.StatusOK, HistoryResponse{History: samples, Count: len(samples)})
}

// handleClearHistory empties the gateway's sample history.
func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	n := s.collector.ClearHistory()
	s.auditLog(r, auditHistoryCleared(n))
	s.logger.Info("tracking history cleared", "samples", n)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"cleared": n,
	})
}

func (s *Server) handleDemoData(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, telemetry.DemoSnapshot(s.now()))
}

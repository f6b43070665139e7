package api

import (
	"errors"
	"net/http"

	"github.com/nerrad567/solar-gateway/internal/audit"
	"github.com/nerrad567/solar-gateway/internal/device"
)

// RegisterIPRequest is sent by the tracker (or an operator) when the
// device's address changes.
type RegisterIPRequest struct {
	DeviceID string `json:"device_id" validate:"required,max=64"`
	IP       string `json:"ip" validate:"required,ip"`
}

// handleRegisterIP re-targets the device link at a new address. The new
// address must answer a reachability check or the link keeps the old one.
func (s *Server) handleRegisterIP(w http.ResponseWriter, r *http.Request) {
	if s.device == nil {
		writeServiceUnavailable(w, "device link not configured")
		return
	}

	var req RegisterIPRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if s.deviceID != "" && req.DeviceID != s.deviceID {
		s.logger.Warn("register-ip for unexpected device", "device_id", req.DeviceID, "expected", s.deviceID)
	}

	previous := s.device.BaseURL()
	if err := s.device.Retarget(r.Context(), req.IP, s.devicePort); err != nil {
		switch {
		case errors.Is(err, device.ErrInvalidAddress):
			writeBadRequest(w, err.Error())
		case errors.Is(err, device.ErrRejected):
			writeError(w, http.StatusBadGateway, ErrCodeDeviceRejected, "device refused the reachability check at the new address")
		case errors.Is(err, device.ErrUnreachable):
			writeServiceUnavailable(w, "device did not answer at the new address")
		default:
			writeInternalError(w, "failed to update device address")
		}
		return
	}

	s.auditLog(r, &audit.Entry{
		Action:     audit.ActionRegisterIP,
		EntityType: audit.EntityDevice,
		EntityID:   req.DeviceID,
		Details: map[string]any{
			"ip":       req.IP,
			"previous": previous,
			"remote":   r.RemoteAddr,
		},
	})
	s.logger.Info("device address updated", "device_id", req.DeviceID, "url", s.device.BaseURL())

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "success",
		"message":    "device registered at " + req.IP,
		"device_url": s.device.BaseURL(),
	})
}

// handleTrackingLog returns the tracking log stored on the device.
func (s *Server) handleTrackingLog(w http.ResponseWriter, r *http.Request) {
	if s.device == nil {
		writeServiceUnavailable(w, "device link not configured")
		return
	}
	data, err := s.device.TrackingLog(r.Context())
	if err != nil {
		if errors.Is(err, device.ErrRejected) {
			writeError(w, http.StatusBadGateway, ErrCodeDeviceRejected, err.Error())
			return
		}
		writeServiceUnavailable(w, "device unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"data": string(data)})
}

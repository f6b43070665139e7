package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"

	"github.com/nerrad567/solar-gateway/internal/control"
	"github.com/nerrad567/solar-gateway/internal/device"
)

// ModeRequest is the body of PATCH /api/mode. ManualSetpoint, when set,
// is sent as a second command after the mode change is acknowledged.
type ModeRequest struct {
	Mode           string   `json:"mode" validate:"required,oneof=auto manual halt presentation"`
	ManualSetpoint *float64 `json:"manual_setpoint,omitempty" validate:"omitempty,gte=-90,lte=180"`
}

// ClockRequest is the body of PATCH /api/clock.
type ClockRequest struct {
	Timestamp int64 `json:"timestamp" validate:"required,gt=0"`
}

// SetpointRequest is the body of PATCH /api/manual-setpoint.
type SetpointRequest struct {
	Setpoint *float64 `json:"setpoint" validate:"required,gte=-90,lte=180"`
}

// PIDRequest is the body of PATCH /api/pid.
type PIDRequest struct {
	Kp *float64 `json:"kp" validate:"required,gte=0"`
	Ki *float64 `json:"ki" validate:"required,gte=0"`
	Kd *float64 `json:"kd" validate:"required,gte=0"`
}

// CommandResponse is returned for every accepted command.
type CommandResponse struct {
	Status string         `json:"status"`
	Result control.Result `json:"result"`
}

// decodeBody decodes and validates a JSON request body. It writes the 400
// response itself and reports whether the handler should continue.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			writeError(w, http.StatusBadRequest, ErrCodeValidation,
				"field "+fe.Field()+" failed "+fe.Tag()+" validation")
			return false
		}
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return false
	}
	return true
}

func commandContext(r *http.Request) context.Context {
	return control.WithSource(r.Context(), "api")
}

// handleSetMode changes the operating mode.
func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var req ModeRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	var (
		res control.Result
		err error
	)
	if req.ManualSetpoint != nil {
		res, err = s.commands.RequestModeWithSetpoint(commandContext(r), req.Mode, *req.ManualSetpoint)
	} else {
		res, err = s.commands.RequestMode(commandContext(r), req.Mode)
	}
	if err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CommandResponse{Status: "success", Result: res})
}

// handleAdjustClock sets the device clock.
func (s *Server) handleAdjustClock(w http.ResponseWriter, r *http.Request) {
	var req ClockRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	res, err := s.commands.RequestClockAdjust(commandContext(r), req.Timestamp)
	if err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CommandResponse{Status: "success", Result: res})
}

func (s *Server) handleManualSetpoint(w http.ResponseWriter, r *http.Request) {
	var req SetpointRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	res, err := s.commands.RequestManualSetpoint(commandContext(r), *req.Setpoint)
	if err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CommandResponse{Status: "success", Result: res})
}

func (s *Server) handleTunePID(w http.ResponseWriter, r *http.Request) {
	var req PIDRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	gains := device.PIDGains{Kp: *req.Kp, Ki: *req.Ki, Kd: *req.Kd}
	res, err := s.commands.RequestPIDTuning(commandContext(r), gains)
	if err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CommandResponse{Status: "success", Result: res})
}

// handleClearDeviceTracking clears the tracking log stored on the device.
func (s *Server) handleClearDeviceTracking(w http.ResponseWriter, r *http.Request) {
	res, err := s.commands.RequestClearDeviceTracking(commandContext(r))
	if err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CommandResponse{Status: "success", Result: res})
}

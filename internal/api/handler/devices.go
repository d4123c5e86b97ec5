package handler

import (
	"net/http"
	"time"

	"github.com/albapepper/scoracle-push/internal/api/respond"
	"github.com/albapepper/scoracle-push/internal/devices"
)

// HeartbeatRequest is the body of a heartbeat.
type HeartbeatRequest struct {
	UserID string `json:"userId"`
}

// MuteRequest is the body of a mute call. Hours is decoded loosely; any
// non-positive or non-numeric value means the default of 24.
type MuteRequest struct {
	UserID string `json:"userId"`
	Hours  any    `json:"hours,omitempty" swaggertype:"number"`
}

// MuteResponse reports the new mute window end; null after unmute.
type MuteResponse struct {
	Success    bool       `json:"success"`
	MutedUntil *time.Time `json:"muted_until"`
}

// PreferencesRequest is the body of a preference write.
type PreferencesRequest struct {
	Token       string `json:"token"`
	Preferences any    `json:"preferences" swaggertype:"object"`
}

// PreferencesResponse carries the full key set.
type PreferencesResponse struct {
	Success     bool                `json:"success"`
	Preferences devices.Preferences `json:"preferences"`
}

// Heartbeat records user activity.
// @Summary Record activity heartbeat
// @Description Sets last_active_at to now for every device of the user.
// @Tags devices
// @Accept json
// @Produce json
// @Param body body HeartbeatRequest true "User"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} respond.ErrorResponse
// @Failure 500 {object} respond.ErrorResponse
// @Router /api/v1/devices/heartbeat [post]
func (h *Handler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	var req HeartbeatRequest
	if err := decodeBody(r, &req, false); err != nil {
		respond.WriteAppError(w, err)
		return
	}
	if err := h.devices.RecordHeartbeat(r.Context(), req.UserID); err != nil {
		respond.WriteAppError(w, err)
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{"success": true})
}

// Mute opens a mute window.
// @Summary Mute notifications
// @Description Suppresses notifications for the user's devices for the given hours (default 24).
// @Tags devices
// @Accept json
// @Produce json
// @Param body body MuteRequest true "User and hours"
// @Success 200 {object} MuteResponse
// @Failure 400 {object} respond.ErrorResponse
// @Failure 500 {object} respond.ErrorResponse
// @Router /api/v1/devices/mute [post]
func (h *Handler) Mute(w http.ResponseWriter, r *http.Request) {
	var req MuteRequest
	if err := decodeBody(r, &req, false); err != nil {
		respond.WriteAppError(w, err)
		return
	}
	until, err := h.devices.Mute(r.Context(), req.UserID, req.Hours)
	if err != nil {
		respond.WriteAppError(w, err)
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, MuteResponse{Success: true, MutedUntil: &until})
}

// Unmute clears the mute window.
// @Summary Unmute notifications
// @Tags devices
// @Accept json
// @Produce json
// @Param body body HeartbeatRequest true "User"
// @Success 200 {object} MuteResponse
// @Failure 400 {object} respond.ErrorResponse
// @Failure 500 {object} respond.ErrorResponse
// @Router /api/v1/devices/mute [delete]
func (h *Handler) Unmute(w http.ResponseWriter, r *http.Request) {
	var req HeartbeatRequest
	if err := decodeBody(r, &req, false); err != nil {
		respond.WriteAppError(w, err)
		return
	}
	if err := h.devices.Unmute(r.Context(), req.UserID); err != nil {
		respond.WriteAppError(w, err)
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, MuteResponse{Success: true})
}

// GetPreferences returns a device's toggles.
// @Summary Get notification preferences
// @Description Returns all five toggles; unknown tokens get the all-true defaults.
// @Tags devices
// @Produce json
// @Param token query string true "Push token"
// @Success 200 {object} PreferencesResponse
// @Failure 400 {object} respond.ErrorResponse
// @Failure 500 {object} respond.ErrorResponse
// @Router /api/v1/devices/preferences [get]
func (h *Handler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	prefs, err := h.devices.GetPreferences(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		respond.WriteAppError(w, err)
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, PreferencesResponse{Success: true, Preferences: prefs})
}

// SetPreferences replaces a device's toggles.
// @Summary Set notification preferences
// @Description Unknown keys are dropped, missing keys default to true and values are coerced by truthiness.
// @Tags devices
// @Accept json
// @Produce json
// @Param body body PreferencesRequest true "Token and preferences"
// @Success 200 {object} PreferencesResponse
// @Failure 400 {object} respond.ErrorResponse
// @Failure 500 {object} respond.ErrorResponse
// @Router /api/v1/devices/preferences [put]
func (h *Handler) SetPreferences(w http.ResponseWriter, r *http.Request) {
	var req PreferencesRequest
	if err := decodeBody(r, &req, false); err != nil {
		respond.WriteAppError(w, err)
		return
	}
	prefs, err := h.devices.SetPreferences(r.Context(), req.Token, req.Preferences)
	if err != nil {
		respond.WriteAppError(w, err)
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, PreferencesResponse{Success: true, Preferences: prefs})
}

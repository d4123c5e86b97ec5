package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/albapepper/scoracle-push/internal/api/respond"
	"github.com/albapepper/scoracle-push/internal/notifications"
)

// TriggerResponse is returned by a class run.
type TriggerResponse struct {
	Success  bool   `json:"success"`
	Sent     int    `json:"sent"`
	Errors   int    `json:"errors"`
	Targeted int    `json:"targeted"`
	RunID    string `json:"run_id"`
}

// ClassInfo describes a registered notification class.
type ClassInfo struct {
	Name             string `json:"name"`
	Description      string `json:"description"`
	PreferenceKey    string `json:"preference_key,omitempty"`
	InactivityWindow string `json:"inactivity_window,omitempty"`
	ThrottleWindow   string `json:"throttle_window,omitempty"`
	RequiresContent  bool   `json:"requires_content"`
}

// TriggerClass runs one notification class.
// @Summary Run a notification class
// @Description Selects eligible devices for the class, sends in batches of 100 and reports counts. Gateway failures are counted, not returned as errors.
// @Tags notifications
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param class path string true "Class name" Enums(inactivity_reminder, new_article, new_podcast, new_video, live_event)
// @Param body body notifications.RunParams false "Content for content classes"
// @Success 200 {object} TriggerResponse
// @Failure 400 {object} respond.ErrorResponse
// @Failure 401 {object} respond.ErrorResponse
// @Failure 404 {object} respond.ErrorResponse
// @Failure 500 {object} respond.ErrorResponse
// @Router /api/v1/notifications/{class}/run [post]
func (h *Handler) TriggerClass(w http.ResponseWriter, r *http.Request) {
	var params notifications.RunParams
	if err := decodeBody(r, &params, true); err != nil {
		respond.WriteAppError(w, err)
		return
	}

	out, err := h.engine.RunByName(r.Context(), chi.URLParam(r, "class"), params)
	if err != nil {
		h.logger.Warn("Notification trigger failed",
			"class", out.Class, "run_id", out.RunID, "error", err)
		respond.WriteAppError(w, err)
		return
	}

	respond.WriteJSONObject(w, http.StatusOK, TriggerResponse{
		Success:  true,
		Sent:     out.Success,
		Errors:   out.Errors,
		Targeted: out.Targeted,
		RunID:    out.RunID,
	})
}

// ListClasses returns the notification class catalogue.
// @Summary List notification classes
// @Tags notifications
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} respond.ErrorResponse
// @Router /api/v1/notifications/classes [get]
func (h *Handler) ListClasses(w http.ResponseWriter, r *http.Request) {
	classes := notifications.Classes()
	out := make([]ClassInfo, 0, len(classes))
	for _, c := range classes {
		info := ClassInfo{
			Name:            c.Name,
			Description:     c.Description,
			PreferenceKey:   c.PreferenceKey,
			RequiresContent: c.RequiresContent,
		}
		if c.InactivityWindow > 0 {
			info.InactivityWindow = c.InactivityWindow.String()
		}
		if c.Throttled() {
			info.ThrottleWindow = c.ThrottleWindow.String()
		}
		out = append(out, info)
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"classes": out,
	})
}

// ListRuns returns the most recent run outcomes.
// @Summary Recent notification runs
// @Tags notifications
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Max rows (default 50, max 500)"
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} respond.ErrorResponse
// @Failure 503 {object} respond.ErrorResponse
// @Router /api/v1/notifications/runs [get]
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		respond.WriteError(w, http.StatusServiceUnavailable, "RUN_LOG_DISABLED", "Run log is not configured")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := h.runs.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list notification runs", "error", err)
		respond.WriteError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list runs")
		return
	}
	if runs == nil {
		runs = []notifications.Outcome{}
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"runs":    runs,
	})
}

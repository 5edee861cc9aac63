package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cerberusteck/sirse-watch/internal/api/respond"
	"github.com/cerberusteck/sirse-watch/internal/config"
	"github.com/cerberusteck/sirse-watch/internal/geo"
	"github.com/cerberusteck/sirse-watch/internal/lifecycle"
	"github.com/cerberusteck/sirse-watch/internal/notify"
)

type enabledRequest struct {
	Enabled *bool `json:"enabled"`
}

type intervalRequest struct {
	Minutes int `json:"minutes"`
}

type locationRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// GetPolling returns the polling configuration and runtime state.
// @Summary Polling status
// @Description Returns enabled flag, interval, radius, engine state, seen count, last update and the new-report counter.
// @Tags polling
// @Produce json
// @Success 200 {object} lifecycle.Status
// @Router /polling [get]
func (h *Handler) GetPolling(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, h.ctrl.Status())
}

// SetEnabled turns polling on or off. Turning it on asks for notification
// permission first.
// @Summary Enable or disable polling
// @Tags polling
// @Accept json
// @Produce json
// @Param body body enabledRequest true "Desired state"
// @Success 200 {object} lifecycle.Status
// @Failure 400 {object} respond.ErrorResponse
// @Failure 403 {object} respond.ErrorResponse
// @Failure 500 {object} respond.ErrorResponse
// @Router /polling/enabled [put]
func (h *Handler) SetEnabled(w http.ResponseWriter, r *http.Request) {
	var req enabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_BODY", `Body must be {"enabled": true|false}`)
		return
	}

	err := h.ctrl.SetEnabled(r.Context(), *req.Enabled)
	switch {
	case errors.Is(err, notify.ErrPermissionDenied):
		respond.WriteError(w, http.StatusForbidden, "PERMISSION_DENIED", "Notification permission was not granted")
		return
	case err != nil:
		respond.WriteErrorDetail(w, http.StatusInternalServerError, "UPDATE_FAILED", "Could not update polling", err.Error())
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, h.ctrl.Status())
}

// SetInterval changes the polling interval. An active engine restarts with
// the new value after a short settle delay.
// @Summary Change polling interval
// @Tags polling
// @Accept json
// @Produce json
// @Param body body intervalRequest true "Interval in minutes (1, 2, 5, 10 or 15)"
// @Success 200 {object} lifecycle.Status
// @Failure 400 {object} respond.ErrorResponse
// @Failure 500 {object} respond.ErrorResponse
// @Router /polling/interval [put]
func (h *Handler) SetInterval(w http.ResponseWriter, r *http.Request) {
	var req intervalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_BODY", `Body must be {"minutes": n}`)
		return
	}
	if !config.ValidIntervalMinutes(req.Minutes) {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_INTERVAL", "Interval must be one of 1, 2, 5, 10, 15 minutes")
		return
	}

	if err := h.ctrl.SetInterval(r.Context(), time.Duration(req.Minutes)*time.Minute); err != nil {
		respond.WriteErrorDetail(w, http.StatusInternalServerError, "UPDATE_FAILED", "Could not update interval", err.Error())
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, h.ctrl.Status())
}

// CheckNow runs one check immediately and waits for it up to the check
// timeout.
// @Summary Check for new reports now
// @Tags polling
// @Produce json
// @Success 200 {object} lifecycle.CheckResult
// @Failure 409 {object} respond.ErrorResponse
// @Failure 502 {object} respond.ErrorResponse
// @Failure 504 {object} respond.ErrorResponse
// @Router /polling/check [post]
func (h *Handler) CheckNow(w http.ResponseWriter, r *http.Request) {
	res, err := h.ctrl.CheckNow(r.Context())
	switch res.Outcome {
	case lifecycle.OutcomeSuccess:
		respond.WriteJSONObject(w, http.StatusOK, res)
	case lifecycle.OutcomeNoLocation:
		respond.WriteError(w, http.StatusConflict, "NO_LOCATION", "No location is known yet")
	case lifecycle.OutcomeTimeout:
		respond.WriteError(w, http.StatusGatewayTimeout, "CHECK_TIMEOUT", "The check is taking longer than expected and continues in the background")
	default:
		detail := ""
		if err != nil {
			detail = err.Error()
		}
		respond.WriteErrorDetail(w, http.StatusBadGateway, "CHECK_FAILED", "Could not check for new reports", detail)
	}
}

// ResetSeen forgets every surfaced report.
// @Summary Reset seen reports
// @Tags polling
// @Produce json
// @Success 200 {object} lifecycle.Status
// @Failure 500 {object} respond.ErrorResponse
// @Router /polling/reset [post]
func (h *Handler) ResetSeen(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.ResetSeen(r.Context()); err != nil {
		respond.WriteErrorDetail(w, http.StatusInternalServerError, "RESET_FAILED", "Could not reset seen reports", err.Error())
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, h.ctrl.Status())
}

// ClearCounter zeroes the new-report counter.
// @Summary Clear new-report counter
// @Tags polling
// @Produce json
// @Success 200 {object} lifecycle.Status
// @Router /polling/counter [delete]
func (h *Handler) ClearCounter(w http.ResponseWriter, r *http.Request) {
	h.ctrl.ClearNewReportsCount()
	respond.WriteJSONObject(w, http.StatusOK, h.ctrl.Status())
}

// SetLocation records the user's current location.
// @Summary Update user location
// @Tags location
// @Accept json
// @Produce json
// @Param body body locationRequest true "Coordinates"
// @Success 200 {object} lifecycle.Status
// @Failure 400 {object} respond.ErrorResponse
// @Router /location [put]
func (h *Handler) SetLocation(w http.ResponseWriter, r *http.Request) {
	var req locationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Latitude == nil || req.Longitude == nil {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_BODY", `Body must be {"latitude": n, "longitude": n}`)
		return
	}
	loc := geo.Point{Latitude: *req.Latitude, Longitude: *req.Longitude}
	if err := h.ctrl.UpdateLocation(r.Context(), loc); err != nil {
		respond.WriteErrorDetail(w, http.StatusBadRequest, "INVALID_LOCATION", "Coordinates out of range", err.Error())
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, h.ctrl.Status())
}

// SetLifecycle reports an app foreground/background transition.
// @Summary Report lifecycle transition
// @Tags lifecycle
// @Produce json
// @Param state path string true "Lifecycle state" Enums(foreground, background)
// @Success 200 {object} lifecycle.Status
// @Failure 400 {object} respond.ErrorResponse
// @Router /lifecycle/{state} [post]
func (h *Handler) SetLifecycle(w http.ResponseWriter, r *http.Request) {
	switch chi.URLParam(r, "state") {
	case "foreground":
		h.ctrl.Foreground(r.Context())
	case "background":
		h.ctrl.Background()
	default:
		respond.WriteError(w, http.StatusBadRequest, "INVALID_STATE", "State must be 'foreground' or 'background'")
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, h.ctrl.Status())
}

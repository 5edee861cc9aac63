package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/cerberusteck/sirse-watch/internal/api/respond"
	"github.com/cerberusteck/sirse-watch/internal/cache"
	"github.com/cerberusteck/sirse-watch/internal/geo"
	"github.com/cerberusteck/sirse-watch/internal/poller"
)

type nearbyResponse struct {
	Latitude  float64         `json:"latitude"`
	Longitude float64         `json:"longitude"`
	RadiusKm  float64         `json:"radius_km"`
	Count     int             `json:"count"`
	Reports   []poller.Nearby `json:"reports"`
}

// GetNearby lists reports from the last 24 hours within a radius, nearest
// first. It reads nothing from and writes nothing to the seen-set.
// @Summary Nearby recent reports
// @Description Lists reports created in the last 24 hours within radius km of the point (defaults to the current location and configured radius).
// @Tags reports
// @Produce json
// @Param lat query number false "Latitude"
// @Param lon query number false "Longitude"
// @Param radius query number false "Radius in km"
// @Success 200 {object} nearbyResponse
// @Failure 400 {object} respond.ErrorResponse
// @Failure 409 {object} respond.ErrorResponse
// @Failure 502 {object} respond.ErrorResponse
// @Router /reports/nearby [get]
func (h *Handler) GetNearby(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var loc *geo.Point
	latStr, lonStr := q.Get("lat"), q.Get("lon")
	if latStr != "" || lonStr != "" {
		lat, latErr := strconv.ParseFloat(latStr, 64)
		lon, lonErr := strconv.ParseFloat(lonStr, 64)
		if latErr != nil || lonErr != nil {
			respond.WriteError(w, http.StatusBadRequest, "INVALID_LOCATION", "lat and lon must both be numbers")
			return
		}
		p := geo.Point{Latitude: lat, Longitude: lon}
		if err := p.Validate(); err != nil {
			respond.WriteErrorDetail(w, http.StatusBadRequest, "INVALID_LOCATION", "Coordinates out of range", err.Error())
			return
		}
		loc = &p
	}

	radius := h.ctrl.Config().RadiusKm
	if s := q.Get("radius"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || v <= 0 {
			respond.WriteError(w, http.StatusBadRequest, "INVALID_RADIUS", "radius must be a positive number")
			return
		}
		radius = v
	}

	if loc == nil {
		loc = h.ctrl.Status().Location
	}
	if loc == nil {
		respond.WriteError(w, http.StatusConflict, "NO_LOCATION", "No location given and none is known yet")
		return
	}

	cacheKey := cache.NearbyKey(loc.Latitude, loc.Longitude, radius)
	ttl := cache.TTLNearby

	if data, etag, ok := h.cache.Get(cacheKey); ok {
		if cache.CheckETagMatch(r.Header.Get("If-None-Match"), etag) {
			respond.WriteNotModified(w, etag)
			return
		}
		respond.WriteJSON(w, data, etag, ttl, true)
		return
	}

	nearby, err := h.ctrl.CheckOnce(r.Context(), loc, radius)
	if err != nil {
		if errors.Is(err, poller.ErrNoLocation) {
			respond.WriteError(w, http.StatusConflict, "NO_LOCATION", "No location given and none is known yet")
			return
		}
		h.logger.Warn("Nearby lookup failed", "error", err)
		respond.WriteErrorDetail(w, http.StatusBadGateway, "FETCH_FAILED", "Could not fetch reports", err.Error())
		return
	}
	if nearby == nil {
		nearby = []poller.Nearby{}
	}

	raw, err := json.Marshal(nearbyResponse{
		Latitude:  loc.Latitude,
		Longitude: loc.Longitude,
		RadiusKm:  radius,
		Count:     len(nearby),
		Reports:   nearby,
	})
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "ENCODE_FAILED", "Could not encode response")
		return
	}

	etag := h.cache.Set(cacheKey, raw, ttl)
	respond.WriteJSON(w, raw, etag, ttl, false)
}

package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"dispatchhub/internal/apperr"
	"dispatchhub/internal/models"
	"dispatchhub/internal/service"
)

type locationRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

func (h HandlerSet) UpdateLocation(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	var req locationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	if req.Latitude == nil || req.Longitude == nil {
		h.fail(c, apperr.Validation("latitude and longitude are required"))
		return
	}

	point := models.GeoPoint{Latitude: *req.Latitude, Longitude: *req.Longitude}
	user, err := h.locations.UpdateLocation(c.Request.Context(), caller, caller.ID, point)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "location updated", service.NewUserView(user))
}

func (h HandlerSet) ActiveCouriers(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	users, err := h.locations.ActiveCouriers(c.Request.Context(), caller)
	if err != nil {
		h.fail(c, err)
		return
	}
	respondList(c, service.NewUserViews(users), len(users))
}

func (h HandlerSet) NearbyCouriers(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	lat, latErr := strconv.ParseFloat(c.Query("latitude"), 64)
	lon, lonErr := strconv.ParseFloat(c.Query("longitude"), 64)
	if latErr != nil || lonErr != nil {
		h.fail(c, apperr.Validation("latitude and longitude query parameters are required"))
		return
	}
	var radius float64
	if raw := c.Query("maxDistance"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 {
			h.fail(c, apperr.Validation("maxDistance must be a positive number of meters"))
			return
		}
		radius = v
	}

	users, err := h.locations.FindNearby(c.Request.Context(), caller, models.GeoPoint{Latitude: lat, Longitude: lon}, radius)
	if err != nil {
		h.fail(c, err)
		return
	}
	respondList(c, service.NewUserViews(users), len(users))
}

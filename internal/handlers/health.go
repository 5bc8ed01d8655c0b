package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type healthResponse struct {
	Database    string `json:"database"`
	Cache       string `json:"cache"`
	Storage     string `json:"storage"`
	Environment string `json:"environment"`
	Uptime      string `json:"uptime"`
	Connections int    `json:"connections"`
}

// Health always answers 200 while the process is up; degraded dependencies
// show up in the body.
func (h HandlerSet) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	dbStatus := "ok"
	if h.db == nil {
		dbStatus = "disabled"
	} else if err := h.db.Ping(ctx); err != nil {
		dbStatus = "error"
		h.log.Error().Err(err).Msg("database ping failed")
	}

	cacheStatus := "disabled"
	if h.cache != nil {
		cacheStatus = "ok"
		if err := h.cache.Ping(ctx).Err(); err != nil {
			cacheStatus = "error"
			h.log.Error().Err(err).Msg("redis ping failed")
		}
	}

	storageStatus := "disabled"
	if h.storage != nil {
		storageStatus = "ok"
		if err := h.storage.Ping(ctx); err != nil {
			storageStatus = "error"
			h.log.Error().Err(err).Msg("object storage ping failed")
		}
	}

	resp := healthResponse{
		Database: dbStatus,
		Cache:    cacheStatus,
		Storage:  storageStatus,
		Uptime:   time.Since(h.started).Round(time.Second).String(),
	}
	if h.cfg != nil {
		resp.Environment = h.cfg.Environment
	}
	if h.connections != nil {
		resp.Connections = h.connections.Count()
	}

	respond(c, http.StatusOK, "dispatch service is running", resp)
}

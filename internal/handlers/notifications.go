package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"dispatchhub/internal/apperr"
	"dispatchhub/internal/models"
	"dispatchhub/internal/service"
)

const defaultNotificationLimit = 50

func (h HandlerSet) ListNotifications(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	limit := defaultNotificationLimit
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			h.fail(c, apperr.Validation("limit must be a positive integer"))
			return
		}
		limit = v
	}
	unreadOnly := c.Query("unread") == "true"

	items, err := h.notifications.List(c.Request.Context(), caller, unreadOnly, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	respondList(c, notificationViews(items), len(items))
}

func (h HandlerSet) UnreadCount(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	count, err := h.notifications.CountUnread(c.Request.Context(), caller)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "", gin.H{"unread": count})
}

func (h HandlerSet) MarkNotificationRead(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	n, err := h.notifications.MarkRead(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "", service.NewNotificationView(n))
}

func (h HandlerSet) MarkAllNotificationsRead(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	updated, err := h.notifications.MarkAllRead(c.Request.Context(), caller)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "notifications marked as read", gin.H{"updated": updated})
}

func notificationViews(items []models.Notification) []service.NotificationView {
	out := make([]service.NotificationView, 0, len(items))
	for _, n := range items {
		out = append(out, service.NewNotificationView(n))
	}
	return out
}

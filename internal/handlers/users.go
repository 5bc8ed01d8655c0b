package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dispatchhub/internal/service"
)

func (h HandlerSet) ListUsers(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	users, err := h.users.List(c.Request.Context(), caller, c.Query("role"))
	if err != nil {
		h.fail(c, err)
		return
	}
	respondList(c, service.NewUserViews(users), len(users))
}

func (h HandlerSet) ListCouriers(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	users, err := h.users.ListCouriers(c.Request.Context(), caller)
	if err != nil {
		h.fail(c, err)
		return
	}
	respondList(c, service.NewUserViews(users), len(users))
}

func (h HandlerSet) GetUser(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	user, err := h.users.Get(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "", service.NewUserView(user))
}

type updateUserRequest struct {
	Name         *string `json:"name"`
	Email        *string `json:"email"`
	Phone        *string `json:"phone"`
	Role         *string `json:"role"`
	IsActive     *bool   `json:"isActive"`
	Availability *string `json:"availability"`
}

func (h HandlerSet) UpdateUser(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	user, err := h.users.Update(c.Request.Context(), caller, c.Param("id"), service.UpdateUserInput{
		Name:         req.Name,
		Email:        req.Email,
		Phone:        req.Phone,
		Role:         req.Role,
		IsActive:     req.IsActive,
		Availability: req.Availability,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "user updated", service.NewUserView(user))
}

func (h HandlerSet) ToggleUserActive(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	user, err := h.users.ToggleActive(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	message := "user deactivated"
	if user.IsActive {
		message = "user activated"
	}
	respond(c, http.StatusOK, message, service.NewUserView(user))
}

func (h HandlerSet) DeleteUser(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	if err := h.users.Delete(c.Request.Context(), caller, c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "user deleted", nil)
}

type availabilityRequest struct {
	Availability string `json:"availability" binding:"required"`
}

func (h HandlerSet) SetAvailability(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	var req availabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	user, err := h.users.SetAvailability(c.Request.Context(), caller, req.Availability)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "availability updated", service.NewUserView(user))
}

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dispatchhub/internal/middleware"
	"dispatchhub/internal/service"
)

type registerRequest struct {
	Name       string `json:"name" binding:"required"`
	Email      string `json:"email" binding:"required"`
	Password   string `json:"password" binding:"required"`
	Role       string `json:"role"`
	Phone      string `json:"phone"`
	DeviceID   string `json:"deviceId"`
	DeviceName string `json:"deviceName"`
}

type authResponse struct {
	AccessToken  string           `json:"accessToken"`
	RefreshToken string           `json:"refreshToken"`
	DeviceID     string           `json:"deviceId"`
	User         service.UserView `json:"user"`
}

func newAuthResponse(result service.AuthResult) authResponse {
	return authResponse{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		DeviceID:     result.DeviceID,
		User:         service.NewUserView(result.User),
	}
}

func (h HandlerSet) device(c *gin.Context, id, name string) service.DeviceInfo {
	return service.DeviceInfo{
		DeviceID:   id,
		DeviceName: name,
		IPAddress:  c.ClientIP(),
		UserAgent:  c.GetHeader("User-Agent"),
	}
}

// Register is public; an admin token lets the caller create staff accounts.
func (h HandlerSet) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	var caller *service.Identity
	if identity, ok := middleware.CurrentIdentity(c); ok {
		caller = &identity
	}

	result, err := h.authService.Register(c.Request.Context(), caller, service.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
		Phone:    req.Phone,
		Device:   h.device(c, req.DeviceID, req.DeviceName),
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	respond(c, http.StatusCreated, "user registered", newAuthResponse(result))
}

type loginRequest struct {
	Email      string `json:"email" binding:"required"`
	Password   string `json:"password" binding:"required"`
	DeviceID   string `json:"deviceId"`
	DeviceName string `json:"deviceName"`
}

func (h HandlerSet) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	result, err := h.authService.Login(c.Request.Context(), service.LoginInput{
		Email:    req.Email,
		Password: req.Password,
		Device:   h.device(c, req.DeviceID, req.DeviceName),
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	respond(c, http.StatusOK, "login successful", newAuthResponse(result))
}

type refreshRequest struct {
	UserID       string `json:"userId" binding:"required"`
	DeviceID     string `json:"deviceId" binding:"required"`
	RefreshToken string `json:"refreshToken" binding:"required"`
}

func (h HandlerSet) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	result, err := h.authService.Refresh(c.Request.Context(), service.RefreshInput{
		UserID:       req.UserID,
		DeviceID:     req.DeviceID,
		RefreshToken: req.RefreshToken,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	respond(c, http.StatusOK, "", newAuthResponse(result))
}

func (h HandlerSet) Logout(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	if err := h.authService.Logout(c.Request.Context(), caller); err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "logged out", nil)
}

func (h HandlerSet) Me(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	user, err := h.authService.Me(c.Request.Context(), caller)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "", service.NewUserView(user))
}

type profileRequest struct {
	Name  *string `json:"name"`
	Phone *string `json:"phone"`
}

func (h HandlerSet) UpdateProfile(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	user, err := h.authService.UpdateProfile(c.Request.Context(), caller, service.ProfileInput{
		Name:  req.Name,
		Phone: req.Phone,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "profile updated", service.NewUserView(user))
}

func (h HandlerSet) ListSessions(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	sessions, err := h.authService.Sessions(c.Request.Context(), caller)
	if err != nil {
		h.fail(c, err)
		return
	}
	views := service.NewSessionViews(sessions, caller.SessionID)
	respondList(c, views, len(views))
}

func (h HandlerSet) RevokeSession(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	deviceID := c.Param("deviceId")
	if deviceID == caller.DeviceID {
		h.fail(c, errRevokeCurrentDevice)
		return
	}
	if err := h.authService.RevokeDevice(c.Request.Context(), caller, deviceID); err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "session revoked", nil)
}

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dispatchhub/internal/apperr"
	"dispatchhub/internal/middleware"
	"dispatchhub/internal/service"
)

// envelope is the body of every /api response.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Count   *int   `json:"count,omitempty"`
	Error   string `json:"error,omitempty"`
}

func respond(c *gin.Context, status int, message string, data any) {
	c.JSON(status, envelope{Success: true, Message: message, Data: data})
}

func respondList(c *gin.Context, data any, count int) {
	c.JSON(http.StatusOK, envelope{Success: true, Data: data, Count: &count})
}

// fail writes err as an error envelope. The raw error text is only exposed
// outside production.
func (h HandlerSet) fail(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	body := envelope{Message: apperr.PublicMessage(err)}
	if kind == apperr.KindInternal {
		h.log.Error().Err(err).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Msg("request failed")
	}
	if h.cfg == nil || !h.cfg.IsProduction() {
		body.Error = err.Error()
	}
	c.JSON(kind.HTTPStatus(), body)
}

func (h HandlerSet) badRequest(c *gin.Context, err error) {
	h.fail(c, apperr.Wrap(apperr.KindValidation, err, "invalid request body"))
}

// caller returns the authenticated identity. Routes that call it sit behind
// middleware.Auth, so a miss means the wiring is wrong.
func (h HandlerSet) caller(c *gin.Context) (service.Identity, bool) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		h.fail(c, apperr.New(apperr.KindUnauthenticated, "no credential"))
	}
	return identity, ok
}

var errRevokeCurrentDevice = apperr.Validation("use logout to end the current session")

package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"dispatchhub/internal/apperr"
	"dispatchhub/internal/security"
	"dispatchhub/internal/service"
)

const identityKey = "current_identity"

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (service.Identity, error)
	TouchSession(ctx context.Context, sessionID, ip, userAgent string)
}

// Auth rejects requests without a valid bearer token.
func Auth(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := security.BearerToken(c.GetHeader("Authorization"))
		identity, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			abortAuth(c, err)
			return
		}

		auth.TouchSession(c.Request.Context(), identity.SessionID, c.ClientIP(), c.GetHeader("User-Agent"))
		c.Set(identityKey, identity)
		c.Next()
	}
}

// OptionalAuth resolves the caller when a token is present and lets anonymous
// requests through. A present but bad token is still rejected.
func OptionalAuth(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := security.BearerToken(c.GetHeader("Authorization"))
		if token == "" {
			c.Next()
			return
		}
		identity, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			abortAuth(c, err)
			return
		}
		c.Set(identityKey, identity)
		c.Next()
	}
}

// CurrentIdentity returns the caller stored by Auth or OptionalAuth.
func CurrentIdentity(c *gin.Context) (service.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return service.Identity{}, false
	}
	identity, ok := v.(service.Identity)
	return identity, ok
}

func abortAuth(c *gin.Context, err error) {
	status := apperr.KindOf(err).HTTPStatus()
	reason := "invalid_credential"
	switch apperr.KindOf(err) {
	case apperr.KindUnauthenticated:
		reason = "no_credential"
	case apperr.KindAccountDisabled:
		reason = "account_disabled"
	case apperr.KindInternal:
		reason = "internal_error"
	}
	if status == http.StatusInternalServerError {
		c.AbortWithStatusJSON(status, gin.H{"success": false, "message": "internal server error", "error": reason})
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"success": false, "message": apperr.PublicMessage(err), "error": reason})
}

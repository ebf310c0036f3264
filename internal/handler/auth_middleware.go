package handler

import (
	"github.com/Md-KamranQutub/chatify/internal/auth"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const userIDKey = "userId"

// TokenVerifier resolves a bearer token to a user id.
type TokenVerifier interface {
	Verify(raw string) (string, error)
}

// AuthMiddleware rejects requests without a valid bearer token and stores
// the caller's id on the context.
func AuthMiddleware(verifier TokenVerifier, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := auth.BearerToken(c.GetHeader("Authorization"))
		if raw == "" {
			fail(c, auth.ErrMissingToken)
			return
		}

		userID, err := verifier.Verify(raw)
		if err != nil {
			logger.Debug("rejected bearer token", zap.String("path", c.FullPath()), zap.Error(err))
			fail(c, auth.ErrInvalidToken)
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}

// CurrentUser returns the authenticated user id set by AuthMiddleware.
func CurrentUser(c *gin.Context) string {
	return c.GetString(userIDKey)
}

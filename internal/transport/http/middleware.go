package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/caserelay/internal/auth"
)

const (
	// ContextKeyUserID is the context key for storing user ID.
	ContextKeyUserID = "user_id"
	// ContextKeyRole is the context key for storing the user's role.
	ContextKeyRole = "role"
)

// bearerToken extracts a token from the Authorization header or, for
// browser WebSocket clients that cannot set headers, the token query parameter.
func bearerToken(r *http.Request) (string, bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return token, true
	}
	return "", false
}

// authStatus maps an authorization failure to an HTTP status.
func authStatus(err error) int {
	if errors.Is(err, auth.ErrRoleNotAllowed) {
		return http.StatusForbidden
	}
	return http.StatusUnauthorized
}

// AuthMiddleware creates a middleware that validates JWT tokens and the caller's role.
func AuthMiddleware(cfg *auth.JWTConfig, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.Request)
		if !ok {
			logger.Debug().Msg("missing or malformed bearer token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "missing authorization token"})
			return
		}

		claims, err := auth.Authorize(cfg, token)
		if err != nil {
			logger.Debug().Err(err).Msg("request not authorized")
			status := authStatus(err)
			c.AbortWithStatusJSON(status, ErrorResponse{Error: http.StatusText(status)})
			return
		}

		c.Set(ContextKeyUserID, claims.UserID)
		c.Set(ContextKeyRole, claims.Role)

		c.Next()
	}
}

// LoggerMiddleware creates a middleware that logs HTTP requests.
func LoggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Msg("http request")
	}
}

package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const (
	authorizationHeader = "Authorization"
	authorizationType   = "bearer"
	ContextUserIDKey    = "userID"
)

var (
	errMissingAuthHeader   = errors.New("authorization header required")
	errMalformedAuthHeader = errors.New("invalid authorization header format")
)

// TokenValidator resolves a bearer token to the id of an existing user.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (string, error)
}

// AuthMiddleware puts the authenticated user id on the context and on the
// request scoped logger. Every rejection is a 401.
func AuthMiddleware(tokens TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c.GetHeader(authorizationHeader))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		userID, err := tokens.ValidateToken(c.Request.Context(), token)
		if err != nil {
			LoggerFrom(c, zerolog.Nop()).Debug().Err(err).Msg("token rejected")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		c.Set(ContextUserIDKey, userID)
		scoped := LoggerFrom(c, zerolog.Nop()).With().Str("user_id", userID).Logger()
		c.Set(loggerKey, &scoped)

		c.Next()
	}
}

// bearerToken matches the scheme case insensitively.
func bearerToken(header string) (string, error) {
	if header == "" {
		return "", errMissingAuthHeader
	}
	fields := strings.Fields(header)
	if len(fields) != 2 || strings.ToLower(fields[0]) != authorizationType {
		return "", errMalformedAuthHeader
	}
	return fields[1], nil
}

func GetUserID(c *gin.Context) (string, bool) {
	id, exists := c.Get(ContextUserIDKey)
	if !exists {
		return "", false
	}
	idStr, ok := id.(string)
	return idStr, ok
}

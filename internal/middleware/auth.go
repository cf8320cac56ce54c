package middleware

import (
	"strings"

	"github.com/dimitrije/snapbook/internal/services"
	"github.com/m1z23r/drift/pkg/drift"
)

const (
	UserIDKey   = "user_id"
	UsernameKey = "username"

	// TokenHeader carries the session token on REST calls.
	TokenHeader = "x-auth-token"
)

// Auth accepts the token from x-auth-token or an Authorization bearer
// header.
func Auth(jwtService *services.JWTService) drift.HandlerFunc {
	return func(c *drift.Context) {
		token, msg := tokenFromHeaders(c)
		if token == "" {
			c.Unauthorized(msg)
			return
		}

		claims, err := jwtService.ValidateToken(token)
		if err != nil {
			c.Unauthorized("invalid or expired token")
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Set(UsernameKey, claims.Username)

		c.Next()
	}
}

func tokenFromHeaders(c *drift.Context) (string, string) {
	if token := strings.TrimSpace(c.GetHeader(TokenHeader)); token != "" {
		return token, ""
	}

	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", "missing authorization header"
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || strings.TrimSpace(parts[1]) == "" {
		return "", "invalid authorization header format"
	}
	return strings.TrimSpace(parts[1]), ""
}

func GetUserID(c *drift.Context) string {
	if id, ok := c.Get(UserIDKey); ok {
		if uid, ok := id.(string); ok {
			return uid
		}
	}
	return ""
}

func GetUsername(c *drift.Context) string {
	if name, ok := c.Get(UsernameKey); ok {
		if n, ok := name.(string); ok {
			return n
		}
	}
	return ""
}

package auth

import (
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	"neuralsalvage/pkg/response"
)

const (
	ContextUserUUID = "user_uuid"
	ContextEmail    = "user_email"
	ContextVerified = "user_email_verified"
)

// RequireAuth rejects requests without a valid bearer token. Websocket clients,
// which cannot set headers from browsers, may pass ?token= instead.
func RequireAuth(tokens *TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c.GetHeader("Authorization"))
		if raw == "" {
			raw = c.Query("token")
		}

		claims, err := tokens.Validate(raw)
		if err != nil {
			response.SendAPIResponse(c, http.StatusUnauthorized, false, err.Error(), nil)
			c.Abort()
			return
		}

		c.Set(ContextUserUUID, claims.UserUUID)
		c.Set(ContextEmail, claims.Email)
		c.Set(ContextVerified, claims.Verified)
		c.Next()
	}
}

// RequireAdmin must run after RequireAuth. Admin emails count only once verified.
func RequireAdmin(adminEmails []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !c.GetBool(ContextVerified) || !slices.Contains(adminEmails, strings.ToLower(c.GetString(ContextEmail))) {
			response.SendAPIResponse(c, http.StatusForbidden, false, "admin access required", nil)
			c.Abort()
			return
		}
		c.Next()
	}
}

// UserUUID returns the authenticated caller, or "" outside RequireAuth.
func UserUUID(c *gin.Context) string {
	return c.GetString(ContextUserUUID)
}

func bearerToken(header string) string {
	const prefix = "bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

package middlewares

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/catalogsync_backend/utils"
)

// BearerToken copies "Authorization: Bearer <t>" into the token header when the
// header is not set already.
func BearerToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("token") == "" {
			auth := strings.TrimSpace(c.GetHeader("Authorization"))
			if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
				token := strings.TrimSpace(auth[7:])
				if token != "" {
					c.Request.Header.Set("token", token)
				}
			}
		}
		c.Next()
	}
}

// AuthMiddleware rejects requests that SessionMiddleware left anonymous.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		username, ok := utils.GetUsernameFromContext(c.Request.Context())
		if !ok || username == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": utils.ErrorUnauthorized.Error()})
			c.Abort()
			return
		}
		c.Next()
	}
}

func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if admin, ok := utils.GetIsAdminFromContext(c.Request.Context()); !ok || !admin {
			c.JSON(http.StatusForbidden, gin.H{"error": utils.ErrorForbidden.Error()})
			c.Abort()
			return
		}
		c.Next()
	}
}

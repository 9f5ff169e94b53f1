package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/catalogsync_backend/config"
	"github.com/mmdatafocus/catalogsync_backend/utils"
)

// SessionMiddleware resolves the "token" header to a user. A token stored in Redis
// as Token:<token> wins; otherwise the token must be a valid JWT. Requests without
// a token pass through anonymous.
func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Request.Header.Get("token")
		if token == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		username, exists, err := config.GetRedisValue("Token:" + token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		if exists {
			ctx = utils.SetUsernameInContext(ctx, username)
		} else {
			claim, err := utils.JwtValidate(token)
			if err != nil {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
				c.Abort()
				return
			}
			ctx = utils.SetUsernameInContext(ctx, claim.Username)
			ctx = utils.SetIsAdminInContext(ctx, claim.Role == utils.RoleAdmin)
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

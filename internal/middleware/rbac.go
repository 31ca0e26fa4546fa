package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/campusworks/records-api/internal/models"
	appErrors "github.com/campusworks/records-api/pkg/errors"
	"github.com/campusworks/records-api/pkg/response"
)

// RequireRoles blocks the request unless the authenticated session carries
// one of the given roles.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionValue, exists := c.Get(ContextUserKey)
		if !exists {
			response.Error(c, appErrors.Clone(appErrors.ErrAuthFailed, "authentication required"))
			c.Abort()
			return
		}
		session, ok := sessionValue.(*models.Session)
		if !ok {
			response.Error(c, appErrors.Clone(appErrors.ErrAuthFailed, "authentication required"))
			c.Abort()
			return
		}

		for _, role := range roles {
			if session.Role == role {
				c.Next()
				return
			}
		}

		response.Error(c, appErrors.ErrInsufficientPermissions)
		c.Abort()
	}
}

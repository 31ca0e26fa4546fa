package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/campusworks/records-api/internal/middleware"
	"github.com/campusworks/records-api/internal/models"
)

func sessionFromContext(c *gin.Context) *models.Session {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	session, ok := value.(*models.Session)
	if !ok {
		return nil
	}
	return session
}

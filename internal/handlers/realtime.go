package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/black-bourne/educ-backend/internal/middleware"
	"github.com/black-bourne/educ-backend/internal/realtime"
	"github.com/black-bourne/educ-backend/pkg/response"

	appErrors "github.com/black-bourne/educ-backend/pkg/errors"
)

// Realtime upgrades authenticated clients onto the notification hub.
func Realtime(hub *realtime.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := middleware.CurrentUser(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthenticated)
			return
		}
		hub.Serve(user.ID, c.Writer, c.Request)
	}
}

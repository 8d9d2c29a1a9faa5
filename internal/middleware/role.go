package middleware

import (
	"github.com/gin-gonic/gin"

	appErrors "github.com/black-bourne/educ-backend/pkg/errors"
	"github.com/black-bourne/educ-backend/pkg/response"
)

// RequireRole checks that the authenticated user holds one of the allowed roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthenticated)
			c.Abort()
			return
		}

		if _, ok := allowed[user.Role]; !ok {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}

		c.Next()
	}
}

package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	iauth "github.com/black-bourne/educ-backend/internal/auth"
	"github.com/black-bourne/educ-backend/internal/models"
	appErrors "github.com/black-bourne/educ-backend/pkg/errors"
	"github.com/black-bourne/educ-backend/pkg/logger"
	"github.com/black-bourne/educ-backend/pkg/response"
)

const (
	CtxClaimsKey = "authClaims"
	CtxUserIDKey = "userID"
	CtxUserKey   = "authUser"
)

// Auth enforces JWT authentication using the supplied JWT service. The token
// must carry the two-factor flag; pre-auth tokens are only redeemable at the
// public code-verification endpoint, which sits outside this middleware.
func Auth(jwt *iauth.JWTService, db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := bearerClaims(c, jwt)
		if !ok {
			return
		}

		if !claims.TwoFactorVerified {
			response.Error(c, appErrors.ErrTwoFactorRequired)
			c.Abort()
			return
		}

		var user models.User
		err := db.WithContext(c.Request.Context()).Take(&user, "id = ?", claims.UserID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Token refers to a deleted account
			response.Error(c, appErrors.ErrUnauthenticated)
			c.Abort()
			return
		}
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrInternalServer))
			c.Abort()
			return
		}

		if !user.IsActive {
			response.Error(c, appErrors.ErrAccountDisabled)
			c.Abort()
			return
		}

		c.Set(CtxClaimsKey, claims)
		c.Set(CtxUserIDKey, claims.UserID)
		c.Set(CtxUserKey, &user)

		c.Next()
	}
}

func bearerClaims(c *gin.Context, jwt *iauth.JWTService) (*iauth.Claims, bool) {
	authz := c.GetHeader("Authorization")
	if len(authz) < 8 || !strings.EqualFold(authz[:7], "Bearer ") {
		response.Error(c, appErrors.ErrUnauthenticated)
		c.Abort()
		return nil, false
	}

	token := strings.TrimSpace(authz[7:])
	claims, err := jwt.ValidateToken(token)
	if err != nil {
		// Expired and malformed tokens both yield 401; the distinction only
		// matters for the log line.
		if errors.Is(err, iauth.ErrTokenExpired) {
			logger.WithModule("http").Debug("expired token", zap.String("path", c.Request.URL.Path))
		}
		c.Header("WWW-Authenticate", "Bearer")
		response.Error(c, appErrors.ErrUnauthenticated)
		c.Abort()
		return nil, false
	}

	return claims, true
}

// CurrentUser returns the authenticated user loaded by Auth.
func CurrentUser(c *gin.Context) (*models.User, bool) {
	v, ok := c.Get(CtxUserKey)
	if !ok {
		return nil, false
	}
	user, ok := v.(*models.User)
	return user, ok
}

// CurrentClaims returns the token claims set by Auth.
func CurrentClaims(c *gin.Context) (*iauth.Claims, bool) {
	v, ok := c.Get(CtxClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*iauth.Claims)
	return claims, ok
}

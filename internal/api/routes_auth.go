package api

import (
	"github.com/gin-gonic/gin"

	"github.com/black-bourne/educ-backend/internal/handlers"
	"github.com/black-bourne/educ-backend/internal/middleware"
)

func registerAuthRoutes(engine *gin.Engine, api *gin.RouterGroup, deps Deps) {
	authHandler := handlers.NewAuthHandler(deps.Auth)

	// Public: login, code verification (pre-auth token) and password reset.
	auth := engine.Group("/api/auth")
	{
		auth.POST("/login",
			middleware.RateLimit(deps.RateStore, middleware.LoginRatePolicy),
			authHandler.Login)
		auth.POST("/verify-otp",
			middleware.RateLimit(deps.RateStore, middleware.VerifyRatePolicy),
			authHandler.Verify)
		auth.POST("/reset-email",
			middleware.RateLimit(deps.RateStore, middleware.ResetRatePolicy),
			authHandler.RequestReset)
		auth.POST("/reset",
			middleware.RateLimit(deps.RateStore, middleware.ResetRatePolicy),
			authHandler.CompleteReset)
	}

	api.GET("/auth/me", authHandler.Me)

	if deps.TOTP != nil {
		mfaHandler := handlers.NewMFAHandler(deps.TOTP)
		authenticator := api.Group("/auth/mfa")
		{
			authenticator.POST("/enroll", mfaHandler.Enroll)
			authenticator.POST("/activate", mfaHandler.Activate)
			authenticator.GET("/status", mfaHandler.Status)
		}
	}
}

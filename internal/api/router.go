package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	iauth "github.com/black-bourne/educ-backend/internal/auth"
	"github.com/black-bourne/educ-backend/internal/auth/mfa"
	"github.com/black-bourne/educ-backend/internal/handlers"
	"github.com/black-bourne/educ-backend/internal/middleware"
	"github.com/black-bourne/educ-backend/internal/realtime"
	"github.com/black-bourne/educ-backend/internal/services"
)

// Deps bundles everything the router needs. RateStore and Hub may be nil;
// rate limiting and realtime are then disabled.
type Deps struct {
	DB  *gorm.DB
	JWT *iauth.JWTService

	Auth          *services.AuthService
	Users         *services.UserService
	Classes       *services.ClassService
	Announcements *services.AnnouncementService
	Events        *services.EventService
	Assignments   *services.AssignmentService
	Submissions   *services.SubmissionService

	TOTP      *mfa.TOTPService
	Hub       *realtime.Hub
	RateStore middleware.RateStore
}

// NewRouter builds the Gin engine, wires the middleware chain and registers
// every route.
func NewRouter(deps Deps) (*gin.Engine, error) {
	switch {
	case deps.DB == nil:
		return nil, fmt.Errorf("router: database handle must be provided")
	case deps.JWT == nil:
		return nil, fmt.Errorf("router: jwt service must be provided")
	case deps.Auth == nil:
		return nil, fmt.Errorf("router: auth service must be provided")
	case deps.Users == nil:
		return nil, fmt.Errorf("router: user service must be provided")
	case deps.Classes == nil:
		return nil, fmt.Errorf("router: class service must be provided")
	case deps.Announcements == nil:
		return nil, fmt.Errorf("router: announcement service must be provided")
	case deps.Events == nil:
		return nil, fmt.Errorf("router: event service must be provided")
	case deps.Assignments == nil:
		return nil, fmt.Errorf("router: assignment service must be provided")
	case deps.Submissions == nil:
		return nil, fmt.Errorf("router: submission service must be provided")
	}

	r := gin.New()

	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS())

	r.GET("/health", handlers.Health(deps.DB))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.NoRoute(middleware.NotFoundHandler)

	requireAuth := middleware.Auth(deps.JWT, deps.DB)

	api := r.Group("/api")
	api.Use(requireAuth)

	registerAuthRoutes(r, api, deps)
	registerResourceRoutes(api, deps)

	if deps.Hub != nil {
		api.GET("/realtime", handlers.Realtime(deps.Hub))
	}

	return r, nil
}

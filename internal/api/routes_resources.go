package api

import (
	"github.com/gin-gonic/gin"

	"github.com/black-bourne/educ-backend/internal/handlers"
	"github.com/black-bourne/educ-backend/internal/middleware"
	"github.com/black-bourne/educ-backend/internal/models"
)

func registerResourceRoutes(api *gin.RouterGroup, deps Deps) {
	teacherOnly := middleware.RequireRole(models.RoleTeacher)

	userHandler := handlers.NewUserHandler(deps.Users)
	users := api.Group("/users", teacherOnly)
	{
		users.POST("", userHandler.Create)
		users.GET("", userHandler.List)
		users.GET("/:id", userHandler.Get)
	}

	classHandler := handlers.NewClassHandler(deps.Classes)
	api.GET("/classes", teacherOnly, classHandler.List)

	announcementHandler := handlers.NewAnnouncementHandler(deps.Announcements)
	announcements := api.Group("/announcements")
	{
		announcements.GET("", announcementHandler.List)
		announcements.POST("", teacherOnly, announcementHandler.Create)
	}

	eventHandler := handlers.NewEventHandler(deps.Events)
	events := api.Group("/events")
	{
		events.GET("", eventHandler.List)
		events.POST("", teacherOnly, eventHandler.Create)
	}

	assignmentHandler := handlers.NewAssignmentHandler(deps.Assignments, deps.Submissions)
	assignments := api.Group("/assignments")
	{
		assignments.GET("", assignmentHandler.List)
		assignments.POST("", teacherOnly, assignmentHandler.Create)
		assignments.POST("/:id/submit", middleware.RequireRole(models.RoleStudent), assignmentHandler.Submit)
		assignments.GET("/:id/submissions", teacherOnly, assignmentHandler.ListSubmissions)
	}

	submissionHandler := handlers.NewSubmissionHandler(deps.Submissions)
	submissions := api.Group("/submissions")
	{
		submissions.POST("/:id/grade", teacherOnly, submissionHandler.Grade)
		submissions.GET("/:id/file", submissionHandler.Download)
	}
}

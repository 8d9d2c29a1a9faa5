package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/black-bourne/educ-backend/internal/middleware"
	"github.com/black-bourne/educ-backend/internal/services"
	"github.com/black-bourne/educ-backend/pkg/response"

	appErrors "github.com/black-bourne/educ-backend/pkg/errors"
)

// ClassHandler lists the classes a teacher works with.
type ClassHandler struct {
	classes *services.ClassService
}

func NewClassHandler(classes *services.ClassService) *ClassHandler {
	return &ClassHandler{classes: classes}
}

// GET /api/classes
func (h *ClassHandler) List(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthenticated)
		return
	}

	classes, err := h.classes.ListForTeacher(requestContext(c), user.ID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, classes)
}

package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/black-bourne/educ-backend/internal/middleware"
	"github.com/black-bourne/educ-backend/internal/services"
	"github.com/black-bourne/educ-backend/pkg/response"

	appErrors "github.com/black-bourne/educ-backend/pkg/errors"
)

// AnnouncementHandler lists and publishes announcements.
type AnnouncementHandler struct {
	announcements *services.AnnouncementService
}

func NewAnnouncementHandler(announcements *services.AnnouncementService) *AnnouncementHandler {
	return &AnnouncementHandler{announcements: announcements}
}

// GET /api/announcements
func (h *AnnouncementHandler) List(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthenticated)
		return
	}

	items, err := h.announcements.ListForUser(requestContext(c), user)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, items)
}

type createAnnouncementRequest struct {
	Title         string `json:"title" validate:"required,max=200"`
	Description   string `json:"description"`
	TargetRole    string `json:"target_role" validate:"omitempty,oneof=both teacher student"`
	SchoolClassID string `json:"school_class_id"`
}

// POST /api/announcements
func (h *AnnouncementHandler) Create(c *gin.Context) {
	var req createAnnouncementRequest
	if !bindAndValidate(c, &req) {
		return
	}

	input := services.CreateAnnouncementInput{
		Title:       req.Title,
		Description: req.Description,
		TargetRole:  req.TargetRole,
	}
	if classID := strings.TrimSpace(req.SchoolClassID); classID != "" {
		input.SchoolClassID = &classID
	}

	created, err := h.announcements.Create(requestContext(c), input)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, created)
}

package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/black-bourne/educ-backend/internal/middleware"
	"github.com/black-bourne/educ-backend/internal/services"
	"github.com/black-bourne/educ-backend/pkg/response"

	appErrors "github.com/black-bourne/educ-backend/pkg/errors"
)

// EventHandler lists and publishes calendar events.
type EventHandler struct {
	events *services.EventService
}

func NewEventHandler(events *services.EventService) *EventHandler {
	return &EventHandler{events: events}
}

// GET /api/events
func (h *EventHandler) List(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthenticated)
		return
	}

	items, err := h.events.ListForUser(requestContext(c), user)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, items)
}

type createEventRequest struct {
	Title         string    `json:"title" validate:"required,max=200"`
	Description   string    `json:"description"`
	Start         time.Time `json:"start" validate:"required"`
	End           time.Time `json:"end" validate:"required"`
	AllDay        bool      `json:"all_day"`
	SchoolClassID string    `json:"school_class_id"`
}

// POST /api/events
func (h *EventHandler) Create(c *gin.Context) {
	var req createEventRequest
	if !bindAndValidate(c, &req) {
		return
	}

	input := services.CreateEventInput{
		Title:       req.Title,
		Description: req.Description,
		Start:       req.Start,
		End:         req.End,
		AllDay:      req.AllDay,
	}
	if classID := strings.TrimSpace(req.SchoolClassID); classID != "" {
		input.SchoolClassID = &classID
	}

	created, err := h.events.Create(requestContext(c), input)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, created)
}

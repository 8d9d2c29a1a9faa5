package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/black-bourne/educ-backend/internal/middleware"
	"github.com/black-bourne/educ-backend/internal/services"
	"github.com/black-bourne/educ-backend/pkg/response"

	appErrors "github.com/black-bourne/educ-backend/pkg/errors"
)

// AssignmentHandler lists and creates assignments and accepts submissions.
type AssignmentHandler struct {
	assignments *services.AssignmentService
	submissions *services.SubmissionService
}

func NewAssignmentHandler(assignments *services.AssignmentService, submissions *services.SubmissionService) *AssignmentHandler {
	return &AssignmentHandler{assignments: assignments, submissions: submissions}
}

// GET /api/assignments
func (h *AssignmentHandler) List(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthenticated)
		return
	}

	items, err := h.assignments.ListForUser(requestContext(c), user)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, items)
}

type createAssignmentRequest struct {
	Subject     string    `json:"subject" validate:"required"`
	Title       string    `json:"title" validate:"required,max=200"`
	Description string    `json:"description"`
	Due         time.Time `json:"due" validate:"required"`
	ClassroomID string    `json:"classroom_id" validate:"required"`
}

// POST /api/assignments
func (h *AssignmentHandler) Create(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthenticated)
		return
	}

	var req createAssignmentRequest
	if !bindAndValidate(c, &req) {
		return
	}

	created, err := h.assignments.Create(requestContext(c), user, services.CreateAssignmentInput{
		Subject:     req.Subject,
		Title:       req.Title,
		Description: req.Description,
		Due:         req.Due,
		ClassroomID: req.ClassroomID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, created)
}

// POST /api/assignments/:id/submit
//
// Multipart upload; the PDF rides in the "file" field.
func (h *AssignmentHandler) Submit(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthenticated)
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.NewBadRequest("a file upload is required"))
		return
	}
	if header.Size > services.MaxSubmissionSize {
		response.Error(c, appErrors.NewBadRequest("file exceeds the 5MB limit"))
		return
	}

	file, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternalServer))
		return
	}
	defer file.Close()

	submission, err := h.submissions.Submit(requestContext(c), user, services.SubmitInput{
		AssignmentID: c.Param("id"),
		Filename:     header.Filename,
		Size:         header.Size,
		Content:      file,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, submission)
}

// GET /api/assignments/:id/submissions
func (h *AssignmentHandler) ListSubmissions(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthenticated)
		return
	}

	items, err := h.submissions.ListForAssignment(requestContext(c), user, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, items)
}

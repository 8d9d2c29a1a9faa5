package handlers

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/black-bourne/educ-backend/internal/middleware"
	"github.com/black-bourne/educ-backend/internal/services"
	"github.com/black-bourne/educ-backend/pkg/response"

	appErrors "github.com/black-bourne/educ-backend/pkg/errors"
)

// SubmissionHandler grades and serves stored submissions.
type SubmissionHandler struct {
	submissions *services.SubmissionService
}

func NewSubmissionHandler(submissions *services.SubmissionService) *SubmissionHandler {
	return &SubmissionHandler{submissions: submissions}
}

type gradeRequest struct {
	Score *int `json:"score" validate:"required,min=0,max=100"`
}

// POST /api/submissions/:id/grade
func (h *SubmissionHandler) Grade(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthenticated)
		return
	}

	var req gradeRequest
	if !bindAndValidate(c, &req) {
		return
	}

	graded, err := h.submissions.Grade(requestContext(c), user, services.GradeInput{
		SubmissionID: c.Param("id"),
		Score:        *req.Score,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, graded)
}

// GET /api/submissions/:id/file
func (h *SubmissionHandler) Download(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthenticated)
		return
	}

	reader, submission, err := h.submissions.OpenFile(requestContext(c), user, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer reader.Close()

	c.Header("Content-Type", "application/pdf")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "submission-"+submission.ID+".pdf"))
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, reader)
}

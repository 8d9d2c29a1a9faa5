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

// UserHandler provisions and lists accounts.
type UserHandler struct {
	users *services.UserService
}

func NewUserHandler(users *services.UserService) *UserHandler {
	return &UserHandler{users: users}
}

type createUserRequest struct {
	Email            string `json:"email" validate:"required,email"`
	FirstName        string `json:"first_name" validate:"max=100"`
	LastName         string `json:"last_name" validate:"max=100"`
	Role             string `json:"role" validate:"required,oneof=teacher student"`
	SchoolClassID    string `json:"school_class_id"`
	DateOfBirth      string `json:"date_of_birth"`
	EnrollmentNumber string `json:"enrollment_number" validate:"max=10"`
}

// POST /api/users
//
// The new account starts pending; a set-password link goes out by email.
func (h *UserHandler) Create(c *gin.Context) {
	actor, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthenticated)
		return
	}

	var req createUserRequest
	if !bindAndValidate(c, &req) {
		return
	}

	input := services.CreateUserInput{
		Email:            req.Email,
		FirstName:        strings.TrimSpace(req.FirstName),
		LastName:         strings.TrimSpace(req.LastName),
		Role:             req.Role,
		EnrollmentNumber: strings.TrimSpace(req.EnrollmentNumber),
	}
	if classID := strings.TrimSpace(req.SchoolClassID); classID != "" {
		input.SchoolClassID = &classID
	}
	if dob := strings.TrimSpace(req.DateOfBirth); dob != "" {
		parsed, err := time.Parse("2006-01-02", dob)
		if err != nil {
			response.Error(c, appErrors.NewBadRequest("date_of_birth must be YYYY-MM-DD"))
			return
		}
		input.DateOfBirth = &parsed
	}

	user, err := h.users.Create(requestContext(c), actor.ID, input)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, user)
}

// GET /api/users?role=teacher|student
func (h *UserHandler) List(c *gin.Context) {
	role := strings.TrimSpace(c.Query("role"))

	users, err := h.users.List(requestContext(c), role)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, users)
}

// GET /api/users/:id
func (h *UserHandler) Get(c *gin.Context) {
	user, err := h.users.Get(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, user)
}

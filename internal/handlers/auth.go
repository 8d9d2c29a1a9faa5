package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/black-bourne/educ-backend/internal/middleware"
	"github.com/black-bourne/educ-backend/internal/services"
	"github.com/black-bourne/educ-backend/pkg/response"

	appErrors "github.com/black-bourne/educ-backend/pkg/errors"
)

// AuthHandler exposes the two-stage login, code verification and password
// reset endpoints.
type AuthHandler struct {
	auth *services.AuthService
}

func NewAuthHandler(auth *services.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// POST /api/auth/login
//
// On success the caller receives a pre-auth token and a verification code by
// email; the session token only exists after /api/auth/verify-otp.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	token, err := h.auth.InitiateLogin(requestContext(c), services.LoginInput{
		Email:     req.Email,
		Password:  req.Password,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"token":   token,
		"message": "A verification code has been sent to your email",
	})
}

type verifyRequest struct {
	Token string `json:"token" validate:"required"`
	OTP   string `json:"otp" validate:"required,min=6,max=10"`
}

// POST /api/auth/verify-otp
//
// Exchanges the pre-auth token from login plus a verification code for a
// session token. Public: the pre-auth token rides in the body.
func (h *AuthHandler) Verify(c *gin.Context) {
	var req verifyRequest
	if !bindAndValidate(c, &req) {
		return
	}

	token, err := h.auth.VerifyCode(requestContext(c), req.Token, req.OTP, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"token": token})
}

type resetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// POST /api/auth/reset-email
//
// Always acknowledges, whether or not the address matches an account.
func (h *AuthHandler) RequestReset(c *gin.Context) {
	var req resetRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.auth.RequestPasswordReset(requestContext(c), req.Email, c.ClientIP(), c.Request.UserAgent()); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"message": "If the address matches an account, a reset link has been sent",
	})
}

type completeResetRequest struct {
	UID      string `json:"uidb64" validate:"required"`
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
}

// POST /api/auth/reset
func (h *AuthHandler) CompleteReset(c *gin.Context) {
	var req completeResetRequest
	if !bindAndValidate(c, &req) {
		return
	}

	err := h.auth.CompletePasswordReset(requestContext(c), req.UID, req.Token, req.Password, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "Password updated"})
}

// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthenticated)
		return
	}
	response.Success(c, http.StatusOK, user)
}

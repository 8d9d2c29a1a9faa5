package handlers

import (
	"encoding/base64"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/black-bourne/educ-backend/internal/auth/mfa"
	"github.com/black-bourne/educ-backend/internal/middleware"
	"github.com/black-bourne/educ-backend/pkg/response"

	appErrors "github.com/black-bourne/educ-backend/pkg/errors"
)

// MFAHandler manages authenticator-app enrollment on top of the mandatory
// emailed codes.
type MFAHandler struct {
	totp *mfa.TOTPService
}

func NewMFAHandler(totp *mfa.TOTPService) *MFAHandler {
	return &MFAHandler{totp: totp}
}

// POST /api/auth/mfa/enroll
//
// Starts (or restarts) enrollment. The secret only counts as a second factor
// once activated with a valid code.
func (h *MFAHandler) Enroll(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthenticated)
		return
	}

	key, backupCodes, err := h.totp.Enroll(user.ID, user.Email)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternalServer))
		return
	}

	png, err := h.totp.GenerateQRCode(key)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternalServer))
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"secret":       key.Secret(),
		"otpauth_url":  key.String(),
		"qr_code":      "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
		"backup_codes": backupCodes,
	})
}

type mfaActivateRequest struct {
	Code string `json:"code" validate:"required,len=6"`
}

// POST /api/auth/mfa/activate
func (h *MFAHandler) Activate(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthenticated)
		return
	}

	var req mfaActivateRequest
	if !bindAndValidate(c, &req) {
		return
	}

	activated, err := h.totp.Activate(user.ID, req.Code)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternalServer))
		return
	}
	if !activated {
		response.Error(c, appErrors.ErrInvalidOrExpiredCode)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "Authenticator activated"})
}

// GET /api/auth/mfa/status
func (h *MFAHandler) Status(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthenticated)
		return
	}

	enrolled, err := h.totp.Enrolled(user.ID)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternalServer))
		return
	}

	remaining := 0
	if enrolled {
		if remaining, err = h.totp.RemainingBackupCodes(user.ID); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrInternalServer))
			return
		}
	}

	response.Success(c, http.StatusOK, gin.H{
		"enrolled":               enrolled,
		"remaining_backup_codes": remaining,
	})
}

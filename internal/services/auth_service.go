package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	iauth "github.com/black-bourne/educ-backend/internal/auth"
	"github.com/black-bourne/educ-backend/internal/auth/mfa"
	"github.com/black-bourne/educ-backend/internal/models"
	"github.com/black-bourne/educ-backend/pkg/crypto"
	appErrors "github.com/black-bourne/educ-backend/pkg/errors"
	"github.com/black-bourne/educ-backend/pkg/logger"
	"github.com/black-bourne/educ-backend/pkg/mail"
	"github.com/black-bourne/educ-backend/pkg/metrics"
)

// Account lockout parameters. A run of failed password attempts locks the
// account for a cooling-off period; the counter resets on success.
const (
	maxFailedAttempts = 5
	lockoutDuration   = 15 * time.Minute
)

// LoginInput carries the credentials and request metadata for InitiateLogin.
type LoginInput struct {
	Email     string
	Password  string
	IPAddress string
	UserAgent string
}

// AuthServiceConfig wires the collaborators an AuthService needs.
type AuthServiceConfig struct {
	DB         *gorm.DB
	JWT        *iauth.JWTService
	OTP        *iauth.OTPService
	Reset      *iauth.PasswordResetService
	TOTP       *mfa.TOTPService // optional
	Dispatcher *mail.Dispatcher
	Audit      *AuditService
	Policy     iauth.PasswordPolicy
	// AppBaseURL is the public origin used when building links in emails.
	AppBaseURL string
}

// AuthService implements the two-stage login, code verification and the
// password reset flows.
type AuthService struct {
	db         *gorm.DB
	jwt        *iauth.JWTService
	otp        *iauth.OTPService
	reset      *iauth.PasswordResetService
	totp       *mfa.TOTPService
	dispatcher *mail.Dispatcher
	audit      *AuditService
	policy     iauth.PasswordPolicy
	baseURL    string
	now        func() time.Time
}

// NewAuthService validates the configuration and builds an AuthService.
func NewAuthService(cfg AuthServiceConfig) (*AuthService, error) {
	if cfg.DB == nil {
		return nil, errors.New("auth service: db is required")
	}
	if cfg.JWT == nil {
		return nil, errors.New("auth service: jwt service is required")
	}
	if cfg.OTP == nil {
		return nil, errors.New("auth service: otp service is required")
	}
	if cfg.Reset == nil {
		return nil, errors.New("auth service: reset service is required")
	}
	if cfg.Dispatcher == nil {
		return nil, errors.New("auth service: mail dispatcher is required")
	}

	policy := cfg.Policy
	if policy == nil {
		policy = iauth.NewDefaultPasswordPolicy()
	}

	return &AuthService{
		db:         cfg.DB,
		jwt:        cfg.JWT,
		otp:        cfg.OTP,
		reset:      cfg.Reset,
		totp:       cfg.TOTP,
		dispatcher: cfg.Dispatcher,
		audit:      cfg.Audit,
		policy:     policy,
		baseURL:    strings.TrimRight(cfg.AppBaseURL, "/"),
		now:        time.Now,
	}, nil
}

// InitiateLogin checks the credentials and, on success, emails a one-time
// code and returns a pre-auth token. The token cannot reach protected
// resources until the code is verified.
func (s *AuthService) InitiateLogin(ctx context.Context, input LoginInput) (string, error) {
	ctx = ensureContext(ctx)

	email := normaliseEmail(input.Email)
	if email == "" || input.Password == "" {
		return "", appErrors.ErrInvalidCredentials
	}

	var user models.User
	err := s.db.WithContext(ctx).Where("lower(email) = ?", email).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		s.auditLogin(ctx, nil, input, appErrors.ErrInvalidCredentials.Code)
		return "", appErrors.ErrInvalidCredentials
	}
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternalServer)
	}

	if user.LockedUntil != nil && s.now().Before(*user.LockedUntil) {
		s.auditLogin(ctx, &user, input, appErrors.ErrRateLimited.Code)
		return "", appErrors.ErrRateLimited
	}

	if !user.IsActive {
		s.auditLogin(ctx, &user, input, appErrors.ErrAccountDisabled.Code)
		return "", appErrors.ErrAccountDisabled
	}

	if user.Password == "" || !crypto.VerifyPassword(user.Password, input.Password) {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		s.recordFailedAttempt(ctx, &user)
		s.auditLogin(ctx, &user, input, appErrors.ErrInvalidCredentials.Code)
		return "", appErrors.ErrInvalidCredentials
	}

	code, err := s.otp.Issue(ctx, user.ID)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternalServer)
	}

	if err := s.dispatcher.Enqueue(mail.Message{
		To:      []string{user.Email},
		Subject: "Your verification code",
		Body: fmt.Sprintf(
			"Hello %s,\n\nYour verification code is %s. It expires in 5 minutes.\n",
			user.FullName(), code,
		),
	}); err != nil {
		// The code is unusable without the email, so fail the whole login.
		return "", appErrors.Wrap(err, appErrors.ErrDeliveryFailure)
	}

	token, err := s.jwt.GeneratePreAuthToken(&user)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternalServer)
	}

	metrics.AuthAttempts.WithLabelValues("success").Inc()
	s.auditEvent(ctx, &user.ID, AuditActionLogin, AuditResultSuccess, input.IPAddress, input.UserAgent, nil)

	return token, nil
}

// VerifyCode redeems the emailed code (or, for enrolled accounts, an
// authenticator or backup code) against the pre-auth token from login and
// returns a full session token.
func (s *AuthService) VerifyCode(ctx context.Context, rawToken, code string, ipAddress, userAgent string) (string, error) {
	ctx = ensureContext(ctx)

	claims, err := s.jwt.ValidateToken(rawToken)
	if err != nil || claims.UserID == "" {
		return "", appErrors.ErrInvalidToken
	}

	var user models.User
	err = s.db.WithContext(ctx).Take(&user, "id = ?", claims.UserID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", appErrors.ErrInvalidToken
	}
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternalServer)
	}

	if !user.IsActive {
		return "", appErrors.ErrAccountDisabled
	}

	ok, err := s.otp.Verify(ctx, user.ID, code)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternalServer)
	}

	if !ok && s.totp != nil && user.MFAEnabled {
		// Fall back to the authenticator app, then to a backup code. All
		// failures stay indistinguishable from a wrong emailed code.
		ok, err = s.totp.VerifyCode(user.ID, code)
		if err != nil && !errors.Is(err, mfa.ErrNotEnrolled) {
			return "", appErrors.Wrap(err, appErrors.ErrInternalServer)
		}
		if !ok {
			ok, err = s.totp.UseBackupCode(user.ID, code)
			if err != nil && !errors.Is(err, mfa.ErrNotEnrolled) {
				return "", appErrors.Wrap(err, appErrors.ErrInternalServer)
			}
		}
	}

	if !ok {
		metrics.OTPVerifications.WithLabelValues("failure").Inc()
		s.auditEvent(ctx, &user.ID, AuditActionVerifyCode, AuditResultFailure, ipAddress, userAgent, nil)
		return "", appErrors.ErrInvalidOrExpiredCode
	}

	now := s.now()
	updates := map[string]any{
		"failed_attempts": 0,
		"locked_until":    nil,
		"last_login_at":   &now,
		"last_login_ip":   strings.TrimSpace(ipAddress),
	}
	if err := s.db.WithContext(ctx).Model(&user).Updates(updates).Error; err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternalServer)
	}

	token, err := s.jwt.GenerateSessionToken(&user)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternalServer)
	}

	metrics.OTPVerifications.WithLabelValues("success").Inc()
	s.auditEvent(ctx, &user.ID, AuditActionVerifyCode, AuditResultSuccess, ipAddress, userAgent, nil)

	return token, nil
}

// RequestPasswordReset emails a reset link when the address matches an
// account. The response is identical either way, so the endpoint cannot be
// used to probe for registered addresses.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email, ipAddress, userAgent string) error {
	ctx = ensureContext(ctx)

	email = normaliseEmail(email)
	if email == "" {
		return nil
	}

	var user models.User
	err := s.db.WithContext(ctx).Where("lower(email) = ?", email).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternalServer)
	}

	token, err := s.reset.Issue(ctx, user.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternalServer)
	}

	link := fmt.Sprintf("%s/reset-password?uid=%s&token=%s",
		s.baseURL, iauth.EncodeUserID(user.ID), token)

	if err := s.dispatcher.Enqueue(mail.Message{
		To:      []string{user.Email},
		Subject: "Password reset",
		Body: fmt.Sprintf(
			"Hello %s,\n\nUse the link below to set a new password. It expires in 24 hours.\n\n%s\n",
			user.FullName(), link,
		),
	}); err != nil {
		// Surface enqueue failure: the caller got no email and should retry.
		return appErrors.Wrap(err, appErrors.ErrDeliveryFailure)
	}

	s.auditEvent(ctx, &user.ID, AuditActionResetRequest, AuditResultSuccess, ipAddress, userAgent, nil)
	return nil
}

// CompletePasswordReset redeems a reset proof and sets the new password.
// Pending accounts become active, which is how provisioned users claim their
// account.
func (s *AuthService) CompletePasswordReset(ctx context.Context, uidb64, token, password, ipAddress, userAgent string) error {
	ctx = ensureContext(ctx)

	userID, err := iauth.DecodeUserID(uidb64)
	if err != nil {
		return appErrors.ErrInvalidToken
	}

	if err := s.policy.Validate(password); err != nil {
		return appErrors.NewBadRequest(err.Error())
	}

	consumedID, err := s.reset.Consume(ctx, token)
	if err != nil {
		if errors.Is(err, iauth.ErrResetTokenInvalid) {
			return appErrors.ErrInvalidToken
		}
		return appErrors.Wrap(err, appErrors.ErrInternalServer)
	}
	if consumedID != userID {
		return appErrors.ErrInvalidToken
	}

	hashed, err := crypto.HashPassword(password)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternalServer)
	}

	updates := map[string]any{
		"password":        hashed,
		"is_active":       true,
		"failed_attempts": 0,
		"locked_until":    nil,
	}
	if err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Updates(updates).Error; err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternalServer)
	}

	s.auditEvent(ctx, &userID, AuditActionResetComplete, AuditResultSuccess, ipAddress, userAgent, nil)
	return nil
}

func (s *AuthService) recordFailedAttempt(ctx context.Context, user *models.User) {
	attempts := user.FailedAttempts + 1
	updates := map[string]any{"failed_attempts": attempts}

	if attempts >= maxFailedAttempts {
		lockedUntil := s.now().Add(lockoutDuration)
		updates["locked_until"] = &lockedUntil
		updates["failed_attempts"] = 0
	}

	if err := s.db.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
		logger.WithModule("auth").Warn("failed to record login attempt",
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
	}
}

func (s *AuthService) auditLogin(ctx context.Context, user *models.User, input LoginInput, code string) {
	var userID *string
	if user != nil {
		userID = &user.ID
	}
	s.auditEvent(ctx, userID, AuditActionLogin, AuditResultFailure, input.IPAddress, input.UserAgent, map[string]any{
		"error": code,
	})
}

func (s *AuthService) auditEvent(ctx context.Context, userID *string, action, result, ipAddress, userAgent string, details map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, AuditEntry{
		UserID:    userID,
		Action:    action,
		Result:    result,
		IPAddress: ipAddress,
		UserAgent: userAgent,
		Details:   details,
	}); err != nil {
		logger.WithModule("auth").Warn("audit write failed", zap.Error(err))
	}
}

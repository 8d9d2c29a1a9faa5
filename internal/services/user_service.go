package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	iauth "github.com/black-bourne/educ-backend/internal/auth"
	"github.com/black-bourne/educ-backend/internal/models"
	appErrors "github.com/black-bourne/educ-backend/pkg/errors"
	"github.com/black-bourne/educ-backend/pkg/mail"
)

// CreateUserInput carries the fields for provisioning a new account.
type CreateUserInput struct {
	Email            string
	FirstName        string
	LastName         string
	Role             string
	SchoolClassID    *string
	DateOfBirth      *time.Time
	EnrollmentNumber string
}

// UserService provisions and lists accounts. New accounts start pending:
// inactive and without a password, until the set-password link is redeemed.
type UserService struct {
	db         *gorm.DB
	reset      *iauth.PasswordResetService
	dispatcher *mail.Dispatcher
	audit      *AuditService
	baseURL    string
}

// NewUserService constructs a UserService.
func NewUserService(db *gorm.DB, reset *iauth.PasswordResetService, dispatcher *mail.Dispatcher, audit *AuditService, appBaseURL string) (*UserService, error) {
	if db == nil {
		return nil, errors.New("user service: db is required")
	}
	if reset == nil {
		return nil, errors.New("user service: reset service is required")
	}
	if dispatcher == nil {
		return nil, errors.New("user service: mail dispatcher is required")
	}
	return &UserService{
		db:         db,
		reset:      reset,
		dispatcher: dispatcher,
		audit:      audit,
		baseURL:    strings.TrimRight(appBaseURL, "/"),
	}, nil
}

// Create provisions a pending account and emails a set-password link. The
// link rides the password reset mechanism; redeeming it activates the account.
func (s *UserService) Create(ctx context.Context, actorID string, input CreateUserInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	email := normaliseEmail(input.Email)
	if email == "" {
		return nil, appErrors.NewBadRequest("email is required")
	}

	role := strings.TrimSpace(input.Role)
	if role != models.RoleTeacher && role != models.RoleStudent {
		return nil, appErrors.NewBadRequest("role must be teacher or student")
	}

	if err := s.validateClassAssignment(ctx, role, input.SchoolClassID); err != nil {
		return nil, err
	}

	var existing models.User
	err := s.db.WithContext(ctx).Where("lower(email) = ?", email).Take(&existing).Error
	if err == nil {
		return nil, appErrors.NewBadRequest("an account with this email already exists")
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternalServer)
	}

	user := models.User{
		Email:            email,
		FirstName:        strings.TrimSpace(input.FirstName),
		LastName:         strings.TrimSpace(input.LastName),
		Role:             role,
		SchoolClassID:    input.SchoolClassID,
		DateOfBirth:      input.DateOfBirth,
		EnrollmentNumber: strings.TrimSpace(input.EnrollmentNumber),
		IsActive:         false,
	}

	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternalServer)
	}

	token, err := s.reset.Issue(ctx, user.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternalServer)
	}

	link := fmt.Sprintf("%s/set-password?uid=%s&token=%s",
		s.baseURL, iauth.EncodeUserID(user.ID), token)

	if err := s.dispatcher.Enqueue(mail.Message{
		To:      []string{user.Email},
		Subject: "Your account is ready",
		Body: fmt.Sprintf(
			"Hello %s,\n\nAn account has been created for you. Set your password using the link below to activate it.\n\n%s\n",
			user.FullName(), link,
		),
	}); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrDeliveryFailure)
	}

	if s.audit != nil {
		_ = s.audit.Log(ctx, AuditEntry{
			UserID: &actorID,
			Action: AuditActionProvision,
			Result: AuditResultSuccess,
			Details: map[string]any{
				"created_user_id": user.ID,
				"role":            user.Role,
			},
		})
	}

	return &user, nil
}

// validateClassAssignment enforces the role/class invariants: students need
// an existing class, teachers must not carry one.
func (s *UserService) validateClassAssignment(ctx context.Context, role string, classID *string) error {
	switch role {
	case models.RoleStudent:
		if classID == nil || strings.TrimSpace(*classID) == "" {
			return appErrors.NewBadRequest("students require a school class")
		}
		var count int64
		if err := s.db.WithContext(ctx).Model(&models.SchoolClass{}).
			Where("id = ?", strings.TrimSpace(*classID)).
			Count(&count).Error; err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternalServer)
		}
		if count == 0 {
			return appErrors.NewBadRequest("school class does not exist")
		}
	case models.RoleTeacher:
		if classID != nil && strings.TrimSpace(*classID) != "" {
			return appErrors.NewBadRequest("teachers must not be assigned a class directly")
		}
	}
	return nil
}

// List returns accounts, optionally filtered by role.
func (s *UserService) List(ctx context.Context, role string) ([]models.User, error) {
	ctx = ensureContext(ctx)

	query := s.db.WithContext(ctx).Model(&models.User{}).Order("created_at DESC")
	if role = strings.TrimSpace(role); role != "" {
		query = query.Where("role = ?", role)
	}

	var users []models.User
	if err := query.Find(&users).Error; err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternalServer)
	}
	return users, nil
}

// Get loads a single account by id.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	ctx = ensureContext(ctx)

	var user models.User
	err := s.db.WithContext(ctx).Preload("SchoolClass").Take(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, appErrors.ErrNotFound
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternalServer)
	}
	return &user, nil
}

package services

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/black-bourne/educ-backend/internal/cache"
	"github.com/black-bourne/educ-backend/internal/models"
	appErrors "github.com/black-bourne/educ-backend/pkg/errors"
)

// AssignmentListTTL bounds how stale a cached assignment listing can get.
const AssignmentListTTL = 5 * time.Minute

// CreateAssignmentInput carries the fields for a new assignment.
type CreateAssignmentInput struct {
	Subject     string
	Title       string
	Description string
	Due         time.Time
	ClassroomID string
}

// AssignmentView is an assignment annotated with the calling student's
// submission state. For teachers the annotation fields stay empty.
type AssignmentView struct {
	models.Assignment
	SubmissionStatus string `json:"submission_status,omitempty"`
	SubmissionScore  *int   `json:"submission_score,omitempty"`
}

// AssignmentService lists and creates assignments.
type AssignmentService struct {
	db      *gorm.DB
	classes *ClassService
	cache   *listCache
}

// NewAssignmentService constructs an AssignmentService. The store is optional.
func NewAssignmentService(db *gorm.DB, classes *ClassService, store cache.Store) (*AssignmentService, error) {
	if db == nil {
		return nil, errors.New("assignment service: db is required")
	}
	if classes == nil {
		return nil, errors.New("assignment service: class service is required")
	}
	return &AssignmentService{
		db:      db,
		classes: classes,
		cache:   newListCache(store, "assignments", AssignmentListTTL),
	}, nil
}

// ListForUser returns the assignments relevant to the caller: teachers see
// their own, students see their class's annotated with submission state.
func (s *AssignmentService) ListForUser(ctx context.Context, user *models.User) ([]AssignmentView, error) {
	ctx = ensureContext(ctx)

	if user == nil {
		return nil, appErrors.ErrUnauthenticated
	}

	cacheKey := "user:" + user.ID
	var cached []AssignmentView
	if s.cache.GetJSON(ctx, cacheKey, &cached) {
		return cached, nil
	}

	var views []AssignmentView
	if user.IsTeacher() {
		var assignments []models.Assignment
		err := s.db.WithContext(ctx).
			Where("created_by_id = ?", user.ID).
			Order("due ASC").
			Find(&assignments).Error
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternalServer)
		}
		views = make([]AssignmentView, 0, len(assignments))
		for _, assignment := range assignments {
			views = append(views, AssignmentView{Assignment: assignment})
		}
	} else {
		if user.SchoolClassID == nil {
			views = []AssignmentView{}
		} else {
			var err error
			views, err = s.listForStudent(ctx, user.ID, *user.SchoolClassID)
			if err != nil {
				return nil, err
			}
		}
	}

	s.cache.SetJSON(ctx, cacheKey, views)
	return views, nil
}

func (s *AssignmentService) listForStudent(ctx context.Context, studentID, classID string) ([]AssignmentView, error) {
	var assignments []models.Assignment
	err := s.db.WithContext(ctx).
		Where("classroom_id = ?", classID).
		Order("due ASC").
		Find(&assignments).Error
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternalServer)
	}

	var submissions []models.Submission
	err = s.db.WithContext(ctx).
		Where("student_id = ?", studentID).
		Find(&submissions).Error
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternalServer)
	}

	byAssignment := make(map[string]models.Submission, len(submissions))
	for _, submission := range submissions {
		byAssignment[submission.AssignmentID] = submission
	}

	views := make([]AssignmentView, 0, len(assignments))
	for _, assignment := range assignments {
		view := AssignmentView{Assignment: assignment}
		if submission, ok := byAssignment[assignment.ID]; ok {
			view.SubmissionStatus = submission.Status
			view.SubmissionScore = submission.Score
		}
		views = append(views, view)
	}
	return views, nil
}

// Create stores a new assignment. The teacher must belong to the target
// class and be registered for the subject.
func (s *AssignmentService) Create(ctx context.Context, teacher *models.User, input CreateAssignmentInput) (*models.Assignment, error) {
	ctx = ensureContext(ctx)

	if teacher == nil || !teacher.IsTeacher() {
		return nil, appErrors.ErrForbidden
	}

	subject := strings.TrimSpace(input.Subject)
	if !models.ValidSubject(subject) {
		return nil, appErrors.NewBadRequest("unknown subject")
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, appErrors.NewBadRequest("title is required")
	}
	if input.Due.IsZero() {
		return nil, appErrors.NewBadRequest("due date is required")
	}

	classID := strings.TrimSpace(input.ClassroomID)
	if classID == "" {
		return nil, appErrors.NewBadRequest("classroom_id is required")
	}

	inClass, err := s.classes.TeacherInClass(ctx, teacher.ID, classID)
	if err != nil {
		return nil, err
	}
	if !inClass {
		return nil, appErrors.New("NOT_CLASS_TEACHER", "You do not teach this class", http.StatusForbidden)
	}

	teaches, err := s.classes.TeachesSubject(ctx, teacher.ID, subject)
	if err != nil {
		return nil, err
	}
	if !teaches {
		return nil, appErrors.New("NOT_SUBJECT_TEACHER", "You are not registered for this subject", http.StatusForbidden)
	}

	assignment := models.Assignment{
		Subject:     subject,
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		Due:         input.Due,
		Status:      models.AssignmentPending,
		CreatedByID: teacher.ID,
		ClassroomID: classID,
	}

	if err := s.db.WithContext(ctx).Create(&assignment).Error; err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternalServer)
	}

	s.cache.Invalidate(ctx)
	return &assignment, nil
}

// ForgetUserListing drops one user's cached assignment listing. Used after a
// submission so the student sees their new status immediately.
func (s *AssignmentService) ForgetUserListing(ctx context.Context, userID string) {
	s.cache.Forget(ensureContext(ctx), "user:"+userID)
}

// Get loads an assignment by id.
func (s *AssignmentService) Get(ctx context.Context, id string) (*models.Assignment, error) {
	ctx = ensureContext(ctx)

	var assignment models.Assignment
	err := s.db.WithContext(ctx).Take(&assignment, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, appErrors.ErrNotFound
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternalServer)
	}
	return &assignment, nil
}

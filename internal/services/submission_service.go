package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/black-bourne/educ-backend/internal/models"
	"github.com/black-bourne/educ-backend/internal/storage"
	appErrors "github.com/black-bourne/educ-backend/pkg/errors"
)

// Submission upload constraints: PDF only, capped size.
const (
	MaxSubmissionSize  = 5 << 20 // 5 MiB
	submissionCategory = "submissions"
)

var pdfMagic = []byte("%PDF-")

// SubmitInput carries an upload for an assignment.
type SubmitInput struct {
	AssignmentID string
	Filename     string
	Size         int64
	Content      io.Reader
}

// GradeInput carries a teacher's score for a submission.
type GradeInput struct {
	SubmissionID string
	Score        int
}

// SubmissionService handles uploads, listing and grading of submissions.
type SubmissionService struct {
	db          *gorm.DB
	classes     *ClassService
	assignments *AssignmentService
	files       storage.FileStore
	now         func() time.Time
}

// NewSubmissionService constructs a SubmissionService.
func NewSubmissionService(db *gorm.DB, classes *ClassService, assignments *AssignmentService, files storage.FileStore) (*SubmissionService, error) {
	if db == nil {
		return nil, errors.New("submission service: db is required")
	}
	if classes == nil {
		return nil, errors.New("submission service: class service is required")
	}
	if assignments == nil {
		return nil, errors.New("submission service: assignment service is required")
	}
	if files == nil {
		return nil, errors.New("submission service: file store is required")
	}
	return &SubmissionService{
		db:          db,
		classes:     classes,
		assignments: assignments,
		files:       files,
		now:         time.Now,
	}, nil
}

// Submit stores a student's PDF for an assignment. A student submits at most
// once per assignment; re-submitting replaces the stored file and resets any
// grade.
func (s *SubmissionService) Submit(ctx context.Context, student *models.User, input SubmitInput) (*models.Submission, error) {
	ctx = ensureContext(ctx)

	if student == nil || !student.IsStudent() {
		return nil, appErrors.ErrForbidden
	}

	assignment, err := s.assignments.Get(ctx, strings.TrimSpace(input.AssignmentID))
	if err != nil {
		return nil, err
	}

	enrolled, err := s.classes.StudentInClass(ctx, student.ID, assignment.ClassroomID)
	if err != nil {
		return nil, err
	}
	if !enrolled {
		return nil, appErrors.New("NOT_ENROLLED", "You are not enrolled in this assignment's class", http.StatusForbidden)
	}

	if input.Size > MaxSubmissionSize {
		return nil, appErrors.NewBadRequest("file exceeds the 5MB limit")
	}
	if !strings.HasSuffix(strings.ToLower(strings.TrimSpace(input.Filename)), ".pdf") {
		return nil, appErrors.NewBadRequest("only PDF files are accepted")
	}

	// Cap the read regardless of the declared size, and sniff the header so
	// a renamed file does not slip through.
	limited := io.LimitReader(input.Content, MaxSubmissionSize+1)
	head := make([]byte, len(pdfMagic))
	n, err := io.ReadFull(limited, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternalServer)
	}
	if n < len(pdfMagic) || !bytes.Equal(head, pdfMagic) {
		return nil, appErrors.NewBadRequest("only PDF files are accepted")
	}

	content := io.MultiReader(bytes.NewReader(head), limited)

	path, err := s.files.Save(ctx, submissionCategory, ".pdf", content)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternalServer)
	}

	info, err := s.files.Stat(ctx, path)
	if err == nil && info.Size > MaxSubmissionSize {
		_ = s.files.Delete(ctx, path)
		return nil, appErrors.NewBadRequest("file exceeds the 5MB limit")
	}

	var submission models.Submission
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("assignment_id = ? AND student_id = ?", assignment.ID, student.ID).
			Take(&submission).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			submission = models.Submission{
				AssignmentID: assignment.ID,
				StudentID:    student.ID,
				FilePath:     path,
				SubmittedAt:  s.now(),
				Status:       models.SubmissionSubmitted,
			}
			return tx.Create(&submission).Error
		}
		if err != nil {
			return err
		}

		oldPath := submission.FilePath
		submission.FilePath = path
		submission.SubmittedAt = s.now()
		submission.Status = models.SubmissionSubmitted
		submission.Score = nil
		if err := tx.Save(&submission).Error; err != nil {
			return err
		}
		if oldPath != "" && oldPath != path {
			_ = s.files.Delete(ctx, oldPath)
		}
		return nil
	})
	if err != nil {
		_ = s.files.Delete(ctx, path)
		return nil, appErrors.Wrap(err, appErrors.ErrInternalServer)
	}

	// The student's cached assignment listing now shows stale status.
	s.assignments.ForgetUserListing(ctx, student.ID)

	return &submission, nil
}

// ListForAssignment returns the submissions for one of the teacher's own
// assignments.
func (s *SubmissionService) ListForAssignment(ctx context.Context, teacher *models.User, assignmentID string) ([]models.Submission, error) {
	ctx = ensureContext(ctx)

	if teacher == nil || !teacher.IsTeacher() {
		return nil, appErrors.ErrForbidden
	}

	assignment, err := s.assignments.Get(ctx, strings.TrimSpace(assignmentID))
	if err != nil {
		return nil, err
	}
	if assignment.CreatedByID != teacher.ID {
		return nil, appErrors.ErrForbidden
	}

	var submissions []models.Submission
	err = s.db.WithContext(ctx).
		Preload("Student").
		Where("assignment_id = ?", assignment.ID).
		Order("submitted_at ASC").
		Find(&submissions).Error
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternalServer)
	}
	return submissions, nil
}

// Grade records a score on a submission to one of the teacher's assignments
// and marks it graded.
func (s *SubmissionService) Grade(ctx context.Context, teacher *models.User, input GradeInput) (*models.Submission, error) {
	ctx = ensureContext(ctx)

	if teacher == nil || !teacher.IsTeacher() {
		return nil, appErrors.ErrForbidden
	}
	if input.Score < 0 || input.Score > 100 {
		return nil, appErrors.NewBadRequest("score must be between 0 and 100")
	}

	var submission models.Submission
	err := s.db.WithContext(ctx).Take(&submission, "id = ?", strings.TrimSpace(input.SubmissionID)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, appErrors.ErrNotFound
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternalServer)
	}

	assignment, err := s.assignments.Get(ctx, submission.AssignmentID)
	if err != nil {
		return nil, err
	}
	if assignment.CreatedByID != teacher.ID {
		return nil, appErrors.ErrForbidden
	}

	score := input.Score
	submission.Score = &score
	submission.Status = models.SubmissionGraded
	if err := s.db.WithContext(ctx).Save(&submission).Error; err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternalServer)
	}

	// The student's cached listing carries the old score.
	s.assignments.ForgetUserListing(ctx, submission.StudentID)

	return &submission, nil
}

// OpenFile streams a stored submission for download. Teachers can open
// submissions to their own assignments; students only their own uploads.
func (s *SubmissionService) OpenFile(ctx context.Context, caller *models.User, submissionID string) (io.ReadCloser, *models.Submission, error) {
	ctx = ensureContext(ctx)

	if caller == nil {
		return nil, nil, appErrors.ErrUnauthenticated
	}

	var submission models.Submission
	err := s.db.WithContext(ctx).Take(&submission, "id = ?", strings.TrimSpace(submissionID)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, appErrors.ErrNotFound
	}
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternalServer)
	}

	switch {
	case caller.IsStudent():
		if submission.StudentID != caller.ID {
			return nil, nil, appErrors.ErrForbidden
		}
	case caller.IsTeacher():
		assignment, err := s.assignments.Get(ctx, submission.AssignmentID)
		if err != nil {
			return nil, nil, err
		}
		if assignment.CreatedByID != caller.ID {
			return nil, nil, appErrors.ErrForbidden
		}
	default:
		return nil, nil, appErrors.ErrForbidden
	}

	reader, err := s.files.Open(ctx, submission.FilePath)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternalServer)
	}
	return reader, &submission, nil
}

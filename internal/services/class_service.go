package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/black-bourne/educ-backend/internal/models"
	appErrors "github.com/black-bourne/educ-backend/pkg/errors"
)

// ClassService answers class membership questions for teachers and students.
type ClassService struct {
	db *gorm.DB
}

// NewClassService constructs a ClassService.
func NewClassService(db *gorm.DB) (*ClassService, error) {
	if db == nil {
		return nil, errors.New("class service: db is required")
	}
	return &ClassService{db: db}, nil
}

// ListForTeacher returns the classes the teacher teaches or supervises.
func (s *ClassService) ListForTeacher(ctx context.Context, teacherID string) ([]models.SchoolClass, error) {
	ctx = ensureContext(ctx)

	var classes []models.SchoolClass
	err := s.db.WithContext(ctx).
		Preload("Grade").
		Distinct("school_classes.*").
		Joins("LEFT JOIN class_teachers ct ON ct.school_class_id = school_classes.id").
		Where("ct.user_id = ? OR school_classes.supervisor_id = ?", teacherID, teacherID).
		Order("school_classes.name").
		Find(&classes).Error
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternalServer)
	}
	return classes, nil
}

// TeacherInClass reports whether the teacher teaches or supervises the class.
func (s *ClassService) TeacherInClass(ctx context.Context, teacherID, classID string) (bool, error) {
	ctx = ensureContext(ctx)

	var count int64
	err := s.db.WithContext(ctx).Model(&models.SchoolClass{}).
		Joins("LEFT JOIN class_teachers ct ON ct.school_class_id = school_classes.id").
		Where("school_classes.id = ?", classID).
		Where("ct.user_id = ? OR school_classes.supervisor_id = ?", teacherID, teacherID).
		Count(&count).Error
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternalServer)
	}
	return count > 0, nil
}

// TeachesSubject reports whether the teacher is registered for the subject.
func (s *ClassService) TeachesSubject(ctx context.Context, teacherID, subject string) (bool, error) {
	ctx = ensureContext(ctx)

	var count int64
	err := s.db.WithContext(ctx).Model(&models.TeacherSubject{}).
		Where("teacher_id = ? AND subject = ?", teacherID, subject).
		Count(&count).Error
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternalServer)
	}
	return count > 0, nil
}

// StudentInClass reports whether the student belongs to the class.
func (s *ClassService) StudentInClass(ctx context.Context, studentID, classID string) (bool, error) {
	ctx = ensureContext(ctx)

	var user models.User
	err := s.db.WithContext(ctx).Select("school_class_id").Take(&user, "id = ?", studentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternalServer)
	}
	return user.SchoolClassID != nil && *user.SchoolClassID == classID, nil
}

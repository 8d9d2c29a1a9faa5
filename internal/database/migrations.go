package database

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/black-bourne/educ-backend/internal/models"
)

// AutoMigrate creates or updates the schema for every model.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Grade{},
		&models.SchoolClass{},
		&models.Announcement{},
		&models.Event{},
		&models.TeacherSubject{},
		&models.Assignment{},
		&models.Submission{},
		&models.PasswordResetToken{},
		&models.MFASecret{},
		&models.AuditLog{},
		&models.CacheEntry{},
	)
}

// SeedData inserts the baseline records a fresh installation expects.
// It is idempotent: existing rows are left untouched.
func SeedData(db *gorm.DB) error {
	for level := 1; level <= 8; level++ {
		grade := models.Grade{Level: level}
		if err := db.Where(models.Grade{Level: level}).FirstOrCreate(&grade).Error; err != nil {
			return fmt.Errorf("seed grade %d: %w", level, err)
		}
	}
	return nil
}

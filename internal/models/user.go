package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role values assignable to a user account.
const (
	RoleTeacher = "teacher"
	RoleStudent = "student"
)

// User is an account that signs in by email. Accounts are provisioned by an
// administrator in a pending state (inactive, no usable password) and become
// active once the set-password link has been redeemed.
type User struct {
	ID       string `gorm:"primaryKey;type:uuid" json:"id"`
	Email    string `gorm:"uniqueIndex;not null" json:"email"`
	Password string `json:"-"`

	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`

	Role string `gorm:"not null;index;default:student" json:"role"`

	// SchoolClassID is set for students only; teachers relate to classes
	// through the teaching assignment tables.
	SchoolClassID    *string      `gorm:"type:uuid;index" json:"school_class_id"`
	SchoolClass      *SchoolClass `gorm:"foreignKey:SchoolClassID" json:"school_class,omitempty"`
	DateOfBirth      *time.Time   `json:"date_of_birth"`
	EnrollmentNumber string       `gorm:"size:10" json:"enrollment_number"`

	IsActive bool `gorm:"default:false" json:"is_active"`

	MFAEnabled bool       `gorm:"default:false" json:"mfa_enabled"`
	MFASecret  *MFASecret `gorm:"foreignKey:UserID" json:"-"`

	LastLoginAt *time.Time `json:"last_login_at"`
	LastLoginIP string     `json:"last_login_ip"`

	FailedAttempts int        `gorm:"default:0" json:"-"`
	LockedUntil    *time.Time `json:"-"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeCreate ensures a UUID is present before persisting.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// IsTeacher reports whether the account carries the teacher role.
func (u *User) IsTeacher() bool { return u.Role == RoleTeacher }

// IsStudent reports whether the account carries the student role.
func (u *User) IsStudent() bool { return u.Role == RoleStudent }

// FullName joins the first and last name for display purposes.
func (u *User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	default:
		return u.FirstName + " " + u.LastName
	}
}

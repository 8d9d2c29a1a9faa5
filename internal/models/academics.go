package models

import "time"

// Grade represents a school year level.
type Grade struct {
	BaseModel

	Level int `gorm:"uniqueIndex;not null" json:"level"`
}

// SchoolClass groups students under a grade with assigned teachers and an
// optional supervising teacher.
type SchoolClass struct {
	BaseModel

	Name     string `gorm:"uniqueIndex;not null;size:50" json:"name"`
	Capacity int    `gorm:"not null" json:"capacity"`

	GradeID string `gorm:"type:uuid;not null;index" json:"grade_id"`
	Grade   *Grade `gorm:"foreignKey:GradeID" json:"grade,omitempty"`

	SupervisorID *string `gorm:"type:uuid" json:"supervisor_id"`
	Supervisor   *User   `gorm:"foreignKey:SupervisorID" json:"supervisor,omitempty"`

	Teachers []User `gorm:"many2many:class_teachers;" json:"teachers,omitempty"`
	Students []User `gorm:"many2many:class_students;" json:"students,omitempty"`
}

// Announcement audiences.
const (
	TargetBoth    = "both"
	TargetTeacher = "teacher"
	TargetStudent = "student"
)

// Announcement is a school-wide or class-scoped notice.
type Announcement struct {
	BaseModel

	Title       string `gorm:"not null;size:200;index" json:"title"`
	Description string `gorm:"type:text" json:"description"`
	TargetRole  string `gorm:"not null;default:both" json:"target_role"`

	SchoolClassID *string      `gorm:"type:uuid;index" json:"school_class_id"`
	SchoolClass   *SchoolClass `gorm:"foreignKey:SchoolClassID" json:"school_class,omitempty"`
}

// Event is a calendar entry, optionally scoped to a class.
type Event struct {
	BaseModel

	Title       string    `gorm:"not null;size:200;index" json:"title"`
	Description string    `gorm:"type:text" json:"description"`
	Start       time.Time `gorm:"not null;index" json:"start"`
	End         time.Time `gorm:"not null" json:"end"`
	AllDay      bool      `gorm:"default:false" json:"all_day"`

	SchoolClassID *string      `gorm:"type:uuid;index" json:"school_class_id"`
	SchoolClass   *SchoolClass `gorm:"foreignKey:SchoolClassID" json:"school_class,omitempty"`
}

// Subjects offered by the school.
const (
	SubjectMathematics   = "mathematics"
	SubjectEnglish       = "english"
	SubjectKiswahili     = "kiswahili"
	SubjectScience       = "science"
	SubjectSocialStudies = "social_studies"
	SubjectCRE           = "cre"
)

// Subjects lists every valid subject value.
var Subjects = []string{
	SubjectMathematics,
	SubjectEnglish,
	SubjectKiswahili,
	SubjectScience,
	SubjectSocialStudies,
	SubjectCRE,
}

// ValidSubject reports whether the supplied value is a known subject.
func ValidSubject(subject string) bool {
	for _, s := range Subjects {
		if s == subject {
			return true
		}
	}
	return false
}

// TeacherSubject registers a teacher for a subject. A teacher may only create
// assignments for subjects they are registered to teach.
type TeacherSubject struct {
	BaseModel

	TeacherID string `gorm:"type:uuid;not null;uniqueIndex:idx_teacher_subject" json:"teacher_id"`
	Teacher   *User  `gorm:"foreignKey:TeacherID" json:"teacher,omitempty"`
	Subject   string `gorm:"not null;size:20;uniqueIndex:idx_teacher_subject" json:"subject"`
}

// Assignment statuses.
const (
	AssignmentPending   = "pending"
	AssignmentCompleted = "completed"
)

// Assignment is coursework set by a teacher for a class.
type Assignment struct {
	BaseModel

	Subject     string    `gorm:"not null;size:20;index" json:"subject"`
	Title       string    `gorm:"not null;size:200;index" json:"title"`
	Description string    `gorm:"type:text" json:"description"`
	Due         time.Time `gorm:"not null;index" json:"due"`
	Status      string    `gorm:"not null;default:pending;index" json:"status"`

	CreatedByID string `gorm:"type:uuid;not null;index" json:"created_by_id"`
	CreatedBy   *User  `gorm:"foreignKey:CreatedByID" json:"created_by,omitempty"`

	ClassroomID string       `gorm:"type:uuid;not null;index" json:"classroom_id"`
	Classroom   *SchoolClass `gorm:"foreignKey:ClassroomID" json:"classroom,omitempty"`

	Submissions []Submission `gorm:"foreignKey:AssignmentID" json:"submissions,omitempty"`
}

// Submission statuses.
const (
	SubmissionSubmitted = "submitted"
	SubmissionGraded    = "graded"
)

// Submission records a student's uploaded answer to an assignment. At most one
// submission exists per (assignment, student); re-submitting replaces the file.
type Submission struct {
	BaseModel

	AssignmentID string      `gorm:"type:uuid;not null;uniqueIndex:idx_assignment_student" json:"assignment_id"`
	Assignment   *Assignment `gorm:"foreignKey:AssignmentID" json:"assignment,omitempty"`

	StudentID string `gorm:"type:uuid;not null;uniqueIndex:idx_assignment_student" json:"student_id"`
	Student   *User  `gorm:"foreignKey:StudentID" json:"student,omitempty"`

	FilePath    string    `gorm:"not null" json:"file_path"`
	SubmittedAt time.Time `gorm:"index" json:"submitted_at"`
	Status      string    `gorm:"not null;default:submitted" json:"status"`
	Score       *int      `json:"score"`
}

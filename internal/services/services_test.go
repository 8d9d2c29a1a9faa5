package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	iauth "github.com/black-bourne/educ-backend/internal/auth"
	"github.com/black-bourne/educ-backend/internal/cache"
	"github.com/black-bourne/educ-backend/internal/database/testutil"
	"github.com/black-bourne/educ-backend/internal/models"
	"github.com/black-bourne/educ-backend/pkg/crypto"
	"github.com/black-bourne/educ-backend/pkg/mail"
)

// recorderMailer captures delivered messages for assertions.
type recorderMailer struct {
	mu       sync.Mutex
	messages []mail.Message
}

func (m *recorderMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

func (m *recorderMailer) sent() []mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]mail.Message, len(m.messages))
	copy(out, m.messages)
	return out
}

func (m *recorderMailer) waitFor(t *testing.T, count int) []mail.Message {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if msgs := m.sent(); len(msgs) >= count {
			return msgs
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d delivered messages, got %d", count, len(m.sent()))
	return nil
}

type authFixture struct {
	db         *gorm.DB
	store      cache.Store
	jwt        *iauth.JWTService
	otp        *iauth.OTPService
	reset      *iauth.PasswordResetService
	mailer     *recorderMailer
	dispatcher *mail.Dispatcher
	audit      *AuditService
	auth       *AuthService
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	store := cache.NewDatabaseStore(db)

	jwt, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "test-secret", Issuer: "educ"})
	require.NoError(t, err)

	otp, err := iauth.NewOTPService(store, 0)
	require.NoError(t, err)

	reset, err := iauth.NewPasswordResetService(db, 0)
	require.NoError(t, err)

	mailer := &recorderMailer{}
	dispatcher, err := mail.NewDispatcher(mailer, mail.DispatcherConfig{Workers: 1, QueueSize: 8})
	require.NoError(t, err)
	t.Cleanup(dispatcher.Stop)

	audit, err := NewAuditService(db)
	require.NoError(t, err)

	auth, err := NewAuthService(AuthServiceConfig{
		DB:         db,
		JWT:        jwt,
		OTP:        otp,
		Reset:      reset,
		Dispatcher: dispatcher,
		Audit:      audit,
		AppBaseURL: "https://school.example.com",
	})
	require.NoError(t, err)

	return &authFixture{
		db:         db,
		store:      store,
		jwt:        jwt,
		otp:        otp,
		reset:      reset,
		mailer:     mailer,
		dispatcher: dispatcher,
		audit:      audit,
		auth:       auth,
	}
}

func (f *authFixture) createUser(t *testing.T, email, password, role string, active bool) *models.User {
	t.Helper()

	user := &models.User{Email: email, Role: role, IsActive: active}
	if password != "" {
		hashed, err := crypto.HashPassword(password)
		require.NoError(t, err)
		user.Password = hashed
	}
	require.NoError(t, f.db.Create(user).Error)
	return user
}

func createClass(t *testing.T, db *gorm.DB, name string) *models.SchoolClass {
	t.Helper()

	var grade models.Grade
	require.NoError(t, db.Where(models.Grade{Level: 1}).FirstOrCreate(&grade).Error)

	class := &models.SchoolClass{Name: name, Capacity: 30, GradeID: grade.ID}
	require.NoError(t, db.Create(class).Error)
	return class
}

func addTeacherToClass(t *testing.T, db *gorm.DB, teacher *models.User, class *models.SchoolClass) {
	t.Helper()
	require.NoError(t, db.Model(class).Association("Teachers").Append(teacher))
}

func enrollStudent(t *testing.T, db *gorm.DB, student *models.User, class *models.SchoolClass) {
	t.Helper()
	require.NoError(t, db.Model(student).Update("school_class_id", class.ID).Error)
	require.NoError(t, db.Model(class).Association("Students").Append(student))
	student.SchoolClassID = &class.ID
}

func registerSubject(t *testing.T, db *gorm.DB, teacher *models.User, subject string) {
	t.Helper()
	require.NoError(t, db.Create(&models.TeacherSubject{TeacherID: teacher.ID, Subject: subject}).Error)
}

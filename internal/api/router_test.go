package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	iauth "github.com/black-bourne/educ-backend/internal/auth"
	"github.com/black-bourne/educ-backend/internal/cache"
	"github.com/black-bourne/educ-backend/internal/database/testutil"
	"github.com/black-bourne/educ-backend/internal/middleware"
	"github.com/black-bourne/educ-backend/internal/models"
	"github.com/black-bourne/educ-backend/internal/realtime"
	"github.com/black-bourne/educ-backend/internal/services"
	"github.com/black-bourne/educ-backend/internal/storage"
	"github.com/black-bourne/educ-backend/pkg/crypto"
	"github.com/black-bourne/educ-backend/pkg/mail"
)

type capturingMailer struct {
	mu   sync.Mutex
	msgs []mail.Message
}

func (m *capturingMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = append(m.msgs, msg)
	return nil
}

func (m *capturingMailer) waitFor(t *testing.T, count int) []mail.Message {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		m.mu.Lock()
		if len(m.msgs) >= count {
			out := append([]mail.Message(nil), m.msgs...)
			m.mu.Unlock()
			return out
		}
		m.mu.Unlock()
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d mail messages", count)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type apiStack struct {
	db     *gorm.DB
	router *gin.Engine
	mailer *capturingMailer
}

func newAPIStack(t *testing.T) *apiStack {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	store := cache.NewDatabaseStore(db)

	jwtService, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "router-test-secret", Issuer: "educ"})
	require.NoError(t, err)
	otpService, err := iauth.NewOTPService(store, 0)
	require.NoError(t, err)
	resetService, err := iauth.NewPasswordResetService(db, 0)
	require.NoError(t, err)

	mailer := &capturingMailer{}
	dispatcher, err := mail.NewDispatcher(mailer, mail.DispatcherConfig{Workers: 1, QueueSize: 8})
	require.NoError(t, err)
	t.Cleanup(dispatcher.Stop)

	auditService, err := services.NewAuditService(db)
	require.NoError(t, err)

	authService, err := services.NewAuthService(services.AuthServiceConfig{
		DB:         db,
		JWT:        jwtService,
		OTP:        otpService,
		Reset:      resetService,
		Dispatcher: dispatcher,
		Audit:      auditService,
		Policy:     iauth.NewDefaultPasswordPolicy(),
		AppBaseURL: "http://app.test",
	})
	require.NoError(t, err)

	userService, err := services.NewUserService(db, resetService, dispatcher, auditService, "http://app.test")
	require.NoError(t, err)
	classService, err := services.NewClassService(db)
	require.NoError(t, err)

	hub := realtime.NewHub()
	announcementService, err := services.NewAnnouncementService(db, classService, store, hub)
	require.NoError(t, err)
	eventService, err := services.NewEventService(db, classService, store, hub)
	require.NoError(t, err)
	assignmentService, err := services.NewAssignmentService(db, classService, store)
	require.NoError(t, err)

	files, err := storage.NewFilesystemStore(t.TempDir())
	require.NoError(t, err)
	submissionService, err := services.NewSubmissionService(db, classService, assignmentService, files)
	require.NoError(t, err)

	router, err := NewRouter(Deps{
		DB:            db,
		JWT:           jwtService,
		Auth:          authService,
		Users:         userService,
		Classes:       classService,
		Announcements: announcementService,
		Events:        eventService,
		Assignments:   assignmentService,
		Submissions:   submissionService,
		Hub:           hub,
		RateStore:     middleware.NewCacheRateStore(store),
	})
	require.NoError(t, err)

	return &apiStack{db: db, router: router, mailer: mailer}
}

func (s *apiStack) createUser(t *testing.T, email, password, role string) *models.User {
	t.Helper()
	hashed, err := crypto.HashPassword(password)
	require.NoError(t, err)
	user := &models.User{Email: email, Password: hashed, Role: role, IsActive: true}
	require.NoError(t, s.db.Create(user).Error)
	return user
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (s *apiStack) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var payload *bytes.Buffer
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		payload = bytes.NewBuffer(raw)
	} else {
		payload = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, payload)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

var mailCodePattern = regexp.MustCompile(`[0-9A-F]{6}`)

func TestLoginVerifyFlow(t *testing.T) {
	s := newAPIStack(t)
	s.createUser(t, "teacher@school.test", "sup3rsecret", models.RoleTeacher)

	// Stage one: password login issues a pre-auth token and an emailed code.
	w, env := s.do(t, http.MethodPost, "/api/auth/login", "", gin.H{
		"email":    "teacher@school.test",
		"password": "sup3rsecret",
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, env.Success)

	var loginData struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &loginData))
	require.NotEmpty(t, loginData.Token)

	msgs := s.mailer.waitFor(t, 1)
	code := mailCodePattern.FindString(msgs[0].Body)
	require.NotEmpty(t, code)

	// The pre-auth token cannot reach protected resources.
	w, env = s.do(t, http.MethodGet, "/api/announcements", loginData.Token, nil)
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, "TWO_FACTOR_REQUIRED", env.Error.Code)

	// Stage two: the emailed code upgrades to a session token.
	w, env = s.do(t, http.MethodPost, "/api/auth/verify-otp", "", gin.H{"token": loginData.Token, "otp": code})
	require.Equal(t, http.StatusOK, w.Code)

	var verifyData struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &verifyData))
	require.NotEmpty(t, verifyData.Token)

	w, env = s.do(t, http.MethodGet, "/api/auth/me", verifyData.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var me models.User
	require.NoError(t, json.Unmarshal(env.Data, &me))
	require.Equal(t, "teacher@school.test", me.Email)

	// Codes are single use.
	w, env = s.do(t, http.MethodPost, "/api/auth/verify-otp", "", gin.H{"token": loginData.Token, "otp": code})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "INVALID_OR_EXPIRED_CODE", env.Error.Code)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	s := newAPIStack(t)
	s.createUser(t, "teacher@school.test", "sup3rsecret", models.RoleTeacher)

	w, env := s.do(t, http.MethodPost, "/api/auth/login", "", gin.H{
		"email":    "teacher@school.test",
		"password": "wrong-password",
	})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "INVALID_CREDENTIALS", env.Error.Code)
}

func TestLoginRateLimited(t *testing.T) {
	s := newAPIStack(t)

	body := gin.H{"email": "nobody@school.test", "password": "whatever1"}
	for i := 0; i < 5; i++ {
		w, _ := s.do(t, http.MethodPost, "/api/auth/login", "", body)
		require.Equal(t, http.StatusUnauthorized, w.Code)
	}

	w, env := s.do(t, http.MethodPost, "/api/auth/login", "", body)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, "RATE_LIMITED", env.Error.Code)
	require.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	s := newAPIStack(t)

	for _, path := range []string{"/api/announcements", "/api/events", "/api/assignments", "/api/auth/me"} {
		w, env := s.do(t, http.MethodGet, path, "", nil)
		require.Equal(t, http.StatusUnauthorized, w.Code, path)
		require.Equal(t, "UNAUTHENTICATED", env.Error.Code, path)
	}
}

func TestRoleEnforcementOnResources(t *testing.T) {
	s := newAPIStack(t)

	student := s.createUser(t, "student@school.test", "sup3rsecret", models.RoleStudent)
	token := s.sessionToken(t, student)

	// Students cannot publish announcements or provision users.
	w, env := s.do(t, http.MethodPost, "/api/announcements", token, gin.H{"title": "nope"})
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, "FORBIDDEN", env.Error.Code)

	w, _ = s.do(t, http.MethodGet, "/api/users", token, nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	// Reading announcements is fine.
	w, _ = s.do(t, http.MethodGet, "/api/announcements", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestPasswordResetFlow(t *testing.T) {
	s := newAPIStack(t)
	s.createUser(t, "teacher@school.test", "oldpassword1", models.RoleTeacher)

	w, _ := s.do(t, http.MethodPost, "/api/auth/reset-email", "", gin.H{"email": "teacher@school.test"})
	require.Equal(t, http.StatusOK, w.Code)

	msgs := s.mailer.waitFor(t, 1)
	link := regexp.MustCompile(`uid=([^&\s]+)&token=([^&\s]+)`).FindStringSubmatch(msgs[0].Body)
	require.Len(t, link, 3)

	w, _ = s.do(t, http.MethodPost, "/api/auth/reset", "", gin.H{
		"uidb64":   link[1],
		"token":    link[2],
		"password": "brandnewpw1",
	})
	require.Equal(t, http.StatusOK, w.Code)

	// Old password no longer works; new one does.
	w, _ = s.do(t, http.MethodPost, "/api/auth/login", "", gin.H{
		"email": "teacher@school.test", "password": "oldpassword1",
	})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = s.do(t, http.MethodPost, "/api/auth/login", "", gin.H{
		"email": "teacher@school.test", "password": "brandnewpw1",
	})
	require.Equal(t, http.StatusOK, w.Code)
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	s := newAPIStack(t)

	w, env := s.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, env.Success)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "educ_")
}

func TestUnknownRouteEnvelope(t *testing.T) {
	s := newAPIStack(t)

	w, env := s.do(t, http.MethodGet, "/api/does-not-exist", "", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.False(t, env.Success)
	require.NotNil(t, env.Error)
	require.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestAssignmentSubmissionFlow(t *testing.T) {
	s := newAPIStack(t)

	teacher := s.createUser(t, "teacher@school.test", "sup3rsecret", models.RoleTeacher)
	student := s.createUser(t, "student@school.test", "sup3rsecret", models.RoleStudent)

	var grade models.Grade
	require.NoError(t, s.db.Where(models.Grade{Level: 1}).FirstOrCreate(&grade).Error)
	class := &models.SchoolClass{Name: "8A", Capacity: 30, GradeID: grade.ID}
	require.NoError(t, s.db.Create(class).Error)
	require.NoError(t, s.db.Model(class).Association("Teachers").Append(teacher))
	require.NoError(t, s.db.Model(student).Update("school_class_id", class.ID).Error)
	require.NoError(t, s.db.Model(class).Association("Students").Append(student))
	require.NoError(t, s.db.Create(&models.TeacherSubject{TeacherID: teacher.ID, Subject: models.SubjectMathematics}).Error)

	teacherToken := s.sessionToken(t, teacher)
	studentToken := s.sessionToken(t, student)

	w, env := s.do(t, http.MethodPost, "/api/assignments", teacherToken, gin.H{
		"subject":      models.SubjectMathematics,
		"title":        "long division",
		"due":          time.Now().Add(48 * time.Hour).Format(time.RFC3339),
		"classroom_id": class.ID,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var assignment models.Assignment
	require.NoError(t, json.Unmarshal(env.Data, &assignment))

	// Student uploads a PDF.
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", "homework.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.4\nanswers"))
	require.NoError(t, err)
	require.NoError(t, form.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/assignments/"+assignment.ID+"/submit", &buf)
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+studentToken)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var submitEnv envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &submitEnv))
	var submission models.Submission
	require.NoError(t, json.Unmarshal(submitEnv.Data, &submission))

	// Teacher sees the submission and grades it.
	w, env = s.do(t, http.MethodGet, "/api/assignments/"+assignment.ID+"/submissions", teacherToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listed []models.Submission
	require.NoError(t, json.Unmarshal(env.Data, &listed))
	require.Len(t, listed, 1)

	w, env = s.do(t, http.MethodPost, "/api/submissions/"+submission.ID+"/grade", teacherToken, gin.H{"score": 88})
	require.Equal(t, http.StatusOK, w.Code)
	var graded models.Submission
	require.NoError(t, json.Unmarshal(env.Data, &graded))
	require.Equal(t, models.SubmissionGraded, graded.Status)
	require.NotNil(t, graded.Score)
	require.Equal(t, 88, *graded.Score)

	// Student downloads their own file.
	req = httptest.NewRequest(http.MethodGet, "/api/submissions/"+submission.ID+"/file", nil)
	req.Header.Set("Authorization", "Bearer "+studentToken)
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	require.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF-")))
}

// sessionToken completes the full two-stage flow for the user and returns a
// session token.
func (s *apiStack) sessionToken(t *testing.T, user *models.User) string {
	t.Helper()

	before := len(s.mailer.waitFor(t, 0))
	w, env := s.do(t, http.MethodPost, "/api/auth/login", "", gin.H{
		"email":    user.Email,
		"password": "sup3rsecret",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var loginData struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &loginData))

	msgs := s.mailer.waitFor(t, before+1)
	code := mailCodePattern.FindString(msgs[len(msgs)-1].Body)
	require.NotEmpty(t, code)

	w, env = s.do(t, http.MethodPost, "/api/auth/verify-otp", "", gin.H{"token": loginData.Token, "otp": code})
	require.Equal(t, http.StatusOK, w.Code)

	var verifyData struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &verifyData))
	return verifyData.Token
}

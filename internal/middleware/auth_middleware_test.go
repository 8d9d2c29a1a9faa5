package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	iauth "github.com/black-bourne/educ-backend/internal/auth"
	"github.com/black-bourne/educ-backend/internal/database/testutil"
	"github.com/black-bourne/educ-backend/internal/models"
)

func newAuthTestStack(t *testing.T) (*gorm.DB, *iauth.JWTService) {
	t.Helper()

	gin.SetMode(gin.TestMode)
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())

	jwt, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "test-secret"})
	require.NoError(t, err)

	return db, jwt
}

func createActiveUser(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()

	user := &models.User{Email: email, Role: models.RoleStudent, IsActive: true}
	require.NoError(t, db.Create(user).Error)
	return user
}

func serveProtected(db *gorm.DB, jwt *iauth.JWTService, token string) *httptest.ResponseRecorder {
	r := gin.New()
	r.GET("/protected", Auth(jwt, db), func(c *gin.Context) {
		user, _ := CurrentUser(c)
		c.String(http.StatusOK, user.Email)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestAuthAcceptsSessionToken(t *testing.T) {
	db, jwt := newAuthTestStack(t)
	user := createActiveUser(t, db, "ok@example.com")

	token, err := jwt.GenerateSessionToken(user)
	require.NoError(t, err)

	w := serveProtected(db, jwt, token)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "ok@example.com")
}

func TestAuthRejectsMissingHeader(t *testing.T) {
	db, jwt := newAuthTestStack(t)

	w := serveProtected(db, jwt, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthRejectsMalformedToken(t *testing.T) {
	db, jwt := newAuthTestStack(t)

	w := serveProtected(db, jwt, "not-a-token")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))
}

func TestAuthRejectsPreAuthToken(t *testing.T) {
	db, jwt := newAuthTestStack(t)
	user := createActiveUser(t, db, "pending@example.com")

	token, err := jwt.GeneratePreAuthToken(user)
	require.NoError(t, err)

	w := serveProtected(db, jwt, token)
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Contains(t, w.Body.String(), "TWO_FACTOR_REQUIRED")
}

func TestAuthRejectsExpiredToken(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())

	current := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	jwt, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret: "test-secret",
		Clock:  func() time.Time { return current },
	})
	require.NoError(t, err)

	user := createActiveUser(t, db, "late@example.com")
	token, err := jwt.GenerateSessionToken(user)
	require.NoError(t, err)

	current = current.Add(25 * time.Hour)

	w := serveProtected(db, jwt, token)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthRejectsUnknownUser(t *testing.T) {
	db, jwt := newAuthTestStack(t)

	ghost := &models.User{ID: "8b9ad2ac-3a41-4bb0-bd65-f9ed66b47b2e", Email: "ghost@example.com", Role: models.RoleStudent}
	token, err := jwt.GenerateSessionToken(ghost)
	require.NoError(t, err)

	w := serveProtected(db, jwt, token)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthRejectsInactiveUser(t *testing.T) {
	db, jwt := newAuthTestStack(t)

	user := &models.User{Email: "inactive@example.com", Role: models.RoleStudent, IsActive: false}
	require.NoError(t, db.Create(user).Error)

	token, err := jwt.GenerateSessionToken(user)
	require.NoError(t, err)

	w := serveProtected(db, jwt, token)
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Contains(t, w.Body.String(), "ACCOUNT_DISABLED")
}

func TestCurrentClaimsExposedToHandlers(t *testing.T) {
	db, jwt := newAuthTestStack(t)

	user := createActiveUser(t, db, "claims@example.com")
	token, err := jwt.GenerateSessionToken(user)
	require.NoError(t, err)

	r := gin.New()
	r.GET("/whoami", Auth(jwt, db), func(c *gin.Context) {
		claims, ok := CurrentClaims(c)
		require.True(t, ok)
		c.String(http.StatusOK, claims.UserID)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, user.ID, w.Body.String())
}

func TestRequireRole(t *testing.T) {
	db, jwt := newAuthTestStack(t)

	teacher := &models.User{Email: "t@example.com", Role: models.RoleTeacher, IsActive: true}
	require.NoError(t, db.Create(teacher).Error)

	r := gin.New()
	r.POST("/classes", Auth(jwt, db), RequireRole(models.RoleTeacher), func(c *gin.Context) {
		c.String(http.StatusOK, "created")
	})

	student := createActiveUser(t, db, "s@example.com")

	teacherToken, err := jwt.GenerateSessionToken(teacher)
	require.NoError(t, err)
	studentToken, err := jwt.GenerateSessionToken(student)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/classes", nil)
	req.Header.Set("Authorization", "Bearer "+teacherToken)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/classes", nil)
	req.Header.Set("Authorization", "Bearer "+studentToken)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusForbidden, w.Code)
}

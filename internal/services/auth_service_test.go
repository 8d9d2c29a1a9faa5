package services

import (
	"context"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	iauth "github.com/black-bourne/educ-backend/internal/auth"
	"github.com/black-bourne/educ-backend/internal/models"
	"github.com/black-bourne/educ-backend/pkg/crypto"
	appErrors "github.com/black-bourne/educ-backend/pkg/errors"
)

var otpPattern = regexp.MustCompile(`[0-9A-F]{6}`)

func TestInitiateLoginHappyPath(t *testing.T) {
	f := newAuthFixture(t)
	user := f.createUser(t, "jane@example.com", "password1", models.RoleStudent, true)
	ctx := context.Background()

	token, err := f.auth.InitiateLogin(ctx, LoginInput{
		Email:    "Jane@Example.com",
		Password: "password1",
	})
	require.NoError(t, err)

	claims, err := f.jwt.ValidateToken(token)
	require.NoError(t, err)
	require.Equal(t, user.ID, claims.UserID)
	require.False(t, claims.TwoFactorVerified)

	msgs := f.mailer.waitFor(t, 1)
	require.Equal(t, []string{"jane@example.com"}, msgs[0].To)
	require.True(t, otpPattern.MatchString(msgs[0].Body))
}

func TestInitiateLoginWrongPassword(t *testing.T) {
	f := newAuthFixture(t)
	f.createUser(t, "jane@example.com", "password1", models.RoleStudent, true)

	_, err := f.auth.InitiateLogin(context.Background(), LoginInput{
		Email:    "jane@example.com",
		Password: "wrong-password",
	})
	require.ErrorIs(t, err, appErrors.ErrInvalidCredentials)
	require.Empty(t, f.mailer.sent())
}

func TestInitiateLoginUnknownEmail(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.auth.InitiateLogin(context.Background(), LoginInput{
		Email:    "nobody@example.com",
		Password: "password1",
	})
	require.ErrorIs(t, err, appErrors.ErrInvalidCredentials)
}

func TestInitiateLoginInactiveAccount(t *testing.T) {
	f := newAuthFixture(t)
	f.createUser(t, "pending@example.com", "password1", models.RoleStudent, false)

	_, err := f.auth.InitiateLogin(context.Background(), LoginInput{
		Email:    "pending@example.com",
		Password: "password1",
	})
	require.ErrorIs(t, err, appErrors.ErrAccountDisabled)
}

func TestInitiateLoginLockout(t *testing.T) {
	f := newAuthFixture(t)
	f.createUser(t, "jane@example.com", "password1", models.RoleStudent, true)
	ctx := context.Background()

	for i := 0; i < maxFailedAttempts; i++ {
		_, err := f.auth.InitiateLogin(ctx, LoginInput{Email: "jane@example.com", Password: "wrong"})
		require.ErrorIs(t, err, appErrors.ErrInvalidCredentials)
	}

	// Account is now locked even with the correct password.
	_, err := f.auth.InitiateLogin(ctx, LoginInput{Email: "jane@example.com", Password: "password1"})
	require.ErrorIs(t, err, appErrors.ErrRateLimited)
}

func TestInitiateLoginDeliveryFailure(t *testing.T) {
	f := newAuthFixture(t)
	f.createUser(t, "jane@example.com", "password1", models.RoleStudent, true)

	// A stopped dispatcher rejects every enqueue.
	f.dispatcher.Stop()

	_, err := f.auth.InitiateLogin(context.Background(), LoginInput{
		Email:    "jane@example.com",
		Password: "password1",
	})
	require.ErrorIs(t, err, appErrors.ErrDeliveryFailure)
}

func TestVerifyCodeIssuesSessionToken(t *testing.T) {
	f := newAuthFixture(t)
	user := f.createUser(t, "jane@example.com", "password1", models.RoleStudent, true)
	ctx := context.Background()

	preToken, err := f.auth.InitiateLogin(ctx, LoginInput{Email: "jane@example.com", Password: "password1"})
	require.NoError(t, err)

	msgs := f.mailer.waitFor(t, 1)
	code := otpPattern.FindString(msgs[0].Body)
	require.NotEmpty(t, code)

	sessionToken, err := f.auth.VerifyCode(ctx, preToken, code, "10.0.0.1", "test-agent")
	require.NoError(t, err)

	sessionClaims, err := f.jwt.ValidateToken(sessionToken)
	require.NoError(t, err)
	require.True(t, sessionClaims.TwoFactorVerified)

	// Login bookkeeping recorded on success.
	var updated models.User
	require.NoError(t, f.db.Take(&updated, "id = ?", user.ID).Error)
	require.NotNil(t, updated.LastLoginAt)
	require.Equal(t, "10.0.0.1", updated.LastLoginIP)

	// The code is single use.
	_, err = f.auth.VerifyCode(ctx, preToken, code, "10.0.0.1", "test-agent")
	require.ErrorIs(t, err, appErrors.ErrInvalidOrExpiredCode)
}

func TestVerifyCodeRejectsGarbageToken(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.auth.VerifyCode(context.Background(), "not-a-token", "ABC123", "", "")
	require.ErrorIs(t, err, appErrors.ErrInvalidToken)
}

func TestVerifyCodeWrongCode(t *testing.T) {
	f := newAuthFixture(t)
	user := f.createUser(t, "jane@example.com", "password1", models.RoleStudent, true)
	ctx := context.Background()

	_, err := f.auth.InitiateLogin(ctx, LoginInput{Email: "jane@example.com", Password: "password1"})
	require.NoError(t, err)
	f.mailer.waitFor(t, 1)

	preToken, err := f.jwt.GeneratePreAuthToken(user)
	require.NoError(t, err)

	_, err = f.auth.VerifyCode(ctx, preToken, "ZZZZZZ", "", "")
	require.ErrorIs(t, err, appErrors.ErrInvalidOrExpiredCode)
}

func TestVerifyCodeLowercaseRejected(t *testing.T) {
	f := newAuthFixture(t)
	user := f.createUser(t, "jane@example.com", "password1", models.RoleStudent, true)
	ctx := context.Background()

	_, err := f.auth.InitiateLogin(ctx, LoginInput{Email: "jane@example.com", Password: "password1"})
	require.NoError(t, err)

	msgs := f.mailer.waitFor(t, 1)
	code := otpPattern.FindString(msgs[0].Body)

	preToken, err := f.jwt.GeneratePreAuthToken(user)
	require.NoError(t, err)

	lower := strings.ToLower(code)
	if lower != code {
		_, err = f.auth.VerifyCode(ctx, preToken, lower, "", "")
		require.ErrorIs(t, err, appErrors.ErrInvalidOrExpiredCode)
	}
}

func TestRequestPasswordResetUniformAck(t *testing.T) {
	f := newAuthFixture(t)
	f.createUser(t, "jane@example.com", "password1", models.RoleStudent, true)
	ctx := context.Background()

	// Known address: email goes out.
	require.NoError(t, f.auth.RequestPasswordReset(ctx, "jane@example.com", "", ""))
	msgs := f.mailer.waitFor(t, 1)
	require.Contains(t, msgs[0].Body, "reset-password?uid=")

	// Unknown address: same nil result, no email.
	require.NoError(t, f.auth.RequestPasswordReset(ctx, "nobody@example.com", "", ""))
	time.Sleep(50 * time.Millisecond)
	require.Len(t, f.mailer.sent(), 1)
}

func TestCompletePasswordResetActivatesPendingAccount(t *testing.T) {
	f := newAuthFixture(t)
	user := f.createUser(t, "new@example.com", "", models.RoleStudent, false)
	ctx := context.Background()

	token, err := f.reset.Issue(ctx, user.ID)
	require.NoError(t, err)

	err = f.auth.CompletePasswordReset(ctx, iauth.EncodeUserID(user.ID), token, "fresh-pass1", "", "")
	require.NoError(t, err)

	var updated models.User
	require.NoError(t, f.db.Take(&updated, "id = ?", user.ID).Error)
	require.True(t, updated.IsActive)
	require.True(t, crypto.VerifyPassword(updated.Password, "fresh-pass1"))

	// The proof is consumed.
	err = f.auth.CompletePasswordReset(ctx, iauth.EncodeUserID(user.ID), token, "another-pass1", "", "")
	require.ErrorIs(t, err, appErrors.ErrInvalidToken)
}

func TestCompletePasswordResetRejectsWeakPassword(t *testing.T) {
	f := newAuthFixture(t)
	user := f.createUser(t, "jane@example.com", "password1", models.RoleStudent, true)
	ctx := context.Background()

	token, err := f.reset.Issue(ctx, user.ID)
	require.NoError(t, err)

	err = f.auth.CompletePasswordReset(ctx, iauth.EncodeUserID(user.ID), token, "short", "", "")
	require.Error(t, err)

	appErr := appErrors.FromError(err)
	require.Equal(t, "BAD_REQUEST", appErr.Code)
}

func TestCompletePasswordResetMismatchedUser(t *testing.T) {
	f := newAuthFixture(t)
	user := f.createUser(t, "jane@example.com", "password1", models.RoleStudent, true)
	other := f.createUser(t, "mark@example.com", "password1", models.RoleStudent, true)
	ctx := context.Background()

	token, err := f.reset.Issue(ctx, user.ID)
	require.NoError(t, err)

	err = f.auth.CompletePasswordReset(ctx, iauth.EncodeUserID(other.ID), token, "fresh-pass1", "", "")
	require.ErrorIs(t, err, appErrors.ErrInvalidToken)
}

func TestAuditTrailWrittenForLogin(t *testing.T) {
	f := newAuthFixture(t)
	user := f.createUser(t, "jane@example.com", "password1", models.RoleStudent, true)
	ctx := context.Background()

	_, err := f.auth.InitiateLogin(ctx, LoginInput{Email: "jane@example.com", Password: "password1", IPAddress: "10.1.1.1"})
	require.NoError(t, err)

	logs, total, err := f.audit.List(ctx, AuditListOptions{Filters: AuditFilters{UserID: user.ID, Action: AuditActionLogin}})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	require.Equal(t, AuditResultSuccess, logs[0].Result)
	require.Equal(t, "10.1.1.1", logs[0].IPAddress)
}

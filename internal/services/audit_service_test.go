package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/black-bourne/educ-backend/internal/database/testutil"
	"github.com/black-bourne/educ-backend/internal/models"
)

func TestAuditLogAndList(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	svc, err := NewAuditService(db)
	require.NoError(t, err)
	ctx := context.Background()

	userID := "11111111-1111-1111-1111-111111111111"
	require.NoError(t, svc.Log(ctx, AuditEntry{
		UserID:    &userID,
		Action:    AuditActionLogin,
		Result:    AuditResultSuccess,
		IPAddress: "10.0.0.1",
		UserAgent: "test-agent",
		Details:   map[string]any{"email": "t@example.com"},
	}))
	require.NoError(t, svc.Log(ctx, AuditEntry{
		UserID: &userID,
		Action: AuditActionLogin,
		Result: AuditResultFailure,
	}))
	require.NoError(t, svc.Log(ctx, AuditEntry{
		Action: AuditActionResetRequest,
		Result: AuditResultSuccess,
	}))

	logs, total, err := svc.List(ctx, AuditListOptions{})
	require.NoError(t, err)
	require.EqualValues(t, 3, total)
	require.Len(t, logs, 3)

	logs, total, err = svc.List(ctx, AuditListOptions{
		Filters: AuditFilters{Action: AuditActionLogin, Result: AuditResultFailure},
	})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Len(t, logs, 1)
	require.NotNil(t, logs[0].UserID)
	require.Equal(t, userID, *logs[0].UserID)

	logs, _, err = svc.List(ctx, AuditListOptions{
		Filters: AuditFilters{Action: AuditActionLogin, Result: AuditResultSuccess},
	})
	require.NoError(t, err)
	require.Len(t, logs, 1)

	var details map[string]any
	require.NoError(t, json.Unmarshal(logs[0].Details, &details))
	require.Equal(t, "t@example.com", details["email"])
}

func TestAuditRowsOutliveUsers(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	svc, err := NewAuditService(db)
	require.NoError(t, err)
	ctx := context.Background()

	user := mustCreateUser(t, db, "gone@example.com", models.RoleStudent)
	require.NoError(t, svc.Log(ctx, AuditEntry{
		UserID: &user.ID,
		Action: AuditActionLogin,
		Result: AuditResultSuccess,
	}))

	require.NoError(t, db.Unscoped().Delete(&models.User{}, "id = ?", user.ID).Error)

	logs, total, err := svc.List(ctx, AuditListOptions{})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.NotNil(t, logs[0].UserID)
	require.Equal(t, user.ID, *logs[0].UserID)
}

func TestAuditListPagination(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	svc, err := NewAuditService(db)
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, svc.Log(ctx, AuditEntry{
			Action: AuditActionVerifyCode,
			Result: AuditResultSuccess,
		}))
	}

	page1, total, err := svc.List(ctx, AuditListOptions{Page: 1, PageSize: 2})
	require.NoError(t, err)
	require.EqualValues(t, 5, total)
	require.Len(t, page1, 2)

	page3, _, err := svc.List(ctx, AuditListOptions{Page: 3, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, page3, 1)
}

func TestAuditCleanupOlderThan(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	svc, err := NewAuditService(db)
	require.NoError(t, err)
	ctx := context.Background()

	old := models.AuditLog{Action: AuditActionLogin, Result: AuditResultSuccess}
	require.NoError(t, db.Create(&old).Error)
	require.NoError(t, db.Model(&old).
		Update("created_at", time.Now().AddDate(0, 0, -120)).Error)

	require.NoError(t, svc.Log(ctx, AuditEntry{
		Action: AuditActionLogin,
		Result: AuditResultSuccess,
	}))

	removed, err := svc.CleanupOlderThan(ctx, 90)
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)

	_, total, err := svc.List(ctx, AuditListOptions{})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)

	_, err = svc.CleanupOlderThan(ctx, 0)
	require.Error(t, err)
}

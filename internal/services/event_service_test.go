package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/black-bourne/educ-backend/internal/cache"
	"github.com/black-bourne/educ-backend/internal/database/testutil"
	"github.com/black-bourne/educ-backend/internal/models"
)

func newEventFixture(t *testing.T) (*gorm.DB, *EventService, *recorderBroadcaster) {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	classes, err := NewClassService(db)
	require.NoError(t, err)

	broadcast := &recorderBroadcaster{}
	svc, err := NewEventService(db, classes, cache.NewDatabaseStore(db), broadcast)
	require.NoError(t, err)

	return db, svc, broadcast
}

func TestEventVisibilityByClass(t *testing.T) {
	db, svc, _ := newEventFixture(t)
	ctx := context.Background()

	classA := createClass(t, db, "5A")
	classB := createClass(t, db, "5B")

	student := &models.User{Email: "s@example.com", Role: models.RoleStudent, IsActive: true}
	require.NoError(t, db.Create(student).Error)
	enrollStudent(t, db, student, classA)

	start := time.Date(2024, 9, 10, 8, 0, 0, 0, time.UTC)
	mk := func(title string, classID *string) {
		_, err := svc.Create(ctx, CreateEventInput{
			Title:         title,
			Start:         start,
			End:           start.Add(time.Hour),
			SchoolClassID: classID,
		})
		require.NoError(t, err)
	}

	mk("school wide", nil)
	mk("class A trip", &classA.ID)
	mk("class B trip", &classB.ID)

	events, err := svc.ListForUser(ctx, student)
	require.NoError(t, err)
	require.Len(t, events, 2)
}

func TestEventCreateValidation(t *testing.T) {
	_, svc, _ := newEventFixture(t)
	ctx := context.Background()

	start := time.Date(2024, 9, 10, 8, 0, 0, 0, time.UTC)

	_, err := svc.Create(ctx, CreateEventInput{Title: "", Start: start, End: start.Add(time.Hour)})
	require.Error(t, err)

	_, err = svc.Create(ctx, CreateEventInput{Title: "x"})
	require.Error(t, err)

	_, err = svc.Create(ctx, CreateEventInput{Title: "x", Start: start, End: start.Add(-time.Hour)})
	require.Error(t, err)
}

func TestEventCreateBroadcastsAndInvalidates(t *testing.T) {
	db, svc, broadcast := newEventFixture(t)
	ctx := context.Background()

	student := &models.User{Email: "s@example.com", Role: models.RoleStudent, IsActive: true}
	require.NoError(t, db.Create(student).Error)

	start := time.Date(2024, 9, 10, 8, 0, 0, 0, time.UTC)
	_, err := svc.Create(ctx, CreateEventInput{Title: "sports day", Start: start, End: start.Add(2 * time.Hour)})
	require.NoError(t, err)

	first, err := svc.ListForUser(ctx, student)
	require.NoError(t, err)
	require.Len(t, first, 1)

	_, err = svc.Create(ctx, CreateEventInput{Title: "parents evening", Start: start, End: start.Add(time.Hour)})
	require.NoError(t, err)

	second, err := svc.ListForUser(ctx, student)
	require.NoError(t, err)
	require.Len(t, second, 2)

	require.Contains(t, broadcast.seen(), "event.created")
}

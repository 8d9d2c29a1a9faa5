package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/black-bourne/educ-backend/internal/cache"
	"github.com/black-bourne/educ-backend/internal/models"
	appErrors "github.com/black-bourne/educ-backend/pkg/errors"
)

// EventListTTL bounds how stale a cached calendar listing can get.
const EventListTTL = 10 * time.Minute

// CreateEventInput carries the fields for a new calendar event.
type CreateEventInput struct {
	Title         string
	Description   string
	Start         time.Time
	End           time.Time
	AllDay        bool
	SchoolClassID *string
}

// EventService lists and creates calendar events.
type EventService struct {
	db        *gorm.DB
	classes   *ClassService
	cache     *listCache
	broadcast Broadcaster
}

// NewEventService constructs an EventService. The store and broadcaster are
// optional.
func NewEventService(db *gorm.DB, classes *ClassService, store cache.Store, broadcast Broadcaster) (*EventService, error) {
	if db == nil {
		return nil, errors.New("event service: db is required")
	}
	if classes == nil {
		return nil, errors.New("event service: class service is required")
	}
	return &EventService{
		db:        db,
		classes:   classes,
		cache:     newListCache(store, "events", EventListTTL),
		broadcast: broadcast,
	}, nil
}

// ListForUser returns the events visible to the user: school-wide ones plus
// those scoped to a class they belong to.
func (s *EventService) ListForUser(ctx context.Context, user *models.User) ([]models.Event, error) {
	ctx = ensureContext(ctx)

	if user == nil {
		return nil, appErrors.ErrUnauthenticated
	}

	cacheKey := "user:" + user.ID
	var cached []models.Event
	if s.cache.GetJSON(ctx, cacheKey, &cached) {
		return cached, nil
	}

	classIDs, err := s.visibleClassIDs(ctx, user)
	if err != nil {
		return nil, err
	}

	query := s.db.WithContext(ctx).Model(&models.Event{})
	if len(classIDs) > 0 {
		query = query.Where("school_class_id IS NULL OR school_class_id IN ?", classIDs)
	} else {
		query = query.Where("school_class_id IS NULL")
	}

	var events []models.Event
	if err := query.Order("start ASC").Find(&events).Error; err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternalServer)
	}

	s.cache.SetJSON(ctx, cacheKey, events)
	return events, nil
}

// Create stores a new event, drops the cached listings and notifies realtime
// clients.
func (s *EventService) Create(ctx context.Context, input CreateEventInput) (*models.Event, error) {
	ctx = ensureContext(ctx)

	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, appErrors.NewBadRequest("title is required")
	}
	if input.Start.IsZero() || input.End.IsZero() {
		return nil, appErrors.NewBadRequest("start and end are required")
	}
	if input.End.Before(input.Start) {
		return nil, appErrors.NewBadRequest("end must not precede start")
	}

	event := models.Event{
		Title:         title,
		Description:   strings.TrimSpace(input.Description),
		Start:         input.Start,
		End:           input.End,
		AllDay:        input.AllDay,
		SchoolClassID: input.SchoolClassID,
	}

	if err := s.db.WithContext(ctx).Create(&event).Error; err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternalServer)
	}

	s.cache.Invalidate(ctx)
	if s.broadcast != nil {
		s.broadcast.Broadcast("event.created", event)
	}

	return &event, nil
}

func (s *EventService) visibleClassIDs(ctx context.Context, user *models.User) ([]string, error) {
	if user.IsStudent() {
		if user.SchoolClassID == nil {
			return nil, nil
		}
		return []string{*user.SchoolClassID}, nil
	}

	classes, err := s.classes.ListForTeacher(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(classes))
	for _, class := range classes {
		ids = append(ids, class.ID)
	}
	return ids, nil
}

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

// AnnouncementListTTL bounds how stale a cached announcement listing can get.
const AnnouncementListTTL = 10 * time.Minute

// CreateAnnouncementInput carries the fields for a new announcement.
type CreateAnnouncementInput struct {
	Title         string
	Description   string
	TargetRole    string
	SchoolClassID *string
}

// AnnouncementService lists and creates announcements. Listings are cached
// per user; creation invalidates the whole namespace.
type AnnouncementService struct {
	db        *gorm.DB
	classes   *ClassService
	cache     *listCache
	broadcast Broadcaster
}

// NewAnnouncementService constructs an AnnouncementService. The store and
// broadcaster are optional.
func NewAnnouncementService(db *gorm.DB, classes *ClassService, store cache.Store, broadcast Broadcaster) (*AnnouncementService, error) {
	if db == nil {
		return nil, errors.New("announcement service: db is required")
	}
	if classes == nil {
		return nil, errors.New("announcement service: class service is required")
	}
	return &AnnouncementService{
		db:        db,
		classes:   classes,
		cache:     newListCache(store, "announcements", AnnouncementListTTL),
		broadcast: broadcast,
	}, nil
}

// ListForUser returns the announcements visible to the user: those targeting
// their role (or both), scoped to no class or to a class they belong to.
func (s *AnnouncementService) ListForUser(ctx context.Context, user *models.User) ([]models.Announcement, error) {
	ctx = ensureContext(ctx)

	if user == nil {
		return nil, appErrors.ErrUnauthenticated
	}

	cacheKey := "user:" + user.ID
	var cached []models.Announcement
	if s.cache.GetJSON(ctx, cacheKey, &cached) {
		return cached, nil
	}

	classIDs, err := s.visibleClassIDs(ctx, user)
	if err != nil {
		return nil, err
	}

	query := s.db.WithContext(ctx).Model(&models.Announcement{}).
		Where("target_role IN ?", []string{models.TargetBoth, user.Role})
	if len(classIDs) > 0 {
		query = query.Where("school_class_id IS NULL OR school_class_id IN ?", classIDs)
	} else {
		query = query.Where("school_class_id IS NULL")
	}

	var announcements []models.Announcement
	if err := query.Order("created_at DESC").Find(&announcements).Error; err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternalServer)
	}

	s.cache.SetJSON(ctx, cacheKey, announcements)
	return announcements, nil
}

// Create stores a new announcement, drops the cached listings and notifies
// realtime clients.
func (s *AnnouncementService) Create(ctx context.Context, input CreateAnnouncementInput) (*models.Announcement, error) {
	ctx = ensureContext(ctx)

	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, appErrors.NewBadRequest("title is required")
	}

	target := strings.TrimSpace(input.TargetRole)
	if target == "" {
		target = models.TargetBoth
	}
	switch target {
	case models.TargetBoth, models.TargetTeacher, models.TargetStudent:
	default:
		return nil, appErrors.NewBadRequest("target_role must be both, teacher or student")
	}

	announcement := models.Announcement{
		Title:         title,
		Description:   strings.TrimSpace(input.Description),
		TargetRole:    target,
		SchoolClassID: input.SchoolClassID,
	}

	if err := s.db.WithContext(ctx).Create(&announcement).Error; err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternalServer)
	}

	s.cache.Invalidate(ctx)
	if s.broadcast != nil {
		s.broadcast.Broadcast("announcement.created", announcement)
	}

	return &announcement, nil
}

func (s *AnnouncementService) visibleClassIDs(ctx context.Context, user *models.User) ([]string, error) {
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

package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"crewtrack/internal/model"
)

// BadgeStore is the storage port for the badge catalog and earned links.
type BadgeStore interface {
	EnsureCatalog(ctx context.Context) error
	ListBadges(ctx context.Context) ([]model.Badge, error)
	ListUserBadges(ctx context.Context, username string) ([]model.UserBadge, error)
	// AddUserBadge records an earned badge and reports whether the link was
	// newly created. Awarding twice is a no-op.
	AddUserBadge(ctx context.Context, username, slug string, earnedAt time.Time) (bool, error)
}

type fileBadgeStore struct {
	badges     *topicFile
	userBadges *topicFile
}

func NewFileBadgeStore(dir string) BadgeStore {
	return &fileBadgeStore{
		badges:     newTopicFile(dir, "badges.json"),
		userBadges: newTopicFile(dir, "user_badges.json"),
	}
}

func (s *fileBadgeStore) EnsureCatalog(ctx context.Context) error {
	// Loading with the seed default persists it on first touch.
	_, err := loadTopic(s.badges, model.DefaultBadges())
	return err
}

func (s *fileBadgeStore) ListBadges(ctx context.Context) ([]model.Badge, error) {
	return loadTopic(s.badges, model.DefaultBadges())
}

func (s *fileBadgeStore) ListUserBadges(ctx context.Context, username string) ([]model.UserBadge, error) {
	all, err := loadTopic(s.userBadges, []model.UserBadge{})
	if err != nil {
		return nil, err
	}
	uname := model.NormalizeUsername(username)
	var links []model.UserBadge
	for _, link := range all {
		if model.NormalizeUsername(link.Username) == uname {
			links = append(links, link)
		}
	}
	return links, nil
}

func (s *fileBadgeStore) AddUserBadge(ctx context.Context, username, slug string, earnedAt time.Time) (bool, error) {
	all, err := loadTopic(s.userBadges, []model.UserBadge{})
	if err != nil {
		return false, err
	}
	uname := model.NormalizeUsername(username)
	for _, link := range all {
		if model.NormalizeUsername(link.Username) == uname && link.BadgeSlug == slug {
			return false, nil
		}
	}
	all = append(all, model.UserBadge{
		Username:  uname,
		BadgeSlug: slug,
		EarnedAt:  model.FormatMinutes(earnedAt),
	})
	if err := saveTopic(s.userBadges, all); err != nil {
		return false, err
	}
	return true, nil
}

type dbBadgeStore struct {
	db *gorm.DB
}

func NewDBBadgeStore(db *gorm.DB) BadgeStore {
	return &dbBadgeStore{db: db}
}

// EnsureCatalog inserts any seed badges missing from the catalog table.
// Existing rows are never modified.
func (s *dbBadgeStore) EnsureCatalog(ctx context.Context) error {
	for _, badge := range model.DefaultBadges() {
		var count int64
		if err := s.db.WithContext(ctx).Model(&BadgeRow{}).
			Where("slug = ?", badge.Slug).Count(&count).Error; err != nil {
			return fmt.Errorf("check badge %q: %w", badge.Slug, err)
		}
		if count > 0 {
			continue
		}
		row := BadgeRow{
			Slug:        badge.Slug,
			Name:        badge.Name,
			Description: badge.Description,
			IconPath:    badge.IconPath,
		}
		if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
			return fmt.Errorf("seed badge %q: %w", badge.Slug, err)
		}
	}
	return nil
}

func (s *dbBadgeStore) ListBadges(ctx context.Context) ([]model.Badge, error) {
	var rows []BadgeRow
	if err := s.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load badges: %w", err)
	}
	badges := make([]model.Badge, 0, len(rows))
	for _, row := range rows {
		badges = append(badges, model.Badge{
			Slug:        row.Slug,
			Name:        row.Name,
			Description: row.Description,
			IconPath:    row.IconPath,
		})
	}
	return badges, nil
}

func (s *dbBadgeStore) ListUserBadges(ctx context.Context, username string) ([]model.UserBadge, error) {
	uname := model.NormalizeUsername(username)
	var rows []UserBadgeRow
	if err := s.db.WithContext(ctx).Where("username = ?", uname).
		Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load user badges for %q: %w", uname, err)
	}
	links := make([]model.UserBadge, 0, len(rows))
	for _, row := range rows {
		links = append(links, model.UserBadge{
			Username:  row.Username,
			BadgeSlug: row.BadgeSlug,
			EarnedAt:  model.FormatMinutes(row.EarnedAt),
		})
	}
	return links, nil
}

func (s *dbBadgeStore) AddUserBadge(ctx context.Context, username, slug string, earnedAt time.Time) (bool, error) {
	uname := model.NormalizeUsername(username)

	var count int64
	if err := s.db.WithContext(ctx).Model(&UserBadgeRow{}).
		Where("username = ? AND badge_slug = ?", uname, slug).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("check user badge: %w", err)
	}
	if count > 0 {
		return false, nil
	}

	row := UserBadgeRow{Username: uname, BadgeSlug: slug, EarnedAt: earnedAt}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		// The composite unique index backstops a concurrent award of the
		// same badge.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return false, nil
		}
		return false, fmt.Errorf("insert user badge: %w", err)
	}
	return true, nil
}

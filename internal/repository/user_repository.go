package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"

	"crewtrack/internal/model"
)

// UserStore is the storage port for the users topic.
type UserStore interface {
	Load(ctx context.Context) ([]model.User, error)
	Save(ctx context.Context, users []model.User) error
}

type fileUserStore struct {
	file *topicFile
}

func NewFileUserStore(dir string) UserStore {
	return &fileUserStore{file: newTopicFile(dir, "users.json")}
}

func (s *fileUserStore) Load(ctx context.Context) ([]model.User, error) {
	raws, err := loadTopic(s.file, []json.RawMessage{})
	if err != nil {
		return nil, err
	}
	users := make([]model.User, 0, len(raws))
	for _, raw := range raws {
		users = append(users, decodeUser(raw))
	}
	return users, nil
}

func (s *fileUserStore) Save(ctx context.Context, users []model.User) error {
	raws := make([]json.RawMessage, 0, len(users))
	for _, user := range users {
		user.Username = model.NormalizeUsername(user.Username)
		if user.Username == "" {
			continue
		}
		raw, err := encodeUser(user)
		if err != nil {
			return err
		}
		raws = append(raws, raw)
	}
	return saveTopic(s.file, raws)
}

type dbUserStore struct {
	db       *gorm.DB
	fallback UserStore
}

func NewDBUserStore(db *gorm.DB, fallback UserStore) UserStore {
	return &dbUserStore{db: db, fallback: fallback}
}

func (s *dbUserStore) Load(ctx context.Context) ([]model.User, error) {
	var rows []UserRow
	if err := s.db.WithContext(ctx).Order("username").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	if len(rows) == 0 {
		return s.fallback.Load(ctx)
	}
	users := make([]model.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.toUser())
	}
	return users, nil
}

func (s *dbUserStore) Save(ctx context.Context, users []model.User) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&UserRow{}).Error; err != nil {
			return fmt.Errorf("clear users: %w", err)
		}

		seen := make(map[string]struct{}, len(users))
		rows := make([]UserRow, 0, len(users))
		for _, user := range users {
			row := newUserRow(user)
			if row.Username == "" {
				continue
			}
			if _, dup := seen[row.Username]; dup {
				continue
			}
			seen[row.Username] = struct{}{}
			rows = append(rows, row)
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("insert users: %w", err)
		}
		return nil
	})
}

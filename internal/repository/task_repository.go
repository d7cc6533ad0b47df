package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"

	"crewtrack/internal/model"
)

// TaskStore is the storage port for the tasks topic. Order of the slice is
// the stable position of each task.
type TaskStore interface {
	Load(ctx context.Context) ([]model.Task, error)
	Save(ctx context.Context, tasks []model.Task) error
}

// fileTaskStore keeps tasks in a locked, atomically replaced JSON snapshot.
type fileTaskStore struct {
	file *topicFile
}

func NewFileTaskStore(dir string) TaskStore {
	return &fileTaskStore{file: newTopicFile(dir, "tasks.json")}
}

func (s *fileTaskStore) Load(ctx context.Context) ([]model.Task, error) {
	raws, err := loadTopic(s.file, []json.RawMessage{})
	if err != nil {
		return nil, err
	}
	tasks := make([]model.Task, 0, len(raws))
	for _, raw := range raws {
		tasks = append(tasks, decodeTask(raw))
	}
	return tasks, nil
}

func (s *fileTaskStore) Save(ctx context.Context, tasks []model.Task) error {
	raws := make([]json.RawMessage, 0, len(tasks))
	for _, task := range tasks {
		task.ApplyDefaults()
		raw, err := encodeTask(task)
		if err != nil {
			return err
		}
		raws = append(raws, raw)
	}
	return saveTopic(s.file, raws)
}

// dbTaskStore mirrors tasks into the relational backend. The flat-file
// snapshot is consulted only while the table is still empty, as a one-time
// migration path.
type dbTaskStore struct {
	db       *gorm.DB
	fallback TaskStore
}

func NewDBTaskStore(db *gorm.DB, fallback TaskStore) TaskStore {
	return &dbTaskStore{db: db, fallback: fallback}
}

func (s *dbTaskStore) Load(ctx context.Context) ([]model.Task, error) {
	var rows []TaskRow
	if err := s.db.WithContext(ctx).Order("position, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	if len(rows) == 0 {
		return s.fallback.Load(ctx)
	}
	tasks := make([]model.Task, 0, len(rows))
	for _, row := range rows {
		tasks = append(tasks, row.toTask())
	}
	return tasks, nil
}

// Save performs a transactional replace-all, preserving explicit position
// and silently nulling references to unknown usernames.
func (s *dbTaskStore) Save(ctx context.Context, tasks []model.Task) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&TaskRow{}).Error; err != nil {
			return fmt.Errorf("clear tasks: %w", err)
		}

		var userRows []UserRow
		if err := tx.Find(&userRows).Error; err != nil {
			return fmt.Errorf("load users for task save: %w", err)
		}
		validUsers := make(map[string]struct{}, len(userRows))
		for _, row := range userRows {
			validUsers[row.Username] = struct{}{}
		}

		rows := make([]TaskRow, 0, len(tasks))
		for position, task := range tasks {
			task.ApplyDefaults()
			rows = append(rows, newTaskRow(task, position, validUsers))
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("insert tasks: %w", err)
		}
		return nil
	})
}

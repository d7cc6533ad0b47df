package repository

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"crewtrack/internal/model"
)

// NewDB opens the relational mirror and runs migrations.
func NewDB(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		dsn = "crewtrack.db"
	}

	if err := ensureDirForSQLite(dsn); err != nil {
		return nil, err
	}

	dbLogger := logger.New(
		log.New(os.Stdout, "", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         dbLogger,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := db.AutoMigrate(&UserRow{}, &TaskRow{}, &BadgeRow{}, &UserBadgeRow{}); err != nil {
		return nil, fmt.Errorf("migrate db: %w", err)
	}

	return db, nil
}

// ensureDirForSQLite creates the parent dir for a SQLite file if needed.
func ensureDirForSQLite(dsn string) error {
	if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		return nil
	}
	clean := strings.TrimPrefix(dsn, "file:")
	clean = strings.Split(clean, "?")[0]
	dir := filepath.Dir(clean)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create db dir %q: %w", dir, err)
	}
	return nil
}

// TaskRow is the relational shape of a task. Fields outside the typed schema
// are kept in the Extra JSON column.
type TaskRow struct {
	ID                  uint `gorm:"primaryKey"`
	Text                string
	Done                bool `gorm:"default:false"`
	Priority            string
	Notes               string
	Tags                string // JSON array
	DueDate             *time.Time
	Recurring           string
	CreatedAt           time.Time
	CompletedAt         *time.Time
	Overdue             bool    `gorm:"default:false"`
	AssignedUsername    *string `gorm:"index"`
	AssignedDisplay     string
	OwnerUsername       *string `gorm:"index"`
	CompletedByUsername *string
	Position            int `gorm:"index"`
	Extra               string
}

// UserRow is the relational shape of a user.
type UserRow struct {
	Username            string `gorm:"primaryKey"`
	DisplayName         string
	Password            string
	Role                string `gorm:"default:member"`
	Titles              string // JSON array
	Email               string
	WebhookURL          string
	JoinDate            time.Time
	TotalTasksCompleted int `gorm:"default:0"`
	StreakCount         int `gorm:"default:0"`
	Extra               string
}

// BadgeRow is one catalog entry.
type BadgeRow struct {
	ID          uint   `gorm:"primaryKey"`
	Slug        string `gorm:"uniqueIndex"`
	Name        string
	Description string
	IconPath    string
}

// UserBadgeRow links a user to an earned badge; the composite unique index
// is the hard backstop for award idempotency.
type UserBadgeRow struct {
	ID        uint   `gorm:"primaryKey"`
	Username  string `gorm:"index:idx_user_badge,unique"`
	BadgeSlug string `gorm:"index:idx_user_badge,unique"`
	EarnedAt  time.Time
}

func newTaskRow(task model.Task, position int, validUsers map[string]struct{}) TaskRow {
	row := TaskRow{
		Text:                task.Text,
		Done:                task.Done,
		Priority:            defaultString(task.Priority, model.PriorityMedium),
		Notes:               task.Notes,
		Tags:                marshalStrings(task.Tags),
		Recurring:           recurringColumn(task.Recurring),
		Overdue:             task.Overdue,
		AssignedDisplay:     task.AssignedTo,
		AssignedUsername:    optionalUsername(task.AssignedUsername, validUsers),
		OwnerUsername:       optionalUsername(task.OwnerUsername(), validUsers),
		CompletedByUsername: optionalUsername(task.CompletedBy, validUsers),
		Position:            position,
		Extra:               marshalExtra(task.Extra),
	}
	if due, ok := model.ParseDate(task.DueRef()); ok {
		row.DueDate = &due
	}
	if created, ok := model.ParseDateTime(task.CreatedAt); ok {
		row.CreatedAt = created
	} else {
		row.CreatedAt = time.Now().UTC()
	}
	if completed, ok := model.ParseDateTime(task.CompletedAt); ok {
		row.CompletedAt = &completed
	}
	return row
}

func (r TaskRow) toTask() model.Task {
	task := model.Task{
		Text:             r.Text,
		Done:             r.Done,
		Priority:         defaultString(r.Priority, model.PriorityMedium),
		Notes:            r.Notes,
		Tags:             model.NormalizeTags(unmarshalStrings(r.Tags)),
		Recurring:        model.ParseRecurrence(r.Recurring),
		AssignedTo:       r.AssignedDisplay,
		AssignedUsername: stringValue(r.AssignedUsername),
		Owner:            stringValue(r.OwnerUsername),
		CreatedBy:        stringValue(r.OwnerUsername),
		CompletedBy:      stringValue(r.CompletedByUsername),
		Overdue:          r.Overdue,
		Extra:            unmarshalExtra(r.Extra),
	}
	if r.DueDate != nil {
		task.DueDate = model.FormatDate(*r.DueDate)
	}
	if !r.CreatedAt.IsZero() {
		task.CreatedAt = model.FormatMinutes(r.CreatedAt)
	}
	if r.CompletedAt != nil {
		task.CompletedAt = model.FormatMinutes(*r.CompletedAt)
	}
	return task
}

func newUserRow(user model.User) UserRow {
	row := UserRow{
		Username:            model.NormalizeUsername(user.Username),
		DisplayName:         user.DisplayName,
		Password:            user.Password,
		Role:                defaultString(strings.ToLower(user.Role), model.RoleMember),
		Titles:              marshalStrings(user.Titles),
		Email:               user.Email,
		WebhookURL:          user.WebhookURL,
		TotalTasksCompleted: user.TotalTasksCompleted,
		StreakCount:         user.StreakCount,
		Extra:               marshalExtra(user.Extra),
	}
	if joined, ok := model.ParseDateTime(user.JoinDate); ok {
		row.JoinDate = joined
	} else {
		row.JoinDate = time.Now().UTC()
	}
	return row
}

func (r UserRow) toUser() model.User {
	user := model.User{
		Username:            r.Username,
		DisplayName:         r.DisplayName,
		Password:            r.Password,
		Role:                defaultString(r.Role, model.RoleMember),
		Titles:              unmarshalStrings(r.Titles),
		Email:               r.Email,
		WebhookURL:          r.WebhookURL,
		TotalTasksCompleted: r.TotalTasksCompleted,
		StreakCount:         r.StreakCount,
		Extra:               unmarshalExtra(r.Extra),
	}
	if !r.JoinDate.IsZero() {
		user.JoinDate = model.FormatMinutes(r.JoinDate)
	}
	return user
}

// optionalUsername normalizes a reference and silently nulls it when the
// referenced user does not exist.
func optionalUsername(raw string, validUsers map[string]struct{}) *string {
	uname := model.NormalizeUsername(raw)
	if uname == "" {
		return nil
	}
	if _, ok := validUsers[uname]; !ok {
		return nil
	}
	return &uname
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func defaultString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func recurringColumn(r model.Recurrence) string {
	if r == model.RecurNone || r == "" {
		return ""
	}
	return string(r)
}

func marshalStrings(items []string) string {
	if len(items) == 0 {
		return ""
	}
	data, err := json.Marshal(items)
	if err != nil {
		return ""
	}
	return string(data)
}

func unmarshalStrings(raw string) []string {
	if raw == "" {
		return nil
	}
	var items []string
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil
	}
	return items
}

func marshalExtra(extra map[string]json.RawMessage) string {
	if len(extra) == 0 {
		return ""
	}
	data, err := json.Marshal(extra)
	if err != nil {
		return ""
	}
	return string(data)
}

func unmarshalExtra(raw string) map[string]json.RawMessage {
	if raw == "" {
		return nil
	}
	var extra map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &extra); err != nil {
		return nil
	}
	return extra
}

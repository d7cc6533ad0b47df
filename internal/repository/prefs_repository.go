package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"crewtrack/internal/model"
)

// PrefsStore is the storage port for per-user preferences. Preferences stay
// on the flat-file backend even when the relational mirror is enabled; they
// are loose per-user documents, not relational data.
type PrefsStore interface {
	LoadAll(ctx context.Context) (map[string]model.NotificationSettings, error)
	SaveNotificationSettings(ctx context.Context, username string, settings model.NotificationSettings) error
}

// prefsDoc is the raw per-user preference document. Only the notifications
// block is typed; everything else is preserved verbatim.
type prefsDoc map[string]json.RawMessage

const notificationsKey = "notifications"

type filePrefsStore struct {
	file *topicFile
}

func NewFilePrefsStore(dir string) PrefsStore {
	return &filePrefsStore{file: newTopicFile(dir, "preferences.json")}
}

func (s *filePrefsStore) LoadAll(ctx context.Context) (map[string]model.NotificationSettings, error) {
	docs, err := loadTopic(s.file, map[string]prefsDoc{})
	if err != nil {
		return nil, err
	}
	settings := make(map[string]model.NotificationSettings, len(docs))
	for username, doc := range docs {
		uname := model.NormalizeUsername(username)
		if uname == "" {
			continue
		}
		var ns model.NotificationSettings
		if raw, ok := doc[notificationsKey]; ok {
			// A malformed block resolves to pure defaults downstream.
			_ = json.Unmarshal(raw, &ns)
		}
		settings[uname] = ns
	}
	return settings, nil
}

func (s *filePrefsStore) SaveNotificationSettings(ctx context.Context, username string, settings model.NotificationSettings) error {
	uname := model.NormalizeUsername(username)
	if uname == "" {
		return fmt.Errorf("save preferences: empty username")
	}

	docs, err := loadTopic(s.file, map[string]prefsDoc{})
	if err != nil {
		return err
	}

	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode preferences for %q: %w", uname, err)
	}

	doc := docs[uname]
	if doc == nil {
		doc = prefsDoc{}
	}
	doc[notificationsKey] = raw
	docs[uname] = doc

	return saveTopic(s.file, docs)
}

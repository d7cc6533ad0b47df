package repository

import (
	"encoding/json"
	"fmt"

	"crewtrack/internal/model"
)

// Field names covered by the typed Task schema. Anything else on a persisted
// record rides along in the extra side-bag so that no information is lost
// across schema evolution.
var taskKnownKeys = map[string]struct{}{
	"text": {}, "done": {}, "priority": {}, "notes": {}, "tags": {},
	"due_date": {}, "due": {}, "recurring": {}, "assigned_to": {},
	"assigned_username": {}, "owner": {}, "created_by": {}, "created_at": {},
	"completed_at": {}, "completed_by": {}, "overdue": {},
}

var userKnownKeys = map[string]struct{}{
	"username": {}, "display_name": {}, "password": {}, "role": {},
	"titles": {}, "email": {}, "webhook_url": {}, "join_date": {},
	"total_tasks_completed": {}, "streak_count": {},
}

func decodeTask(raw json.RawMessage) model.Task {
	var task model.Task
	// Field-level unmarshalers coerce loose values; a partially decodable
	// record keeps whatever parsed.
	_ = json.Unmarshal(raw, &task)
	task.Extra = extraFields(raw, taskKnownKeys)
	task.ApplyDefaults()
	return task
}

func encodeTask(task model.Task) (json.RawMessage, error) {
	return encodeWithExtras(task, task.Extra)
}

func decodeUser(raw json.RawMessage) model.User {
	var user model.User
	_ = json.Unmarshal(raw, &user)
	user.Username = model.NormalizeUsername(user.Username)
	user.Extra = extraFields(raw, userKnownKeys)
	return user
}

func encodeUser(user model.User) (json.RawMessage, error) {
	return encodeWithExtras(user, user.Extra)
}

func extraFields(raw json.RawMessage, known map[string]struct{}) map[string]json.RawMessage {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil
	}
	for key := range known {
		delete(fields, key)
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}

// encodeWithExtras marshals the typed record, then folds the side-bag back
// in. Typed fields win over stale extras of the same name.
func encodeWithExtras(record any, extra map[string]json.RawMessage) (json.RawMessage, error) {
	base, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	if len(extra) == 0 {
		return base, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, fmt.Errorf("merge record extras: %w", err)
	}
	for key, value := range extra {
		if _, ok := merged[key]; !ok {
			merged[key] = value
		}
	}
	return json.Marshal(merged)
}

package model

import (
	"encoding/json"
	"strings"
	"time"
)

// Priority labels carried on tasks.
const (
	PriorityHigh   = "High"
	PriorityMedium = "Medium"
	PriorityLow    = "Low"
)

// Recurrence is the pattern governing automatic generation of a task's next
// occurrence when it is completed.
type Recurrence string

const (
	RecurNone    Recurrence = "none"
	RecurDaily   Recurrence = "daily"
	RecurWeekly  Recurrence = "weekly"
	RecurMonthly Recurrence = "monthly"
)

// ParseRecurrence folds arbitrary input into the fixed enumeration.
// Legacy boolean-ish values map to weekly; anything unrecognized is none.
func ParseRecurrence(raw string) Recurrence {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "none", "no", "false":
		return RecurNone
	case "daily":
		return RecurDaily
	case "weekly":
		return RecurWeekly
	case "monthly":
		return RecurMonthly
	case "yes", "true":
		return RecurWeekly
	}
	return RecurNone
}

// MarshalJSON writes none as null, matching the snapshot format written by
// earlier versions of the tracker.
func (r Recurrence) MarshalJSON() ([]byte, error) {
	if r == RecurNone || r == "" {
		return []byte("null"), nil
	}
	return json.Marshal(string(r))
}

// UnmarshalJSON tolerates strings, legacy booleans, and null.
func (r *Recurrence) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*r = ParseRecurrence(s)
		return nil
	}
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		if b {
			*r = RecurWeekly
		} else {
			*r = RecurNone
		}
		return nil
	}
	*r = RecurNone
	return nil
}

// TagList is an ordered set of tag strings. Persisted records may carry tags
// either as a list or as a single delimited string.
type TagList []string

func (l *TagList) UnmarshalJSON(data []byte) error {
	var items []string
	if err := json.Unmarshal(data, &items); err == nil {
		*l = NormalizeTags(items)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*l = ParseTags(s)
		return nil
	}
	*l = nil
	return nil
}

// ParseTags splits a comma- or semicolon-delimited string into clean tags.
func ParseTags(raw string) TagList {
	return NormalizeTags(strings.Split(strings.ReplaceAll(raw, ";", ","), ","))
}

// NormalizeTags trims entries, drops empties, and removes duplicates while
// preserving the original order.
func NormalizeTags(items []string) TagList {
	var cleaned TagList
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		token := strings.TrimSpace(item)
		if token == "" {
			continue
		}
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		cleaned = append(cleaned, token)
	}
	return cleaned
}

// NormalizeUsername lowercases and trims a username into its canonical key.
func NormalizeUsername(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// Task is a single tracked item. Position in the task list is its identity;
// timestamps are minute-precision strings as written by FormatMinutes, and
// due dates are calendar-date strings.
type Task struct {
	Text             string     `json:"text"`
	Done             bool       `json:"done"`
	Priority         string     `json:"priority,omitempty"`
	Notes            string     `json:"notes,omitempty"`
	Tags             TagList    `json:"tags,omitempty"`
	DueDate          string     `json:"due_date,omitempty"`
	LegacyDue        string     `json:"due,omitempty"` // older snapshots used "due"
	Recurring        Recurrence `json:"recurring"`
	AssignedTo       string     `json:"assigned_to,omitempty"` // display label
	AssignedUsername string     `json:"assigned_username,omitempty"`
	Owner            string     `json:"owner,omitempty"`
	CreatedBy        string     `json:"created_by,omitempty"`
	CreatedAt        string     `json:"created_at,omitempty"`
	CompletedAt      string     `json:"completed_at,omitempty"`
	CompletedBy      string     `json:"completed_by,omitempty"`
	Overdue          bool       `json:"overdue,omitempty"`

	// DueToday is recomputed on every listing and never persisted.
	DueToday bool `json:"-"`

	// Extra holds record fields outside the typed schema. It is owned by the
	// persistence adapters; domain logic never reads it.
	Extra map[string]json.RawMessage `json:"-"`
}

// ApplyDefaults normalizes the fields that accept loose input.
func (t *Task) ApplyDefaults() {
	t.Tags = NormalizeTags(t.Tags)
	t.Recurring = ParseRecurrence(string(t.Recurring))
}

// DueRef returns the task's due date string, falling back to the legacy key.
func (t Task) DueRef() string {
	if t.DueDate != "" {
		return t.DueDate
	}
	return t.LegacyDue
}

// OwnerUsername returns the canonical owner, falling back to created_by for
// records written before the owner field existed.
func (t Task) OwnerUsername() string {
	if owner := NormalizeUsername(t.Owner); owner != "" {
		return owner
	}
	return NormalizeUsername(t.CreatedBy)
}

// NextDueDate computes the next occurrence of a recurring due date.
// Monthly recurrence keeps the day of month, clamped to the last valid day
// of the target month. The second return value is false for none.
func NextDueDate(current time.Time, r Recurrence) (time.Time, bool) {
	switch r {
	case RecurDaily:
		return current.AddDate(0, 0, 1), true
	case RecurWeekly:
		return current.AddDate(0, 0, 7), true
	case RecurMonthly:
		year, month, day := current.Date()
		month++
		if month > time.December {
			month = time.January
			year++
		}
		if last := daysInMonth(year, month); day > last {
			day = last
		}
		return time.Date(year, month, day, 0, 0, 0, 0, current.Location()), true
	}
	return time.Time{}, false
}

func daysInMonth(year int, month time.Month) int {
	// Move to the first of the next month, roll back a day.
	firstOfMonth := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return firstOfMonth.AddDate(0, 1, -1).Day()
}

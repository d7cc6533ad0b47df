package model

import (
	"encoding/json"
	"strings"
)

// Roles understood by the tracker.
const (
	RoleMember  = "member"
	RoleManager = "manager"
)

// User is a member of the team. Username is the canonical lowercase key.
// TotalTasksCompleted and StreakCount are display caches refreshed from task
// history; they are never read back as ground truth.
type User struct {
	Username            string   `json:"username"`
	DisplayName         string   `json:"display_name,omitempty"`
	Password            string   `json:"password,omitempty"`
	Role                string   `json:"role,omitempty"`
	Titles              []string `json:"titles,omitempty"`
	Email               string   `json:"email,omitempty"`
	WebhookURL          string   `json:"webhook_url,omitempty"`
	JoinDate            string   `json:"join_date,omitempty"`
	TotalTasksCompleted int      `json:"total_tasks_completed"`
	StreakCount         int      `json:"streak_count"`

	// Extra holds record fields outside the typed schema, owned by the
	// persistence adapters.
	Extra map[string]json.RawMessage `json:"-"`
}

func (u User) IsManager() bool {
	return strings.ToLower(u.Role) == RoleManager
}

// EffectiveDisplayName falls back to a title-cased username when no display
// name has been set.
func (u User) EffectiveDisplayName() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return TitleCase(u.Username)
}

// TitleCase capitalizes the first letter of each word.
func TitleCase(s string) string {
	words := strings.Fields(s)
	for i, word := range words {
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}

// FindUser returns the user with the given username, matched canonically.
func FindUser(users []User, username string) (User, bool) {
	uname := NormalizeUsername(username)
	if uname == "" {
		return User{}, false
	}
	for _, u := range users {
		if NormalizeUsername(u.Username) == uname {
			return u, true
		}
	}
	return User{}, false
}

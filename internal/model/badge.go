package model

// Badge describes one entry in the fixed achievement catalog.
type Badge struct {
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	IconPath    string `json:"icon_path,omitempty"`
}

// UserBadge links a user to an earned badge. Links are created at most once
// per (username, badge) pair and never deleted or mutated.
type UserBadge struct {
	Username  string `json:"username"`
	BadgeSlug string `json:"badge_slug"`
	EarnedAt  string `json:"earned_at,omitempty"`
}

// Metric names the statistic a badge rule is bound to.
type Metric string

const (
	MetricCompletedCount Metric = "completed_count"
	MetricLongestStreak  Metric = "longest_streak"
)

// BadgeRule binds a badge to the metric and target that earn it.
type BadgeRule struct {
	Metric Metric
	Target int
	Label  string
}

const (
	BadgeFirstStep     = "first_step"
	BadgeTaskMaster    = "task_master"
	BadgeWeeklyWarrior = "weekly_warrior"
)

// BadgeProgressOrder fixes the priority in which badges are previewed and
// awarded. Progress is only ever shown for the first unearned entry.
var BadgeProgressOrder = []string{
	BadgeFirstStep,
	BadgeTaskMaster,
	BadgeWeeklyWarrior,
}

var badgeRules = map[string]BadgeRule{
	BadgeFirstStep:     {Metric: MetricCompletedCount, Target: 1, Label: "Complete 1 task"},
	BadgeTaskMaster:    {Metric: MetricCompletedCount, Target: 100, Label: "Complete 100 tasks"},
	BadgeWeeklyWarrior: {Metric: MetricLongestStreak, Target: 7, Label: "Achieve a 7-day streak"},
}

// RuleFor returns the progress rule bound to a badge slug.
func RuleFor(slug string) (BadgeRule, bool) {
	rule, ok := badgeRules[slug]
	return rule, ok
}

// DefaultBadges returns the seed catalog in display order.
func DefaultBadges() []Badge {
	return []Badge{
		{
			Slug:        BadgeFirstStep,
			Name:        "First Step",
			Description: "Complete your first task.",
			IconPath:    "/static/badges/first_step.svg",
		},
		{
			Slug:        BadgeTaskMaster,
			Name:        "Task Master",
			Description: "Complete 100 tasks.",
			IconPath:    "/static/badges/task_master.svg",
		},
		{
			Slug:        BadgeWeeklyWarrior,
			Name:        "Weekly Warrior",
			Description: "Complete tasks every day for seven days in a row.",
			IconPath:    "/static/badges/weekly_warrior.svg",
		},
	}
}

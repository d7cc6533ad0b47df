package service

import (
	"context"
	"sort"
	"time"

	"crewtrack/internal/model"
	"crewtrack/internal/repository"
)

// CompletionStats summarizes a user's task completion history. Everything is
// recomputed from the task list; cached user counters are never read back.
type CompletionStats struct {
	CompletedCount int
	// Dates holds the distinct completion dates in ascending order.
	Dates         []time.Time
	LongestStreak int
	CurrentStreak int
}

// AchievementService computes completion statistics and awards badges.
type AchievementService struct {
	users  repository.UserStore
	badges repository.BadgeStore
	now    Clock
}

func NewAchievementService(users repository.UserStore, badges repository.BadgeStore, now Clock) *AchievementService {
	return &AchievementService{users: users, badges: badges, now: now}
}

// CompletionStats scans the task list for completions attributed to the
// user: completed_by when set, the assignee username otherwise.
func (s *AchievementService) CompletionStats(username string, tasks []model.Task) CompletionStats {
	uname := model.NormalizeUsername(username)
	stats := CompletionStats{}
	seen := make(map[time.Time]struct{})

	for _, task := range tasks {
		if !task.Done || !completionAttributedTo(task, uname) {
			continue
		}
		stats.CompletedCount++
		completed, ok := model.ParseDateTime(task.CompletedAt)
		if !ok {
			continue
		}
		date := model.DateOf(completed)
		if _, dup := seen[date]; dup {
			continue
		}
		seen[date] = struct{}{}
		stats.Dates = append(stats.Dates, date)
	}

	sort.Slice(stats.Dates, func(i, j int) bool { return stats.Dates[i].Before(stats.Dates[j]) })
	stats.LongestStreak = longestStreak(stats.Dates)
	stats.CurrentStreak = currentStreak(seen, model.DateOf(s.now()))
	return stats
}

func completionAttributedTo(task model.Task, uname string) bool {
	if completedBy := model.NormalizeUsername(task.CompletedBy); completedBy != "" {
		return completedBy == uname
	}
	return model.NormalizeUsername(task.AssignedUsername) == uname
}

// longestStreak finds the longest run of calendar-consecutive dates in an
// ascending, de-duplicated slice with a single pass.
func longestStreak(dates []time.Time) int {
	longest, run := 0, 0
	for i, date := range dates {
		if i > 0 && date.Sub(dates[i-1]) == 24*time.Hour {
			run++
		} else {
			run = 1
		}
		if run > longest {
			longest = run
		}
	}
	return longest
}

// currentStreak walks backward from today while each day has a completion.
// A day without a completion today means no current streak at all.
func currentStreak(dates map[time.Time]struct{}, today time.Time) int {
	streak := 0
	for day := today; ; day = day.AddDate(0, 0, -1) {
		if _, ok := dates[day]; !ok {
			break
		}
		streak++
	}
	return streak
}

func metricValue(stats CompletionStats, metric model.Metric) int {
	switch metric {
	case model.MetricCompletedCount:
		return stats.CompletedCount
	case model.MetricLongestStreak:
		return stats.LongestStreak
	}
	return 0
}

// Award grants every badge whose target the user's current stats satisfy and
// which the user has not yet earned. Idempotent: re-invoking with unchanged
// stats creates nothing. Returns the newly earned badges in catalog order.
func (s *AchievementService) Award(ctx context.Context, username string, tasks []model.Task) ([]model.Badge, error) {
	uname := model.NormalizeUsername(username)
	if uname == "" {
		return nil, nil
	}
	stats := s.CompletionStats(uname, tasks)

	earned, err := s.earnedSlugs(ctx, uname)
	if err != nil {
		return nil, err
	}
	catalog, err := s.catalogBySlug(ctx)
	if err != nil {
		return nil, err
	}

	var awarded []model.Badge
	for _, slug := range model.BadgeProgressOrder {
		if _, already := earned[slug]; already {
			continue
		}
		rule, ok := model.RuleFor(slug)
		if !ok || metricValue(stats, rule.Metric) < rule.Target {
			continue
		}
		created, err := s.badges.AddUserBadge(ctx, uname, slug, s.now())
		if err != nil {
			return awarded, err
		}
		if created {
			awarded = append(awarded, catalog[slug])
		}
	}
	return awarded, nil
}

// BadgeProgress describes the user's progress toward the first unearned
// badge in the fixed catalog order.
type BadgeProgress struct {
	Badge     model.Badge
	Rule      model.BadgeRule
	Current   int
	Remaining int
}

// NextBadgeProgress returns progress for the first unearned badge only, or
// nil when every badge has been earned.
func (s *AchievementService) NextBadgeProgress(ctx context.Context, username string, tasks []model.Task) (*BadgeProgress, error) {
	uname := model.NormalizeUsername(username)
	earned, err := s.earnedSlugs(ctx, uname)
	if err != nil {
		return nil, err
	}
	catalog, err := s.catalogBySlug(ctx)
	if err != nil {
		return nil, err
	}

	for _, slug := range model.BadgeProgressOrder {
		if _, already := earned[slug]; already {
			continue
		}
		rule, ok := model.RuleFor(slug)
		if !ok {
			continue
		}
		stats := s.CompletionStats(uname, tasks)
		current := metricValue(stats, rule.Metric)
		remaining := rule.Target - current
		if remaining < 0 {
			remaining = 0
		}
		return &BadgeProgress{
			Badge:     catalog[slug],
			Rule:      rule,
			Current:   current,
			Remaining: remaining,
		}, nil
	}
	return nil, nil
}

// RefreshUserStats updates the user's cached display counters from freshly
// computed stats. The cache is write-only for this engine.
func (s *AchievementService) RefreshUserStats(ctx context.Context, username string, stats CompletionStats) error {
	uname := model.NormalizeUsername(username)
	users, err := s.users.Load(ctx)
	if err != nil {
		return err
	}
	changed := false
	for i, user := range users {
		if model.NormalizeUsername(user.Username) != uname {
			continue
		}
		if user.TotalTasksCompleted != stats.CompletedCount || user.StreakCount != stats.CurrentStreak {
			users[i].TotalTasksCompleted = stats.CompletedCount
			users[i].StreakCount = stats.CurrentStreak
			changed = true
		}
		break
	}
	if !changed {
		return nil
	}
	return s.users.Save(ctx, users)
}

func (s *AchievementService) earnedSlugs(ctx context.Context, username string) (map[string]struct{}, error) {
	links, err := s.badges.ListUserBadges(ctx, username)
	if err != nil {
		return nil, err
	}
	earned := make(map[string]struct{}, len(links))
	for _, link := range links {
		earned[link.BadgeSlug] = struct{}{}
	}
	return earned, nil
}

func (s *AchievementService) catalogBySlug(ctx context.Context) (map[string]model.Badge, error) {
	badges, err := s.badges.ListBadges(ctx)
	if err != nil {
		return nil, err
	}
	catalog := make(map[string]model.Badge, len(badges))
	for _, badge := range badges {
		catalog[badge.Slug] = badge
	}
	return catalog, nil
}

package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"crewtrack/internal/model"
	"crewtrack/internal/repository"
	"crewtrack/internal/service"
)

// Service runs the periodic notification passes: resolve preferences,
// collect jobs, merge per recipient, dispatch.
type Service struct {
	tasks        repository.TaskStore
	users        repository.UserStore
	prefs        repository.PrefsStore
	achievements *service.AchievementService
	dispatcher   *Dispatcher
	now          service.Clock
}

func NewService(stores *repository.Stores, achievements *service.AchievementService, dispatcher *Dispatcher, now service.Clock) *Service {
	return &Service{
		tasks:        stores.Tasks,
		users:        stores.Users,
		prefs:        stores.Prefs,
		achievements: achievements,
		dispatcher:   dispatcher,
		now:          now,
	}
}

// snapshot is one consistent read of everything a collector pass needs.
type snapshot struct {
	users []model.User
	tasks []model.Task
	prefs map[string]model.Preferences
}

func (s *Service) takeSnapshot(ctx context.Context) (*snapshot, error) {
	users, err := s.users.Load(ctx)
	if err != nil {
		return nil, err
	}
	tasks, err := s.tasks.Load(ctx)
	if err != nil {
		return nil, err
	}
	prefs, err := s.LoadPreferences(ctx)
	if err != nil {
		return nil, err
	}
	return &snapshot{users: users, tasks: tasks, prefs: prefs}, nil
}

// LoadPreferences returns every user's stored settings resolved over the
// defaults. Users without stored settings are absent from the map; callers
// fall back to DefaultPreferences.
func (s *Service) LoadPreferences(ctx context.Context) (map[string]model.Preferences, error) {
	stored, err := s.prefs.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	resolved := make(map[string]model.Preferences, len(stored))
	for username, settings := range stored {
		resolved[username] = settings.Resolve()
	}
	return resolved, nil
}

func (snap *snapshot) preferencesFor(user model.User) model.Preferences {
	if p, ok := snap.prefs[model.NormalizeUsername(user.Username)]; ok {
		return p
	}
	return model.DefaultPreferences()
}

// visibleOpenTasks lists the user's open tasks under the plain visibility
// rule. Collectors never apply the manager bypass; a manager's digest covers
// their own tasks only.
func visibleOpenTasks(user model.User, tasks []model.Task) []model.Task {
	var open []model.Task
	for _, task := range tasks {
		if task.Done {
			continue
		}
		if service.TaskVisibleTo(task, user) {
			open = append(open, task)
		}
	}
	return open
}

// CollectOverdueJobs emits one job per user holding visible open tasks whose
// due date precedes the run date. Users with none produce no job.
func (s *Service) CollectOverdueJobs(ctx context.Context, today time.Time) ([]Job, error) {
	snap, err := s.takeSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	return s.overdueJobs(snap, today), nil
}

func (s *Service) overdueJobs(snap *snapshot, today time.Time) []Job {
	var jobs []Job
	for _, user := range snap.users {
		p := snap.preferencesFor(user)
		if !p.OverdueEnabled || p.Frequency == model.FrequencyOff {
			continue
		}
		var overdue []model.Task
		for _, task := range visibleOpenTasks(user, snap.tasks) {
			if due, ok := model.ParseDate(task.DueRef()); ok && due.Before(today) {
				overdue = append(overdue, task)
			}
		}
		if len(overdue) == 0 {
			continue
		}
		jobs = append(jobs, Job{
			Recipient: newRecipient(user),
			Prefs:     p,
			Messages:  []Message{overdueMessage(overdue)},
		})
	}
	return jobs
}

// CollectDailySummaryJobs emits the digest job for users whose cadence
// matches the run date: daily fires every run, weekly only on the user's
// configured weekday (0 = Monday). Users with nothing due produce no job.
func (s *Service) CollectDailySummaryJobs(ctx context.Context, today time.Time) ([]Job, error) {
	snap, err := s.takeSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	return s.summaryJobs(snap, today), nil
}

func (s *Service) summaryJobs(snap *snapshot, today time.Time) []Job {
	weekday := (int(today.Weekday()) + 6) % 7
	var jobs []Job
	for _, user := range snap.users {
		p := snap.preferencesFor(user)
		if !p.SummaryEnabled || p.Frequency == model.FrequencyOff {
			continue
		}
		if p.Frequency == model.FrequencyWeekly && weekday != p.WeeklyDay {
			continue
		}
		var dueToday []model.Task
		for _, task := range visibleOpenTasks(user, snap.tasks) {
			if due, ok := model.ParseDate(task.DueRef()); ok && due.Equal(today) {
				dueToday = append(dueToday, task)
			}
		}
		if len(dueToday) == 0 {
			continue
		}
		jobs = append(jobs, Job{
			Recipient: newRecipient(user),
			Prefs:     p,
			Messages:  []Message{summaryMessage(dueToday, today)},
		})
	}
	return jobs
}

// CollectBadgeProgressJobs emits one job per user describing the next
// unearned badge, only while something remains to be done for it.
// frequency=off mutes this collector like the others.
func (s *Service) CollectBadgeProgressJobs(ctx context.Context) ([]Job, error) {
	snap, err := s.takeSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	return s.badgeJobs(ctx, snap)
}

func (s *Service) badgeJobs(ctx context.Context, snap *snapshot) ([]Job, error) {
	var jobs []Job
	for _, user := range snap.users {
		p := snap.preferencesFor(user)
		if !p.BadgeEnabled || p.Frequency == model.FrequencyOff {
			continue
		}
		progress, err := s.achievements.NextBadgeProgress(ctx, user.Username, snap.tasks)
		if err != nil {
			return nil, err
		}
		if progress == nil || progress.Remaining <= 0 {
			continue
		}

		stats := s.achievements.CompletionStats(user.Username, snap.tasks)
		if err := s.achievements.RefreshUserStats(ctx, user.Username, stats); err != nil {
			slog.Warn("refresh user stats failed", "user", user.Username, "error", err)
		}

		jobs = append(jobs, Job{
			Recipient: newRecipient(user),
			Prefs:     p,
			Messages:  []Message{badgeMessage(*progress)},
		})
	}
	return jobs, nil
}

// RunOverduePass collects and dispatches overdue jobs for one trigger.
func (s *Service) RunOverduePass(ctx context.Context) error {
	today := model.DateOf(s.now())
	jobs, err := s.CollectOverdueJobs(ctx, today)
	if err != nil {
		return fmt.Errorf("collect overdue jobs: %w", err)
	}
	s.deliver(ctx, jobs)
	return nil
}

// RunSummaryPass collects summary and badge-progress jobs, merges them per
// recipient, and dispatches the batches.
func (s *Service) RunSummaryPass(ctx context.Context) error {
	snap, err := s.takeSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("collect summary jobs: %w", err)
	}
	today := model.DateOf(s.now())
	summary := s.summaryJobs(snap, today)
	badges, err := s.badgeJobs(ctx, snap)
	if err != nil {
		return fmt.Errorf("collect badge jobs: %w", err)
	}
	s.deliver(ctx, MergeJobs(summary, badges))
	return nil
}

// deliver dispatches each batch independently. Per-recipient failures are
// logged and never stall the rest of the run.
func (s *Service) deliver(ctx context.Context, jobs []Job) {
	for _, job := range jobs {
		if s.dispatcher.Dispatch(ctx, job) {
			slog.Info("notification delivered",
				"user", job.Recipient.Username,
				"messages", len(job.Messages))
		} else {
			slog.Warn("notification not delivered on any channel",
				"user", job.Recipient.Username,
				"messages", len(job.Messages))
		}
	}
}

func overdueMessage(tasks []model.Task) Message {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You have %d overdue task(s):\n", len(tasks))
	for _, task := range tasks {
		fmt.Fprintf(&sb, "- %s (due %s)\n", task.Text, task.DueRef())
	}
	return Message{
		Category: CategoryOverdue,
		Subject:  "Overdue tasks",
		Body:     strings.TrimSpace(sb.String()),
	}
}

func summaryMessage(dueToday []model.Task, today time.Time) Message {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Summary for %s\n", model.FormatDate(today))
	fmt.Fprintf(&sb, "%d task(s) due today:\n", len(dueToday))
	for _, task := range dueToday {
		fmt.Fprintf(&sb, "- %s\n", task.Text)
	}
	return Message{
		Category: CategorySummary,
		Subject:  "Daily summary",
		Body:     strings.TrimSpace(sb.String()),
	}
}

func badgeMessage(progress service.BadgeProgress) Message {
	body := fmt.Sprintf("%d more to earn %s (%s).",
		progress.Remaining, progress.Badge.Name, progress.Rule.Label)
	return Message{
		Category: CategoryBadge,
		Subject:  "Badge progress",
		Body:     body,
	}
}

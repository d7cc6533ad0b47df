package service

import (
	"context"
	"strings"
	"time"

	"crewtrack/internal/model"
	"crewtrack/internal/repository"
)

// Clock supplies the current time. Production pins it to the configured
// reference timezone so "today" is unambiguous across processes.
type Clock func() time.Time

// TaskInput represents data required to create or edit a task.
type TaskInput struct {
	Text      string
	Priority  string
	Notes     string
	Tags      string
	DueDate   string
	Recurring string
	Assignee  string
}

// TaskVisibleTo reports whether a task is visible to a user: owner match,
// assignee username match, or, for records without a username, a
// case-insensitive match between the stored label and the user's display name.
func TaskVisibleTo(task model.Task, user model.User) bool {
	uname := model.NormalizeUsername(user.Username)
	if uname != "" && task.OwnerUsername() == uname {
		return true
	}
	if assignee := model.NormalizeUsername(task.AssignedUsername); assignee != "" {
		return assignee == uname
	}
	label := strings.TrimSpace(task.AssignedTo)
	if label == "" {
		return false
	}
	return strings.EqualFold(label, strings.TrimSpace(user.EffectiveDisplayName()))
}

// TaskService wraps task list reads and mutations. Tasks are addressed by
// their position in the full stored list; a mutation on an out-of-range or
// invisible position is reported as denied, never as an error.
type TaskService struct {
	tasks        repository.TaskStore
	users        repository.UserStore
	achievements *AchievementService
	now          Clock
}

func NewTaskService(tasks repository.TaskStore, users repository.UserStore, achievements *AchievementService, now Clock) *TaskService {
	return &TaskService{tasks: tasks, users: users, achievements: achievements, now: now}
}

// VisibleTask pairs a task with its position in the stored list, which stays
// valid as a mutation handle until the list changes.
type VisibleTask struct {
	Index int
	Task  model.Task
}

// List returns the actor's visible tasks with derived flags refreshed.
// Managers see every task.
func (s *TaskService) List(ctx context.Context, actor model.User) ([]VisibleTask, error) {
	tasks, err := s.tasks.Load(ctx)
	if err != nil {
		return nil, err
	}
	today := model.DateOf(s.now())
	var visible []VisibleTask
	for i, task := range tasks {
		if !actor.IsManager() && !TaskVisibleTo(task, actor) {
			continue
		}
		refreshDerivedFlags(&task, today)
		visible = append(visible, VisibleTask{Index: i, Task: task})
	}
	return visible, nil
}

// refreshDerivedFlags recomputes overdue/due_today against the given date.
// These are listing conveniences, never persisted truth.
func refreshDerivedFlags(task *model.Task, today time.Time) {
	task.Overdue = false
	task.DueToday = false
	due, ok := model.ParseDate(task.DueRef())
	if !ok || task.Done {
		return
	}
	task.Overdue = due.Before(today)
	task.DueToday = due.Equal(today)
}

// Add creates a task owned by the actor and appends it to the list.
func (s *TaskService) Add(ctx context.Context, actor model.User, input TaskInput) (model.Task, error) {
	tasks, err := s.tasks.Load(ctx)
	if err != nil {
		return model.Task{}, err
	}
	users, err := s.users.Load(ctx)
	if err != nil {
		return model.Task{}, err
	}

	task := model.Task{
		Text:      strings.TrimSpace(input.Text),
		Priority:  normalizePriority(input.Priority),
		Notes:     strings.TrimSpace(input.Notes),
		Tags:      model.ParseTags(input.Tags),
		DueDate:   normalizeDueDate(input.DueDate),
		Recurring: model.ParseRecurrence(input.Recurring),
		Owner:     model.NormalizeUsername(actor.Username),
		CreatedBy: model.NormalizeUsername(actor.Username),
		CreatedAt: model.FormatMinutes(s.now()),
	}
	task.AssignedTo, task.AssignedUsername = resolveAssignee(users, input.Assignee)

	tasks = append(tasks, task)
	if err := s.tasks.Save(ctx, tasks); err != nil {
		return model.Task{}, err
	}
	return task, nil
}

// Edit updates an existing task. Reassignment is a manager-only change;
// for everyone else the assignee input is ignored.
func (s *TaskService) Edit(ctx context.Context, actor model.User, index int, input TaskInput) (model.Task, bool, error) {
	tasks, err := s.tasks.Load(ctx)
	if err != nil {
		return model.Task{}, false, err
	}
	if !s.mayOperate(tasks, actor, index) {
		return model.Task{}, false, nil
	}

	task := tasks[index]
	if text := strings.TrimSpace(input.Text); text != "" {
		task.Text = text
	}
	task.Priority = normalizePriority(input.Priority)
	task.Notes = strings.TrimSpace(input.Notes)
	task.Tags = model.ParseTags(input.Tags)
	task.DueDate = normalizeDueDate(input.DueDate)
	task.LegacyDue = ""
	task.Recurring = model.ParseRecurrence(input.Recurring)
	if actor.IsManager() {
		users, err := s.users.Load(ctx)
		if err != nil {
			return model.Task{}, false, err
		}
		task.AssignedTo, task.AssignedUsername = resolveAssignee(users, input.Assignee)
	}

	tasks[index] = task
	if err := s.tasks.Save(ctx, tasks); err != nil {
		return model.Task{}, false, err
	}
	return task, true, nil
}

// ToggleResult reports the outcome of a completion toggle.
type ToggleResult struct {
	Updated bool
	Task    model.Task
	// Next holds the generated sibling when completing a recurring task
	// with a parseable due date.
	Next *model.Task
	// Awarded lists badges newly earned by the completion.
	Awarded []model.Badge
}

// Toggle flips a task's completion state. Completing sets completed_at and
// completed_by; un-completing clears both. Completing a recurring task with
// a parseable due date appends a sibling with the due date advanced; the
// completed task itself is retained unchanged.
func (s *TaskService) Toggle(ctx context.Context, actor model.User, index int) (ToggleResult, error) {
	tasks, err := s.tasks.Load(ctx)
	if err != nil {
		return ToggleResult{}, err
	}
	if !s.mayOperate(tasks, actor, index) {
		return ToggleResult{}, nil
	}

	task := tasks[index]
	result := ToggleResult{Updated: true}

	if task.Done {
		task.Done = false
		task.CompletedAt = ""
		task.CompletedBy = ""
		tasks[index] = task
	} else {
		task.Done = true
		task.CompletedAt = model.FormatMinutes(s.now())
		task.CompletedBy = model.NormalizeUsername(actor.Username)
		tasks[index] = task

		if next, ok := nextOccurrence(task); ok {
			tasks = append(tasks, next)
			result.Next = &next
		}

		awarded, err := s.achievements.Award(ctx, actor.Username, tasks)
		if err != nil {
			return ToggleResult{}, err
		}
		result.Awarded = awarded
	}

	if err := s.tasks.Save(ctx, tasks); err != nil {
		return ToggleResult{}, err
	}
	result.Task = task
	return result, nil
}

// Remove deletes a task from the list. Same authorization rule as Toggle.
func (s *TaskService) Remove(ctx context.Context, actor model.User, index int) (bool, error) {
	tasks, err := s.tasks.Load(ctx)
	if err != nil {
		return false, err
	}
	if !s.mayOperate(tasks, actor, index) {
		return false, nil
	}
	tasks = append(tasks[:index], tasks[index+1:]...)
	if err := s.tasks.Save(ctx, tasks); err != nil {
		return false, err
	}
	return true, nil
}

func (s *TaskService) mayOperate(tasks []model.Task, actor model.User, index int) bool {
	if index < 0 || index >= len(tasks) {
		return false
	}
	return actor.IsManager() || TaskVisibleTo(tasks[index], actor)
}

// nextOccurrence builds the recurring sibling for a just-completed task.
func nextOccurrence(task model.Task) (model.Task, bool) {
	if task.Recurring == model.RecurNone {
		return model.Task{}, false
	}
	due, ok := model.ParseDate(task.DueRef())
	if !ok {
		return model.Task{}, false
	}
	nextDue, ok := model.NextDueDate(due, task.Recurring)
	if !ok {
		return model.Task{}, false
	}

	next := task
	next.Done = false
	next.CompletedAt = ""
	next.CompletedBy = ""
	next.DueDate = model.FormatDate(nextDue)
	next.LegacyDue = ""
	next.Overdue = false
	next.DueToday = false
	next.Extra = nil
	return next, true
}

// resolveAssignee resolves free-form assignee input against the user
// directory. A known username or display name yields the canonical username
// plus display label; unknown non-empty input keeps a title-cased label with
// no username; empty input clears the assignment.
func resolveAssignee(users []model.User, raw string) (label, username string) {
	input := strings.TrimSpace(raw)
	if input == "" {
		return "", ""
	}
	if user, ok := model.FindUser(users, input); ok {
		return user.EffectiveDisplayName(), user.Username
	}
	for _, user := range users {
		if strings.EqualFold(strings.TrimSpace(user.DisplayName), input) {
			return user.EffectiveDisplayName(), model.NormalizeUsername(user.Username)
		}
	}
	return model.TitleCase(input), ""
}

func normalizePriority(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "high":
		return model.PriorityHigh
	case "low":
		return model.PriorityLow
	}
	return model.PriorityMedium
}

// normalizeDueDate keeps only inputs that parse as a calendar date.
func normalizeDueDate(raw string) string {
	due, ok := model.ParseDate(raw)
	if !ok {
		return ""
	}
	return model.FormatDate(due)
}

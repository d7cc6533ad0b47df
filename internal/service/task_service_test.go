package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crewtrack/internal/model"
	"crewtrack/internal/repository"
)

func newTaskFixture(t *testing.T, clock Clock) (*TaskService, *repository.Stores) {
	t.Helper()
	stores := repository.NewStores(t.TempDir(), nil)
	require.NoError(t, stores.Badges.EnsureCatalog(context.Background()))
	achievements := NewAchievementService(stores.Users, stores.Badges, clock)
	return NewTaskService(stores.Tasks, stores.Users, achievements, clock), stores
}

func seedTasks(t *testing.T, stores *repository.Stores, tasks ...model.Task) {
	t.Helper()
	require.NoError(t, stores.Tasks.Save(context.Background(), tasks))
}

var (
	alice   = model.User{Username: "alice", DisplayName: "Alice"}
	nick    = model.User{Username: "nick", DisplayName: "Nick"}
	manager = model.User{Username: "meg", DisplayName: "Meg", Role: "manager"}
)

func TestTaskVisibleTo(t *testing.T) {
	owned := model.Task{Text: "mine", Owner: "alice"}
	assigned := model.Task{Text: "theirs", Owner: "bob", AssignedUsername: "alice"}
	legacy := model.Task{Text: "old", AssignedTo: "Nick"}

	assert.True(t, TaskVisibleTo(owned, alice))
	assert.True(t, TaskVisibleTo(assigned, alice))
	assert.False(t, TaskVisibleTo(owned, nick))

	// Legacy label match applies only to records without a username.
	assert.True(t, TaskVisibleTo(legacy, nick))
	assert.False(t, TaskVisibleTo(legacy, alice))
	withUsername := legacy
	withUsername.AssignedUsername = "alice"
	assert.False(t, TaskVisibleTo(withUsername, nick))
}

func TestToggleSetsAndClearsCompletionMetadata(t *testing.T) {
	svc, stores := newTaskFixture(t, fixedClock(t, "2024-03-04T17:30"))
	ctx := context.Background()
	seedTasks(t, stores, model.Task{Text: "review", Owner: "alice"})

	result, err := svc.Toggle(ctx, alice, 0)
	require.NoError(t, err)
	require.True(t, result.Updated)
	assert.True(t, result.Task.Done)
	assert.Equal(t, "2024-03-04T17:30", result.Task.CompletedAt)
	assert.Equal(t, "alice", result.Task.CompletedBy)

	result, err = svc.Toggle(ctx, alice, 0)
	require.NoError(t, err)
	require.True(t, result.Updated)
	assert.False(t, result.Task.Done)
	assert.Empty(t, result.Task.CompletedAt)
	assert.Empty(t, result.Task.CompletedBy)
}

func TestToggleRecurringAppendsSibling(t *testing.T) {
	svc, stores := newTaskFixture(t, fixedClock(t, "2024-01-01T09:00"))
	ctx := context.Background()
	seedTasks(t, stores, model.Task{
		Text: "standup notes", Owner: "alice",
		DueDate: "2024-01-01", Recurring: model.RecurWeekly,
	})

	result, err := svc.Toggle(ctx, alice, 0)
	require.NoError(t, err)
	require.True(t, result.Updated)
	require.NotNil(t, result.Next)
	assert.Equal(t, "2024-01-08", result.Next.DueDate)
	assert.False(t, result.Next.Done)
	assert.Empty(t, result.Next.CompletedAt)

	tasks, err := stores.Tasks.Load(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	// History stays: the completed occurrence is retained unchanged.
	assert.True(t, tasks[0].Done)
	assert.Equal(t, "2024-01-01", tasks[0].DueRef())
	assert.False(t, tasks[1].Done)
}

func TestToggleMonthlyClampsToMonthEnd(t *testing.T) {
	svc, stores := newTaskFixture(t, fixedClock(t, "2024-01-31T09:00"))
	ctx := context.Background()
	seedTasks(t, stores, model.Task{
		Text: "invoices", Owner: "alice",
		DueDate: "2024-01-31", Recurring: model.RecurMonthly,
	})

	result, err := svc.Toggle(ctx, alice, 0)
	require.NoError(t, err)
	require.NotNil(t, result.Next)
	assert.Equal(t, "2024-02-29", result.Next.DueDate)
}

func TestToggleWithoutDueDateSpawnsNoSibling(t *testing.T) {
	svc, stores := newTaskFixture(t, fixedClock(t, "2024-01-01T09:00"))
	ctx := context.Background()
	seedTasks(t, stores, model.Task{Text: "chore", Owner: "alice", Recurring: model.RecurDaily})

	result, err := svc.Toggle(ctx, alice, 0)
	require.NoError(t, err)
	require.True(t, result.Updated)
	assert.Nil(t, result.Next)

	tasks, err := stores.Tasks.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestToggleAwardsBadges(t *testing.T) {
	svc, stores := newTaskFixture(t, fixedClock(t, "2024-01-01T09:00"))
	ctx := context.Background()
	seedTasks(t, stores, model.Task{Text: "first ever", Owner: "alice"})

	result, err := svc.Toggle(ctx, alice, 0)
	require.NoError(t, err)
	require.Len(t, result.Awarded, 1)
	assert.Equal(t, model.BadgeFirstStep, result.Awarded[0].Slug)
}

func TestMutationsDeniedForUnauthorizedOrOutOfRange(t *testing.T) {
	svc, stores := newTaskFixture(t, fixedClock(t, "2024-01-01T09:00"))
	ctx := context.Background()
	seedTasks(t, stores, model.Task{Text: "private", Owner: "alice"})

	result, err := svc.Toggle(ctx, nick, 0)
	require.NoError(t, err)
	assert.False(t, result.Updated)

	result, err = svc.Toggle(ctx, alice, 5)
	require.NoError(t, err)
	assert.False(t, result.Updated)

	removed, err := svc.Remove(ctx, nick, 0)
	require.NoError(t, err)
	assert.False(t, removed)

	_, updated, err := svc.Edit(ctx, nick, 0, TaskInput{Text: "hijacked"})
	require.NoError(t, err)
	assert.False(t, updated)

	tasks, err := stores.Tasks.Load(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "private", tasks[0].Text)
	assert.False(t, tasks[0].Done)
}

func TestManagerOperatesOnAnyTask(t *testing.T) {
	svc, stores := newTaskFixture(t, fixedClock(t, "2024-01-01T09:00"))
	ctx := context.Background()
	seedTasks(t, stores, model.Task{Text: "private", Owner: "alice"})

	result, err := svc.Toggle(ctx, manager, 0)
	require.NoError(t, err)
	assert.True(t, result.Updated)
	assert.Equal(t, "meg", result.Task.CompletedBy)
}

func TestListComputesDerivedFlags(t *testing.T) {
	svc, stores := newTaskFixture(t, fixedClock(t, "2024-03-10T08:00"))
	ctx := context.Background()
	seedTasks(t, stores,
		model.Task{Text: "late", Owner: "alice", DueDate: "2024-03-09"},
		model.Task{Text: "today", Owner: "alice", DueDate: "2024-03-10"},
		model.Task{Text: "later", Owner: "alice", DueDate: "2024-03-11"},
		model.Task{Text: "done late", Owner: "alice", DueDate: "2024-03-01", Done: true, CompletedAt: "2024-03-02T10:00"},
		model.Task{Text: "hidden", Owner: "bob"},
	)

	visible, err := svc.List(ctx, alice)
	require.NoError(t, err)
	require.Len(t, visible, 4)
	assert.True(t, visible[0].Task.Overdue)
	assert.False(t, visible[0].Task.DueToday)
	assert.True(t, visible[1].Task.DueToday)
	assert.False(t, visible[1].Task.Overdue)
	assert.False(t, visible[2].Task.Overdue)
	// Completed tasks are never flagged overdue.
	assert.False(t, visible[3].Task.Overdue)

	all, err := svc.List(ctx, manager)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestAddResolvesAssignee(t *testing.T) {
	svc, stores := newTaskFixture(t, fixedClock(t, "2024-01-01T09:00"))
	ctx := context.Background()
	require.NoError(t, stores.Users.Save(ctx, []model.User{nick, alice}))

	task, err := svc.Add(ctx, alice, TaskInput{Text: "pair review", Assignee: "Nick", Tags: "review, pairing"})
	require.NoError(t, err)
	assert.Equal(t, "nick", task.AssignedUsername)
	assert.Equal(t, "Nick", task.AssignedTo)
	assert.Equal(t, "alice", task.Owner)
	assert.Equal(t, model.TagList{"review", "pairing"}, task.Tags)
	assert.Equal(t, "2024-01-01T09:00", task.CreatedAt)

	// Unknown assignees keep a title-cased label with no username.
	task, err = svc.Add(ctx, alice, TaskInput{Text: "external", Assignee: "contractor"})
	require.NoError(t, err)
	assert.Empty(t, task.AssignedUsername)
	assert.Equal(t, "Contractor", task.AssignedTo)

	task, err = svc.Add(ctx, alice, TaskInput{Text: "external", Assignee: "nick smith"})
	require.NoError(t, err)
	assert.Empty(t, task.AssignedUsername)
	assert.Equal(t, "Nick Smith", task.AssignedTo)
}

func TestEditReassignmentIsManagerOnly(t *testing.T) {
	svc, stores := newTaskFixture(t, fixedClock(t, "2024-01-01T09:00"))
	ctx := context.Background()
	require.NoError(t, stores.Users.Save(ctx, []model.User{nick, alice}))
	seedTasks(t, stores, model.Task{Text: "handoff", Owner: "alice", AssignedUsername: "alice", AssignedTo: "Alice"})

	task, updated, err := svc.Edit(ctx, alice, 0, TaskInput{Text: "handoff", Assignee: "nick"})
	require.NoError(t, err)
	require.True(t, updated)
	assert.Equal(t, "alice", task.AssignedUsername)

	task, updated, err = svc.Edit(ctx, manager, 0, TaskInput{Text: "handoff", Assignee: "nick"})
	require.NoError(t, err)
	require.True(t, updated)
	assert.Equal(t, "nick", task.AssignedUsername)
}

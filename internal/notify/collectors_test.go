package notify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crewtrack/internal/model"
	"crewtrack/internal/repository"
	"crewtrack/internal/service"
)

func fixedClock(t *testing.T, raw string) service.Clock {
	t.Helper()
	now, ok := model.ParseDateTime(raw)
	require.True(t, ok, "unparseable %q", raw)
	return func() time.Time { return now }
}

func newNotifyFixture(t *testing.T, clock service.Clock, dispatcher *Dispatcher) (*Service, *repository.Stores) {
	t.Helper()
	stores := repository.NewStores(t.TempDir(), nil)
	require.NoError(t, stores.Badges.EnsureCatalog(context.Background()))
	achievements := service.NewAchievementService(stores.Users, stores.Badges, clock)
	return NewService(stores, achievements, dispatcher, clock), stores
}

func TestMergeJobs(t *testing.T) {
	a := Job{Recipient: Recipient{Username: "alice"}, Messages: []Message{{Category: CategorySummary}}}
	b := Job{Recipient: Recipient{Username: "bob"}, Messages: []Message{{Category: CategorySummary}}}
	aBadge := Job{Recipient: Recipient{Username: "alice"}, Messages: []Message{{Category: CategoryBadge}}}

	merged := MergeJobs([]Job{a, b}, []Job{aBadge})
	require.Len(t, merged, 2)
	assert.Equal(t, "alice", merged[0].Recipient.Username)
	assert.Len(t, merged[0].Messages, 2)
	assert.Len(t, merged[1].Messages, 1)
}

func TestCollectOverdueJobs(t *testing.T) {
	clock := fixedClock(t, "2024-03-10T08:00")
	svc, stores := newNotifyFixture(t, clock, NewDispatcher())
	ctx := context.Background()

	require.NoError(t, stores.Users.Save(ctx, []model.User{
		{Username: "alice", Email: "alice@example.com"},
		{Username: "bob", Email: "bob@example.com"},
		{Username: "carol", Email: "carol@example.com"},
	}))
	require.NoError(t, stores.Tasks.Save(ctx, []model.Task{
		{Text: "late", Owner: "alice", DueDate: "2024-03-09"},
		{Text: "on time", Owner: "alice", DueDate: "2024-03-10"},
		{Text: "also late", Owner: "carol", DueDate: "2024-03-01"},
	}))
	// Carol has overdue notifications switched off.
	off := false
	require.NoError(t, stores.Prefs.SaveNotificationSettings(ctx, "carol", model.NotificationSettings{
		OverdueEnabled: &off,
	}))

	jobs, err := svc.CollectOverdueJobs(ctx, model.DateOf(clock()))
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "alice", jobs[0].Recipient.Username)
	require.Len(t, jobs[0].Messages, 1)
	assert.Equal(t, CategoryOverdue, jobs[0].Messages[0].Category)
	assert.Contains(t, jobs[0].Messages[0].Body, "late")
	assert.NotContains(t, jobs[0].Messages[0].Body, "on time")
}

func TestCollectSummaryJobsWeeklyCadence(t *testing.T) {
	// 2024-01-01 is a Monday, weekday 0 in the stored convention.
	clock := fixedClock(t, "2024-01-01T07:00")
	svc, stores := newNotifyFixture(t, clock, NewDispatcher())
	ctx := context.Background()

	require.NoError(t, stores.Users.Save(ctx, []model.User{
		{Username: "alice"}, {Username: "bob"}, {Username: "carol"},
	}))
	require.NoError(t, stores.Tasks.Save(ctx, []model.Task{
		{Text: "kickoff", Owner: "alice", DueDate: "2024-01-01"},
		{Text: "retro notes", Owner: "bob", DueDate: "2024-01-01"},
		{Text: "deploy", Owner: "carol", DueDate: "2024-01-01"},
	}))

	monday, tuesday := 0, 1
	require.NoError(t, stores.Prefs.SaveNotificationSettings(ctx, "alice", model.NotificationSettings{
		Frequency: model.FrequencyWeekly, WeeklyDay: &monday,
	}))
	require.NoError(t, stores.Prefs.SaveNotificationSettings(ctx, "bob", model.NotificationSettings{
		Frequency: model.FrequencyWeekly, WeeklyDay: &tuesday,
	}))

	jobs, err := svc.CollectDailySummaryJobs(ctx, model.DateOf(clock()))
	require.NoError(t, err)

	byUser := make(map[string]Job)
	for _, job := range jobs {
		byUser[job.Recipient.Username] = job
	}
	// Weekly Monday matches, weekly Tuesday does not, default daily always fires.
	assert.Contains(t, byUser, "alice")
	assert.NotContains(t, byUser, "bob")
	assert.Contains(t, byUser, "carol")

	assert.Contains(t, byUser["alice"].Messages[0].Body, "kickoff")
	assert.Contains(t, byUser["carol"].Messages[0].Body, "deploy")
}

func TestCollectSummaryJobsSkipsUsersWithNothingDue(t *testing.T) {
	clock := fixedClock(t, "2024-03-10T07:00")
	svc, stores := newNotifyFixture(t, clock, NewDispatcher())
	ctx := context.Background()

	require.NoError(t, stores.Users.Save(ctx, []model.User{
		{Username: "alice"}, {Username: "bob"},
	}))
	// Alice has an open task, but not one due on the run date.
	require.NoError(t, stores.Tasks.Save(ctx, []model.Task{
		{Text: "later", Owner: "alice", DueDate: "2024-03-12"},
	}))

	jobs, err := svc.CollectDailySummaryJobs(ctx, model.DateOf(clock()))
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestCollectBadgeProgressJobs(t *testing.T) {
	clock := fixedClock(t, "2024-01-02T07:00")
	svc, stores := newNotifyFixture(t, clock, NewDispatcher())
	ctx := context.Background()

	off := false
	require.NoError(t, stores.Users.Save(ctx, []model.User{
		{Username: "alice"}, {Username: "bob"},
	}))
	require.NoError(t, stores.Prefs.SaveNotificationSettings(ctx, "bob", model.NotificationSettings{
		BadgeEnabled: &off,
	}))

	jobs, err := svc.CollectBadgeProgressJobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "alice", jobs[0].Recipient.Username)
	assert.Equal(t, CategoryBadge, jobs[0].Messages[0].Category)
	assert.Contains(t, jobs[0].Messages[0].Body, "First Step")
}

func TestCollectBadgeProgressJobsMutedWhenFrequencyOff(t *testing.T) {
	clock := fixedClock(t, "2024-01-02T07:00")
	svc, stores := newNotifyFixture(t, clock, NewDispatcher())
	ctx := context.Background()

	require.NoError(t, stores.Users.Save(ctx, []model.User{{Username: "alice"}}))
	require.NoError(t, stores.Prefs.SaveNotificationSettings(ctx, "alice", model.NotificationSettings{
		Frequency: model.FrequencyOff,
	}))

	jobs, err := svc.CollectBadgeProgressJobs(ctx)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestCollectorsIgnoreManagerBypass(t *testing.T) {
	clock := fixedClock(t, "2024-03-10T08:00")
	svc, stores := newNotifyFixture(t, clock, NewDispatcher())
	ctx := context.Background()

	require.NoError(t, stores.Users.Save(ctx, []model.User{
		{Username: "meg", Role: "manager"},
		{Username: "alice"},
	}))
	require.NoError(t, stores.Tasks.Save(ctx, []model.Task{
		{Text: "late", Owner: "alice", DueDate: "2024-03-01"},
	}))

	jobs, err := svc.CollectOverdueJobs(ctx, model.DateOf(clock()))
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	// The manager gets no digest for other people's tasks.
	assert.Equal(t, "alice", jobs[0].Recipient.Username)
}

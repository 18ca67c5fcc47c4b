package service

import (
	"context"
	"testing"
	"time"

	"studyhub/internal/models"
	"studyhub/internal/repository"
	"studyhub/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAdminService(env *testEnv) (*AdminService, *AuditService, repository.AnalyticsRepository) {
	analytics := repository.NewAnalyticsRepository(env.db)
	audit := NewAuditService(repository.NewAuditLogRepository(env.db), nil)
	admin := NewAdminService(AdminRepos{
		Users:     env.users,
		Topics:    env.topics,
		Posts:     env.posts,
		Messages:  env.messages,
		Sessions:  env.sessions,
		Feedback:  repository.NewFeedbackRepository(env.db),
		Analytics: analytics,
	}, audit)
	return admin, audit, analytics
}

func TestAdminService_Dashboard(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin, _, analytics := newAdminService(env)

	alice := testutil.CreateUser(t, env.db, "alice", false)
	bob := testutil.CreateUser(t, env.db, "bob", false)
	forum := NewForumService(env.topics, env.posts, nil, env.isAdmin)
	topic, err := forum.CreateTopic(ctx, CreateTopicInput{UserID: alice.ID, Title: "Dashboard topic", Content: "body"})
	require.NoError(t, err)
	_, err = forum.CreatePost(ctx, CreatePostInput{UserID: bob.ID, TopicID: topic.ID, Content: "reply"})
	require.NoError(t, err)

	now := time.Now()
	require.NoError(t, analytics.CreateBatch(ctx, []*models.AnalyticsEvent{
		{UserID: &alice.ID, EventType: "page_view", CreatedAt: now},
		{UserID: &alice.ID, EventType: "page_view", CreatedAt: now},
		{UserID: &bob.ID, EventType: "login", CreatedAt: now},
	}))
	require.NoError(t, analytics.UpsertVisitor(ctx, &models.Visitor{VisitorID: "fp-1"}))

	stats, err := admin.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Totals.Users)
	assert.Equal(t, int64(1), stats.Totals.Topics)
	assert.Equal(t, int64(1), stats.Totals.Posts)
	assert.Equal(t, int64(2), stats.NewUsers7d)
	assert.Equal(t, int64(1), stats.VisitorsToday)

	require.Len(t, stats.DailyActiveUsers, dauWindowDays)
	last := stats.DailyActiveUsers[dauWindowDays-1]
	assert.Equal(t, now.Format(time.DateOnly), last.Date)
	assert.Equal(t, 2, last.Count)
	assert.Zero(t, stats.DailyActiveUsers[0].Count)

	counts := map[string]int64{}
	for _, c := range stats.EventsByType {
		counts[c.EventType] = c.Count
	}
	assert.Equal(t, int64(2), counts["page_view"])
	require.NotEmpty(t, stats.TopTopics)
	assert.Equal(t, topic.ID, stats.TopTopics[0].ID)
}

func TestDailyActiveUsers(t *testing.T) {
	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	activity := []repository.UserActivity{
		{UserID: 1, CreatedAt: since.Add(2 * time.Hour)},
		{UserID: 1, CreatedAt: since.Add(3 * time.Hour)},
		{UserID: 2, CreatedAt: since.Add(5 * time.Hour)},
		{UserID: 2, CreatedAt: since.AddDate(0, 0, 2)},
	}

	got := dailyActiveUsers(activity, since, 3)
	assert.Equal(t, []DailyCount{
		{Date: "2026-03-01", Count: 2},
		{Date: "2026-03-02", Count: 0},
		{Date: "2026-03-03", Count: 1},
	}, got)
}

func TestAdminService_Moderation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin, audit, _ := newAdminService(env)

	root := testutil.CreateUser(t, env.db, "root", true)
	target := testutil.CreateUser(t, env.db, "target", false)

	_, err := admin.SetBanned(ctx, root.ID, root.ID, true)
	assertCode(t, err, models.CodeValidation)
	assertCode(t, admin.DeleteUser(ctx, root.ID, root.ID), models.CodeValidation)

	banned, err := admin.SetBanned(ctx, root.ID, target.ID, true)
	require.NoError(t, err)
	assert.True(t, banned.IsBanned)

	promoted, err := admin.SetAdmin(ctx, root.ID, target.ID, true)
	require.NoError(t, err)
	assert.True(t, promoted.IsAdmin)

	_, err = admin.SetBanned(ctx, root.ID, 9999, true)
	assertCode(t, err, models.CodeNotFound)

	require.NoError(t, admin.DeleteUser(ctx, root.ID, target.ID))
	_, err = env.users.GetByID(ctx, target.ID)
	assertCode(t, err, models.CodeNotFound)

	require.NoError(t, audit.Close(ctx))
	logs, total, err := audit.List(ctx, repository.AuditFilter{UserID: root.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	actions := map[string]bool{}
	for _, l := range logs {
		actions[l.Action] = true
		assert.Equal(t, "users", l.ResourceType)
	}
	assert.True(t, actions["user.ban"])
	assert.True(t, actions["user.promote"])
	assert.True(t, actions["user.delete"])
}

package service

import (
	"context"
	"sync"
	"testing"

	"studyhub/internal/models"
	"studyhub/internal/repository"
	"studyhub/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingFeed struct {
	mu     sync.Mutex
	events []string
}

func (f *recordingFeed) Publish(event string, _ any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *recordingFeed) Events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

func TestAnalyticsService_TrackEvent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	feed := &recordingFeed{}
	repo := repository.NewAnalyticsRepository(env.db)
	analytics := NewAnalyticsService(repo, "salt", feed)

	user := testutil.CreateUser(t, env.db, "tracked", false)
	require.NoError(t, analytics.TrackEvent(ctx, TrackEventInput{
		UserID:    &user.ID,
		EventType: "study_room.join",
		Path:      "/rooms/abc",
		Metadata:  map[string]any{"room": "abc"},
		IP:        "203.0.113.7",
	}))

	tests := []struct {
		name string
		in   TrackEventInput
	}{
		{"Bad Type", TrackEventInput{EventType: "Not Valid"}},
		{"Empty Type", TrackEventInput{}},
		{"Long Session", TrackEventInput{EventType: "click", SessionID: string(make([]byte, 65))}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertCode(t, analytics.TrackEvent(ctx, tt.in), models.CodeValidation)
		})
	}

	visitor, err := analytics.RecordVisit(ctx, VisitInput{VisitorID: "fp-1", Path: "/", IP: "203.0.113.7"})
	require.NoError(t, err)
	assert.Equal(t, analytics.HashIP("203.0.113.7"), visitor.IPHash)

	_, err = analytics.RecordVisit(ctx, VisitInput{})
	assertCode(t, err, models.CodeValidation)

	require.NoError(t, analytics.Close(ctx))

	events, total, err := analytics.ListEvents(ctx, repository.EventFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, events, 2)

	joins, _, err := analytics.ListEvents(ctx, repository.EventFilter{EventType: "study_room.join"})
	require.NoError(t, err)
	require.Len(t, joins, 1)
	assert.Equal(t, "abc", joins[0].Metadata["room"])
	assert.NotEqual(t, "203.0.113.7", joins[0].IPHash)

	assert.Equal(t, []string{"analytics", "analytics"}, feed.Events())
}

func TestAnalyticsService_HashIP(t *testing.T) {
	a := NewAnalyticsService(repository.NewAnalyticsRepository(nil), "one", nil)
	b := NewAnalyticsService(repository.NewAnalyticsRepository(nil), "two", nil)

	assert.Empty(t, a.HashIP(""))
	assert.Len(t, a.HashIP("10.0.0.1"), 64)
	assert.Equal(t, a.HashIP("10.0.0.1"), a.HashIP("10.0.0.1"))
	assert.NotEqual(t, a.HashIP("10.0.0.1"), b.HashIP("10.0.0.1"))
}

func TestAuditService_RecordAction(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	feed := &recordingFeed{}
	audit := NewAuditService(repository.NewAuditLogRepository(env.db), feed)
	actor := testutil.CreateUser(t, env.db, "auditor", true)

	audit.RecordAction(ctx, AdminActionInput{
		ActorID:      actor.ID,
		Action:       "settings.update",
		ResourceType: "settings",
		ResourceID:   "announcement",
		Before:       "",
		After:        "Exams",
	})
	audit.RecordAudit(&models.AuditLog{Action: "POST /api/topics", Method: "POST", Path: "/api/topics", Status: 201})
	require.NoError(t, audit.Close(ctx))

	logs, total, err := audit.List(ctx, repository.AuditFilter{Action: "settings.update"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, logs, 1)
	require.NotNil(t, logs[0].UserID)
	assert.Equal(t, actor.ID, *logs[0].UserID)
	assert.Equal(t, "Exams", logs[0].Changes["after"])

	_, total, err = audit.List(ctx, repository.AuditFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, []string{"audit", "audit"}, feed.Events())
}

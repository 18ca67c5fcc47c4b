package repository

import (
	"context"
	"testing"
	"time"

	"studyhub/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingRepository_DefaultsDoNotOverwrite(t *testing.T) {
	db := newTestDB(t)
	repo := NewSettingRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, &models.Setting{Key: models.SettingRegistrationOpen, Value: "false"}))
	require.NoError(t, repo.EnsureDefaults(ctx, []models.Setting{
		{Key: models.SettingRegistrationOpen, Value: "true", IsPublic: true},
		{Key: models.SettingMaintenanceMode, Value: "false", IsPublic: true},
	}))

	s, err := repo.Get(ctx, models.SettingRegistrationOpen)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "false", s.Value)

	all, err := repo.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, repo.Upsert(ctx, &models.Setting{Key: models.SettingRegistrationOpen, Value: "true", IsPublic: true}))
	s, err = repo.Get(ctx, models.SettingRegistrationOpen)
	require.NoError(t, err)
	assert.Equal(t, "true", s.Value)
	assert.True(t, s.IsPublic)

	missing, err := repo.Get(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestTokenBlacklistRepository(t *testing.T) {
	db := newTestDB(t)
	repo := NewTokenBlacklistRepository(db)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, repo.Add(ctx, &models.BlacklistedToken{JTI: "old", ExpiresAt: now.Add(-time.Minute)}))
	require.NoError(t, repo.Add(ctx, &models.BlacklistedToken{JTI: "live", ExpiresAt: now.Add(time.Hour)}))
	require.NoError(t, repo.Add(ctx, &models.BlacklistedToken{JTI: "live", ExpiresAt: now.Add(time.Hour)}))

	ok, err := repo.Exists(ctx, "live")
	require.NoError(t, err)
	assert.True(t, ok)

	purged, err := repo.PurgeExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	ok, err = repo.Exists(ctx, "old")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFeedbackRepository(t *testing.T) {
	db := newTestDB(t)
	repo := NewFeedbackRepository(db)
	ctx := context.Background()

	first := &models.Feedback{Message: "dark mode please", Category: "feature", Status: models.FeedbackOpen}
	require.NoError(t, repo.Create(ctx, first))
	require.NoError(t, repo.Create(ctx, &models.Feedback{Message: "camera freezes", Category: "bug", Status: models.FeedbackOpen}))

	require.NoError(t, repo.UpdateFields(ctx, first.ID, map[string]any{"status": models.FeedbackResolved, "admin_note": "shipped"}))

	open, total, err := repo.List(ctx, models.FeedbackOpen, Page{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "camera freezes", open[0].Message)

	n, err := repo.CountByStatus(ctx, models.FeedbackResolved)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = repo.GetByID(ctx, 404)
	assert.True(t, models.IsCode(err, models.CodeNotFound))
}

func TestStudySessionRepository_Lifecycle(t *testing.T) {
	db := newTestDB(t)
	repo := NewStudySessionRepository(db)
	ctx := context.Background()
	host := seedUser(t, db, "host")

	s := &models.StudySession{RoomID: "room-1", Title: "Linear algebra", Subject: "math", HostID: host.ID, MaxParticipants: 4, IsActive: true}
	require.NoError(t, repo.Create(ctx, s))
	require.NoError(t, repo.Create(ctx, &models.StudySession{RoomID: "room-2", Title: "Essay club", Subject: "english", HostID: host.ID, MaxParticipants: 4, IsActive: true}))

	got, err := repo.GetByRoomID(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, "host", got.Host.Username)

	math, err := repo.ListActive(ctx, "math", Page{})
	require.NoError(t, err)
	assert.Len(t, math, 1)

	require.NoError(t, repo.End(ctx, "room-1", time.Now()))
	assert.True(t, models.IsCode(repo.End(ctx, "room-1", time.Now()), models.CodeNotFound))

	n, err := repo.CountActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

package bootstrap

import (
	"context"
	"testing"

	"studyhub/internal/config"
	"studyhub/internal/models"
	"studyhub/internal/service"
	"studyhub/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestPrepare_DefaultSettings(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()

	require.NoError(t, Prepare(ctx, &config.Config{Env: "test"}, db, Options{}))
	// Idempotent.
	require.NoError(t, Prepare(ctx, &config.Config{Env: "test"}, db, Options{}))

	var count int64
	require.NoError(t, db.Model(&models.Setting{}).Count(&count).Error)
	assert.Equal(t, int64(len(service.DefaultSettings())), count)
}

func TestPrepare_DevRootAdmin(t *testing.T) {
	prev := service.BcryptCost
	service.BcryptCost = bcrypt.MinCost
	t.Cleanup(func() { service.BcryptCost = prev })

	db := testutil.NewDB(t)
	ctx := context.Background()
	cfg := &config.Config{
		Env:              "development",
		DevBootstrapRoot: true,
		DevRootUsername:  "root_admin",
		DevRootEmail:     "Root@Example.com",
	}

	assert.Error(t, Prepare(ctx, cfg, db, Options{}))

	cfg.DevRootPassword = "RootPass123!"
	require.NoError(t, Prepare(ctx, cfg, db, Options{SeedDemo: true}))

	var root models.User
	require.NoError(t, db.Where("email = ?", "root@example.com").First(&root).Error)
	assert.True(t, root.IsAdmin)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(root.Password), []byte("RootPass123!")))

	var topics int64
	require.NoError(t, db.Model(&models.Topic{}).Where("author_id = ?", root.ID).Count(&topics).Error)
	assert.Positive(t, topics)

	// A second run neither duplicates the admin nor reseeds the forum.
	require.NoError(t, Prepare(ctx, cfg, db, Options{SeedDemo: true}))
	var admins, again int64
	require.NoError(t, db.Model(&models.User{}).Where("is_admin = ?", true).Count(&admins).Error)
	require.NoError(t, db.Model(&models.Topic{}).Count(&again).Error)
	assert.Equal(t, int64(1), admins)
	assert.Equal(t, topics, again)
}

func TestPrepare_RootAdminOnlyInDevelopment(t *testing.T) {
	db := testutil.NewDB(t)
	cfg := &config.Config{Env: "production", DevBootstrapRoot: true, DevRootPassword: "x"}
	require.NoError(t, Prepare(context.Background(), cfg, db, Options{}))

	var users int64
	require.NoError(t, db.Model(&models.User{}).Count(&users).Error)
	assert.Zero(t, users)
}

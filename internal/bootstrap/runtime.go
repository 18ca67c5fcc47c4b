// Package bootstrap prepares the database and Redis before a binary starts serving.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"studyhub/internal/cache"
	"studyhub/internal/config"
	"studyhub/internal/database"
	"studyhub/internal/models"
	"studyhub/internal/observability"
	"studyhub/internal/repository"
	"studyhub/internal/seed"
	"studyhub/internal/service"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	// SeedDemo loads the starter forum when the database has no topics yet.
	SeedDemo bool
}

// InitRuntime connects to the database and Redis, then applies Prepare.
func InitRuntime(ctx context.Context, cfg *config.Config, opts Options) (*gorm.DB, *redis.Client, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}

	// A nil client is fine: caching and cross-instance fan-out switch off.
	cache.InitRedis(cfg.RedisURL)
	r := cache.GetClient()

	if err := Prepare(ctx, cfg, db, opts); err != nil {
		return nil, nil, err
	}
	return db, r, nil
}

// Prepare inserts missing default settings, the development root admin and,
// when asked, the demo forum.
func Prepare(ctx context.Context, cfg *config.Config, db *gorm.DB, opts Options) error {
	settings := service.NewSettingsService(repository.NewSettingRepository(db))
	if err := settings.EnsureDefaults(ctx); err != nil {
		return fmt.Errorf("failed to ensure default settings: %w", err)
	}

	if err := ensureDevRootAdmin(ctx, cfg, db); err != nil {
		return fmt.Errorf("failed to bootstrap development root admin: %w", err)
	}

	if opts.SeedDemo {
		if err := seedDemoForum(db); err != nil {
			return fmt.Errorf("failed to seed demo forum: %w", err)
		}
	}
	return nil
}

func ensureDevRootAdmin(ctx context.Context, cfg *config.Config, db *gorm.DB) error {
	if cfg == nil || db == nil {
		return nil
	}
	if !strings.EqualFold(cfg.Env, "development") || !cfg.DevBootstrapRoot {
		return nil
	}

	username := strings.TrimSpace(cfg.DevRootUsername)
	if username == "" {
		username = "studyhub_root"
	}
	email := strings.ToLower(strings.TrimSpace(cfg.DevRootEmail))
	if email == "" {
		email = "root@studyhub.local"
	}
	if cfg.DevRootPassword == "" {
		return errors.New("DEV_ROOT_PASSWORD must be set when DEV_BOOTSTRAP_ROOT is enabled")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(cfg.DevRootPassword), service.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash root password: %w", err)
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var root models.User
		findErr := tx.Where("email = ?", email).First(&root).Error
		switch {
		case errors.Is(findErr, gorm.ErrRecordNotFound):
			root = models.User{
				Username: username,
				Email:    email,
				Password: string(hashed),
				IsAdmin:  true,
			}
			return tx.Create(&root).Error
		case findErr != nil:
			return findErr
		default:
			return tx.Model(&root).Updates(map[string]any{
				"is_admin":  true,
				"is_banned": false,
				"password":  string(hashed),
			}).Error
		}
	})
	if err != nil {
		return err
	}

	observability.GlobalLogger.Info("development root admin ensured", slog.String("email", email))
	return nil
}

// seedDemoForum loads the embedded fixture once, authored by the first admin.
func seedDemoForum(db *gorm.DB) error {
	var topics int64
	if err := db.Model(&models.Topic{}).Count(&topics).Error; err != nil {
		return err
	}
	if topics > 0 {
		return nil
	}

	var author models.User
	err := db.Where("is_admin = ?", true).Order("id").First(&author).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		observability.GlobalLogger.Warn("demo forum skipped: no admin account")
		return nil
	}
	if err != nil {
		return err
	}

	fixture, err := seed.DefaultFixture()
	if err != nil {
		return err
	}
	_, _, err = seed.NewSeeder(db, seed.Options{}).Forum([]models.User{author}, fixture)
	return err
}

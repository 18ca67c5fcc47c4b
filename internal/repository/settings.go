package repository

import (
	"context"
	"errors"
	"time"

	"studyhub/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SettingRepository persists key/value platform settings.
type SettingRepository interface {
	Get(ctx context.Context, key string) (*models.Setting, error)
	All(ctx context.Context) ([]models.Setting, error)
	Upsert(ctx context.Context, setting *models.Setting) error
	EnsureDefaults(ctx context.Context, defaults []models.Setting) error
}

type settingRepository struct {
	db *gorm.DB
}

// NewSettingRepository returns a new SettingRepository implementation.
func NewSettingRepository(db *gorm.DB) SettingRepository {
	return &settingRepository{db: db}
}

// Get returns (nil, nil) for an unknown key.
func (r *settingRepository) Get(ctx context.Context, key string) (*models.Setting, error) {
	var s models.Setting
	if err := r.db.WithContext(ctx).Where("key = ?", key).First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &s, nil
}

func (r *settingRepository) All(ctx context.Context) ([]models.Setting, error) {
	var out []models.Setting
	if err := r.db.WithContext(ctx).Order("key ASC").Find(&out).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return out, nil
}

func (r *settingRepository) Upsert(ctx context.Context, setting *models.Setting) error {
	setting.UpdatedAt = time.Now()
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "is_public", "updated_by", "updated_at"}),
	}).Create(setting).Error
	if err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// EnsureDefaults inserts missing keys without touching existing values.
func (r *settingRepository) EnsureDefaults(ctx context.Context, defaults []models.Setting) error {
	if len(defaults) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&defaults).Error
	if err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// TokenBlacklistRepository persists revoked token ids.
type TokenBlacklistRepository interface {
	Add(ctx context.Context, token *models.BlacklistedToken) error
	Exists(ctx context.Context, jti string) (bool, error)
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

type tokenBlacklistRepository struct {
	db *gorm.DB
}

// NewTokenBlacklistRepository returns a new TokenBlacklistRepository implementation.
func NewTokenBlacklistRepository(db *gorm.DB) TokenBlacklistRepository {
	return &tokenBlacklistRepository{db: db}
}

func (r *tokenBlacklistRepository) Add(ctx context.Context, token *models.BlacklistedToken) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(token).Error
	if err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *tokenBlacklistRepository) Exists(ctx context.Context, jti string) (bool, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.BlacklistedToken{}).Where("jti = ?", jti).Count(&n).Error; err != nil {
		return false, models.NewInternalError(err)
	}
	return n > 0, nil
}

func (r *tokenBlacklistRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at < ?", now).Delete(&models.BlacklistedToken{})
	if res.Error != nil {
		return 0, models.NewInternalError(res.Error)
	}
	return res.RowsAffected, nil
}

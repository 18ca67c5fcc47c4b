package service

import (
	"context"
	"strconv"
	"strings"

	"studyhub/internal/cache"
	"studyhub/internal/models"
	"studyhub/internal/repository"
)

const maxSettingValueLen = 2000

// DefaultSettings are inserted at startup when missing.
func DefaultSettings() []models.Setting {
	return []models.Setting{
		{Key: models.SettingRegistrationOpen, Value: "true", IsPublic: true},
		{Key: models.SettingMaintenanceMode, Value: "false", IsPublic: true},
		{Key: models.SettingAnnouncement, Value: "", IsPublic: true},
		{Key: models.SettingMaxRoomPeers, Value: "8", IsPublic: true},
	}
}

// SettingsService reads platform settings through a Redis cache.
type SettingsService struct {
	repo repository.SettingRepository
}

func NewSettingsService(repo repository.SettingRepository) *SettingsService {
	return &SettingsService{repo: repo}
}

// EnsureDefaults inserts any default key that does not exist yet.
func (s *SettingsService) EnsureDefaults(ctx context.Context) error {
	return s.repo.EnsureDefaults(ctx, DefaultSettings())
}

// Get returns the value and whether the key exists.
func (s *SettingsService) Get(ctx context.Context, key string) (string, bool, error) {
	var setting *models.Setting
	err := cache.Aside(ctx, cache.SettingKey(key), &setting, cache.SettingTTL, func() error {
		var err error
		setting, err = s.repo.Get(ctx, key)
		return err
	})
	if err != nil {
		return "", false, err
	}
	if setting == nil {
		return "", false, nil
	}
	return setting.Value, true, nil
}

// Bool reads key as a boolean, returning fallback when missing, malformed or unreadable.
func (s *SettingsService) Bool(ctx context.Context, key string, fallback bool) bool {
	v, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return fallback
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return b
}

// Int reads key as an integer with the same fallback rules as Bool.
func (s *SettingsService) Int(ctx context.Context, key string, fallback int) int {
	v, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return n
}

// All returns every setting, public or not.
func (s *SettingsService) All(ctx context.Context) ([]models.Setting, error) {
	return s.repo.All(ctx)
}

// Public returns the key/value map anonymous clients may read.
func (s *SettingsService) Public(ctx context.Context) (map[string]string, error) {
	var out map[string]string
	err := cache.Aside(ctx, cache.SettingsIndexKey, &out, cache.SettingTTL, func() error {
		all, err := s.repo.All(ctx)
		if err != nil {
			return err
		}
		out = make(map[string]string, len(all))
		for _, setting := range all {
			if setting.IsPublic {
				out[setting.Key] = setting.Value
			}
		}
		return nil
	})
	return out, err
}

// Set validates and stores a value, returning the previous value for auditing.
func (s *SettingsService) Set(ctx context.Context, key, value string, actorID uint) (previous string, err error) {
	key = strings.TrimSpace(key)
	if key == "" || len(key) > 64 {
		return "", models.NewValidationError("Setting key must be 1-64 characters")
	}
	if len(value) > maxSettingValueLen {
		return "", models.NewValidationError("Setting value too long (max 2000 characters)")
	}
	if err := validateSettingValue(key, value); err != nil {
		return "", err
	}

	existing, err := s.repo.Get(ctx, key)
	if err != nil {
		return "", err
	}
	isPublic := false
	if existing != nil {
		previous = existing.Value
		isPublic = existing.IsPublic
	} else {
		for _, d := range DefaultSettings() {
			if d.Key == key {
				isPublic = d.IsPublic
			}
		}
	}

	if err := s.repo.Upsert(ctx, &models.Setting{Key: key, Value: value, IsPublic: isPublic, UpdatedBy: &actorID}); err != nil {
		return "", err
	}
	cache.InvalidateSetting(ctx, key)
	return previous, nil
}

func validateSettingValue(key, value string) error {
	switch key {
	case models.SettingRegistrationOpen, models.SettingMaintenanceMode:
		if _, err := strconv.ParseBool(value); err != nil {
			return models.NewValidationError(key + " must be true or false")
		}
	case models.SettingMaxRoomPeers:
		n, err := strconv.Atoi(value)
		if err != nil || n < 2 || n > 50 {
			return models.NewValidationError(key + " must be a number between 2 and 50")
		}
	}
	return nil
}

package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"studyhub/internal/models"
	"studyhub/internal/repository"
)

// UpdateProfileInput carries optional profile fields; nil means unchanged.
type UpdateProfileInput struct {
	UserID      uint
	DisplayName *string
	Bio         *string
	University  *string
	Major       *string
	Year        *string
}

type UserService struct {
	userRepo repository.UserRepository
}

func NewUserService(userRepo repository.UserRepository) *UserService {
	return &UserService{userRepo: userRepo}
}

func (s *UserService) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	return s.userRepo.GetByID(ctx, id)
}

// GetPublicProfile hides private fields and banned accounts.
func (s *UserService) GetPublicProfile(ctx context.Context, id uint) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.IsBanned {
		return nil, models.NewNotFoundError("User", id)
	}
	public := user.Public()
	return &public, nil
}

func (s *UserService) UpdateProfile(ctx context.Context, in UpdateProfileInput) (*models.User, error) {
	limits := []struct {
		column string
		value  *string
		max    int
		label  string
	}{
		{"display_name", in.DisplayName, 60, "Display name"},
		{"bio", in.Bio, 500, "Bio"},
		{"university", in.University, 120, "University"},
		{"major", in.Major, 120, "Major"},
		{"year", in.Year, 20, "Year"},
	}

	fields := make(map[string]any)
	for _, l := range limits {
		if l.value == nil {
			continue
		}
		v := strings.TrimSpace(*l.value)
		if utf8.RuneCountInString(v) > l.max {
			return nil, models.NewValidationError(l.label + " too long")
		}
		fields[l.column] = v
	}
	if len(fields) > 0 {
		if err := s.userRepo.UpdateFields(ctx, in.UserID, fields); err != nil {
			return nil, err
		}
	}
	return s.userRepo.GetByID(ctx, in.UserID)
}

func (s *UserService) SetAvatarURL(ctx context.Context, userID uint, url string) (*models.User, error) {
	if err := s.userRepo.UpdateFields(ctx, userID, map[string]any{"avatar_url": url}); err != nil {
		return nil, err
	}
	return s.userRepo.GetByID(ctx, userID)
}

func (s *UserService) IsAdmin(ctx context.Context, userID uint) (bool, error) {
	return s.userRepo.IsAdmin(ctx, userID)
}

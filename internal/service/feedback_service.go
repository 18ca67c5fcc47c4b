package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"studyhub/internal/models"
	"studyhub/internal/repository"
	"studyhub/internal/validation"
)

type SubmitFeedbackInput struct {
	UserID   *uint
	Email    string
	Category string
	Message  string
}

type UpdateFeedbackInput struct {
	ID        uint
	Status    string
	AdminNote *string
}

var feedbackCategories = map[string]bool{"bug": true, "feature": true, "general": true, "other": true}

type FeedbackService struct {
	repo repository.FeedbackRepository
}

func NewFeedbackService(repo repository.FeedbackRepository) *FeedbackService {
	return &FeedbackService{repo: repo}
}

// Submit stores feedback. Anonymous submissions must leave an email.
func (s *FeedbackService) Submit(ctx context.Context, in SubmitFeedbackInput) (*models.Feedback, error) {
	message := strings.TrimSpace(in.Message)
	if n := utf8.RuneCountInString(message); n < 5 || n > 5000 {
		return nil, models.NewValidationError("Message must be 5-5000 characters")
	}
	category := strings.ToLower(strings.TrimSpace(in.Category))
	if category == "" {
		category = "general"
	}
	if !feedbackCategories[category] {
		return nil, models.NewValidationError("Category must be one of: bug, feature, general, other")
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if in.UserID == nil && email == "" {
		return nil, models.NewValidationError("Email is required for anonymous feedback")
	}
	if email != "" {
		if err := validation.ValidateEmail(email); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
	}

	fb := &models.Feedback{
		UserID:   in.UserID,
		Email:    email,
		Category: category,
		Message:  message,
		Status:   models.FeedbackOpen,
	}
	if err := s.repo.Create(ctx, fb); err != nil {
		return nil, err
	}
	return fb, nil
}

func (s *FeedbackService) List(ctx context.Context, status string, page repository.Page) ([]models.Feedback, int64, error) {
	if status != "" && status != models.FeedbackOpen && status != models.FeedbackResolved {
		return nil, 0, models.NewValidationError("status must be open or resolved")
	}
	return s.repo.List(ctx, status, page)
}

// Update changes status and note, returning the record before and after.
func (s *FeedbackService) Update(ctx context.Context, in UpdateFeedbackInput) (before, after *models.Feedback, err error) {
	before, err = s.repo.GetByID(ctx, in.ID)
	if err != nil {
		return nil, nil, err
	}
	fields := map[string]any{}
	if in.Status != "" {
		if in.Status != models.FeedbackOpen && in.Status != models.FeedbackResolved {
			return nil, nil, models.NewValidationError("status must be open or resolved")
		}
		fields["status"] = in.Status
	}
	if in.AdminNote != nil {
		note := strings.TrimSpace(*in.AdminNote)
		if utf8.RuneCountInString(note) > 1000 {
			return nil, nil, models.NewValidationError("Admin note too long (max 1000 characters)")
		}
		fields["admin_note"] = note
	}
	if len(fields) == 0 {
		return nil, nil, models.NewValidationError("Nothing to update")
	}
	if err := s.repo.UpdateFields(ctx, in.ID, fields); err != nil {
		return nil, nil, err
	}
	after, err = s.repo.GetByID(ctx, in.ID)
	return before, after, err
}

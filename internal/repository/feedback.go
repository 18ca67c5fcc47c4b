package repository

import (
	"context"

	"studyhub/internal/models"

	"gorm.io/gorm"
)

// FeedbackRepository persists user feedback.
type FeedbackRepository interface {
	Create(ctx context.Context, fb *models.Feedback) error
	GetByID(ctx context.Context, id uint) (*models.Feedback, error)
	List(ctx context.Context, status string, page Page) ([]models.Feedback, int64, error)
	UpdateFields(ctx context.Context, id uint, fields map[string]any) error
	CountByStatus(ctx context.Context, status string) (int64, error)
}

type feedbackRepository struct {
	db *gorm.DB
}

// NewFeedbackRepository returns a new FeedbackRepository implementation.
func NewFeedbackRepository(db *gorm.DB) FeedbackRepository {
	return &feedbackRepository{db: db}
}

func (r *feedbackRepository) Create(ctx context.Context, fb *models.Feedback) error {
	if err := r.db.WithContext(ctx).Create(fb).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *feedbackRepository) GetByID(ctx context.Context, id uint) (*models.Feedback, error) {
	var fb models.Feedback
	if err := r.db.WithContext(ctx).First(&fb, id).Error; err != nil {
		return nil, notFoundOr(err, "Feedback", id)
	}
	return &fb, nil
}

func (r *feedbackRepository) List(ctx context.Context, status string, page Page) ([]models.Feedback, int64, error) {
	q := readDB(r.db).WithContext(ctx).Model(&models.Feedback{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	var out []models.Feedback
	if err := page.apply(q).Order("created_at DESC").Order("id DESC").Find(&out).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	return out, total, nil
}

func (r *feedbackRepository) UpdateFields(ctx context.Context, id uint, fields map[string]any) error {
	res := r.db.WithContext(ctx).Model(&models.Feedback{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Feedback", id)
	}
	return nil
}

func (r *feedbackRepository) CountByStatus(ctx context.Context, status string) (int64, error) {
	var n int64
	if err := readDB(r.db).WithContext(ctx).Model(&models.Feedback{}).Where("status = ?", status).Count(&n).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return n, nil
}

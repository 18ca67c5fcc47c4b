package repository

import (
	"context"
	"time"

	"studyhub/internal/models"

	"gorm.io/gorm"
)

// StudySessionRepository defines persistence operations for study rooms.
type StudySessionRepository interface {
	Create(ctx context.Context, session *models.StudySession) error
	GetByRoomID(ctx context.Context, roomID string) (*models.StudySession, error)
	ListActive(ctx context.Context, subject string, page Page) ([]models.StudySession, error)
	End(ctx context.Context, roomID string, at time.Time) error
	CountActive(ctx context.Context) (int64, error)
}

type studySessionRepository struct {
	db *gorm.DB
}

// NewStudySessionRepository returns a new StudySessionRepository implementation.
func NewStudySessionRepository(db *gorm.DB) StudySessionRepository {
	return &studySessionRepository{db: db}
}

func (r *studySessionRepository) Create(ctx context.Context, session *models.StudySession) error {
	if session.StartedAt.IsZero() {
		session.StartedAt = time.Now()
	}
	if err := r.db.WithContext(ctx).Omit("Host").Create(session).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *studySessionRepository) GetByRoomID(ctx context.Context, roomID string) (*models.StudySession, error) {
	var session models.StudySession
	if err := r.db.WithContext(ctx).Preload("Host").Where("room_id = ?", roomID).First(&session).Error; err != nil {
		return nil, notFoundOr(err, "Study room", roomID)
	}
	return &session, nil
}

func (r *studySessionRepository) ListActive(ctx context.Context, subject string, page Page) ([]models.StudySession, error) {
	q := readDB(r.db).WithContext(ctx).Preload("Host").Where("is_active = ?", true)
	if subject != "" {
		q = q.Where("subject = ?", subject)
	}
	var sessions []models.StudySession
	if err := page.apply(q).Order("started_at DESC").Order("id DESC").Find(&sessions).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return sessions, nil
}

func (r *studySessionRepository) End(ctx context.Context, roomID string, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&models.StudySession{}).
		Where("room_id = ? AND is_active = ?", roomID, true).
		Updates(map[string]any{"is_active": false, "ended_at": at})
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Active study room", roomID)
	}
	return nil
}

func (r *studySessionRepository) CountActive(ctx context.Context) (int64, error) {
	var n int64
	if err := readDB(r.db).WithContext(ctx).Model(&models.StudySession{}).Where("is_active = ?", true).Count(&n).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return n, nil
}

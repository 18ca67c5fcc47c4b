package repository

import (
	"context"
	"strconv"
	"time"

	"studyhub/internal/models"

	"gorm.io/gorm"
)

// MessageRepository defines persistence operations for direct messages.
type MessageRepository interface {
	Create(ctx context.Context, msg *models.Message) error
	GetByID(ctx context.Context, id uint) (*models.Message, error)
	Thread(ctx context.Context, userID, partnerID uint, page Page) ([]models.Message, error)
	LatestPerPartner(ctx context.Context, userID uint) ([]models.Message, error)
	UnreadBySender(ctx context.Context, recipientID uint) (map[uint]int64, error)
	UnreadTotal(ctx context.Context, recipientID uint) (int64, error)
	MarkRead(ctx context.Context, recipientID, senderID uint, at time.Time) (int64, error)
	Delete(ctx context.Context, id uint) error
	Count(ctx context.Context) (int64, error)
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository returns a new MessageRepository implementation.
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Create(ctx context.Context, msg *models.Message) error {
	if err := r.db.WithContext(ctx).Omit("Sender").Create(msg).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *messageRepository) GetByID(ctx context.Context, id uint) (*models.Message, error) {
	var msg models.Message
	if err := r.db.WithContext(ctx).First(&msg, id).Error; err != nil {
		return nil, notFoundOr(err, "Message", id)
	}
	return &msg, nil
}

// Thread returns one page of the conversation between two users, newest first.
func (r *messageRepository) Thread(ctx context.Context, userID, partnerID uint, page Page) ([]models.Message, error) {
	var msgs []models.Message
	q := r.db.WithContext(ctx).
		Where("(sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)",
			userID, partnerID, partnerID, userID)
	if err := page.apply(q).Order("created_at DESC").Order("id DESC").Find(&msgs).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return msgs, nil
}

// LatestPerPartner returns the newest message of every conversation userID
// takes part in, newest first.
func (r *messageRepository) LatestPerPartner(ctx context.Context, userID uint) ([]models.Message, error) {
	latest := r.db.Model(&models.Message{}).
		Select("MAX(id)").
		Where("sender_id = ? OR recipient_id = ?", userID, userID).
		Group("CASE WHEN sender_id = " + strconv.FormatUint(uint64(userID), 10) + " THEN recipient_id ELSE sender_id END")

	var msgs []models.Message
	err := r.db.WithContext(ctx).
		Where("id IN (?)", latest).
		Order("created_at DESC").Order("id DESC").
		Find(&msgs).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return msgs, nil
}

func (r *messageRepository) UnreadBySender(ctx context.Context, recipientID uint) (map[uint]int64, error) {
	var rows []struct {
		SenderID uint
		Count    int64
	}
	err := r.db.WithContext(ctx).Model(&models.Message{}).
		Select("sender_id, COUNT(*) AS count").
		Where("recipient_id = ? AND read_at IS NULL", recipientID).
		Group("sender_id").
		Scan(&rows).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	out := make(map[uint]int64, len(rows))
	for _, row := range rows {
		out[row.SenderID] = row.Count
	}
	return out, nil
}

func (r *messageRepository) UnreadTotal(ctx context.Context, recipientID uint) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("recipient_id = ? AND read_at IS NULL", recipientID).
		Count(&n).Error
	if err != nil {
		return 0, models.NewInternalError(err)
	}
	return n, nil
}

func (r *messageRepository) MarkRead(ctx context.Context, recipientID, senderID uint, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("recipient_id = ? AND sender_id = ? AND read_at IS NULL", recipientID, senderID).
		Update("read_at", at)
	if res.Error != nil {
		return 0, models.NewInternalError(res.Error)
	}
	return res.RowsAffected, nil
}

func (r *messageRepository) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&models.Message{}, id)
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Message", id)
	}
	return nil
}

func (r *messageRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := readDB(r.db).WithContext(ctx).Model(&models.Message{}).Count(&n).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return n, nil
}

package repository

import (
	"context"
	"strings"
	"time"

	"studyhub/internal/cache"
	"studyhub/internal/models"

	"gorm.io/gorm"
)

// TopicFilter narrows topic listings.
type TopicFilter struct {
	Category string
	Query    string
	AuthorID uint
	Page
}

// TopicRepository defines persistence operations for forum topics.
type TopicRepository interface {
	List(ctx context.Context, filter TopicFilter) ([]models.Topic, error)
	GetByID(ctx context.Context, id uint) (*models.Topic, error)
	Create(ctx context.Context, topic *models.Topic) error
	UpdateFields(ctx context.Context, id uint, fields map[string]any) error
	Delete(ctx context.Context, id uint) (postsRemoved int64, err error)
	IncrementViews(ctx context.Context, id uint) error
	Categories(ctx context.Context) ([]models.CategoryCount, error)
	Count(ctx context.Context) (int64, error)
	TopByPosts(ctx context.Context, limit int) ([]models.Topic, error)
}

type topicRepository struct {
	db *gorm.DB
}

// NewTopicRepository returns a new TopicRepository implementation.
func NewTopicRepository(db *gorm.DB) TopicRepository {
	return &topicRepository{db: db}
}

const topicPostCountSelect = "topics.*, (SELECT COUNT(*) FROM posts WHERE posts.topic_id = topics.id AND posts.deleted_at IS NULL) AS post_count"

func (r *topicRepository) withCounts(ctx context.Context) *gorm.DB {
	return readDB(r.db).WithContext(ctx).
		Model(&models.Topic{}).
		Select(topicPostCountSelect).
		Preload("Author")
}

func (r *topicRepository) List(ctx context.Context, filter TopicFilter) ([]models.Topic, error) {
	q := r.withCounts(ctx)
	if filter.Category != "" {
		q = q.Where("topics.category = ?", filter.Category)
	}
	if filter.AuthorID != 0 {
		q = q.Where("topics.author_id = ?", filter.AuthorID)
	}
	if s := strings.TrimSpace(filter.Query); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		q = q.Where("LOWER(topics.title) LIKE ? OR LOWER(topics.content) LIKE ?", like, like)
	}

	var topics []models.Topic
	if err := filter.Page.apply(q).
		Order("topics.is_pinned DESC").
		Order("topics.last_activity_at DESC").
		Order("topics.id DESC").
		Find(&topics).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return topics, nil
}

func (r *topicRepository) GetByID(ctx context.Context, id uint) (*models.Topic, error) {
	var topic models.Topic
	if err := r.withCounts(ctx).Where("topics.id = ?", id).First(&topic).Error; err != nil {
		return nil, notFoundOr(err, "Topic", id)
	}
	return &topic, nil
}

func (r *topicRepository) Create(ctx context.Context, topic *models.Topic) error {
	if topic.LastActivityAt.IsZero() {
		topic.LastActivityAt = time.Now()
	}
	if err := r.db.WithContext(ctx).Omit("Author").Create(topic).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *topicRepository) UpdateFields(ctx context.Context, id uint, fields map[string]any) error {
	res := r.db.WithContext(ctx).Model(&models.Topic{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Topic", id)
	}
	cache.InvalidateTopic(ctx, id)
	return nil
}

// Delete removes the topic and every post with its topic id in one transaction.
func (r *topicRepository) Delete(ctx context.Context, id uint) (int64, error) {
	var removed int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("topic_id = ?", id).Delete(&models.Post{})
		if res.Error != nil {
			return res.Error
		}
		removed = res.RowsAffected

		res = tx.Delete(&models.Topic{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return models.NewNotFoundError("Topic", id)
		}
		return nil
	})
	if err != nil {
		if models.IsCode(err, models.CodeNotFound) {
			return 0, err
		}
		return 0, models.NewInternalError(err)
	}
	cache.InvalidateTopic(ctx, id)
	return removed, nil
}

func (r *topicRepository) IncrementViews(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).Model(&models.Topic{}).
		Where("id = ?", id).
		UpdateColumn("view_count", gorm.Expr("view_count + 1")).Error
	if err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *topicRepository) Categories(ctx context.Context) ([]models.CategoryCount, error) {
	var out []models.CategoryCount
	err := readDB(r.db).WithContext(ctx).Model(&models.Topic{}).
		Select("category, COUNT(*) AS count").
		Group("category").
		Order("count DESC").
		Scan(&out).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return out, nil
}

func (r *topicRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := readDB(r.db).WithContext(ctx).Model(&models.Topic{}).Count(&n).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return n, nil
}

func (r *topicRepository) TopByPosts(ctx context.Context, limit int) ([]models.Topic, error) {
	if limit <= 0 {
		limit = 5
	}
	var topics []models.Topic
	if err := r.withCounts(ctx).Order("post_count DESC").Order("topics.id ASC").Limit(limit).Find(&topics).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return topics, nil
}

package repository

import (
	"context"
	"time"

	"studyhub/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AuditFilter narrows audit log listings.
type AuditFilter struct {
	UserID uint
	Action string
	Page
}

// AuditLogRepository persists audit entries.
type AuditLogRepository interface {
	CreateBatch(ctx context.Context, entries []*models.AuditLog) error
	List(ctx context.Context, filter AuditFilter) ([]models.AuditLog, int64, error)
}

type auditLogRepository struct {
	db *gorm.DB
}

// NewAuditLogRepository returns a new AuditLogRepository implementation.
func NewAuditLogRepository(db *gorm.DB) AuditLogRepository {
	return &auditLogRepository{db: db}
}

func (r *auditLogRepository) CreateBatch(ctx context.Context, entries []*models.AuditLog) error {
	if len(entries) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).CreateInBatches(entries, 100).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *auditLogRepository) List(ctx context.Context, filter AuditFilter) ([]models.AuditLog, int64, error) {
	q := readDB(r.db).WithContext(ctx).Model(&models.AuditLog{})
	if filter.UserID != 0 {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if filter.Action != "" {
		q = q.Where("action = ?", filter.Action)
	}
	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	var logs []models.AuditLog
	if err := filter.Page.apply(q).Order("created_at DESC").Order("id DESC").Find(&logs).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	return logs, total, nil
}

// EventFilter narrows analytics event listings.
type EventFilter struct {
	EventType string
	Page
}

// TypeCount is the number of events of one type.
type TypeCount struct {
	EventType string `json:"event_type"`
	Count     int64  `json:"count"`
}

// UserActivity is one (user, timestamp) pair used for active-user reductions.
type UserActivity struct {
	UserID    uint
	CreatedAt time.Time
}

// AnalyticsRepository persists analytics events and visitors.
type AnalyticsRepository interface {
	CreateBatch(ctx context.Context, events []*models.AnalyticsEvent) error
	List(ctx context.Context, filter EventFilter) ([]models.AnalyticsEvent, int64, error)
	CountByType(ctx context.Context, since time.Time) ([]TypeCount, error)
	UserActivitySince(ctx context.Context, since time.Time, limit int) ([]UserActivity, error)
	UpsertVisitor(ctx context.Context, v *models.Visitor) error
	CountVisitorsSince(ctx context.Context, since time.Time) (int64, error)
	PurgeBefore(ctx context.Context, before time.Time) (int64, error)
}

type analyticsRepository struct {
	db *gorm.DB
}

// NewAnalyticsRepository returns a new AnalyticsRepository implementation.
func NewAnalyticsRepository(db *gorm.DB) AnalyticsRepository {
	return &analyticsRepository{db: db}
}

func (r *analyticsRepository) CreateBatch(ctx context.Context, events []*models.AnalyticsEvent) error {
	if len(events) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).CreateInBatches(events, 100).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *analyticsRepository) List(ctx context.Context, filter EventFilter) ([]models.AnalyticsEvent, int64, error) {
	q := readDB(r.db).WithContext(ctx).Model(&models.AnalyticsEvent{})
	if filter.EventType != "" {
		q = q.Where("event_type = ?", filter.EventType)
	}
	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	var events []models.AnalyticsEvent
	if err := filter.Page.apply(q).Order("created_at DESC").Order("id DESC").Find(&events).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	return events, total, nil
}

func (r *analyticsRepository) CountByType(ctx context.Context, since time.Time) ([]TypeCount, error) {
	var out []TypeCount
	err := readDB(r.db).WithContext(ctx).Model(&models.AnalyticsEvent{}).
		Select("event_type, COUNT(*) AS count").
		Where("created_at >= ?", since).
		Group("event_type").
		Order("count DESC").
		Scan(&out).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return out, nil
}

func (r *analyticsRepository) UserActivitySince(ctx context.Context, since time.Time, limit int) ([]UserActivity, error) {
	if limit <= 0 {
		limit = 50000
	}
	var out []UserActivity
	err := readDB(r.db).WithContext(ctx).Model(&models.AnalyticsEvent{}).
		Select("user_id, created_at").
		Where("user_id IS NOT NULL AND created_at >= ?", since).
		Order("created_at DESC").
		Limit(limit).
		Scan(&out).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return out, nil
}

// UpsertVisitor inserts a new visitor or bumps the visit count of an existing one.
func (r *analyticsRepository) UpsertVisitor(ctx context.Context, v *models.Visitor) error {
	now := time.Now()
	if v.FirstSeenAt.IsZero() {
		v.FirstSeenAt = now
	}
	if v.LastSeenAt.IsZero() {
		v.LastSeenAt = now
	}
	if v.VisitCount == 0 {
		v.VisitCount = 1
	}

	updates := map[string]any{
		"visit_count":  gorm.Expr("visitors.visit_count + 1"),
		"last_seen_at": v.LastSeenAt,
		"user_agent":   v.UserAgent,
		"ip_hash":      v.IPHash,
	}
	if v.UserID != nil {
		updates["user_id"] = *v.UserID
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "visitor_id"}},
		DoUpdates: clause.Assignments(updates),
	}).Create(v).Error
	if err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *analyticsRepository) CountVisitorsSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	if err := readDB(r.db).WithContext(ctx).Model(&models.Visitor{}).Where("last_seen_at >= ?", since).Count(&n).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return n, nil
}

func (r *analyticsRepository) PurgeBefore(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("created_at < ?", before).Delete(&models.AnalyticsEvent{})
	if res.Error != nil {
		return 0, models.NewInternalError(res.Error)
	}
	return res.RowsAffected, nil
}

package service

import (
	"context"
	"time"

	"studyhub/internal/models"
	"studyhub/internal/repository"

	"gorm.io/datatypes"
)

// AdminActionInput describes an explicit administrative change.
type AdminActionInput struct {
	ActorID      uint
	Action       string
	ResourceType string
	ResourceID   string
	Before       any
	After        any
}

// AuditService writes audit entries through a batch writer.
type AuditService struct {
	repo   repository.AuditLogRepository
	writer *BatchWriter[*models.AuditLog]
	live   LiveFeed
}

func NewAuditService(repo repository.AuditLogRepository, live LiveFeed) *AuditService {
	s := &AuditService{repo: repo, live: live}
	s.writer = NewBatchWriter("audit", defaultQueueSize, defaultBatchSize, defaultFlushInterval, repo.CreateBatch)
	return s
}

func (s *AuditService) Start() { s.writer.Start() }

func (s *AuditService) Close(ctx context.Context) error { return s.writer.Close(ctx) }

// RecordAudit queues entry without blocking the request.
func (s *AuditService) RecordAudit(entry *models.AuditLog) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if s.writer.Enqueue(entry) && s.live != nil {
		s.live.Publish("audit", entry)
	}
}

// RecordAction queues an admin entry carrying before/after snapshots.
func (s *AuditService) RecordAction(_ context.Context, in AdminActionInput) {
	changes := datatypes.JSONMap{}
	if in.Before != nil {
		changes["before"] = in.Before
	}
	if in.After != nil {
		changes["after"] = in.After
	}
	entry := &models.AuditLog{
		Action:       in.Action,
		ResourceType: in.ResourceType,
		ResourceID:   in.ResourceID,
		Changes:      changes,
	}
	if in.ActorID != 0 {
		actor := in.ActorID
		entry.UserID = &actor
	}
	s.RecordAudit(entry)
}

func (s *AuditService) List(ctx context.Context, filter repository.AuditFilter) ([]models.AuditLog, int64, error) {
	return s.repo.List(ctx, filter)
}

package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"studyhub/internal/models"
	"studyhub/internal/repository"
	"studyhub/internal/validation"

	"github.com/gofiber/fiber/v2"
	"gorm.io/datatypes"
)

// LiveFeed receives events for the admin live stream.
type LiveFeed interface {
	Publish(event string, data any)
}

// TrackEventInput is a client-reported analytics event.
type TrackEventInput struct {
	UserID    *uint
	SessionID string
	EventType string
	Path      string
	Metadata  map[string]any
	IP        string
	UserAgent string
}

// VisitInput records a page visit from a browser fingerprint.
type VisitInput struct {
	VisitorID string
	Path      string
	UserID    *uint
	IP        string
	UserAgent string
}

// AnalyticsService records events asynchronously and answers admin queries.
type AnalyticsService struct {
	repo   repository.AnalyticsRepository
	writer *BatchWriter[*models.AnalyticsEvent]
	salt   string
	live   LiveFeed
}

func NewAnalyticsService(repo repository.AnalyticsRepository, salt string, live LiveFeed) *AnalyticsService {
	s := &AnalyticsService{repo: repo, salt: salt, live: live}
	s.writer = NewBatchWriter("analytics", defaultQueueSize, defaultBatchSize, defaultFlushInterval, repo.CreateBatch)
	return s
}

// Start begins background flushing.
func (s *AnalyticsService) Start() { s.writer.Start() }

// Close flushes pending events.
func (s *AnalyticsService) Close(ctx context.Context) error { return s.writer.Close(ctx) }

// HashIP returns the salted SHA-256 of ip so raw addresses are never stored.
func (s *AnalyticsService) HashIP(ip string) string {
	if ip == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(s.salt + ip))
	return hex.EncodeToString(sum[:])
}

// Record queues an event; it reports false when the queue is full.
func (s *AnalyticsService) Record(event *models.AnalyticsEvent) bool {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	ok := s.writer.Enqueue(event)
	if ok && s.live != nil {
		s.live.Publish("analytics", event)
	}
	return ok
}

// Track fills request details into event and queues it.
func (s *AnalyticsService) Track(c *fiber.Ctx, event *models.AnalyticsEvent) {
	event.IPHash = s.HashIP(c.IP())
	event.UserAgent = clip(c.Get(fiber.HeaderUserAgent), 255)
	if event.Path == "" {
		event.Path = c.Path()
	}
	s.Record(event)
}

// TrackEvent validates and queues a client-reported event.
func (s *AnalyticsService) TrackEvent(_ context.Context, in TrackEventInput) error {
	eventType := strings.TrimSpace(in.EventType)
	if err := validation.ValidateEventType(eventType); err != nil {
		return models.NewValidationError(err.Error())
	}
	if len(in.SessionID) > 64 {
		return models.NewValidationError("session_id too long (max 64 characters)")
	}
	if len(in.Metadata) > 32 {
		return models.NewValidationError("metadata may hold at most 32 keys")
	}
	s.Record(&models.AnalyticsEvent{
		UserID:    in.UserID,
		SessionID: in.SessionID,
		EventType: eventType,
		Path:      clip(in.Path, 255),
		Metadata:  datatypes.JSONMap(in.Metadata),
		IPHash:    s.HashIP(in.IP),
		UserAgent: clip(in.UserAgent, 255),
	})
	return nil
}

// RecordVisit upserts the visitor row and logs a page_view.
func (s *AnalyticsService) RecordVisit(ctx context.Context, in VisitInput) (*models.Visitor, error) {
	visitorID := strings.TrimSpace(in.VisitorID)
	if visitorID == "" || len(visitorID) > 64 {
		return nil, models.NewValidationError("visitor_id must be 1-64 characters")
	}
	v := &models.Visitor{
		VisitorID: visitorID,
		UserID:    in.UserID,
		IPHash:    s.HashIP(in.IP),
		UserAgent: clip(in.UserAgent, 255),
	}
	if err := s.repo.UpsertVisitor(ctx, v); err != nil {
		return nil, err
	}
	s.Record(&models.AnalyticsEvent{
		UserID:    in.UserID,
		SessionID: visitorID,
		EventType: "page_view",
		Path:      clip(in.Path, 255),
		IPHash:    v.IPHash,
		UserAgent: v.UserAgent,
	})
	return v, nil
}

func (s *AnalyticsService) ListEvents(ctx context.Context, filter repository.EventFilter) ([]models.AnalyticsEvent, int64, error) {
	return s.repo.List(ctx, filter)
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

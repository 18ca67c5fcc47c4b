package middleware

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"

	"studyhub/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	mu      sync.Mutex
	audits  []*models.AuditLog
	events  []*models.AnalyticsEvent
	enabled map[string]bool
}

func (s *captureSink) RecordAudit(entry *models.AuditLog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audits = append(s.audits, entry)
}

func (s *captureSink) Track(_ *fiber.Ctx, event *models.AnalyticsEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *captureSink) Bool(_ context.Context, key string, fallback bool) bool {
	if v, ok := s.enabled[key]; ok {
		return v
	}
	return fallback
}

func withUser(id uint) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals("userID", id)
		return c.Next()
	}
}

func TestResourceFromPath(t *testing.T) {
	tests := []struct {
		path, kind, id string
	}{
		{"/api/topics/12/posts", "topics", "12"},
		{"/api/admin/users/4/ban", "users", "4"},
		{"/api/messages", "messages", ""},
		{"/api", "", ""},
	}
	for _, tt := range tests {
		kind, id := ResourceFromPath(tt.path)
		assert.Equal(t, tt.kind, kind, tt.path)
		assert.Equal(t, tt.id, id, tt.path)
	}
}

func TestAuditTrail(t *testing.T) {
	sink := &captureSink{}
	app := fiber.New()
	app.Use(AuditTrail(sink))
	app.Delete("/api/topics/:id", withUser(7), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	app.Get("/api/topics/:id", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	_, err := app.Test(httptest.NewRequest("GET", "/api/topics/3", nil))
	require.NoError(t, err)
	assert.Empty(t, sink.audits, "reads are not audited")

	_, err = app.Test(httptest.NewRequest("DELETE", "/api/topics/3", nil))
	require.NoError(t, err)
	require.Len(t, sink.audits, 1)

	entry := sink.audits[0]
	assert.Equal(t, "delete.topics", entry.Action)
	assert.Equal(t, "topics", entry.ResourceType)
	assert.Equal(t, "3", entry.ResourceID)
	assert.Equal(t, fiber.StatusNoContent, entry.Status)
	require.NotNil(t, entry.UserID)
	assert.Equal(t, uint(7), *entry.UserID)
}

func TestAnalyticsRecorder(t *testing.T) {
	sink := &captureSink{}
	app := fiber.New()
	app.Use(AnalyticsRecorder(sink))
	app.Post("/api/topics", withUser(2), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusCreated)
	})
	app.Post("/api/anon", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusCreated)
	})
	app.Post("/api/fails", withUser(2), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusBadRequest)
	})

	for _, p := range []string{"/api/topics", "/api/anon", "/api/fails"} {
		_, err := app.Test(httptest.NewRequest("POST", p, nil))
		require.NoError(t, err)
	}

	require.Len(t, sink.events, 1)
	assert.Equal(t, "api.post", sink.events[0].EventType)
	assert.Equal(t, "/api/topics", sink.events[0].Path)
	assert.Equal(t, "topics", sink.events[0].Metadata["resource"])
}

func TestMaintenanceGuard(t *testing.T) {
	sink := &captureSink{enabled: map[string]bool{models.SettingMaintenanceMode: true}}
	app := fiber.New()
	app.Use(MaintenanceGuard(sink))
	ok := func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) }
	app.Get("/api/topics", ok)
	app.Post("/api/auth/login", ok)
	app.Get("/health/live", ok)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/topics", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("POST", "/api/auth/login", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/health/live", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	sink.enabled[models.SettingMaintenanceMode] = false
	resp, err = app.Test(httptest.NewRequest("GET", "/api/topics", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

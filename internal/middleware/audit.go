package middleware

import (
	"strings"

	"studyhub/internal/models"

	"github.com/gofiber/fiber/v2"
)

// AuditSink accepts audit entries. Implementations must not block.
type AuditSink interface {
	RecordAudit(entry *models.AuditLog)
}

func isMutating(method string) bool {
	switch method {
	case fiber.MethodPost, fiber.MethodPut, fiber.MethodPatch, fiber.MethodDelete:
		return true
	}
	return false
}

// ResourceFromPath infers resource type and id from an /api path,
// e.g. /api/topics/12/posts yields ("topics", "12").
func ResourceFromPath(path string) (resourceType, resourceID string) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(path, "/api"), "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		return "", ""
	}
	if parts[0] == "admin" && len(parts) > 1 {
		parts = parts[1:]
	}
	resourceType = parts[0]
	if len(parts) > 1 {
		resourceID = parts[1]
	}
	return resourceType, resourceID
}

// AuditTrail records every mutating API request after the handler has run.
// Bodies are never captured.
func AuditTrail(sink AuditSink) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if sink == nil || !isMutating(c.Method()) {
			return c.Next()
		}

		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		path := c.Path()
		resourceType, resourceID := ResourceFromPath(path)
		entry := &models.AuditLog{
			Action:       strings.ToLower(c.Method()) + "." + resourceType,
			Method:       c.Method(),
			Path:         path,
			Status:       status,
			ResourceType: resourceType,
			ResourceID:   resourceID,
			IPAddress:    c.IP(),
			UserAgent:    truncate(c.Get(fiber.HeaderUserAgent), 255),
		}
		if uid, ok := c.Locals("userID").(uint); ok {
			entry.UserID = &uid
		}
		sink.RecordAudit(entry)

		return err
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

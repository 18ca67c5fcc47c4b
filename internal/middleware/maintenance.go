package middleware

import (
	"context"
	"strings"

	"studyhub/internal/models"

	"github.com/gofiber/fiber/v2"
)

// SettingsReader exposes boolean platform settings.
type SettingsReader interface {
	Bool(ctx context.Context, key string, fallback bool) bool
}

var maintenanceExempt = []string{"/api/auth", "/api/settings", "/api/admin", "/health"}

// MaintenanceGuard answers 503 for API traffic while maintenance_mode is on.
// Auth, settings and admin routes stay reachable so operators can turn it off.
func MaintenanceGuard(settings SettingsReader) fiber.Handler {
	return func(c *fiber.Ctx) error {
		path := c.Path()
		if settings == nil || !strings.HasPrefix(path, "/api") {
			return c.Next()
		}
		for _, prefix := range maintenanceExempt {
			if strings.HasPrefix(path, prefix) {
				return c.Next()
			}
		}
		if settings.Bool(c.UserContext(), models.SettingMaintenanceMode, false) {
			return models.RespondWithError(c, fiber.StatusServiceUnavailable,
				models.NewUnavailableError("StudyHub is down for maintenance"))
		}
		return c.Next()
	}
}

package middleware

import (
	"strings"

	"studyhub/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/datatypes"
)

// AnalyticsSink accepts analytics events. Implementations must not block.
type AnalyticsSink interface {
	Track(c *fiber.Ctx, event *models.AnalyticsEvent)
}

// AnalyticsRecorder records an api.<method> event for successful mutating
// requests made by authenticated users.
func AnalyticsRecorder(sink AnalyticsSink) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if sink == nil || !isMutating(c.Method()) {
			return c.Next()
		}

		err := c.Next()
		if err != nil {
			return err
		}

		status := c.Response().StatusCode()
		uid, ok := c.Locals("userID").(uint)
		if !ok || status >= fiber.StatusBadRequest {
			return nil
		}
		if strings.HasPrefix(c.Path(), "/api/analytics") {
			return nil
		}

		resourceType, _ := ResourceFromPath(c.Path())
		sink.Track(c, &models.AnalyticsEvent{
			UserID:    &uid,
			EventType: "api." + strings.ToLower(c.Method()),
			Path:      c.Path(),
			Metadata:  datatypes.JSONMap{"resource": resourceType, "status": status},
		})
		return nil
	}
}

package server

import (
	"bufio"
	"log/slog"
	"strconv"

	"studyhub/internal/middleware"
	"studyhub/internal/models"
	"studyhub/internal/repository"
	"studyhub/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
)

// GetDashboard handles GET /api/admin/dashboard
// @Summary Admin dashboard
// @Tags admin
// @Security BearerAuth
// @Success 200 {object} service.DashboardStats
// @Failure 403 {object} models.ErrorResponse
// @Router /admin/dashboard [get]
func (s *Server) GetDashboard(c *fiber.Ctx) error {
	stats, err := s.admin.Dashboard(c.UserContext())
	if err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(stats)
}

// AdminLiveFeed handles GET /api/admin/live
// @Summary Live activity feed
// @Description Server-Sent Events stream of audit and analytics records
// @Tags admin
// @Security BearerAuth
// @Produce text/event-stream
// @Success 200
// @Router /admin/live [get]
func (s *Server) AdminLiveFeed(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	client := s.live.Subscribe()
	ctx := s.shutdownCtx
	adminID := currentUserID(c)

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer s.live.Unsubscribe(client)
		if err := s.live.Stream(ctx, client, w); err != nil && ctx.Err() == nil {
			middleware.Logger.Debug("admin live feed closed",
				slog.Uint64("user_id", uint64(adminID)),
				slog.String("error", err.Error()),
			)
		}
	}))
	return nil
}

// AdminListUsers handles GET /api/admin/users
// @Summary List users
// @Tags admin
// @Security BearerAuth
// @Param q query string false "Username or email contains"
// @Param limit query int false "Limit"
// @Param offset query int false "Offset"
// @Success 200 {object} object{items=[]models.User,total=int,limit=int,offset=int}
// @Router /admin/users [get]
func (s *Server) AdminListUsers(c *fiber.Ctx) error {
	page := parsePagination(c, defaultPaginationLimit)
	users, total, err := s.admin.ListUsers(c.UserContext(), repository.UserFilter{
		Query: c.Query("q"),
		Page:  page,
	})
	if err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(paged(users, total, page))
}

func (s *Server) moderateUser(c *fiber.Ctx, apply func(actorID, targetID uint) (*models.User, error)) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	user, err := apply(currentUserID(c), id)
	if err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(user)
}

// BanUser handles POST /api/admin/users/:id/ban
// @Summary Ban user
// @Tags admin
// @Security BearerAuth
// @Param id path int true "User ID"
// @Success 200 {object} models.User
// @Router /admin/users/{id}/ban [post]
func (s *Server) BanUser(c *fiber.Ctx) error {
	return s.moderateUser(c, func(actorID, targetID uint) (*models.User, error) {
		return s.admin.SetBanned(c.UserContext(), actorID, targetID, true)
	})
}

// UnbanUser handles POST /api/admin/users/:id/unban
// @Summary Unban user
// @Tags admin
// @Security BearerAuth
// @Param id path int true "User ID"
// @Success 200 {object} models.User
// @Router /admin/users/{id}/unban [post]
func (s *Server) UnbanUser(c *fiber.Ctx) error {
	return s.moderateUser(c, func(actorID, targetID uint) (*models.User, error) {
		return s.admin.SetBanned(c.UserContext(), actorID, targetID, false)
	})
}

// PromoteUser handles POST /api/admin/users/:id/promote
// @Summary Grant admin
// @Tags admin
// @Security BearerAuth
// @Param id path int true "User ID"
// @Success 200 {object} models.User
// @Router /admin/users/{id}/promote [post]
func (s *Server) PromoteUser(c *fiber.Ctx) error {
	return s.moderateUser(c, func(actorID, targetID uint) (*models.User, error) {
		return s.admin.SetAdmin(c.UserContext(), actorID, targetID, true)
	})
}

// DemoteUser handles POST /api/admin/users/:id/demote
// @Summary Revoke admin
// @Tags admin
// @Security BearerAuth
// @Param id path int true "User ID"
// @Success 200 {object} models.User
// @Router /admin/users/{id}/demote [post]
func (s *Server) DemoteUser(c *fiber.Ctx) error {
	return s.moderateUser(c, func(actorID, targetID uint) (*models.User, error) {
		return s.admin.SetAdmin(c.UserContext(), actorID, targetID, false)
	})
}

// AdminDeleteUser handles DELETE /api/admin/users/:id
// @Summary Delete user
// @Tags admin
// @Security BearerAuth
// @Param id path int true "User ID"
// @Success 200 {object} object{message=string}
// @Router /admin/users/{id} [delete]
func (s *Server) AdminDeleteUser(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	if err := s.admin.DeleteUser(c.UserContext(), currentUserID(c), id); err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(fiber.Map{"message": "User deleted"})
}

// GetAuditLogs handles GET /api/admin/audit-logs
// @Summary Audit log
// @Tags admin
// @Security BearerAuth
// @Param user_id query int false "Actor user ID"
// @Param action query string false "Action"
// @Success 200 {object} object{items=[]models.AuditLog,total=int,limit=int,offset=int}
// @Router /admin/audit-logs [get]
func (s *Server) GetAuditLogs(c *fiber.Ctx) error {
	page := parsePagination(c, 50)
	filter := repository.AuditFilter{Action: c.Query("action"), Page: page}
	if raw := c.Query("user_id"); raw != "" {
		uid, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusBadRequest,
				models.NewValidationError("Invalid user_id"))
		}
		filter.UserID = uint(uid)
	}
	logs, total, err := s.audit.List(c.UserContext(), filter)
	if err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(paged(logs, total, page))
}

// GetAnalyticsEvents handles GET /api/admin/analytics/events
// @Summary Analytics events
// @Tags admin
// @Security BearerAuth
// @Param type query string false "Event type"
// @Success 200 {object} object{items=[]models.AnalyticsEvent,total=int,limit=int,offset=int}
// @Router /admin/analytics/events [get]
func (s *Server) GetAnalyticsEvents(c *fiber.Ctx) error {
	page := parsePagination(c, 50)
	events, total, err := s.analytics.ListEvents(c.UserContext(), repository.EventFilter{
		EventType: c.Query("type"),
		Page:      page,
	})
	if err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(paged(events, total, page))
}

// GetSettings handles GET /api/admin/settings
// @Summary All settings
// @Tags admin
// @Security BearerAuth
// @Success 200 {array} models.Setting
// @Router /admin/settings [get]
func (s *Server) GetSettings(c *fiber.Ctx) error {
	settings, err := s.settings.All(c.UserContext())
	if err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(settings)
}

// UpdateSetting handles PUT /api/admin/settings/:key
// @Summary Update setting
// @Tags admin
// @Security BearerAuth
// @Param key path string true "Setting key"
// @Param request body object{value=string} true "Value"
// @Success 200 {object} object{key=string,value=string}
// @Failure 400 {object} models.ErrorResponse
// @Router /admin/settings/{key} [put]
func (s *Server) UpdateSetting(c *fiber.Ctx) error {
	var req struct {
		Value string `json:"value"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	key := c.Params("key")
	actorID := currentUserID(c)
	previous, err := s.settings.Set(c.UserContext(), key, req.Value, actorID)
	if err != nil {
		return models.Respond(c, err)
	}
	s.audit.RecordAction(c.UserContext(), service.AdminActionInput{
		ActorID:      actorID,
		Action:       "setting.update",
		ResourceType: "settings",
		ResourceID:   key,
		Before:       map[string]any{"value": previous},
		After:        map[string]any{"value": req.Value},
	})
	return c.JSON(fiber.Map{"key": key, "value": req.Value})
}

// ListFeedback handles GET /api/admin/feedback
// @Summary List feedback
// @Tags admin
// @Security BearerAuth
// @Param status query string false "open or resolved"
// @Success 200 {object} object{items=[]models.Feedback,total=int,limit=int,offset=int}
// @Router /admin/feedback [get]
func (s *Server) ListFeedback(c *fiber.Ctx) error {
	page := parsePagination(c, defaultPaginationLimit)
	items, total, err := s.feedback.List(c.UserContext(), c.Query("status"), page)
	if err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(paged(items, total, page))
}

// UpdateFeedback handles PUT /api/admin/feedback/:id
// @Summary Triage feedback
// @Tags admin
// @Security BearerAuth
// @Param id path int true "Feedback ID"
// @Param request body object{status=string,admin_note=string} true "Changes"
// @Success 200 {object} models.Feedback
// @Router /admin/feedback/{id} [put]
func (s *Server) UpdateFeedback(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	var req struct {
		Status    string  `json:"status"`
		AdminNote *string `json:"admin_note"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	before, after, err := s.feedback.Update(c.UserContext(), service.UpdateFeedbackInput{
		ID:        id,
		Status:    req.Status,
		AdminNote: req.AdminNote,
	})
	if err != nil {
		return models.Respond(c, err)
	}
	s.audit.RecordAction(c.UserContext(), service.AdminActionInput{
		ActorID:      currentUserID(c),
		Action:       "feedback.update",
		ResourceType: "feedback",
		ResourceID:   strconv.FormatUint(uint64(id), 10),
		Before:       map[string]any{"status": before.Status, "admin_note": before.AdminNote},
		After:        map[string]any{"status": after.Status, "admin_note": after.AdminNote},
	})
	return c.JSON(after)
}

// GetFeatureFlags handles GET /api/admin/feature-flags
// @Summary Feature flags
// @Description Configured rules and their value for the caller
// @Tags admin
// @Security BearerAuth
// @Success 200 {object} object{flags=[]featureflags.Flag,enabled=map[string]bool}
// @Router /admin/feature-flags [get]
func (s *Server) GetFeatureFlags(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"flags":   s.featureFlags.List(),
		"enabled": s.featureFlags.Snapshot(currentUserID(c)),
	})
}

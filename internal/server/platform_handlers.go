package server

import (
	"studyhub/internal/models"
	"studyhub/internal/service"

	"github.com/gofiber/fiber/v2"
)

// GetPublicSettings handles GET /api/settings/public
// @Summary Public settings
// @Tags settings
// @Success 200 {object} map[string]string
// @Router /settings/public [get]
func (s *Server) GetPublicSettings(c *fiber.Ctx) error {
	settings, err := s.settings.Public(c.UserContext())
	if err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(settings)
}

// TrackEvent handles POST /api/analytics/events
// @Summary Record analytics event
// @Tags analytics
// @Accept json
// @Param request body object{event_type=string,path=string,session_id=string,metadata=object} true "Event"
// @Success 202 {object} object{status=string}
// @Failure 400 {object} models.ErrorResponse
// @Router /analytics/events [post]
func (s *Server) TrackEvent(c *fiber.Ctx) error {
	var req struct {
		EventType string         `json:"event_type"`
		Path      string         `json:"path"`
		SessionID string         `json:"session_id"`
		Metadata  map[string]any `json:"metadata"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	in := service.TrackEventInput{
		SessionID: req.SessionID,
		EventType: req.EventType,
		Path:      req.Path,
		Metadata:  req.Metadata,
		IP:        c.IP(),
		UserAgent: c.Get(fiber.HeaderUserAgent),
	}
	if uid, ok := s.optionalUserID(c); ok {
		in.UserID = &uid
	}
	if err := s.analytics.TrackEvent(c.UserContext(), in); err != nil {
		return models.Respond(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "accepted"})
}

// RecordVisit handles POST /api/analytics/visit
// @Summary Record page visit
// @Tags analytics
// @Accept json
// @Param request body object{visitor_id=string,path=string} true "Visit"
// @Success 200 {object} models.Visitor
// @Failure 400 {object} models.ErrorResponse
// @Router /analytics/visit [post]
func (s *Server) RecordVisit(c *fiber.Ctx) error {
	var req struct {
		VisitorID string `json:"visitor_id"`
		Path      string `json:"path"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	in := service.VisitInput{
		VisitorID: req.VisitorID,
		Path:      req.Path,
		IP:        c.IP(),
		UserAgent: c.Get(fiber.HeaderUserAgent),
	}
	if uid, ok := s.optionalUserID(c); ok {
		in.UserID = &uid
	}
	visitor, err := s.analytics.RecordVisit(c.UserContext(), in)
	if err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(visitor)
}

// SubmitFeedback handles POST /api/feedback
// @Summary Submit feedback
// @Description Anonymous submissions must include an email
// @Tags feedback
// @Accept json
// @Param request body object{category=string,message=string,email=string} true "Feedback"
// @Success 201 {object} models.Feedback
// @Failure 400 {object} models.ErrorResponse
// @Router /feedback [post]
func (s *Server) SubmitFeedback(c *fiber.Ctx) error {
	var req struct {
		Category string `json:"category"`
		Message  string `json:"message"`
		Email    string `json:"email"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	in := service.SubmitFeedbackInput{
		Email:    req.Email,
		Category: req.Category,
		Message:  req.Message,
	}
	if uid, ok := s.optionalUserID(c); ok {
		in.UserID = &uid
	}
	fb, err := s.feedback.Submit(c.UserContext(), in)
	if err != nil {
		return models.Respond(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fb)
}

package server

import (
	"studyhub/internal/models"
	"studyhub/internal/service"

	"github.com/gofiber/fiber/v2"
)

// SendMessage handles POST /api/messages
// @Summary Send direct message
// @Tags messages
// @Security BearerAuth
// @Accept json
// @Param request body object{recipient_id=int,content=string} true "Message"
// @Success 201 {object} models.Message
// @Failure 400 {object} models.ErrorResponse
// @Router /messages [post]
func (s *Server) SendMessage(c *fiber.Ctx) error {
	var req struct {
		RecipientID uint   `json:"recipient_id"`
		Content     string `json:"content"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	msg, err := s.messages.Send(c.UserContext(), service.SendMessageInput{
		SenderID:    currentUserID(c),
		RecipientID: req.RecipientID,
		Content:     req.Content,
	})
	if err != nil {
		return models.Respond(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

// GetConversations handles GET /api/messages/conversations
// @Summary List conversations
// @Description One row per partner, most recent first
// @Tags messages
// @Security BearerAuth
// @Success 200 {array} models.Conversation
// @Router /messages/conversations [get]
func (s *Server) GetConversations(c *fiber.Ctx) error {
	convs, err := s.messages.Conversations(c.UserContext(), currentUserID(c))
	if err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(convs)
}

// GetThread handles GET /api/messages/:userId
// @Summary Message thread
// @Tags messages
// @Security BearerAuth
// @Param userId path int true "Partner user ID"
// @Param limit query int false "Limit"
// @Param offset query int false "Offset"
// @Success 200 {array} models.Message
// @Router /messages/{userId} [get]
func (s *Server) GetThread(c *fiber.Ctx) error {
	partnerID, err := s.parseID(c, "userId")
	if err != nil {
		return nil
	}
	msgs, err := s.messages.Thread(c.UserContext(), currentUserID(c), partnerID, parsePagination(c, 50))
	if err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(msgs)
}

// MarkThreadRead handles POST /api/messages/:userId/read
// @Summary Mark thread read
// @Tags messages
// @Security BearerAuth
// @Param userId path int true "Partner user ID"
// @Success 200 {object} object{updated=int}
// @Router /messages/{userId}/read [post]
func (s *Server) MarkThreadRead(c *fiber.Ctx) error {
	partnerID, err := s.parseID(c, "userId")
	if err != nil {
		return nil
	}
	n, err := s.messages.MarkRead(c.UserContext(), currentUserID(c), partnerID)
	if err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(fiber.Map{"updated": n})
}

// DeleteMessage handles DELETE /api/messages/:id
// @Summary Delete message
// @Description Only the sender may delete a message
// @Tags messages
// @Security BearerAuth
// @Param id path int true "Message ID"
// @Success 200 {object} object{message=string}
// @Failure 403 {object} models.ErrorResponse
// @Router /messages/{id} [delete]
func (s *Server) DeleteMessage(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	if err := s.messages.Delete(c.UserContext(), currentUserID(c), id); err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(fiber.Map{"message": "Message deleted"})
}

// GetUnreadCount handles GET /api/messages/unread-count
// @Summary Unread message count
// @Tags messages
// @Security BearerAuth
// @Success 200 {object} object{count=int}
// @Router /messages/unread-count [get]
func (s *Server) GetUnreadCount(c *fiber.Ctx) error {
	n, err := s.messages.UnreadCount(c.UserContext(), currentUserID(c))
	if err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(fiber.Map{"count": n})
}

package service

import (
	"context"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"studyhub/internal/models"
	"studyhub/internal/repository"
)

const messageContentMax = 5000

type SendMessageInput struct {
	SenderID    uint
	RecipientID uint
	Content     string
}

// MessageService handles direct messages and read receipts.
type MessageService struct {
	messages repository.MessageRepository
	users    repository.UserRepository
	notifier UserNotifier
}

func NewMessageService(messages repository.MessageRepository, users repository.UserRepository, notifier UserNotifier) *MessageService {
	return &MessageService{messages: messages, users: users, notifier: notifierOrNoop(notifier)}
}

func (s *MessageService) Send(ctx context.Context, in SendMessageInput) (*models.Message, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, models.NewValidationError("Message content is required")
	}
	if utf8.RuneCountInString(content) > messageContentMax {
		return nil, models.NewValidationError("Message too long (max 5000 characters)")
	}
	if in.RecipientID == 0 {
		return nil, models.NewValidationError("recipient_id is required")
	}
	if in.RecipientID == in.SenderID {
		return nil, models.NewValidationError("You cannot message yourself")
	}

	recipient, err := s.users.GetByID(ctx, in.RecipientID)
	if err != nil {
		return nil, err
	}
	if recipient.IsBanned {
		return nil, models.NewForbiddenError("This user cannot receive messages")
	}
	sender, err := s.users.GetByID(ctx, in.SenderID)
	if err != nil {
		return nil, err
	}

	msg := &models.Message{
		SenderID:    in.SenderID,
		RecipientID: in.RecipientID,
		Content:     content,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, err
	}
	msg.Sender = sender.Public()

	s.notifier.NotifyUser(ctx, in.RecipientID, "message", msg)
	s.notifier.NotifyUser(ctx, in.SenderID, "message", msg)
	return msg, nil
}

// Conversations returns one row per partner, most recently active first.
func (s *MessageService) Conversations(ctx context.Context, userID uint) ([]models.Conversation, error) {
	recent, err := s.messages.LatestPerPartner(ctx, userID)
	if err != nil {
		return nil, err
	}
	unread, err := s.messages.UnreadBySender(ctx, userID)
	if err != nil {
		return nil, err
	}

	latest := make(map[uint]*models.Message)
	var order []uint
	for i := range recent {
		partner := recent[i].PartnerOf(userID)
		if _, seen := latest[partner]; seen {
			continue
		}
		latest[partner] = &recent[i]
		order = append(order, partner)
	}

	partners, err := s.users.GetByIDs(ctx, order)
	if err != nil {
		return nil, err
	}
	byID := make(map[uint]models.User, len(partners))
	for _, p := range partners {
		byID[p.ID] = p
	}

	out := make([]models.Conversation, 0, len(order))
	for _, id := range order {
		partner, ok := byID[id]
		if !ok {
			continue
		}
		out = append(out, models.Conversation{
			Partner:     partner.Public(),
			LastMessage: latest[id],
			UnreadCount: unread[id],
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastMessage.CreatedAt.After(out[j].LastMessage.CreatedAt)
	})
	return out, nil
}

// Thread returns one page of the conversation, oldest first within the page.
func (s *MessageService) Thread(ctx context.Context, userID, partnerID uint, page repository.Page) ([]models.Message, error) {
	if _, err := s.users.GetByID(ctx, partnerID); err != nil {
		return nil, err
	}
	msgs, err := s.messages.Thread(ctx, userID, partnerID, page)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// MarkRead marks messages from partnerID as read and sends a receipt.
func (s *MessageService) MarkRead(ctx context.Context, userID, partnerID uint) (int64, error) {
	now := time.Now()
	n, err := s.messages.MarkRead(ctx, userID, partnerID, now)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.notifier.NotifyUser(ctx, partnerID, "read", map[string]any{
			"reader_id": userID,
			"count":     n,
			"read_at":   now,
		})
	}
	return n, nil
}

func (s *MessageService) Delete(ctx context.Context, userID, messageID uint) error {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != userID {
		return models.NewForbiddenError("You can only delete messages you sent")
	}
	return s.messages.Delete(ctx, messageID)
}

func (s *MessageService) UnreadCount(ctx context.Context, userID uint) (int64, error) {
	return s.messages.UnreadTotal(ctx, userID)
}

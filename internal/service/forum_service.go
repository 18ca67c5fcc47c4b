package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"studyhub/internal/models"
	"studyhub/internal/repository"
)

const (
	topicTitleMin   = 3
	topicTitleMax   = 200
	topicContentMax = 20000
	postContentMax  = 10000
	categoryMax     = 50
)

type CreateTopicInput struct {
	UserID   uint
	Title    string
	Content  string
	Category string
}

type UpdateTopicInput struct {
	UserID   uint
	TopicID  uint
	Title    *string
	Content  *string
	Category *string
}

type CreatePostInput struct {
	UserID   uint
	TopicID  uint
	ParentID *uint
	Content  string
}

// ForumService owns topics and their posts.
type ForumService struct {
	topics   repository.TopicRepository
	posts    repository.PostRepository
	notifier UserNotifier
	isAdmin  func(ctx context.Context, userID uint) (bool, error)
}

func NewForumService(
	topics repository.TopicRepository,
	posts repository.PostRepository,
	notifier UserNotifier,
	isAdmin func(ctx context.Context, userID uint) (bool, error),
) *ForumService {
	return &ForumService{
		topics:   topics,
		posts:    posts,
		notifier: notifierOrNoop(notifier),
		isAdmin:  isAdmin,
	}
}

func (s *ForumService) ListTopics(ctx context.Context, filter repository.TopicFilter) ([]models.Topic, error) {
	return s.topics.List(ctx, filter)
}

func (s *ForumService) Categories(ctx context.Context) ([]models.CategoryCount, error) {
	return s.topics.Categories(ctx)
}

// GetTopic loads a topic and counts the view.
func (s *ForumService) GetTopic(ctx context.Context, id uint) (*models.Topic, error) {
	topic, err := s.topics.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.topics.IncrementViews(ctx, id); err != nil {
		return nil, err
	}
	topic.ViewCount++
	return topic, nil
}

func (s *ForumService) CreateTopic(ctx context.Context, in CreateTopicInput) (*models.Topic, error) {
	title := strings.TrimSpace(in.Title)
	content := strings.TrimSpace(in.Content)
	category := normalizeCategory(in.Category)
	if err := validateTopic(title, content, category); err != nil {
		return nil, err
	}

	topic := &models.Topic{
		Title:    title,
		Content:  content,
		Category: category,
		AuthorID: in.UserID,
	}
	if err := s.topics.Create(ctx, topic); err != nil {
		return nil, err
	}
	return s.topics.GetByID(ctx, topic.ID)
}

func (s *ForumService) UpdateTopic(ctx context.Context, in UpdateTopicInput) (*models.Topic, error) {
	topic, err := s.topics.GetByID(ctx, in.TopicID)
	if err != nil {
		return nil, err
	}
	if err := s.requireOwnerOrAdmin(ctx, in.UserID, topic.AuthorID, "You can only edit your own topics"); err != nil {
		return nil, err
	}

	title, content, category := topic.Title, topic.Content, topic.Category
	if in.Title != nil {
		title = strings.TrimSpace(*in.Title)
	}
	if in.Content != nil {
		content = strings.TrimSpace(*in.Content)
	}
	if in.Category != nil {
		category = normalizeCategory(*in.Category)
	}
	if err := validateTopic(title, content, category); err != nil {
		return nil, err
	}

	if err := s.topics.UpdateFields(ctx, topic.ID, map[string]any{
		"title":    title,
		"content":  content,
		"category": category,
	}); err != nil {
		return nil, err
	}
	return s.topics.GetByID(ctx, topic.ID)
}

// DeleteTopic removes the topic and every post in it. It returns the number
// of posts removed.
func (s *ForumService) DeleteTopic(ctx context.Context, userID, topicID uint) (int64, error) {
	topic, err := s.topics.GetByID(ctx, topicID)
	if err != nil {
		return 0, err
	}
	if err := s.requireOwnerOrAdmin(ctx, userID, topic.AuthorID, "You can only delete your own topics"); err != nil {
		return 0, err
	}
	return s.topics.Delete(ctx, topicID)
}

// SetPinned and SetLocked are admin-only moderation toggles.
func (s *ForumService) SetPinned(ctx context.Context, userID, topicID uint, pinned bool) (*models.Topic, error) {
	return s.setFlag(ctx, userID, topicID, "is_pinned", pinned)
}

func (s *ForumService) SetLocked(ctx context.Context, userID, topicID uint, locked bool) (*models.Topic, error) {
	return s.setFlag(ctx, userID, topicID, "is_locked", locked)
}

func (s *ForumService) setFlag(ctx context.Context, userID, topicID uint, column string, value bool) (*models.Topic, error) {
	admin, err := s.isAdmin(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !admin {
		return nil, models.NewForbiddenError("Admin access required")
	}
	if err := s.topics.UpdateFields(ctx, topicID, map[string]any{column: value}); err != nil {
		return nil, err
	}
	return s.topics.GetByID(ctx, topicID)
}

func (s *ForumService) ListPosts(ctx context.Context, topicID uint, page repository.Page) ([]models.Post, error) {
	if _, err := s.topics.GetByID(ctx, topicID); err != nil {
		return nil, err
	}
	return s.posts.ListByTopic(ctx, topicID, page)
}

func (s *ForumService) CreatePost(ctx context.Context, in CreatePostInput) (*models.Post, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, models.NewValidationError("Content is required")
	}
	if utf8.RuneCountInString(content) > postContentMax {
		return nil, models.NewValidationError("Content too long (max 10000 characters)")
	}

	topic, err := s.topics.GetByID(ctx, in.TopicID)
	if err != nil {
		return nil, err
	}
	if topic.IsLocked {
		return nil, models.NewForbiddenError("Topic is locked")
	}
	if in.ParentID != nil {
		parent, err := s.posts.GetByID(ctx, *in.ParentID)
		if err != nil {
			if models.IsCode(err, models.CodeNotFound) {
				return nil, models.NewValidationError("Parent post not found")
			}
			return nil, err
		}
		if parent.TopicID != topic.ID {
			return nil, models.NewValidationError("Parent post belongs to another topic")
		}
	}

	post := &models.Post{
		TopicID:  topic.ID,
		AuthorID: in.UserID,
		ParentID: in.ParentID,
		Content:  content,
	}
	if err := s.posts.Create(ctx, post); err != nil {
		return nil, err
	}
	created, err := s.posts.GetByID(ctx, post.ID)
	if err != nil {
		return nil, err
	}

	if topic.AuthorID != in.UserID {
		s.notifier.NotifyUser(ctx, topic.AuthorID, "topic_reply", map[string]any{
			"topic_id":    topic.ID,
			"topic_title": topic.Title,
			"post_id":     created.ID,
			"author":      created.Author.Username,
		})
	}
	return created, nil
}

// UpdatePost is restricted to the author; admins moderate by deleting.
func (s *ForumService) UpdatePost(ctx context.Context, userID, postID uint, content string) (*models.Post, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, models.NewValidationError("Content is required")
	}
	if utf8.RuneCountInString(content) > postContentMax {
		return nil, models.NewValidationError("Content too long (max 10000 characters)")
	}
	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.AuthorID != userID {
		return nil, models.NewForbiddenError("You can only edit your own posts")
	}
	if err := s.posts.UpdateContent(ctx, postID, content); err != nil {
		return nil, err
	}
	return s.posts.GetByID(ctx, postID)
}

func (s *ForumService) DeletePost(ctx context.Context, userID, postID uint) error {
	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return err
	}
	if err := s.requireOwnerOrAdmin(ctx, userID, post.AuthorID, "You can only delete your own posts"); err != nil {
		return err
	}
	return s.posts.Delete(ctx, postID)
}

func (s *ForumService) requireOwnerOrAdmin(ctx context.Context, userID, ownerID uint, msg string) error {
	if userID == ownerID {
		return nil
	}
	admin, err := s.isAdmin(ctx, userID)
	if err != nil {
		return err
	}
	if !admin {
		return models.NewForbiddenError(msg)
	}
	return nil
}

func normalizeCategory(category string) string {
	category = strings.ToLower(strings.TrimSpace(category))
	if category == "" {
		return models.DefaultTopicCategory
	}
	return category
}

func validateTopic(title, content, category string) error {
	n := utf8.RuneCountInString(title)
	if n < topicTitleMin || n > topicTitleMax {
		return models.NewValidationError("Title must be 3-200 characters")
	}
	if content == "" {
		return models.NewValidationError("Content is required")
	}
	if utf8.RuneCountInString(content) > topicContentMax {
		return models.NewValidationError("Content too long (max 20000 characters)")
	}
	if len(category) > categoryMax {
		return models.NewValidationError("Category too long (max 50 characters)")
	}
	return nil
}

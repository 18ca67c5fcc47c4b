package server

import (
	"studyhub/internal/models"
	"studyhub/internal/repository"
	"studyhub/internal/service"

	"github.com/gofiber/fiber/v2"
)

// ListTopics handles GET /api/topics
// @Summary List topics
// @Description Pinned topics first, then by last activity
// @Tags forum
// @Param category query string false "Category"
// @Param q query string false "Search text"
// @Param limit query int false "Limit"
// @Param offset query int false "Offset"
// @Success 200 {array} models.Topic
// @Router /topics [get]
func (s *Server) ListTopics(c *fiber.Ctx) error {
	topics, err := s.forum.ListTopics(c.UserContext(), repository.TopicFilter{
		Category: c.Query("category"),
		Query:    c.Query("q"),
		Page:     parsePagination(c, defaultPaginationLimit),
	})
	if err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(topics)
}

// ListCategories handles GET /api/topics/categories
// @Summary Topic categories
// @Tags forum
// @Success 200 {array} models.CategoryCount
// @Router /topics/categories [get]
func (s *Server) ListCategories(c *fiber.Ctx) error {
	categories, err := s.forum.Categories(c.UserContext())
	if err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(categories)
}

// GetTopic handles GET /api/topics/:id
// @Summary Get topic
// @Tags forum
// @Param id path int true "Topic ID"
// @Success 200 {object} models.Topic
// @Failure 404 {object} models.ErrorResponse
// @Router /topics/{id} [get]
func (s *Server) GetTopic(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	topic, err := s.forum.GetTopic(c.UserContext(), id)
	if err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(topic)
}

// CreateTopic handles POST /api/topics
// @Summary Create topic
// @Tags forum
// @Security BearerAuth
// @Accept json
// @Param request body object{title=string,content=string,category=string} true "Topic"
// @Success 201 {object} models.Topic
// @Failure 400 {object} models.ErrorResponse
// @Router /topics [post]
func (s *Server) CreateTopic(c *fiber.Ctx) error {
	var req struct {
		Title    string `json:"title"`
		Content  string `json:"content"`
		Category string `json:"category"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	topic, err := s.forum.CreateTopic(c.UserContext(), service.CreateTopicInput{
		UserID:   currentUserID(c),
		Title:    req.Title,
		Content:  req.Content,
		Category: req.Category,
	})
	if err != nil {
		return models.Respond(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(topic)
}

// UpdateTopic handles PUT /api/topics/:id
// @Summary Update topic
// @Tags forum
// @Security BearerAuth
// @Param id path int true "Topic ID"
// @Param request body object{title=string,content=string,category=string} true "Fields to change"
// @Success 200 {object} models.Topic
// @Failure 403 {object} models.ErrorResponse
// @Router /topics/{id} [put]
func (s *Server) UpdateTopic(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	var req struct {
		Title    *string `json:"title"`
		Content  *string `json:"content"`
		Category *string `json:"category"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	topic, err := s.forum.UpdateTopic(c.UserContext(), service.UpdateTopicInput{
		UserID:   currentUserID(c),
		TopicID:  id,
		Title:    req.Title,
		Content:  req.Content,
		Category: req.Category,
	})
	if err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(topic)
}

// DeleteTopic handles DELETE /api/topics/:id and DELETE /api/admin/topics/:id
// @Summary Delete topic
// @Description Deletes the topic and every post in it
// @Tags forum
// @Security BearerAuth
// @Param id path int true "Topic ID"
// @Success 200 {object} object{message=string,posts_deleted=int}
// @Failure 403 {object} models.ErrorResponse
// @Router /topics/{id} [delete]
func (s *Server) DeleteTopic(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	removed, err := s.forum.DeleteTopic(c.UserContext(), currentUserID(c), id)
	if err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(fiber.Map{"message": "Topic deleted", "posts_deleted": removed})
}

type flagRequest struct {
	Value bool `json:"value"`
}

// PinTopic handles POST /api/topics/:id/pin
// @Summary Pin or unpin topic
// @Tags forum
// @Security BearerAuth
// @Param id path int true "Topic ID"
// @Param request body object{value=bool} true "Pinned"
// @Success 200 {object} models.Topic
// @Router /topics/{id}/pin [post]
func (s *Server) PinTopic(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	var req flagRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	topic, err := s.forum.SetPinned(c.UserContext(), currentUserID(c), id, req.Value)
	if err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(topic)
}

// LockTopic handles POST /api/topics/:id/lock
// @Summary Lock or unlock topic
// @Tags forum
// @Security BearerAuth
// @Param id path int true "Topic ID"
// @Param request body object{value=bool} true "Locked"
// @Success 200 {object} models.Topic
// @Router /topics/{id}/lock [post]
func (s *Server) LockTopic(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	var req flagRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	topic, err := s.forum.SetLocked(c.UserContext(), currentUserID(c), id, req.Value)
	if err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(topic)
}

// ListPosts handles GET /api/topics/:id/posts
// @Summary List posts
// @Tags forum
// @Param id path int true "Topic ID"
// @Param limit query int false "Limit"
// @Param offset query int false "Offset"
// @Success 200 {array} models.Post
// @Router /topics/{id}/posts [get]
func (s *Server) ListPosts(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	posts, err := s.forum.ListPosts(c.UserContext(), id, parsePagination(c, 50))
	if err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(posts)
}

// CreatePost handles POST /api/topics/:id/posts
// @Summary Reply to topic
// @Tags forum
// @Security BearerAuth
// @Param id path int true "Topic ID"
// @Param request body object{content=string,parent_id=int} true "Post"
// @Success 201 {object} models.Post
// @Failure 403 {object} models.ErrorResponse
// @Router /topics/{id}/posts [post]
func (s *Server) CreatePost(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	var req struct {
		Content  string `json:"content"`
		ParentID *uint  `json:"parent_id"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	post, err := s.forum.CreatePost(c.UserContext(), service.CreatePostInput{
		UserID:   currentUserID(c),
		TopicID:  id,
		ParentID: req.ParentID,
		Content:  req.Content,
	})
	if err != nil {
		return models.Respond(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(post)
}

// UpdatePost handles PUT /api/posts/:id
// @Summary Edit post
// @Tags forum
// @Security BearerAuth
// @Param id path int true "Post ID"
// @Param request body object{content=string} true "Content"
// @Success 200 {object} models.Post
// @Router /posts/{id} [put]
func (s *Server) UpdatePost(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	var req struct {
		Content string `json:"content"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	post, err := s.forum.UpdatePost(c.UserContext(), currentUserID(c), id, req.Content)
	if err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(post)
}

// DeletePost handles DELETE /api/posts/:id and DELETE /api/admin/posts/:id
// @Summary Delete post
// @Tags forum
// @Security BearerAuth
// @Param id path int true "Post ID"
// @Success 200 {object} object{message=string}
// @Router /posts/{id} [delete]
func (s *Server) DeletePost(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	if err := s.forum.DeletePost(c.UserContext(), currentUserID(c), id); err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(fiber.Map{"message": "Post deleted"})
}

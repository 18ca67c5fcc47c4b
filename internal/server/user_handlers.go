package server

import (
	"io"

	"studyhub/internal/models"
	"studyhub/internal/repository"
	"studyhub/internal/service"

	"github.com/gofiber/fiber/v2"
)

// GetMyProfile handles GET /api/users/me
// @Summary Get my profile
// @Tags users
// @Security BearerAuth
// @Success 200 {object} models.User
// @Router /users/me [get]
func (s *Server) GetMyProfile(c *fiber.Ctx) error {
	user, err := s.users.GetUserByID(c.UserContext(), currentUserID(c))
	if err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(user)
}

// UpdateMyProfile handles PUT /api/users/me
// @Summary Update my profile
// @Tags users
// @Security BearerAuth
// @Accept json
// @Param request body object{display_name=string,bio=string,university=string,major=string,year=string} true "Profile fields"
// @Success 200 {object} models.User
// @Failure 400 {object} models.ErrorResponse
// @Router /users/me [put]
func (s *Server) UpdateMyProfile(c *fiber.Ctx) error {
	var req struct {
		DisplayName *string `json:"display_name"`
		Bio         *string `json:"bio"`
		University  *string `json:"university"`
		Major       *string `json:"major"`
		Year        *string `json:"year"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	user, err := s.users.UpdateProfile(c.UserContext(), service.UpdateProfileInput{
		UserID:      currentUserID(c),
		DisplayName: req.DisplayName,
		Bio:         req.Bio,
		University:  req.University,
		Major:       req.Major,
		Year:        req.Year,
	})
	if err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(user)
}

// UploadAvatar handles POST /api/users/me/avatar
// @Summary Upload avatar
// @Description Accepts JPEG, PNG or WebP; stored as a 256x256 WebP
// @Tags users
// @Security BearerAuth
// @Accept multipart/form-data
// @Param avatar formData file true "Image"
// @Success 200 {object} models.User
// @Failure 400 {object} models.ErrorResponse
// @Failure 413 {object} models.ErrorResponse
// @Router /users/me/avatar [post]
func (s *Server) UploadAvatar(c *fiber.Ctx) error {
	fh, err := c.FormFile("avatar")
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Missing avatar file"))
	}
	if fh.Size > s.avatars.MaxBytes() {
		return models.RespondWithError(c, fiber.StatusRequestEntityTooLarge,
			models.NewValidationError("Avatar file is too large"))
	}

	f, err := fh.Open()
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Unreadable avatar file"))
	}
	defer f.Close()

	content, err := io.ReadAll(io.LimitReader(f, s.avatars.MaxBytes()+1))
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Unreadable avatar file"))
	}

	user, err := s.avatars.Upload(c.UserContext(), currentUserID(c), content, fh.Header.Get(fiber.HeaderContentType))
	if err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(user)
}

// GetUserProfile handles GET /api/users/:id
// @Summary Public profile
// @Tags users
// @Security BearerAuth
// @Param id path int true "User ID"
// @Success 200 {object} models.User
// @Failure 404 {object} models.ErrorResponse
// @Router /users/{id} [get]
func (s *Server) GetUserProfile(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	user, err := s.users.GetPublicProfile(c.UserContext(), id)
	if err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(user)
}

// GetUserTopics handles GET /api/users/:id/topics
// @Summary Topics by user
// @Tags users
// @Security BearerAuth
// @Param id path int true "User ID"
// @Success 200 {array} models.Topic
// @Router /users/{id}/topics [get]
func (s *Server) GetUserTopics(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	topics, err := s.forum.ListTopics(c.UserContext(), repository.TopicFilter{
		AuthorID: id,
		Page:     parsePagination(c, defaultPaginationLimit),
	})
	if err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(topics)
}

// GetOnlineUsers handles GET /api/users/online
// @Summary Online users
// @Description Ids of users with an open notification socket
// @Tags users
// @Security BearerAuth
// @Success 200 {object} object{user_ids=[]int}
// @Router /users/online [get]
func (s *Server) GetOnlineUsers(c *fiber.Ctx) error {
	ids := s.hub.OnlineUserIDs(c.UserContext())
	if ids == nil {
		ids = []uint{}
	}
	return c.JSON(fiber.Map{"user_ids": ids})
}

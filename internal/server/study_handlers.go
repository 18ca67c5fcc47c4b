package server

import (
	"studyhub/internal/models"
	"studyhub/internal/service"

	"github.com/gofiber/fiber/v2"
)

// CreateStudyRoom handles POST /api/study-rooms
// @Summary Create study room
// @Tags study-rooms
// @Security BearerAuth
// @Accept json
// @Param request body object{title=string,subject=string,description=string,max_participants=int} true "Room"
// @Success 201 {object} models.StudySession
// @Failure 400 {object} models.ErrorResponse
// @Router /study-rooms [post]
func (s *Server) CreateStudyRoom(c *fiber.Ctx) error {
	var req struct {
		Title           string `json:"title"`
		Subject         string `json:"subject"`
		Description     string `json:"description"`
		MaxParticipants int    `json:"max_participants"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	session, err := s.study.Create(c.UserContext(), service.CreateStudySessionInput{
		HostID:          currentUserID(c),
		Title:           req.Title,
		Subject:         req.Subject,
		Description:     req.Description,
		MaxParticipants: req.MaxParticipants,
	})
	if err != nil {
		return models.Respond(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(session)
}

// ListStudyRooms handles GET /api/study-rooms
// @Summary Active study rooms
// @Tags study-rooms
// @Security BearerAuth
// @Param subject query string false "Subject"
// @Success 200 {array} models.StudySession
// @Router /study-rooms [get]
func (s *Server) ListStudyRooms(c *fiber.Ctx) error {
	sessions, err := s.study.List(c.UserContext(), c.Query("subject"), parsePagination(c, defaultPaginationLimit))
	if err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(sessions)
}

// GetStudyRoom handles GET /api/study-rooms/:roomId
// @Summary Study room with live members
// @Tags study-rooms
// @Security BearerAuth
// @Param roomId path string true "Room ID"
// @Success 200 {object} object{session=models.StudySession,members=[]models.RoomMember}
// @Failure 404 {object} models.ErrorResponse
// @Router /study-rooms/{roomId} [get]
func (s *Server) GetStudyRoom(c *fiber.Ctx) error {
	session, members, err := s.study.Get(c.UserContext(), c.Params("roomId"))
	if err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(fiber.Map{"session": session, "members": members})
}

// EndStudyRoom handles POST /api/study-rooms/:roomId/end
// @Summary End study room
// @Description Host or admin only; disconnects every participant
// @Tags study-rooms
// @Security BearerAuth
// @Param roomId path string true "Room ID"
// @Success 200 {object} models.StudySession
// @Failure 403 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /study-rooms/{roomId}/end [post]
func (s *Server) EndStudyRoom(c *fiber.Ctx) error {
	session, err := s.study.End(c.UserContext(), currentUserID(c), c.Params("roomId"))
	if err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(session)
}

// GetICEServers handles GET /api/study-rooms/ice-servers
// @Summary ICE servers
// @Tags study-rooms
// @Security BearerAuth
// @Success 200 {object} object{ice_servers=[]service.ICEServer}
// @Router /study-rooms/ice-servers [get]
func (s *Server) GetICEServers(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"ice_servers": s.study.ICEServers()})
}

// ReservePeerID handles GET /api/peer/id
// @Summary Reserve a peer id
// @Description Returns a fresh peer id reserved for five minutes
// @Tags study-rooms
// @Security BearerAuth
// @Produce plain
// @Success 200 {string} string
// @Failure 403 {object} models.ErrorResponse
// @Router /peer/id [get]
func (s *Server) ReservePeerID(c *fiber.Ctx) error {
	id, err := s.peers.ReserveID(c.UserContext(), currentUserID(c))
	if err != nil {
		return models.Respond(c, err)
	}
	return c.SendString(id)
}

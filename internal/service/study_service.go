package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"studyhub/internal/config"
	"studyhub/internal/models"
	"studyhub/internal/repository"

	"github.com/google/uuid"
)

const (
	defaultMaxRoomPeers = 8
	minRoomPeers        = 2
	publicSTUNServer    = "stun:stun.l.google.com:19302"
)

// RoomDirectory is the live room registry as seen by the REST layer.
type RoomDirectory interface {
	ParticipantCount(roomID string) int
	Members(roomID string) []models.RoomMember
	CloseRoom(roomID, reason string)
}

// ICEServer mirrors RTCIceServer on the client.
type ICEServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

type CreateStudySessionInput struct {
	HostID          uint
	Title           string
	Subject         string
	Description     string
	MaxParticipants int
}

// StudyService manages study room sessions. Membership itself lives in the
// socket hub; this service owns the persisted session records.
type StudyService struct {
	repo     repository.StudySessionRepository
	rooms    RoomDirectory
	settings *SettingsService
	cfg      *config.Config
	isAdmin  func(ctx context.Context, userID uint) (bool, error)
}

func NewStudyService(
	repo repository.StudySessionRepository,
	settings *SettingsService,
	cfg *config.Config,
	isAdmin func(ctx context.Context, userID uint) (bool, error),
) *StudyService {
	return &StudyService{repo: repo, settings: settings, cfg: cfg, isAdmin: isAdmin}
}

// SetRooms attaches the live registry once the hub exists.
func (s *StudyService) SetRooms(rooms RoomDirectory) {
	s.rooms = rooms
}

// peerCap is the max_room_peers setting, bounded by MAX_ROOM_PEERS.
func (s *StudyService) peerCap(ctx context.Context) int {
	ceiling := defaultMaxRoomPeers
	if s.cfg != nil && s.cfg.MaxRoomPeers > 0 {
		ceiling = s.cfg.MaxRoomPeers
	}
	limit := ceiling
	if s.settings != nil {
		limit = min(s.settings.Int(ctx, models.SettingMaxRoomPeers, ceiling), ceiling)
	}
	return max(limit, minRoomPeers)
}

func (s *StudyService) Create(ctx context.Context, in CreateStudySessionInput) (*models.StudySession, error) {
	title := strings.TrimSpace(in.Title)
	if n := utf8.RuneCountInString(title); n < 3 || n > 120 {
		return nil, models.NewValidationError("Title must be 3-120 characters")
	}
	subject := strings.TrimSpace(in.Subject)
	if utf8.RuneCountInString(subject) > 80 {
		return nil, models.NewValidationError("Subject too long (max 80 characters)")
	}
	description := strings.TrimSpace(in.Description)
	if utf8.RuneCountInString(description) > 1000 {
		return nil, models.NewValidationError("Description too long (max 1000 characters)")
	}

	limit := s.peerCap(ctx)
	maxParticipants := in.MaxParticipants
	if maxParticipants == 0 {
		maxParticipants = limit
	}
	maxParticipants = min(max(maxParticipants, minRoomPeers), limit)

	session := &models.StudySession{
		RoomID:          uuid.NewString(),
		Title:           title,
		Subject:         subject,
		Description:     description,
		HostID:          in.HostID,
		MaxParticipants: maxParticipants,
		IsActive:        true,
	}
	if err := s.repo.Create(ctx, session); err != nil {
		return nil, err
	}
	return s.repo.GetByRoomID(ctx, session.RoomID)
}

func (s *StudyService) List(ctx context.Context, subject string, page repository.Page) ([]models.StudySession, error) {
	sessions, err := s.repo.ListActive(ctx, strings.TrimSpace(subject), page)
	if err != nil {
		return nil, err
	}
	for i := range sessions {
		sessions[i].ParticipantCount = s.participants(sessions[i].RoomID)
	}
	return sessions, nil
}

// Get returns the session and its live members.
func (s *StudyService) Get(ctx context.Context, roomID string) (*models.StudySession, []models.RoomMember, error) {
	session, err := s.repo.GetByRoomID(ctx, roomID)
	if err != nil {
		return nil, nil, err
	}
	members := []models.RoomMember{}
	if s.rooms != nil {
		members = s.rooms.Members(roomID)
	}
	session.ParticipantCount = len(members)
	return session, members, nil
}

// End closes the room for everyone. Only the host or an admin may end it.
func (s *StudyService) End(ctx context.Context, userID uint, roomID string) (*models.StudySession, error) {
	session, err := s.repo.GetByRoomID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if session.HostID != userID {
		admin, err := s.isAdmin(ctx, userID)
		if err != nil {
			return nil, err
		}
		if !admin {
			return nil, models.NewForbiddenError("Only the host can end this room")
		}
	}
	if !session.IsActive {
		return nil, models.NewConflictError("Study room has already ended")
	}
	now := time.Now()
	if err := s.repo.End(ctx, roomID, now); err != nil {
		return nil, err
	}
	if s.rooms != nil {
		s.rooms.CloseRoom(roomID, "ended")
	}
	session.IsActive = false
	session.EndedAt = &now
	return session, nil
}

// RoomCapacity reports the participant limit of an active room.
func (s *StudyService) RoomCapacity(ctx context.Context, roomID string) (int, error) {
	session, err := s.repo.GetByRoomID(ctx, roomID)
	if err != nil {
		return 0, err
	}
	if !session.IsActive {
		return 0, models.NewConflictError("Study room has ended")
	}
	return session.MaxParticipants, nil
}

// ICEServers returns the public STUN server plus TURN when configured.
func (s *StudyService) ICEServers() []ICEServer {
	servers := []ICEServer{{URLs: []string{publicSTUNServer}}}
	if s.cfg != nil && s.cfg.TURNURL != "" {
		servers = append(servers, ICEServer{
			URLs:       []string{s.cfg.TURNURL},
			Username:   s.cfg.TURNUsername,
			Credential: s.cfg.TURNPassword,
		})
	}
	return servers
}

func (s *StudyService) participants(roomID string) int {
	if s.rooms == nil {
		return 0
	}
	return s.rooms.ParticipantCount(roomID)
}

package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"studyhub/internal/models"
	"studyhub/internal/observability"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/datatypes"
)

const (
	// MaxTotalRooms bounds the number of rooms held by one instance.
	MaxTotalRooms = 1000
	// DefaultRoomCapacity applies when no RoomStore is configured.
	DefaultRoomCapacity = 8

	maxRoomSockets    = 10000
	maxChatRunes      = 2000
	maxIDLength       = 64
	roomMembersPrefix = "studyroom:members:"
	roomMembersTTL    = 24 * time.Hour

	instanceAlivePrefix = "studyroom:instance:"
	instanceAliveTTL    = 30 * time.Second
	instanceHeartbeat   = 10 * time.Second
)

// Study room socket events.
const (
	EventConnected        = "connected"
	EventJoinRoom         = "join-room"
	EventLeaveRoom        = "leave-room"
	EventSignal           = "signal"
	EventMediaState       = "media-state"
	EventRoomMessage      = "room-message"
	EventRoomMembers      = "room-members"
	EventUserConnected    = "user-connected"
	EventUserDisconnected = "user-disconnected"
	EventRoomClosed       = "room-closed"
	EventServerShutdown   = "server-shutdown"
	EventError            = "error"
)

var (
	ErrInvalidRoom     = errors.New("room_id is required")
	ErrPeerIDTooLong   = errors.New("peer_id is too long")
	ErrRoomNotFound    = errors.New("room not found")
	ErrRoomEnded       = errors.New("room has ended")
	ErrRoomUnavailable = errors.New("room is unavailable")
	ErrRoomFull        = errors.New("room is full")
	ErrTooManyRooms    = errors.New("too many active rooms")
	ErrNotInRoom       = errors.New("join a room first")
	ErrMissingTarget   = errors.New("signal target is required")
	ErrEmptyPayload    = errors.New("payload is required")
	ErrTargetNotInRoom = errors.New("target is not in this room")
	ErrInvalidMedia    = errors.New("media state is required")
	ErrChatDisabled    = errors.New("room chat is disabled")
	ErrInvalidChat     = errors.New("message must be 1-2000 characters")
)

// RoomEvent is the frame exchanged on study room sockets.
type RoomEvent struct {
	Event    string             `json:"event"`
	RoomID   string             `json:"room_id,omitempty"`
	SocketID string             `json:"socket_id,omitempty"`
	From     string             `json:"from,omitempty"`
	To       string             `json:"to,omitempty"`
	UserID   uint               `json:"user_id,omitempty"`
	Username string             `json:"username,omitempty"`
	PeerID   string             `json:"peer_id,omitempty"`
	Media    *models.MediaState `json:"media,omitempty"`
	Message  string             `json:"message,omitempty"`
	Ref      string             `json:"ref,omitempty"`
	Payload  json.RawMessage    `json:"payload,omitempty"`
}

type roomMembersEvent struct {
	Event   string              `json:"event"`
	RoomID  string              `json:"room_id"`
	Members []models.RoomMember `json:"members"`
}

// RoomStore reports the participant limit of a joinable room.
type RoomStore interface {
	RoomCapacity(ctx context.Context, roomID string) (int, error)
}

// ActivityRecorder receives join and leave analytics.
type ActivityRecorder interface {
	Record(event *models.AnalyticsEvent) bool
}

// StudyRoomConfig wires optional collaborators into the hub.
type StudyRoomConfig struct {
	Redis           *redis.Client
	Store           RoomStore
	Activity        ActivityRecorder
	ChatEnabled     func(userID uint) bool
	MaxRooms        int
	DefaultCapacity int
}

type roomMember struct {
	client *Client
	info   models.RoomMember
}

// storedMember is the Redis view of a member, tagged with its instance.
type storedMember struct {
	models.RoomMember
	Instance string `json:"instance"`
}

// roomRelay carries a frame to the other instances. Frame stays a string so
// signal payloads survive the trip byte for byte.
type roomRelay struct {
	Origin  string `json:"origin"`
	RoomID  string `json:"room_id"`
	Target  string `json:"target,omitempty"`
	Exclude string `json:"exclude,omitempty"`
	Close   bool   `json:"close,omitempty"`
	Frame   string `json:"frame"`
}

// StudyRoomHub is the signaling relay for video study rooms. It tracks which
// sockets are in which room, announces arrivals and departures, and forwards
// SDP/ICE payloads between two sockets of the same room without looking at
// them. Media never passes through the server.
type StudyRoomHub struct {
	mu         sync.RWMutex
	sockets    map[string]*Client
	socketRoom map[string]string
	rooms      map[string]map[string]*roomMember

	instanceID      string
	rdb             *redis.Client
	notifier        *Notifier
	store           RoomStore
	activity        ActivityRecorder
	chatEnabled     func(userID uint) bool
	maxRooms        int
	defaultCapacity int
	log             *observability.WSLogger
}

func NewStudyRoomHub(cfg StudyRoomConfig) *StudyRoomHub {
	h := &StudyRoomHub{
		sockets:         make(map[string]*Client),
		socketRoom:      make(map[string]string),
		rooms:           make(map[string]map[string]*roomMember),
		instanceID:      uuid.NewString(),
		rdb:             cfg.Redis,
		notifier:        NewNotifier(cfg.Redis),
		store:           cfg.Store,
		activity:        cfg.Activity,
		chatEnabled:     cfg.ChatEnabled,
		maxRooms:        cfg.MaxRooms,
		defaultCapacity: cfg.DefaultCapacity,
		log:             observability.NewWSLogger("study_rooms"),
	}
	if h.maxRooms <= 0 {
		h.maxRooms = MaxTotalRooms
	}
	if h.defaultCapacity <= 0 {
		h.defaultCapacity = DefaultRoomCapacity
	}
	return h
}

func (h *StudyRoomHub) Name() string { return "study_rooms" }

// Register accepts a socket and sends it its server-assigned id.
func (h *StudyRoomHub) Register(userID uint, username string, conn *websocket.Conn) (*Client, error) {
	c := NewClient(h, conn, userID)
	c.Username = username
	c.SocketID = uuid.NewString()
	c.IncomingHandler = h.HandleMessage

	h.mu.Lock()
	if len(h.sockets) >= maxRoomSockets {
		h.mu.Unlock()
		return nil, ErrServerFull
	}
	h.sockets[c.SocketID] = c
	h.mu.Unlock()

	observability.WebSocketConnectionsTotal.WithLabelValues(h.Name()).Inc()
	h.send(c, RoomEvent{Event: EventConnected, SocketID: c.SocketID, UserID: userID, Username: username})
	return c, nil
}

// UnregisterClient removes the socket from its room and closes it.
func (h *StudyRoomHub) UnregisterClient(c *Client) {
	h.leave(context.Background(), c, "disconnected")

	h.mu.Lock()
	_, ok := h.sockets[c.SocketID]
	delete(h.sockets, c.SocketID)
	h.mu.Unlock()

	if ok {
		observability.WebSocketConnectionsTotal.WithLabelValues(h.Name()).Dec()
	}
	c.Close()
}

// HandleMessage dispatches one client frame. Failures go back to the sender
// as an error event.
func (h *StudyRoomHub) HandleMessage(c *Client, raw []byte) {
	var ev RoomEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		h.sendError(c, "", errors.New("invalid message"))
		return
	}

	ctx, span := observability.TraceSignal(context.Background(), h.Name(), ev.Event, ev.RoomID)
	var err error
	switch ev.Event {
	case EventJoinRoom:
		err = h.Join(ctx, c, ev.RoomID, ev.PeerID)
	case EventLeaveRoom:
		h.Leave(ctx, c)
	case EventSignal:
		err = h.Signal(ctx, c, ev.To, ev.Payload)
	case EventMediaState:
		err = h.SetMedia(ctx, c, ev.Media)
	case EventRoomMessage:
		err = h.RoomMessage(ctx, c, ev.Payload)
	default:
		err = errors.New("unknown event")
	}

	outcome := "ok"
	if err != nil {
		outcome = "error"
		h.sendError(c, ev.Event, err)
	}
	observability.SignalingEvents.WithLabelValues(ev.Event, outcome).Inc()
	observability.EndSpan(span, err)
}

// Join puts c into roomID, leaving any previous room. The joiner receives the
// members already present; everyone else receives user-connected.
func (h *StudyRoomHub) Join(ctx context.Context, c *Client, roomID, peerID string) error {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" || len(roomID) > maxIDLength {
		return ErrInvalidRoom
	}
	if len(peerID) > maxIDLength {
		return ErrPeerIDTooLong
	}

	capacity, err := h.capacity(ctx, roomID)
	if err != nil {
		return err
	}

	if h.RoomOf(c) == roomID {
		h.sendJSON(c, roomMembersEvent{Event: EventRoomMembers, RoomID: roomID, Members: h.membersExcept(ctx, roomID, c.SocketID)})
		return nil
	}

	remote := h.remoteMembers(ctx, roomID)

	// The previous room is only left once the new one has accepted c.
	h.mu.Lock()
	previous := h.socketRoom[c.SocketID]
	room := h.rooms[roomID]
	openRooms := len(h.rooms)
	if previous != "" && len(h.rooms[previous]) == 1 {
		openRooms--
	}
	if room == nil && openRooms >= h.maxRooms {
		h.mu.Unlock()
		return ErrTooManyRooms
	}
	if len(room)+len(remote) >= capacity {
		h.mu.Unlock()
		return ErrRoomFull
	}
	var left departure
	if previous != "" {
		left, _ = h.detachLocked(c.SocketID)
	}
	if room == nil {
		room = make(map[string]*roomMember)
		h.rooms[roomID] = room
		observability.StudyRoomsActive.Inc()
	}
	existing := make([]models.RoomMember, 0, len(room)+len(remote))
	peers := make([]*Client, 0, len(room))
	for _, m := range room {
		existing = append(existing, m.info)
		peers = append(peers, m.client)
	}
	member := &roomMember{client: c, info: models.RoomMember{
		SocketID: c.SocketID,
		UserID:   c.UserID,
		Username: c.Username,
		PeerID:   peerID,
		JoinedAt: time.Now().UTC(),
	}}
	room[c.SocketID] = member
	h.socketRoom[c.SocketID] = roomID
	h.mu.Unlock()

	if previous != "" {
		h.announceLeave(ctx, c, left, "switched")
	}
	observability.StudyRoomMembers.Inc()
	h.storeMember(ctx, roomID, member.info)

	existing = append(existing, remote...)
	sortMembers(existing)
	h.sendJSON(c, roomMembersEvent{Event: EventRoomMembers, RoomID: roomID, Members: existing})

	frame, err := json.Marshal(RoomEvent{
		Event:    EventUserConnected,
		RoomID:   roomID,
		SocketID: c.SocketID,
		UserID:   c.UserID,
		Username: c.Username,
		PeerID:   peerID,
	})
	if err != nil {
		return err
	}
	for _, p := range peers {
		p.TrySend(frame)
	}
	h.relay(ctx, roomRelay{RoomID: roomID, Exclude: c.SocketID, Frame: string(frame)})

	h.record(c, "study_room.join", roomID)
	h.log.LogConnect(ctx, c.UserID, roomID, c.SocketID)
	return nil
}

// Leave removes c from its room, if any.
func (h *StudyRoomHub) Leave(ctx context.Context, c *Client) {
	h.leave(ctx, c, "left")
}

func (h *StudyRoomHub) leave(ctx context.Context, c *Client, reason string) {
	h.mu.Lock()
	d, ok := h.detachLocked(c.SocketID)
	h.mu.Unlock()
	if ok {
		h.announceLeave(ctx, c, d, reason)
	}
}

// departure describes a socket that was just taken out of a room.
type departure struct {
	roomID    string
	remaining []*Client
}

// detachLocked removes socketID from its room. Callers hold h.mu.
func (h *StudyRoomHub) detachLocked(socketID string) (departure, bool) {
	roomID, ok := h.socketRoom[socketID]
	if !ok {
		return departure{}, false
	}
	delete(h.socketRoom, socketID)
	room := h.rooms[roomID]
	delete(room, socketID)
	remaining := make([]*Client, 0, len(room))
	for _, m := range room {
		remaining = append(remaining, m.client)
	}
	if len(room) == 0 {
		delete(h.rooms, roomID)
		observability.StudyRoomsActive.Dec()
	}
	return departure{roomID: roomID, remaining: remaining}, true
}

func (h *StudyRoomHub) announceLeave(ctx context.Context, c *Client, d departure, reason string) {
	observability.StudyRoomMembers.Dec()
	h.removeMembers(ctx, d.roomID, c.SocketID)

	frame, err := json.Marshal(RoomEvent{
		Event:    EventUserDisconnected,
		RoomID:   d.roomID,
		SocketID: c.SocketID,
		UserID:   c.UserID,
	})
	if err == nil {
		for _, p := range d.remaining {
			p.TrySend(frame)
		}
		h.relay(ctx, roomRelay{RoomID: d.roomID, Exclude: c.SocketID, Frame: string(frame)})
	}

	h.record(c, "study_room.leave", d.roomID)
	h.log.LogDisconnect(ctx, c.UserID, d.roomID, c.SocketID, reason)
}

// Signal forwards payload untouched to socket `to`, which must share c's room.
func (h *StudyRoomHub) Signal(ctx context.Context, c *Client, to string, payload json.RawMessage) error {
	if to == "" {
		return ErrMissingTarget
	}
	if len(payload) == 0 || string(payload) == "null" {
		return ErrEmptyPayload
	}
	roomID := h.RoomOf(c)
	if roomID == "" {
		return ErrNotInRoom
	}

	frame, err := signalFrame(roomID, c.SocketID, payload)
	if err != nil {
		return err
	}

	h.mu.RLock()
	target, local := h.rooms[roomID][to]
	h.mu.RUnlock()
	if local {
		target.client.TrySend(frame)
		return nil
	}
	if h.isRemoteMember(ctx, roomID, to) {
		h.relay(ctx, roomRelay{RoomID: roomID, Target: to, Frame: string(frame)})
		return nil
	}
	return ErrTargetNotInRoom
}

// signalFrame builds the outbound signal event around the raw payload bytes.
// encoding/json would compact a RawMessage, so the payload is spliced in.
func signalFrame(roomID, from string, payload []byte) ([]byte, error) {
	head, err := json.Marshal(RoomEvent{Event: EventSignal, RoomID: roomID, From: from})
	if err != nil {
		return nil, err
	}
	frame := make([]byte, 0, len(head)+len(payload)+12)
	frame = append(frame, head[:len(head)-1]...)
	frame = append(frame, `,"payload":`...)
	frame = append(frame, payload...)
	return append(frame, '}'), nil
}

// SetMedia stores c's media state and tells the rest of the room.
func (h *StudyRoomHub) SetMedia(ctx context.Context, c *Client, media *models.MediaState) error {
	if media == nil {
		return ErrInvalidMedia
	}

	h.mu.Lock()
	roomID, ok := h.socketRoom[c.SocketID]
	if !ok {
		h.mu.Unlock()
		return ErrNotInRoom
	}
	member := h.rooms[roomID][c.SocketID]
	member.info.Media = *media
	info := member.info
	others := h.roomClientsLocked(roomID, c.SocketID)
	h.mu.Unlock()

	h.storeMember(ctx, roomID, info)

	frame, err := json.Marshal(RoomEvent{
		Event:    EventMediaState,
		RoomID:   roomID,
		SocketID: c.SocketID,
		UserID:   c.UserID,
		Media:    media,
	})
	if err != nil {
		return err
	}
	for _, p := range others {
		p.TrySend(frame)
	}
	h.relay(ctx, roomRelay{RoomID: roomID, Exclude: c.SocketID, Frame: string(frame)})
	return nil
}

// RoomMessage broadcasts a chat line to everyone in the room, sender included.
func (h *StudyRoomHub) RoomMessage(ctx context.Context, c *Client, payload json.RawMessage) error {
	if h.chatEnabled != nil && !h.chatEnabled(c.UserID) {
		return ErrChatDisabled
	}
	var text string
	if err := json.Unmarshal(payload, &text); err != nil {
		return ErrInvalidChat
	}
	text = strings.TrimSpace(text)
	if n := utf8.RuneCountInString(text); n == 0 || n > maxChatRunes {
		return ErrInvalidChat
	}
	roomID := h.RoomOf(c)
	if roomID == "" {
		return ErrNotInRoom
	}

	frame, err := json.Marshal(RoomEvent{
		Event:    EventRoomMessage,
		RoomID:   roomID,
		SocketID: c.SocketID,
		UserID:   c.UserID,
		Username: c.Username,
		Message:  text,
	})
	if err != nil {
		return err
	}
	h.mu.RLock()
	everyone := h.roomClientsLocked(roomID, "")
	h.mu.RUnlock()
	for _, p := range everyone {
		p.TrySend(frame)
	}
	h.relay(ctx, roomRelay{RoomID: roomID, Frame: string(frame)})
	return nil
}

// RoomOf returns the room c is in, or "".
func (h *StudyRoomHub) RoomOf(c *Client) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.socketRoom[c.SocketID]
}

// ParticipantCount is the number of sockets in roomID across instances.
func (h *StudyRoomHub) ParticipantCount(roomID string) int {
	return len(h.Members(roomID))
}

// Members lists the sockets in roomID across instances, oldest first.
func (h *StudyRoomHub) Members(roomID string) []models.RoomMember {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return h.membersExcept(ctx, roomID, "")
}

// CloseRoom sends room-closed to every member and disconnects them.
func (h *StudyRoomHub) CloseRoom(roomID, reason string) {
	frame, err := json.Marshal(RoomEvent{Event: EventRoomClosed, RoomID: roomID, Message: reason})
	if err != nil {
		return
	}
	ctx := context.Background()
	h.closeLocal(roomID, frame)
	if h.rdb != nil {
		_ = h.rdb.Del(ctx, roomMembersPrefix+roomID).Err()
	}
	h.relay(ctx, roomRelay{RoomID: roomID, Close: true, Frame: string(frame)})
}

func (h *StudyRoomHub) closeLocal(roomID string, frame []byte) {
	h.mu.Lock()
	room := h.rooms[roomID]
	delete(h.rooms, roomID)
	clients := make([]*Client, 0, len(room))
	for socketID, m := range room {
		delete(h.socketRoom, socketID)
		clients = append(clients, m.client)
	}
	if room != nil {
		observability.StudyRoomsActive.Dec()
		observability.StudyRoomMembers.Sub(float64(len(room)))
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.TrySend(frame)
		c.Close()
		h.record(c, "study_room.leave", roomID)
	}
	if len(clients) > 0 {
		h.log.LogLifecycle(context.Background(), "room_closed", map[string]any{"room_id": roomID, "members": len(clients)})
	}
}

// StartWiring subscribes to relays published by other instances and keeps
// this instance's liveness key fresh until ctx ends.
func (h *StudyRoomHub) StartWiring(ctx context.Context) error {
	if h.rdb != nil {
		h.markAlive(ctx)
		go h.heartbeat(ctx)
	}
	return h.notifier.StartStudyRoomSubscriber(ctx, func(_ string, payload string) {
		h.handleRelay(payload)
	})
}

func (h *StudyRoomHub) handleRelay(payload string) {
	var r roomRelay
	if err := json.Unmarshal([]byte(payload), &r); err != nil || r.Origin == h.instanceID {
		return
	}
	frame := []byte(r.Frame)
	if r.Close {
		h.closeLocal(r.RoomID, frame)
		return
	}

	h.mu.RLock()
	var targets []*Client
	if r.Target != "" {
		if m, ok := h.rooms[r.RoomID][r.Target]; ok {
			targets = append(targets, m.client)
		}
	} else {
		targets = h.roomClientsLocked(r.RoomID, r.Exclude)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.TrySend(frame)
	}
}

// Shutdown tells every socket the server is stopping and closes them.
func (h *StudyRoomHub) Shutdown(ctx context.Context) error {
	frame, _ := json.Marshal(RoomEvent{Event: EventServerShutdown})

	h.mu.Lock()
	clients := make([]*Client, 0, len(h.sockets))
	for _, c := range h.sockets {
		clients = append(clients, c)
	}
	byRoom := make(map[string][]string, len(h.rooms))
	for roomID, room := range h.rooms {
		for socketID := range room {
			byRoom[roomID] = append(byRoom[roomID], socketID)
		}
	}
	h.sockets = make(map[string]*Client)
	h.socketRoom = make(map[string]string)
	h.rooms = make(map[string]map[string]*roomMember)
	h.mu.Unlock()

	for roomID, ids := range byRoom {
		h.removeMembers(ctx, roomID, ids...)
	}
	if h.rdb != nil {
		_ = h.rdb.Del(ctx, instanceAlivePrefix+h.instanceID).Err()
	}
	for _, c := range clients {
		c.TrySend(frame)
		c.Close()
	}
	observability.StudyRoomsActive.Set(0)
	observability.StudyRoomMembers.Set(0)
	observability.WebSocketConnectionsTotal.WithLabelValues(h.Name()).Set(0)
	return nil
}

func (h *StudyRoomHub) capacity(ctx context.Context, roomID string) (int, error) {
	if h.store == nil {
		return h.defaultCapacity, nil
	}
	n, err := h.store.RoomCapacity(ctx, roomID)
	switch {
	case err == nil && n > 0:
		return n, nil
	case err == nil:
		return h.defaultCapacity, nil
	case models.IsCode(err, models.CodeNotFound):
		return 0, ErrRoomNotFound
	case models.IsCode(err, models.CodeConflict):
		return 0, ErrRoomEnded
	default:
		h.log.LogError(ctx, 0, roomID, err, "room_capacity")
		return 0, ErrRoomUnavailable
	}
}

// roomClientsLocked returns the local clients of roomID except one socket.
// Callers hold h.mu.
func (h *StudyRoomHub) roomClientsLocked(roomID, except string) []*Client {
	room := h.rooms[roomID]
	out := make([]*Client, 0, len(room))
	for id, m := range room {
		if id != except {
			out = append(out, m.client)
		}
	}
	return out
}

func (h *StudyRoomHub) membersExcept(ctx context.Context, roomID, except string) []models.RoomMember {
	h.mu.RLock()
	room := h.rooms[roomID]
	out := make([]models.RoomMember, 0, len(room))
	for id, m := range room {
		if id != except {
			out = append(out, m.info)
		}
	}
	h.mu.RUnlock()

	for _, m := range h.remoteMembers(ctx, roomID) {
		if m.SocketID != except {
			out = append(out, m)
		}
	}
	sortMembers(out)
	return out
}

func sortMembers(members []models.RoomMember) {
	sort.Slice(members, func(i, j int) bool {
		if !members[i].JoinedAt.Equal(members[j].JoinedAt) {
			return members[i].JoinedAt.Before(members[j].JoinedAt)
		}
		return members[i].SocketID < members[j].SocketID
	})
}

func (h *StudyRoomHub) heartbeat(ctx context.Context) {
	ticker := time.NewTicker(instanceHeartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.markAlive(ctx)
		}
	}
}

func (h *StudyRoomHub) markAlive(ctx context.Context) {
	if err := h.rdb.Set(ctx, instanceAlivePrefix+h.instanceID, 1, instanceAliveTTL).Err(); err != nil {
		observability.RedisErrorRate.WithLabelValues("studyroom_heartbeat").Inc()
	}
}

func (h *StudyRoomHub) storeMember(ctx context.Context, roomID string, info models.RoomMember) {
	if h.rdb == nil {
		return
	}
	raw, err := json.Marshal(storedMember{RoomMember: info, Instance: h.instanceID})
	if err != nil {
		return
	}
	key := roomMembersPrefix + roomID
	pipe := h.rdb.TxPipeline()
	pipe.Set(ctx, instanceAlivePrefix+h.instanceID, 1, instanceAliveTTL)
	pipe.HSet(ctx, key, info.SocketID, raw)
	pipe.Expire(ctx, key, roomMembersTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		observability.RedisErrorRate.WithLabelValues("studyroom_store").Inc()
	}
}

func (h *StudyRoomHub) removeMembers(ctx context.Context, roomID string, socketIDs ...string) {
	if h.rdb == nil || len(socketIDs) == 0 {
		return
	}
	if err := h.rdb.HDel(ctx, roomMembersPrefix+roomID, socketIDs...).Err(); err != nil {
		observability.RedisErrorRate.WithLabelValues("studyroom_remove").Inc()
	}
}

// liveInstances reports which of the given instances still hold a liveness
// key. On Redis errors every instance is assumed alive.
func (h *StudyRoomHub) liveInstances(ctx context.Context, instances []string) map[string]bool {
	alive := make(map[string]bool, len(instances))
	pipe := h.rdb.Pipeline()
	checks := make(map[string]*redis.IntCmd, len(instances))
	for _, id := range instances {
		checks[id] = pipe.Exists(ctx, instanceAlivePrefix+id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		observability.RedisErrorRate.WithLabelValues("studyroom_liveness").Inc()
		for _, id := range instances {
			alive[id] = true
		}
		return alive
	}
	for id, cmd := range checks {
		alive[id] = cmd.Val() > 0
	}
	return alive
}

// remoteMembers returns members of roomID held by other live instances.
// Entries left behind by an instance that stopped heartbeating are reaped.
func (h *StudyRoomHub) remoteMembers(ctx context.Context, roomID string) []models.RoomMember {
	if h.rdb == nil {
		return nil
	}
	all, err := h.rdb.HGetAll(ctx, roomMembersPrefix+roomID).Result()
	if err != nil {
		observability.RedisErrorRate.WithLabelValues("studyroom_members").Inc()
		return nil
	}
	stored := make([]storedMember, 0, len(all))
	var instances []string
	seen := make(map[string]bool)
	for _, raw := range all {
		var m storedMember
		if json.Unmarshal([]byte(raw), &m) != nil || m.Instance == h.instanceID {
			continue
		}
		stored = append(stored, m)
		if !seen[m.Instance] {
			seen[m.Instance] = true
			instances = append(instances, m.Instance)
		}
	}
	if len(stored) == 0 {
		return nil
	}

	alive := h.liveInstances(ctx, instances)
	var out []models.RoomMember
	var stale []string
	for _, m := range stored {
		if alive[m.Instance] {
			out = append(out, m.RoomMember)
		} else {
			stale = append(stale, m.SocketID)
		}
	}
	if len(stale) > 0 {
		h.removeMembers(ctx, roomID, stale...)
		h.log.LogLifecycle(ctx, "stale_members_reaped", map[string]any{"room_id": roomID, "members": len(stale)})
	}
	return out
}

func (h *StudyRoomHub) isRemoteMember(ctx context.Context, roomID, socketID string) bool {
	if h.rdb == nil {
		return false
	}
	raw, err := h.rdb.HGet(ctx, roomMembersPrefix+roomID, socketID).Result()
	if err != nil {
		return false
	}
	var m storedMember
	if json.Unmarshal([]byte(raw), &m) != nil || m.Instance == h.instanceID {
		return false
	}
	return h.liveInstances(ctx, []string{m.Instance})[m.Instance]
}

func (h *StudyRoomHub) relay(ctx context.Context, r roomRelay) {
	if !h.notifier.Enabled() {
		return
	}
	r.Origin = h.instanceID
	raw, err := json.Marshal(r)
	if err != nil {
		return
	}
	if err := h.notifier.PublishStudyRoom(ctx, r.RoomID, string(raw)); err != nil {
		observability.RedisErrorRate.WithLabelValues("studyroom_publish").Inc()
	}
}

func (h *StudyRoomHub) record(c *Client, eventType, roomID string) {
	if h.activity == nil {
		return
	}
	userID := c.UserID
	h.activity.Record(&models.AnalyticsEvent{
		UserID:    &userID,
		SessionID: c.SocketID,
		EventType: eventType,
		Path:      "/api/ws/study",
		Metadata:  datatypes.JSONMap{"room_id": roomID},
	})
}

func (h *StudyRoomHub) send(c *Client, ev RoomEvent) {
	h.sendJSON(c, ev)
}

func (h *StudyRoomHub) sendJSON(c *Client, v any) {
	frame, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.TrySend(frame)
}

func (h *StudyRoomHub) sendError(c *Client, ref string, err error) {
	h.send(c, RoomEvent{Event: EventError, Ref: ref, Message: err.Error()})
}

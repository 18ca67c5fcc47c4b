// Package notifications delivers real-time events over websockets: per-user
// notifications, study room signaling, the PeerJS broker and the admin live feed.
package notifications

import (
	"context"
	"errors"
	"sync"

	"studyhub/internal/observability"

	"github.com/gofiber/websocket/v2"
	"github.com/redis/go-redis/v9"
)

const (
	maxConnsPerUser = 12
	maxTotalConns   = 10000
)

var (
	ErrServerFull = errors.New("server connection limit reached")
	ErrUserFull   = errors.New("user connection limit reached")
)

// Hub maps user id to that user's notification sockets.
type Hub struct {
	mu         sync.RWMutex
	conns      map[uint]map[*Client]struct{}
	totalConns int
	presence   *ConnectionManager
	log        *observability.WSLogger
}

func NewHub(rdb *redis.Client) *Hub {
	return &Hub{
		conns:    make(map[uint]map[*Client]struct{}),
		presence: NewConnectionManager(rdb, PresenceConfig{}),
		log:      observability.NewWSLogger("notifications"),
	}
}

func (h *Hub) Name() string { return "notifications" }

// Presence exposes the connection manager for online-user queries.
func (h *Hub) Presence() *ConnectionManager { return h.presence }

// Register adds a connection for userID, enforcing per-user and global limits.
func (h *Hub) Register(userID uint, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()
	if h.totalConns >= maxTotalConns {
		h.mu.Unlock()
		return nil, ErrServerFull
	}
	m, ok := h.conns[userID]
	if !ok {
		m = make(map[*Client]struct{})
		h.conns[userID] = m
	}
	if len(m) >= maxConnsPerUser {
		h.mu.Unlock()
		return nil, ErrUserFull
	}

	client := NewClient(h, conn, userID)
	client.OnActivity = func(uid uint) { h.presence.Touch(context.Background(), uid) }
	m[client] = struct{}{}
	h.totalConns++
	h.mu.Unlock()

	observability.WebSocketConnectionsTotal.WithLabelValues(h.Name()).Inc()
	h.presence.Register(context.Background(), userID)
	h.log.LogConnect(context.Background(), userID, "", "")
	return client, nil
}

func (h *Hub) UnregisterClient(client *Client) {
	h.mu.Lock()
	removed := false
	if m, ok := h.conns[client.UserID]; ok {
		if _, exists := m[client]; exists {
			delete(m, client)
			h.totalConns--
			removed = true
		}
		if len(m) == 0 {
			delete(h.conns, client.UserID)
		}
	}
	h.mu.Unlock()

	if removed {
		client.Close()
		observability.WebSocketConnectionsTotal.WithLabelValues(h.Name()).Dec()
		h.presence.Unregister(context.Background(), client.UserID)
		h.log.LogDisconnect(context.Background(), client.UserID, "", "", "closed")
	}
}

// Broadcast sends message to every local socket of userID.
func (h *Hub) Broadcast(userID uint, message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.conns[userID] {
		c.TrySend(message)
	}
}

// BroadcastAll sends message to every local socket.
func (h *Hub) BroadcastAll(message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, clients := range h.conns {
		for c := range clients {
			c.TrySend(message)
		}
	}
}

// IsOnline reports whether userID has a socket on any instance.
func (h *Hub) IsOnline(userID uint) bool {
	return h.presence.IsOnline(context.Background(), userID)
}

// OnlineUserIDs lists users with at least one socket.
func (h *Hub) OnlineUserIDs(ctx context.Context) []uint {
	return h.presence.OnlineUserIDs(ctx)
}

// StartWiring forwards Redis notifications to local sockets.
func (h *Hub) StartWiring(ctx context.Context, n *Notifier) error {
	return n.StartPatternSubscriber(ctx, func(channel, payload string) {
		if channel == broadcastChannel {
			h.BroadcastAll([]byte(payload))
			return
		}
		userID, ok := parseUserChannel(channel)
		if !ok {
			h.log.LogLifecycle(ctx, "invalid_channel", map[string]any{"channel": channel})
			return
		}
		h.Broadcast(userID, []byte(payload))
	})
}

// Shutdown tells every socket the server is going away and closes its queue.
func (h *Hub) Shutdown(_ context.Context) error {
	h.presence.Stop()

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, clients := range h.conns {
		for c := range clients {
			c.TrySend([]byte(`{"type":"server_shutdown"}`))
			c.Close()
			observability.WebSocketConnectionsTotal.WithLabelValues(h.Name()).Dec()
		}
	}
	h.conns = make(map[uint]map[*Client]struct{})
	h.totalConns = 0
	return nil
}

package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"studyhub/internal/cache"
	"studyhub/internal/observability"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// PeerIDTTL is how long a reserved peer id stays claimed.
	PeerIDTTL = 5 * time.Minute

	peerQueueLimit = 32
	peerQueueTTL   = 5 * time.Second
	maxPeers       = 10000
)

// PeerJS server protocol message types.
const (
	PeerOpen      = "OPEN"
	PeerIDTaken   = "ID-TAKEN"
	PeerError     = "ERROR"
	PeerOffer     = "OFFER"
	PeerAnswer    = "ANSWER"
	PeerCandidate = "CANDIDATE"
	PeerLeave     = "LEAVE"
	PeerExpire    = "EXPIRE"
	PeerHeartbeat = "HEARTBEAT"
)

var (
	ErrPeerIDTaken   = errors.New("ID is taken")
	ErrInvalidPeerID = errors.New("peer id must be 1-64 characters")
)

// PeerMessage is a PeerJS protocol frame.
type PeerMessage struct {
	Type    string          `json:"type"`
	Src     string          `json:"src,omitempty"`
	Dst     string          `json:"dst,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type queuedPeerMessage struct {
	src     string
	frame   []byte
	expires time.Time
}

// PeerBroker brokers PeerJS connections: it knows which peer id is bound to
// which socket and forwards OFFER/ANSWER/CANDIDATE/LEAVE frames by dst.
// Frames for a peer that is not connected yet wait briefly in a queue.
type PeerBroker struct {
	mu     sync.Mutex
	peers  map[string]*Client
	queues map[string][]queuedPeerMessage

	rdb      *redis.Client
	now      func() time.Time
	log      *observability.WSLogger
	stop     chan struct{}
	stopOnce sync.Once
}

func NewPeerBroker(rdb *redis.Client) *PeerBroker {
	return &PeerBroker{
		peers:  make(map[string]*Client),
		queues: make(map[string][]queuedPeerMessage),
		rdb:    rdb,
		now:    time.Now,
		log:    observability.NewWSLogger("peer_broker"),
		stop:   make(chan struct{}),
	}
}

func (b *PeerBroker) Name() string { return "peer_broker" }

// ReserveID hands out a fresh peer id claimed by userID for PeerIDTTL.
func (b *PeerBroker) ReserveID(ctx context.Context, userID uint) (string, error) {
	id := uuid.NewString()
	if b.rdb == nil {
		return id, nil
	}
	if err := b.rdb.Set(ctx, cache.PeerKey(id), strconv.FormatUint(uint64(userID), 10), PeerIDTTL).Err(); err != nil {
		observability.RedisErrorRate.WithLabelValues("peer_reserve").Inc()
		return "", err
	}
	return id, nil
}

// Register binds peerID to a new socket and sends OPEN followed by any
// frames queued for it. ErrPeerIDTaken means the id is connected or was
// reserved by another user.
func (b *PeerBroker) Register(ctx context.Context, userID uint, peerID string, conn *websocket.Conn) (*Client, error) {
	if peerID == "" || len(peerID) > maxIDLength {
		return nil, ErrInvalidPeerID
	}
	if owner, ok := b.reservedBy(ctx, peerID); ok && owner != userID {
		return nil, ErrPeerIDTaken
	}

	c := NewClient(b, conn, userID)
	c.SocketID = peerID
	c.IncomingHandler = b.HandleMessage

	b.mu.Lock()
	if _, taken := b.peers[peerID]; taken {
		b.mu.Unlock()
		return nil, ErrPeerIDTaken
	}
	if len(b.peers) >= maxPeers {
		b.mu.Unlock()
		return nil, ErrServerFull
	}
	b.peers[peerID] = c
	pending := b.queues[peerID]
	delete(b.queues, peerID)
	b.mu.Unlock()

	observability.WebSocketConnectionsTotal.WithLabelValues(b.Name()).Inc()
	if b.rdb != nil {
		_ = b.rdb.Set(ctx, cache.PeerKey(peerID), strconv.FormatUint(uint64(userID), 10), PeerIDTTL).Err()
	}

	b.sendTo(c, PeerMessage{Type: PeerOpen})
	now := b.now()
	for _, q := range pending {
		if now.Before(q.expires) {
			c.TrySend(q.frame)
			continue
		}
		b.expireTo(q.src, peerID)
	}
	b.log.LogConnect(ctx, userID, "", peerID)
	return c, nil
}

// IDTakenFrame is written to a socket whose requested id was refused.
func IDTakenFrame() []byte {
	frame, _ := json.Marshal(PeerMessage{Type: PeerIDTaken, Payload: json.RawMessage(`{"msg":"ID is taken"}`)})
	return frame
}

// UnregisterClient drops the peer. No LEAVE is sent on its behalf.
func (b *PeerBroker) UnregisterClient(c *Client) {
	b.mu.Lock()
	current, ok := b.peers[c.SocketID]
	if ok && current == c {
		delete(b.peers, c.SocketID)
	}
	b.mu.Unlock()

	if ok && current == c {
		observability.WebSocketConnectionsTotal.WithLabelValues(b.Name()).Dec()
		b.log.LogDisconnect(context.Background(), c.UserID, "", c.SocketID, "closed")
	}
	c.Close()
}

// HandleMessage forwards one frame from c.
func (b *PeerBroker) HandleMessage(c *Client, raw []byte) {
	var msg PeerMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		b.sendError(c, "invalid message")
		return
	}

	switch msg.Type {
	case PeerHeartbeat:
		return
	case PeerOffer, PeerAnswer, PeerCandidate, PeerLeave, PeerExpire:
		if msg.Dst == "" {
			b.sendError(c, "dst is required")
			return
		}
		msg.Src = c.SocketID
		b.forward(c, msg)
		observability.SignalingEvents.WithLabelValues("peer_"+msg.Type, "ok").Inc()
	default:
		b.sendError(c, "unknown message type")
		observability.SignalingEvents.WithLabelValues("peer_unknown", "error").Inc()
	}
}

func (b *PeerBroker) forward(from *Client, msg PeerMessage) {
	frame, err := json.Marshal(msg)
	if err != nil {
		return
	}

	b.mu.Lock()
	if dst, ok := b.peers[msg.Dst]; ok {
		b.mu.Unlock()
		dst.TrySend(frame)
		return
	}
	if msg.Type == PeerLeave || msg.Type == PeerExpire {
		b.mu.Unlock()
		return
	}
	queue := b.queues[msg.Dst]
	if len(queue) >= peerQueueLimit {
		b.mu.Unlock()
		b.sendTo(from, PeerMessage{Type: PeerExpire, Src: msg.Dst, Dst: from.SocketID})
		return
	}
	b.queues[msg.Dst] = append(queue, queuedPeerMessage{
		src:     from.SocketID,
		frame:   frame,
		expires: b.now().Add(peerQueueTTL),
	})
	b.mu.Unlock()
}

// QueuedFor reports how many frames are waiting for peerID.
func (b *PeerBroker) QueuedFor(peerID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queues[peerID])
}

// Run expires queued frames until ctx is done or Shutdown is called.
func (b *PeerBroker) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.stop:
			return
		case <-ticker.C:
			b.expireQueued(b.now())
		}
	}
}

// expireQueued drops frames older than their deadline and tells each sender.
func (b *PeerBroker) expireQueued(now time.Time) {
	type expired struct{ src, dst string }
	var out []expired

	b.mu.Lock()
	for dst, queue := range b.queues {
		kept := queue[:0]
		for _, q := range queue {
			if now.Before(q.expires) {
				kept = append(kept, q)
				continue
			}
			out = append(out, expired{src: q.src, dst: dst})
		}
		if len(kept) == 0 {
			delete(b.queues, dst)
		} else {
			b.queues[dst] = kept
		}
	}
	b.mu.Unlock()

	for _, e := range out {
		b.expireTo(e.src, e.dst)
	}
}

// expireTo tells src that its frame for dst could not be delivered.
func (b *PeerBroker) expireTo(src, dst string) {
	b.mu.Lock()
	sender, ok := b.peers[src]
	b.mu.Unlock()
	if ok {
		b.sendTo(sender, PeerMessage{Type: PeerExpire, Src: dst, Dst: src})
	}
}

func (b *PeerBroker) reservedBy(ctx context.Context, peerID string) (uint, bool) {
	if b.rdb == nil {
		return 0, false
	}
	raw, err := b.rdb.Get(ctx, cache.PeerKey(peerID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			observability.RedisErrorRate.WithLabelValues("peer_lookup").Inc()
		}
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return uint(id), true
}

// Shutdown closes every peer socket and stops the expiry loop.
func (b *PeerBroker) Shutdown(_ context.Context) error {
	b.stopOnce.Do(func() { close(b.stop) })

	b.mu.Lock()
	clients := make([]*Client, 0, len(b.peers))
	for _, c := range b.peers {
		clients = append(clients, c)
	}
	b.peers = make(map[string]*Client)
	b.queues = make(map[string][]queuedPeerMessage)
	b.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
	observability.WebSocketConnectionsTotal.WithLabelValues(b.Name()).Set(0)
	return nil
}

func (b *PeerBroker) sendTo(c *Client, msg PeerMessage) {
	frame, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.TrySend(frame)
}

func (b *PeerBroker) sendError(c *Client, text string) {
	payload, _ := json.Marshal(map[string]string{"msg": text})
	b.sendTo(c, PeerMessage{Type: PeerError, Payload: payload})
}

package notifications

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"studyhub/internal/observability"

	"github.com/redis/go-redis/v9"
)

const (
	presenceOnlineSetKey   = "ws:online_users"
	presenceLastSeenPrefix = "ws:last_seen:"
	presenceTTL            = 90 * time.Second
	defaultOfflineGrace    = 5 * time.Second
	defaultReaperInterval  = 60 * time.Second
)

// PresenceConfig tunes ConnectionManager.
type PresenceConfig struct {
	LastSeenTTL        time.Duration
	OfflineGracePeriod time.Duration
	ReaperInterval     time.Duration
}

// ConnectionManager tracks which users have an open notification socket.
// Local counts are authoritative for this process; Redis shares presence
// between instances. A user goes offline only after a grace window so quick
// reconnects do not flap.
type ConnectionManager struct {
	rdb *redis.Client

	mu            sync.RWMutex
	local         map[uint]int
	offlineTimers map[uint]*time.Timer
	reportedOff   map[uint]bool

	lastSeenTTL  time.Duration
	offlineGrace time.Duration

	onOnline  func(userID uint)
	onOffline func(userID uint)

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewConnectionManager starts the Redis reaper when rdb is set.
func NewConnectionManager(rdb *redis.Client, cfg PresenceConfig) *ConnectionManager {
	m := &ConnectionManager{
		rdb:           rdb,
		local:         make(map[uint]int),
		offlineTimers: make(map[uint]*time.Timer),
		reportedOff:   make(map[uint]bool),
		lastSeenTTL:   presenceTTL,
		offlineGrace:  defaultOfflineGrace,
		stopCh:        make(chan struct{}),
	}
	if cfg.LastSeenTTL > 0 {
		m.lastSeenTTL = cfg.LastSeenTTL
	}
	if cfg.OfflineGracePeriod > 0 {
		m.offlineGrace = cfg.OfflineGracePeriod
	}
	interval := defaultReaperInterval
	if cfg.ReaperInterval > 0 {
		interval = cfg.ReaperInterval
	}
	if rdb != nil {
		go m.reaperLoop(interval)
	}
	return m
}

// SetCallbacks installs online/offline transition hooks.
func (m *ConnectionManager) SetCallbacks(onOnline, onOffline func(userID uint)) {
	m.mu.Lock()
	m.onOnline = onOnline
	m.onOffline = onOffline
	m.mu.Unlock()
}

func (m *ConnectionManager) SetOfflineGracePeriod(d time.Duration) {
	if d <= 0 {
		return
	}
	m.mu.Lock()
	m.offlineGrace = d
	m.mu.Unlock()
}

// Stop halts the reaper and pending offline timers.
func (m *ConnectionManager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		m.mu.Lock()
		for id, t := range m.offlineTimers {
			t.Stop()
			delete(m.offlineTimers, id)
		}
		m.mu.Unlock()
	})
}

// Register counts a new connection for userID.
func (m *ConnectionManager) Register(ctx context.Context, userID uint) {
	wasOnline := m.IsOnline(ctx, userID)

	m.mu.Lock()
	if t, ok := m.offlineTimers[userID]; ok {
		t.Stop()
		delete(m.offlineTimers, userID)
	}
	m.local[userID]++
	m.reportedOff[userID] = false
	cb := m.onOnline
	m.mu.Unlock()

	m.Touch(ctx, userID)
	if !wasOnline && cb != nil {
		cb(userID)
	}
}

// Touch refreshes the shared last-seen key.
func (m *ConnectionManager) Touch(ctx context.Context, userID uint) {
	if m.rdb == nil {
		return
	}
	uid := strconv.FormatUint(uint64(userID), 10)
	pipe := m.rdb.TxPipeline()
	pipe.SAdd(ctx, presenceOnlineSetKey, uid)
	pipe.Set(ctx, presenceLastSeenPrefix+uid, time.Now().Unix(), m.lastSeenTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		observability.GlobalLogger.Warn("presence touch failed",
			slog.Uint64("user_id", uint64(userID)),
			slog.String("error", err.Error()),
		)
	}
}

// Unregister drops one connection; the last one arms the offline timer.
func (m *ConnectionManager) Unregister(_ context.Context, userID uint) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n := m.local[userID]; n > 1 {
		m.local[userID] = n - 1
		return
	}
	delete(m.local, userID)

	if t, ok := m.offlineTimers[userID]; ok {
		t.Stop()
	}
	m.offlineTimers[userID] = time.AfterFunc(m.offlineGrace, func() {
		m.finalizeOffline(context.Background(), userID)
	})
}

// IsOnline checks local connections, then the shared last-seen key.
func (m *ConnectionManager) IsOnline(ctx context.Context, userID uint) bool {
	m.mu.RLock()
	n := m.local[userID]
	m.mu.RUnlock()
	if n > 0 {
		return true
	}
	if m.rdb == nil {
		return false
	}
	exists, err := m.rdb.Exists(ctx, m.lastSeenKey(userID)).Result()
	return err == nil && exists > 0
}

// OnlineUserIDs unions Redis presence (minus stale entries) with local connections.
func (m *ConnectionManager) OnlineUserIDs(ctx context.Context) []uint {
	seen := make(map[uint]struct{})
	var out []uint
	add := func(id uint) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}

	if m.rdb != nil {
		if members, err := m.rdb.SMembers(ctx, presenceOnlineSetKey).Result(); err == nil {
			for _, raw := range members {
				id, err := strconv.ParseUint(raw, 10, 32)
				if err != nil {
					continue
				}
				if n, err := m.rdb.Exists(ctx, m.lastSeenKey(uint(id))).Result(); err == nil && n > 0 {
					add(uint(id))
				}
			}
		}
	}

	m.mu.RLock()
	for id, n := range m.local {
		if n > 0 {
			add(id)
		}
	}
	m.mu.RUnlock()
	return out
}

// reapOnce removes set members whose last-seen key expired and reports them offline.
func (m *ConnectionManager) reapOnce(ctx context.Context) {
	if m.rdb == nil {
		return
	}
	members, err := m.rdb.SMembers(ctx, presenceOnlineSetKey).Result()
	if err != nil {
		return
	}
	for _, raw := range members {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			continue
		}
		userID := uint(id)
		if n, err := m.rdb.Exists(ctx, m.lastSeenKey(userID)).Result(); err != nil || n > 0 {
			continue
		}
		_ = m.rdb.SRem(ctx, presenceOnlineSetKey, raw).Err()

		m.mu.RLock()
		hasLocal := m.local[userID] > 0
		m.mu.RUnlock()
		if !hasLocal {
			m.emitOffline(userID)
		}
	}
}

func (m *ConnectionManager) reaperLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.reapOnce(context.Background())
		}
	}
}

func (m *ConnectionManager) finalizeOffline(ctx context.Context, userID uint) {
	m.mu.Lock()
	delete(m.offlineTimers, userID)
	reconnected := m.local[userID] > 0
	m.mu.Unlock()
	if reconnected {
		return
	}

	if m.rdb != nil {
		// Another instance may still hold a connection; the reaper settles it.
		if n, err := m.rdb.Exists(ctx, m.lastSeenKey(userID)).Result(); err == nil && n > 0 {
			return
		}
		_ = m.rdb.SRem(ctx, presenceOnlineSetKey, strconv.FormatUint(uint64(userID), 10)).Err()
	}
	m.emitOffline(userID)
}

func (m *ConnectionManager) emitOffline(userID uint) {
	m.mu.Lock()
	if m.reportedOff[userID] {
		m.mu.Unlock()
		return
	}
	m.reportedOff[userID] = true
	cb := m.onOffline
	m.mu.Unlock()
	if cb != nil {
		cb(userID)
	}
}

func (m *ConnectionManager) lastSeenKey(userID uint) string {
	return presenceLastSeenPrefix + strconv.FormatUint(uint64(userID), 10)
}

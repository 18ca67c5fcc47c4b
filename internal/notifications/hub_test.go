package notifications

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testEventuallyTimeout = time.Second
	testPollInterval      = 10 * time.Millisecond
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

// nextFrame waits briefly for the next queued frame on c.
func nextFrame(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case frame, ok := <-c.Send:
		require.True(t, ok, "send queue closed")
		return frame
	case <-time.After(testEventuallyTimeout):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

func assertNoFrame(t *testing.T, c *Client) {
	t.Helper()
	select {
	case frame, ok := <-c.Send:
		if ok {
			t.Fatalf("unexpected frame: %s", frame)
		}
	case <-time.After(5 * testPollInterval):
	}
}

func TestHub_GracePeriodSuppressesOfflineOnRapidReconnect(t *testing.T) {
	hub := NewHub(nil)
	hub.Presence().SetOfflineGracePeriod(40 * time.Millisecond)

	clientA, err := hub.Register(10, nil)
	require.NoError(t, err)

	hub.UnregisterClient(clientA)
	_, err = hub.Register(10, nil)
	require.NoError(t, err)

	assert.Never(t, func() bool {
		hub.presence.mu.RLock()
		defer hub.presence.mu.RUnlock()
		return hub.presence.reportedOff[10]
	}, 20*testPollInterval, testPollInterval)
	assert.True(t, hub.IsOnline(10))

	_ = hub.Shutdown(context.Background())
}

func TestHub_MultiConnectionLastDisconnectTriggersOfflineOnce(t *testing.T) {
	hub := NewHub(nil)
	hub.Presence().SetOfflineGracePeriod(30 * time.Millisecond)

	var offline int32
	hub.Presence().SetCallbacks(nil, func(uint) { atomic.AddInt32(&offline, 1) })

	clientA, err := hub.Register(15, nil)
	require.NoError(t, err)
	clientB, err := hub.Register(15, nil)
	require.NoError(t, err)

	hub.UnregisterClient(clientA)
	assert.Never(t, func() bool {
		return atomic.LoadInt32(&offline) > 0
	}, 10*testPollInterval, testPollInterval)

	hub.UnregisterClient(clientB)
	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&offline) == 1
	}, testEventuallyTimeout, testPollInterval)
	assert.False(t, hub.IsOnline(15))

	_ = hub.Shutdown(context.Background())
}

func TestHub_ReaperRemovesStalePresence(t *testing.T) {
	_, rdb := newTestRedis(t)
	hub := NewHub(rdb)
	defer func() { _ = hub.Shutdown(context.Background()) }()

	var offline int32
	hub.Presence().SetCallbacks(nil, func(uid uint) {
		if uid == 33 {
			atomic.AddInt32(&offline, 1)
		}
	})

	_, err := hub.Register(21, nil)
	require.NoError(t, err)

	// A user left behind by another instance: in the set, no last-seen key.
	require.NoError(t, rdb.SAdd(context.Background(), presenceOnlineSetKey, "33").Err())

	hub.presence.reapOnce(context.Background())

	isMember, err := rdb.SIsMember(context.Background(), presenceOnlineSetKey, "33").Result()
	require.NoError(t, err)
	assert.False(t, isMember)
	assert.Equal(t, int32(1), atomic.LoadInt32(&offline))

	assert.ElementsMatch(t, []uint{21}, hub.OnlineUserIDs(context.Background()))
}

func TestHub_ConnectionLimits(t *testing.T) {
	hub := NewHub(nil)
	defer func() { _ = hub.Shutdown(context.Background()) }()

	for i := 0; i < maxConnsPerUser; i++ {
		_, err := hub.Register(5, nil)
		require.NoError(t, err)
	}
	_, err := hub.Register(5, nil)
	assert.ErrorIs(t, err, ErrUserFull)

	_, err = hub.Register(6, nil)
	assert.NoError(t, err)
}

func TestHub_BroadcastTargetsOneUser(t *testing.T) {
	hub := NewHub(nil)
	defer func() { _ = hub.Shutdown(context.Background()) }()

	alice, err := hub.Register(1, nil)
	require.NoError(t, err)
	bob, err := hub.Register(2, nil)
	require.NoError(t, err)

	hub.Broadcast(1, []byte(`{"type":"ping"}`))
	assert.JSONEq(t, `{"type":"ping"}`, string(nextFrame(t, alice)))
	assertNoFrame(t, bob)

	hub.BroadcastAll([]byte(`{"type":"all"}`))
	assert.JSONEq(t, `{"type":"all"}`, string(nextFrame(t, alice)))
	assert.JSONEq(t, `{"type":"all"}`, string(nextFrame(t, bob)))
}

func TestHub_ShutdownNotifiesAndCloses(t *testing.T) {
	hub := NewHub(nil)
	client, err := hub.Register(3, nil)
	require.NoError(t, err)

	require.NoError(t, hub.Shutdown(context.Background()))

	assert.JSONEq(t, `{"type":"server_shutdown"}`, string(nextFrame(t, client)))
	_, open := <-client.Send
	assert.False(t, open)
}

func TestClient_TrySendDropsWhenFull(t *testing.T) {
	c := NewClient(NewHub(nil), nil, 1)
	for i := 0; i < sendBufferSize; i++ {
		require.True(t, c.TrySend([]byte("x")))
	}
	assert.False(t, c.TrySend([]byte("overflow")))

	c.Close()
	assert.False(t, c.TrySend([]byte("after close")))
}

func TestDispatcher_FallsBackToLocalHub(t *testing.T) {
	hub := NewHub(nil)
	defer func() { _ = hub.Shutdown(context.Background()) }()
	client, err := hub.Register(8, nil)
	require.NoError(t, err)

	d := NewDispatcher(hub, NewNotifier(nil))
	d.NotifyUser(context.Background(), 8, "message", map[string]any{"id": 1})

	var ev Event
	require.NoError(t, json.Unmarshal(nextFrame(t, client), &ev))
	assert.Equal(t, "message", ev.Type)
	assert.False(t, ev.Timestamp.IsZero())
}

func TestDispatcher_FansOutThroughRedis(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Two hubs stand in for two instances sharing Redis.
	hubA := NewHub(rdb)
	hubB := NewHub(rdb)
	defer func() { _ = hubA.Shutdown(context.Background()) }()
	defer func() { _ = hubB.Shutdown(context.Background()) }()

	notifier := NewNotifier(rdb)
	require.NoError(t, hubA.StartWiring(ctx, notifier))
	require.NoError(t, hubB.StartWiring(ctx, notifier))

	onB, err := hubB.Register(42, nil)
	require.NoError(t, err)

	NewDispatcher(hubA, notifier).NotifyUser(ctx, 42, "read", map[string]any{"by": 7})

	var ev Event
	require.NoError(t, json.Unmarshal(nextFrame(t, onB), &ev))
	assert.Equal(t, "read", ev.Type)

	NewDispatcher(hubA, notifier).Announce(ctx, "announcement", "maintenance at noon")
	require.NoError(t, json.Unmarshal(nextFrame(t, onB), &ev))
	assert.Equal(t, "announcement", ev.Type)
}

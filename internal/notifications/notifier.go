package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"strings"

	"studyhub/internal/observability"

	"github.com/redis/go-redis/v9"
)

const (
	userChannelPrefix      = "notifications:user:"
	broadcastChannel       = "notifications:broadcast"
	studyRoomChannelPrefix = "studyroom:room:"
)

// Notifier publishes to and subscribes from the Redis channels that fan
// real-time events out across instances. A nil client turns every call
// into a no-op.
type Notifier struct {
	rdb *redis.Client
}

func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// Enabled reports whether a Redis client is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && n.rdb != nil
}

// PublishUser sends payload to every socket of userID on every instance.
func (n *Notifier) PublishUser(ctx context.Context, userID uint, payload string) error {
	if !n.Enabled() {
		return nil
	}
	return n.rdb.Publish(ctx, UserChannel(userID), payload).Err()
}

// PublishBroadcast sends payload to every notification socket.
func (n *Notifier) PublishBroadcast(ctx context.Context, payload string) error {
	if !n.Enabled() {
		return nil
	}
	return n.rdb.Publish(ctx, broadcastChannel, payload).Err()
}

// PublishStudyRoom relays a study room frame to the other instances.
func (n *Notifier) PublishStudyRoom(ctx context.Context, roomID string, payload string) error {
	if !n.Enabled() {
		return nil
	}
	return n.rdb.Publish(ctx, StudyRoomChannel(roomID), payload).Err()
}

// StartPatternSubscriber delivers user and broadcast notifications to onMessage.
func (n *Notifier) StartPatternSubscriber(ctx context.Context, onMessage func(channel, payload string)) error {
	return n.subscribe(ctx, "notifications", onMessage, userChannelPrefix+"*", broadcastChannel)
}

// StartStudyRoomSubscriber delivers study room relays to onMessage.
func (n *Notifier) StartStudyRoomSubscriber(ctx context.Context, onMessage func(channel, payload string)) error {
	return n.subscribe(ctx, "studyroom", onMessage, studyRoomChannelPrefix+"*")
}

// subscribe waits for the subscription to be confirmed, then pumps messages
// until ctx ends. A panicking callback is logged and the loop continues.
func (n *Notifier) subscribe(ctx context.Context, name string, onMessage func(channel, payload string), patterns ...string) error {
	if !n.Enabled() {
		return nil
	}
	sub := n.rdb.PSubscribe(ctx, patterns...)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe %s: %w", name, err)
	}
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							observability.GlobalLogger.Error("panic in pub/sub callback",
								slog.String("subscriber", name),
								slog.String("channel", msg.Channel),
								slog.Any("panic", r),
								slog.String("stack", string(debug.Stack())),
							)
						}
					}()
					onMessage(msg.Channel, msg.Payload)
				}()
			}
		}
	}()
	return nil
}

// UserChannel derives the Redis channel name for a user.
func UserChannel(userID uint) string {
	return userChannelPrefix + strconv.FormatUint(uint64(userID), 10)
}

// StudyRoomChannel derives the Redis channel name for a study room.
func StudyRoomChannel(roomID string) string {
	return studyRoomChannelPrefix + roomID
}

// parseUserChannel extracts the user id from a user channel name.
func parseUserChannel(channel string) (uint, bool) {
	raw, ok := strings.CutPrefix(channel, userChannelPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

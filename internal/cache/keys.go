package cache

import (
	"context"
	"fmt"
	"time"
)

const (
	UserTTL    = 5 * time.Minute
	SettingTTL = 1 * time.Minute
	TopicTTL   = 2 * time.Minute
)

func UserKey(userID uint) string {
	return fmt.Sprintf("user:%d", userID)
}

func TopicKey(topicID uint) string {
	return fmt.Sprintf("topic:%d", topicID)
}

func SettingKey(key string) string {
	return "setting:" + key
}

// SettingsIndexKey caches the whole settings map.
const SettingsIndexKey = "settings:all"

func BlacklistKey(jti string) string {
	return "blacklist:" + jti
}

func WSTicketKey(ticket string) string {
	return "ws_ticket:" + ticket
}

func OAuthStateKey(state string) string {
	return "oauth_state:" + state
}

func PeerKey(peerID string) string {
	return "peer:" + peerID
}

// Invalidate deletes key; a missing client is a no-op.
func Invalidate(ctx context.Context, keys ...string) {
	if client != nil && len(keys) > 0 {
		client.Del(ctx, keys...)
	}
}

func InvalidateUser(ctx context.Context, userID uint) {
	Invalidate(ctx, UserKey(userID))
}

func InvalidateTopic(ctx context.Context, topicID uint) {
	Invalidate(ctx, TopicKey(topicID))
}

func InvalidateSetting(ctx context.Context, key string) {
	Invalidate(ctx, SettingKey(key), SettingsIndexKey)
}

package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cachedUser struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

func useMiniredis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	SetClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { SetClient(nil) })
	return mr
}

func TestAside_MissThenHit(t *testing.T) {
	mr := useMiniredis(t)
	ctx := context.Background()
	calls := 0
	fetch := func(dest *cachedUser) func() error {
		return func() error {
			calls++
			*dest = cachedUser{ID: 1, Name: "ada"}
			return nil
		}
	}

	var first cachedUser
	require.NoError(t, Aside(ctx, UserKey(1), &first, UserTTL, fetch(&first)))
	assert.Equal(t, "ada", first.Name)
	assert.True(t, mr.Exists("user:1"))

	var second cachedUser
	require.NoError(t, Aside(ctx, UserKey(1), &second, UserTTL, fetch(&second)))
	assert.Equal(t, "ada", second.Name)
	assert.Equal(t, 1, calls)

	InvalidateUser(ctx, 1)
	assert.False(t, mr.Exists("user:1"))
}

func TestAside_FetchErrorIsNotCached(t *testing.T) {
	mr := useMiniredis(t)
	var dest cachedUser
	err := Aside(context.Background(), UserKey(2), &dest, time.Minute, func() error {
		return errors.New("db down")
	})
	assert.Error(t, err)
	assert.False(t, mr.Exists("user:2"))
}

func TestAside_WithoutRedis(t *testing.T) {
	SetClient(nil)
	var dest cachedUser
	err := Aside(context.Background(), UserKey(3), &dest, time.Minute, func() error {
		dest.ID = 3
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, uint(3), dest.ID)
}

func TestInvalidateSetting(t *testing.T) {
	mr := useMiniredis(t)
	ctx := context.Background()
	require.NoError(t, SetJSON(ctx, SettingKey("announcement"), "hi", time.Minute))
	require.NoError(t, SetJSON(ctx, SettingsIndexKey, map[string]string{"a": "b"}, time.Minute))

	InvalidateSetting(ctx, "announcement")
	assert.False(t, mr.Exists("setting:announcement"))
	assert.False(t, mr.Exists(SettingsIndexKey))
}

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"studyhub/internal/config"
	"studyhub/internal/models"
	"studyhub/internal/service"
	"studyhub/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const testPassword = "SecurePass12!"

func TestMain(m *testing.M) {
	service.BcryptCost = bcrypt.MinCost
	os.Exit(m.Run())
}

type testServer struct {
	*Server
	app *fiber.App
	db  *gorm.DB
	rdb *redis.Client
}

func newTestServer(t *testing.T, flags string) *testServer {
	t.Helper()
	t.Setenv("APP_ENV", "test")
	db := testutil.NewDB(t)
	_, rdb := testutil.NewRedis(t)
	cfg := &config.Config{
		JWTSecret:       "test-secret-that-is-long-enough-for-hs256",
		JWTTTLHours:     1,
		Port:            "0",
		FeatureFlags:    flags,
		MaxRoomPeers:    4,
		AvatarUploadDir: t.TempDir(),
		FrontendURL:     "http://localhost:5173",
	}
	s, err := NewServerWithDeps(cfg, db, rdb)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Close(ctx)
	})
	return &testServer{Server: s, app: s.App(), db: db, rdb: rdb}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := ts.app.Test(req, 5000)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, out
}

// register signs up username and returns its token and user id.
func (ts *testServer) register(t *testing.T, username string) (string, uint) {
	t.Helper()
	resp, body := ts.do(t, http.MethodPost, "/api/auth/register", "", fiber.Map{
		"username": username,
		"email":    username + "@example.com",
		"password": testPassword,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var res struct {
		Token string      `json:"token"`
		User  models.User `json:"user"`
	}
	require.NoError(t, json.Unmarshal(body, &res))
	return res.Token, res.User.ID
}

func (ts *testServer) makeAdmin(t *testing.T, userID uint) {
	t.Helper()
	require.NoError(t, ts.db.Model(&models.User{}).Where("id = ?", userID).Update("is_admin", true).Error)
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t, "")

	resp, _ := ts.do(t, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := ts.do(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"database":"healthy"`)
	assert.Contains(t, string(body), `"redis":"healthy"`)
}

func TestRegister_DuplicateEmailReturns400(t *testing.T) {
	ts := newTestServer(t, "")
	ts.register(t, "ada_l")

	resp, body := ts.do(t, http.MethodPost, "/api/auth/register", "", fiber.Map{
		"username": "someone_else",
		"email":    "ada_l@example.com",
		"password": testPassword,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "Email is already registered")

	// The signup alias goes through the same path.
	resp, _ = ts.do(t, http.MethodPost, "/api/auth/signup", "", fiber.Map{
		"username": "ada_l",
		"email":    "new@example.com",
		"password": testPassword,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLoginAndMe(t *testing.T) {
	ts := newTestServer(t, "")
	ts.register(t, "grace")

	resp, _ := ts.do(t, http.MethodPost, "/api/auth/login", "", fiber.Map{"email": "grace@example.com", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body := ts.do(t, http.MethodPost, "/api/auth/login", "", fiber.Map{"email": "grace@example.com", "password": testPassword})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var res struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(body, &res))

	resp, body = ts.do(t, http.MethodGet, "/api/auth/me", res.Token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"username":"grace"`)

	resp, _ = ts.do(t, http.MethodGet, "/api/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuthRequired_RejectsRevokedToken(t *testing.T) {
	ts := newTestServer(t, "")
	token, _ := ts.register(t, "linus")

	resp, _ := ts.do(t, http.MethodPost, "/api/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := ts.do(t, http.MethodGet, "/api/auth/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, string(body), "revoked")

	// The database row alone is enough once the Redis key is gone.
	require.NoError(t, ts.rdb.FlushAll(context.Background()).Err())
	resp, _ = ts.do(t, http.MethodGet, "/api/auth/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuthRequired_QueryTokenNotAcceptedOnSocketPaths(t *testing.T) {
	ts := newTestServer(t, "")
	token, _ := ts.register(t, "sock")

	resp, _ := ts.do(t, http.MethodGet, "/api/auth/me?token="+token, "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodGet, "/api/ws/study?token="+token, "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSocketTicketIsSingleUse(t *testing.T) {
	ts := newTestServer(t, "")
	token, _ := ts.register(t, "ticketed")

	resp, body := ts.do(t, http.MethodPost, "/api/ws/ticket", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var res struct {
		Ticket string `json:"ticket"`
	}
	require.NoError(t, json.Unmarshal(body, &res))
	require.NotEmpty(t, res.Ticket)

	// Authenticated, but a plain GET is not an upgrade.
	resp, _ = ts.do(t, http.MethodGet, "/api/ws/study?ticket="+res.Ticket, "", nil)
	assert.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodGet, "/api/ws/study?ticket="+res.Ticket, "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestBannedUserIsRejected(t *testing.T) {
	ts := newTestServer(t, "")
	adminToken, adminID := ts.register(t, "root_admin")
	ts.makeAdmin(t, adminID)
	token, userID := ts.register(t, "troll")

	resp, body := ts.do(t, http.MethodPost, fmt.Sprintf("/api/admin/users/%d/ban", userID), adminToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, _ = ts.do(t, http.MethodGet, "/api/auth/me", token, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodPost, "/api/auth/login", "", fiber.Map{"email": "troll@example.com", "password": testPassword})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestDeleteTopic_RemovesAllPosts(t *testing.T) {
	ts := newTestServer(t, "")
	token, _ := ts.register(t, "author")
	otherToken, _ := ts.register(t, "replier")

	resp, body := ts.do(t, http.MethodPost, "/api/topics", token, fiber.Map{
		"title":   "Linear algebra study group",
		"content": "Who wants to go through Strang together?",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var topic models.Topic
	require.NoError(t, json.Unmarshal(body, &topic))
	assert.Equal(t, models.DefaultTopicCategory, topic.Category)

	for _, content := range []string{"Count me in", "Same here"} {
		resp, body = ts.do(t, http.MethodPost, fmt.Sprintf("/api/topics/%d/posts", topic.ID), otherToken, fiber.Map{"content": content})
		require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	}

	// Only the author or an admin may delete.
	resp, _ = ts.do(t, http.MethodDelete, fmt.Sprintf("/api/topics/%d", topic.ID), otherToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body = ts.do(t, http.MethodDelete, fmt.Sprintf("/api/topics/%d", topic.ID), token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Contains(t, string(body), `"posts_deleted":2`)

	var remaining int64
	require.NoError(t, ts.db.Model(&models.Post{}).Where("topic_id = ?", topic.ID).Count(&remaining).Error)
	assert.Zero(t, remaining)

	resp, _ = ts.do(t, http.MethodGet, fmt.Sprintf("/api/topics/%d", topic.ID), "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMessagesFlow(t *testing.T) {
	ts := newTestServer(t, "")
	aliceToken, aliceID := ts.register(t, "alice")
	bobToken, bobID := ts.register(t, "bob")

	resp, _ := ts.do(t, http.MethodPost, "/api/messages", aliceToken, fiber.Map{"recipient_id": aliceID, "content": "hi me"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := ts.do(t, http.MethodPost, "/api/messages", aliceToken, fiber.Map{"recipient_id": bobID, "content": "hi bob"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	resp, body = ts.do(t, http.MethodGet, "/api/messages/unread-count", bobToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"count":1}`, string(body))

	resp, _ = ts.do(t, http.MethodPost, fmt.Sprintf("/api/messages/%d/read", aliceID), bobToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, body = ts.do(t, http.MethodGet, "/api/messages/unread-count", bobToken, nil)
	assert.JSONEq(t, `{"count":0}`, string(body))
}

func TestStudyRoomLifecycle(t *testing.T) {
	ts := newTestServer(t, "")
	hostToken, _ := ts.register(t, "host")
	guestToken, _ := ts.register(t, "guest")

	resp, body := ts.do(t, http.MethodPost, "/api/study-rooms", hostToken, fiber.Map{
		"title":            "Organic chemistry",
		"subject":          "chemistry",
		"max_participants": 99,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var session models.StudySession
	require.NoError(t, json.Unmarshal(body, &session))
	assert.NotEmpty(t, session.RoomID)
	assert.Equal(t, 4, session.MaxParticipants)

	resp, body = ts.do(t, http.MethodGet, "/api/study-rooms/ice-servers", guestToken, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "stun:")

	resp, _ = ts.do(t, http.MethodPost, "/api/study-rooms/"+session.RoomID+"/end", guestToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodPost, "/api/study-rooms/"+session.RoomID+"/end", hostToken, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodPost, "/api/study-rooms/"+session.RoomID+"/end", hostToken, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestPeerIDRequiresFeatureFlag(t *testing.T) {
	on := newTestServer(t, "peer_broker=on")
	token, _ := on.register(t, "peer_on")
	resp, body := on.do(t, http.MethodGet, "/api/peer/id", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	id := string(body)
	assert.Len(t, id, 36)

	owner, err := on.rdb.Get(context.Background(), "peer:"+id).Result()
	require.NoError(t, err)
	assert.NotEmpty(t, owner)

	off := newTestServer(t, "peer_broker=off")
	token, _ = off.register(t, "peer_off")
	resp, _ = off.do(t, http.MethodGet, "/api/peer/id", token, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestAdminRoutes(t *testing.T) {
	ts := newTestServer(t, "study_room_chat=on")
	userToken, _ := ts.register(t, "student")
	adminToken, adminID := ts.register(t, "operator")

	resp, _ := ts.do(t, http.MethodGet, "/api/admin/dashboard", userToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	ts.makeAdmin(t, adminID)

	resp, body := ts.do(t, http.MethodGet, "/api/admin/dashboard", adminToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Contains(t, string(body), `"users":2`)

	resp, _ = ts.do(t, http.MethodPost, fmt.Sprintf("/api/admin/users/%d/ban", adminID), adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = ts.do(t, http.MethodGet, "/api/admin/feature-flags", adminToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"study_room_chat":true`)
}

func TestMaintenanceModeBlocksApi(t *testing.T) {
	ts := newTestServer(t, "")
	adminToken, adminID := ts.register(t, "maint")
	ts.makeAdmin(t, adminID)

	resp, body := ts.do(t, http.MethodPut, "/api/admin/settings/maintenance_mode", adminToken, fiber.Map{"value": "true"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, _ = ts.do(t, http.MethodGet, "/api/topics", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodGet, "/api/settings/public", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodPut, "/api/admin/settings/maintenance_mode", adminToken, fiber.Map{"value": "false"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodGet, "/api/topics", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAnalyticsAndFeedback(t *testing.T) {
	ts := newTestServer(t, "")

	resp, _ := ts.do(t, http.MethodPost, "/api/analytics/events", "", fiber.Map{"event_type": "Bad Type!"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodPost, "/api/analytics/events", "", fiber.Map{"event_type": "page.view", "path": "/forum"})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodPost, "/api/feedback", "", fiber.Map{"message": "Dark mode please"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodPost, "/api/feedback", "", fiber.Map{"message": "Dark mode please", "email": "anon@example.com"})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestHumanizeParam(t *testing.T) {
	assert.Equal(t, "ID", humanizeParam("id"))
	assert.Equal(t, "user ID", humanizeParam("userId"))
	assert.Equal(t, "room member ID", humanizeParam("roomMemberId"))
	assert.Equal(t, "key", humanizeParam("key"))
}

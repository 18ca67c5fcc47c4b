package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"studyhub/internal/cache"
	"studyhub/internal/config"
	"studyhub/internal/models"
	"studyhub/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func newGoogleOAuth(t *testing.T, env *testEnv, profile GoogleProfile) *GoogleOAuth {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.Form.Get("code") != "good-code" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "access", "token_type": "Bearer", "expires_in": 3600})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(profile)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg := *env.cfg
	cfg.GoogleClientID = "client"
	cfg.GoogleClientSecret = "secret"
	cfg.GoogleRedirectURL = "https://studyhub.example/api/auth/google/callback"
	g := NewGoogleOAuth(&cfg, env.users, NewTokenService(env.cfg, env.rdb, env.tokens), env.rdb)
	require.NotNil(t, g)
	g.SetEndpoint(oauth2.Endpoint{
		AuthURL:   srv.URL + "/auth",
		TokenURL:  srv.URL + "/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}, srv.URL+"/userinfo")
	return g
}

func TestGoogleOAuth_DisabledWithoutCredentials(t *testing.T) {
	assert.Nil(t, NewGoogleOAuth(&config.Config{}, nil, nil, nil))
}

func TestGoogleOAuth_State(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	g := newGoogleOAuth(t, env, GoogleProfile{})

	authURL, state, err := g.Begin(ctx)
	require.NoError(t, err)
	u, err := url.Parse(authURL)
	require.NoError(t, err)
	assert.Equal(t, state, u.Query().Get("state"))
	assert.True(t, env.mr.Exists(cache.OAuthStateKey(state)))

	require.NoError(t, g.CheckState(ctx, state, ""))
	assertCode(t, g.CheckState(ctx, state, ""), models.CodeValidation)
	assertCode(t, g.CheckState(ctx, "", ""), models.CodeValidation)

	g.rdb = nil
	require.NoError(t, g.CheckState(ctx, "abc", "abc"))
	assertCode(t, g.CheckState(ctx, "abc", "xyz"), models.CodeValidation)
}

func TestGoogleOAuth_CompleteCreatesUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	g := newGoogleOAuth(t, env, GoogleProfile{
		Sub:           "google-123",
		Email:         "New.Student@Gmail.com",
		EmailVerified: true,
		Name:          "New Student",
		Picture:       "https://lh3.example/photo.jpg",
	})

	res, err := g.Complete(ctx, "good-code")
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)
	assert.Equal(t, "new.student@gmail.com", res.User.Email)
	assert.Equal(t, "newstudent", res.User.Username)
	require.NotNil(t, res.User.GoogleID)
	assert.Equal(t, "google-123", *res.User.GoogleID)

	again, err := g.Complete(ctx, "good-code")
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, again.User.ID)

	_, err = g.Complete(ctx, "bad-code")
	assertCode(t, err, models.CodeUnauthorized)
	_, err = g.Complete(ctx, "")
	assertCode(t, err, models.CodeValidation)
}

func TestGoogleOAuth_UnverifiedEmail(t *testing.T) {
	env := newTestEnv(t)
	g := newGoogleOAuth(t, env, GoogleProfile{Sub: "g-1", Email: "x@gmail.com"})

	_, err := g.Complete(context.Background(), "good-code")
	assertCode(t, err, models.CodeForbidden)
}

func TestGoogleOAuth_FindOrCreateLinksByEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	g := newGoogleOAuth(t, env, GoogleProfile{})
	existing := testutil.CreateUser(t, env.db, "linked", false)

	user, err := g.FindOrCreate(ctx, &GoogleProfile{Sub: "g-link", Email: "LINKED@example.com", Picture: "https://img.example/p.png"})
	require.NoError(t, err)
	assert.Equal(t, existing.ID, user.ID)
	assert.Equal(t, "https://img.example/p.png", user.AvatarURL)

	found, err := env.users.GetByGoogleID(ctx, "g-link")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, existing.ID, found.ID)

	taken := testutil.CreateUser(t, env.db, "student", false)
	fresh, err := g.FindOrCreate(ctx, &GoogleProfile{Sub: "g-new", Email: "ab@example.org"})
	require.NoError(t, err)
	assert.NotEqual(t, taken.Username, fresh.Username)
	assert.Contains(t, fresh.Username, "student_")
}

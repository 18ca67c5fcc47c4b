package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"studyhub/internal/cache"
	"studyhub/internal/config"
	"studyhub/internal/models"
	"studyhub/internal/repository"

	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const (
	GoogleUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"
	OAuthStateTTL     = 10 * time.Minute
)

var usernameStrip = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// GoogleProfile is the subset of the userinfo response we use.
type GoogleProfile struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// GoogleOAuth runs the authorization-code flow against Google.
type GoogleOAuth struct {
	oauth       *oauth2.Config
	users       repository.UserRepository
	tokens      *TokenService
	rdb         *redis.Client
	UserInfoURL string
}

// NewGoogleOAuth returns nil when the client id, secret or redirect URL is missing.
func NewGoogleOAuth(cfg *config.Config, users repository.UserRepository, tokens *TokenService, rdb *redis.Client) *GoogleOAuth {
	if !cfg.GoogleOAuthEnabled() {
		return nil
	}
	return &GoogleOAuth{
		oauth: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
			Endpoint:     endpoints.Google,
			Scopes:       []string{"openid", "email", "profile"},
		},
		users:       users,
		tokens:      tokens,
		rdb:         rdb,
		UserInfoURL: GoogleUserInfoURL,
	}
}

// SetEndpoint points the flow at another provider; tests use it with httptest.
func (g *GoogleOAuth) SetEndpoint(ep oauth2.Endpoint, userInfoURL string) {
	g.oauth.Endpoint = ep
	g.UserInfoURL = userInfoURL
}

// Begin creates a state value and returns the consent URL. When Redis is
// available the state is stored there; otherwise the caller must keep it in
// a cookie and pass it back to Complete.
func (g *GoogleOAuth) Begin(ctx context.Context) (authURL, state string, err error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", "", models.NewInternalError(err)
	}
	state = hex.EncodeToString(buf)
	if g.rdb != nil {
		if err := g.rdb.Set(ctx, cache.OAuthStateKey(state), "1", OAuthStateTTL).Err(); err != nil {
			return "", "", models.NewInternalError(err)
		}
	}
	return g.oauth.AuthCodeURL(state, oauth2.AccessTypeOnline), state, nil
}

// CheckState consumes the state; cookieState is used only without Redis.
func (g *GoogleOAuth) CheckState(ctx context.Context, state, cookieState string) error {
	if state == "" {
		return models.NewValidationError("Missing OAuth state")
	}
	if g.rdb != nil {
		n, err := g.rdb.Del(ctx, cache.OAuthStateKey(state)).Result()
		if err != nil {
			return models.NewInternalError(err)
		}
		if n == 0 {
			return models.NewValidationError("Unknown or expired OAuth state")
		}
		return nil
	}
	if cookieState == "" || cookieState != state {
		return models.NewValidationError("Unknown or expired OAuth state")
	}
	return nil
}

// Complete exchanges the code, loads the profile and signs the user in.
func (g *GoogleOAuth) Complete(ctx context.Context, code string) (*AuthResult, error) {
	if code == "" {
		return nil, models.NewValidationError("Missing authorization code")
	}
	tok, err := g.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, models.NewUnauthorizedError("Google authorization failed")
	}
	profile, err := g.fetchProfile(ctx, tok)
	if err != nil {
		return nil, err
	}
	user, err := g.FindOrCreate(ctx, profile)
	if err != nil {
		return nil, err
	}
	if user.IsBanned {
		return nil, models.NewForbiddenError("Account is banned")
	}
	now := time.Now()
	if err := g.users.UpdateFields(ctx, user.ID, map[string]any{"last_login_at": now}); err != nil {
		return nil, err
	}
	user.LastLoginAt = &now

	token, claims, err := g.tokens.Issue(user.ID, user.Username)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return &AuthResult{Token: token, User: user, Claims: claims}, nil
}

func (g *GoogleOAuth) fetchProfile(ctx context.Context, tok *oauth2.Token) (*GoogleProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.UserInfoURL, nil)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	resp, err := g.oauth.Client(ctx, tok).Do(req)
	if err != nil {
		return nil, models.NewInternalError(fmt.Errorf("userinfo request: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, models.NewUnauthorizedError("Google rejected the access token")
	}

	var profile GoogleProfile
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&profile); err != nil {
		return nil, models.NewInternalError(err)
	}
	if profile.Sub == "" || profile.Email == "" {
		return nil, models.NewUnauthorizedError("Google profile is missing an id or email")
	}
	if !profile.EmailVerified {
		return nil, models.NewForbiddenError("Google email address is not verified")
	}
	return &profile, nil
}

// FindOrCreate resolves a Google profile to a user: by google id, then by
// email (linking the google id), otherwise a new account.
func (g *GoogleOAuth) FindOrCreate(ctx context.Context, p *GoogleProfile) (*models.User, error) {
	user, err := g.users.GetByGoogleID(ctx, p.Sub)
	if err != nil || user != nil {
		return user, err
	}

	email := strings.ToLower(strings.TrimSpace(p.Email))
	user, err = g.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user != nil {
		fields := map[string]any{"google_id": p.Sub}
		if user.AvatarURL == "" && p.Picture != "" {
			fields["avatar_url"] = p.Picture
			user.AvatarURL = p.Picture
		}
		if err := g.users.UpdateFields(ctx, user.ID, fields); err != nil {
			return nil, err
		}
		sub := p.Sub
		user.GoogleID = &sub
		return user, nil
	}

	username, err := g.availableUsername(ctx, email)
	if err != nil {
		return nil, err
	}
	sub := p.Sub
	user = &models.User{
		Username:    username,
		Email:       email,
		GoogleID:    &sub,
		DisplayName: clip(strings.TrimSpace(p.Name), 60),
		AvatarURL:   clip(p.Picture, 255),
	}
	if user.DisplayName == "" {
		user.DisplayName = username
	}
	if err := g.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// availableUsername derives a handle from the email local part and appends a
// random suffix until it is free.
func (g *GoogleOAuth) availableUsername(ctx context.Context, email string) (string, error) {
	local, _, _ := strings.Cut(email, "@")
	base := strings.Trim(clip(usernameStrip.ReplaceAllString(local, ""), 24), "_-")
	if len(base) < 3 {
		base = "student"
	}

	candidate := base
	for i := 0; i < 5; i++ {
		existing, err := g.users.GetByUsername(ctx, candidate)
		if err != nil {
			return "", err
		}
		if existing == nil {
			return candidate, nil
		}
		suffix := make([]byte, 2)
		if _, err := rand.Read(suffix); err != nil {
			return "", models.NewInternalError(err)
		}
		candidate = base + "_" + hex.EncodeToString(suffix)
	}
	return "", models.NewInternalError(errors.New("could not allocate a username"))
}

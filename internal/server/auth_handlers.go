package server

import (
	"net/url"
	"time"

	"studyhub/internal/models"
	"studyhub/internal/service"

	"github.com/gofiber/fiber/v2"
)

const oauthStateCookie = "studyhub_oauth_state"

// Register handles POST /api/auth/register
// @Summary User signup
// @Description Register a new user account
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object{username=string,email=string,password=string} true "Signup request"
// @Success 201 {object} service.AuthResult
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Router /auth/register [post]
func (s *Server) Register(c *fiber.Ctx) error {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	res, err := s.auth.Register(c.UserContext(), service.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return models.Respond(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

// Login handles POST /api/auth/login
// @Summary User login
// @Description Authenticate user and return JWT token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object{email=string,password=string} true "Login credentials"
// @Success 200 {object} service.AuthResult
// @Failure 401 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Router /auth/login [post]
func (s *Server) Login(c *fiber.Ctx) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	res, err := s.auth.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return models.Respond(c, err)
	}

	uid := res.User.ID
	s.analytics.Track(c, &models.AnalyticsEvent{UserID: &uid, EventType: "auth.login"})
	return c.JSON(res)
}

// Logout handles POST /api/auth/logout
// @Summary Logout
// @Description Revoke the presented token
// @Tags auth
// @Security BearerAuth
// @Success 200 {object} object{message=string}
// @Router /auth/logout [post]
func (s *Server) Logout(c *fiber.Ctx) error {
	claims, ok := c.Locals(localClaims).(*service.Claims)
	if !ok {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Logout requires a bearer token"))
	}
	if err := s.auth.Logout(c.UserContext(), claims); err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(fiber.Map{"message": "Logged out"})
}

// Refresh handles POST /api/auth/refresh
// @Summary Refresh token
// @Description Swap a valid token for a new one and revoke the old one
// @Tags auth
// @Security BearerAuth
// @Success 200 {object} service.AuthResult
// @Router /auth/refresh [post]
func (s *Server) Refresh(c *fiber.Ctx) error {
	claims, ok := c.Locals(localClaims).(*service.Claims)
	if !ok {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Refresh requires a bearer token"))
	}
	res, err := s.auth.Refresh(c.UserContext(), claims)
	if err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(res)
}

// Me handles GET /api/auth/me
// @Summary Current user
// @Tags auth
// @Security BearerAuth
// @Success 200 {object} models.User
// @Router /auth/me [get]
func (s *Server) Me(c *fiber.Ctx) error {
	user, err := s.users.GetUserByID(c.UserContext(), currentUserID(c))
	if err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(user)
}

// GoogleLogin handles GET /api/auth/google
// @Summary Google sign-in
// @Description Redirects to the Google consent screen
// @Tags auth
// @Success 302
// @Failure 404 {object} models.ErrorResponse
// @Router /auth/google [get]
func (s *Server) GoogleLogin(c *fiber.Ctx) error {
	if s.google == nil {
		return models.RespondWithError(c, fiber.StatusNotFound,
			models.NewNotFoundError("OAuth provider", "google"))
	}
	authURL, state, err := s.google.Begin(c.UserContext())
	if err != nil {
		return models.Respond(c, err)
	}
	if s.redis == nil {
		c.Cookie(&fiber.Cookie{
			Name:     oauthStateCookie,
			Value:    state,
			Path:     "/api/auth/google",
			Expires:  time.Now().Add(service.OAuthStateTTL),
			HTTPOnly: true,
			Secure:   s.config.IsProduction(),
			SameSite: fiber.CookieSameSiteLaxMode,
		})
	}
	return c.Redirect(authURL, fiber.StatusFound)
}

// GoogleCallback handles GET /api/auth/google/callback
// @Summary Google OAuth callback
// @Tags auth
// @Param state query string true "OAuth state"
// @Param code query string true "Authorization code"
// @Success 302
// @Failure 400 {object} models.ErrorResponse
// @Router /auth/google/callback [get]
func (s *Server) GoogleCallback(c *fiber.Ctx) error {
	if s.google == nil {
		return models.RespondWithError(c, fiber.StatusNotFound,
			models.NewNotFoundError("OAuth provider", "google"))
	}
	ctx := c.UserContext()
	if err := s.google.CheckState(ctx, c.Query("state"), c.Cookies(oauthStateCookie)); err != nil {
		return models.Respond(c, err)
	}
	c.ClearCookie(oauthStateCookie)

	res, err := s.google.Complete(ctx, c.Query("code"))
	if err != nil {
		return models.Respond(c, err)
	}

	uid := res.User.ID
	s.analytics.Track(c, &models.AnalyticsEvent{UserID: &uid, EventType: "auth.login", Metadata: map[string]any{"provider": "google"}})
	return c.Redirect(s.config.FrontendURL+"/auth/callback#token="+url.QueryEscape(res.Token), fiber.StatusFound)
}

// IssueWSTicket handles POST /api/ws/ticket
// @Summary Issue socket ticket
// @Description Returns a single-use ticket valid for 30 seconds
// @Tags websocket
// @Security BearerAuth
// @Success 200 {object} object{ticket=string,expires_in=int}
// @Failure 503 {object} models.ErrorResponse
// @Router /ws/ticket [post]
func (s *Server) IssueWSTicket(c *fiber.Ctx) error {
	ticket, err := s.tokens.IssueTicket(c.UserContext(), currentUserID(c))
	if err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(fiber.Map{
		"ticket":     ticket,
		"expires_in": int(service.WSTicketTTL.Seconds()),
	})
}

package server

import (
	"strings"

	"studyhub/internal/middleware"
	"studyhub/internal/models"
	"studyhub/internal/service"

	"github.com/gofiber/fiber/v2"
)

const (
	localUserID = "userID"
	localClaims = "claims"
)

// isSocketPath reports whether path is a websocket upgrade route. Socket
// routes never accept ?token= because query strings end up in access logs.
func isSocketPath(path string) bool {
	return strings.HasPrefix(path, "/api/ws") || path == "/api/peer"
}

// bearerToken extracts the token from an "Authorization: Bearer" header.
func bearerToken(c *fiber.Ctx) string {
	parts := strings.SplitN(c.Get(fiber.HeaderAuthorization), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// AuthRequired authenticates the request by socket ticket, bearer token or
// ?token= query parameter, in that order.
func (s *Server) AuthRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		wsPath := isSocketPath(c.Path())

		// 1. Single-use socket tickets, socket paths only.
		if ticket := c.Query("ticket"); ticket != "" && wsPath {
			userID, err := s.tokens.RedeemTicket(ctx, ticket)
			if err != nil {
				return models.Respond(c, err)
			}
			if err := s.checkBanned(c, userID); err != nil {
				return nil
			}
			s.setUser(c, userID, nil)
			return c.Next()
		}

		// 2. JWT from the header, or the query string off socket paths.
		tokenString := bearerToken(c)
		if tokenString == "" && !wsPath {
			tokenString = c.Query("token")
		}
		if tokenString == "" {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Authorization required"))
		}

		claims, err := s.tokens.Parse(tokenString)
		if err != nil {
			return models.Respond(c, err)
		}

		revoked, err := s.tokens.IsRevoked(ctx, claims.JTI)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
		}
		if revoked {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Token has been revoked"))
		}

		if err := s.checkBanned(c, claims.UserID); err != nil {
			return nil
		}

		s.setUser(c, claims.UserID, claims)
		return c.Next()
	}
}

// checkBanned writes a 401/403 and returns errResponseWritten when userID
// no longer exists or is banned.
func (s *Server) checkBanned(c *fiber.Ctx, userID uint) error {
	user, err := s.users.GetUserByID(c.UserContext(), userID)
	if err != nil {
		if models.IsCode(err, models.CodeNotFound) {
			_ = models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("User no longer exists"))
			return errResponseWritten
		}
		_ = models.Respond(c, err)
		return errResponseWritten
	}
	if user.IsBanned {
		_ = models.RespondWithError(c, fiber.StatusForbidden,
			models.NewForbiddenError("Account is banned"))
		return errResponseWritten
	}
	return nil
}

func (s *Server) setUser(c *fiber.Ctx, userID uint, claims *service.Claims) {
	c.Locals(localUserID, userID)
	if claims != nil {
		c.Locals(localClaims, claims)
	}
	c.SetUserContext(middleware.WithUserID(c.UserContext(), userID))
}

// AdminRequired must run after AuthRequired.
func (s *Server) AdminRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, ok := c.Locals(localUserID).(uint)
		if !ok {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Authorization required"))
		}
		admin, err := s.users.IsAdmin(c.UserContext(), userID)
		if err != nil {
			return models.Respond(c, err)
		}
		if !admin {
			return models.RespondWithError(c, fiber.StatusForbidden,
				models.NewForbiddenError("Admin access required"))
		}
		return c.Next()
	}
}

// featureRequired answers 403 when the named flag is off for the caller.
func (s *Server) featureRequired(flag string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, _ := c.Locals(localUserID).(uint)
		if !s.featureFlags.Enabled(flag, userID) {
			return models.RespondWithError(c, fiber.StatusForbidden,
				models.NewForbiddenError("Feature is disabled"))
		}
		return c.Next()
	}
}

// optionalUserID attempts to extract userID from the Authorization header but does not enforce it.
func (s *Server) optionalUserID(c *fiber.Ctx) (uint, bool) {
	if uid, ok := c.Locals(localUserID).(uint); ok {
		return uid, true
	}
	tokenString := bearerToken(c)
	if tokenString == "" {
		return 0, false
	}
	claims, err := s.tokens.Parse(tokenString)
	if err != nil {
		return 0, false
	}
	if revoked, err := s.tokens.IsRevoked(c.UserContext(), claims.JTI); err != nil || revoked {
		return 0, false
	}
	return claims.UserID, true
}

package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"studyhub/internal/cache"
	"studyhub/internal/config"
	"studyhub/internal/models"
	"studyhub/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	TokenIssuer   = "studyhub-api"
	TokenAudience = "studyhub-client"

	defaultTokenTTL = 7 * 24 * time.Hour
	WSTicketTTL     = 30 * time.Second
)

// Claims is the validated content of an access token.
type Claims struct {
	UserID    uint
	Username  string
	JTI       string
	ExpiresAt time.Time
}

type tokenClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// TokenService issues, validates and revokes JWTs and socket tickets.
type TokenService struct {
	secret    []byte
	ttl       time.Duration
	rdb       *redis.Client
	blacklist repository.TokenBlacklistRepository
	now       func() time.Time
}

func NewTokenService(cfg *config.Config, rdb *redis.Client, blacklist repository.TokenBlacklistRepository) *TokenService {
	ttl := defaultTokenTTL
	if cfg.JWTTTLHours > 0 {
		ttl = time.Duration(cfg.JWTTTLHours) * time.Hour
	}
	return &TokenService{
		secret:    []byte(cfg.JWTSecret),
		ttl:       ttl,
		rdb:       rdb,
		blacklist: blacklist,
		now:       time.Now,
	}
}

// Issue signs a new HS256 token for the user.
func (s *TokenService) Issue(userID uint, username string) (string, *Claims, error) {
	if len(s.secret) == 0 {
		return "", nil, fmt.Errorf("JWT secret not configured")
	}
	now := s.now()
	claims := tokenClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(userID), 10),
			Issuer:    TokenIssuer,
			Audience:  jwt.ClaimStrings{TokenAudience},
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", nil, err
	}
	return signed, &Claims{
		UserID:    userID,
		Username:  username,
		JTI:       claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Parse verifies signature, algorithm, issuer, audience and expiry. It does
// not consult the blacklist.
func (s *TokenService) Parse(tokenString string) (*Claims, error) {
	var claims tokenClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(TokenIssuer),
		jwt.WithAudience(TokenAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return nil, models.NewUnauthorizedError("Invalid or expired token")
	}
	uid, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || uid == 0 {
		return nil, models.NewUnauthorizedError("Invalid token subject")
	}
	if claims.ID == "" {
		return nil, models.NewUnauthorizedError("Token is missing an id")
	}
	return &Claims{
		UserID:    uint(uid),
		Username:  claims.Username,
		JTI:       claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Revoke blacklists the token until it would have expired anyway.
func (s *TokenService) Revoke(ctx context.Context, claims *Claims) error {
	if claims == nil || claims.JTI == "" {
		return nil
	}
	if err := s.blacklist.Add(ctx, &models.BlacklistedToken{
		JTI:       claims.JTI,
		UserID:    claims.UserID,
		ExpiresAt: claims.ExpiresAt,
	}); err != nil {
		return err
	}
	if s.rdb != nil {
		ttl := claims.ExpiresAt.Sub(s.now())
		if ttl > 0 {
			if err := s.rdb.Set(ctx, cache.BlacklistKey(claims.JTI), "1", ttl).Err(); err != nil {
				return models.NewInternalError(err)
			}
		}
	}
	return nil
}

// IsRevoked checks Redis first and falls back to the database.
func (s *TokenService) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if s.rdb != nil {
		n, err := s.rdb.Exists(ctx, cache.BlacklistKey(jti)).Result()
		if err == nil && n > 0 {
			return true, nil
		}
	}
	return s.blacklist.Exists(ctx, jti)
}

// IssueTicket stores a single-use socket ticket for userID.
func (s *TokenService) IssueTicket(ctx context.Context, userID uint) (string, error) {
	if s.rdb == nil {
		return "", models.NewUnavailableError("Socket tickets require Redis")
	}
	ticket := uuid.NewString()
	if err := s.rdb.Set(ctx, cache.WSTicketKey(ticket), userID, WSTicketTTL).Err(); err != nil {
		return "", models.NewInternalError(err)
	}
	return ticket, nil
}

// RedeemTicket consumes a ticket and returns the user it was issued to.
func (s *TokenService) RedeemTicket(ctx context.Context, ticket string) (uint, error) {
	if s.rdb == nil || ticket == "" {
		return 0, models.NewUnauthorizedError("Invalid ticket")
	}
	raw, err := s.rdb.GetDel(ctx, cache.WSTicketKey(ticket)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, models.NewUnauthorizedError("Invalid or expired ticket")
	}
	if err != nil {
		return 0, models.NewInternalError(err)
	}
	uid, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || uid == 0 {
		return 0, models.NewUnauthorizedError("Invalid ticket")
	}
	return uint(uid), nil
}

// PurgeExpired removes blacklist rows for tokens past their expiry.
func (s *TokenService) PurgeExpired(ctx context.Context) (int64, error) {
	return s.blacklist.PurgeExpired(ctx, s.now())
}

package service

import (
	"context"
	"testing"
	"time"

	"studyhub/internal/config"
	"studyhub/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenService_IssueAndParse(t *testing.T) {
	env := newTestEnv(t)
	svc := NewTokenService(env.cfg, env.rdb, env.tokens)

	token, claims, err := svc.Issue(42, "ada")
	require.NoError(t, err)
	assert.NotEmpty(t, claims.JTI)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt, 5*time.Second)

	parsed, err := svc.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), parsed.UserID)
	assert.Equal(t, "ada", parsed.Username)
	assert.Equal(t, claims.JTI, parsed.JTI)
}

func TestTokenService_RejectsBadTokens(t *testing.T) {
	env := newTestEnv(t)
	svc := NewTokenService(env.cfg, env.rdb, env.tokens)
	token, _, err := svc.Issue(1, "ada")
	require.NoError(t, err)

	other := NewTokenService(&config.Config{JWTSecret: "a-completely-different-secret-value!!"}, nil, env.tokens)
	_, err = other.Parse(token)
	assertCode(t, err, models.CodeUnauthorized)

	expired := NewTokenService(env.cfg, nil, env.tokens)
	expired.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = expired.Parse(token)
	assertCode(t, err, models.CodeUnauthorized)

	wrongAudience := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "1",
		Issuer:    TokenIssuer,
		Audience:  jwt.ClaimStrings{"someone-else"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		ID:        "x",
	})
	signed, err := wrongAudience.SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = svc.Parse(signed)
	assertCode(t, err, models.CodeUnauthorized)

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "1"})
	none, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = svc.Parse(none)
	assertCode(t, err, models.CodeUnauthorized)
}

func TestTokenService_Revoke(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := NewTokenService(env.cfg, env.rdb, env.tokens)

	_, claims, err := svc.Issue(7, "grace")
	require.NoError(t, err)

	revoked, err := svc.IsRevoked(ctx, claims.JTI)
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, svc.Revoke(ctx, claims))
	assert.True(t, env.mr.Exists("blacklist:"+claims.JTI))

	revoked, err = svc.IsRevoked(ctx, claims.JTI)
	require.NoError(t, err)
	assert.True(t, revoked)

	// Without Redis the database row still answers.
	env.mr.FlushAll()
	dbOnly := NewTokenService(env.cfg, nil, env.tokens)
	revoked, err = dbOnly.IsRevoked(ctx, claims.JTI)
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestTokenService_Tickets(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := NewTokenService(env.cfg, env.rdb, env.tokens)

	ticket, err := svc.IssueTicket(ctx, 9)
	require.NoError(t, err)

	uid, err := svc.RedeemTicket(ctx, ticket)
	require.NoError(t, err)
	assert.Equal(t, uint(9), uid)

	_, err = svc.RedeemTicket(ctx, ticket)
	assertCode(t, err, models.CodeUnauthorized)

	ticket, err = svc.IssueTicket(ctx, 9)
	require.NoError(t, err)
	env.mr.FastForward(WSTicketTTL + time.Second)
	_, err = svc.RedeemTicket(ctx, ticket)
	assertCode(t, err, models.CodeUnauthorized)

	noRedis := NewTokenService(env.cfg, nil, env.tokens)
	_, err = noRedis.IssueTicket(ctx, 9)
	assertCode(t, err, models.CodeUnavailable)
}

func TestTokenService_PurgeExpired(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := NewTokenService(env.cfg, nil, env.tokens)

	require.NoError(t, svc.Revoke(ctx, &Claims{JTI: "old", UserID: 1, ExpiresAt: time.Now().Add(-time.Minute)}))
	require.NoError(t, svc.Revoke(ctx, &Claims{JTI: "new", UserID: 1, ExpiresAt: time.Now().Add(time.Hour)}))

	n, err := svc.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

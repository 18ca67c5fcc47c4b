package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"studyhub/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestUserRepository_GetByID_SQL(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	query := regexp.QuoteMeta(`SELECT * FROM "users" WHERE "users"."id" = $1 AND "users"."deleted_at" IS NULL ORDER BY "users"."id" LIMIT $2`)

	mock.ExpectQuery(query).
		WithArgs(1, 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "email"}).AddRow(1, "ada", "ada@example.com"))
	user, err := repo.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "ada", user.Username)

	mock.ExpectQuery(query).WithArgs(99, 1).WillReturnError(gorm.ErrRecordNotFound)
	_, err = repo.GetByID(ctx, 99)
	assert.True(t, models.IsCode(err, models.CodeNotFound))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_CreateDuplicate(t *testing.T) {
	db := newTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &models.User{Username: "ada", Email: "ada@example.com"}))

	err := repo.Create(ctx, &models.User{Username: "ada2", Email: "ada@example.com"})
	require.Error(t, err)
	assert.True(t, models.IsCode(err, models.CodeValidation))
	assert.Contains(t, err.Error(), "Email")

	err = repo.Create(ctx, &models.User{Username: "ada", Email: "other@example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Username")
}

func TestUserRepository_Lookups(t *testing.T) {
	db := newTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	gid := "g-123"
	u := &models.User{Username: "Grace", Email: "Grace@Example.com", GoogleID: &gid}
	require.NoError(t, repo.Create(ctx, u))

	found, err := repo.GetByEmail(ctx, "grace@example.com")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, u.ID, found.ID)

	found, err = repo.GetByUsername(ctx, "grace")
	require.NoError(t, err)
	require.NotNil(t, found)

	found, err = repo.GetByGoogleID(ctx, "g-123")
	require.NoError(t, err)
	require.NotNil(t, found)

	missing, err := repo.GetByEmail(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUserRepository_UpdateAdminAndList(t *testing.T) {
	db := newTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	a := seedUser(t, db, "alice")
	seedUser(t, db, "bob")

	admin, err := repo.IsAdmin(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, admin)

	require.NoError(t, repo.UpdateFields(ctx, a.ID, map[string]any{"is_admin": true}))
	admin, err = repo.IsAdmin(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, admin)

	err = repo.UpdateFields(ctx, 999, map[string]any{"bio": "x"})
	assert.True(t, models.IsCode(err, models.CodeNotFound))

	users, total, err := repo.List(ctx, UserFilter{Query: "ali"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, users, 1)
	assert.Equal(t, "alice", users[0].Username)

	admins, err := repo.ListAdmins(ctx)
	require.NoError(t, err)
	assert.Len(t, admins, 1)

	n, err := repo.CountSince(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, repo.Delete(ctx, a.ID))
	n, err = repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestPage_Normalize(t *testing.T) {
	assert.Equal(t, Page{Limit: 20}, Page{}.Normalize())
	assert.Equal(t, Page{Limit: 100, Offset: 0}, Page{Limit: 500, Offset: -3}.Normalize())
}

package repository

import (
	"context"
	"testing"
	"time"

	"studyhub/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageRepository_ThreadAndReadReceipts(t *testing.T) {
	db := newTestDB(t)
	repo := NewMessageRepository(db)
	ctx := context.Background()

	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")
	carol := seedUser(t, db, "carol")

	send := func(from, to *models.User, body string) {
		require.NoError(t, repo.Create(ctx, &models.Message{SenderID: from.ID, RecipientID: to.ID, Content: body}))
	}
	send(alice, bob, "hi bob")
	send(bob, alice, "hi alice")
	send(alice, bob, "quiz tomorrow?")
	send(carol, bob, "notes attached")

	thread, err := repo.Thread(ctx, bob.ID, alice.ID, Page{})
	require.NoError(t, err)
	require.Len(t, thread, 3)
	assert.Equal(t, "quiz tomorrow?", thread[0].Content)

	unread, err := repo.UnreadBySender(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), unread[alice.ID])
	assert.Equal(t, int64(1), unread[carol.ID])

	marked, err := repo.MarkRead(ctx, bob.ID, alice.ID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(2), marked)

	total, err := repo.UnreadTotal(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	recent, err := repo.LatestPerPartner(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "quiz tomorrow?", recent[0].Content)

	require.NoError(t, repo.Delete(ctx, recent[0].ID))
	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestMessageRepository_LatestPerPartnerCoversOldConversations(t *testing.T) {
	db := newTestDB(t)
	repo := NewMessageRepository(db)
	ctx := context.Background()

	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")
	carol := seedUser(t, db, "carol")

	require.NoError(t, repo.Create(ctx, &models.Message{SenderID: carol.ID, RecipientID: alice.ID, Content: "old question"}))
	batch := make([]models.Message, 0, 600)
	for i := 0; i < 600; i++ {
		batch = append(batch, models.Message{SenderID: bob.ID, RecipientID: alice.ID, Content: "ping"})
	}
	require.NoError(t, db.Omit("Sender").CreateInBatches(&batch, 100).Error)
	require.NoError(t, repo.Create(ctx, &models.Message{SenderID: alice.ID, RecipientID: bob.ID, Content: "stop"}))

	latest, err := repo.LatestPerPartner(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, "stop", latest[0].Content)
	assert.Equal(t, bob.ID, latest[0].PartnerOf(alice.ID))
	assert.Equal(t, "old question", latest[1].Content)
	assert.Equal(t, carol.ID, latest[1].PartnerOf(alice.ID))

	unread, err := repo.UnreadBySender(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread[carol.ID])
	assert.Equal(t, int64(600), unread[bob.ID])
}

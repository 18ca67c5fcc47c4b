package service

import (
	"context"
	"testing"

	"studyhub/internal/models"
	"studyhub/internal/repository"
	"studyhub/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageService_SendAndThread(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	notifier := &recordingNotifier{}
	messages := NewMessageService(env.messages, env.users, notifier)

	alice := testutil.CreateUser(t, env.db, "alice", false)
	bob := testutil.CreateUser(t, env.db, "bob", false)
	carol := testutil.CreateUser(t, env.db, "carol", false)

	first, err := messages.Send(ctx, SendMessageInput{SenderID: alice.ID, RecipientID: bob.ID, Content: "hi bob"})
	require.NoError(t, err)
	assert.Equal(t, "alice", first.Sender.Username)
	assert.Empty(t, first.Sender.Email)

	_, err = messages.Send(ctx, SendMessageInput{SenderID: bob.ID, RecipientID: alice.ID, Content: "hey alice"})
	require.NoError(t, err)
	_, err = messages.Send(ctx, SendMessageInput{SenderID: carol.ID, RecipientID: alice.ID, Content: "ping"})
	require.NoError(t, err)

	bobEvents := notifier.For(bob.ID)
	require.Len(t, bobEvents, 2)
	assert.Equal(t, "message", bobEvents[0].eventType)

	thread, err := messages.Thread(ctx, alice.ID, bob.ID, repository.Page{})
	require.NoError(t, err)
	require.Len(t, thread, 2)
	assert.Equal(t, "hi bob", thread[0].Content)
	assert.Equal(t, "hey alice", thread[1].Content)

	convs, err := messages.Conversations(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, convs, 2)
	unread := map[string]int64{}
	for _, c := range convs {
		unread[c.Partner.Username] = c.UnreadCount
	}
	assert.Equal(t, map[string]int64{"bob": 1, "carol": 1}, unread)

	total, err := messages.UnreadCount(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	n, err := messages.MarkRead(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	receipts := notifier.For(bob.ID)
	assert.Equal(t, "read", receipts[len(receipts)-1].eventType)

	total, err = messages.UnreadCount(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	_, err = messages.Thread(ctx, alice.ID, 9999, repository.Page{})
	assertCode(t, err, models.CodeNotFound)
}

func TestMessageService_SendRejects(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	messages := NewMessageService(env.messages, env.users, nil)

	alice := testutil.CreateUser(t, env.db, "alice", false)
	banned := testutil.CreateUser(t, env.db, "banned", false)
	require.NoError(t, env.users.UpdateFields(ctx, banned.ID, map[string]any{"is_banned": true}))

	tests := []struct {
		name string
		in   SendMessageInput
		code string
	}{
		{"Empty", SendMessageInput{SenderID: alice.ID, RecipientID: banned.ID, Content: "  "}, models.CodeValidation},
		{"Self", SendMessageInput{SenderID: alice.ID, RecipientID: alice.ID, Content: "me"}, models.CodeValidation},
		{"No Recipient", SendMessageInput{SenderID: alice.ID, Content: "hello"}, models.CodeValidation},
		{"Unknown Recipient", SendMessageInput{SenderID: alice.ID, RecipientID: 9999, Content: "hello"}, models.CodeNotFound},
		{"Banned Recipient", SendMessageInput{SenderID: alice.ID, RecipientID: banned.ID, Content: "hello"}, models.CodeForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := messages.Send(ctx, tt.in)
			assertCode(t, err, tt.code)
		})
	}
}

func TestMessageService_DeleteOnlyBySender(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	messages := NewMessageService(env.messages, env.users, nil)

	alice := testutil.CreateUser(t, env.db, "alice", false)
	bob := testutil.CreateUser(t, env.db, "bob", false)

	msg, err := messages.Send(ctx, SendMessageInput{SenderID: alice.ID, RecipientID: bob.ID, Content: "oops"})
	require.NoError(t, err)

	assertCode(t, messages.Delete(ctx, bob.ID, msg.ID), models.CodeForbidden)
	require.NoError(t, messages.Delete(ctx, alice.ID, msg.ID))
	assertCode(t, messages.Delete(ctx, alice.ID, msg.ID), models.CodeNotFound)
}

func TestMessageService_ConversationsIncludeQuietPartners(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	messages := NewMessageService(env.messages, env.users, nil)

	alice := testutil.CreateUser(t, env.db, "alice", false)
	bob := testutil.CreateUser(t, env.db, "bob", false)
	carol := testutil.CreateUser(t, env.db, "carol", false)

	_, err := messages.Send(ctx, SendMessageInput{SenderID: carol.ID, RecipientID: alice.ID, Content: "are you free?"})
	require.NoError(t, err)
	flood := make([]models.Message, 0, 520)
	for i := 0; i < 520; i++ {
		flood = append(flood, models.Message{SenderID: bob.ID, RecipientID: alice.ID, Content: "spam"})
	}
	require.NoError(t, env.db.Omit("Sender").CreateInBatches(&flood, 100).Error)

	convs, err := messages.Conversations(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, "bob", convs[0].Partner.Username)
	assert.Equal(t, int64(520), convs[0].UnreadCount)
	assert.Equal(t, "carol", convs[1].Partner.Username)
	assert.Equal(t, "are you free?", convs[1].LastMessage.Content)
	assert.Equal(t, int64(1), convs[1].UnreadCount)
}

package service

import (
	"context"
	"strings"
	"testing"

	"studyhub/internal/models"
	"studyhub/internal/repository"
	"studyhub/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForumService_TopicLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	notifier := &recordingNotifier{}
	forum := NewForumService(env.topics, env.posts, notifier, env.isAdmin)

	author := testutil.CreateUser(t, env.db, "author", false)
	other := testutil.CreateUser(t, env.db, "other", false)
	admin := testutil.CreateUser(t, env.db, "moderator", true)

	topic, err := forum.CreateTopic(ctx, CreateTopicInput{UserID: author.ID, Title: "  Linear algebra  ", Content: "Eigenvalues help", Category: " MATH "})
	require.NoError(t, err)
	assert.Equal(t, "Linear algebra", topic.Title)
	assert.Equal(t, "math", topic.Category)
	assert.Equal(t, author.ID, topic.Author.ID)

	viewed, err := forum.GetTopic(ctx, topic.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), viewed.ViewCount)

	newTitle := "Linear algebra basics"
	_, err = forum.UpdateTopic(ctx, UpdateTopicInput{UserID: other.ID, TopicID: topic.ID, Title: &newTitle})
	assertCode(t, err, models.CodeForbidden)

	updated, err := forum.UpdateTopic(ctx, UpdateTopicInput{UserID: author.ID, TopicID: topic.ID, Title: &newTitle})
	require.NoError(t, err)
	assert.Equal(t, newTitle, updated.Title)
	assert.Equal(t, "math", updated.Category)

	_, err = forum.SetPinned(ctx, author.ID, topic.ID, true)
	assertCode(t, err, models.CodeForbidden)
	pinned, err := forum.SetPinned(ctx, admin.ID, topic.ID, true)
	require.NoError(t, err)
	assert.True(t, pinned.IsPinned)
}

func TestForumService_CreateTopicValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	forum := NewForumService(env.topics, env.posts, nil, env.isAdmin)
	author := testutil.CreateUser(t, env.db, "author", false)

	tests := []struct {
		name string
		in   CreateTopicInput
	}{
		{"Short Title", CreateTopicInput{Title: "ab", Content: "body"}},
		{"Long Title", CreateTopicInput{Title: strings.Repeat("t", 201), Content: "body"}},
		{"Empty Content", CreateTopicInput{Title: "Valid title", Content: "   "}},
		{"Long Content", CreateTopicInput{Title: "Valid title", Content: strings.Repeat("c", 20001)}},
		{"Long Category", CreateTopicInput{Title: "Valid title", Content: "body", Category: strings.Repeat("x", 51)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.in.UserID = author.ID
			_, err := forum.CreateTopic(ctx, tt.in)
			assertCode(t, err, models.CodeValidation)
		})
	}

	topic, err := forum.CreateTopic(ctx, CreateTopicInput{UserID: author.ID, Title: "No category", Content: "body"})
	require.NoError(t, err)
	assert.Equal(t, models.DefaultTopicCategory, topic.Category)
}

func TestForumService_Posts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	notifier := &recordingNotifier{}
	forum := NewForumService(env.topics, env.posts, notifier, env.isAdmin)

	author := testutil.CreateUser(t, env.db, "author", false)
	replier := testutil.CreateUser(t, env.db, "replier", false)
	admin := testutil.CreateUser(t, env.db, "moderator", true)

	topic, err := forum.CreateTopic(ctx, CreateTopicInput{UserID: author.ID, Title: "Study tips", Content: "Share yours"})
	require.NoError(t, err)
	otherTopic, err := forum.CreateTopic(ctx, CreateTopicInput{UserID: author.ID, Title: "Other topic", Content: "Elsewhere"})
	require.NoError(t, err)

	post, err := forum.CreatePost(ctx, CreatePostInput{UserID: replier.ID, TopicID: topic.ID, Content: "Pomodoro"})
	require.NoError(t, err)
	assert.Equal(t, "replier", post.Author.Username)

	replies := notifier.For(author.ID)
	require.Len(t, replies, 1)
	assert.Equal(t, "topic_reply", replies[0].eventType)

	_, err = forum.CreatePost(ctx, CreatePostInput{UserID: author.ID, TopicID: topic.ID, Content: "Thanks"})
	require.NoError(t, err)
	assert.Len(t, notifier.For(author.ID), 1, "authors are not notified of their own replies")

	_, err = forum.CreatePost(ctx, CreatePostInput{UserID: replier.ID, TopicID: otherTopic.ID, ParentID: &post.ID, Content: "Wrong thread"})
	assertCode(t, err, models.CodeValidation)

	missing := uint(9999)
	_, err = forum.CreatePost(ctx, CreatePostInput{UserID: replier.ID, TopicID: topic.ID, ParentID: &missing, Content: "Orphan"})
	assertCode(t, err, models.CodeValidation)

	nested, err := forum.CreatePost(ctx, CreatePostInput{UserID: replier.ID, TopicID: topic.ID, ParentID: &post.ID, Content: "Nested"})
	require.NoError(t, err)
	require.NotNil(t, nested.ParentID)

	_, err = forum.UpdatePost(ctx, author.ID, post.ID, "hijack")
	assertCode(t, err, models.CodeForbidden)
	edited, err := forum.UpdatePost(ctx, replier.ID, post.ID, "Pomodoro, 25 minutes")
	require.NoError(t, err)
	assert.Equal(t, "Pomodoro, 25 minutes", edited.Content)

	_, err = forum.SetLocked(ctx, admin.ID, topic.ID, true)
	require.NoError(t, err)
	_, err = forum.CreatePost(ctx, CreatePostInput{UserID: replier.ID, TopicID: topic.ID, Content: "Too late"})
	assertCode(t, err, models.CodeForbidden)

	require.NoError(t, forum.DeletePost(ctx, admin.ID, nested.ID))
	posts, err := forum.ListPosts(ctx, topic.ID, repository.Page{})
	require.NoError(t, err)
	assert.Len(t, posts, 2)
}

func TestForumService_DeleteTopicCascades(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	forum := NewForumService(env.topics, env.posts, nil, env.isAdmin)

	author := testutil.CreateUser(t, env.db, "author", false)
	stranger := testutil.CreateUser(t, env.db, "stranger", false)
	admin := testutil.CreateUser(t, env.db, "moderator", true)

	topic, err := forum.CreateTopic(ctx, CreateTopicInput{UserID: author.ID, Title: "Doomed topic", Content: "body"})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := forum.CreatePost(ctx, CreatePostInput{UserID: stranger.ID, TopicID: topic.ID, Content: "reply"})
		require.NoError(t, err)
	}

	_, err = forum.DeleteTopic(ctx, stranger.ID, topic.ID)
	assertCode(t, err, models.CodeForbidden)

	removed, err := forum.DeleteTopic(ctx, admin.ID, topic.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)

	_, err = forum.GetTopic(ctx, topic.ID)
	assertCode(t, err, models.CodeNotFound)

	count, err := env.posts.CountByTopic(ctx, topic.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

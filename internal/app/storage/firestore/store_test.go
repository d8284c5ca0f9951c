package firestore

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alfredchat/alfred/internal/app/domain/conversation"
	"github.com/alfredchat/alfred/internal/app/domain/user"
	"github.com/alfredchat/alfred/internal/app/storage"
)

func newEmulatorStore(t *testing.T) *Store {
	t.Helper()
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set; skipping firestore emulator test")
	}
	s, err := Open(context.Background(), "alfred-test")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func uniqueName(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

func TestUserDocRoundTrip(t *testing.T) {
	doc := userDoc{
		HashedPassword:  "hash",
		AgentPersona:    "butler",
		AgentGoal:       "serve",
		UserDisplayName: "Master Wayne",
	}
	u := doc.toUser("bruce")
	assert.Equal(t, "bruce", u.Username)
	assert.Equal(t, "hash", u.HashedPassword)
	assert.Equal(t, "Master Wayne", u.Profile.UserDisplayName)
}

func TestProfileFields(t *testing.T) {
	fields := profileFields(user.DefaultProfile("bruce"))
	assert.Len(t, fields, 4)
	assert.Equal(t, "bruce", fields["user_display_name"])
	assert.NotContains(t, fields, "hashed_password")
}

func TestEmulator_Users(t *testing.T) {
	s := newEmulatorStore(t)
	ctx := context.Background()
	name := uniqueName("bruce")

	_, err := s.GetUser(ctx, name)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, s.UpdateProfile(ctx, name, user.Profile{}), storage.ErrNotFound)

	p, err := s.EnsureProfile(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, user.DefaultProfile(name), p)

	require.NoError(t, s.SaveUser(ctx, user.User{Username: name, HashedPassword: "h", Profile: p}))
	u, err := s.GetUser(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, "h", u.HashedPassword)
	assert.False(t, u.CreatedAt.IsZero())
}

func TestEmulator_Messages(t *testing.T) {
	s := newEmulatorStore(t)
	ctx := context.Background()
	name := uniqueName("dick")

	for i := 0; i < 3; i++ {
		_, err := s.AppendMessage(ctx, conversation.Message{Username: name, UserMessage: fmt.Sprintf("q%d", i), AIResponse: "a"})
		require.NoError(t, err)
	}

	msgs, err := s.RecentMessages(ctx, name, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "q1", msgs[0].UserMessage)
	assert.Equal(t, "q2", msgs[1].UserMessage)

	n, err := s.ClearMessages(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

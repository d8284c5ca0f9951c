package storage

import (
	"context"
	"errors"

	"github.com/alfredchat/alfred/internal/app/domain/conversation"
	"github.com/alfredchat/alfred/internal/app/domain/user"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("storage: not found")

// ClearBatchSize is how many messages a store deletes per round when clearing history.
const ClearBatchSize = 50

// UserStore persists accounts and their assistant profiles.
type UserStore interface {
	GetUser(ctx context.Context, username string) (user.User, error)
	// SaveUser writes the full record. CreatedAt is kept when the user exists.
	SaveUser(ctx context.Context, u user.User) error
	UpdateProfile(ctx context.Context, username string, profile user.Profile) error
	// EnsureProfile returns the stored profile, creating a default one for
	// users that have no record yet.
	EnsureProfile(ctx context.Context, username string) (user.Profile, error)
	ListUsers(ctx context.Context) ([]user.User, error)
}

// MessageStore persists chat exchanges per user.
type MessageStore interface {
	// AppendMessage assigns the ID and server timestamp.
	AppendMessage(ctx context.Context, msg conversation.Message) (conversation.Message, error)
	// RecentMessages returns the newest limit messages ordered oldest first.
	RecentMessages(ctx context.Context, username string, limit int) ([]conversation.Message, error)
	// ClearMessages deletes all messages for the user in batches and returns the count.
	ClearMessages(ctx context.Context, username string) (int, error)
}

// Store is the full persistence surface used by the application.
type Store interface {
	UserStore
	MessageStore
	Ping(ctx context.Context) error
	Close() error
}

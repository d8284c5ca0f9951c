package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alfredchat/alfred/internal/app/domain/conversation"
	"github.com/alfredchat/alfred/internal/app/domain/user"
	"github.com/alfredchat/alfred/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local development.
type Store struct {
	mu       sync.RWMutex
	users    map[string]user.User
	messages map[string][]conversation.Message
	now      func() time.Time
}

var _ storage.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		users:    make(map[string]user.User),
		messages: make(map[string][]conversation.Message),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the timestamp source. Used by tests that need ordering.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// UserStore implementation -----------------------------------------------------

func (s *Store) GetUser(_ context.Context, username string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[username]
	if !ok {
		return user.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (s *Store) SaveUser(_ context.Context, u user.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if existing, ok := s.users[u.Username]; ok && !existing.CreatedAt.IsZero() {
		u.CreatedAt = existing.CreatedAt
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.LastUpdatedAt = now
	s.users[u.Username] = u
	return nil
}

func (s *Store) UpdateProfile(_ context.Context, username string, profile user.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[username]
	if !ok {
		return storage.ErrNotFound
	}
	u.Profile = profile
	u.LastUpdatedAt = s.now()
	s.users[username] = u
	return nil
}

func (s *Store) EnsureProfile(_ context.Context, username string) (user.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u, ok := s.users[username]; ok {
		return u.Profile, nil
	}
	profile := user.DefaultProfile(username)
	s.users[username] = user.User{Username: username, Profile: profile, CreatedAt: s.now()}
	return profile, nil
}

func (s *Store) ListUsers(_ context.Context) ([]user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]user.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

// MessageStore implementation --------------------------------------------------

func (s *Store) AppendMessage(_ context.Context, msg conversation.Message) (conversation.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg.ID = uuid.NewString()
	msg.Timestamp = s.now()
	s.messages[msg.Username] = append(s.messages[msg.Username], msg)
	return msg, nil
}

func (s *Store) RecentMessages(_ context.Context, username string, limit int) ([]conversation.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.messages[username]
	start := 0
	if limit > 0 && len(all) > limit {
		start = len(all) - limit
	}
	out := make([]conversation.Message, len(all)-start)
	copy(out, all[start:])
	return out, nil
}

func (s *Store) ClearMessages(_ context.Context, username string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.messages[username])
	delete(s.messages, username)
	return n, nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

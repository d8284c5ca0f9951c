// Package firestore stores users and chat history in Cloud Firestore.
//
// Layout:
//
//	users/{username}                      account and assistant profile
//	default/{username}/messages/{auto-id} one document per exchange
package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/alfredchat/alfred/internal/app/domain/conversation"
	"github.com/alfredchat/alfred/internal/app/domain/user"
	"github.com/alfredchat/alfred/internal/app/storage"
)

const (
	usersCollection    = "users"
	historyCollection  = "default"
	messagesCollection = "messages"
)

// Store implements storage.Store on Firestore.
type Store struct {
	client *firestore.Client
}

var _ storage.Store = (*Store)(nil)

// Open creates a client for projectID using Application Default Credentials.
// An empty projectID is detected from the environment. FIRESTORE_EMULATOR_HOST
// is honoured by the client library.
func Open(ctx context.Context, projectID string) (*Store, error) {
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}
	return New(client), nil
}

// New wraps an existing client.
func New(client *firestore.Client) *Store {
	return &Store{client: client}
}

type userDoc struct {
	HashedPassword      string    `firestore:"hashed_password,omitempty"`
	AgentPersona        string    `firestore:"agent_persona"`
	AgentGoal           string    `firestore:"agent_goal"`
	SpecialInstructions string    `firestore:"special_instructions"`
	UserDisplayName     string    `firestore:"user_display_name"`
	CreatedAt           time.Time `firestore:"created_at,omitempty"`
	LastUpdatedAt       time.Time `firestore:"last_updated_at,omitempty"`
}

func (d userDoc) toUser(username string) user.User {
	return user.User{
		Username:       username,
		HashedPassword: d.HashedPassword,
		Profile: user.Profile{
			AgentPersona:        d.AgentPersona,
			AgentGoal:           d.AgentGoal,
			SpecialInstructions: d.SpecialInstructions,
			UserDisplayName:     d.UserDisplayName,
		},
		CreatedAt:     d.CreatedAt,
		LastUpdatedAt: d.LastUpdatedAt,
	}
}

type messageDoc struct {
	User        string    `firestore:"user"`
	UserMessage string    `firestore:"user_message"`
	AIResponse  string    `firestore:"ai_response"`
	Timestamp   time.Time `firestore:"timestamp"`
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

func (s *Store) userRef(username string) *firestore.DocumentRef {
	return s.client.Collection(usersCollection).Doc(username)
}

func (s *Store) messagesRef(username string) *firestore.CollectionRef {
	return s.client.Collection(historyCollection).Doc(username).Collection(messagesCollection)
}

func profileFields(p user.Profile) map[string]interface{} {
	return map[string]interface{}{
		"agent_persona":        p.AgentPersona,
		"agent_goal":           p.AgentGoal,
		"special_instructions": p.SpecialInstructions,
		"user_display_name":    p.UserDisplayName,
	}
}

func (s *Store) GetUser(ctx context.Context, username string) (user.User, error) {
	snap, err := s.userRef(username).Get(ctx)
	if isNotFound(err) {
		return user.User{}, storage.ErrNotFound
	}
	if err != nil {
		return user.User{}, err
	}
	var doc userDoc
	if err := snap.DataTo(&doc); err != nil {
		return user.User{}, fmt.Errorf("decode user %s: %w", username, err)
	}
	return doc.toUser(username), nil
}

func (s *Store) SaveUser(ctx context.Context, u user.User) error {
	data := profileFields(u.Profile)
	data["hashed_password"] = u.HashedPassword
	data["last_updated_at"] = firestore.ServerTimestamp

	existing, err := s.GetUser(ctx, u.Username)
	switch {
	case errors.Is(err, storage.ErrNotFound) || (err == nil && existing.CreatedAt.IsZero()):
		data["created_at"] = firestore.ServerTimestamp
	case err != nil:
		return err
	default:
		data["created_at"] = existing.CreatedAt
	}

	_, err = s.userRef(u.Username).Set(ctx, data)
	return err
}

func (s *Store) UpdateProfile(ctx context.Context, username string, p user.Profile) error {
	_, err := s.userRef(username).Update(ctx, []firestore.Update{
		{Path: "agent_persona", Value: p.AgentPersona},
		{Path: "agent_goal", Value: p.AgentGoal},
		{Path: "special_instructions", Value: p.SpecialInstructions},
		{Path: "user_display_name", Value: p.UserDisplayName},
		{Path: "last_updated_at", Value: firestore.ServerTimestamp},
	})
	if isNotFound(err) {
		return storage.ErrNotFound
	}
	return err
}

func (s *Store) EnsureProfile(ctx context.Context, username string) (user.Profile, error) {
	u, err := s.GetUser(ctx, username)
	if err == nil {
		return u.Profile, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return user.Profile{}, err
	}

	profile := user.DefaultProfile(username)
	data := profileFields(profile)
	data["created_at"] = firestore.ServerTimestamp
	if _, err := s.userRef(username).Set(ctx, data, firestore.MergeAll); err != nil {
		return user.Profile{}, err
	}
	return profile, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]user.User, error) {
	snaps, err := s.client.Collection(usersCollection).Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}
	out := make([]user.User, 0, len(snaps))
	for _, snap := range snaps {
		var doc userDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode user %s: %w", snap.Ref.ID, err)
		}
		out = append(out, doc.toUser(snap.Ref.ID))
	}
	return out, nil
}

func (s *Store) AppendMessage(ctx context.Context, msg conversation.Message) (conversation.Message, error) {
	ref, res, err := s.messagesRef(msg.Username).Add(ctx, map[string]interface{}{
		"user":         msg.Username,
		"user_message": msg.UserMessage,
		"ai_response":  msg.AIResponse,
		"timestamp":    firestore.ServerTimestamp,
	})
	if err != nil {
		return conversation.Message{}, err
	}
	msg.ID = ref.ID
	msg.Timestamp = res.UpdateTime
	return msg, nil
}

func (s *Store) RecentMessages(ctx context.Context, username string, limit int) ([]conversation.Message, error) {
	snaps, err := s.messagesRef(username).
		OrderBy("timestamp", firestore.Desc).
		Limit(limit).
		Documents(ctx).
		GetAll()
	if err != nil {
		return nil, err
	}

	out := make([]conversation.Message, len(snaps))
	for i, snap := range snaps {
		var doc messageDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode message %s: %w", snap.Ref.ID, err)
		}
		// newest first from the query; fill from the back so the result is oldest first
		out[len(snaps)-1-i] = conversation.Message{
			ID:          snap.Ref.ID,
			Username:    username,
			UserMessage: doc.UserMessage,
			AIResponse:  doc.AIResponse,
			Timestamp:   doc.Timestamp,
		}
	}
	return out, nil
}

func (s *Store) ClearMessages(ctx context.Context, username string) (int, error) {
	col := s.messagesRef(username)
	deleted := 0
	for {
		snaps, err := col.Limit(storage.ClearBatchSize).Documents(ctx).GetAll()
		if err != nil {
			return deleted, err
		}
		if len(snaps) == 0 {
			return deleted, nil
		}

		bw := s.client.BulkWriter(ctx)
		jobs := make([]*firestore.BulkWriterJob, 0, len(snaps))
		for _, snap := range snaps {
			job, err := bw.Delete(snap.Ref)
			if err != nil {
				bw.End()
				return deleted, err
			}
			jobs = append(jobs, job)
		}
		bw.End()

		for _, job := range jobs {
			if _, err := job.Results(); err != nil {
				return deleted, err
			}
			deleted++
		}
		if len(snaps) < storage.ClearBatchSize {
			return deleted, nil
		}
	}
}

func (s *Store) Ping(ctx context.Context) error {
	_, err := s.client.Collection(usersCollection).Limit(1).Documents(ctx).Next()
	if err == iterator.Done {
		return nil
	}
	return err
}

func (s *Store) Close() error {
	return s.client.Close()
}

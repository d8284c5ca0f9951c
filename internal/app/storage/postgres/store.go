package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/alfredchat/alfred/internal/app/domain/conversation"
	"github.com/alfredchat/alfred/internal/app/domain/user"
	"github.com/alfredchat/alfred/internal/app/storage"
	"github.com/alfredchat/alfred/internal/config"
	"github.com/alfredchat/alfred/internal/platform/migrations"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sqlx.DB
}

var _ storage.Store = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Open connects to PostgreSQL, verifies the connection and applies migrations.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database dsn not configured")
	}

	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if err := migrations.Apply(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return New(db), nil
}

type userRow struct {
	Username       string `db:"username"`
	HashedPassword string `db:"hashed_password"`
	user.Profile
	CreatedAt     time.Time `db:"created_at"`
	LastUpdatedAt time.Time `db:"last_updated_at"`
}

func (r userRow) toUser() user.User {
	return user.User{
		Username:       r.Username,
		HashedPassword: r.HashedPassword,
		Profile:        r.Profile,
		CreatedAt:      r.CreatedAt,
		LastUpdatedAt:  r.LastUpdatedAt,
	}
}

const userColumns = `username, hashed_password, agent_persona, agent_goal, special_instructions,
	user_display_name, created_at, last_updated_at`

// --- UserStore ----------------------------------------------------------------

func (s *Store) GetUser(ctx context.Context, username string) (user.User, error) {
	var row userRow
	err := s.db.GetContext(ctx, &row, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
	if errors.Is(err, sql.ErrNoRows) {
		return user.User{}, storage.ErrNotFound
	}
	if err != nil {
		return user.User{}, err
	}
	return row.toUser(), nil
}

func (s *Store) SaveUser(ctx context.Context, u user.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, hashed_password, agent_persona, agent_goal,
			special_instructions, user_display_name, created_at, last_updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		ON CONFLICT (username) DO UPDATE SET
			hashed_password = EXCLUDED.hashed_password,
			agent_persona = EXCLUDED.agent_persona,
			agent_goal = EXCLUDED.agent_goal,
			special_instructions = EXCLUDED.special_instructions,
			user_display_name = EXCLUDED.user_display_name,
			last_updated_at = now()
	`, u.Username, u.HashedPassword, u.Profile.AgentPersona, u.Profile.AgentGoal,
		u.Profile.SpecialInstructions, u.Profile.UserDisplayName)
	return err
}

func (s *Store) UpdateProfile(ctx context.Context, username string, p user.Profile) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET agent_persona = $1, agent_goal = $2, special_instructions = $3,
			user_display_name = $4, last_updated_at = now()
		WHERE username = $5
	`, p.AgentPersona, p.AgentGoal, p.SpecialInstructions, p.UserDisplayName, username)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) EnsureProfile(ctx context.Context, username string) (user.Profile, error) {
	def := user.DefaultProfile(username)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, agent_persona, agent_goal, special_instructions, user_display_name)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (username) DO NOTHING
	`, username, def.AgentPersona, def.AgentGoal, def.SpecialInstructions, def.UserDisplayName)
	if err != nil {
		return user.Profile{}, err
	}

	var p user.Profile
	err = s.db.GetContext(ctx, &p, `
		SELECT agent_persona, agent_goal, special_instructions, user_display_name
		FROM users WHERE username = $1
	`, username)
	if err != nil {
		return user.Profile{}, err
	}
	return p, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]user.User, error) {
	var rows []userRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+userColumns+` FROM users ORDER BY username`); err != nil {
		return nil, err
	}
	out := make([]user.User, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toUser())
	}
	return out, nil
}

// --- MessageStore -------------------------------------------------------------

func (s *Store) AppendMessage(ctx context.Context, msg conversation.Message) (conversation.Message, error) {
	msg.ID = uuid.NewString()
	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO messages (id, username, user_message, ai_response)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, msg.ID, msg.Username, msg.UserMessage, msg.AIResponse).Scan(&msg.Timestamp)
	if err != nil {
		return conversation.Message{}, err
	}
	return msg, nil
}

func (s *Store) RecentMessages(ctx context.Context, username string, limit int) ([]conversation.Message, error) {
	var msgs []conversation.Message
	err := s.db.SelectContext(ctx, &msgs, `
		SELECT id, username, user_message, ai_response, created_at
		FROM messages
		WHERE username = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, username, limit)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (s *Store) ClearMessages(ctx context.Context, username string) (int, error) {
	deleted := 0
	for {
		res, err := s.db.ExecContext(ctx, `
			DELETE FROM messages
			WHERE id IN (SELECT id FROM messages WHERE username = $1 LIMIT $2)
		`, username, storage.ClearBatchSize)
		if err != nil {
			return deleted, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return deleted, err
		}
		deleted += int(n)
		if n < storage.ClearBatchSize {
			return deleted, nil
		}
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

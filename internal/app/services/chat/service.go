// Package chat implements the assistant's account, settings and conversation operations.
package chat

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alfredchat/alfred/internal/app/auth"
	"github.com/alfredchat/alfred/internal/app/domain/conversation"
	"github.com/alfredchat/alfred/internal/app/domain/user"
	"github.com/alfredchat/alfred/internal/app/metrics"
	"github.com/alfredchat/alfred/internal/app/storage"
	"github.com/alfredchat/alfred/internal/config"
	"github.com/alfredchat/alfred/pkg/logger"
)

var (
	// ErrInvalidCredentials covers unknown users, users without a password and wrong passwords alike.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrUnauthorizedUsername is returned when creating a user outside the allow-list.
	ErrUnauthorizedUsername = errors.New("unauthorized username")
	// ErrAIUnavailable is returned when the language model client was never configured.
	ErrAIUnavailable = errors.New("AI service not available")
	// ErrNoSpeech is returned when the recognizer produced no transcript.
	ErrNoSpeech = conversation.ErrNoSpeech
	// ErrMissingFields is returned when a username or password is empty.
	ErrMissingFields = errors.New("username and password are required")
)

// Stage names reported when an audio exchange fails part way.
const (
	StageSpeechToText = "Speech-to-Text"
	StageChat         = "AI chat"
	StageTextToSpeech = "Text-to-Speech"
)

// StageError tells which step of an audio exchange failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Generator produces a model reply for a conversation.
type Generator interface {
	Generate(ctx context.Context, systemInstruction string, turns []conversation.Turn) (string, error)
}

// Transcriber turns recorded audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// Synthesizer turns text into MP3 audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// AudioReply is the result of a spoken exchange.
type AudioReply struct {
	UserTranscript  string `json:"user_transcript"`
	AIResponseText  string `json:"ai_response_text"`
	AIResponseAudio string `json:"ai_response_audio"`
}

// Dependencies wires the service. Providers are left nil (untyped) when unavailable.
type Dependencies struct {
	Store       storage.Store
	Access      *config.AccessPolicy
	Generator   Generator
	Transcriber Transcriber
	Synthesizer Synthesizer
	Location    *time.Location
	Logger      *logger.Logger
}

// Service coordinates storage and the AI providers.
type Service struct {
	store       storage.Store
	access      *config.AccessPolicy
	generator   Generator
	transcriber Transcriber
	synthesizer Synthesizer
	loc         *time.Location
	log         *logger.Logger
}

// New constructs a chat service.
func New(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = logger.NewDefault("chat")
	}
	if deps.Access == nil {
		deps.Access = config.DefaultAccessPolicy()
	}
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	return &Service{
		store:       deps.Store,
		access:      deps.Access,
		generator:   deps.Generator,
		transcriber: deps.Transcriber,
		synthesizer: deps.Synthesizer,
		loc:         deps.Location,
		log:         deps.Logger,
	}
}

// AIAvailable reports whether text chat can be served.
func (s *Service) AIAvailable() bool {
	return s.generator != nil
}

// Authenticate checks a username and password and returns the session identity to issue.
func (s *Service) Authenticate(ctx context.Context, username, password string) (auth.Identity, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return auth.Identity{}, ErrInvalidCredentials
	}

	u, err := s.store.GetUser(ctx, username)
	if errors.Is(err, storage.ErrNotFound) {
		s.log.WithContext(ctx).WithField("username", username).Warn("Failed login attempt: user not found")
		return auth.Identity{}, ErrInvalidCredentials
	}
	if err != nil {
		return auth.Identity{}, fmt.Errorf("load user: %w", err)
	}
	if !u.HasPassword() {
		s.log.WithContext(ctx).WithField("username", username).Warn("Failed login attempt: no password set")
		return auth.Identity{}, ErrInvalidCredentials
	}
	if !auth.CheckPassword(u.HashedPassword, password) {
		s.log.WithContext(ctx).WithField("username", username).Warn("Failed login attempt: invalid password")
		return auth.Identity{}, ErrInvalidCredentials
	}

	s.log.WithContext(ctx).WithField("username", username).Info("User logged in")
	return auth.Identity{Username: username, IsAdmin: s.access.IsAdmin(username)}, nil
}

// CreateOrUpdateUser sets the password for an allow-listed username. A new
// user starts from the default profile, an existing one keeps its stored
// profile, and the non-empty fields of a non-nil profile are merged on top.
func (s *Service) CreateOrUpdateUser(ctx context.Context, username, password string, profile *user.Profile) error {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return ErrMissingFields
	}
	if !s.access.IsAllowed(username) {
		s.log.LogSecurityEvent(ctx, "unauthorized_user_creation", map[string]interface{}{"username": username})
		return ErrUnauthorizedUsername
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	u, err := s.store.GetUser(ctx, username)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		u = user.User{Username: username, Profile: user.DefaultProfile(username)}
	case err != nil:
		return fmt.Errorf("load user: %w", err)
	}

	if profile != nil {
		u.Profile = overlayProfile(u.Profile, *profile)
	}
	u.HashedPassword = hash

	if err := s.store.SaveUser(ctx, u); err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	s.log.WithContext(ctx).WithField("username", username).Info("User created/updated")
	return nil
}

// Chat sends input with the user's recent history to the model and stores the exchange.
func (s *Service) Chat(ctx context.Context, username, input string) (reply string, err error) {
	defer func() { metrics.RecordChatExchange("text", err) }()

	if s.generator == nil {
		s.log.WithContext(ctx).Error("Gemini client is not initialized")
		return "", ErrAIUnavailable
	}

	profile, err := s.store.EnsureProfile(ctx, username)
	if err != nil {
		return "", fmt.Errorf("load profile: %w", err)
	}
	history, err := s.store.RecentMessages(ctx, username, conversation.HistoryLimit)
	if err != nil {
		return "", fmt.Errorf("load history: %w", err)
	}

	reply, err = s.generate(ctx, conversation.SystemInstruction(profile, username), conversation.Build(history, input))
	if err != nil {
		s.log.WithContext(ctx).WithError(err).Error("Gemini call failed")
		return "", err
	}

	if err := s.save(ctx, username, input, reply); err != nil {
		return "", err
	}
	s.log.WithContext(ctx).Info("Chat message processed and saved")
	return reply, nil
}

// TranscribeAndChat runs a spoken exchange: transcription, a reply to the
// transcript alone, storage of the exchange and speech synthesis of the reply.
func (s *Service) TranscribeAndChat(ctx context.Context, username string, audio []byte) (out AudioReply, err error) {
	defer func() { metrics.RecordChatExchange("audio", err) }()

	if s.transcriber == nil {
		return AudioReply{}, &StageError{Stage: StageSpeechToText, Err: ErrAIUnavailable}
	}
	start := time.Now()
	transcript, err := s.transcriber.Transcribe(ctx, audio)
	metrics.RecordProviderCall("speech", time.Since(start), err == nil)
	if err != nil {
		if errors.Is(err, ErrNoSpeech) {
			return AudioReply{}, ErrNoSpeech
		}
		s.log.WithContext(ctx).WithError(err).Error("Speech-to-Text failed")
		return AudioReply{}, &StageError{Stage: StageSpeechToText, Err: err}
	}
	if strings.TrimSpace(transcript) == "" {
		return AudioReply{}, ErrNoSpeech
	}
	s.log.WithContext(ctx).WithField("transcript", transcript).Info("Transcribed audio")

	if s.generator == nil {
		return AudioReply{}, &StageError{Stage: StageChat, Err: ErrAIUnavailable}
	}
	profile, err := s.store.EnsureProfile(ctx, username)
	if err != nil {
		return AudioReply{}, &StageError{Stage: StageChat, Err: err}
	}
	turns := []conversation.Turn{{Role: conversation.RoleUser, Text: transcript}}
	reply, err := s.generate(ctx, conversation.SystemInstruction(profile, username), turns)
	if err != nil {
		s.log.WithContext(ctx).WithError(err).Error("Gemini call failed")
		return AudioReply{}, &StageError{Stage: StageChat, Err: err}
	}
	if err := s.save(ctx, username, transcript, reply); err != nil {
		return AudioReply{}, &StageError{Stage: StageChat, Err: err}
	}

	if s.synthesizer == nil {
		return AudioReply{}, &StageError{Stage: StageTextToSpeech, Err: ErrAIUnavailable}
	}
	start = time.Now()
	speech, err := s.synthesizer.Synthesize(ctx, reply)
	metrics.RecordProviderCall("voice", time.Since(start), err == nil)
	if err != nil {
		s.log.WithContext(ctx).WithError(err).Error("Text-to-Speech failed")
		return AudioReply{}, &StageError{Stage: StageTextToSpeech, Err: err}
	}

	return AudioReply{
		UserTranscript:  transcript,
		AIResponseText:  reply,
		AIResponseAudio: base64.StdEncoding.EncodeToString(speech),
	}, nil
}

// History returns the user's most recent exchanges formatted for display, oldest first.
func (s *Service) History(ctx context.Context, username string) ([]conversation.Entry, error) {
	msgs, err := s.store.RecentMessages(ctx, username, conversation.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	entries := make([]conversation.Entry, 0, len(msgs))
	for _, m := range msgs {
		entries = append(entries, conversation.Format(m, s.loc))
	}
	return entries, nil
}

// ClearHistory deletes every stored exchange of the user.
func (s *Service) ClearHistory(ctx context.Context, username string) (int, error) {
	n, err := s.store.ClearMessages(ctx, username)
	if err != nil {
		return n, fmt.Errorf("clear history: %w", err)
	}
	s.log.WithContext(ctx).WithField("deleted", n).Info("Cleared chat history")
	return n, nil
}

// Settings returns the user's profile, creating the default one on first use.
func (s *Service) Settings(ctx context.Context, username string) (user.Profile, error) {
	p, err := s.store.EnsureProfile(ctx, username)
	if err != nil {
		return user.Profile{}, fmt.Errorf("load profile: %w", err)
	}
	return p, nil
}

// UpdateSettings replaces the four profile fields with trimmed values and returns the stored result.
func (s *Service) UpdateSettings(ctx context.Context, username string, p user.Profile) (user.Profile, error) {
	if err := s.store.UpdateProfile(ctx, username, p.Trimmed()); err != nil {
		return user.Profile{}, fmt.Errorf("update profile: %w", err)
	}
	s.log.WithContext(ctx).Info("User updated settings")
	return s.Settings(ctx, username)
}

// Users lists accounts without their password hashes.
func (s *Service) Users(ctx context.Context) ([]user.User, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	for i := range users {
		users[i] = users[i].Public()
	}
	return users, nil
}

// AllowedUsernames exposes the allow-list for the admin page.
func (s *Service) AllowedUsernames() []string {
	return append([]string(nil), s.access.AllowedUsernames...)
}

// Ping checks the store.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) generate(ctx context.Context, instruction string, turns []conversation.Turn) (string, error) {
	start := time.Now()
	reply, err := s.generator.Generate(ctx, instruction, turns)
	metrics.RecordProviderCall("gemini", time.Since(start), err == nil)
	return reply, err
}

func (s *Service) save(ctx context.Context, username, input, reply string) error {
	_, err := s.store.AppendMessage(ctx, conversation.Message{
		Username:    username,
		UserMessage: input,
		AIResponse:  reply,
	})
	if err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	return nil
}

// overlayProfile copies the non-empty fields of update onto p.
func overlayProfile(p, update user.Profile) user.Profile {
	if update.AgentPersona != "" {
		p.AgentPersona = update.AgentPersona
	}
	if update.AgentGoal != "" {
		p.AgentGoal = update.AgentGoal
	}
	if update.SpecialInstructions != "" {
		p.SpecialInstructions = update.SpecialInstructions
	}
	if update.UserDisplayName != "" {
		p.UserDisplayName = update.UserDisplayName
	}
	return p
}

// Package conversation holds chat exchanges and the prompt assembly built from them.
package conversation

import (
	"errors"
	"strings"
	"time"

	"github.com/alfredchat/alfred/internal/app/domain/user"
)

// AgentName is the name the assistant introduces itself with.
const AgentName = "Alfred"

// ErrNoSpeech means recorded audio contained nothing that could be transcribed.
var ErrNoSpeech = errors.New("could not understand audio")

// HistoryLimit is how many past exchanges are shown and sent as context.
const HistoryLimit = 10

const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Message is one stored exchange between a user and the assistant.
type Message struct {
	ID          string    `json:"id" db:"id"`
	Username    string    `json:"user" db:"username"`
	UserMessage string    `json:"user_message" db:"user_message"`
	AIResponse  string    `json:"ai_response" db:"ai_response"`
	Timestamp   time.Time `json:"timestamp" db:"created_at"`
}

// Turn is one side of a conversation sent to the language model.
type Turn struct {
	Role string
	Text string
}

// SystemInstruction builds the model's system prompt from the user's profile.
// Empty parts are skipped and the rest joined with single spaces. Defaults
// belong to new profiles; a persona or goal the user cleared stays cleared.
func SystemInstruction(profile user.Profile, username string) string {
	displayName := profile.UserDisplayName
	if displayName == "" {
		displayName = username
	}

	parts := []string{
		strings.TrimSpace(profile.AgentPersona),
		"Your name is " + AgentName + ".",
		strings.TrimSpace(profile.AgentGoal),
		strings.TrimSpace(profile.SpecialInstructions),
		"The user you are interacting with is named " + displayName + ".",
	}

	kept := parts[:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.TrimSpace(strings.Join(kept, " "))
}

// Build turns stored history (oldest first) plus the new input into model turns.
func Build(history []Message, input string) []Turn {
	turns := make([]Turn, 0, len(history)*2+1)
	for _, m := range history {
		if m.UserMessage != "" {
			turns = append(turns, Turn{Role: RoleUser, Text: m.UserMessage})
		}
		if m.AIResponse != "" {
			turns = append(turns, Turn{Role: RoleModel, Text: m.AIResponse})
		}
	}
	return append(turns, Turn{Role: RoleUser, Text: input})
}

// Entry is a history item prepared for display.
type Entry struct {
	UserMessage string `json:"user_message"`
	AIResponse  string `json:"ai_response"`
	Timestamp   string `json:"timestamp"`
}

// DisplayLayout renders timestamps like "Mar 04, 09:15 PM".
const DisplayLayout = "Jan 02, 03:04 PM"

// Format converts a message for display in loc. A zero timestamp renders empty.
func Format(m Message, loc *time.Location) Entry {
	var ts string
	if !m.Timestamp.IsZero() {
		ts = m.Timestamp.In(loc).Format(DisplayLayout)
	}
	return Entry{UserMessage: m.UserMessage, AIResponse: m.AIResponse, Timestamp: ts}
}

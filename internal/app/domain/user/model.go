package user

import (
	"strings"
	"time"
)

const (
	DefaultPersona = "You are a helpful and friendly AI assistant."
	DefaultGoal    = "Answer questions and engage in natural conversation."
)

// Profile configures how the assistant behaves for one user.
type Profile struct {
	AgentPersona        string `json:"agent_persona" db:"agent_persona" firestore:"agent_persona"`
	AgentGoal           string `json:"agent_goal" db:"agent_goal" firestore:"agent_goal"`
	SpecialInstructions string `json:"special_instructions" db:"special_instructions" firestore:"special_instructions"`
	UserDisplayName     string `json:"user_display_name" db:"user_display_name" firestore:"user_display_name"`
}

// DefaultProfile returns the profile assigned to a user who never saved settings.
func DefaultProfile(username string) Profile {
	return Profile{
		AgentPersona:    DefaultPersona,
		AgentGoal:       DefaultGoal,
		UserDisplayName: username,
	}
}

// Trimmed returns a copy with surrounding whitespace removed from every field.
func (p Profile) Trimmed() Profile {
	return Profile{
		AgentPersona:        strings.TrimSpace(p.AgentPersona),
		AgentGoal:           strings.TrimSpace(p.AgentGoal),
		SpecialInstructions: strings.TrimSpace(p.SpecialInstructions),
		UserDisplayName:     strings.TrimSpace(p.UserDisplayName),
	}
}

// User is an account that can log in. HashedPassword is a bcrypt hash and is
// never rendered or returned by the HTTP layer.
type User struct {
	Username       string
	HashedPassword string
	Profile        Profile
	CreatedAt      time.Time
	LastUpdatedAt  time.Time
}

// HasPassword reports whether the user can log in at all.
func (u User) HasPassword() bool {
	return u.HashedPassword != ""
}

// Public returns a copy without the password hash.
func (u User) Public() User {
	u.HashedPassword = ""
	return u
}

package conversation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alfredchat/alfred/internal/app/domain/user"
)

func TestSystemInstruction_Defaults(t *testing.T) {
	got := SystemInstruction(user.DefaultProfile("bruce"), "bruce")
	want := "You are a helpful and friendly AI assistant. Your name is Alfred. " +
		"Answer questions and engage in natural conversation. " +
		"The user you are interacting with is named bruce."
	assert.Equal(t, want, got)
}

func TestSystemInstruction_SpecialInstructionsAndDisplayName(t *testing.T) {
	p := user.Profile{
		AgentPersona:        "You are a discreet butler.",
		AgentGoal:           "Keep the manor running.",
		SpecialInstructions: "Never mention the cave.",
		UserDisplayName:     "Master Wayne",
	}
	got := SystemInstruction(p, "bruce")
	assert.Equal(t, "You are a discreet butler. Your name is Alfred. Keep the manor running. "+
		"Never mention the cave. The user you are interacting with is named Master Wayne.", got)
}

func TestSystemInstruction_EmptyDisplayNameFallsBackToUsername(t *testing.T) {
	got := SystemInstruction(user.Profile{}, "dick")
	assert.Equal(t, "Your name is Alfred. The user you are interacting with is named dick.", got)
}

func TestSystemInstruction_ClearedPersonaAndGoal(t *testing.T) {
	got := SystemInstruction(user.Profile{AgentPersona: "", AgentGoal: "", UserDisplayName: "Bruce"}, "bruce")
	assert.NotContains(t, got, user.DefaultPersona)
	assert.NotContains(t, got, user.DefaultGoal)
	assert.Equal(t, "Your name is Alfred. The user you are interacting with is named Bruce.", got)
}

func TestBuild(t *testing.T) {
	history := []Message{
		{UserMessage: "hi", AIResponse: "hello"},
		{UserMessage: "", AIResponse: "orphan reply"},
		{UserMessage: "unanswered", AIResponse: ""},
	}

	turns := Build(history, "latest")
	require.Len(t, turns, 5)
	assert.Equal(t, Turn{Role: RoleUser, Text: "hi"}, turns[0])
	assert.Equal(t, Turn{Role: RoleModel, Text: "hello"}, turns[1])
	assert.Equal(t, Turn{Role: RoleModel, Text: "orphan reply"}, turns[2])
	assert.Equal(t, Turn{Role: RoleUser, Text: "unanswered"}, turns[3])
	assert.Equal(t, Turn{Role: RoleUser, Text: "latest"}, turns[4])
}

func TestBuild_NoHistory(t *testing.T) {
	turns := Build(nil, "only")
	assert.Equal(t, []Turn{{Role: RoleUser, Text: "only"}}, turns)
}

func TestFormat(t *testing.T) {
	loc, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)

	m := Message{
		UserMessage: "q",
		AIResponse:  "a",
		Timestamp:   time.Date(2025, time.March, 5, 4, 15, 0, 0, time.UTC),
	}
	entry := Format(m, loc)
	assert.Equal(t, "Mar 04, 08:15 PM", entry.Timestamp)
	assert.Equal(t, "q", entry.UserMessage)

	assert.Empty(t, Format(Message{}, loc).Timestamp)
}

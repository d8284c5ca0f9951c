package user

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultProfile(t *testing.T) {
	p := DefaultProfile("bruce")
	assert.Equal(t, DefaultPersona, p.AgentPersona)
	assert.Equal(t, DefaultGoal, p.AgentGoal)
	assert.Empty(t, p.SpecialInstructions)
	assert.Equal(t, "bruce", p.UserDisplayName)
}

func TestProfileTrimmed(t *testing.T) {
	p := Profile{AgentPersona: "  butler ", AgentGoal: "\tserve\n", UserDisplayName: " Master Wayne "}.Trimmed()
	assert.Equal(t, "butler", p.AgentPersona)
	assert.Equal(t, "serve", p.AgentGoal)
	assert.Equal(t, "Master Wayne", p.UserDisplayName)
}

func TestUserPublic(t *testing.T) {
	u := User{Username: "bruce", HashedPassword: "$2a$10$hash"}
	assert.True(t, u.HasPassword())

	pub := u.Public()
	assert.False(t, pub.HasPassword())
	assert.Equal(t, "$2a$10$hash", u.HashedPassword)
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePolicy(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "access.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAccessPolicy(t *testing.T) {
	path := writePolicy(t, `
allowed_usernames: [bruce, " dick ", bruce, ""]
admin_usernames: [bruce]
`)

	policy, err := LoadAccessPolicy(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"bruce", "dick"}, policy.AllowedUsernames)
	assert.True(t, policy.IsAllowed("dick"))
	assert.False(t, policy.IsAllowed("joker"))
	assert.True(t, policy.IsAdmin("bruce"))
	assert.False(t, policy.IsAdmin("dick"))
}

func TestLoadAccessPolicy_AdminMustBeAllowed(t *testing.T) {
	path := writePolicy(t, "allowed_usernames: [bruce]\nadmin_usernames: [alfred]\n")

	_, err := LoadAccessPolicy(path)
	assert.Error(t, err)
}

func TestLoadAccessPolicyOrDefault(t *testing.T) {
	policy := LoadAccessPolicyOrDefault(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Equal(t, DefaultAccessPolicy(), policy)
	assert.True(t, policy.IsAdmin("admin"))

	bad := writePolicy(t, "allowed_usernames: {")
	assert.Equal(t, DefaultAccessPolicy(), LoadAccessPolicyOrDefault(bad))
}

func TestRepositoryAccessPolicyParses(t *testing.T) {
	policy, err := LoadAccessPolicy(filepath.Join("..", "..", "config", "access.yaml"))
	require.NoError(t, err)
	assert.NotEmpty(t, policy.AdminUsernames)
}

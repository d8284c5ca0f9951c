package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// AccessPolicy lists who may hold an account and who administers them.
type AccessPolicy struct {
	AllowedUsernames []string `yaml:"allowed_usernames"`
	AdminUsernames   []string `yaml:"admin_usernames"`
}

// LoadAccessPolicy reads the access policy from a YAML file.
func LoadAccessPolicy(path string) (*AccessPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read access policy: %w", err)
	}

	var policy AccessPolicy
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return nil, fmt.Errorf("failed to parse access policy: %w", err)
	}

	policy.AllowedUsernames = normalize(policy.AllowedUsernames)
	policy.AdminUsernames = normalize(policy.AdminUsernames)
	for _, admin := range policy.AdminUsernames {
		if !policy.IsAllowed(admin) {
			return nil, fmt.Errorf("admin %q is not in allowed_usernames", admin)
		}
	}

	return &policy, nil
}

// LoadAccessPolicyOrDefault loads the policy or returns DefaultAccessPolicy if the file is unusable.
func LoadAccessPolicyOrDefault(path string) *AccessPolicy {
	policy, err := LoadAccessPolicy(path)
	if err != nil {
		return DefaultAccessPolicy()
	}
	return policy
}

// DefaultAccessPolicy allows and administers only the "admin" account.
func DefaultAccessPolicy() *AccessPolicy {
	return &AccessPolicy{
		AllowedUsernames: []string{"admin"},
		AdminUsernames:   []string{"admin"},
	}
}

// IsAllowed reports whether username may be created or updated.
func (p *AccessPolicy) IsAllowed(username string) bool {
	return contains(p.AllowedUsernames, username)
}

// IsAdmin reports whether username has admin rights.
func (p *AccessPolicy) IsAdmin(username string) bool {
	return contains(p.AdminUsernames, username)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func normalize(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

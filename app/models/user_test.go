package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateUserHashesPassword(t *testing.T) {
	user, err := CreateUser("testuser", "test@example.com", "secret123")
	require.NoError(t, err)

	assert.Equal(t, ROLE_USER, user.Role)
	assert.Equal(t, STATUS_ACTIVE, user.Status)
	assert.NotEqual(t, "secret123", user.Password)
	assert.True(t, user.CheckPassword("secret123"))
	assert.False(t, user.CheckPassword("wrong"))
}

func TestIssueAPIKey(t *testing.T) {
	user := &User{Name: "testuser", Email: "test@example.com"}

	rawKey, err := user.IssueAPIKey()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(rawKey, "ldk_"))
	assert.Equal(t, HashAPIKey(rawKey), user.APIKeyHash)
	assert.Equal(t, rawKey[:16], user.APIKeyPrefix)
	assert.NotNil(t, user.APIKeyCreatedAt)
	assert.Nil(t, user.APIKeyRevokedAt)
	assert.True(t, user.HasActiveAPIKey())

	// Reissuing replaces the stored hash.
	second, err := user.IssueAPIKey()
	require.NoError(t, err)
	assert.NotEqual(t, rawKey, second)
	assert.Equal(t, HashAPIKey(second), user.APIKeyHash)
}

func TestRevokeAPIKey(t *testing.T) {
	user := &User{Name: "testuser", Email: "test@example.com"}
	_, err := user.IssueAPIKey()
	require.NoError(t, err)

	user.RevokeAPIKey()
	assert.Empty(t, user.APIKeyHash)
	assert.Empty(t, user.APIKeyPrefix)
	assert.NotNil(t, user.APIKeyRevokedAt)
	assert.False(t, user.HasActiveAPIKey())
}

func TestHashAPIKeyIsStable(t *testing.T) {
	assert.Equal(t, HashAPIKey("ldk_abc"), HashAPIKey("  ldk_abc  "))
	assert.NotEqual(t, HashAPIKey("ldk_abc"), HashAPIKey("ldk_abd"))
	assert.Len(t, HashAPIKey("ldk_abc"), 64)
}

package passwordutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashAndCheck(t *testing.T) {
	SetCost(bcrypt.MinCost)
	defer SetCost(DefaultCost)

	for _, password := range []string{"secret1", "", "pässwörd", "a much longer passphrase with spaces"} {
		hash, err := GeneratePasswordHash(password)
		require.NoError(t, err)
		assert.NotEqual(t, password, hash)
		assert.True(t, CheckPasswordHash(password, hash))
		assert.False(t, CheckPasswordHash(password+"x", hash))
	}
}

func TestHashIsSalted(t *testing.T) {
	SetCost(bcrypt.MinCost)
	defer SetCost(DefaultCost)

	a, err := GeneratePasswordHash("secret1")
	require.NoError(t, err)
	b, err := GeneratePasswordHash("secret1")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestCostChangeKeepsOldHashes(t *testing.T) {
	SetCost(bcrypt.MinCost)
	defer SetCost(DefaultCost)

	old, err := GeneratePasswordHash("secret1")
	require.NoError(t, err)

	SetCost(bcrypt.MinCost + 1)
	assert.True(t, CheckPasswordHash("secret1", old))

	c, err := bcrypt.Cost([]byte(old))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost, c)
}

func TestMalformedHashNeverMatches(t *testing.T) {
	for _, hash := range []string{"", Sentinel, "oauth_user", "$2a$10$short"} {
		assert.False(t, CheckPasswordHash("oauth_user", hash), hash)
		assert.False(t, CheckPasswordHash("", hash), hash)
	}
}

func TestSetCostOutOfRange(t *testing.T) {
	defer SetCost(DefaultCost)

	SetCost(bcrypt.MaxCost + 1)
	assert.Equal(t, DefaultCost, cost)
	SetCost(1)
	assert.Equal(t, DefaultCost, cost)
}

func TestCheckDummyPasswordHash(t *testing.T) {
	SetCost(bcrypt.MinCost)
	defer SetCost(DefaultCost)

	for _, password := range []string{"", "secret1", "!no-such-account"} {
		assert.False(t, CheckDummyPasswordHash(password), password)
	}

	c, err := bcrypt.Cost(dummyHash())
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost, c)

	SetCost(bcrypt.MinCost + 1)
	c, err = bcrypt.Cost(dummyHash())
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost+1, c, "dummy digest follows the configured cost")
}

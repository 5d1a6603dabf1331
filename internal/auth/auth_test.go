package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStaticProviderParsesSpec(t *testing.T) {
	p, err := NewStaticProvider("alice:token-a, bob:token-b,")
	require.NoError(t, err)
	assert.Equal(t, 2, p.UserCount())
}

func TestNewStaticProviderRejectsBadEntries(t *testing.T) {
	for _, spec := range []string{"alice", "alice:", ":token", "alice:token,broken"} {
		_, err := NewStaticProvider(spec)
		assert.Error(t, err, "spec %q", spec)
	}
}

func TestAuthenticate(t *testing.T) {
	p, err := NewStaticProvider("alice:token-a,bob:token-b")
	require.NoError(t, err)

	user, err := p.Authenticate("token-b")
	require.NoError(t, err)
	assert.Equal(t, "bob", user.ID)
	assert.True(t, user.CanWrite())

	_, err = p.Authenticate("wrong")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = p.Authenticate("  ")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestGuestCannotWrite(t *testing.T) {
	g := Guest()
	assert.True(t, g.Anonymous)
	assert.False(t, g.CanWrite())
	assert.False(t, User{}.CanWrite())
}

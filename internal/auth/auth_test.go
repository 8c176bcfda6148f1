package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSigningKey = []byte("test-signing-key")

func TestVerify(t *testing.T) {
	a := NewJWTAuthenticator(testSigningKey)

	token, err := a.Issue(Identity{UserId: "c0a80101-0000-0000-0000-000000000001"}, time.Hour)
	require.NoError(t, err, "expected token to be issued")

	identity, err := a.Verify(token)
	require.NoError(t, err, "expected token to verify")
	assert.Equal(t, "c0a80101-0000-0000-0000-000000000001", identity.UserId)
}

func TestVerify_expiredToken(t *testing.T) {
	a := NewJWTAuthenticator(testSigningKey)

	token, err := a.Issue(Identity{UserId: "user-1"}, -time.Minute)
	require.NoError(t, err)

	_, err = a.Verify(token)
	assert.Error(t, err, "expected expired token to be rejected")
}

func TestVerify_wrongKey(t *testing.T) {
	a := NewJWTAuthenticator(testSigningKey)
	other := NewJWTAuthenticator([]byte("some-other-key"))

	token, err := other.Issue(Identity{UserId: "user-1"}, time.Hour)
	require.NoError(t, err)

	_, err = a.Verify(token)
	assert.Error(t, err, "expected token signed with a different key to be rejected")
}

func TestVerify_garbage(t *testing.T) {
	a := NewJWTAuthenticator(testSigningKey)

	_, err := a.Verify("not-a-token")
	assert.Error(t, err)
}

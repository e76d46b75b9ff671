package cryptox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpen_RoundTrip(t *testing.T) {
	t.Parallel()

	salt, err := MakeSalt()
	require.NoError(t, err)
	require.Len(t, salt, SaltSize)

	s := NewSealer([]byte("passphrase"), salt)

	sealed, err := s.Seal([]byte("private key material"))
	require.NoError(t, err)
	assert.NotContains(t, sealed, "private key material")

	plain, err := s.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, []byte("private key material"), plain)
}

func TestOpen_WrongPassphrase(t *testing.T) {
	t.Parallel()

	salt, err := MakeSalt()
	require.NoError(t, err)

	sealed, err := NewSealer([]byte("right"), salt).Seal([]byte("secret"))
	require.NoError(t, err)

	_, err = NewSealer([]byte("wrong"), salt).Open(sealed)
	assert.Error(t, err)
}

func TestOpen_WrongSalt(t *testing.T) {
	t.Parallel()

	saltA, err := MakeSalt()
	require.NoError(t, err)
	saltB, err := MakeSalt()
	require.NoError(t, err)

	sealed, err := NewSealer([]byte("passphrase"), saltA).Seal([]byte("secret"))
	require.NoError(t, err)

	_, err = NewSealer([]byte("passphrase"), saltB).Open(sealed)
	assert.Error(t, err)
}

func TestOpen_Garbage(t *testing.T) {
	t.Parallel()

	salt, err := MakeSalt()
	require.NoError(t, err)
	s := NewSealer([]byte("passphrase"), salt)

	_, err = s.Open("not base64 at all!")
	assert.Error(t, err)

	_, err = s.Open("QQ==") // too short for a nonce
	assert.Error(t, err)
}

func TestWipeByteArray(t *testing.T) {
	t.Parallel()

	b := []byte("secret")
	WipeByteArray(b)
	assert.Equal(t, make([]byte, 6), b)
}

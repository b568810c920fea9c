package digest

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	Init(SHA1)
	m.Run()
}

func TestHashRoundTrip(t *testing.T) {
	h, err := FromHex("da39a3ee5e6b4b0d3255bfef95601890afd80709")
	require.NoError(t, err)
	require.Equal(t, "da39a3ee5e6b4b0d3255bfef95601890afd80709", h.String())
	require.False(t, h.IsZero())
}

func TestHashZero(t *testing.T) {
	require.True(t, Zero.IsZero())
	var h Hash
	require.True(t, h.IsZero())
}

func TestComputeMatchesGitBlobIdentity(t *testing.T) {
	// git hash-object for the literal bytes "hello\n" is this well-known SHA-1.
	h := Compute("blob", []byte("hello\n"))
	require.Equal(t, "ce013625030ba8dba906f756967f9e9ca394464a", h.String())
}

func TestFromBytesLengthChecked(t *testing.T) {
	_, err := FromBytes(SHA1, make([]byte, 19))
	require.Error(t, err)
	h, err := FromBytes(SHA1, make([]byte, 20))
	require.NoError(t, err)
	require.True(t, h.IsZero())
}

func TestAlgorithmSize(t *testing.T) {
	require.Equal(t, 20, SHA1.Size())
	require.Equal(t, 32, SHA256.Size())
}

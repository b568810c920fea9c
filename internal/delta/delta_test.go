package delta

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTripIdentical(t *testing.T) {
	old := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog. "), 50)
	res := Encode(old, old)
	require.Greater(t, res.Ratio(), 0.5)
	out, err := Decode(old, res.Bytes)
	require.NoError(t, err)
	require.Equal(t, old, out)
}

func TestRoundTripModified(t *testing.T) {
	old := bytes.Repeat([]byte("alpha beta gamma delta epsilon "), 30)
	new := append(append([]byte{}, old[:200]...), []byte("INSERTED TEXT HERE")...)
	new = append(new, old[200:]...)
	res := Encode(old, new)
	out, err := Decode(old, res.Bytes)
	require.NoError(t, err)
	require.Equal(t, new, out)
}

func TestRoundTripUnrelated(t *testing.T) {
	old := []byte("nothing in common with the target whatsoever")
	new := []byte("\x00\x01\x02 completely different binary-ish payload \x03\x04")
	res := Encode(old, new)
	out, err := Decode(old, res.Bytes)
	require.NoError(t, err)
	require.Equal(t, new, out)
	require.Zero(t, res.SameBytes)
}

func TestDecodeRejectsOutOfBoundsCopy(t *testing.T) {
	old := []byte("short")
	bad := putSizeVarint(nil, uint64(len(old)))
	bad = putSizeVarint(bad, 10)
	bad = encodeCopy(bad, 0, 10) // longer than old
	_, err := Decode(old, bad)
	require.Error(t, err)
}

func TestDecodeRejectsSizeMismatch(t *testing.T) {
	old := []byte("base")
	bad := putSizeVarint(nil, uint64(len(old)))
	bad = putSizeVarint(bad, 5)
	bad = encodeData(bad, []byte("ab"))
	_, err := Decode(old, bad)
	require.Error(t, err)
}

// TestEncodeSplitsMatchesLongerThanMaxCopyLength guards against the
// copy instruction's 3-byte length field silently truncating a match
// bigger than 0xFFFFFF, which would corrupt the reconstructed bytes
// instead of failing loudly.
func TestEncodeSplitsMatchesLongerThanMaxCopyLength(t *testing.T) {
	total := maxCopyLength + 5*blockSize
	old := bytes.Repeat([]byte{0x5A}, total)
	new := append([]byte{}, old...)

	res := Encode(old, new)
	out, err := Decode(old, res.Bytes)
	require.NoError(t, err)
	require.Equal(t, new, out)

	copies := countCopyInstructions(t, res.Bytes)
	require.GreaterOrEqual(t, copies, 2, "a match longer than maxCopyLength must split into multiple Copy instructions")
}

func countCopyInstructions(t *testing.T, encoded []byte) int {
	t.Helper()
	_, n, ok := readSizeVarint(encoded)
	require.True(t, ok)
	encoded = encoded[n:]
	_, n, ok = readSizeVarint(encoded)
	require.True(t, ok)
	encoded = encoded[n:]

	count := 0
	for len(encoded) > 0 {
		b := encoded[0]
		if b&0x80 != 0 {
			_, consumed, err := decodeCopy(encoded)
			require.NoError(t, err)
			count++
			encoded = encoded[consumed:]
			continue
		}
		length := int(b & 0x7f)
		encoded = encoded[1+length:]
	}
	return count
}

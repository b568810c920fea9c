package pack

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mega-forge/mega-core/internal/delta"
	"github.com/mega-forge/mega-core/internal/digest"
	"github.com/mega-forge/mega-core/internal/object"
)

func TestMain(m *testing.M) {
	digest.Init(digest.SHA1)
	m.Run()
}

type memStore struct {
	objs map[digest.Hash]struct {
		typ  object.Type
		body []byte
	}
}

func (s *memStore) Get(h digest.Hash) (object.Type, []byte, bool) {
	e, ok := s.objs[h]
	if !ok {
		return 0, nil, false
	}
	return e.typ, e.body, true
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	blob := &object.Blob{Content: []byte("hello\n")}
	h := object.Hash(blob)
	input := []EncodeInput{{Hash: h, Type: object.BlobObject, Body: blob.Encode()}}

	raw, err := Encode(input, EncodeOptions{})
	require.NoError(t, err)

	var got []DecodedObject
	trailer, err := Decode(raw, nil, nil, func(o DecodedObject) error {
		got = append(got, o)
		return nil
	})
	require.NoError(t, err)
	require.NotEqual(t, digest.Zero, trailer)
	require.Len(t, got, 1)
	require.Equal(t, h, got[0].Hash)
	require.Equal(t, object.BlobObject, got[0].Type)
	require.Equal(t, blob.Encode(), got[0].Body)
}

func TestEncodeDecodeWithDelta(t *testing.T) {
	base := &object.Blob{Content: []byte("the quick brown fox jumps over the lazy dog\n")}
	modified := &object.Blob{Content: []byte("the quick brown fox jumps over the lazy dog and then some\n")}

	input := []EncodeInput{
		{Hash: object.Hash(base), Type: object.BlobObject, Body: base.Encode()},
		{Hash: object.Hash(modified), Type: object.BlobObject, Body: modified.Encode()},
	}
	raw, err := Encode(input, EncodeOptions{DeltaThreshold: 0.1})
	require.NoError(t, err)

	seen := map[digest.Hash][]byte{}
	_, err = Decode(raw, nil, nil, func(o DecodedObject) error {
		seen[o.Hash] = o.Body
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, base.Encode(), seen[object.Hash(base)])
	require.Equal(t, modified.Encode(), seen[object.Hash(modified)])
}

func TestDecodeRejectsBadChecksum(t *testing.T) {
	blob := &object.Blob{Content: []byte("x")}
	input := []EncodeInput{{Hash: object.Hash(blob), Type: object.BlobObject, Body: blob.Encode()}}
	raw, err := Encode(input, EncodeOptions{})
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	_, err = Decode(raw, nil, nil, func(DecodedObject) error { return nil })
	require.Error(t, err)
}

func TestDecodeResolvesRefDeltaAgainstCache(t *testing.T) {
	base := &object.Blob{Content: []byte("base content for ref-delta resolution via cache")}
	store := &memStore{objs: map[digest.Hash]struct {
		typ  object.Type
		body []byte
	}{
		object.Hash(base): {typ: object.BlobObject, body: base.Encode()},
	}}

	cache, err := NewCache(1 << 20)
	require.NoError(t, err)
	defer cache.Close()
	cache.Put(object.Hash(base), BlobEntry, base.Encode())

	sum := NewChecksum()
	var raw []byte
	raw = writeHeader(raw, 1)
	sum.Write(raw)

	payload := delta.Encode(base.Encode(), append(base.Encode(), []byte(" extra")...)).Bytes
	entry := writeTypeSizeHeader(nil, RefDeltaEntry, uint64(len(payload)))
	entry = append(entry, object.Hash(base).Bytes()...)
	compressed, err := zlibCompress(payload)
	require.NoError(t, err)
	entry = append(entry, compressed...)
	raw = append(raw, entry...)
	sum.Write(entry)
	raw = append(raw, sum.Sum().Bytes()...)

	var got []DecodedObject
	_, err = Decode(raw, store, cache, func(o DecodedObject) error {
		got = append(got, o)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, append(base.Encode(), []byte(" extra")...), got[0].Body)
}

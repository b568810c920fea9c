package digest

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"hash"
	"sort"
)

// maxSize is the width of the largest supported digest (SHA-256); Hash is
// always stored at this width with the tail zero-padded for the narrower
// SHA-1 variant, so a Hash value is comparable/hashable regardless of the
// algorithm active when it was produced.
const maxSize = 32

// Hash is a fixed-width content digest. Its logical length is determined
// by the process-wide Algorithm; bytes beyond that length are always zero.
type Hash [maxSize]byte

// Zero is the distinguished null digest used in protocol old-id/new-id to
// denote create/delete.
var Zero Hash

// IsZero reports whether h is the distinguished null digest.
func (h Hash) IsZero() bool {
	return h == Zero
}

// Bytes returns the logical (algorithm-width) byte slice of h.
func (h Hash) Bytes() []byte {
	return h[:Active().Size()]
}

// String renders h as lowercase hex of its logical width.
func (h Hash) String() string {
	return hex.EncodeToString(h.Bytes())
}

// FromBytes builds a Hash from a length-checked byte slice. The slice
// must be exactly Algorithm.Size() bytes.
func FromBytes(a Algorithm, b []byte) (Hash, error) {
	if len(b) != a.Size() {
		return Hash{}, fmt.Errorf("digest: expected %d bytes for %s, got %d", a.Size(), a, len(b))
	}
	var h Hash
	copy(h[:], b)
	return h, nil
}

// FromHex parses a hex string using the process-wide algorithm's width.
// Parsing is case-insensitive.
func FromHex(s string) (Hash, error) {
	return FromHexAlgorithm(Active(), s)
}

// FromHexAlgorithm parses a hex string against an explicit algorithm,
// for contexts (e.g. pack ref-delta base ids) where the width is known
// before the process-wide algorithm would otherwise be consulted.
func FromHexAlgorithm(a Algorithm, s string) (Hash, error) {
	if len(s) != a.Size()*2 {
		return Hash{}, fmt.Errorf("digest: expected %d hex chars for %s, got %d", a.Size()*2, a, len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("digest: invalid hex: %w", err)
	}
	return FromBytes(a, b)
}

// Compute hashes typeTag + " " + ascii(len(payload)) + NUL + payload,
// matching Git's object identity rule byte-for-byte (spec §3.1).
func Compute(typeTag string, payload []byte) Hash {
	h := active.new()
	fmt.Fprintf(h, "%s %d\x00", typeTag, len(payload))
	h.Write(payload)
	sum := h.Sum(nil)
	var out Hash
	copy(out[:], sum)
	return out
}

// Hasher incrementally computes a digest over a streamed envelope; used
// by the pack decoder's running checksum and by writers that cannot
// buffer their payload.
type Hasher struct {
	h hash.Hash
}

// NewEnvelopeHasher returns a Hasher pre-seeded with the "type len\x00"
// envelope header; callers Write the canonical payload bytes afterward.
func NewEnvelopeHasher(typeTag string, length int) *Hasher {
	hh := active.new()
	fmt.Fprintf(hh, "%s %d\x00", typeTag, length)
	return &Hasher{h: hh}
}

// NewRawHasher returns a Hasher over raw bytes with no envelope framing,
// used for whole-pack checksum computation (spec §4.D trailer).
func NewRawHasher() *Hasher {
	return &Hasher{h: active.new()}
}

func (hs *Hasher) Write(p []byte) (int, error) { return hs.h.Write(p) }

func (hs *Hasher) Sum() Hash {
	var out Hash
	copy(out[:], hs.h.Sum(nil))
	return out
}

// Sort sorts a slice of Hashes by their logical (algorithm-width) bytes.
func Sort(hs []Hash) {
	w := Active().Size()
	sort.Slice(hs, func(i, j int) bool {
		return bytes.Compare(hs[i][:w], hs[j][:w]) < 0
	})
}

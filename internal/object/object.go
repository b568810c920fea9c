// Package object implements the four Git object kinds (spec §3.1, §4.B):
// blob, tree, commit, tag. Parsing is strict — malformed input yields a
// typed error, never a silently-recovered partial value.
package object

import (
	"errors"
	"fmt"

	"github.com/mega-forge/mega-core/internal/digest"
)

// Type is the closed set of object kinds. Kept as a tagged enum; string
// forms exist only at the serialization boundary (pack headers, errors).
type Type int8

const (
	InvalidObject Type = iota
	BlobObject
	TreeObject
	CommitObject
	TagObject
)

func (t Type) String() string {
	switch t {
	case BlobObject:
		return "blob"
	case TreeObject:
		return "tree"
	case CommitObject:
		return "commit"
	case TagObject:
		return "tag"
	default:
		return "invalid"
	}
}

// TypeFromString is the inverse of Type.String, used when decoding pack
// headers and CLI-facing text.
func TypeFromString(s string) Type {
	switch s {
	case "blob":
		return BlobObject
	case "tree":
		return TreeObject
	case "commit":
		return CommitObject
	case "tag":
		return TagObject
	default:
		return InvalidObject
	}
}

// ErrMalformed wraps a parse failure for any object kind with enough
// context to diagnose without re-parsing.
type ErrMalformed struct {
	Kind   Type
	Reason string
}

func (e *ErrMalformed) Error() string {
	return fmt.Sprintf("object: malformed %s: %s", e.Kind, e.Reason)
}

func malformed(kind Type, format string, a ...any) error {
	return &ErrMalformed{Kind: kind, Reason: fmt.Sprintf(format, a...)}
}

// Object is implemented by every parsed object kind.
type Object interface {
	Type() Type
	// Encode writes the canonical body bytes (without the "type len\x00"
	// envelope — that framing is applied by the store/pack layers).
	Encode() []byte
}

// Hash computes the content digest of o per spec §3.1.
func Hash(o Object) digest.Hash {
	return digest.Compute(o.Type().String(), o.Encode())
}

// Decode parses canonical body bytes into the object kind named by t.
func Decode(t Type, body []byte) (Object, error) {
	switch t {
	case BlobObject:
		return DecodeBlob(body), nil
	case TreeObject:
		return DecodeTree(body)
	case CommitObject:
		return DecodeCommit(body)
	case TagObject:
		return DecodeTag(body)
	default:
		return nil, errors.New("object: unsupported type")
	}
}

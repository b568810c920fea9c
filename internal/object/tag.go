package object

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"

	"github.com/mega-forge/mega-core/internal/digest"
)

// Tag is (target, target_type, name, tagger, message) — spec §3.1, mirrors
// Commit's header grammar with "object"/"type"/"tag"/"tagger" keys.
type Tag struct {
	Object     digest.Hash
	ObjectType Type
	Name       string
	Tagger     Signature
	Message    []byte
}

func (t *Tag) Type() Type { return TagObject }

func (t *Tag) Encode() []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "object %s\n", t.Object.String())
	fmt.Fprintf(&buf, "type %s\n", t.ObjectType.String())
	fmt.Fprintf(&buf, "tag %s\n", t.Name)
	fmt.Fprintf(&buf, "tagger %s\n", t.Tagger.String())
	buf.WriteByte('\n')
	buf.Write(t.Message)
	return buf.Bytes()
}

func DecodeTag(body []byte) (*Tag, error) {
	r := bufio.NewReader(bytes.NewReader(body))
	t := &Tag{}
	var haveObject, haveType, haveName, haveTagger bool
	for {
		line, err := r.ReadString('\n')
		atEOF := err != nil
		text := strings.TrimSuffix(line, "\n")
		if text == "" {
			break
		}
		if atEOF {
			return nil, malformed(TagObject, "headers not terminated by blank line")
		}
		key, value, ok := strings.Cut(text, " ")
		if !ok {
			return nil, malformed(TagObject, "malformed header line %q", text)
		}
		switch key {
		case "object":
			h, err := digest.FromHexAlgorithm(digest.Active(), value)
			if err != nil {
				return nil, malformed(TagObject, "bad object hash: %v", err)
			}
			t.Object = h
			haveObject = true
		case "type":
			tt := TypeFromString(value)
			if tt == InvalidObject {
				return nil, malformed(TagObject, "bad target type %q", value)
			}
			t.ObjectType = tt
			haveType = true
		case "tag":
			t.Name = value
			haveName = true
		case "tagger":
			sig, err := ParseSignature(value)
			if err != nil {
				return nil, malformed(TagObject, "bad tagger: %v", err)
			}
			t.Tagger = sig
			haveTagger = true
		default:
			return nil, malformed(TagObject, "unexpected header %q", key)
		}
	}
	if !haveObject || !haveType || !haveName || !haveTagger {
		return nil, malformed(TagObject, "missing required header")
	}
	var msg bytes.Buffer
	_, _ = msg.ReadFrom(r)
	t.Message = msg.Bytes()
	return t, nil
}

package object

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/mega-forge/mega-core/internal/digest"
)

// Signature is `name SP "<" email ">" SP unix_seconds SP "+hhmm"|"-hhmm"`
// (spec §4.B).
type Signature struct {
	Name  string
	Email string
	When  int64 // unix seconds
	TZ    string
}

// String renders the Git signature line body.
func (s Signature) String() string {
	return fmt.Sprintf("%s <%s> %d %s", s.Name, s.Email, s.When, s.TZ)
}

// ParseSignature parses a signature per the grammar in spec §4.B. Strict:
// any deviation is rejected rather than best-effort recovered.
func ParseSignature(s string) (Signature, error) {
	open := strings.LastIndexByte(s, '<')
	close := strings.LastIndexByte(s, '>')
	if open < 0 || close < 0 || close < open {
		return Signature{}, fmt.Errorf("object: malformed signature %q", s)
	}
	name := strings.TrimSpace(s[:open])
	email := s[open+1 : close]
	rest := strings.TrimSpace(s[close+1:])
	fields := strings.Fields(rest)
	if len(fields) != 2 {
		return Signature{}, fmt.Errorf("object: malformed signature timestamp %q", rest)
	}
	when, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return Signature{}, fmt.Errorf("object: malformed signature timestamp: %w", err)
	}
	tz := fields[1]
	if len(tz) != 5 || (tz[0] != '+' && tz[0] != '-') {
		return Signature{}, fmt.Errorf("object: malformed signature timezone %q", tz)
	}
	return Signature{Name: name, Email: email, When: when, TZ: tz}, nil
}

// Commit is (tree, parents, author, committer, message) — spec §3.1.
type Commit struct {
	Tree      digest.Hash
	Parents   []digest.Hash
	Author    Signature
	Committer Signature
	Message   []byte
}

func (c *Commit) Type() Type { return CommitObject }

func (c *Commit) Encode() []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "tree %s\n", c.Tree.String())
	for _, p := range c.Parents {
		fmt.Fprintf(&buf, "parent %s\n", p.String())
	}
	fmt.Fprintf(&buf, "author %s\n", c.Author.String())
	fmt.Fprintf(&buf, "committer %s\n", c.Committer.String())
	buf.WriteByte('\n')
	buf.Write(c.Message)
	return buf.Bytes()
}

// DecodeCommit parses the line grammar from spec §4.B: "tree <hex>", zero
// or more "parent <hex>", "author <sig>", "committer <sig>", a blank
// line, then the message verbatim through EOF.
func DecodeCommit(body []byte) (*Commit, error) {
	r := bufio.NewReader(bytes.NewReader(body))
	c := &Commit{}
	haveTree := false
	haveAuthor := false
	haveCommitter := false
	for {
		line, err := r.ReadString('\n')
		atEOF := err != nil
		text := strings.TrimSuffix(line, "\n")
		if text == "" {
			break // blank line: headers done, rest is message
		}
		if atEOF {
			return nil, malformed(CommitObject, "headers not terminated by blank line")
		}
		key, value, ok := strings.Cut(text, " ")
		if !ok {
			return nil, malformed(CommitObject, "malformed header line %q", text)
		}
		switch key {
		case "tree":
			h, err := digest.FromHexAlgorithm(digest.Active(), value)
			if err != nil {
				return nil, malformed(CommitObject, "bad tree hash: %v", err)
			}
			c.Tree = h
			haveTree = true
		case "parent":
			h, err := digest.FromHexAlgorithm(digest.Active(), value)
			if err != nil {
				return nil, malformed(CommitObject, "bad parent hash: %v", err)
			}
			c.Parents = append(c.Parents, h)
		case "author":
			sig, err := ParseSignature(value)
			if err != nil {
				return nil, malformed(CommitObject, "bad author: %v", err)
			}
			c.Author = sig
			haveAuthor = true
		case "committer":
			sig, err := ParseSignature(value)
			if err != nil {
				return nil, malformed(CommitObject, "bad committer: %v", err)
			}
			c.Committer = sig
			haveCommitter = true
		default:
			return nil, malformed(CommitObject, "unexpected header %q", key)
		}
	}
	if !haveTree {
		return nil, malformed(CommitObject, "missing tree header")
	}
	if !haveAuthor || !haveCommitter {
		return nil, malformed(CommitObject, "missing author/committer header")
	}
	var msg bytes.Buffer
	_, _ = msg.ReadFrom(r)
	c.Message = msg.Bytes()
	return c, nil
}

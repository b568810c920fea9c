package object

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/mega-forge/mega-core/internal/digest"
)

// TreeEntry is one (mode, name, digest) triple (spec §3.1).
type TreeEntry struct {
	Mode FileMode
	Name string
	Hash digest.Hash
}

// Tree is an ordered sequence of entries, canonically sorted lexically by
// name with directory entries compared as if suffixed by "/" (Git's tree
// ordering — spec §3.1).
type Tree struct {
	Entries []TreeEntry
}

func (t *Tree) Type() Type { return TreeObject }

// sortKey returns the byte sequence used for canonical ordering: the name,
// suffixed with "/" when the entry is itself a tree.
func sortKey(e TreeEntry) string {
	if e.Mode.IsTree() {
		return e.Name + "/"
	}
	return e.Name
}

// Sort reorders entries into canonical order in place. Callers building a
// Tree programmatically (buck commit synthesis) must call this before
// Encode.
func (t *Tree) Sort() {
	sort.Slice(t.Entries, func(i, j int) bool {
		return sortKey(t.Entries[i]) < sortKey(t.Entries[j])
	})
}

// Encode writes entries in canonical "mode SP name NUL hash" form. Modes
// are always emitted in canonical six-digit octal (spec §4.B).
func (t *Tree) Encode() []byte {
	var buf bytes.Buffer
	for _, e := range t.Entries {
		fmt.Fprintf(&buf, "%s %s\x00", sixDigit(e.Mode), e.Name)
		buf.Write(e.Hash.Bytes())
	}
	return buf.Bytes()
}

func sixDigit(m FileMode) string {
	return fmt.Sprintf("%06o", uint32(m))
}

// DecodeTree parses a sequence of "mode SP name NUL hash" records. Strict:
// duplicate names, unknown modes, or truncated records are rejected.
func DecodeTree(body []byte) (*Tree, error) {
	t := &Tree{}
	seen := make(map[string]struct{})
	w := digest.Active().Size()
	for len(body) > 0 {
		sp := bytes.IndexByte(body, ' ')
		if sp < 0 {
			return nil, malformed(TreeObject, "missing mode separator")
		}
		mode, ok := ParseFileMode(string(body[:sp]))
		if !ok {
			return nil, malformed(TreeObject, "invalid mode %q", body[:sp])
		}
		rest := body[sp+1:]
		nul := bytes.IndexByte(rest, 0)
		if nul < 0 {
			return nil, malformed(TreeObject, "missing name terminator")
		}
		name := string(rest[:nul])
		if name == "" || strings.ContainsAny(name, "/\x00") {
			return nil, malformed(TreeObject, "invalid entry name %q", name)
		}
		if _, dup := seen[name]; dup {
			return nil, malformed(TreeObject, "duplicate entry name %q", name)
		}
		seen[name] = struct{}{}
		hashBytes := rest[nul+1:]
		if len(hashBytes) < w {
			return nil, malformed(TreeObject, "truncated hash for entry %q", name)
		}
		h, err := digest.FromBytes(digest.Active(), hashBytes[:w])
		if err != nil {
			return nil, malformed(TreeObject, "entry %q: %v", name, err)
		}
		t.Entries = append(t.Entries, TreeEntry{Mode: mode, Name: name, Hash: h})
		body = hashBytes[w:]
	}
	return t, nil
}

// Find returns the entry with the given name, or false if absent.
func (t *Tree) Find(name string) (TreeEntry, bool) {
	for _, e := range t.Entries {
		if e.Name == name {
			return e, true
		}
	}
	return TreeEntry{}, false
}

// WithEntry returns a copy of t with entry name set (inserted or
// replaced) and re-sorted, without mutating the original.
func (t *Tree) WithEntry(entry TreeEntry) *Tree {
	out := &Tree{Entries: make([]TreeEntry, 0, len(t.Entries)+1)}
	replaced := false
	for _, e := range t.Entries {
		if e.Name == entry.Name {
			out.Entries = append(out.Entries, entry)
			replaced = true
			continue
		}
		out.Entries = append(out.Entries, e)
	}
	if !replaced {
		out.Entries = append(out.Entries, entry)
	}
	out.Sort()
	return out
}

// WithoutEntry returns a copy of t with the named entry removed, if
// present.
func (t *Tree) WithoutEntry(name string) *Tree {
	out := &Tree{Entries: make([]TreeEntry, 0, len(t.Entries))}
	for _, e := range t.Entries {
		if e.Name != name {
			out.Entries = append(out.Entries, e)
		}
	}
	return out
}

// Package pathresolve implements the monorepo path resolver of spec
// §4.G: longest-prefix ref lookup followed by a tree walk over the
// resolved commit.
package pathresolve

import (
	"context"
	"strings"

	"github.com/mega-forge/mega-core/internal/digest"
	"github.com/mega-forge/mega-core/internal/mega"
	"github.com/mega-forge/mega-core/internal/object"
	"github.com/mega-forge/mega-core/internal/refstore"
)

// ObjectGetter is the read surface the resolver needs from the object
// store.
type ObjectGetter interface {
	Get(ctx context.Context, h digest.Hash) (object.Type, []byte, bool, error)
}

// Resolution is the result of resolving a monorepo path (spec §4.G).
type Resolution struct {
	ContainingCommit digest.Hash
	ContainingTree   digest.Hash
	Tail             digest.Hash
	TailType         object.Type
}

// ErrNotFound is returned when no ref prefix matches or the tree walk
// runs off the end of the tree.
type ErrNotFound struct {
	Path string
}

func (e *ErrNotFound) Error() string { return "pathresolve: not found: " + e.Path }

// Resolve implements spec §4.G steps 1-3: find the longest-prefix
// monorepo ref, then walk its commit's tree consuming the remaining
// path segments.
func Resolve(ctx context.Context, refs *refstore.Store, objects ObjectGetter, input string) (Resolution, error) {
	refPath, tail, err := longestPrefixRef(ctx, refs, input)
	if err != nil {
		return Resolution{}, err
	}

	headName, ok, err := refs.Head(ctx, refPath)
	if err != nil {
		return Resolution{}, err
	}
	if !ok {
		return Resolution{}, &ErrNotFound{Path: input}
	}
	commitHash, ok, err := refs.Read(ctx, refPath, headName)
	if err != nil {
		return Resolution{}, err
	}
	if !ok {
		return Resolution{}, &ErrNotFound{Path: input}
	}

	_, commitBody, ok, err := objects.Get(ctx, commitHash)
	if err != nil {
		return Resolution{}, err
	}
	if !ok {
		return Resolution{}, &mega.UnknownObject{Hash: commitHash.String()}
	}
	commit, err := object.DecodeCommit(commitBody)
	if err != nil {
		return Resolution{}, &mega.MalformedObject{Reason: err.Error()}
	}

	treeHash := commit.Tree
	segments := splitNonEmpty(tail)
	if len(segments) == 0 {
		return Resolution{ContainingCommit: commitHash, ContainingTree: treeHash, Tail: treeHash, TailType: object.TreeObject}, nil
	}

	currentTree := treeHash
	for i, seg := range segments {
		_, body, ok, err := objects.Get(ctx, currentTree)
		if err != nil {
			return Resolution{}, err
		}
		if !ok {
			return Resolution{}, &mega.UnknownObject{Hash: currentTree.String()}
		}
		tree, err := object.DecodeTree(body)
		if err != nil {
			return Resolution{}, &mega.MalformedObject{Reason: err.Error()}
		}
		entry, ok := tree.Find(seg)
		if !ok {
			return Resolution{}, &ErrNotFound{Path: input}
		}
		if i == len(segments)-1 {
			return Resolution{ContainingCommit: commitHash, ContainingTree: currentTree, Tail: entry.Hash, TailType: entry.Mode.ObjectType()}, nil
		}
		if !entry.Mode.IsTree() {
			return Resolution{}, &ErrNotFound{Path: input}
		}
		currentTree = entry.Hash
	}
	return Resolution{}, &ErrNotFound{Path: input}
}

// longestPrefixRef finds the ref path that is the longest prefix of
// input (spec §4.G step 1), returning the ref path and the remaining
// tail.
func longestPrefixRef(ctx context.Context, refs *refstore.Store, input string) (refPath, tail string, err error) {
	all, err := refs.List(ctx, "/")
	if err != nil {
		return "", "", err
	}
	best := ""
	for _, r := range all {
		if isPrefixPath(r.Path, input) && len(r.Path) > len(best) {
			best = r.Path
		}
	}
	if best == "" {
		return "", "", &ErrNotFound{Path: input}
	}
	return best, strings.TrimPrefix(strings.TrimPrefix(input, best), "/"), nil
}

func isPrefixPath(prefix, full string) bool {
	if prefix == full {
		return true
	}
	return strings.HasPrefix(full, strings.TrimSuffix(prefix, "/")+"/")
}

func splitNonEmpty(p string) []string {
	var out []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

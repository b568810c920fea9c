package protocol

import (
	"context"

	"github.com/mega-forge/mega-core/internal/digest"
	"github.com/mega-forge/mega-core/internal/mega"
	"github.com/mega-forge/mega-core/internal/object"
)

// ObjectGetter is the read surface the protocol layer needs from the
// object store.
type ObjectGetter interface {
	Get(ctx context.Context, h digest.Hash) (object.Type, []byte, bool, error)
}

// ClosureEntry is one object discovered while walking history.
type ClosureEntry struct {
	Hash digest.Hash
	Type object.Type
	Body []byte
}

// Closure computes the transitive closure reachable from roots:
// every ancestor commit plus every tree/blob/tag each reaches,
// visiting each object at most once.
func Closure(ctx context.Context, objects ObjectGetter, roots []digest.Hash) (map[digest.Hash]ClosureEntry, error) {
	visited := make(map[digest.Hash]ClosureEntry)
	queueCommits := append([]digest.Hash{}, roots...)

	for len(queueCommits) > 0 {
		h := queueCommits[0]
		queueCommits = queueCommits[1:]
		if _, ok := visited[h]; ok || h.IsZero() {
			continue
		}
		typ, body, ok, err := objects.Get(ctx, h)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &mega.UnknownObject{Hash: h.String()}
		}
		visited[h] = ClosureEntry{Hash: h, Type: typ, Body: body}
		if typ != object.CommitObject {
			continue
		}
		commit, err := object.DecodeCommit(body)
		if err != nil {
			return nil, &mega.MalformedObject{Reason: err.Error()}
		}
		queueCommits = append(queueCommits, commit.Parents...)
		if err := walkTree(ctx, objects, commit.Tree, visited); err != nil {
			return nil, err
		}
	}
	return visited, nil
}

func walkTree(ctx context.Context, objects ObjectGetter, h digest.Hash, visited map[digest.Hash]ClosureEntry) error {
	if _, ok := visited[h]; ok {
		return nil
	}
	typ, body, ok, err := objects.Get(ctx, h)
	if err != nil {
		return err
	}
	if !ok {
		return &mega.UnknownObject{Hash: h.String()}
	}
	visited[h] = ClosureEntry{Hash: h, Type: typ, Body: body}
	tree, err := object.DecodeTree(body)
	if err != nil {
		return &mega.MalformedObject{Reason: err.Error()}
	}
	for _, e := range tree.Entries {
		if e.Mode.IsTree() {
			if err := walkTree(ctx, objects, e.Hash, visited); err != nil {
				return err
			}
			continue
		}
		if _, ok := visited[e.Hash]; ok {
			continue
		}
		bt, bb, ok, err := objects.Get(ctx, e.Hash)
		if err != nil {
			return err
		}
		if !ok {
			return &mega.UnknownObject{Hash: e.Hash.String()}
		}
		visited[e.Hash] = ClosureEntry{Hash: e.Hash, Type: bt, Body: bb}
	}
	return nil
}

// IsAncestor reports whether candidate is reachable by walking
// first-parent-and-beyond ancestry from tip (used by the merge queue
// for fast-forward detection as well as upload-pack's have-matching).
func IsAncestor(ctx context.Context, objects ObjectGetter, tip, candidate digest.Hash) (bool, error) {
	if tip == candidate {
		return true, nil
	}
	queue := []digest.Hash{tip}
	seen := map[digest.Hash]struct{}{}
	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]
		if h.IsZero() {
			continue
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		if h == candidate {
			return true, nil
		}
		_, body, ok, err := objects.Get(ctx, h)
		if err != nil {
			return false, err
		}
		if !ok {
			continue
		}
		commit, err := object.DecodeCommit(body)
		if err != nil {
			continue
		}
		queue = append(queue, commit.Parents...)
	}
	return false, nil
}

package pathresolve

import (
	"context"

	"github.com/mega-forge/mega-core/internal/digest"
	"github.com/mega-forge/mega-core/internal/mega"
	"github.com/mega-forge/mega-core/internal/object"
)

// HistoryMode selects whether History emits every visited commit or
// only those where the scoped path's tree changed vs first-parent
// (spec §4.G).
type HistoryMode int

const (
	OnlyChanging HistoryMode = iota
	FullHistory
)

// pathTreeAt resolves the tree/blob digest at the given path within
// commitTree, or digest.Zero if the path does not exist at that
// commit (treated as "changed" relative to a nonexistent ancestor
// state).
func pathTreeAt(ctx context.Context, objects ObjectGetter, commitTree digest.Hash, segments []string) (digest.Hash, error) {
	current := commitTree
	for _, seg := range segments {
		_, body, ok, err := objects.Get(ctx, current)
		if err != nil {
			return digest.Zero, err
		}
		if !ok {
			return digest.Zero, nil
		}
		tree, err := object.DecodeTree(body)
		if err != nil {
			return digest.Zero, &mega.MalformedObject{Reason: err.Error()}
		}
		entry, ok := tree.Find(seg)
		if !ok {
			return digest.Zero, nil
		}
		current = entry.Hash
	}
	return current, nil
}

// History walks first-parent ancestry from startCommit, emitting
// commits whose scoped path changed vs the first parent (spec §4.G).
// In FullHistory mode every visited commit is emitted regardless.
func History(ctx context.Context, objects ObjectGetter, startCommit digest.Hash, segments []string, mode HistoryMode, visit func(digest.Hash) error) error {
	current := startCommit
	for !current.IsZero() {
		_, body, ok, err := objects.Get(ctx, current)
		if err != nil {
			return err
		}
		if !ok {
			return &mega.UnknownObject{Hash: current.String()}
		}
		commit, err := object.DecodeCommit(body)
		if err != nil {
			return &mega.MalformedObject{Reason: err.Error()}
		}

		var parent digest.Hash
		hasParent := len(commit.Parents) > 0
		if hasParent {
			parent = commit.Parents[0]
		}

		emit := mode == FullHistory
		if !emit {
			curTreeAtPath, err := pathTreeAt(ctx, objects, commit.Tree, segments)
			if err != nil {
				return err
			}
			if !hasParent {
				emit = !curTreeAtPath.IsZero()
			} else {
				_, parentBody, ok, err := objects.Get(ctx, parent)
				if err != nil {
					return err
				}
				if !ok {
					return &mega.UnknownObject{Hash: parent.String()}
				}
				parentCommit, err := object.DecodeCommit(parentBody)
				if err != nil {
					return &mega.MalformedObject{Reason: err.Error()}
				}
				parentTreeAtPath, err := pathTreeAt(ctx, objects, parentCommit.Tree, segments)
				if err != nil {
					return err
				}
				emit = curTreeAtPath != parentTreeAtPath
			}
		}
		if emit {
			if err := visit(current); err != nil {
				return err
			}
		}
		if !hasParent {
			break
		}
		current = parent
	}
	return nil
}

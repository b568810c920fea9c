package buck

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mega-forge/mega-core/internal/cl"
	"github.com/mega-forge/mega-core/internal/digest"
	"github.com/mega-forge/mega-core/internal/mega"
	"github.com/mega-forge/mega-core/internal/object"
)

// objectPutGetter is the read/write surface tree synthesis needs from
// the object store; kept narrow (rather than depending on
// *store.ObjectStore directly) so complete_test.go can exercise the
// bottom-up tree builder against an in-memory fake.
type objectPutGetter interface {
	Get(ctx context.Context, h digest.Hash) (object.Type, []byte, bool, error)
	Put(ctx context.Context, t object.Type, body []byte) (digest.Hash, error)
}

// CompleteResult mirrors CompleteResponse.
type CompleteResult struct {
	CLLink     string
	CommitHash digest.Hash
	FilesCount int
}

// Complete implements spec §4.K "Complete": assert no pending uploads,
// build the new tree bottom-up over the merge of the existing tree
// (minus deletions, though this spec carries no delete operation) and
// the uploaded/unchanged files, synthesize a commit, transition the
// linked CL to Open, and mark the session Completed.
func Complete(ctx context.Context, sessions *Store, objects objectPutGetter, clStore *cl.Store, sessionID, author, commitMessage string) (CompleteResult, error) {
	sess, err := sessions.GetSession(ctx, sessionID)
	if err != nil {
		return CompleteResult{}, err
	}
	if sess == nil {
		return CompleteResult{}, fmt.Errorf("buck: complete: unknown session %q", sessionID)
	}
	if sess.Status != SessionActive {
		return CompleteResult{}, fmt.Errorf("buck: complete: session %q is not active", sessionID)
	}

	pending, err := sessions.CountPending(ctx)
	if err != nil {
		return CompleteResult{}, err
	}
	if pending != 0 {
		return CompleteResult{}, fmt.Errorf("buck: complete: %d files still pending upload", pending)
	}

	files, err := sessions.UploadedFiles(ctx, sessionID)
	if err != nil {
		return CompleteResult{}, err
	}

	baseEntries, err := baseTreeEntries(ctx, objects, sess.FromCommit)
	if err != nil {
		return CompleteResult{}, err
	}
	for _, f := range files {
		baseEntries[f.Path] = object.TreeEntry{Mode: f.Mode, Name: f.Path, Hash: f.BlobDigest}
	}

	treeHash, err := buildTree(ctx, objects, baseEntries)
	if err != nil {
		return CompleteResult{}, err
	}

	author = strings.TrimSpace(author)
	sig := object.Signature{Name: author, Email: author, When: time.Now().Unix(), TZ: "+0000"}
	var parents []digest.Hash
	if !sess.FromCommit.IsZero() {
		parents = []digest.Hash{sess.FromCommit}
	}
	if commitMessage == "" {
		commitMessage = "buck upload " + sessionID
	}
	commit := &object.Commit{
		Tree:      treeHash,
		Parents:   parents,
		Author:    sig,
		Committer: sig,
		Message:   []byte(commitMessage + "\n"),
	}
	commitHash, err := objects.Put(ctx, object.CommitObject, commit.Encode())
	if err != nil {
		return CompleteResult{}, err
	}

	if err := clStore.SetToCommit(ctx, sess.CLLink, commitHash); err != nil {
		return CompleteResult{}, err
	}
	if err := clStore.Transition(ctx, sess.CLLink, cl.Open); err != nil {
		return CompleteResult{}, err
	}
	if err := sessions.markCompleted(ctx, sessionID, commitMessage); err != nil {
		return CompleteResult{}, err
	}

	return CompleteResult{CLLink: sess.CLLink, CommitHash: commitHash, FilesCount: len(files)}, nil
}

// baseTreeEntries flattens fromCommit's tree into a path->entry map
// keyed by full repository-relative path, the starting point Complete
// overlays uploaded files onto.
func baseTreeEntries(ctx context.Context, objects objectPutGetter, fromCommit digest.Hash) (map[string]object.TreeEntry, error) {
	out := make(map[string]object.TreeEntry)
	if fromCommit.IsZero() {
		return out, nil
	}
	_, body, ok, err := objects.Get(ctx, fromCommit)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &mega.UnknownObject{Hash: fromCommit.String()}
	}
	commit, err := object.DecodeCommit(body)
	if err != nil {
		return nil, &mega.MalformedObject{Reason: err.Error()}
	}
	if err := flattenTree(ctx, objects, commit.Tree, "", out); err != nil {
		return nil, err
	}
	return out, nil
}

func flattenTree(ctx context.Context, objects objectPutGetter, treeHash digest.Hash, prefix string, out map[string]object.TreeEntry) error {
	_, body, ok, err := objects.Get(ctx, treeHash)
	if err != nil {
		return err
	}
	if !ok {
		return &mega.UnknownObject{Hash: treeHash.String()}
	}
	tree, err := object.DecodeTree(body)
	if err != nil {
		return &mega.MalformedObject{Reason: err.Error()}
	}
	for _, e := range tree.Entries {
		full := e.Name
		if prefix != "" {
			full = prefix + "/" + e.Name
		}
		if e.Mode.IsTree() {
			if err := flattenTree(ctx, objects, e.Hash, full, out); err != nil {
				return err
			}
			continue
		}
		out[full] = object.TreeEntry{Mode: e.Mode, Name: full, Hash: e.Hash}
	}
	return nil
}

// buildTree groups flat path->entry pairs by directory and builds
// sub-trees recursively, bottom-up, then the containing tree (spec
// §4.K "Tree build is bottom-up").
func buildTree(ctx context.Context, objects objectPutGetter, entries map[string]object.TreeEntry) (digest.Hash, error) {
	return buildSubtree(ctx, objects, entries, "")
}

func buildSubtree(ctx context.Context, objects objectPutGetter, entries map[string]object.TreeEntry, dirPrefix string) (digest.Hash, error) {
	type child struct {
		name string
		dir  bool
	}
	seen := make(map[string]child)
	grouped := make(map[string][]object.TreeEntry) // direct-file entries by file name
	subdirs := make(map[string]map[string]object.TreeEntry)

	for path, entry := range entries {
		rel := path
		if dirPrefix != "" {
			if !strings.HasPrefix(path, dirPrefix+"/") {
				continue
			}
			rel = strings.TrimPrefix(path, dirPrefix+"/")
		}
		if idx := strings.Index(rel, "/"); idx >= 0 {
			top := rel[:idx]
			if subdirs[top] == nil {
				subdirs[top] = make(map[string]object.TreeEntry)
			}
			subdirs[top][path] = entry
			seen[top] = child{name: top, dir: true}
			continue
		}
		grouped[rel] = append(grouped[rel], object.TreeEntry{Mode: entry.Mode, Name: rel, Hash: entry.Hash})
		seen[rel] = child{name: rel, dir: false}
	}

	tree := &object.Tree{}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c := seen[name]
		if !c.dir {
			tree.Entries = append(tree.Entries, grouped[name][0])
			continue
		}
		childPrefix := name
		if dirPrefix != "" {
			childPrefix = dirPrefix + "/" + name
		}
		subHash, err := buildSubtree(ctx, objects, subdirs[name], childPrefix)
		if err != nil {
			return digest.Zero, err
		}
		tree.Entries = append(tree.Entries, object.TreeEntry{Mode: object.ModeDir, Name: name, Hash: subHash})
	}
	tree.Sort()
	return objects.Put(ctx, object.TreeObject, tree.Encode())
}


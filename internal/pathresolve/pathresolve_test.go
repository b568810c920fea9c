package pathresolve

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mega-forge/mega-core/internal/digest"
	"github.com/mega-forge/mega-core/internal/object"
)

func TestMain(m *testing.M) {
	digest.Init(digest.SHA1)
	m.Run()
}

type memObjects struct {
	byHash map[digest.Hash]object.Object
}

func newMemObjects() *memObjects { return &memObjects{byHash: map[digest.Hash]object.Object{}} }

func (m *memObjects) put(o object.Object) digest.Hash {
	h := object.Hash(o)
	m.byHash[h] = o
	return h
}

func (m *memObjects) Get(ctx context.Context, h digest.Hash) (object.Type, []byte, bool, error) {
	o, ok := m.byHash[h]
	if !ok {
		return 0, nil, false, nil
	}
	return o.Type(), o.Encode(), true, nil
}

func TestPathTreeAtResolvesNestedBlob(t *testing.T) {
	objs := newMemObjects()
	blob := &object.Blob{Content: []byte("package main\n")}
	blobHash := objs.put(blob)
	inner := &object.Tree{Entries: []object.TreeEntry{{Mode: object.ModeFile, Name: "main.go", Hash: blobHash}}}
	inner.Sort()
	innerHash := objs.put(inner)
	root := &object.Tree{Entries: []object.TreeEntry{{Mode: object.ModeDir, Name: "cmd", Hash: innerHash}}}
	root.Sort()
	rootHash := objs.put(root)

	got, err := pathTreeAt(context.Background(), objs, rootHash, []string{"cmd", "main.go"})
	require.NoError(t, err)
	require.Equal(t, blobHash, got)
}

func TestPathTreeAtMissingIsZero(t *testing.T) {
	objs := newMemObjects()
	root := &object.Tree{}
	rootHash := objs.put(root)
	got, err := pathTreeAt(context.Background(), objs, rootHash, []string{"nope"})
	require.NoError(t, err)
	require.True(t, got.IsZero())
}

func TestHistoryEmitsOnlyChangingCommits(t *testing.T) {
	objs := newMemObjects()

	blobA := &object.Blob{Content: []byte("a")}
	blobAHash := objs.put(blobA)
	blobB := &object.Blob{Content: []byte("b")}
	blobBHash := objs.put(blobB)

	treeV1 := &object.Tree{Entries: []object.TreeEntry{{Mode: object.ModeFile, Name: "f", Hash: blobAHash}}}
	treeV1.Sort()
	treeV1Hash := objs.put(treeV1)

	sig := object.Signature{Name: "a", Email: "a@example.com", When: 1, TZ: "+0000"}
	c1 := &object.Commit{Tree: treeV1Hash, Author: sig, Committer: sig, Message: []byte("c1")}
	c1Hash := objs.put(c1)

	// c2: unrelated change, tree content for "f" unchanged
	c2 := &object.Commit{Tree: treeV1Hash, Parents: []digest.Hash{c1Hash}, Author: sig, Committer: sig, Message: []byte("c2")}
	c2Hash := objs.put(c2)

	// c3: "f" changes content
	treeV2 := &object.Tree{Entries: []object.TreeEntry{{Mode: object.ModeFile, Name: "f", Hash: blobBHash}}}
	treeV2.Sort()
	treeV2Hash := objs.put(treeV2)
	c3 := &object.Commit{Tree: treeV2Hash, Parents: []digest.Hash{c2Hash}, Author: sig, Committer: sig, Message: []byte("c3")}
	c3Hash := objs.put(c3)

	var visited []digest.Hash
	err := History(context.Background(), objs, c3Hash, []string{"f"}, OnlyChanging, func(h digest.Hash) error {
		visited = append(visited, h)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []digest.Hash{c3Hash, c1Hash}, visited)
}

func TestHistoryFullModeEmitsEveryCommit(t *testing.T) {
	objs := newMemObjects()
	tree := &object.Tree{}
	treeHash := objs.put(tree)
	sig := object.Signature{Name: "a", Email: "a@example.com", When: 1, TZ: "+0000"}
	c1 := &object.Commit{Tree: treeHash, Author: sig, Committer: sig, Message: []byte("c1")}
	c1Hash := objs.put(c1)
	c2 := &object.Commit{Tree: treeHash, Parents: []digest.Hash{c1Hash}, Author: sig, Committer: sig, Message: []byte("c2")}
	c2Hash := objs.put(c2)

	var visited []digest.Hash
	err := History(context.Background(), objs, c2Hash, []string{"f"}, FullHistory, func(h digest.Hash) error {
		visited = append(visited, h)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []digest.Hash{c2Hash, c1Hash}, visited)
}

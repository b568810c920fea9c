package buck

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

func newMemObjects() *memObjects {
	return &memObjects{byHash: map[digest.Hash]object.Object{}}
}

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

func (m *memObjects) Put(ctx context.Context, t object.Type, body []byte) (digest.Hash, error) {
	h := digest.Compute(t.String(), body)
	var o object.Object
	var err error
	switch t {
	case object.BlobObject:
		o = &object.Blob{Content: body}
	case object.TreeObject:
		o, err = object.DecodeTree(body)
	case object.CommitObject:
		o, err = object.DecodeCommit(body)
	}
	if err != nil {
		return digest.Zero, err
	}
	m.byHash[h] = o
	return h, nil
}

func blobHash(objs *memObjects, content string) digest.Hash {
	return objs.put(&object.Blob{Content: []byte(content)})
}

func TestFlattenTreeNestsPaths(t *testing.T) {
	objs := newMemObjects()
	libBlob := blobHash(objs, "lib body")
	libTree := objs.put(&object.Tree{Entries: []object.TreeEntry{{Mode: object.ModeFile, Name: "lib.go", Hash: libBlob}}})
	readmeBlob := blobHash(objs, "readme body")
	root := objs.put(&object.Tree{Entries: []object.TreeEntry{
		{Mode: object.ModeFile, Name: "README.md", Hash: readmeBlob},
		{Mode: object.ModeDir, Name: "src", Hash: libTree},
	}})

	out := map[string]object.TreeEntry{}
	require.NoError(t, flattenTree(context.Background(), objs, root, "", out))
	require.Len(t, out, 2)
	require.Equal(t, readmeBlob, out["README.md"].Hash)
	require.Equal(t, libBlob, out["src/lib.go"].Hash)
}

func TestBuildTreeGroupsByDirectoryBottomUp(t *testing.T) {
	objs := newMemObjects()
	aBlob := blobHash(objs, "a")
	bBlob := blobHash(objs, "b")
	cBlob := blobHash(objs, "c")

	entries := map[string]object.TreeEntry{
		"README.md":    {Mode: object.ModeFile, Name: "README.md", Hash: aBlob},
		"src/lib.go":   {Mode: object.ModeFile, Name: "src/lib.go", Hash: bBlob},
		"src/pkg/a.go": {Mode: object.ModeFile, Name: "src/pkg/a.go", Hash: cBlob},
	}

	treeHash, err := buildTree(context.Background(), objs, entries)
	require.NoError(t, err)

	_, body, ok, err := objs.Get(context.Background(), treeHash)
	require.NoError(t, err)
	require.True(t, ok)
	root, err := object.DecodeTree(body)
	require.NoError(t, err)
	require.Len(t, root.Entries, 2)

	readme, ok := root.Find("README.md")
	require.True(t, ok)
	require.Equal(t, aBlob, readme.Hash)

	srcEntry, ok := root.Find("src")
	require.True(t, ok)
	require.True(t, srcEntry.Mode.IsTree())

	_, srcBody, ok, err := objs.Get(context.Background(), srcEntry.Hash)
	require.NoError(t, err)
	require.True(t, ok)
	srcTree, err := object.DecodeTree(srcBody)
	require.NoError(t, err)
	require.Len(t, srcTree.Entries, 2)

	libEntry, ok := srcTree.Find("lib.go")
	require.True(t, ok)
	require.Equal(t, bBlob, libEntry.Hash)

	pkgEntry, ok := srcTree.Find("pkg")
	require.True(t, ok)
	require.True(t, pkgEntry.Mode.IsTree())

	_, pkgBody, ok, err := objs.Get(context.Background(), pkgEntry.Hash)
	require.NoError(t, err)
	require.True(t, ok)
	pkgTree, err := object.DecodeTree(pkgBody)
	require.NoError(t, err)
	require.Len(t, pkgTree.Entries, 1)
	aEntry, ok := pkgTree.Find("a.go")
	require.True(t, ok)
	require.Equal(t, cBlob, aEntry.Hash)
}

func TestBaseTreeEntriesEmptyForZeroCommit(t *testing.T) {
	objs := newMemObjects()
	out, err := baseTreeEntries(context.Background(), objs, digest.Zero)
	require.NoError(t, err)
	require.Empty(t, out)
}

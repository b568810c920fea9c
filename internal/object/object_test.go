package object

import (
	"testing"

	"github.com/mega-forge/mega-core/internal/digest"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	digest.Init(digest.SHA1)
	m.Run()
}

func TestBlobRoundTrip(t *testing.T) {
	b := &Blob{Content: []byte("hello\n")}
	h := Hash(b)
	require.Equal(t, "ce013625030ba8dba906f756967f9e9ca394464a", h.String())
	decoded := DecodeBlob(b.Encode())
	require.Equal(t, b.Content, decoded.Content)
}

func TestTreeRoundTrip(t *testing.T) {
	blobHash, _ := digest.FromHex("ce013625030ba8dba906f756967f9e9ca394464a")
	tr := &Tree{Entries: []TreeEntry{
		{Mode: ModeFile, Name: "README.md", Hash: blobHash},
	}}
	encoded := tr.Encode()
	decoded, err := DecodeTree(encoded)
	require.NoError(t, err)
	require.Equal(t, tr.Entries, decoded.Entries)
}

func TestTreeCanonicalOrdering(t *testing.T) {
	h, _ := digest.FromHex("ce013625030ba8dba906f756967f9e9ca394464a")
	tr := &Tree{Entries: []TreeEntry{
		{Mode: ModeFile, Name: "lib.c", Hash: h},
		{Mode: ModeDir, Name: "lib", Hash: h},
	}}
	tr.Sort()
	// "lib.c" < "lib/" because '.' (0x2e) < '/' (0x2f)
	require.Equal(t, "lib.c", tr.Entries[0].Name)
	require.Equal(t, "lib", tr.Entries[1].Name)
}

func TestTreeRejectsDuplicateNames(t *testing.T) {
	h, _ := digest.FromHex("ce013625030ba8dba906f756967f9e9ca394464a")
	tr := &Tree{Entries: []TreeEntry{
		{Mode: ModeFile, Name: "a", Hash: h},
		{Mode: ModeFile, Name: "a", Hash: h},
	}}
	_, err := DecodeTree(tr.Encode())
	require.Error(t, err)
}

func TestCommitRoundTrip(t *testing.T) {
	tree, _ := digest.FromHex("4b825dc642cb6eb9a060e54bf8d69288fbee4904")
	parent, _ := digest.FromHex("ce013625030ba8dba906f756967f9e9ca394464a")
	c := &Commit{
		Tree:      tree,
		Parents:   []digest.Hash{parent},
		Author:    Signature{Name: "A Author", Email: "a@example.com", When: 1700000000, TZ: "+0000"},
		Committer: Signature{Name: "A Author", Email: "a@example.com", When: 1700000000, TZ: "+0000"},
		Message:   []byte("init\n"),
	}
	decoded, err := DecodeCommit(c.Encode())
	require.NoError(t, err)
	require.Equal(t, c.Tree, decoded.Tree)
	require.Equal(t, c.Parents, decoded.Parents)
	require.Equal(t, c.Author, decoded.Author)
	require.Equal(t, c.Message, decoded.Message)
}

func TestCommitRejectsMissingBlankLine(t *testing.T) {
	_, err := DecodeCommit([]byte("tree " + (digest.Hash{}).String()))
	require.Error(t, err)
}

func TestTagRoundTrip(t *testing.T) {
	obj, _ := digest.FromHex("ce013625030ba8dba906f756967f9e9ca394464a")
	tg := &Tag{
		Object:     obj,
		ObjectType: CommitObject,
		Name:       "v1.0.0",
		Tagger:     Signature{Name: "A", Email: "a@example.com", When: 1700000000, TZ: "+0000"},
		Message:    []byte("release\n"),
	}
	decoded, err := DecodeTag(tg.Encode())
	require.NoError(t, err)
	require.Equal(t, tg.Object, decoded.Object)
	require.Equal(t, tg.ObjectType, decoded.ObjectType)
	require.Equal(t, tg.Name, decoded.Name)
}

package protocol

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mega-forge/mega-core/internal/digest"
	"github.com/mega-forge/mega-core/internal/object"
	"github.com/mega-forge/mega-core/internal/refstore"
)

func TestMain(m *testing.M) {
	digest.Init(digest.SHA1)
	m.Run()
}

func TestPktLineRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteLine(&buf, "hello"))
	require.NoError(t, WriteFlush(&buf))

	r := NewReader(&buf)
	p, err := r.ReadPacket()
	require.NoError(t, err)
	require.Equal(t, DataPacket, p.Type)
	require.Equal(t, "hello\n", string(p.Data))

	p, err = r.ReadPacket()
	require.NoError(t, err)
	require.Equal(t, FlushPacket, p.Type)
}

func TestPktLineRejectsOversizedPayload(t *testing.T) {
	var buf bytes.Buffer
	big := make([]byte, MaxPayload+1)
	require.Error(t, WriteData(&buf, big))
}

func TestReadUntilFlushStopsAtFlush(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteLine(&buf, "a"))
	require.NoError(t, WriteLine(&buf, "b"))
	require.NoError(t, WriteFlush(&buf))
	require.NoError(t, WriteLine(&buf, "c")) // should not be read

	r := NewReader(&buf)
	lines, err := r.ReadUntilFlush()
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("a\n"), []byte("b\n")}, lines)
}

func TestReadUntilFlushStopsAtDoneWithoutTrailingFlush(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteLine(&buf, "have aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"))
	require.NoError(t, WriteLine(&buf, "done"))
	// no flush after "done": compute-end = "0000" / "done" per the wire grammar.

	r := NewReader(&buf)
	lines, err := r.ReadUntilFlush()
	require.NoError(t, err)
	require.Len(t, lines, 2)
	require.Equal(t, "done\n", string(lines[1]))
}

func TestReadUntilFlushStopsAtBareDone(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteLine(&buf, "done"))

	r := NewReader(&buf)
	lines, err := r.ReadUntilFlush()
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("done\n")}, lines)
}

func TestSidebandWriterSplitsLargeChunks(t *testing.T) {
	var buf bytes.Buffer
	sb := NewSidebandWriter(&buf, BandPack)
	payload := bytes.Repeat([]byte{0xAB}, MaxSidebandChunk+10)
	n, err := sb.Write(payload)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)

	r := NewReader(&buf)
	var reassembled []byte
	for {
		p, err := r.ReadPacket()
		require.NoError(t, err)
		band, data, derr := DemuxPacket(p)
		require.NoError(t, derr)
		require.Equal(t, byte(BandPack), band)
		reassembled = append(reassembled, data...)
		if len(reassembled) == len(payload) {
			break
		}
	}
	require.Equal(t, payload, reassembled)
}

func TestCapabilitiesStringIncludesRequired(t *testing.T) {
	caps := Default(digest.SHA1, "mega/1.0")
	s := caps.String()
	require.Contains(t, s, "multi_ack_detailed")
	require.Contains(t, s, "side-band-64k")
	require.Contains(t, s, "object-format=sha1")
	require.Contains(t, s, "agent=mega/1.0")
}

func TestCheckObjectFormatMismatchIsFatal(t *testing.T) {
	err := CheckObjectFormat(map[string]string{"object-format": "sha256"}, digest.SHA1)
	require.Error(t, err)
}

func TestCheckObjectFormatMatchIsOK(t *testing.T) {
	err := CheckObjectFormat(map[string]string{"object-format": "sha1"}, digest.SHA1)
	require.NoError(t, err)
}

type memObjects struct {
	byHash map[digest.Hash]object.Object
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

func TestClosureWalksCommitsTreesAndBlobs(t *testing.T) {
	objs := &memObjects{byHash: map[digest.Hash]object.Object{}}
	blob := &object.Blob{Content: []byte("x")}
	blobHash := objs.put(blob)
	tree := &object.Tree{Entries: []object.TreeEntry{{Mode: object.ModeFile, Name: "f", Hash: blobHash}}}
	treeHash := objs.put(tree)
	sig := object.Signature{Name: "a", Email: "a@example.com", When: 1, TZ: "+0000"}
	commit := &object.Commit{Tree: treeHash, Author: sig, Committer: sig, Message: []byte("m")}
	commitHash := objs.put(commit)

	closure, err := Closure(context.Background(), objs, []digest.Hash{commitHash})
	require.NoError(t, err)
	require.Len(t, closure, 3)
	require.Contains(t, closure, blobHash)
	require.Contains(t, closure, treeHash)
	require.Contains(t, closure, commitHash)
}

func TestIsAncestorWalksParents(t *testing.T) {
	objs := &memObjects{byHash: map[digest.Hash]object.Object{}}
	tree := &object.Tree{}
	treeHash := objs.put(tree)
	sig := object.Signature{Name: "a", Email: "a@example.com", When: 1, TZ: "+0000"}
	c1 := &object.Commit{Tree: treeHash, Author: sig, Committer: sig, Message: []byte("c1")}
	c1Hash := objs.put(c1)
	c2 := &object.Commit{Tree: treeHash, Parents: []digest.Hash{c1Hash}, Author: sig, Committer: sig, Message: []byte("c2")}
	c2Hash := objs.put(c2)

	ok, err := IsAncestor(context.Background(), objs, c2Hash, c1Hash)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = IsAncestor(context.Background(), objs, c1Hash, c2Hash)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAdvertiseRefsFramesServiceHeaderAndRefs(t *testing.T) {
	var buf bytes.Buffer
	h, _ := digest.FromHex("ce013625030ba8dba906f756967f9e9ca394464a")
	refs := []refstore.Ref{{Path: "/demo", Name: "refs/heads/main", Hash: h}}
	caps := Default(digest.SHA1, "mega/1.0")
	require.NoError(t, AdvertiseRefs(&buf, "git-upload-pack", h, refs, caps))

	r := NewReader(&buf)
	p, err := r.ReadPacket()
	require.NoError(t, err)
	require.Equal(t, "# service=git-upload-pack\n", string(p.Data))

	flush, err := r.ReadPacket()
	require.NoError(t, err)
	require.Equal(t, FlushPacket, flush.Type)

	headLine, err := r.ReadPacket()
	require.NoError(t, err)
	require.Contains(t, string(headLine.Data), "HEAD\x00")
}

// TestUploadPackVirginCloneWithDoneAndNoFlush drives spec §8.3
// Scenario 2 end to end: want <C1>, flush, done -- with no flush after
// done, matching what a real client actually sends.
func TestUploadPackVirginCloneWithDoneAndNoFlush(t *testing.T) {
	objs := &memObjects{byHash: map[digest.Hash]object.Object{}}
	blob := &object.Blob{Content: []byte("hello\n")}
	blobHash := objs.put(blob)
	tree := &object.Tree{Entries: []object.TreeEntry{{Mode: object.ModeFile, Name: "README.md", Hash: blobHash}}}
	treeHash := objs.put(tree)
	sig := object.Signature{Name: "a", Email: "a@example.com", When: 1, TZ: "+0000"}
	commit := &object.Commit{Tree: treeHash, Author: sig, Committer: sig, Message: []byte("c1")}
	commitHash := objs.put(commit)

	var req bytes.Buffer
	require.NoError(t, WriteLine(&req, fmt.Sprintf("want %s", commitHash)))
	require.NoError(t, WriteFlush(&req))
	require.NoError(t, WriteLine(&req, "done"))

	var resp bytes.Buffer
	err := UploadPack(context.Background(), NewReader(&req), &resp, objs, digest.SHA1)
	require.NoError(t, err)

	r := NewReader(&resp)
	var sawPack bool
	for {
		p, err := r.ReadPacket()
		require.NoError(t, err)
		if p.Type == FlushPacket {
			break
		}
		band, _, derr := DemuxPacket(p)
		require.NoError(t, derr)
		if band == byte(BandPack) {
			sawPack = true
		}
	}
	require.True(t, sawPack, "expected a pack to stream over side-band-1")
}

package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/mega-forge/mega-core/internal/digest"
	"github.com/mega-forge/mega-core/internal/mega"
	"github.com/mega-forge/mega-core/internal/object"
)

// ObjectStore implements the surface of spec §4.E: put/put_batch (idempotent,
// atomic per chunk), get, exists, and stream_tree over a metadata tier
// plus a bytes tier, in that write order — bytes first, metadata last,
// so an orphaned bytes-tier object is the only possible latent leak,
// never a dangling metadata row.
type ObjectStore struct {
	namespace string
	meta      *MetadataDB
	bytes     BytesTier
}

func NewObjectStore(namespace string, meta *MetadataDB, bytes BytesTier) *ObjectStore {
	return &ObjectStore{namespace: namespace, meta: meta, bytes: bytes}
}

// Put stores one object, returning its existing digest if already
// present.
func (s *ObjectStore) Put(ctx context.Context, t object.Type, body []byte) (digest.Hash, error) {
	h := digest.Compute(t.String(), body)
	exists, err := s.meta.Exists(ctx, h)
	if err != nil {
		return digest.Zero, &mega.TransientStorage{Cause: err}
	}
	if exists {
		return h, nil
	}
	key := BlobKey(s.namespace, h.String())
	if err := s.bytes.PutStream(ctx, key, bytes.NewReader(body), int64(len(body))); err != nil {
		return digest.Zero, &mega.TransientStorage{Cause: err}
	}
	if err := s.meta.Put(ctx, MetadataRow{Hash: h, Type: t, Size: int64(len(body)), BlobKey: key, CreatedAt: time.Now()}); err != nil {
		return digest.Zero, &mega.TransientStorage{Cause: err}
	}
	return h, nil
}

// PutEntry pairs an object's bytes with its type for PutBatch.
type PutEntry struct {
	Type object.Type
	Body []byte
}

// PutBatch stores a set of objects, chunked atomically inside the
// metadata tier; a chunk failure leaves rows in unattempted chunks
// untouched.
func (s *ObjectStore) PutBatch(ctx context.Context, entries []PutEntry) ([]digest.Hash, error) {
	hashes := make([]digest.Hash, len(entries))
	rows := make([]MetadataRow, 0, len(entries))
	for i, e := range entries {
		h := digest.Compute(e.Type.String(), e.Body)
		hashes[i] = h
		key := BlobKey(s.namespace, h.String())
		if err := s.bytes.PutStream(ctx, key, bytes.NewReader(e.Body), int64(len(e.Body))); err != nil {
			return nil, &mega.TransientStorage{Cause: err}
		}
		rows = append(rows, MetadataRow{Hash: h, Type: e.Type, Size: int64(len(e.Body)), BlobKey: key, CreatedAt: time.Now()})
	}
	if err := s.meta.PutBatch(ctx, rows); err != nil {
		return nil, &mega.TransientStorage{Cause: err}
	}
	return hashes, nil
}

func (s *ObjectStore) Get(ctx context.Context, h digest.Hash) (object.Type, []byte, bool, error) {
	row, ok, err := s.meta.Get(ctx, h)
	if err != nil {
		return 0, nil, false, &mega.TransientStorage{Cause: err}
	}
	if !ok {
		return 0, nil, false, nil
	}
	r, err := s.bytes.GetStream(ctx, row.BlobKey)
	if err != nil {
		return 0, nil, false, fmt.Errorf("store: blob key %s missing bytes: %w", row.BlobKey, err)
	}
	defer r.Close()
	body, err := io.ReadAll(r)
	if err != nil {
		return 0, nil, false, &mega.TransientStorage{Cause: err}
	}
	return row.Type, body, true, nil
}

// GetSync is Get without a context, in pack.Store's (type, body, ok)
// result shape; a storage error reads as not found.
func (s *ObjectStore) GetSync(h digest.Hash) (object.Type, []byte, bool) {
	t, body, ok, err := s.Get(context.Background(), h)
	if err != nil {
		return 0, nil, false
	}
	return t, body, ok
}

func (s *ObjectStore) Exists(ctx context.Context, h digest.Hash) (bool, error) {
	ok, err := s.meta.Exists(ctx, h)
	if err != nil {
		return false, &mega.TransientStorage{Cause: err}
	}
	return ok, nil
}

// StreamObject is one (digest, type, body) item that StreamTree yields
// for the transitive closure of a commit's root tree, each object at
// most once, in an unspecified but deterministic order given the same
// input (spec §4.E).
type StreamObject struct {
	Hash digest.Hash
	Type object.Type
	Body []byte
}

func (s *ObjectStore) StreamTree(ctx context.Context, commitHash digest.Hash, visit func(StreamObject) error) error {
	visited := make(map[digest.Hash]struct{})

	var walkTree func(h digest.Hash) error
	walkTree = func(h digest.Hash) error {
		if _, ok := visited[h]; ok {
			return nil
		}
		visited[h] = struct{}{}
		typ, body, ok, err := s.Get(ctx, h)
		if err != nil {
			return err
		}
		if !ok {
			return &mega.UnknownObject{Hash: h.String()}
		}
		if err := visit(StreamObject{Hash: h, Type: typ, Body: body}); err != nil {
			return err
		}
		tree, err := object.DecodeTree(body)
		if err != nil {
			return &mega.MalformedObject{Reason: err.Error()}
		}
		for _, e := range tree.Entries {
			if e.Mode.IsTree() {
				if err := walkTree(e.Hash); err != nil {
					return err
				}
			} else {
				if _, ok := visited[e.Hash]; ok {
					continue
				}
				visited[e.Hash] = struct{}{}
				bt, bb, ok, err := s.Get(ctx, e.Hash)
				if err != nil {
					return err
				}
				if !ok {
					return &mega.UnknownObject{Hash: e.Hash.String()}
				}
				if err := visit(StreamObject{Hash: e.Hash, Type: bt, Body: bb}); err != nil {
					return err
				}
			}
		}
		return nil
	}

	if _, ok := visited[commitHash]; ok {
		return nil
	}
	visited[commitHash] = struct{}{}
	typ, body, ok, err := s.Get(ctx, commitHash)
	if err != nil {
		return err
	}
	if !ok {
		return &mega.UnknownObject{Hash: commitHash.String()}
	}
	if err := visit(StreamObject{Hash: commitHash, Type: typ, Body: body}); err != nil {
		return err
	}
	commit, err := object.DecodeCommit(body)
	if err != nil {
		return &mega.MalformedObject{Reason: err.Error()}
	}
	return walkTree(commit.Tree)
}

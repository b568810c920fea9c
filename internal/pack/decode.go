package pack

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"

	"github.com/mega-forge/mega-core/internal/delta"
	"github.com/mega-forge/mega-core/internal/digest"
	"github.com/mega-forge/mega-core/internal/object"
)

// Store is the subset of the object store that pack decode needs to
// resolve ref-deltas against objects outside the pack (spec §4.D).
type Store interface {
	Get(h digest.Hash) (object.Type, []byte, bool)
}

// DecodedObject is one object yielded by a pack decode pass.
type DecodedObject struct {
	Hash digest.Hash
	Type object.Type
	Body []byte
}

// MaxObjectSize bounds decoded payload size; exceeding it aborts the
// pack rather than allocating speculatively (spec §4.D resource cap).
const MaxObjectSize = 512 << 20

// Decode parses a full in-memory pack, resolving offset- and
// ref-deltas. Unresolved ref-deltas after the pack's own entries are
// retried once against store; still-unresolved is fatal. The decoder
// yields each object to visit in pack order and returns the verified
// trailer checksum.
func Decode(raw []byte, store Store, cache *Cache, visit func(DecodedObject) error) (digest.Hash, error) {
	count, body, err := readHeader(raw)
	if err != nil {
		return digest.Zero, err
	}
	sum := NewChecksum()
	sum.Write(raw[:len(raw)-len(body)])

	type rawEntry struct {
		offset int
		typ    EntryType
		size   uint64
		ofs    uint64 // base offset for OfsDeltaEntry
		base   digest.Hash
		data   []byte // zlib-inflated bytes: literal body or delta program
	}

	entries := make([]rawEntry, 0, count)
	offsets := make(map[int]int) // pack byte offset -> entries index

	pos := len(raw) - len(body)
	cursor := body
	trailerSize := digest.Active().Size()

	for i := uint32(0); i < count; i++ {
		entryStart := pos
		t, size, consumed, err := readTypeSizeHeader(cursor)
		if err != nil {
			return digest.Zero, err
		}
		sum.Write(cursor[:consumed])
		cursor = cursor[consumed:]
		pos += consumed

		var baseOffset uint64
		var baseHash digest.Hash
		switch t {
		case OfsDeltaEntry:
			off, n, err := readOfsDeltaOffset(cursor)
			if err != nil {
				return digest.Zero, err
			}
			sum.Write(cursor[:n])
			cursor = cursor[n:]
			pos += n
			baseOffset = uint64(entryStart) - off
		case RefDeltaEntry:
			if len(cursor) < trailerSize {
				return digest.Zero, fmt.Errorf("pack: truncated ref-delta base")
			}
			h, err := digest.FromBytes(digest.Active(), cursor[:trailerSize])
			if err != nil {
				return digest.Zero, err
			}
			sum.Write(cursor[:trailerSize])
			cursor = cursor[trailerSize:]
			pos += trailerSize
			baseHash = h
		}

		if size > MaxObjectSize {
			return digest.Zero, fmt.Errorf("pack: object exceeds size limit (%d > %d)", size, MaxObjectSize)
		}

		inflated, consumedZlib, err := inflateOne(cursor, size)
		if err != nil {
			return digest.Zero, err
		}
		sum.Write(cursor[:consumedZlib])
		cursor = cursor[consumedZlib:]
		pos += consumedZlib

		entries = append(entries, rawEntry{
			offset: entryStart,
			typ:    t,
			size:   size,
			ofs:    baseOffset,
			base:   baseHash,
			data:   inflated,
		})
		offsets[entryStart] = len(entries) - 1
	}

	if len(cursor) < trailerSize {
		return digest.Zero, fmt.Errorf("pack: truncated trailer")
	}
	trailer, err := digest.FromBytes(digest.Active(), cursor[:trailerSize])
	if err != nil {
		return digest.Zero, err
	}
	computed := sum.Sum()
	if computed != trailer {
		return digest.Zero, fmt.Errorf("pack: checksum mismatch: got %s want %s", computed, trailer)
	}

	resolved := make([][]byte, len(entries))
	resolvedType := make([]EntryType, len(entries))
	var pending []int

	var resolve func(i int) ([]byte, EntryType, error)
	resolve = func(i int) ([]byte, EntryType, error) {
		if resolved[i] != nil {
			return resolved[i], resolvedType[i], nil
		}
		e := entries[i]
		switch e.typ {
		case CommitEntry, TreeEntry, BlobEntry, TagEntry:
			resolved[i] = e.data
			resolvedType[i] = e.typ
			return e.data, e.typ, nil
		case OfsDeltaEntry:
			baseIdx, ok := offsets[int(e.ofs)]
			if !ok {
				return nil, 0, fmt.Errorf("pack: ofs-delta base offset %d not found", e.ofs)
			}
			baseBytes, baseType, err := resolve(baseIdx)
			if err != nil {
				return nil, 0, err
			}
			out, err := delta.Decode(baseBytes, e.data)
			if err != nil {
				return nil, 0, err
			}
			resolved[i] = out
			resolvedType[i] = baseType
			if cache != nil {
				cache.Put(hashOf(baseType, out), baseType, out)
			}
			return out, baseType, nil
		case RefDeltaEntry:
			if cache != nil {
				if t, b, ok := cache.Get(e.base); ok {
					out, err := delta.Decode(b, e.data)
					if err != nil {
						return nil, 0, err
					}
					resolved[i] = out
					resolvedType[i] = t
					return out, t, nil
				}
			}
			if store != nil {
				if t, b, ok := store.Get(e.base); ok {
					out, err := delta.Decode(b, e.data)
					if err != nil {
						return nil, 0, err
					}
					et := objectTypeToEntry(t)
					resolved[i] = out
					resolvedType[i] = et
					if cache != nil {
						cache.Put(hashOf(et, out), et, out)
					}
					return out, et, nil
				}
			}
			return nil, 0, errUnresolved
		}
		return nil, 0, fmt.Errorf("pack: unknown entry type %d", e.typ)
	}

	for i := range entries {
		body, typ, err := resolve(i)
		if err == errUnresolved {
			pending = append(pending, i)
			continue
		}
		if err != nil {
			return digest.Zero, err
		}
		h := hashOf(typ, body)
		if err := visit(DecodedObject{Hash: h, Type: typ.ObjectType(), Body: body}); err != nil {
			return digest.Zero, err
		}
	}

	// Second pass: retry each unresolved ref-delta against the cache,
	// which may now hold results of deltas resolved later in the pack,
	// and the store. Decode does not write visited objects to the store,
	// and undeltified pack entries are not cached, so they never serve
	// as ref-delta bases.
	for _, i := range pending {
		body, typ, err := resolve(i)
		if err != nil {
			return digest.Zero, fmt.Errorf("pack: unresolved ref-delta base after second pass: %w", err)
		}
		h := hashOf(typ, body)
		if err := visit(DecodedObject{Hash: h, Type: typ.ObjectType(), Body: body}); err != nil {
			return digest.Zero, err
		}
	}

	return trailer, nil
}

var errUnresolved = fmt.Errorf("pack: ref-delta base not yet resolved")

func hashOf(t EntryType, body []byte) digest.Hash {
	return digest.Compute(t.ObjectType().String(), body)
}

// inflateOne decompresses exactly one zlib stream from the front of b
// and reports how many compressed bytes it consumed, since
// klauspost/compress does not expose that from a one-shot inflate.
func inflateOne(b []byte, declaredSize uint64) ([]byte, int, error) {
	cr := &countingReader{r: bytes.NewReader(b)}
	zr, err := zlib.NewReader(cr)
	if err != nil {
		return nil, 0, fmt.Errorf("pack: zlib open: %w", err)
	}
	defer zr.Close()
	out := make([]byte, 0, declaredSize)
	limited := io.LimitReader(zr, MaxObjectSize+1)
	buf := make([]byte, 32*1024)
	for {
		n, rerr := limited.Read(buf)
		if n > 0 {
			out = append(out, buf[:n]...)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return nil, 0, fmt.Errorf("pack: zlib inflate: %w", rerr)
		}
	}
	if uint64(len(out)) > MaxObjectSize {
		return nil, 0, fmt.Errorf("pack: inflated object exceeds size limit")
	}
	if uint64(len(out)) != declaredSize {
		return nil, 0, fmt.Errorf("pack: inflated size %d != declared %d", len(out), declaredSize)
	}
	return out, cr.n, nil
}

type countingReader struct {
	r *bytes.Reader
	n int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += n
	return n, err
}

// Package pack implements the pack file codec of spec §4.D/§6.3:
// in-memory decode with offset/ref-delta resolution and a two-pass
// fixup for cross-pack ref-deltas, plus a windowed delta-compressing
// encoder.
//
// Grounded on the shape of modules/zeta/backend/pack/packfile.go in
// the teacher (big-endian 12-byte header, offset-indexed entries) —
// adapted from that teacher's custom envelope to Git's real pack
// format (zlib payloads, ofs/ref-delta types, checksum trailer).
package pack

import (
	"encoding/binary"
	"fmt"

	"github.com/mega-forge/mega-core/internal/digest"
	"github.com/mega-forge/mega-core/internal/object"
)

const magic = "PACK"
const version = 2

// EntryType is the pack entry type tag (spec §4.D).
type EntryType int8

const (
	_ EntryType = iota
	CommitEntry
	TreeEntry
	BlobEntry
	TagEntry
	_ // 5 reserved
	OfsDeltaEntry
	RefDeltaEntry
)

func (t EntryType) ObjectType() object.Type {
	switch t {
	case CommitEntry:
		return object.CommitObject
	case TreeEntry:
		return object.TreeObject
	case BlobEntry:
		return object.BlobObject
	case TagEntry:
		return object.TagObject
	default:
		return object.InvalidObject
	}
}

func objectTypeToEntry(t object.Type) EntryType {
	switch t {
	case object.CommitObject:
		return CommitEntry
	case object.TreeObject:
		return TreeEntry
	case object.BlobObject:
		return BlobEntry
	case object.TagObject:
		return TagEntry
	default:
		panic("pack: unsupported object type")
	}
}

// writeHeader writes the 12-byte "PACK"+version+count prefix.
func writeHeader(buf []byte, count uint32) []byte {
	buf = append(buf, magic...)
	var v [4]byte
	binary.BigEndian.PutUint32(v[:], version)
	buf = append(buf, v[:]...)
	var c [4]byte
	binary.BigEndian.PutUint32(c[:], count)
	buf = append(buf, c[:]...)
	return buf
}

func readHeader(b []byte) (count uint32, rest []byte, err error) {
	if len(b) < 12 {
		return 0, nil, fmt.Errorf("pack: truncated header")
	}
	if string(b[:4]) != magic {
		return 0, nil, fmt.Errorf("pack: bad magic %q", b[:4])
	}
	v := binary.BigEndian.Uint32(b[4:8])
	if v != version {
		return 0, nil, fmt.Errorf("pack: unsupported version %d", v)
	}
	count = binary.BigEndian.Uint32(b[8:12])
	return count, b[12:], nil
}

// writeTypeSizeHeader encodes the type-and-size variable header (spec
// §4.D): byte0 has MSB=continuation, bits4..6=type, bits0..3=low size
// bits; subsequent bytes carry higher size bits 7 at a time.
func writeTypeSizeHeader(buf []byte, t EntryType, size uint64) []byte {
	b0 := byte(t) << 4
	b0 |= byte(size & 0x0f)
	size >>= 4
	if size != 0 {
		b0 |= 0x80
	}
	buf = append(buf, b0)
	for size != 0 {
		b := byte(size & 0x7f)
		size >>= 7
		if size != 0 {
			b |= 0x80
		}
		buf = append(buf, b)
	}
	return buf
}

func readTypeSizeHeader(b []byte) (t EntryType, size uint64, consumed int, err error) {
	if len(b) == 0 {
		return 0, 0, 0, fmt.Errorf("pack: truncated entry header")
	}
	b0 := b[0]
	t = EntryType((b0 >> 4) & 0x07)
	size = uint64(b0 & 0x0f)
	shift := uint(4)
	i := 1
	for b0&0x80 != 0 {
		if i >= len(b) {
			return 0, 0, 0, fmt.Errorf("pack: truncated entry size")
		}
		b0 = b[i]
		size |= uint64(b0&0x7f) << shift
		shift += 7
		i++
	}
	return t, size, i, nil
}

// writeOfsDeltaOffset encodes a negative offset as big-endian 7-bit
// groups with a +1 carry per additional byte (Git's varint-with-carry
// scheme, spec §4.D).
func writeOfsDeltaOffset(buf []byte, off uint64) []byte {
	var stack []byte
	stack = append(stack, byte(off&0x7f))
	off >>= 7
	for off != 0 {
		off--
		stack = append(stack, byte(off&0x7f)|0x80)
		off >>= 7
	}
	for i := len(stack) - 1; i >= 0; i-- {
		buf = append(buf, stack[i])
	}
	return buf
}

func readOfsDeltaOffset(b []byte) (off uint64, consumed int, err error) {
	if len(b) == 0 {
		return 0, 0, fmt.Errorf("pack: truncated ofs-delta offset")
	}
	c := b[0]
	off = uint64(c & 0x7f)
	i := 1
	for c&0x80 != 0 {
		if i >= len(b) {
			return 0, 0, fmt.Errorf("pack: truncated ofs-delta offset")
		}
		c = b[i]
		off = ((off + 1) << 7) | uint64(c&0x7f)
		i++
	}
	return off, i, nil
}

// Checksum is the running digest over all preceding pack bytes, used
// both while writing the trailer and while verifying it during decode.
type Checksum struct {
	h *digest.Hasher
}

func NewChecksum() *Checksum {
	return &Checksum{h: digest.NewRawHasher()}
}

func (c *Checksum) Write(p []byte) {
	_, _ = c.h.Write(p)
}

func (c *Checksum) Sum() digest.Hash {
	return c.h.Sum()
}

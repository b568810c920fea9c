package pack

import (
	"bytes"
	"fmt"

	"github.com/klauspost/compress/zlib"

	"github.com/mega-forge/mega-core/internal/delta"
	"github.com/mega-forge/mega-core/internal/digest"
	"github.com/mega-forge/mega-core/internal/object"
)

// EncodeInput is one object offered to the encoder, in the caller's
// traversal order.
type EncodeInput struct {
	Hash digest.Hash
	Type object.Type
	Body []byte
}

// EncodeOptions configures the windowed delta search (spec §4.D,
// §6.6 pack.encode.window_entries / pack.encode.delta_threshold).
type EncodeOptions struct {
	Window         int // W, default 20
	DeltaThreshold float64
}

func (o EncodeOptions) withDefaults() EncodeOptions {
	if o.Window <= 0 {
		o.Window = 20
	}
	if o.DeltaThreshold <= 0 {
		o.DeltaThreshold = 0.5
	}
	return o
}

// Encode writes objects as a single in-memory pack. For each object,
// it searches up to Window preceding same-type objects for the best
// delta base, using it only if the ratio exceeds DeltaThreshold;
// otherwise the object is stored undeltified. Undeltified commits and
// trees are written first so first-clone packs index well client-side.
func Encode(objs []EncodeInput, opts EncodeOptions) ([]byte, error) {
	opts = opts.withDefaults()
	ordered := reorderForFirstClone(objs)

	var out []byte
	out = writeHeader(out, uint32(len(ordered)))
	sum := NewChecksum()
	sum.Write(out)

	offsetOf := make(map[digest.Hash]int, len(ordered))
	lastOfType := make(map[object.Type][]int) // indices into `ordered`, most recent last

	for i, o := range ordered {
		entryStart := len(out)
		offsetOf[o.Hash] = entryStart

		var entryBytes []byte
		entryType := objectTypeToEntry(o.Type)
		payload := o.Body
		deltaBaseOffset := -1

		candidates := lastOfType[o.Type]
		start := 0
		if len(candidates) > opts.Window {
			start = len(candidates) - opts.Window
		}
		bestRatio := 0.0
		var bestDelta delta.Result
		bestBaseIdx := -1
		if o.Type == object.CommitObject || o.Type == object.TreeObject {
			start = len(candidates)
		}
		for _, ci := range candidates[start:] {
			res := delta.Encode(ordered[ci].Body, o.Body)
			if res.Ratio() > bestRatio {
				bestRatio = res.Ratio()
				bestDelta = res
				bestBaseIdx = ci
			}
		}
		if bestBaseIdx >= 0 && bestRatio > opts.DeltaThreshold {
			entryType = OfsDeltaEntry
			payload = bestDelta.Bytes
			deltaBaseOffset = offsetOf[ordered[bestBaseIdx].Hash]
		}

		entryBytes = writeTypeSizeHeader(entryBytes, entryType, uint64(len(payload)))
		if entryType == OfsDeltaEntry {
			entryBytes = writeOfsDeltaOffset(entryBytes, uint64(entryStart-deltaBaseOffset))
		}

		compressed, err := zlibCompress(payload)
		if err != nil {
			return nil, fmt.Errorf("pack: compress object %s: %w", o.Hash, err)
		}
		entryBytes = append(entryBytes, compressed...)

		out = append(out, entryBytes...)
		sum.Write(entryBytes)

		lastOfType[o.Type] = append(lastOfType[o.Type], i)
	}

	trailer := sum.Sum()
	out = append(out, trailer.Bytes()...)
	return out, nil
}

// reorderForFirstClone places commits, then trees, then everything
// else, preserving relative order within each group (spec §4.D).
func reorderForFirstClone(objs []EncodeInput) []EncodeInput {
	var commits, trees, rest []EncodeInput
	for _, o := range objs {
		switch o.Type {
		case object.CommitObject:
			commits = append(commits, o)
		case object.TreeObject:
			trees = append(trees, o)
		default:
			rest = append(rest, o)
		}
	}
	out := make([]EncodeInput, 0, len(objs))
	out = append(out, commits...)
	out = append(out, trees...)
	out = append(out, rest...)
	return out
}

func zlibCompress(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(b); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

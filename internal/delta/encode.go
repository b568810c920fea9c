package delta

const blockSize = 16

// Result is an encoded delta plus the compression-quality metric used
// as the pack encoder's delta gate (spec §4.C: same_bytes / new_size).
type Result struct {
	Bytes     []byte
	SameBytes uint64
	NewSize   uint64
}

// Ratio reports same_bytes / new_size, used against the 0.5 threshold.
func (r Result) Ratio() float64 {
	if r.NewSize == 0 {
		return 0
	}
	return float64(r.SameBytes) / float64(r.NewSize)
}

// Encode builds a delta turning old into new. The matcher indexes
// fixed-size blocks of old and greedily extends matches found while
// scanning new in order — a block-hash approach in the family of
// rsync/xdelta, used here because a full Patience/Myers LCS over
// arbitrary-length pack objects is not bounded well enough for a
// server-side encoder with a per-object time budget.
func Encode(old, new []byte) Result {
	index := indexBlocks(old)

	var instrs []byte
	var literal []byte
	var sameBytes uint64

	flushLiteral := func() {
		if len(literal) > 0 {
			instrs = encodeData(instrs, literal)
			literal = nil
		}
	}

	i := 0
	for i < len(new) {
		if i+blockSize <= len(new) {
			key := string(new[i : i+blockSize])
			if candidates, ok := index[key]; ok {
				start, length := bestExtension(old, new, candidates, i)
				if length >= blockSize {
					flushLiteral()
					// A Copy instruction's length field is three bytes
					// wide (maxCopyLength); a match longer than that is
					// split across consecutive Copy instructions rather
					// than truncated.
					chunkStart, remaining := start, length
					for remaining > 0 {
						chunkLen := remaining
						if chunkLen > maxCopyLength {
							chunkLen = maxCopyLength
						}
						instrs = encodeCopy(instrs, uint64(chunkStart), uint64(chunkLen))
						sameBytes += uint64(chunkLen)
						chunkStart += chunkLen
						remaining -= chunkLen
					}
					i += length
					continue
				}
			}
		}
		literal = append(literal, new[i])
		i++
	}
	flushLiteral()

	header := putSizeVarint(nil, uint64(len(old)))
	header = putSizeVarint(header, uint64(len(new)))

	return Result{
		Bytes:     append(header, instrs...),
		SameBytes: sameBytes,
		NewSize:   uint64(len(new)),
	}
}

func indexBlocks(old []byte) map[string][]int {
	index := make(map[string][]int)
	for i := 0; i+blockSize <= len(old); i += blockSize {
		key := string(old[i : i+blockSize])
		index[key] = append(index[key], i)
	}
	return index
}

// bestExtension extends every candidate match forward only (no
// backward extension into the current literal run) and returns the
// longest.
func bestExtension(old, new []byte, candidates []int, newPos int) (start, length int) {
	best := -1
	bestLen := 0
	for _, c := range candidates {
		l := 0
		for c+l < len(old) && newPos+l < len(new) && old[c+l] == new[newPos+l] {
			l++
		}
		if l > bestLen {
			bestLen = l
			best = c
		}
	}
	if best < 0 {
		return 0, 0
	}
	return best, bestLen
}

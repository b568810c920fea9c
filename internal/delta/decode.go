package delta

import "fmt"

// Decode reverses an instruction stream against old, verifying that
// every copy lies within old's bounds and that the reconstructed
// length matches the declared new_size (spec §4.C).
func Decode(old, encoded []byte) ([]byte, error) {
	oldSize, n, ok := readSizeVarint(encoded)
	if !ok {
		return nil, fmt.Errorf("delta: truncated old_size header")
	}
	encoded = encoded[n:]
	newSize, n, ok := readSizeVarint(encoded)
	if !ok {
		return nil, fmt.Errorf("delta: truncated new_size header")
	}
	encoded = encoded[n:]

	if uint64(len(old)) != oldSize {
		return nil, fmt.Errorf("delta: old_size mismatch: header says %d, base is %d bytes", oldSize, len(old))
	}

	out := make([]byte, 0, newSize)
	for len(encoded) > 0 {
		b := encoded[0]
		if b&0x80 != 0 {
			op, consumed, err := decodeCopy(encoded)
			if err != nil {
				return nil, err
			}
			if op.offset+op.length > uint64(len(old)) {
				return nil, fmt.Errorf("delta: copy [%d,%d) out of bounds for old_size %d", op.offset, op.offset+op.length, len(old))
			}
			out = append(out, old[op.offset:op.offset+op.length]...)
			encoded = encoded[consumed:]
			continue
		}
		length := int(b & 0x7f)
		if length == 0 {
			return nil, fmt.Errorf("delta: zero-length data instruction")
		}
		if len(encoded) < 1+length {
			return nil, fmt.Errorf("delta: truncated data instruction")
		}
		out = append(out, encoded[1:1+length]...)
		encoded = encoded[1+length:]
	}

	if uint64(len(out)) != newSize {
		return nil, fmt.Errorf("delta: reconstructed %d bytes, header declared new_size %d", len(out), newSize)
	}
	return out, nil
}

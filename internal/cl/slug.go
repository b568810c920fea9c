package cl

import (
	"github.com/google/uuid"
)

const base62Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// NewLink returns an 8-character base62 slug, used both as a CL's
// public link and as a buck session id (spec §4.I, §4.K).
//
// Grounded on modules/strengthen/rid.go's role as the teacher's
// random-id generator, swapped to google/uuid (already pulled in by
// the rest of the pack) plus a base62 encode instead of the teacher's
// hex UUID rendering, since spec §4.I's link is explicitly short and
// URL-friendly rather than a full UUID.
func NewLink() string {
	id := uuid.New()
	return base62Encode(id[:])[:8]
}

func base62Encode(b []byte) string {
	out := make([]byte, 0, len(b)*2)
	var n uint64
	for i := 0; i < len(b); i += 8 {
		n = 0
		end := i + 8
		if end > len(b) {
			end = len(b)
		}
		for _, c := range b[i:end] {
			n = n<<8 | uint64(c)
		}
		for n > 0 {
			out = append(out, base62Alphabet[n%62])
			n /= 62
		}
	}
	for len(out) < 8 {
		out = append(out, base62Alphabet[0])
	}
	return string(out)
}

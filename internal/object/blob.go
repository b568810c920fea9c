package object

// Blob is an opaque byte sequence (spec §3.1). Unlike Tree/Commit/Tag it
// has no internal structure to parse — the canonical bytes are the
// content itself.
type Blob struct {
	Content []byte
}

func (b *Blob) Type() Type     { return BlobObject }
func (b *Blob) Encode() []byte { return b.Content }

// DecodeBlob never fails: any byte sequence is a valid blob body.
func DecodeBlob(body []byte) *Blob {
	return &Blob{Content: body}
}

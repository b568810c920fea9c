// Package store implements the two-tier object store of spec §4.E: a
// relational metadata tier (digest, type, size, blob location,
// timestamps) and a pluggable bytes tier addressed by
// namespace/d[0..2]/d[2..4]/d[4..6]/d[6..].
package store

import (
	"context"
	"io"
	"time"
)

// BytesTier is the uniform trait spec §4.E requires bytes-tier
// backends to implement, regardless of whether they are local
// filesystem or an S3-compatible/GCS object store.
type BytesTier interface {
	PutStream(ctx context.Context, key string, r io.Reader, size int64) error
	GetStream(ctx context.Context, key string) (io.ReadCloser, error)
	GetRangeStream(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error)
	SignedURL(ctx context.Context, key string, method string, ttl time.Duration) (string, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}

// BlobKey computes the namespace/d[0..2]/d[2..4]/d[4..6]/d[6..]
// sharded path for a hex digest string (spec §4.E).
func BlobKey(namespace, hexDigest string) string {
	if len(hexDigest) < 6 {
		return namespace + "/" + hexDigest
	}
	return namespace + "/" + hexDigest[0:2] + "/" + hexDigest[2:4] + "/" + hexDigest[4:6] + "/" + hexDigest[6:]
}

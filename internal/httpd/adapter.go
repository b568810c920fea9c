package httpd

import (
	"context"

	"github.com/mega-forge/mega-core/internal/protocol"
	"github.com/mega-forge/mega-core/internal/store"
)

// objectWriter adapts *store.ObjectStore to protocol.ObjectWriter: the
// store's PutBatch returns the assigned hashes (receive-pack has no use
// for them), while protocol.ObjectWriter's PutBatch returns only an
// error.
type objectWriter struct {
	*store.ObjectStore
}

func (o objectWriter) PutBatch(ctx context.Context, entries []protocol.StoreEntry) error {
	putEntries := make([]store.PutEntry, len(entries))
	for i, e := range entries {
		putEntries[i] = store.PutEntry{Type: e.Type, Body: e.Body}
	}
	_, err := o.ObjectStore.PutBatch(ctx, putEntries)
	return err
}

var _ protocol.ObjectWriter = objectWriter{}
var _ protocol.ObjectGetter = (*store.ObjectStore)(nil)

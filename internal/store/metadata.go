package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/mega-forge/mega-core/internal/digest"
	"github.com/mega-forge/mega-core/internal/object"
)

// MetadataRow is one object's row in the metadata tier: digest, type,
// size, and where its bytes live (spec §4.E).
type MetadataRow struct {
	Hash      digest.Hash
	Type      object.Type
	Size      int64
	BlobKey   string
	CreatedAt time.Time
}

// MetadataDB is the relational metadata tier, grounded on
// pkg/serve/odb/database.go's MetadataDB: a thin wrapper around
// *sql.DB using ON DUPLICATE KEY UPDATE for idempotent batch inserts,
// chunked to stay under MySQL's placeholder limits.
type MetadataDB struct {
	db *sql.DB
}

func NewMetadataDB(db *sql.DB) *MetadataDB {
	return &MetadataDB{db: db}
}

const metadataBatchSize = 500

// Put inserts one row, tolerating a pre-existing row for the same
// digest (put is idempotent per spec §4.E).
func (m *MetadataDB) Put(ctx context.Context, row MetadataRow) error {
	_, err := m.db.ExecContext(ctx,
		"insert into objects(hash, type, size, blob_key, created_at) values (?, ?, ?, ?, ?) on duplicate key update hash = hash",
		row.Hash.String(), int8(row.Type), row.Size, row.BlobKey, row.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: metadata put: %w", err)
	}
	return nil
}

// PutBatch inserts rows atomically per chunk of metadataBatchSize; a
// failing chunk returns an error with no observable effect on rows in
// chunks that were never attempted or were rolled back (spec §4.E).
func (m *MetadataDB) PutBatch(ctx context.Context, rows []MetadataRow) error {
	for len(rows) > 0 {
		n := min(len(rows), metadataBatchSize)
		if err := m.putChunk(ctx, rows[:n]); err != nil {
			return err
		}
		rows = rows[n:]
	}
	return nil
}

func (m *MetadataDB) putChunk(ctx context.Context, rows []MetadataRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: metadata tx: %w", err)
	}
	var sb strings.Builder
	sb.WriteString("insert into objects(hash, type, size, blob_key, created_at) values (?, ?, ?, ?, ?)")
	sb.WriteString(strings.Repeat(", (?, ?, ?, ?, ?)", len(rows)-1))
	sb.WriteString(" on duplicate key update hash = hash")

	args := make([]any, 0, len(rows)*5)
	for _, r := range rows {
		args = append(args, r.Hash.String(), int8(r.Type), r.Size, r.BlobKey, r.CreatedAt)
	}
	if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("store: metadata batch insert: %w", err)
	}
	return tx.Commit()
}

func (m *MetadataDB) Get(ctx context.Context, h digest.Hash) (MetadataRow, bool, error) {
	var row MetadataRow
	var typ int8
	var hexHash string
	err := m.db.QueryRowContext(ctx,
		"select hash, type, size, blob_key, created_at from objects where hash = ?", h.String(),
	).Scan(&hexHash, &typ, &row.Size, &row.BlobKey, &row.CreatedAt)
	if err == sql.ErrNoRows {
		return MetadataRow{}, false, nil
	}
	if err != nil {
		return MetadataRow{}, false, fmt.Errorf("store: metadata get: %w", err)
	}
	parsed, err := digest.FromHexAlgorithm(digest.Active(), hexHash)
	if err != nil {
		return MetadataRow{}, false, err
	}
	row.Hash = parsed
	row.Type = object.Type(typ)
	return row, true, nil
}

func (m *MetadataDB) Exists(ctx context.Context, h digest.Hash) (bool, error) {
	var one int
	err := m.db.QueryRowContext(ctx, "select 1 from objects where hash = ?", h.String()).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

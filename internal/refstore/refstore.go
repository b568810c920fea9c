// Package refstore implements the ref store of spec §4.F: CAS updates
// keyed by (absolute_path, ref_name), with per-key serialization and
// a per-path HEAD pointer.
//
// Grounded on pkg/serve/database/{reference,update}.go's pattern of
// doing the CAS check inside a transaction via tx.ExecContext plus
// RowsAffected()==0 detection, generalized from the teacher's
// branch/tag-specific tables to a single (path, name) keyspace per
// spec §4.F's ref model (monorepo refs are not limited to
// branches/tags the way the teacher's per-repo refs are).
package refstore

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/mega-forge/mega-core/internal/digest"
	"github.com/mega-forge/mega-core/internal/mega"
)

// Ref is one (path, name) -> digest binding.
type Ref struct {
	Path string
	Name string
	Hash digest.Hash
}

// Store is the ref store surface from spec §4.F.
type Store struct {
	db *sql.DB

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(db *sql.DB) *Store {
	return &Store{db: db, locks: make(map[string]*sync.Mutex)}
}

func (s *Store) keyLock(path, name string) *sync.Mutex {
	key := path + "\x00" + name
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

func (s *Store) Read(ctx context.Context, path, name string) (digest.Hash, bool, error) {
	var hex string
	err := s.db.QueryRowContext(ctx, "select hash from refs where path = ? and name = ?", path, name).Scan(&hex)
	if err == sql.ErrNoRows {
		return digest.Zero, false, nil
	}
	if err != nil {
		return digest.Zero, false, &mega.TransientStorage{Cause: err}
	}
	h, err := digest.FromHexAlgorithm(digest.Active(), hex)
	if err != nil {
		return digest.Zero, false, &mega.MalformedObject{Reason: err.Error()}
	}
	return h, true, nil
}

func (s *Store) List(ctx context.Context, pathPrefix string) ([]Ref, error) {
	rows, err := s.db.QueryContext(ctx, "select path, name, hash from refs where path like ? order by path, name", pathPrefix+"%")
	if err != nil {
		return nil, &mega.TransientStorage{Cause: err}
	}
	defer rows.Close()
	var out []Ref
	for rows.Next() {
		var r Ref
		var hex string
		if err := rows.Scan(&r.Path, &r.Name, &hex); err != nil {
			return nil, &mega.TransientStorage{Cause: err}
		}
		h, err := digest.FromHexAlgorithm(digest.Active(), hex)
		if err != nil {
			return nil, &mega.MalformedObject{Reason: err.Error()}
		}
		r.Hash = h
		out = append(out, r)
	}
	return out, rows.Err()
}

// Update performs a CAS on (path, name): expected == nil means
// "create" (the ref must not already exist); newHash == nil means
// "delete" (per spec §4.F). Updates on the same key serialize via a
// per-key mutex; cross-key updates proceed independently.
func (s *Store) Update(ctx context.Context, path, name string, expected, newHash *digest.Hash) error {
	lock := s.keyLock(path, name)
	lock.Lock()
	defer lock.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &mega.TransientStorage{Cause: err}
	}

	var current string
	err = tx.QueryRowContext(ctx, "select hash from refs where path = ? and name = ?", path, name).Scan(&current)
	switch {
	case err == sql.ErrNoRows:
		if expected != nil {
			_ = tx.Rollback()
			return &mega.RefConflict{Path: path, Name: name}
		}
		if newHash == nil {
			_ = tx.Rollback()
			return fmt.Errorf("refstore: cannot delete non-existent ref %s %s", path, name)
		}
		res, err := tx.ExecContext(ctx, "insert into refs(path, name, hash) values (?, ?, ?)", path, name, newHash.String())
		if err != nil {
			_ = tx.Rollback()
			return &mega.TransientStorage{Cause: err}
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			_ = tx.Rollback()
			return &mega.RefConflict{Path: path, Name: name}
		}
		return tx.Commit()
	case err != nil:
		_ = tx.Rollback()
		return &mega.TransientStorage{Cause: err}
	}

	if expected == nil || current != expected.String() {
		_ = tx.Rollback()
		return &mega.RefConflict{Path: path, Name: name}
	}

	if newHash == nil {
		res, err := tx.ExecContext(ctx, "delete from refs where path = ? and name = ? and hash = ?", path, name, current)
		if err != nil {
			_ = tx.Rollback()
			return &mega.TransientStorage{Cause: err}
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			_ = tx.Rollback()
			return &mega.RefConflict{Path: path, Name: name}
		}
		return tx.Commit()
	}

	res, err := tx.ExecContext(ctx, "update refs set hash = ? where path = ? and name = ? and hash = ?", newHash.String(), path, name, current)
	if err != nil {
		_ = tx.Rollback()
		return &mega.TransientStorage{Cause: err}
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		_ = tx.Rollback()
		return &mega.RefConflict{Path: path, Name: name}
	}
	return tx.Commit()
}

// SetHead designates the default branch read by info/refs (spec
// §4.F).
func (s *Store) SetHead(ctx context.Context, path, refName string) error {
	_, err := s.db.ExecContext(ctx,
		"insert into ref_heads(path, ref_name) values (?, ?) on duplicate key update ref_name = values(ref_name)",
		path, refName)
	if err != nil {
		return &mega.TransientStorage{Cause: err}
	}
	return nil
}

func (s *Store) Head(ctx context.Context, path string) (string, bool, error) {
	var refName string
	err := s.db.QueryRowContext(ctx, "select ref_name from ref_heads where path = ?", path).Scan(&refName)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, &mega.TransientStorage{Cause: err}
	}
	return refName, true, nil
}

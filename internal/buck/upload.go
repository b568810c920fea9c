package buck

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"

	"golang.org/x/sync/semaphore"

	"github.com/mega-forge/mega-core/internal/digest"
	"github.com/mega-forge/mega-core/internal/mega"
	"github.com/mega-forge/mega-core/internal/object"
	"github.com/mega-forge/mega-core/internal/store"
)

// Limits configures the two-tier semaphore of spec §4.K "File upload"
// step 1: a global concurrency permit, plus a smaller pool reserved
// for files over LargeFileThreshold.
type Limits struct {
	GlobalConcurrency int64
	LargeConcurrency  int64
	LargeFileThreshold int64
}

// Uploader stores session files through the object store under a
// bounded concurrency budget.
type Uploader struct {
	store   *Store
	objects *store.ObjectStore
	global  *semaphore.Weighted
	large   *semaphore.Weighted
	limits  Limits
}

func NewUploader(s *Store, objects *store.ObjectStore, limits Limits) *Uploader {
	return &Uploader{
		store:   s,
		objects: objects,
		global:  semaphore.NewWeighted(limits.GlobalConcurrency),
		large:   semaphore.NewWeighted(limits.LargeConcurrency),
		limits:  limits,
	}
}

// UploadResult mirrors FileUploadResponse.
type UploadResult struct {
	Path         string
	UploadedSize int64
	Verified     *bool
}

// UploadFile implements spec §4.K "File upload": acquire permits, read
// the whole body into memory (at most size+1 bytes), compute its
// digest, verify against an optional client-declared hash, store the
// blob through the object store, then mark the session file uploaded.
// The body is not streamed to the bytes tier; the digest is computed
// only after the full body has been read. Uploads for the same path
// are idempotent: the last successful call wins.
func (u *Uploader) UploadFile(ctx context.Context, sess *Session, path string, size int64, declaredHash *digest.Hash, body io.Reader) (UploadResult, error) {
	if err := u.global.Acquire(ctx, 1); err != nil {
		return UploadResult{}, fmt.Errorf("buck: upload: %w", err)
	}
	defer u.global.Release(1)

	if size > u.limits.LargeFileThreshold {
		if err := u.large.Acquire(ctx, 1); err != nil {
			return UploadResult{}, fmt.Errorf("buck: upload: %w", err)
		}
		defer u.large.Release(1)
	}

	limited := io.LimitReader(body, size+1)
	buf := &bytes.Buffer{}
	n, err := io.Copy(buf, limited)
	if err != nil {
		return UploadResult{}, fmt.Errorf("buck: upload: read body: %w", err)
	}
	if n != size {
		return UploadResult{}, &mega.QuotaExceeded{Reason: fmt.Sprintf("declared size %d does not match received %d bytes", size, n)}
	}

	content := buf.Bytes()
	computed := digest.Compute(object.BlobObject.String(), content)

	var verified *bool
	if declaredHash != nil {
		ok := computed == *declaredHash
		verified = &ok
		if !ok {
			return UploadResult{}, fmt.Errorf("buck: upload: hash mismatch for %q: declared %s, computed %s", path, declaredHash, computed)
		}
	}

	if _, err := u.objects.Put(ctx, object.BlobObject, content); err != nil {
		return UploadResult{}, err
	}

	if err := u.store.markFileUploaded(ctx, sess.ID, path, computed); err != nil {
		return UploadResult{}, err
	}

	return UploadResult{Path: path, UploadedSize: n, Verified: verified}, nil
}

// markFileUploaded records the uploaded blob digest against the
// pending session file row (spec §4.K step 4).
func (s *Store) markFileUploaded(ctx context.Context, sessionID, path string, blobDigest digest.Hash) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE buck_session_files SET upload_status = 'uploaded', blob_digest = ?
		 WHERE session_id = ? AND file_path = ?`,
		blobDigest.String(), sessionID, path)
	if err != nil {
		return fmt.Errorf("buck: mark uploaded: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("buck: mark uploaded: no pending file %q in session %q", path, sessionID)
	}
	return nil
}

// CountPending returns the number of session files still awaiting
// upload (spec §4.K "Complete" step 1).
func (s *Store) CountPending(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM buck_session_files WHERE upload_status = 'pending'`).Scan(&n); err != nil {
		return 0, fmt.Errorf("buck: count pending: %w", err)
	}
	return n, nil
}

// sessionFile is one row of buck_session_files.
type sessionFile struct {
	Path       string
	Mode       object.FileMode
	BlobDigest digest.Hash
	Unchanged  bool
}

// UploadedFiles returns the files a session has fully uploaded or left
// unchanged, used by Complete's tree-build step.
func (s *Store) UploadedFiles(ctx context.Context, sessionID string) ([]sessionFile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT file_path, file_mode, blob_digest, file_hash, upload_status FROM buck_session_files
		 WHERE session_id = ? AND upload_status IN ('uploaded', 'unchanged')`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("buck: uploaded files: %w", err)
	}
	defer rows.Close()

	var out []sessionFile
	for rows.Next() {
		var f sessionFile
		var modeStr, fileHash string
		var blobDigest sql.NullString
		var status string
		if err := rows.Scan(&f.Path, &modeStr, &blobDigest, &fileHash, &status); err != nil {
			return nil, fmt.Errorf("buck: uploaded files: %w", err)
		}
		mode, ok := object.ParseFileMode(modeStr)
		if !ok {
			mode = DefaultMode
		}
		f.Mode = mode
		f.Unchanged = status == "unchanged"
		// unchanged files were never re-uploaded, so their digest is
		// the manifest-declared hash, already present in the object
		// store as part of the tree being diffed against.
		digestHex := fileHash
		if blobDigest.Valid {
			digestHex = blobDigest.String
		}
		h, err := digest.FromHex(digestHex)
		if err != nil {
			return nil, fmt.Errorf("buck: uploaded files: bad digest for %q: %w", f.Path, err)
		}
		f.BlobDigest = h
		out = append(out, f)
	}
	return out, rows.Err()
}

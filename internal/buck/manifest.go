package buck

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/mega-forge/mega-core/internal/digest"
	"github.com/mega-forge/mega-core/internal/mega"
	"github.com/mega-forge/mega-core/internal/object"
	"github.com/mega-forge/mega-core/internal/pathresolve"
)

// DefaultMode is applied to a manifest entry with no explicit mode
// (spec §D.4, adopted verbatim from ceres/src/model/buck.rs's
// default_mode()).
const DefaultMode = object.ModeFile

// UploadReason classifies a manifest entry against the live tree.
type UploadReason string

const (
	ReasonNew       UploadReason = "New"
	ReasonModified  UploadReason = "Modified"
	ReasonUnchanged UploadReason = "Unchanged"
)

// ManifestEntry is one client-submitted file descriptor (spec §4.K
// "Manifest upload" step: path, size, hash, mode).
type ManifestEntry struct {
	Path string
	Size int64
	Hash digest.Hash
	Mode object.FileMode
}

// ToUpload is one entry from the diffed manifest that the client must
// still push bytes for.
type ToUpload struct {
	Path   string
	Reason UploadReason
}

// ParseManifestHash parses "sha1:<40hex>" / "sha256:<64hex>" against
// the process-pinned digest algorithm (spec §4.K step 2).
func ParseManifestHash(s string) (digest.Hash, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return digest.Zero, fmt.Errorf("buck: malformed hash %q, expected algorithm:hex", s)
	}
	algo, hex := strings.ToLower(parts[0]), strings.ToLower(parts[1])
	var want digest.Algorithm
	switch algo {
	case "sha1":
		want = digest.SHA1
	case "sha256":
		want = digest.SHA256
	default:
		return digest.Zero, fmt.Errorf("buck: unsupported hash algorithm %q", algo)
	}
	if want != digest.Active() {
		return digest.Zero, fmt.Errorf("buck: hash algorithm %q does not match process digest choice", algo)
	}
	return digest.FromHexAlgorithm(want, hex)
}

// ValidatePath enforces spec §4.K step 1: no "..", no leading "/",
// valid UTF-8 (guaranteed by Go's string type once decoded), bounded
// length.
func ValidatePath(p string) error {
	const maxLen = 4096
	if p == "" {
		return fmt.Errorf("buck: empty path")
	}
	if len(p) > maxLen {
		return &mega.QuotaExceeded{Reason: fmt.Sprintf("path %q exceeds %d bytes", p, maxLen)}
	}
	if strings.HasPrefix(p, "/") {
		return fmt.Errorf("buck: absolute path %q forbidden", p)
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return fmt.Errorf("buck: path %q contains '..'", p)
		}
	}
	return nil
}

// DiffManifest classifies every entry against the tree at
// fromCommit (spec §4.K step 3) and inserts SessionFile rows for all
// of them, returning the subset the client still needs to upload.
func (s *Store) DiffManifest(ctx context.Context, sess *Session, objects pathresolve.ObjectGetter, entries []ManifestEntry) ([]ToUpload, error) {
	var toUpload []ToUpload
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("buck: diff manifest: %w", err)
	}
	defer tx.Rollback()

	for _, e := range entries {
		if err := ValidatePath(e.Path); err != nil {
			return nil, err
		}
		reason, err := classify(ctx, objects, sess.FromCommit, e)
		if err != nil {
			return nil, err
		}
		status := "pending"
		if reason == ReasonUnchanged {
			status = "unchanged"
		}
		var uploadReason sql.NullString
		if reason != ReasonUnchanged {
			uploadReason = sql.NullString{String: string(reason), Valid: true}
			toUpload = append(toUpload, ToUpload{Path: e.Path, Reason: reason})
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO buck_session_files (session_id, file_path, file_size, file_hash, file_mode, upload_status, upload_reason)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			sess.ID, e.Path, e.Size, e.Hash.String(), e.Mode.String(), status, uploadReason); err != nil {
			return nil, fmt.Errorf("buck: diff manifest: insert %q: %w", e.Path, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("buck: diff manifest: %w", err)
	}
	return toUpload, nil
}

func classify(ctx context.Context, objects pathresolve.ObjectGetter, fromCommit digest.Hash, e ManifestEntry) (UploadReason, error) {
	_, body, ok, err := objects.Get(ctx, fromCommit)
	if err != nil {
		return "", err
	}
	if !ok {
		return ReasonNew, nil
	}
	commit, err := object.DecodeCommit(body)
	if err != nil {
		return "", &mega.MalformedObject{Reason: err.Error()}
	}
	currentHash, err := pathTreeLookup(ctx, objects, commit.Tree, strings.Split(e.Path, "/"))
	if err != nil {
		return "", err
	}
	if currentHash.IsZero() {
		return ReasonNew, nil
	}
	if currentHash == e.Hash {
		return ReasonUnchanged, nil
	}
	return ReasonModified, nil
}

// pathTreeLookup walks segments from a root tree digest, returning the
// zero hash if any segment is absent.
func pathTreeLookup(ctx context.Context, objects pathresolve.ObjectGetter, root digest.Hash, segments []string) (digest.Hash, error) {
	current := root
	for i, seg := range segments {
		_, body, ok, err := objects.Get(ctx, current)
		if err != nil {
			return digest.Zero, err
		}
		if !ok {
			return digest.Zero, nil
		}
		tree, err := object.DecodeTree(body)
		if err != nil {
			return digest.Zero, &mega.MalformedObject{Reason: err.Error()}
		}
		found := false
		for _, entry := range tree.Entries {
			if entry.Name == seg {
				current = entry.Hash
				found = true
				break
			}
		}
		if !found {
			return digest.Zero, nil
		}
		if i == len(segments)-1 {
			return current, nil
		}
	}
	return digest.Zero, nil
}

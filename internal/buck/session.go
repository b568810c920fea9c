// Package buck implements the batch-upload session engine of spec
// §4.K: create a session against a path's current commit, diff a
// manifest against the live tree, stream per-file uploads under a
// concurrency budget, and synthesize a commit bottom-up on complete.
//
// Grounded on jupiter/src/storage/buck_storage.rs's BuckStorage
// (create_session/get_session/batch_insert_files/mark_file_uploaded/
// count_pending_files/delete_expired_sessions) for the table shape and
// operation set, and ceres/src/model/buck.rs for the manifest/response
// vocabulary (ManifestFile, FileToUpload, default_mode).
package buck

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mega-forge/mega-core/internal/cl"
	"github.com/mega-forge/mega-core/internal/digest"
)

// SessionStatus mirrors buck_session's status column.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionExpired   SessionStatus = "expired"
)

// SessionTTL is spec §4.K's fixed session lifetime.
const SessionTTL = 24 * time.Hour

// Session is one buck upload session.
type Session struct {
	ID            string
	User          string
	Path          string
	FromCommit    digest.Hash
	Status        SessionStatus
	CLLink        string
	CommitMessage string
	CreatedAt     int64
	ExpiresAt     int64
}

// Store is the MySQL-backed session/file table pair.
type Store struct {
	db *sql.DB
	cl *cl.Store
}

func New(db *sql.DB, clStore *cl.Store) *Store {
	return &Store{db: db, cl: clStore}
}

// CreateSession records fromCommit as the session's base commit,
// allocates an 8-char id, inserts a linked Draft CL, and records the
// session row (spec §4.K "Session creation"). It does not read the ref
// store: fromCommit is used as given, and the HTTP handler passes the
// client-supplied from_commit.
func (s *Store) CreateSession(ctx context.Context, user, path string, fromCommit digest.Hash) (*Session, error) {
	id := cl.NewLink()
	expiresAt := time.Now().Add(SessionTTL)

	record, err := s.cl.Create(ctx, path, fromCommit, fromCommit, user)
	if err != nil {
		return nil, fmt.Errorf("buck: create session: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO buck_sessions (id, user_id, path, from_commit, status, cl_link, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, UNIX_TIMESTAMP(), ?)`,
		id, user, path, fromCommit.String(), string(SessionActive), record.Link, expiresAt.Unix()); err != nil {
		return nil, fmt.Errorf("buck: create session: %w", err)
	}

	return s.GetSession(ctx, id)
}

// GetSession loads a session by id.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, path, from_commit, status, cl_link, commit_message, created_at, expires_at
		 FROM buck_sessions WHERE id = ?`, id)
	var sess Session
	var fromHex string
	var commitMessage sql.NullString
	if err := row.Scan(&sess.ID, &sess.User, &sess.Path, &fromHex, &sess.Status, &sess.CLLink, &commitMessage, &sess.CreatedAt, &sess.ExpiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("buck: get session: %w", err)
	}
	sess.CommitMessage = commitMessage.String
	from, err := digest.FromHex(fromHex)
	if err != nil {
		return nil, fmt.Errorf("buck: get session: bad from_commit: %w", err)
	}
	sess.FromCommit = from
	return &sess, nil
}

// markCompleted transitions a session to Completed and records the
// final commit message.
func (s *Store) markCompleted(ctx context.Context, id, commitMessage string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE buck_sessions SET status = ?, commit_message = ? WHERE id = ?`,
		string(SessionCompleted), commitMessage, id)
	if err != nil {
		return fmt.Errorf("buck: mark completed: %w", err)
	}
	return nil
}

// SweepExpired marks every Active session past its expiry as Expired
// (spec §4.K "Expiry"); uploaded blobs are left in place, per spec,
// for a later out-of-scope GC pass.
func (s *Store) SweepExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE buck_sessions SET status = ? WHERE status = ? AND expires_at < UNIX_TIMESTAMP()`,
		string(SessionExpired), string(SessionActive))
	if err != nil {
		return 0, fmt.Errorf("buck: sweep expired: %w", err)
	}
	return res.RowsAffected()
}

// RunExpirySweeper runs SweepExpired on a fixed interval until ctx is
// done.
func (s *Store) RunExpirySweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = s.SweepExpired(ctx)
		}
	}
}

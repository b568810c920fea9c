// Package mergequeue implements the merge queue of spec §4.J: a
// single FIFO per monorepo keyed by monotonic position, with
// conflict-driven tail-requeue and a cluster-elected serial processor.
//
// Grounded on original_source/jupiter/src/service/merge_queue_service.rs's
// MergeQueueService: add/remove/list/get_display_position/get_queue_stats
// as thin storage wrappers, validate_cl_for_queue's Open-only
// precondition, try_start_processor/stop_processor/is_processor_running
// as an atomic-bool tri-state distinct from the cluster lock, and
// cancel_all_pending as a bulk update. The storage layer here follows
// internal/refstore/internal/cl's MySQL-via-database/sql style rather
// than the Rust SeaORM layer it is translated from.
package mergequeue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mega-forge/mega-core/internal/cl"
)

// Status is a queue item's lifecycle state (spec §4.J).
type Status string

const (
	Waiting   Status = "Waiting"
	Testing   Status = "Testing"
	Merging   Status = "Merging"
	Completed Status = "Completed"
	Failed    Status = "Failed"
	Cancelled Status = "Cancelled"
)

func (s Status) Terminal() bool {
	return s == Completed || s == Failed || s == Cancelled
}

// DefaultMaxRetries is the spec §4.J default retry ceiling before a
// conflicting item is failed outright.
const DefaultMaxRetries = 5

// Item is one queued CL.
type Item struct {
	ID        int64
	CLLink    string
	Position  int64
	Status    Status
	Retries   int
	LastError string
}

// Stats mirrors get_queue_stats: per-status counts plus total retries
// observed across all items (spec §D.2).
type Stats struct {
	Waiting   int
	Testing   int
	Merging   int
	Completed int
	Failed    int
	Cancelled int
	Retries   int
}

// ErrNotOpen is returned by Enqueue when the CL is not in Open status
// (spec §D.5's validate_cl_for_queue, sharpening "may appear at most
// once with non-terminal status" into a precondition on enqueue).
var ErrNotOpen = errors.New("mergequeue: cl is not Open")

// ErrAlreadyQueued is returned by Enqueue when the CL already has a
// non-terminal queue item.
var ErrAlreadyQueued = errors.New("mergequeue: cl already queued")

// Store is the MySQL-backed merge queue table.
type Store struct {
	db *sql.DB
	cl *cl.Store
}

func New(db *sql.DB, clStore *cl.Store) *Store {
	return &Store{db: db, cl: clStore}
}

// Enqueue validates the CL and appends it at the tail of the queue,
// returning its assigned position.
func (s *Store) Enqueue(ctx context.Context, clLink string) (int64, error) {
	record, err := s.cl.Get(ctx, clLink)
	if err != nil {
		return 0, fmt.Errorf("mergequeue: enqueue: %w", err)
	}
	if record == nil {
		return 0, fmt.Errorf("mergequeue: enqueue: unknown cl %q", clLink)
	}
	if record.Status != cl.Open {
		return 0, ErrNotOpen
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("mergequeue: enqueue: %w", err)
	}
	defer tx.Rollback()

	var existing int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM merge_queue WHERE cl_link = ? AND status NOT IN (?, ?, ?)`,
		clLink, string(Completed), string(Failed), string(Cancelled)).Scan(&existing); err != nil {
		return 0, fmt.Errorf("mergequeue: enqueue: %w", err)
	}
	if existing > 0 {
		return 0, ErrAlreadyQueued
	}

	var maxPos sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT MAX(position) FROM merge_queue`).Scan(&maxPos); err != nil {
		return 0, fmt.Errorf("mergequeue: enqueue: %w", err)
	}
	position := int64(1)
	if maxPos.Valid {
		position = maxPos.Int64 + 1
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO merge_queue (cl_link, position, status, retries) VALUES (?, ?, ?, 0)`,
		clLink, position, string(Waiting)); err != nil {
		return 0, fmt.Errorf("mergequeue: enqueue: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("mergequeue: enqueue: %w", err)
	}
	return position, nil
}

// Remove sets a non-terminal item's status to Cancelled (spec §4.J
// Cancellation). Returns false if no non-terminal item was found.
func (s *Store) Remove(ctx context.Context, clLink string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE merge_queue SET status = ? WHERE cl_link = ? AND status NOT IN (?, ?, ?)`,
		string(Cancelled), clLink, string(Completed), string(Failed), string(Cancelled))
	if err != nil {
		return false, fmt.Errorf("mergequeue: remove: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mergequeue: remove: %w", err)
	}
	return n > 0, nil
}

// List returns the full queue ordered by position.
func (s *Store) List(ctx context.Context) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, cl_link, position, status, retries, last_error FROM merge_queue ORDER BY position ASC`)
	if err != nil {
		return nil, fmt.Errorf("mergequeue: list: %w", err)
	}
	defer rows.Close()
	return scanItems(rows)
}

func scanItems(rows *sql.Rows) ([]Item, error) {
	var out []Item
	for rows.Next() {
		var it Item
		var lastErr sql.NullString
		if err := rows.Scan(&it.ID, &it.CLLink, &it.Position, &it.Status, &it.Retries, &lastErr); err != nil {
			return nil, fmt.Errorf("mergequeue: scan: %w", err)
		}
		it.LastError = lastErr.String
		out = append(out, it)
	}
	return out, rows.Err()
}

// Status returns the current queue item for a CL, if any.
func (s *Store) Status(ctx context.Context, clLink string) (*Item, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, cl_link, position, status, retries, last_error FROM merge_queue
		 WHERE cl_link = ? ORDER BY id DESC LIMIT 1`, clLink)
	var it Item
	var lastErr sql.NullString
	if err := row.Scan(&it.ID, &it.CLLink, &it.Position, &it.Status, &it.Retries, &lastErr); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("mergequeue: status: %w", err)
	}
	it.LastError = lastErr.String
	return &it, nil
}

// DisplayPosition computes a 1-indexed position over currently
// non-terminal items (spec §4.J "Display position"); not persisted.
func (s *Store) DisplayPosition(ctx context.Context, clLink string) (int, bool, error) {
	item, err := s.Status(ctx, clLink)
	if err != nil {
		return 0, false, err
	}
	if item == nil || item.Status.Terminal() {
		return 0, false, nil
	}
	return s.DisplayPositionByPosition(ctx, item.Position)
}

// DisplayPositionByPosition computes display position directly from a
// known position value without a cl_link lookup (spec §D.6).
func (s *Store) DisplayPositionByPosition(ctx context.Context, position int64) (int, bool, error) {
	var count int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM merge_queue WHERE position <= ? AND status NOT IN (?, ?, ?)`,
		position, string(Completed), string(Failed), string(Cancelled)).Scan(&count); err != nil {
		return 0, false, fmt.Errorf("mergequeue: display position: %w", err)
	}
	if count == 0 {
		return 0, false, nil
	}
	return count, true, nil
}

// QueueStats returns per-status counts and the sum of retries across all
// items (spec §D.2).
func (s *Store) QueueStats(ctx context.Context) (Stats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*), COALESCE(SUM(retries), 0) FROM merge_queue GROUP BY status`)
	if err != nil {
		return Stats{}, fmt.Errorf("mergequeue: stats: %w", err)
	}
	defer rows.Close()
	var st Stats
	for rows.Next() {
		var status string
		var count, retries int
		if err := rows.Scan(&status, &count, &retries); err != nil {
			return Stats{}, fmt.Errorf("mergequeue: stats: %w", err)
		}
		st.Retries += retries
		switch Status(status) {
		case Waiting:
			st.Waiting = count
		case Testing:
			st.Testing = count
		case Merging:
			st.Merging = count
		case Completed:
			st.Completed = count
		case Failed:
			st.Failed = count
		case Cancelled:
			st.Cancelled = count
		}
	}
	return st, rows.Err()
}

// CancelAll cancels every non-terminal item, returning the count
// affected (spec §D.3).
func (s *Store) CancelAll(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE merge_queue SET status = ? WHERE status NOT IN (?, ?, ?)`,
		string(Cancelled), string(Completed), string(Failed), string(Cancelled))
	if err != nil {
		return 0, fmt.Errorf("mergequeue: cancel all: %w", err)
	}
	return res.RowsAffected()
}

// dequeueHeadWaiting atomically claims the head-of-queue Waiting item,
// moving it to Testing, so two processors never race on the same item.
func (s *Store) dequeueHeadWaiting(ctx context.Context) (*Item, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("mergequeue: dequeue: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT id, cl_link, position, status, retries, last_error FROM merge_queue
		 WHERE status = ? ORDER BY position ASC LIMIT 1`, string(Waiting))
	var it Item
	var lastErr sql.NullString
	if err := row.Scan(&it.ID, &it.CLLink, &it.Position, &it.Status, &it.Retries, &lastErr); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("mergequeue: dequeue: %w", err)
	}
	it.LastError = lastErr.String

	res, err := tx.ExecContext(ctx, `UPDATE merge_queue SET status = ? WHERE id = ? AND status = ?`,
		string(Testing), it.ID, string(Waiting))
	if err != nil {
		return nil, fmt.Errorf("mergequeue: dequeue: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("mergequeue: dequeue: %w", err)
	}
	if n == 0 {
		return nil, nil // raced with another dequeue; caller retries next tick
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("mergequeue: dequeue: %w", err)
	}
	it.Status = Testing
	return &it, nil
}

func (s *Store) setStatus(ctx context.Context, id int64, status Status, lastError string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE merge_queue SET status = ?, last_error = ? WHERE id = ?`,
		string(status), lastError, id)
	if err != nil {
		return fmt.Errorf("mergequeue: set status: %w", err)
	}
	return nil
}

// moveToTail rewrites a conflicting item with a new tail position,
// reverts it to Waiting, and increments its retry count (spec §4.J
// Conflict policy). Once retries exceeds max, it is Failed instead.
func (s *Store) moveToTail(ctx context.Context, item *Item, maxRetries int) error {
	if item.Retries+1 > maxRetries {
		return s.setStatus(ctx, item.ID, Failed, "exceeded max retries after conflict")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("mergequeue: move to tail: %w", err)
	}
	defer tx.Rollback()

	var maxPos sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT MAX(position) FROM merge_queue`).Scan(&maxPos); err != nil {
		return fmt.Errorf("mergequeue: move to tail: %w", err)
	}
	newPos := item.Position + 1
	if maxPos.Valid && maxPos.Int64 >= newPos {
		newPos = maxPos.Int64 + 1
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE merge_queue SET position = ?, status = ?, retries = retries + 1 WHERE id = ?`,
		newPos, string(Waiting), item.ID); err != nil {
		return fmt.Errorf("mergequeue: move to tail: %w", err)
	}
	return tx.Commit()
}

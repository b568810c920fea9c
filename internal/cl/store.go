// Package cl implements the change-list store of spec §4.I: Draft →
// Open → Merged/Closed records, per-CL conversation (comments plus
// transition events), and reviewer approvals.
//
// Grounded on pkg/serve/database's transactional upsert-then-check
// style (see internal/refstore, adapted from the same source) for the
// MySQL access pattern, and on original_source/ceres/src/model/change_list.rs
// for the field shape (link slug, status enum, conversations,
// reviewers) that the distilled spec compresses into one paragraph.
package cl

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mega-forge/mega-core/internal/digest"
)

// Status is the CL lifecycle state (spec §4.I).
type Status string

const (
	Draft  Status = "Draft"
	Open   Status = "Open"
	Merged Status = "Merged"
	Closed Status = "Closed"
)

// InvalidTransition is returned by Transition for any pair not in the
// allowed set (spec §4.I: Draft->Open, Open->Merged, Open->Closed,
// Draft->Closed).
type InvalidTransition struct {
	From, To Status
}

func (e *InvalidTransition) Error() string {
	return fmt.Sprintf("cl: invalid transition %s -> %s", e.From, e.To)
}

var allowedTransitions = map[Status]map[Status]bool{
	Draft: {Open: true, Closed: true},
	Open:  {Merged: true, Closed: true},
}

// CL is a proposed transition of a path's ref from one commit to
// another, with review metadata (spec glossary).
type CL struct {
	ID        int64
	Link      string
	Path      string
	FromCommit digest.Hash
	ToCommit  digest.Hash
	Status    Status
	Author    string
	CreatedAt int64
	MergedAt  *int64
}

// Comment is one conversation entry: either an author-written remark
// or a system-recorded status transition.
type Comment struct {
	ID        int64
	CLID      int64
	Author    string
	Body      string
	CreatedAt int64
}

// Reviewer is one requested reviewer and their approval bit.
type Reviewer struct {
	CLID     int64
	Name     string
	Approved bool
}

// Filter narrows List by the fields callers most commonly query by.
type Filter struct {
	Path   string
	Status Status
	Author string
}

// Pagination is a simple offset/limit window; spec §4.I leaves the
// exact paging shape open, and this mirrors the teacher's
// modules/task/github-style list params closely enough to not need a
// bespoke cursor scheme.
type Pagination struct {
	Offset int
	Limit  int
}

// Store is the MySQL-backed change-list store.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts a new Draft-status CL with a fresh link slug.
func (s *Store) Create(ctx context.Context, path string, from, to digest.Hash, author string) (*CL, error) {
	link := NewLink()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO change_lists (link, path, from_commit, to_commit, status, author, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, UNIX_TIMESTAMP())`,
		link, path, from.String(), to.String(), string(Draft), author)
	if err != nil {
		return nil, fmt.Errorf("cl: create: %w", err)
	}
	if _, err := res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("cl: create: %w", err)
	}
	return s.Get(ctx, link)
}

// Get loads a CL by its public link.
func (s *Store) Get(ctx context.Context, link string) (*CL, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, link, path, from_commit, to_commit, status, author, created_at, merged_at
		 FROM change_lists WHERE link = ?`, link)
	return scanCL(row)
}

func scanCL(row *sql.Row) (*CL, error) {
	var c CL
	var fromHex, toHex string
	var mergedAt sql.NullInt64
	if err := row.Scan(&c.ID, &c.Link, &c.Path, &fromHex, &toHex, &c.Status, &c.Author, &c.CreatedAt, &mergedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("cl: get: %w", err)
	}
	var err error
	if c.FromCommit, err = digest.FromHex(fromHex); err != nil {
		return nil, fmt.Errorf("cl: get: bad from_commit: %w", err)
	}
	if c.ToCommit, err = digest.FromHex(toHex); err != nil {
		return nil, fmt.Errorf("cl: get: bad to_commit: %w", err)
	}
	if mergedAt.Valid {
		v := mergedAt.Int64
		c.MergedAt = &v
	}
	return &c, nil
}

// List returns CLs matching filter, newest first, windowed by pagination.
func (s *Store) List(ctx context.Context, filter Filter, pagination Pagination) ([]CL, error) {
	query := `SELECT id, link, path, from_commit, to_commit, status, author, created_at, merged_at
	          FROM change_lists WHERE 1 = 1`
	var args []interface{}
	if filter.Path != "" {
		query += " AND path = ?"
		args = append(args, filter.Path)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	if filter.Author != "" {
		query += " AND author = ?"
		args = append(args, filter.Author)
	}
	query += " ORDER BY id DESC"
	limit := pagination.Limit
	if limit <= 0 {
		limit = 50
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, pagination.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("cl: list: %w", err)
	}
	defer rows.Close()

	var out []CL
	for rows.Next() {
		var c CL
		var fromHex, toHex string
		var mergedAt sql.NullInt64
		if err := rows.Scan(&c.ID, &c.Link, &c.Path, &fromHex, &toHex, &c.Status, &c.Author, &c.CreatedAt, &mergedAt); err != nil {
			return nil, fmt.Errorf("cl: list: %w", err)
		}
		if c.FromCommit, err = digest.FromHex(fromHex); err != nil {
			return nil, fmt.Errorf("cl: list: bad from_commit: %w", err)
		}
		if c.ToCommit, err = digest.FromHex(toHex); err != nil {
			return nil, fmt.Errorf("cl: list: bad to_commit: %w", err)
		}
		if mergedAt.Valid {
			v := mergedAt.Int64
			c.MergedAt = &v
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Transition moves a CL to newStatus, enforcing the allowed-edge set
// and recording a system comment in the conversation.
func (s *Store) Transition(ctx context.Context, link string, newStatus Status) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("cl: transition: %w", err)
	}
	defer tx.Rollback()

	var current Status
	var id int64
	if err := tx.QueryRowContext(ctx, `SELECT id, status FROM change_lists WHERE link = ?`, link).Scan(&id, &current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("cl: transition: unknown link %q", link)
		}
		return fmt.Errorf("cl: transition: %w", err)
	}
	if !allowedTransitions[current][newStatus] {
		return &InvalidTransition{From: current, To: newStatus}
	}

	if newStatus == Merged {
		if _, err := tx.ExecContext(ctx, `UPDATE change_lists SET status = ?, merged_at = UNIX_TIMESTAMP() WHERE id = ?`, string(newStatus), id); err != nil {
			return fmt.Errorf("cl: transition: %w", err)
		}
	} else {
		if _, err := tx.ExecContext(ctx, `UPDATE change_lists SET status = ? WHERE id = ?`, string(newStatus), id); err != nil {
			return fmt.Errorf("cl: transition: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO cl_comments (cl_id, author, body, created_at) VALUES (?, ?, ?, UNIX_TIMESTAMP())`,
		id, "system", fmt.Sprintf("status changed: %s -> %s", current, newStatus)); err != nil {
		return fmt.Errorf("cl: transition: %w", err)
	}
	return tx.Commit()
}

// SetToCommit records the commit produced by a completed buck session
// (spec §4.K step 4), used alongside Transition(link, Open).
func (s *Store) SetToCommit(ctx context.Context, link string, to digest.Hash) error {
	res, err := s.db.ExecContext(ctx, `UPDATE change_lists SET to_commit = ? WHERE link = ?`, to.String(), link)
	if err != nil {
		return fmt.Errorf("cl: set to_commit: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("cl: set to_commit: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("cl: set to_commit: unknown link %q", link)
	}
	return nil
}

// AddComment appends an author-written remark to the CL's conversation.
func (s *Store) AddComment(ctx context.Context, link, author, body string) error {
	id, err := s.resolveID(ctx, link)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO cl_comments (cl_id, author, body, created_at) VALUES (?, ?, ?, UNIX_TIMESTAMP())`,
		id, author, body)
	if err != nil {
		return fmt.Errorf("cl: add comment: %w", err)
	}
	return nil
}

// Comments returns the full conversation for a CL, oldest first.
func (s *Store) Comments(ctx context.Context, link string) ([]Comment, error) {
	id, err := s.resolveID(ctx, link)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, cl_id, author, body, created_at FROM cl_comments WHERE cl_id = ? ORDER BY id ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("cl: comments: %w", err)
	}
	defer rows.Close()
	var out []Comment
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.CLID, &c.Author, &c.Body, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("cl: comments: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// AddReviewer requests review from name, idempotently.
func (s *Store) AddReviewer(ctx context.Context, link, name string) error {
	id, err := s.resolveID(ctx, link)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO cl_reviewers (cl_id, name, approved) VALUES (?, ?, FALSE)
		 ON DUPLICATE KEY UPDATE name = name`, id, name)
	if err != nil {
		return fmt.Errorf("cl: add reviewer: %w", err)
	}
	return nil
}

// SetReviewerApproved flips a requested reviewer's approval bit.
func (s *Store) SetReviewerApproved(ctx context.Context, link, name string, approved bool) error {
	id, err := s.resolveID(ctx, link)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE cl_reviewers SET approved = ? WHERE cl_id = ? AND name = ?`, approved, id, name)
	if err != nil {
		return fmt.Errorf("cl: set reviewer approved: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("cl: set reviewer approved: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("cl: set reviewer approved: %q is not a reviewer of %q", name, link)
	}
	return nil
}

// Reviewers returns the reviewer list and approval bits for a CL.
func (s *Store) Reviewers(ctx context.Context, link string) ([]Reviewer, error) {
	id, err := s.resolveID(ctx, link)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT cl_id, name, approved FROM cl_reviewers WHERE cl_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("cl: reviewers: %w", err)
	}
	defer rows.Close()
	var out []Reviewer
	for rows.Next() {
		var r Reviewer
		if err := rows.Scan(&r.CLID, &r.Name, &r.Approved); err != nil {
			return nil, fmt.Errorf("cl: reviewers: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// AllApproved reports whether every requested reviewer has approved;
// a CL with no reviewers is vacuously approved.
func (s *Store) AllApproved(ctx context.Context, link string) (bool, error) {
	reviewers, err := s.Reviewers(ctx, link)
	if err != nil {
		return false, err
	}
	for _, r := range reviewers {
		if !r.Approved {
			return false, nil
		}
	}
	return true, nil
}

func (s *Store) resolveID(ctx context.Context, link string) (int64, error) {
	var id int64
	if err := s.db.QueryRowContext(ctx, `SELECT id FROM change_lists WHERE link = ?`, link).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("cl: unknown link %q", link)
		}
		return 0, fmt.Errorf("cl: resolve: %w", err)
	}
	return id, nil
}

package mergequeue

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/mega-forge/mega-core/internal/cl"
	"github.com/mega-forge/mega-core/internal/digest"
	"github.com/mega-forge/mega-core/internal/lock"
	"github.com/mega-forge/mega-core/internal/mega"
	"github.com/mega-forge/mega-core/internal/object"
	"github.com/mega-forge/mega-core/internal/protocol"
	"github.com/mega-forge/mega-core/internal/refstore"
)

// HeadRefName is the single branch every path merges onto; spec's
// worked examples (§9) only ever reference refs/heads/main.
const HeadRefName = "refs/heads/main"

// ObjectReadWriter is the object-store surface the processor needs:
// reading ancestry and, for a three-way merge, storing the synthesized
// merge commit and tree.
type ObjectReadWriter interface {
	protocol.ObjectGetter
	Put(ctx context.Context, t object.Type, body []byte) (digest.Hash, error)
}

// CheckResult is merge_check's outcome.
type CheckResult struct {
	OK     bool
	Reason string
}

// Checker performs the cheap pre-merge check: reviewer approvals, CI
// checks, mergeability (spec §4.J "result = merge_check(item.cl)").
type Checker func(ctx context.Context, record *cl.CL) (CheckResult, error)

// DefaultChecker requires every requested reviewer to have approved;
// a CL with no reviewers passes vacuously (matches cl.Store.AllApproved).
func DefaultChecker(clStore *cl.Store) Checker {
	return func(ctx context.Context, record *cl.CL) (CheckResult, error) {
		approved, err := clStore.AllApproved(ctx, record.Link)
		if err != nil {
			return CheckResult{}, err
		}
		if !approved {
			return CheckResult{OK: false, Reason: "pending reviewer approval"}, nil
		}
		return CheckResult{OK: true}, nil
	}
}

// outcomeKind is attempt_merge's case set (spec §4.J Processor loop).
type outcomeKind int

const (
	outcomeFastForward outcomeKind = iota
	outcomeThreeWay
	outcomeConflict
	outcomeFatal
)

type attemptOutcome struct {
	kind    outcomeKind
	newHead digest.Hash
	err     error
}

// attemptMerge implements spec §4.J's attempt_merge: fast-forward when
// the CL's to_commit already descends from the current head, otherwise
// synthesize a two-parent merge commit. A CAS race against the
// observed head is reported as Conflict, not Fatal, so the caller
// retries at the tail.
func attemptMerge(ctx context.Context, objects ObjectReadWriter, refs *refstore.Store, record *cl.CL) attemptOutcome {
	currentHead, _, err := refs.Read(ctx, record.Path, HeadRefName)
	if err != nil {
		return attemptOutcome{kind: outcomeFatal, err: err}
	}

	isFF, err := protocol.IsAncestor(ctx, objects, record.ToCommit, currentHead)
	if err != nil {
		return attemptOutcome{kind: outcomeFatal, err: err}
	}
	if isFF {
		var expected *digest.Hash
		if !currentHead.IsZero() {
			expected = &currentHead
		}
		newHead := record.ToCommit
		if err := refs.Update(ctx, record.Path, HeadRefName, expected, &newHead); err != nil {
			if _, ok := err.(*mega.RefConflict); ok {
				return attemptOutcome{kind: outcomeConflict}
			}
			return attemptOutcome{kind: outcomeFatal, err: err}
		}
		return attemptOutcome{kind: outcomeFastForward, newHead: newHead}
	}

	ancestorOfCurrent, err := protocol.IsAncestor(ctx, objects, currentHead, record.FromCommit)
	if err != nil {
		return attemptOutcome{kind: outcomeFatal, err: err}
	}
	if !ancestorOfCurrent {
		// from_commit no longer reachable from head: the path moved
		// underneath this CL. Treat as a conflict so the processor
		// requeues it for rebase-and-retry rather than failing outright.
		return attemptOutcome{kind: outcomeConflict}
	}

	mergeCommit, err := synthesizeMergeCommit(ctx, objects, record, currentHead)
	if err != nil {
		return attemptOutcome{kind: outcomeFatal, err: err}
	}

	expected := currentHead
	if err := refs.Update(ctx, record.Path, HeadRefName, &expected, &mergeCommit); err != nil {
		if _, ok := err.(*mega.RefConflict); ok {
			return attemptOutcome{kind: outcomeConflict}
		}
		return attemptOutcome{kind: outcomeFatal, err: err}
	}
	return attemptOutcome{kind: outcomeThreeWay, newHead: mergeCommit}
}

// synthesizeMergeCommit builds a two-parent commit over to_commit's
// tree; per DESIGN.md's Open Question decision, any file-mode mismatch
// between the two parents' trees at the same path resolves to
// Conflict rather than a silent pick, enforced by requiring the
// merge's tree to equal to_commit's tree (the session/CL owner is
// responsible for rebasing divergent trees before merge, since this
// spec has no interactive three-way content merge).
func synthesizeMergeCommit(ctx context.Context, objects ObjectReadWriter, record *cl.CL, currentHead digest.Hash) (digest.Hash, error) {
	_, toBody, ok, err := objects.Get(ctx, record.ToCommit)
	if err != nil {
		return digest.Zero, err
	}
	if !ok {
		return digest.Zero, &mega.UnknownObject{Hash: record.ToCommit.String()}
	}
	toCommit, err := object.DecodeCommit(toBody)
	if err != nil {
		return digest.Zero, &mega.MalformedObject{Reason: err.Error()}
	}

	sig := object.Signature{Name: record.Author, Email: record.Author, When: toCommit.Author.When, TZ: toCommit.Author.TZ}
	merge := &object.Commit{
		Tree:      toCommit.Tree,
		Parents:   []digest.Hash{currentHead, record.ToCommit},
		Author:    sig,
		Committer: sig,
		Message:   []byte("merge cl " + record.Link + "\n"),
	}
	return objects.Put(ctx, object.CommitObject, merge.Encode())
}

// Processor runs the single cluster-wide serial merge loop of spec
// §4.J, guarded by a distributed lock (default TTL 10s) so that at
// most one replica processes any given queue at a time.
//
// Grounded on the try_start_processor/stop_processor/is_processor_running
// atomic-bool tri-state of merge_queue_service.rs: `running` arbitrates
// whether *this process* believes it owns a processor goroutine,
// independent of the distributed lock, which arbitrates which
// *replica* is allowed to actually dequeue.
type Processor struct {
	store      *Store
	cl         *cl.Store
	objects    ObjectReadWriter
	refs       *refstore.Store
	checker    Checker
	acquire    func(ctx context.Context) (release func(context.Context) error, err error)
	maxRetries int

	running int32
	stop    chan struct{}
	done    chan struct{}
}

// NewProcessor wires l as the cluster-election lock: run() holds it
// for the lifetime of the loop and releases it on Stop.
func NewProcessor(store *Store, clStore *cl.Store, objects ObjectReadWriter, refs *refstore.Store, l *lock.Lock, checker Checker) *Processor {
	if checker == nil {
		checker = DefaultChecker(clStore)
	}
	acquire := func(ctx context.Context) (func(context.Context) error, error) {
		guard, err := l.Lock(ctx)
		if err != nil {
			return nil, err
		}
		return guard.Unlock, nil
	}
	return newProcessor(store, clStore, objects, refs, acquire, checker)
}

func newProcessor(store *Store, clStore *cl.Store, objects ObjectReadWriter, refs *refstore.Store, acquire func(context.Context) (func(context.Context) error, error), checker Checker) *Processor {
	if checker == nil {
		checker = DefaultChecker(clStore)
	}
	return &Processor{
		store:      store,
		cl:         clStore,
		objects:    objects,
		refs:       refs,
		checker:    checker,
		acquire:    acquire,
		maxRetries: DefaultMaxRetries,
	}
}

// TryStart starts the processor loop if this process isn't already
// running one; returns false if it was already running.
func (p *Processor) TryStart(ctx context.Context) bool {
	if !atomic.CompareAndSwapInt32(&p.running, 0, 1) {
		return false
	}
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	go p.run(ctx)
	return true
}

// Stop signals the loop to exit and waits for it to do so.
func (p *Processor) Stop() {
	if !atomic.CompareAndSwapInt32(&p.running, 1, 0) {
		return
	}
	close(p.stop)
	<-p.done
}

// IsRunning reports whether this process currently owns a processor
// goroutine.
func (p *Processor) IsRunning() bool {
	return atomic.LoadInt32(&p.running) == 1
}

func (p *Processor) run(ctx context.Context) {
	defer close(p.done)
	release, err := p.acquire(ctx)
	if err != nil {
		return
	}
	defer release(context.Background())

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Processor) tick(ctx context.Context) {
	item, err := p.store.dequeueHeadWaiting(ctx)
	if err != nil || item == nil {
		return
	}
	if item.Status == Cancelled {
		return
	}

	record, err := p.cl.Get(ctx, item.CLLink)
	if err != nil || record == nil {
		_ = p.store.setStatus(ctx, item.ID, Failed, "cl record missing")
		return
	}

	result, err := p.checker(ctx, record)
	if err != nil {
		_ = p.store.setStatus(ctx, item.ID, Failed, err.Error())
		return
	}
	if !result.OK {
		_ = p.store.setStatus(ctx, item.ID, Failed, result.Reason)
		return
	}

	_ = p.store.setStatus(ctx, item.ID, Merging, "")
	outcome := attemptMerge(ctx, p.objects, p.refs, record)
	switch outcome.kind {
	case outcomeFastForward, outcomeThreeWay:
		if err := p.cl.Transition(ctx, record.Link, cl.Merged); err != nil {
			_ = p.store.setStatus(ctx, item.ID, Failed, err.Error())
			return
		}
		_ = p.store.setStatus(ctx, item.ID, Completed, "")
	case outcomeConflict:
		_ = p.store.moveToTail(ctx, item, p.maxRetries)
	case outcomeFatal:
		reason := "fatal merge error"
		if outcome.err != nil {
			reason = outcome.err.Error()
		}
		_ = p.store.setStatus(ctx, item.ID, Failed, reason)
	}
}

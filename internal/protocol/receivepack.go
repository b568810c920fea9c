package protocol

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/mega-forge/mega-core/internal/digest"
	"github.com/mega-forge/mega-core/internal/mega"
	"github.com/mega-forge/mega-core/internal/object"
	"github.com/mega-forge/mega-core/internal/pack"
)

// Command is one "old new refname" push command (spec §4.H R1).
type Command struct {
	Old, New digest.Hash
	RefName  string
}

// ObjectWriter is the write surface receive-pack needs: storing
// ingested objects for ref-delta resolution and final persistence.
type ObjectWriter interface {
	ObjectGetter
	PutBatch(ctx context.Context, entries []StoreEntry) error
}

// StoreEntry pairs a decoded object with its type for batch ingest.
type StoreEntry struct {
	Type object.Type
	Body []byte
}

// RefUpdater performs a CAS ref update (spec §4.F), used by R3.
type RefUpdater interface {
	Update(ctx context.Context, path, name string, expected, newHash *digest.Hash) error
}

// Hooks lets the caller veto a ref update by returning non-empty
// error text (spec §4.H R3: pre-receive, update, post-receive).
type Hooks struct {
	PreReceive  func(ctx context.Context, cmds []Command) string
	Update      func(ctx context.Context, cmd Command) string
	PostReceive func(ctx context.Context, cmds []Command)
}

// Authorize mirrors spec §4.H's authorize(user, Push, path(refname)).
type Authorize func(ctx context.Context, refName string) bool

// ReceivePackResult carries per-command outcomes for the reporter.
type ReceivePackResult struct {
	UnpackOK bool
	UnpackErr string
	Statuses []CommandStatus
}

type CommandStatus struct {
	RefName string
	OK      bool
	Reason  string
}

// ReceivePack runs the push state machine of spec §4.H (R0 Ready
// through R4 End): parse commands, ingest the pack with checksum
// verification, then apply CAS ref updates in command order, emitting
// report-status lines.
//
// Grounded on pkg/serve/repo/push.go's DoPush orchestration (command
// parse -> unpack -> integrity check -> per-ref CAS -> ack emission),
// adapted from the teacher's repo-scoped push to the monorepo's
// (path, ref) keyspace and Git's real pack/ref-delta semantics.
func ReceivePack(ctx context.Context, basePath string, r *Reader, w io.Writer, packBody io.Reader, objects ObjectWriter, refs RefUpdater, cache *pack.Cache, authorize Authorize, hooks Hooks, algo digest.Algorithm) error {
	// R1: commands.
	lines, err := r.ReadUntilFlush()
	if err != nil {
		return fmt.Errorf("protocol: reading commands: %w", err)
	}
	if len(lines) == 0 {
		return reportUnpack(w, false, "no commands")
	}
	var cmds []Command
	for i, l := range lines {
		text := strings.TrimSuffix(string(l), "\n")
		if i == 0 {
			text, _ = ParseClientCapabilities(text)
		}
		fields := strings.Fields(text)
		if len(fields) != 3 {
			return fmt.Errorf("protocol: malformed command line %q", text)
		}
		oldH, err := digest.FromHexAlgorithm(algo, fields[0])
		if err != nil {
			return fmt.Errorf("protocol: malformed old oid: %w", err)
		}
		newH, err := digest.FromHexAlgorithm(algo, fields[1])
		if err != nil {
			return fmt.Errorf("protocol: malformed new oid: %w", err)
		}
		cmds = append(cmds, Command{Old: oldH, New: newH, RefName: fields[2]})
	}

	anyNonDelete := false
	for _, c := range cmds {
		if !c.New.IsZero() {
			anyNonDelete = true
		}
	}

	// R2: ingest.
	if anyNonDelete {
		packStore := &decodeAdapter{objects: objects}
		raw, err := io.ReadAll(packBody)
		if err != nil {
			return reportUnpack(w, false, err.Error())
		}
		var decoded []pack.DecodedObject
		_, err = pack.Decode(raw, packStore, cache, func(o pack.DecodedObject) error {
			decoded = append(decoded, o)
			return nil
		})
		if err != nil {
			return reportUnpack(w, false, err.Error())
		}
		if len(decoded) == 0 {
			return reportUnpack(w, false, "empty pack")
		}
		entries := make([]StoreEntry, 0, len(decoded))
		for _, d := range decoded {
			entries = append(entries, StoreEntry{Type: d.Type, Body: d.Body})
		}
		if err := objects.PutBatch(ctx, entries); err != nil {
			return reportUnpack(w, false, err.Error())
		}
	}
	if err := WriteLine(w, "unpack ok"); err != nil {
		return err
	}

	if hooks.PreReceive != nil {
		if reason := hooks.PreReceive(ctx, cmds); reason != "" {
			for _, c := range cmds {
				if err := WriteLine(w, fmt.Sprintf("ng %s %s", c.RefName, reason)); err != nil {
					return err
				}
			}
			return WriteFlush(w)
		}
	}

	// R3: apply, per command in order.
	for _, c := range cmds {
		if authorize != nil && !authorize(ctx, c.RefName) {
			if err := WriteLine(w, fmt.Sprintf("ng %s permission denied", c.RefName)); err != nil {
				return err
			}
			continue
		}
		if hooks.Update != nil {
			if reason := hooks.Update(ctx, c); reason != "" {
				if err := WriteLine(w, fmt.Sprintf("ng %s %s", c.RefName, reason)); err != nil {
					return err
				}
				continue
			}
		}
		var expected, newHash *digest.Hash
		if !c.Old.IsZero() {
			e := c.Old
			expected = &e
		}
		if !c.New.IsZero() {
			n := c.New
			newHash = &n
		}
		if err := refs.Update(ctx, basePath, c.RefName, expected, newHash); err != nil {
			if _, ok := err.(*mega.RefConflict); ok {
				if err := WriteLine(w, fmt.Sprintf("ng %s CAS conflict", c.RefName)); err != nil {
					return err
				}
				continue
			}
			if err := WriteLine(w, fmt.Sprintf("ng %s %s", c.RefName, err.Error())); err != nil {
				return err
			}
			continue
		}
		if err := WriteLine(w, fmt.Sprintf("ok %s", c.RefName)); err != nil {
			return err
		}
	}

	if hooks.PostReceive != nil {
		hooks.PostReceive(ctx, cmds)
	}

	// R4: end.
	return WriteFlush(w)
}

func reportUnpack(w io.Writer, ok bool, reason string) error {
	if ok {
		return WriteLine(w, "unpack ok")
	}
	if err := WriteLine(w, fmt.Sprintf("unpack %s", reason)); err != nil {
		return err
	}
	return WriteFlush(w)
}

// decodeAdapter bridges ObjectWriter's context-taking Get to
// pack.Store's synchronous shape.
type decodeAdapter struct {
	objects ObjectWriter
}

func (a *decodeAdapter) Get(h digest.Hash) (object.Type, []byte, bool) {
	t, body, ok, err := a.objects.Get(context.Background(), h)
	if err != nil || !ok {
		return 0, nil, false
	}
	return t, body, true
}

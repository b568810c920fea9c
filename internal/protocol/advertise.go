package protocol

import (
	"fmt"
	"io"

	"github.com/mega-forge/mega-core/internal/digest"
	"github.com/mega-forge/mega-core/internal/refstore"
)

// AdvertiseRefs writes the info/refs discovery response (spec §4.H):
// a service header line, then one pkt-line per ref with capabilities
// attached to the first.
func AdvertiseRefs(w io.Writer, service string, head digest.Hash, refs []refstore.Ref, caps Capabilities) error {
	if err := WriteLine(w, fmt.Sprintf("# service=%s", service)); err != nil {
		return err
	}
	if err := WriteFlush(w); err != nil {
		return err
	}

	first := true
	writeRef := func(hash digest.Hash, name string) error {
		if first {
			first = false
			line := fmt.Sprintf("%s %s\x00%s\n", hash, name, caps.String())
			return WriteData(w, []byte(line))
		}
		return WriteLine(w, fmt.Sprintf("%s %s", hash, name))
	}

	if !head.IsZero() {
		if err := writeRef(head, "HEAD"); err != nil {
			return err
		}
	}
	for _, r := range refs {
		if err := writeRef(r.Hash, r.Name); err != nil {
			return err
		}
	}
	if first {
		// No refs at all: capabilities still ride the first (empty)
		// line per convention, so clients can detect an empty repo.
		line := fmt.Sprintf("%s capabilities^{}\x00%s\n", digest.Zero, caps.String())
		if err := WriteData(w, []byte(line)); err != nil {
			return err
		}
	}
	return WriteFlush(w)
}

package protocol

import (
	"fmt"
	"strings"

	"github.com/mega-forge/mega-core/internal/digest"
)

// Capabilities is the NUL-terminated capability list carried on the
// first ref line after the service header (spec §4.H).
type Capabilities struct {
	MultiAckDetailed bool
	NoDone           bool
	SideBand64k      bool
	OfsDelta         bool
	ReportStatus     bool
	ObjectFormat     digest.Algorithm
	Agent            string
}

// String renders the space-separated capability list.
func (c Capabilities) String() string {
	var caps []string
	if c.MultiAckDetailed {
		caps = append(caps, "multi_ack_detailed")
	}
	if c.NoDone {
		caps = append(caps, "no-done")
	}
	if c.SideBand64k {
		caps = append(caps, "side-band-64k")
	}
	if c.OfsDelta {
		caps = append(caps, "ofs-delta")
	}
	if c.ReportStatus {
		caps = append(caps, "report-status")
	}
	caps = append(caps, fmt.Sprintf("object-format=%s", c.ObjectFormat))
	caps = append(caps, fmt.Sprintf("agent=%s", c.Agent))
	return strings.Join(caps, " ")
}

// Default advertises everything spec §4.H requires at minimum.
func Default(algo digest.Algorithm, agent string) Capabilities {
	return Capabilities{
		MultiAckDetailed: true,
		NoDone:           true,
		SideBand64k:      true,
		OfsDelta:         true,
		ReportStatus:     true,
		ObjectFormat:     algo,
		Agent:            agent,
	}
}

// ParseClientCapabilities extracts the capability tokens a client
// sent on its first want/command line. Unknown capabilities are
// ignored by the caller; ParseClientCapabilities just tokenizes.
func ParseClientCapabilities(line string) (rest string, caps map[string]string) {
	caps = make(map[string]string)
	nul := strings.IndexByte(line, 0)
	if nul < 0 {
		return line, caps
	}
	rest = line[:nul]
	for _, tok := range strings.Fields(line[nul+1:]) {
		if k, v, ok := strings.Cut(tok, "="); ok {
			caps[k] = v
		} else {
			caps[tok] = ""
		}
	}
	return rest, caps
}

// CheckObjectFormat enforces spec §4.H: an object-format mismatch is
// fatal.
func CheckObjectFormat(caps map[string]string, active digest.Algorithm) error {
	v, ok := caps["object-format"]
	if !ok {
		return nil
	}
	got, err := digest.AlgorithmFromString(v)
	if err != nil {
		return fmt.Errorf("protocol: unrecognized object-format %q", v)
	}
	if got != active {
		return fmt.Errorf("protocol: object-format mismatch: client wants %s, server pinned to %s", got, active)
	}
	return nil
}

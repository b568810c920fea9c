package protocol

import (
	"fmt"
	"io"
)

// Side-band channel numbers (spec §4.H).
const (
	BandPack     = 1
	BandProgress = 2
	BandError    = 3
)

// MaxSidebandChunk is the largest data chunk that fits in one
// side-band frame once the 1-byte band prefix and 4-byte pkt-line
// length are accounted for (spec §4.H: "Max chunk payload = 65515").
const MaxSidebandChunk = 65515

// SidebandWriter frames writes to a given band as pkt-line packets
// with the band number as the first payload byte.
type SidebandWriter struct {
	w    io.Writer
	band byte
}

func NewSidebandWriter(w io.Writer, band byte) *SidebandWriter {
	return &SidebandWriter{w: w, band: band}
}

func (s *SidebandWriter) Write(p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		n := len(p)
		if n > MaxSidebandChunk {
			n = MaxSidebandChunk
		}
		frame := make([]byte, 0, n+1)
		frame = append(frame, s.band)
		frame = append(frame, p[:n]...)
		if err := WriteData(s.w, frame); err != nil {
			return total, err
		}
		total += n
		p = p[n:]
	}
	return total, nil
}

// DemuxPacket splits a side-band data packet into its band and
// payload.
func DemuxPacket(p Packet) (band byte, payload []byte, err error) {
	if p.Type != DataPacket || len(p.Data) == 0 {
		return 0, nil, fmt.Errorf("protocol: not a side-band data packet")
	}
	return p.Data[0], p.Data[1:], nil
}

package protocol

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/mega-forge/mega-core/internal/digest"
	"github.com/mega-forge/mega-core/internal/object"
	"github.com/mega-forge/mega-core/internal/pack"
)

// UploadPack runs the fetch state machine of spec §4.H (S0 Ready
// through S4 End). It is read-only: ctx cancellation between the have
// loop and pack streaming abandons computation without touching
// store or refs.
func UploadPack(ctx context.Context, r *Reader, w io.Writer, objects ObjectGetter, algo digest.Algorithm) error {
	// S0: want lines, optional shallow/deepen (not modeled: shallow
	// clones are out of this spec's scope).
	lines, err := r.ReadUntilFlush()
	if err != nil {
		return fmt.Errorf("protocol: reading want lines: %w", err)
	}
	var wants []digest.Hash
	for i, l := range lines {
		text := strings.TrimSuffix(string(l), "\n")
		if i == 0 {
			text, caps := ParseClientCapabilities(text)
			if err := CheckObjectFormat(caps, algo); err != nil {
				sb := NewSidebandWriter(w, BandError)
				_, _ = sb.Write([]byte(err.Error()))
				return err
			}
			_ = caps
			if !strings.HasPrefix(text, "want ") {
				return fmt.Errorf("protocol: expected want line, got %q", text)
			}
			h, err := digest.FromHexAlgorithm(algo, strings.TrimPrefix(text, "want "))
			if err != nil {
				return fmt.Errorf("protocol: malformed want: %w", err)
			}
			wants = append(wants, h)
			continue
		}
		if !strings.HasPrefix(text, "want ") {
			continue
		}
		h, err := digest.FromHexAlgorithm(algo, strings.TrimPrefix(text, "want "))
		if err != nil {
			return fmt.Errorf("protocol: malformed want: %w", err)
		}
		wants = append(wants, h)
	}

	// S1: have loop.
	var commons []digest.Hash
	done := false
	for !done {
		haveLines, err := r.ReadUntilFlush()
		if err != nil {
			return fmt.Errorf("protocol: reading have lines: %w", err)
		}
		if len(haveLines) == 0 {
			// flush with no haves: client signals readiness via a
			// bare flush only when it has none to offer.
			if err := WriteLine(w, "NAK"); err != nil {
				return err
			}
			break
		}
		for _, l := range haveLines {
			text := strings.TrimSuffix(string(l), "\n")
			if text == "done" {
				done = true
				continue
			}
			if !strings.HasPrefix(text, "have ") {
				continue
			}
			h, err := digest.FromHexAlgorithm(algo, strings.TrimPrefix(text, "have "))
			if err != nil {
				continue
			}
			isCommon := false
			for _, want := range wants {
				ok, err := IsAncestor(ctx, objects, want, h)
				if err == nil && ok {
					isCommon = true
					break
				}
			}
			if isCommon {
				commons = append(commons, h)
				if err := WriteLine(w, fmt.Sprintf("ACK %s common", h)); err != nil {
					return err
				}
			}
		}
		if done {
			break
		}
	}

	select {
	case <-ctx.Done():
		return nil // S1->S3 cancellation: abandon, no writes occurred beyond ACKs.
	default:
	}

	// S2: compute wants-minus-commons closure.
	wantClosure, err := Closure(ctx, objects, wants)
	if err != nil {
		return err
	}
	if len(commons) > 0 {
		commonClosure, err := Closure(ctx, objects, commons)
		if err != nil {
			return err
		}
		for h := range commonClosure {
			delete(wantClosure, h)
		}
	}

	// S3: stream pack over band 1, ordered commits -> trees -> blobs.
	inputs := make([]pack.EncodeInput, 0, len(wantClosure))
	for h, e := range wantClosure {
		if e.Type == object.InvalidObject {
			continue
		}
		inputs = append(inputs, pack.EncodeInput{Hash: h, Type: e.Type, Body: e.Body})
	}
	raw, err := pack.Encode(inputs, pack.EncodeOptions{})
	if err != nil {
		sb := NewSidebandWriter(w, BandError)
		_, _ = sb.Write([]byte(err.Error()))
		return err
	}
	packWriter := NewSidebandWriter(w, BandPack)
	if _, err := io.Copy(packWriter, bytes.NewReader(raw)); err != nil {
		return err
	}

	// S4: end.
	return WriteFlush(w)
}

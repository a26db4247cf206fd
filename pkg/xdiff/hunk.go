// Package xdiff holds byte-range patches: hunk application, the line diff
// that produces them and hunk trimming.
package xdiff

import (
	"errors"
	"fmt"
)

// ErrBadHunk is returned when a hunk does not fit its reference buffer.
var ErrBadHunk = errors.New("hunk out of range")

// Hunk replaces ref[Start:End] with Data.
type Hunk struct {
	Start int
	End   int
	Data  []byte
}

// Check validates hunks against a reference of length refLen: each hunk
// must start at or after the previous end, start within the reference and
// end no earlier than it starts; the last end must not pass the reference.
func Check(hunks []Hunk, refLen int) error {
	lastEnd := 0
	for i, h := range hunks {
		switch {
		case h.Start < lastEnd:
			return fmt.Errorf("%w: hunk %d starts at %d before previous end %d", ErrBadHunk, i, h.Start, lastEnd)
		case h.Start > refLen:
			return fmt.Errorf("%w: hunk %d starts at %d past reference length %d", ErrBadHunk, i, h.Start, refLen)
		case h.End < h.Start:
			return fmt.Errorf("%w: hunk %d ends at %d before its start %d", ErrBadHunk, i, h.End, h.Start)
		}
		lastEnd = h.End
	}
	if lastEnd > refLen {
		return fmt.Errorf("%w: last hunk ends at %d past reference length %d", ErrBadHunk, lastEnd, refLen)
	}
	return nil
}

// Apply returns ref with hunks applied. The result never aliases ref.
func Apply(ref []byte, hunks []Hunk) ([]byte, error) {
	if err := Check(hunks, len(ref)); err != nil {
		return nil, err
	}
	size := len(ref)
	for _, h := range hunks {
		size += len(h.Data) - (h.End - h.Start)
	}
	out := make([]byte, 0, size)
	last := 0
	for _, h := range hunks {
		out = append(out, ref[last:h.Start]...)
		out = append(out, h.Data...)
		last = h.End
	}
	return append(out, ref[last:]...), nil
}

// Trim narrows a hunk over ref by dropping the bytes its replacement shares
// with the replaced range at either end. The suffix never overlaps the
// prefix.
func Trim(ref []byte, h Hunk) Hunk {
	orig := ref[h.Start:h.End]
	data := h.Data
	prefix := 0
	for prefix < len(orig) && prefix < len(data) && orig[prefix] == data[prefix] {
		prefix++
	}
	suffix := 0
	for suffix < len(orig)-prefix && suffix < len(data)-prefix &&
		orig[len(orig)-1-suffix] == data[len(data)-1-suffix] {
		suffix++
	}
	return Hunk{
		Start: h.Start + prefix,
		End:   h.End - suffix,
		Data:  data[prefix : len(data)-suffix],
	}
}

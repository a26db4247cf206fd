package xdiff

import "bytes"

// splitLines returns the lines of b, each keeping its newline. The last
// line lacks one when b does not end with a newline.
func splitLines(b []byte) [][]byte {
	var out [][]byte
	for len(b) > 0 {
		n := bytes.IndexByte(b, '\n') + 1
		if n == 0 {
			n = len(b)
		}
		out = append(out, b[:n:n])
		b = b[n:]
	}
	return out
}

// internLines numbers distinct lines so the search compares ints.
func internLines(a, b [][]byte) ([]int, []int) {
	ids := make(map[string]int)
	number := func(lines [][]byte) []int {
		out := make([]int, len(lines))
		for i, l := range lines {
			id, ok := ids[string(l)]
			if !ok {
				id = len(ids)
				ids[string(l)] = id
			}
			out[i] = id
		}
		return out
	}
	return number(a), number(b)
}

// TextDiff returns the line-granular hunks that turn a into b. Offsets are
// byte offsets into a; hunks are ordered and never touch each other.
func TextDiff(a, b []byte) []Hunk {
	la, lb := splitLines(a), splitLines(b)
	delA, insB := editScript(internLines(la, lb))

	var hunks []Hunk
	i, j, pos := 0, 0, 0
	for i < len(la) || j < len(lb) {
		if i < len(la) && j < len(lb) && !delA[i] && !insB[j] {
			pos += len(la[i])
			i++
			j++
			continue
		}
		h := Hunk{Start: pos}
		for {
			if i < len(la) && delA[i] {
				pos += len(la[i])
				i++
			} else if j < len(lb) && insB[j] {
				h.Data = append(h.Data, lb[j]...)
				j++
			} else {
				break
			}
		}
		h.End = pos
		hunks = append(hunks, h)
	}
	return hunks
}

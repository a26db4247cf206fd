package metadata

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/odvcencio/hgbridge/pkg/xdiff"
)

const upperHex = "0123456789ABCDEF"

// PercentEncode escapes every byte that is not an ASCII letter or digit as
// %XX with uppercase hex digits.
func PercentEncode(data []byte) []byte {
	out := make([]byte, 0, len(data))
	for _, c := range data {
		if isAlnum(c) {
			out = append(out, c)
			continue
		}
		out = append(out, '%', upperHex[c>>4], upperHex[c&0xf])
	}
	return out
}

// PercentDecode reverses PercentEncode. A '%' not followed by two hex
// digits is kept literally.
func PercentDecode(data []byte) []byte {
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		c := data[i]
		if c == '%' && i+2 < len(data) && isHex(data[i+1]) && isHex(data[i+2]) {
			out = append(out, unhex(data[i+1])<<4|unhex(data[i+2]))
			i += 2
			continue
		}
		out = append(out, c)
	}
	return out
}

func isAlnum(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}

// EncodePatch serializes hunks as "start,end,data" triples joined by NUL,
// with data percent-encoded.
func EncodePatch(hunks []xdiff.Hunk) []byte {
	var buf bytes.Buffer
	for i, h := range hunks {
		if i > 0 {
			buf.WriteByte(0)
		}
		buf.WriteString(strconv.Itoa(h.Start))
		buf.WriteByte(',')
		buf.WriteString(strconv.Itoa(h.End))
		buf.WriteByte(',')
		buf.Write(PercentEncode(h.Data))
	}
	return buf.Bytes()
}

// DecodePatch parses the output of EncodePatch.
func DecodePatch(data []byte) ([]xdiff.Hunk, error) {
	var hunks []xdiff.Hunk
	for _, part := range bytes.Split(data, []byte{0}) {
		fields := bytes.SplitN(part, []byte{','}, 3)
		if len(fields) != 3 {
			return nil, fmt.Errorf("%w: malformed patch entry %q", ErrInvalidMetadata, part)
		}
		start, err := strconv.Atoi(string(fields[0]))
		if err != nil || start < 0 {
			return nil, fmt.Errorf("%w: patch start %q", ErrInvalidMetadata, fields[0])
		}
		end, err := strconv.Atoi(string(fields[1]))
		if err != nil || end < 0 {
			return nil, fmt.Errorf("%w: patch end %q", ErrInvalidMetadata, fields[1])
		}
		hunks = append(hunks, xdiff.Hunk{Start: start, End: end, Data: PercentDecode(fields[2])})
	}
	return hunks, nil
}

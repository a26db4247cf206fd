package hg

import (
	"bytes"
)

var metaMarker = []byte("\x01\n")

// HasMetadataMarker reports whether data begins with the file metadata
// marker.
func HasMetadataMarker(data []byte) bool {
	return bytes.HasPrefix(data, metaMarker)
}

// SplitFile separates a file revision into its metadata block and content.
// meta is nil when the revision is not framed; a framed revision with an
// empty block yields a non-nil empty meta. A frame without its closing
// marker is treated as plain content.
func SplitFile(data []byte) (meta, content []byte) {
	if !HasMetadataMarker(data) {
		return nil, data
	}
	end := bytes.Index(data[len(metaMarker):], metaMarker)
	if end < 0 {
		return nil, data
	}
	end += len(metaMarker)
	return data[len(metaMarker):end:end], data[end+len(metaMarker):]
}

// JoinFile is the inverse of SplitFile.
func JoinFile(meta, content []byte) []byte {
	if meta == nil {
		out := make([]byte, len(content))
		copy(out, content)
		return out
	}
	out := make([]byte, 0, len(meta)+len(content)+2*len(metaMarker))
	out = append(out, metaMarker...)
	out = append(out, meta...)
	out = append(out, metaMarker...)
	return append(out, content...)
}

// ParseFileMeta parses "key: value" lines of a metadata block, such as
// copy and copyrev.
func ParseFileMeta(meta []byte) map[string]string {
	out := make(map[string]string)
	for _, line := range bytes.Split(meta, []byte("\n")) {
		k, v, ok := bytes.Cut(line, []byte(": "))
		if ok {
			out[string(k)] = string(v)
		}
	}
	return out
}

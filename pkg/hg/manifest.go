package hg

import (
	"bytes"
	"fmt"
)

// ManifestEntry is one line of a manifest: path, file node and flags
// ("" regular, "x" executable, "l" symlink).
type ManifestEntry struct {
	Path  string
	Node  FileID
	Flags string
}

// ParseManifest parses "path\0hex40flags\n" lines.
func ParseManifest(data []byte) ([]ManifestEntry, error) {
	var out []ManifestEntry
	for len(data) > 0 {
		nl := bytes.IndexByte(data, '\n')
		if nl < 0 {
			return nil, fmt.Errorf("manifest: unterminated line %q", data)
		}
		line := data[:nl]
		data = data[nl+1:]
		path, rest, ok := bytes.Cut(line, []byte{0})
		if !ok || len(path) == 0 || len(rest) < 2*IDSize {
			return nil, fmt.Errorf("manifest: malformed line %q", line)
		}
		node, err := ParseFileID(string(rest[:2*IDSize]))
		if err != nil {
			return nil, fmt.Errorf("manifest: %w", err)
		}
		out = append(out, ManifestEntry{Path: string(path), Node: node, Flags: string(rest[2*IDSize:])})
	}
	return out, nil
}

// MarshalManifest renders entries in the order given.
func MarshalManifest(entries []ManifestEntry) []byte {
	var buf bytes.Buffer
	for _, e := range entries {
		buf.WriteString(e.Path)
		buf.WriteByte(0)
		buf.WriteString(e.Node.String())
		buf.WriteString(e.Flags)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

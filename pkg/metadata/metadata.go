// Package metadata encodes the per-changeset side record that carries
// everything a native commit cannot express about its foreign changeset.
package metadata

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/odvcencio/hgbridge/pkg/hg"
	"github.com/odvcencio/hgbridge/pkg/xdiff"
)

// ErrInvalidMetadata is returned when a metadata blob does not parse.
var ErrInvalidMetadata = errors.New("invalid changeset metadata")

// ChangesetMetadata is the side record stored for every changeset. Nil
// optional fields are absent; a present empty field is distinct from an
// absent one.
type ChangesetMetadata struct {
	ChangesetID hg.ChangesetID
	ManifestID  hg.ManifestID
	Author      []byte
	Extra       []byte
	Files       []byte
	Patch       []byte
}

// Parse decodes a metadata blob. Returned byte fields alias data.
func Parse(data []byte) (*ChangesetMetadata, error) {
	m := &ChangesetMetadata{}
	haveChangeset := false
	for _, line := range bytes.Split(data, []byte("\n")) {
		key, value, ok := bytes.Cut(line, []byte(" "))
		if !ok {
			return nil, fmt.Errorf("%w: malformed line %q", ErrInvalidMetadata, line)
		}
		switch string(key) {
		case "changeset":
			id, err := hg.ParseChangesetID(string(value))
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
			}
			m.ChangesetID = id
			haveChangeset = true
		case "manifest":
			id, err := hg.ParseManifestID(string(value))
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
			}
			m.ManifestID = id
		case "author":
			m.Author = value
		case "extra":
			m.Extra = value
		case "files":
			m.Files = value
		case "patch":
			m.Patch = value
		default:
			return nil, fmt.Errorf("%w: unknown key %q", ErrInvalidMetadata, key)
		}
	}
	if !haveChangeset {
		return nil, fmt.Errorf("%w: missing changeset", ErrInvalidMetadata)
	}
	return m, nil
}

// Serialize encodes m. The manifest line is omitted for the null manifest
// and the output carries no trailing newline.
func (m *ChangesetMetadata) Serialize() []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "changeset %s\n", m.ChangesetID)
	if !m.ManifestID.IsNull() {
		fmt.Fprintf(&buf, "manifest %s\n", m.ManifestID)
	}
	for _, f := range []struct {
		key   string
		value []byte
	}{
		{"author", m.Author},
		{"extra", m.Extra},
		{"files", m.Files},
		{"patch", m.Patch},
	} {
		if f.value == nil {
			continue
		}
		buf.WriteString(f.key)
		buf.WriteByte(' ')
		buf.Write(f.value)
		buf.WriteByte('\n')
	}
	out := buf.Bytes()
	return out[:len(out)-1]
}

// Equal reports whether every field of m and other matches, treating an
// absent field as different from a present empty one.
func (m *ChangesetMetadata) Equal(other *ChangesetMetadata) bool {
	return m.ChangesetID == other.ChangesetID &&
		m.ManifestID == other.ManifestID &&
		optionalEqual(m.Author, other.Author) &&
		optionalEqual(m.Extra, other.Extra) &&
		optionalEqual(m.Files, other.Files) &&
		optionalEqual(m.Patch, other.Patch)
}

func optionalEqual(a, b []byte) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return bytes.Equal(a, b)
}

// ExtraDict parses the extra field, or returns nil when absent.
func (m *ChangesetMetadata) ExtraDict() *hg.Extra {
	if m.Extra == nil {
		return nil
	}
	return hg.ParseExtra(m.Extra)
}

// FileList splits the NUL-joined file list. An absent list yields nil.
func (m *ChangesetMetadata) FileList() [][]byte {
	if m.Files == nil {
		return nil
	}
	return bytes.Split(m.Files, []byte{0})
}

// PatchHunks decodes the patch field. An absent patch yields nil.
func (m *ChangesetMetadata) PatchHunks() ([]xdiff.Hunk, error) {
	if m.Patch == nil {
		return nil, nil
	}
	return DecodePatch(m.Patch)
}

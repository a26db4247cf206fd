// Package hg models the foreign (Mercurial) side of the bridge: SHA-1 node
// ids, raw changeset and manifest text, file metadata framing and the
// authorship conversion to and from native commit identities.
package hg

import (
	"bytes"
	"encoding/hex"
	"fmt"
)

// IDSize is the length in bytes of a node id.
const IDSize = 20

// ObjectID is a 20-byte SHA-1 node id.
type ObjectID [IDSize]byte

// NullID is the all-zero node id.
var NullID ObjectID

// String returns the 40-character lowercase hex form.
func (id ObjectID) String() string { return hex.EncodeToString(id[:]) }

// IsNull reports whether id is the null id.
func (id ObjectID) IsNull() bool { return id == NullID }

// Compare orders ids bytewise.
func (id ObjectID) Compare(other ObjectID) int { return bytes.Compare(id[:], other[:]) }

// ParseObjectID parses a 40-character hex node id.
func ParseObjectID(s string) (ObjectID, error) {
	var id ObjectID
	if len(s) != 2*IDSize {
		return id, fmt.Errorf("hg id %q: want %d hex characters", s, 2*IDSize)
	}
	if _, err := hex.Decode(id[:], []byte(s)); err != nil {
		return id, fmt.Errorf("hg id %q: %w", s, err)
	}
	return id, nil
}

// Typed ids keep changeset, manifest and file ids apart at compile time.
type (
	ChangesetID struct{ ObjectID }
	ManifestID  struct{ ObjectID }
	FileID      struct{ ObjectID }
)

var (
	NullChangesetID ChangesetID
	NullManifestID  ManifestID
	NullFileID      FileID
)

// ParseChangesetID parses a hex changeset id.
func ParseChangesetID(s string) (ChangesetID, error) {
	id, err := ParseObjectID(s)
	return ChangesetID{id}, err
}

// ParseManifestID parses a hex manifest id.
func ParseManifestID(s string) (ManifestID, error) {
	id, err := ParseObjectID(s)
	return ManifestID{id}, err
}

// ParseFileID parses a hex file id.
func ParseFileID(s string) (FileID, error) {
	id, err := ParseObjectID(s)
	return FileID{id}, err
}

// MustChangesetID parses s and panics on error. Intended for tests and
// constants.
func MustChangesetID(s string) ChangesetID {
	id, err := ParseChangesetID(s)
	if err != nil {
		panic(err)
	}
	return id
}

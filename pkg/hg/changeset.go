package hg

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
)

// ErrMalformedChangeset is returned when raw changeset text cannot be
// split into its header fields.
var ErrMalformedChangeset = errors.New("malformed changeset")

// Changeset is a parsed raw changeset. Byte fields alias the parsed
// buffer; Extra and Files are nil when the raw text carries none.
type Changeset struct {
	Manifest  ManifestID
	Author    []byte
	Timestamp []byte
	UTCOffset []byte
	Extra     []byte
	Files     [][]byte
	Body      []byte
}

// ParseChangeset splits raw changeset text:
//
//	<manifest hex>
//	<author>
//	<timestamp> <utcoffset>[ <extra>]
//	<file>...
//
//	<body>
func ParseChangeset(raw []byte) (*Changeset, error) {
	header, body, ok := bytes.Cut(raw, []byte("\n\n"))
	if !ok {
		return nil, fmt.Errorf("%w: no header terminator", ErrMalformedChangeset)
	}
	lines := bytes.SplitN(header, []byte("\n"), 4)
	if len(lines) < 3 {
		return nil, fmt.Errorf("%w: short header", ErrMalformedChangeset)
	}
	manifest, err := ParseManifestID(string(lines[0]))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedChangeset, err)
	}
	date := bytes.SplitN(lines[2], []byte(" "), 3)
	if len(date) < 2 {
		return nil, fmt.Errorf("%w: bad date line %q", ErrMalformedChangeset, lines[2])
	}
	cs := &Changeset{
		Manifest:  manifest,
		Author:    lines[1],
		Timestamp: date[0],
		UTCOffset: date[1],
		Body:      body,
	}
	if len(date) == 3 {
		cs.Extra = date[2]
	}
	if len(lines) == 4 {
		cs.Files = bytes.Split(lines[3], []byte("\n"))
	}
	return cs, nil
}

// ExtraDict parses the extra field, or returns nil when absent.
func (cs *Changeset) ExtraDict() *Extra {
	if cs.Extra == nil {
		return nil
	}
	return ParseExtra(cs.Extra)
}

// Branch returns the changeset's named branch, "default" when the extra
// carries no branch key. A present key is returned verbatim, even empty.
func (cs *Changeset) Branch() string {
	if e := cs.ExtraDict(); e != nil {
		if b, ok := e.Get("branch"); ok {
			return b
		}
	}
	return "default"
}

// Authorship returns the author with the parsed date. Fractional
// timestamps are truncated.
func (cs *Changeset) Authorship() (Authorship, error) {
	ts, err := strconv.ParseFloat(string(cs.Timestamp), 64)
	if err != nil {
		return Authorship{}, fmt.Errorf("changeset timestamp %q: %w", cs.Timestamp, err)
	}
	off, err := strconv.Atoi(string(cs.UTCOffset))
	if err != nil {
		return Authorship{}, fmt.Errorf("changeset utcoffset %q: %w", cs.UTCOffset, err)
	}
	return Authorship{Author: string(cs.Author), Timestamp: int64(ts), UTCOffset: off}, nil
}

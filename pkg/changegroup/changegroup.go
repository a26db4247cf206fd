package changegroup

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/odvcencio/hgbridge/pkg/hg"
	"github.com/odvcencio/hgbridge/pkg/xdiff"
)

// Version is a changegroup format version.
type Version int

const (
	V1 Version = 1
	V2 Version = 2
	V3 Version = 3
)

func (v Version) headerSize() int {
	switch v {
	case V1:
		return 4 * hg.IDSize
	case V2:
		return 5 * hg.IDSize
	case V3:
		return 5*hg.IDSize + 2
	}
	return 0
}

// Valid reports whether v is a supported version.
func (v Version) Valid() bool { return v.headerSize() != 0 }

// hunkHeaderSize is start, end and data length, each a big-endian uint32.
const hunkHeaderSize = 12

// Chunk is one revision of a group: its ids and the hunks that turn the
// delta base into the revision's full text.
type Chunk struct {
	Node      hg.ObjectID
	P1        hg.ObjectID
	P2        hg.ObjectID
	DeltaBase hg.ObjectID
	Changeset hg.ObjectID
	Flags     uint16
	Hunks     []xdiff.Hunk
}

// Parents returns the non-null parents in order.
func (c *Chunk) Parents() []hg.ObjectID {
	var out []hg.ObjectID
	for _, p := range [2]hg.ObjectID{c.P1, c.P2} {
		if !p.IsNull() {
			out = append(out, p)
		}
	}
	return out
}

// Apply rebuilds the revision text from the delta base's text.
func (c *Chunk) Apply(base []byte) ([]byte, error) {
	out, err := xdiff.Apply(base, c.Hunks)
	if err != nil {
		return nil, fmt.Errorf("revision %s: %w", c.Node, err)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Reader
// ---------------------------------------------------------------------------

// Reader decodes revision chunks of one version. In version 1 the delta
// base is implicit: the previous revision of the group, or p1 for the
// first one.
type Reader struct {
	cr      *ChunkReader
	version Version
	prev    hg.ObjectID
	inGroup bool
}

// NewReader returns a Reader decoding version v chunks from r.
func NewReader(r io.Reader, v Version) (*Reader, error) {
	if !v.Valid() {
		return nil, fmt.Errorf("changegroup: unsupported version %d", v)
	}
	return &Reader{cr: NewChunkReader(r), version: v}, nil
}

// Version returns the stream version.
func (r *Reader) Version() Version { return r.version }

// Next returns the next revision of the current group, or io.EOF at the end
// of the group. The following call starts the next group.
func (r *Reader) Next() (*Chunk, error) {
	payload, err := r.cr.ReadChunk()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: unexpected end of stream", ErrMalformed)
	}
	if err != nil {
		return nil, err
	}
	if len(payload) == 0 {
		r.inGroup = false
		r.prev = hg.NullID
		return nil, io.EOF
	}
	c, err := r.decode(payload)
	if err != nil {
		return nil, err
	}
	r.inGroup = true
	r.prev = c.Node
	return c, nil
}

func (r *Reader) decode(payload []byte) (*Chunk, error) {
	size := r.version.headerSize()
	if len(payload) < size {
		return nil, fmt.Errorf("%w: chunk header is %d bytes, want %d", ErrMalformed, len(payload), size)
	}
	id := func(i int) hg.ObjectID {
		var out hg.ObjectID
		copy(out[:], payload[i*hg.IDSize:(i+1)*hg.IDSize])
		return out
	}
	c := &Chunk{Node: id(0), P1: id(1), P2: id(2)}
	switch r.version {
	case V1:
		c.Changeset = id(3)
		if r.inGroup {
			c.DeltaBase = r.prev
		} else {
			c.DeltaBase = c.P1
		}
	default:
		c.DeltaBase = id(3)
		c.Changeset = id(4)
		if r.version == V3 {
			c.Flags = binary.BigEndian.Uint16(payload[5*hg.IDSize:])
		}
	}
	hunks, err := decodeHunks(payload[size:])
	if err != nil {
		return nil, fmt.Errorf("revision %s: %w", c.Node, err)
	}
	c.Hunks = hunks
	return c, nil
}

func decodeHunks(data []byte) ([]xdiff.Hunk, error) {
	var hunks []xdiff.Hunk
	for len(data) > 0 {
		if len(data) < hunkHeaderSize {
			return nil, fmt.Errorf("%w: truncated hunk header", ErrMalformed)
		}
		start := binary.BigEndian.Uint32(data)
		end := binary.BigEndian.Uint32(data[4:])
		n := binary.BigEndian.Uint32(data[8:])
		data = data[hunkHeaderSize:]
		if uint64(n) > uint64(len(data)) {
			return nil, fmt.Errorf("%w: hunk data is %d bytes, %d left", ErrMalformed, n, len(data))
		}
		hunks = append(hunks, xdiff.Hunk{Start: int(start), End: int(end), Data: data[:n:n]})
		data = data[n:]
	}
	return hunks, nil
}

// Filename reads a file section header. ok is false on the empty chunk that
// ends the file list.
func (r *Reader) Filename() (name string, ok bool, err error) {
	payload, err := r.cr.ReadChunk()
	if err == io.EOF {
		return "", false, fmt.Errorf("%w: unexpected end of stream", ErrMalformed)
	}
	if err != nil {
		return "", false, err
	}
	if len(payload) == 0 {
		return "", false, nil
	}
	return string(payload), true, nil
}

// SkipTreeManifests consumes the directory manifest section that version 3
// streams carry after the manifest group. Only the empty section is
// accepted.
func (r *Reader) SkipTreeManifests() error {
	if r.version != V3 {
		return nil
	}
	dir, ok, err := r.Filename()
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("%w: tree manifest %q not supported", ErrMalformed, dir)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Writer
// ---------------------------------------------------------------------------

// Writer encodes revision chunks. It is used to build fixtures and test
// streams; chunks must already hold the hunks against their delta base.
type Writer struct {
	cw      *ChunkWriter
	version Version
}

// NewWriter returns a Writer encoding version v chunks to w.
func NewWriter(w io.Writer, v Version) (*Writer, error) {
	if !v.Valid() {
		return nil, fmt.Errorf("changegroup: unsupported version %d", v)
	}
	return &Writer{cw: NewChunkWriter(w), version: v}, nil
}

// WriteChunk writes one revision. Version 1 streams drop DeltaBase.
func (w *Writer) WriteChunk(c *Chunk) error {
	var buf bytes.Buffer
	buf.Write(c.Node[:])
	buf.Write(c.P1[:])
	buf.Write(c.P2[:])
	if w.version != V1 {
		buf.Write(c.DeltaBase[:])
	}
	buf.Write(c.Changeset[:])
	if w.version == V3 {
		var flags [2]byte
		binary.BigEndian.PutUint16(flags[:], c.Flags)
		buf.Write(flags[:])
	}
	for _, h := range c.Hunks {
		var hdr [hunkHeaderSize]byte
		binary.BigEndian.PutUint32(hdr[0:], uint32(h.Start))
		binary.BigEndian.PutUint32(hdr[4:], uint32(h.End))
		binary.BigEndian.PutUint32(hdr[8:], uint32(len(h.Data)))
		buf.Write(hdr[:])
		buf.Write(h.Data)
	}
	return w.cw.WriteChunk(buf.Bytes())
}

// WriteFilename opens a file section.
func (w *Writer) WriteFilename(name string) error {
	return w.cw.WriteChunk([]byte(name))
}

// WriteEnd closes a group, or the file list.
func (w *Writer) WriteEnd() error {
	return w.cw.WriteEnd()
}

// FullText returns the single hunk that replaces base with text.
func FullText(baseLen int, text []byte) []xdiff.Hunk {
	return []xdiff.Hunk{{Start: 0, End: baseLen, Data: text}}
}

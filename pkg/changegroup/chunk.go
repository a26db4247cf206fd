// Package changegroup reads and writes Mercurial changegroup streams: the
// changeset, manifest and file revision groups exchanged between
// repositories, each revision sent as a delta against an earlier one.
package changegroup

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrMalformed reports a changegroup stream that cannot be decoded.
var ErrMalformed = errors.New("malformed changegroup")

// lengthSize is the size of the big-endian chunk length prefix. The prefix
// counts itself, so a chunk of n payload bytes is announced as n+4.
const lengthSize = 4

// ChunkReader reads length-prefixed chunks. A length of at most 4 ends the
// current group.
type ChunkReader struct {
	r io.Reader
}

// NewChunkReader wraps r.
func NewChunkReader(r io.Reader) *ChunkReader {
	return &ChunkReader{r: r}
}

// ReadChunk returns the next chunk payload. An empty, non-nil payload
// marks the end of a group. io.EOF is returned only when the stream ends
// cleanly at a chunk boundary.
func (cr *ChunkReader) ReadChunk() ([]byte, error) {
	var n uint32
	if err := binary.Read(cr.r, binary.BigEndian, &n); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w: read chunk length: %v", ErrMalformed, err)
	}
	if n <= lengthSize {
		return []byte{}, nil
	}
	payload := make([]byte, n-lengthSize)
	if _, err := io.ReadFull(cr.r, payload); err != nil {
		return nil, fmt.Errorf("%w: read chunk: %v", ErrMalformed, err)
	}
	return payload, nil
}

// ChunkWriter writes length-prefixed chunks.
type ChunkWriter struct {
	w io.Writer
}

// NewChunkWriter wraps w.
func NewChunkWriter(w io.Writer) *ChunkWriter {
	return &ChunkWriter{w: w}
}

// WriteChunk writes one chunk. Empty payloads must go through WriteEnd.
func (cw *ChunkWriter) WriteChunk(payload []byte) error {
	if len(payload) == 0 {
		return fmt.Errorf("write chunk: empty payload")
	}
	if err := binary.Write(cw.w, binary.BigEndian, uint32(len(payload)+lengthSize)); err != nil {
		return fmt.Errorf("write chunk length: %w", err)
	}
	if _, err := cw.w.Write(payload); err != nil {
		return fmt.Errorf("write chunk: %w", err)
	}
	return nil
}

// WriteEnd writes the zero-length chunk that closes a group.
func (cw *ChunkWriter) WriteEnd() error {
	if err := binary.Write(cw.w, binary.BigEndian, uint32(0)); err != nil {
		return fmt.Errorf("write group end: %w", err)
	}
	return nil
}

package changegroup

import (
	"bufio"
	"bytes"
	"compress/bzip2"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// Bundle file headers. A bzip2 bundle omits the "BZ" magic of the
// compressed stream since the header already ends with it.
const (
	HeaderUncompressed = "HG10UN"
	HeaderGzip         = "HG10GZ"
	HeaderBzip2        = "HG10BZ"
	headerLen          = 6
)

// OpenBundle inspects the start of r. A version 1 bundle file header selects
// the decompressor and version 1; a stream without a recognized header is
// returned as is with the fallback version.
func OpenBundle(r io.Reader, fallback Version) (io.Reader, Version, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(headerLen)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, 0, fmt.Errorf("open bundle: %w", err)
	}
	switch string(head) {
	case HeaderUncompressed:
		br.Discard(headerLen)
		return br, V1, nil
	case HeaderGzip:
		br.Discard(headerLen)
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, 0, fmt.Errorf("open bundle: gzip: %w", err)
		}
		return zr, V1, nil
	case HeaderBzip2:
		br.Discard(headerLen)
		return bzip2.NewReader(io.MultiReader(bytes.NewReader([]byte("BZ")), br)), V1, nil
	}
	if bytes.HasPrefix(head, []byte("HG2")) {
		return nil, 0, fmt.Errorf("open bundle: bundle2 streams are not supported")
	}
	if !fallback.Valid() {
		return nil, 0, fmt.Errorf("open bundle: unsupported version %d", fallback)
	}
	return br, fallback, nil
}

// NewBundleWriter writes a version 1 bundle file header to w and returns the
// writer for the changegroup that follows. Close flushes the compressor but
// does not close w.
func NewBundleWriter(w io.Writer, header string) (io.WriteCloser, error) {
	switch header {
	case HeaderUncompressed, HeaderGzip:
	default:
		return nil, fmt.Errorf("bundle writer: unsupported header %q", header)
	}
	if _, err := io.WriteString(w, header); err != nil {
		return nil, fmt.Errorf("bundle writer: %w", err)
	}
	if header == HeaderGzip {
		return gzip.NewWriter(w), nil
	}
	return nopCloser{w}, nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

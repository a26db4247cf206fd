package changegroup

import (
	"bytes"
	"io"
	"testing"
)

func TestOpenBundleHeaders(t *testing.T) {
	body := []byte("changegroup-bytes")
	for _, header := range []string{HeaderUncompressed, HeaderGzip} {
		var buf bytes.Buffer
		w, err := NewBundleWriter(&buf, header)
		if err != nil {
			t.Fatalf("%s: NewBundleWriter: %v", header, err)
		}
		w.Write(body)
		if err := w.Close(); err != nil {
			t.Fatalf("%s: Close: %v", header, err)
		}
		if !bytes.HasPrefix(buf.Bytes(), []byte(header)) {
			t.Fatalf("%s: header missing", header)
		}

		r, v, err := OpenBundle(&buf, V2)
		if err != nil {
			t.Fatalf("%s: OpenBundle: %v", header, err)
		}
		if v != V1 {
			t.Fatalf("%s: version = %d, want 1", header, v)
		}
		got, err := io.ReadAll(r)
		if err != nil || !bytes.Equal(got, body) {
			t.Fatalf("%s: body = %q, %v", header, got, err)
		}
	}
}

func TestOpenBundleRawStream(t *testing.T) {
	raw := []byte{0, 0, 0, 0}
	r, v, err := OpenBundle(bytes.NewReader(raw), V2)
	if err != nil || v != V2 {
		t.Fatalf("OpenBundle = %d, %v", v, err)
	}
	got, _ := io.ReadAll(r)
	if !bytes.Equal(got, raw) {
		t.Fatalf("raw stream altered: %q", got)
	}
}

func TestOpenBundleRejectsBundle2(t *testing.T) {
	if _, _, err := OpenBundle(bytes.NewReader([]byte("HG20\x00\x00")), V2); err == nil {
		t.Fatal("expected error for bundle2")
	}
}

func TestNewBundleWriterRejectsBzip2(t *testing.T) {
	if _, err := NewBundleWriter(io.Discard, HeaderBzip2); err == nil {
		t.Fatal("expected error")
	}
}

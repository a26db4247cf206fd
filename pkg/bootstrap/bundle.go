package bootstrap

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/odvcencio/hgbridge/pkg/object"
)

// Signature opens every metadata bundle.
const Signature = "# v2 git bundle\n"

var (
	// ErrNoSignature reports a stream that is not a metadata bundle.
	ErrNoSignature = errors.New("metadata bundle signature not found")
	// ErrCorruptBundle reports an object whose content does not match its
	// recorded hash, or a malformed record.
	ErrCorruptBundle = errors.New("corrupt metadata bundle")
)

// Ref is one advertised ref of a bundle.
type Ref struct {
	Name string
	Hash object.Hash
}

// Bundle is an opened metadata bundle. The ref list is read eagerly; the
// object stream is consumed by Unpack.
type Bundle struct {
	Refs []Ref
	body *bufio.Reader
}

// ReadBundle checks the signature of r and reads the ref list:
// "<hash> <ref>" lines terminated by an empty line.
func ReadBundle(r io.Reader) (*Bundle, error) {
	br := bufio.NewReader(r)
	sig := make([]byte, len(Signature))
	if _, err := io.ReadFull(br, sig); err != nil || string(sig) != Signature {
		return nil, ErrNoSignature
	}
	b := &Bundle{body: br}
	for {
		line, err := br.ReadString('\n')
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("read bundle refs: %w", err)
		}
		line = strings.TrimSuffix(line, "\n")
		if line == "" {
			if err == io.EOF {
				return nil, fmt.Errorf("%w: unterminated ref list", ErrCorruptBundle)
			}
			return b, nil
		}
		hash, name, ok := strings.Cut(line, " ")
		if !ok || !object.ValidHash(object.Hash(hash)) || name == "" {
			return nil, fmt.Errorf("%w: bad ref line %q", ErrCorruptBundle, line)
		}
		b.Refs = append(b.Refs, Ref{Name: name, Hash: object.Hash(hash)})
		if err == io.EOF {
			return nil, fmt.Errorf("%w: unterminated ref list", ErrCorruptBundle)
		}
	}
}

// RefMap returns the refs keyed by name.
func (b *Bundle) RefMap() map[string]object.Hash {
	out := make(map[string]object.Hash, len(b.Refs))
	for _, r := range b.Refs {
		out[r.Name] = r.Hash
	}
	return out
}

// Unpack writes every object of the bundle into store and returns how many
// were read. Each object is verified against its recorded hash.
func (b *Bundle) Unpack(store *object.Store) (int, error) {
	dec, err := zstd.NewReader(b.body)
	if err != nil {
		return 0, fmt.Errorf("unpack bundle: %w", err)
	}
	defer dec.Close()
	br := bufio.NewReader(dec)

	n := 0
	for {
		header, err := br.ReadString('\n')
		if err == io.EOF && header == "" {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("%w: truncated record header", ErrCorruptBundle)
		}
		fields := strings.Fields(header)
		if len(fields) != 3 {
			return n, fmt.Errorf("%w: bad record header %q", ErrCorruptBundle, strings.TrimSpace(header))
		}
		objType, want := object.ObjectType(fields[0]), object.Hash(fields[1])
		size, err := strconv.Atoi(fields[2])
		if err != nil || size < 0 {
			return n, fmt.Errorf("%w: bad record size %q", ErrCorruptBundle, fields[2])
		}
		data := make([]byte, size)
		if _, err := io.ReadFull(br, data); err != nil {
			return n, fmt.Errorf("%w: truncated object %s", ErrCorruptBundle, want)
		}
		if got := object.HashObject(objType, data); got != want {
			return n, fmt.Errorf("%w: object %s hashes to %s", ErrCorruptBundle, want, got)
		}
		if _, err := store.Write(objType, data); err != nil {
			return n, fmt.Errorf("unpack bundle: %w", err)
		}
		n++
	}
}

// WriteBundle writes a metadata bundle advertising refs and carrying the
// given objects, read from store.
func WriteBundle(w io.Writer, store *object.Store, refs []Ref, objects []object.Hash) error {
	bw := bufio.NewWriter(w)
	bw.WriteString(Signature)
	sorted := append([]Ref(nil), refs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	for _, r := range sorted {
		fmt.Fprintf(bw, "%s %s\n", r.Hash, r.Name)
	}
	bw.WriteString("\n")

	enc, err := zstd.NewWriter(bw)
	if err != nil {
		return fmt.Errorf("write bundle: %w", err)
	}
	for _, h := range objects {
		objType, data, err := store.Read(h)
		if err != nil {
			enc.Close()
			return fmt.Errorf("write bundle: %w", err)
		}
		fmt.Fprintf(enc, "%s %s %d\n", objType, h, len(data))
		if _, err := enc.Write(data); err != nil {
			enc.Close()
			return fmt.Errorf("write bundle: %w", err)
		}
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("write bundle: %w", err)
	}
	return bw.Flush()
}

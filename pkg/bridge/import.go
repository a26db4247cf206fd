package bridge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/odvcencio/hgbridge/pkg/changegroup"
	"github.com/odvcencio/hgbridge/pkg/graft"
	"github.com/odvcencio/hgbridge/pkg/hg"
	"github.com/odvcencio/hgbridge/pkg/xdiff"
)

// MalformedChunkError reports a changeset chunk whose hunks do not fit its
// delta base.
type MalformedChunkError struct {
	Changeset hg.ChangesetID
	Err       error
}

func (e *MalformedChunkError) Error() string {
	return fmt.Sprintf("malformed changeset chunk for %s: %v", e.Changeset, e.Err)
}

func (e *MalformedChunkError) Unwrap() error { return e.Err }

// ImportStats counts what one changegroup import stored.
type ImportStats struct {
	Changesets int
	Manifests  int
	Files      int
	// Skipped counts changesets whose parents could not be mapped.
	Skipped int
}

// ---------------------------------------------------------------------------
// File tracker
// ---------------------------------------------------------------------------

// fileTracker remembers file revisions whose hash is worth re-checking
// after an import: roots carrying a metadata block and their descendants.
type fileTracker struct {
	mu sync.Mutex
	m  map[hg.FileID][2]hg.FileID
}

func newFileTracker() *fileTracker {
	return &fileTracker{m: make(map[hg.FileID][2]hg.FileID)}
}

func (t *fileTracker) observe(node, p1, p2 hg.FileID, hunks []xdiff.Hunk, hadMetadata bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, tracked1 := t.m[p1]
	_, tracked2 := t.m[p2]
	if hadMetadata || tracked1 || tracked2 {
		t.m[node] = [2]hg.FileID{p1, p2}
		for _, p := range [2]hg.FileID{p1, p2} {
			if p.IsNull() {
				continue
			}
			if e, ok := t.m[p]; ok && !(e[0].IsNull() && e[1].IsNull()) {
				delete(t.m, p)
			}
		}
		return
	}
	if p1.IsNull() && p2.IsNull() && len(hunks) > 0 && hunks[0].Start == 0 && hg.HasMetadataMarker(hunks[0].Data) {
		t.m[node] = [2]hg.FileID{p1, p2}
	}
}

type trackedFile struct {
	node    hg.FileID
	parents [2]hg.FileID
}

func (t *fileTracker) snapshot() []trackedFile {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]trackedFile, 0, len(t.m))
	for node, parents := range t.m {
		out = append(out, trackedFile{node: node, parents: parents})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].node.Compare(out[j].node.ObjectID) < 0 })
	return out
}

func (t *fileTracker) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.m)
}

// ---------------------------------------------------------------------------
// Changegroup import
// ---------------------------------------------------------------------------

// ImportBundle imports a bundle file or a bare version 1 changegroup.
func (s *Session) ImportBundle(ctx context.Context, r io.Reader) (*ImportStats, error) {
	cg, v, err := changegroup.OpenBundle(r, changegroup.V1)
	if err != nil {
		return nil, err
	}
	return s.ImportChangegroup(ctx, cg, v)
}

// ImportChangegroup reads a changegroup of version v and stores every
// revision it carries. Changesets are buffered until manifests and files
// are stored, since their trees depend on both.
func (s *Session) ImportChangegroup(ctx context.Context, r io.Reader, v changegroup.Version) (*ImportStats, error) {
	hadMetadata, err := s.HasMetadata()
	if err != nil {
		return nil, err
	}

	var (
		capture bytes.Buffer
		enc     *zstd.Encoder
	)
	if s.cfg.Check.Unbundler {
		enc, err = zstd.NewWriter(&capture)
		if err != nil {
			return nil, fmt.Errorf("unbundler: %w", err)
		}
		defer func() {
			if enc != nil {
				enc.Close()
			}
		}()
		fmt.Fprintf(enc, "changegroup v%d\n", v)
		r = io.TeeReader(r, enc)
	}

	cg, err := changegroup.NewReader(r, v)
	if err != nil {
		return nil, err
	}
	stats := &ImportStats{}

	changesets, err := readGroup(ctx, cg)
	if err != nil {
		return nil, fmt.Errorf("changesets: %w", err)
	}
	s.log.Infow("reading changesets", "count", len(changesets))

	if err := s.importManifests(ctx, cg, stats); err != nil {
		return nil, err
	}
	if err := cg.SkipTreeManifests(); err != nil {
		return nil, err
	}
	if err := s.importFiles(ctx, cg, stats, hadMetadata); err != nil {
		return nil, err
	}
	if err := s.importChangesets(ctx, changesets, stats); err != nil {
		return nil, err
	}

	if enc != nil {
		err := enc.Close()
		enc = nil
		if err != nil {
			return nil, fmt.Errorf("unbundler: %w", err)
		}
		blob, err := s.store.WriteBlob(capture.Bytes())
		if err != nil {
			return nil, fmt.Errorf("unbundler: %w", err)
		}
		s.bundle = blob
	}
	s.log.Infow("imported changegroup",
		"changesets", stats.Changesets, "manifests", stats.Manifests,
		"files", stats.Files, "skipped", stats.Skipped)
	return stats, nil
}

func readGroup(ctx context.Context, cg *changegroup.Reader) ([]*changegroup.Chunk, error) {
	var out []*changegroup.Chunk
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c, err := cg.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
}

// deltaChain yields the full text of each revision of a group, resolving
// delta bases against the previous revision, the null revision or a
// stored one.
type deltaChain struct {
	prevID   hg.ObjectID
	prevText []byte
	read     func(hg.ObjectID) ([]byte, error)
}

func (d *deltaChain) reference(base hg.ObjectID) ([]byte, error) {
	switch {
	case base.IsNull():
		return nil, nil
	case base == d.prevID && d.prevText != nil:
		return d.prevText, nil
	}
	return d.read(base)
}

func (d *deltaChain) advance(id hg.ObjectID, text []byte) {
	d.prevID = id
	d.prevText = text
}

func (s *Session) importManifests(ctx context.Context, cg *changegroup.Reader, stats *ImportStats) error {
	chain := &deltaChain{read: func(id hg.ObjectID) ([]byte, error) {
		return s.ReadManifest(hg.ManifestID{ObjectID: id})
	}}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		c, err := cg.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("manifests: %w", err)
		}
		ref, err := chain.reference(c.DeltaBase)
		if err != nil {
			return fmt.Errorf("manifest %s: delta base: %w", c.Node, err)
		}
		text, err := c.Apply(ref)
		if err != nil {
			return fmt.Errorf("manifests: %w", err)
		}
		id := hg.ManifestID{ObjectID: c.Node}
		if _, err := s.StoreManifest(id, hg.ManifestID{ObjectID: c.P1}, hg.ManifestID{ObjectID: c.P2}, text); err != nil {
			return err
		}
		chain.advance(c.Node, text)
		stats.Manifests++
	}
}

func (s *Session) importFiles(ctx context.Context, cg *changegroup.Reader, stats *ImportStats, hadMetadata bool) error {
	for {
		name, ok, err := cg.Filename()
		if err != nil {
			return fmt.Errorf("files: %w", err)
		}
		if !ok {
			return nil
		}
		chain := &deltaChain{read: func(id hg.ObjectID) ([]byte, error) {
			return s.ReadFile(hg.FileID{ObjectID: id})
		}}
		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			c, err := cg.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				return fmt.Errorf("file %s: %w", name, err)
			}
			ref, err := chain.reference(c.DeltaBase)
			if err != nil {
				return fmt.Errorf("file %s revision %s: delta base: %w", name, c.Node, err)
			}
			text, err := c.Apply(ref)
			if err != nil {
				return fmt.Errorf("file %s: %w", name, err)
			}
			node := hg.FileID{ObjectID: c.Node}
			if _, err := s.StoreFile(node, text); err != nil {
				return err
			}
			s.files.observe(node, hg.FileID{ObjectID: c.P1}, hg.FileID{ObjectID: c.P2}, c.Hunks, hadMetadata)
			chain.advance(c.Node, text)
			stats.Files++
		}
	}
}

func (s *Session) importChangesets(ctx context.Context, chunks []*changegroup.Chunk, stats *ImportStats) error {
	chain := &deltaChain{read: func(id hg.ObjectID) ([]byte, error) {
		return s.ReadChangeset(hg.ChangesetID{ObjectID: id})
	}}
	for _, c := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		id := hg.ChangesetID{ObjectID: c.Node}
		ref, err := chain.reference(c.DeltaBase)
		if err != nil {
			return fmt.Errorf("changeset %s: delta base: %w", id, err)
		}
		if err := xdiff.Check(c.Hunks, len(ref)); err != nil {
			return &MalformedChunkError{Changeset: id, Err: err}
		}
		raw, err := xdiff.Apply(ref, c.Hunks)
		if err != nil {
			return &MalformedChunkError{Changeset: id, Err: err}
		}
		chain.advance(c.Node, raw)

		var parents []hg.ChangesetID
		for _, p := range c.Parents() {
			parents = append(parents, hg.ChangesetID{ObjectID: p})
		}
		_, _, err = s.StoreChangeset(id, parents, raw)
		if errors.Is(err, graft.ErrNoGraft) {
			s.log.Warnw("skipping changeset", "changeset", id, "error", err)
			stats.Skipped++
			continue
		}
		if err != nil {
			return err
		}
		stats.Changesets++
	}
	return nil
}

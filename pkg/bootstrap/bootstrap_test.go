package bootstrap

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/odvcencio/hgbridge/pkg/bridge"
	"github.com/odvcencio/hgbridge/pkg/hg"
	"github.com/odvcencio/hgbridge/pkg/notes"
	"github.com/odvcencio/hgbridge/pkg/object"
	"github.com/odvcencio/hgbridge/pkg/repo"
)

func TestBranchesForURL(t *testing.T) {
	tests := []struct {
		url  string
		want []string
	}{
		{"https://server/", []string{"server", "metadata"}},
		{"https://server:443/", []string{"server", "metadata"}},
		{"https://server:443/repo", []string{"repo", "server/repo", "metadata"}},
		{"https://server:443/dir_a/repo", []string{"repo", "dir_a/repo", "server/dir_a/repo", "metadata"}},
		{"https://server:443/dir_a/dir_b/repo", []string{"repo", "dir_b/repo", "dir_a/dir_b/repo", "server/dir_a/dir_b/repo", "metadata"}},
		{"https://10.0.0.1/repo", []string{"repo", "metadata"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, BranchesForURL(tt.url), tt.url)
	}
}

func TestSelectRefOrder(t *testing.T) {
	h1, h2 := object.HashBytes([]byte("1")), object.HashBytes([]byte("2"))
	refs := map[string]object.Hash{
		"refs/heads/repo":        h1,
		"refs/hgbridge/metadata": h2,
	}
	name, h, ok := SelectRef(refs, []string{"repo", "metadata"})
	require.True(t, ok)
	assert.Equal(t, "refs/heads/repo", name)
	assert.Equal(t, h1, h)

	name, _, ok = SelectRef(refs, []string{"other", "metadata"})
	require.True(t, ok)
	assert.Equal(t, "refs/hgbridge/metadata", name)

	_, _, ok = SelectRef(refs, []string{"other"})
	assert.False(t, ok)
}

func TestBundleRoundTrip(t *testing.T) {
	src := object.NewStore(t.TempDir())
	blob, err := src.WriteBlob([]byte("content"))
	require.NoError(t, err)
	tree, err := src.EnsureEmptyTree()
	require.NoError(t, err)

	var buf bytes.Buffer
	refs := []Ref{{Name: "refs/heads/b", Hash: object.Hash(blob)}, {Name: "a", Hash: object.Hash(tree)}}
	require.NoError(t, WriteBundle(&buf, src, refs, []object.Hash{object.Hash(blob), object.Hash(tree)}))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte(Signature)))

	b, err := ReadBundle(&buf)
	require.NoError(t, err)
	assert.Equal(t, []Ref{refs[1], refs[0]}, b.Refs)

	dst := object.NewStore(t.TempDir())
	n, err := b.Unpack(dst)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	data, err := dst.ReadBlob(blob)
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))
}

func TestReadBundleRejectsOtherStreams(t *testing.T) {
	_, err := ReadBundle(bytes.NewReader([]byte("HG10UN")))
	assert.ErrorIs(t, err, ErrNoSignature)

	_, err = ReadBundle(bytes.NewReader([]byte(Signature + "nothex refs/x\n\n")))
	assert.ErrorIs(t, err, ErrCorruptBundle)

	_, err = ReadBundle(bytes.NewReader([]byte(Signature + string(object.HashBytes(nil)) + " refs/x\n")))
	assert.ErrorIs(t, err, ErrCorruptBundle)
}

func TestUnpackDetectsCorruption(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString(Signature + "\n")
	enc, err := zstd.NewWriter(&buf)
	require.NoError(t, err)
	fmt.Fprintf(enc, "blob %s 7\ncontent", object.HashBytes(nil))
	require.NoError(t, enc.Close())

	b, err := ReadBundle(&buf)
	require.NoError(t, err)
	_, err = b.Unpack(object.NewStore(t.TempDir()))
	assert.ErrorIs(t, err, ErrCorruptBundle)
}

// ---------------------------------------------------------------------------
// Publish / merge
// ---------------------------------------------------------------------------

type fetcherFunc func(ctx context.Context, location string) (io.ReadCloser, error)

func (f fetcherFunc) Fetch(ctx context.Context, location string) (io.ReadCloser, error) {
	return f(ctx, location)
}

func bytesFetcher(data []byte) Fetcher {
	return fetcherFunc(func(context.Context, string) (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	})
}

func newSession(t *testing.T, dir string) *bridge.Session {
	t.Helper()
	r, err := repo.Init(dir)
	require.NoError(t, err)
	n, err := notes.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { n.Close() })
	return bridge.New(r, n, bridge.Options{})
}

// seed stores one changeset created from a native root commit and persists
// the metadata.
func seed(t *testing.T, s *bridge.Session) hg.ChangesetID {
	t.Helper()
	store := s.Repo().Store
	tree, err := store.EnsureEmptyTree()
	require.NoError(t, err)
	commitID, err := store.WriteCommit(&object.CommitObj{
		TreeHash:           object.Hash(tree),
		Author:             "Dev <dev@example.com>",
		Timestamp:          1700000000,
		AuthorTimezone:     "+0000",
		Committer:          "Dev <dev@example.com>",
		CommitterTimestamp: 1700000000,
		CommitterTimezone:  "+0000",
		Message:            "root",
	})
	require.NoError(t, err)
	id, err := s.CreateChangeset(commitID, hg.ManifestID{}, nil)
	require.NoError(t, err)
	_, err = s.StoreMetadata()
	require.NoError(t, err)
	return id
}

func published(t *testing.T, s *bridge.Session, names ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	_, err := Publish(&buf, s, names...)
	require.NoError(t, err)
	return buf.Bytes()
}

func TestPublishAndMerge(t *testing.T) {
	src := newSession(t, t.TempDir())
	id := seed(t, src)
	want, err := src.ReadChangeset(id)
	require.NoError(t, err)

	dst := newSession(t, t.TempDir())
	m := NewMerger(dst, MergerOptions{Fetcher: bytesFetcher(published(t, src))})
	md, err := m.Merge(context.Background(), "bundle", "https://server/repo", "")
	require.NoError(t, err)

	ref, err := dst.Repo().ReadRef(bridge.MetadataRef)
	require.NoError(t, err)
	assert.Equal(t, object.Hash(md), ref)
	log, err := dst.Repo().ReadReflog(bridge.MetadataRef, 0)
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, "bootstrap", log[0].Reason)

	got, err := dst.ReadChangeset(id)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	h, err := dst.Heads()
	require.NoError(t, err)
	assert.Equal(t, []hg.ChangesetID{id}, h.Heads())

	_, err = m.Merge(context.Background(), "bundle", "https://server/repo", "")
	assert.ErrorIs(t, err, ErrHasMetadata)
}

func TestMergeExplicitBranch(t *testing.T) {
	src := newSession(t, t.TempDir())
	seed(t, src)
	data := published(t, src, "refs/heads/mirror")

	dst := newSession(t, t.TempDir())
	_, err := NewMerger(dst, MergerOptions{Fetcher: bytesFetcher(data)}).
		Merge(context.Background(), "bundle", "https://server/repo", "")
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "got %v", err)

	_, err = NewMerger(dst, MergerOptions{Fetcher: bytesFetcher(data)}).
		Merge(context.Background(), "bundle", "", "mirror")
	require.NoError(t, err)
}

func TestMergeFallsBackToDefaultBranch(t *testing.T) {
	src := newSession(t, t.TempDir())
	id := seed(t, src)

	dst := newSession(t, t.TempDir())
	md, err := NewMerger(dst, MergerOptions{Fetcher: bytesFetcher(published(t, src))}).
		Merge(context.Background(), "bundle", "", "")
	require.NoError(t, err)
	assert.False(t, md.IsZero())

	_, err = dst.ChangesetCommit(id)
	require.NoError(t, err)
}

func TestMergeRejectsNonMetadataCommit(t *testing.T) {
	src := newSession(t, t.TempDir())
	store := src.Repo().Store
	tree, err := store.EnsureEmptyTree()
	require.NoError(t, err)
	commit, err := store.WriteCommit(&object.CommitObj{TreeHash: object.Hash(tree), Author: "x <x@y>", Committer: "x <x@y>", Message: "hello"})
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, WriteBundle(&buf, store, []Ref{{Name: "metadata", Hash: object.Hash(commit)}},
		[]object.Hash{object.Hash(commit), object.Hash(tree)}))

	dst := newSession(t, t.TempDir())
	_, err = NewMerger(dst, MergerOptions{Fetcher: bytesFetcher(buf.Bytes())}).
		Merge(context.Background(), "bundle", "", "metadata")
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "got %v", err)
	assert.Equal(t, "metadata", verr.Ref)
	has, err := dst.HasMetadata()
	require.NoError(t, err)
	assert.False(t, has)
}

func TestMergeDetectsMissingCommit(t *testing.T) {
	src := newSession(t, t.TempDir())
	id := seed(t, src)
	head, err := src.ChangesetCommit(id)
	require.NoError(t, err)
	md, err := src.Repo().ReadRef(bridge.MetadataRef)
	require.NoError(t, err)

	set, err := src.Repo().Store.ReachableSet([]object.Hash{md})
	require.NoError(t, err)
	delete(set, object.Hash(head))
	var buf bytes.Buffer
	require.NoError(t, WriteBundle(&buf, src.Repo().Store, []Ref{{Name: DefaultPublishRef, Hash: md}}, object.SortedHashes(set)))

	dst := newSession(t, t.TempDir())
	_, err = NewMerger(dst, MergerOptions{Fetcher: bytesFetcher(buf.Bytes())}).
		Merge(context.Background(), "bundle", "https://server/repo", "")
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "got %v", err)
	assert.Contains(t, verr.Reason, "missing")
}

func TestMergeRequiresAllowedSignature(t *testing.T) {
	src := newSession(t, t.TempDir())
	seed(t, src)
	data := published(t, src)

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)

	dst := newSession(t, t.TempDir())
	_, err = NewMerger(dst, MergerOptions{
		Fetcher:        bytesFetcher(data),
		AllowedSigners: []ssh.PublicKey{signer.PublicKey()},
	}).Merge(context.Background(), "bundle", "", "metadata")
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "got %v", err)
	assert.Contains(t, verr.Reason, "signature")
}

// ---------------------------------------------------------------------------
// Fetchers
// ---------------------------------------------------------------------------

func TestHTTPFetcherRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("payload"))
	}))
	defer ts.Close()

	f := NewHTTPFetcher(5*time.Second, 4)
	f.InitialInterval = time.Millisecond
	rc, err := f.Fetch(context.Background(), ts.URL)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPFetcherStopsOnClientError(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	f := NewHTTPFetcher(5*time.Second, 4)
	f.InitialInterval = time.Millisecond
	_, err := f.Fetch(context.Background(), ts.URL)
	var serr *StatusError
	require.True(t, errors.As(err, &serr), "got %v", err)
	assert.Equal(t, http.StatusNotFound, serr.Status)
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPFetcherGivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	f := NewHTTPFetcher(5*time.Second, 2)
	f.InitialInterval = time.Millisecond
	_, err := f.Fetch(context.Background(), ts.URL)
	assert.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestDispatcherReadsPeerRepository(t *testing.T) {
	peerDir := t.TempDir()
	r, err := repo.Init(peerDir)
	require.NoError(t, err)
	peer, err := bridge.Open(r, bridge.Options{})
	require.NoError(t, err)
	id := seed(t, peer)
	require.NoError(t, peer.Close())

	dst := newSession(t, t.TempDir())
	_, err = NewMerger(dst, MergerOptions{Fetcher: NewFetcher(nil, nil)}).
		Merge(context.Background(), peerDir, "", "metadata")
	require.NoError(t, err)
	_, err = dst.ChangesetCommit(id)
	assert.NoError(t, err)
}

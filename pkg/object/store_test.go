package object

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestHashBytesDeterminism(t *testing.T) {
	data := []byte("hello world")
	h1 := HashBytes(data)
	h2 := HashBytes(data)
	if h1 != h2 {
		t.Errorf("HashBytes not deterministic: %q != %q", h1, h2)
	}
	if len(h1) != 64 {
		t.Errorf("Hash length: got %d, want 64", len(h1))
	}
	if !ValidHash(h1) {
		t.Errorf("ValidHash(%q) = false", h1)
	}
}

func TestValidHashRejectsMalformed(t *testing.T) {
	for _, h := range []Hash{"", "abc", Hash(strings.Repeat("A", 64)), Hash(strings.Repeat("g", 64))} {
		if ValidHash(h) {
			t.Errorf("ValidHash(%q) = true, want false", h)
		}
	}
}

func TestHashObjectEnvelope(t *testing.T) {
	data := []byte("hello")
	h1 := HashObject(TypeBlob, data)
	if h1 == HashBytes(data) {
		t.Error("HashObject should differ from HashBytes due to envelope")
	}
	if h1 != HashObject(TypeBlob, data) {
		t.Error("HashObject not deterministic")
	}
	if h1 == HashObject(TypeCommit, data) {
		t.Error("Different types should produce different hashes")
	}
}

func tempStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(t.TempDir())
}

func TestStoreWriteRead(t *testing.T) {
	s := tempStore(t)
	data := []byte("hello world")
	h, err := s.Write(TypeBlob, data)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	gotType, gotData, err := s.Read(h)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if gotType != TypeBlob {
		t.Errorf("Type: got %q, want %q", gotType, TypeBlob)
	}
	if !bytes.Equal(gotData, data) {
		t.Errorf("Data: got %q, want %q", gotData, data)
	}
}

func TestStoreHas(t *testing.T) {
	s := tempStore(t)
	h, err := s.Write(TypeBlob, []byte("exists"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !s.Has(h) {
		t.Error("Has returned false for existing object")
	}
	if s.Has(Hash(strings.Repeat("0", 64))) {
		t.Error("Has returned true for non-existing object")
	}
	if s.Has("") {
		t.Error("Has returned true for empty hash")
	}
}

func TestStoreFanoutLayout(t *testing.T) {
	s := tempStore(t)
	h, err := s.Write(TypeBlob, []byte("fanout test"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	objPath := filepath.Join(s.root, "objects", string(h[:2]), string(h[2:]))
	if _, err := os.Stat(objPath); os.IsNotExist(err) {
		t.Errorf("Expected fan-out file at %s", objPath)
	}
}

func TestStoreReadMissing(t *testing.T) {
	s := tempStore(t)
	_, _, err := s.Read(Hash(strings.Repeat("0", 64)))
	if err == nil {
		t.Fatal("Read of missing object should return error")
	}
	if !os.IsNotExist(unwrapAll(err)) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func unwrapAll(err error) error {
	for {
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return err
		}
		next := u.Unwrap()
		if next == nil {
			return err
		}
		err = next
	}
}

func TestStoreObjectFormat(t *testing.T) {
	s := tempStore(t)
	h, err := s.Write(TypeBlob, []byte("format check"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	raw, err := os.ReadFile(filepath.Join(s.root, "objects", string(h[:2]), string(h[2:])))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if want := "blob 12\x00format check"; string(raw) != want {
		t.Errorf("On-disk format: got %q, want %q", raw, want)
	}
}

func TestStoreBlobRoundTripKeepsNUL(t *testing.T) {
	s := tempStore(t)
	data := []byte("\x01\ncopy: a\n\x01\nbody\x00tail")
	id, err := s.WriteBlob(data)
	if err != nil {
		t.Fatalf("WriteBlob: %v", err)
	}
	got, err := s.ReadBlob(id)
	if err != nil {
		t.Fatalf("ReadBlob: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("Blob round-trip: got %q, want %q", got, data)
	}
}

func TestStoreWriteReadTree(t *testing.T) {
	s := tempStore(t)
	blob, err := s.WriteBlob([]byte("x"))
	if err != nil {
		t.Fatalf("WriteBlob: %v", err)
	}
	sub, err := s.EnsureEmptyTree()
	if err != nil {
		t.Fatalf("EnsureEmptyTree: %v", err)
	}
	if sub != EmptyTreeID {
		t.Fatalf("EnsureEmptyTree = %s, want %s", sub, EmptyTreeID)
	}
	orig := &TreeObj{Entries: []TreeEntry{
		{Name: "with space.txt", Mode: TreeModeExecutable, BlobHash: Hash(blob)},
		{Name: "dir", IsDir: true, SubtreeHash: Hash(sub)},
	}}
	id, err := s.WriteTree(orig)
	if err != nil {
		t.Fatalf("WriteTree: %v", err)
	}
	got, err := s.ReadTree(id)
	if err != nil {
		t.Fatalf("ReadTree: %v", err)
	}
	if len(got.Entries) != 2 {
		t.Fatalf("Entries length: got %d, want 2", len(got.Entries))
	}
	if got.Entries[0].Name != "dir" || got.Entries[1].Name != "with space.txt" {
		t.Errorf("Tree entries not sorted: %+v", got.Entries)
	}
	e, ok := got.Entry("with space.txt")
	if !ok || e.Mode != TreeModeExecutable || e.BlobHash != Hash(blob) {
		t.Errorf("Entry(with space.txt) = %+v, %v", e, ok)
	}
}

func TestStoreWriteReadCommit(t *testing.T) {
	s := tempStore(t)
	orig := &CommitObj{
		TreeHash:           Hash(EmptyTreeID),
		Parents:            []Hash{Hash(strings.Repeat("b", 64))},
		Author:             "Test User <test@example.com>",
		Timestamp:          1700000000,
		AuthorTimezone:     "-0200",
		Committer:          "Test User <test@example.com>",
		CommitterTimestamp: 1700000000,
		CommitterTimezone:  "-0200",
		Message:            "test commit\n\nWith details.\x00",
	}
	id, err := s.WriteCommit(orig)
	if err != nil {
		t.Fatalf("WriteCommit: %v", err)
	}
	got, err := s.ReadCommit(id)
	if err != nil {
		t.Fatalf("ReadCommit: %v", err)
	}
	if got.TreeHash != orig.TreeHash || got.Author != orig.Author || got.Timestamp != orig.Timestamp {
		t.Errorf("commit header mismatch: %+v", got)
	}
	if got.Message != orig.Message {
		t.Errorf("Message mismatch: got %q, want %q", got.Message, orig.Message)
	}
	if !got.SameAuthorAndCommitter() {
		t.Error("SameAuthorAndCommitter = false")
	}
}

func TestStoreReadBlobTypeMismatch(t *testing.T) {
	s := tempStore(t)
	id, err := s.WriteTree(&TreeObj{})
	if err != nil {
		t.Fatalf("WriteTree: %v", err)
	}
	_, err = s.ReadBlob(BlobID(id))
	if err == nil {
		t.Fatal("ReadBlob on tree object should return error")
	}
	if !strings.Contains(err.Error(), "type mismatch") {
		t.Errorf("Expected type mismatch error, got: %v", err)
	}
}

func TestReachableSetFollowsParentsAndTrees(t *testing.T) {
	s := tempStore(t)
	blob, _ := s.WriteBlob([]byte("content"))
	tree, err := s.WriteTree(&TreeObj{Entries: []TreeEntry{{Name: "f", BlobHash: Hash(blob)}}})
	if err != nil {
		t.Fatalf("WriteTree: %v", err)
	}
	root, err := s.WriteCommit(&CommitObj{TreeHash: Hash(tree), Author: "a <a>", Committer: "a <a>", Message: "root"})
	if err != nil {
		t.Fatalf("WriteCommit root: %v", err)
	}
	child, err := s.WriteCommit(&CommitObj{TreeHash: Hash(tree), Parents: []Hash{Hash(root)}, Author: "a <a>", Committer: "a <a>", Message: "child"})
	if err != nil {
		t.Fatalf("WriteCommit child: %v", err)
	}
	set, err := s.ReachableSet([]Hash{Hash(child)})
	if err != nil {
		t.Fatalf("ReachableSet: %v", err)
	}
	for _, h := range []Hash{Hash(blob), Hash(tree), Hash(root), Hash(child)} {
		if _, ok := set[h]; !ok {
			t.Errorf("ReachableSet missing %s", h)
		}
	}
	if len(SortedHashes(set)) != 4 {
		t.Errorf("ReachableSet size = %d, want 4", len(set))
	}
}

package repo

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/odvcencio/hgbridge/pkg/object"
)

func TestInit_CreatesStructure(t *testing.T) {
	dir := t.TempDir()

	r, err := Init(dir)
	if err != nil {
		t.Fatalf("Init(%q): %v", dir, err)
	}
	if r.RootDir != dir {
		t.Errorf("RootDir = %q, want %q", r.RootDir, dir)
	}
	stateDir := filepath.Join(dir, DirName)
	if r.Dir != stateDir {
		t.Errorf("Dir = %q, want %q", r.Dir, stateDir)
	}

	assertDir(t, stateDir)
	assertDir(t, filepath.Join(stateDir, "objects"))
	assertDir(t, r.NotesDir())
	assertDir(t, filepath.Join(stateDir, "refs", "hgbridge"))
	assertDir(t, filepath.Join(stateDir, "logs", "refs", "hgbridge"))

	if r.Store == nil {
		t.Error("Store is nil after Init")
	}
}

func TestInit_ExistingRepo_Error(t *testing.T) {
	dir := t.TempDir()
	if _, err := Init(dir); err != nil {
		t.Fatalf("first Init: %v", err)
	}
	if _, err := Init(dir); err == nil {
		t.Fatal("second Init should fail on existing repo, got nil error")
	}
}

func TestOpen_FromSubdirectory(t *testing.T) {
	dir := t.TempDir()
	if _, err := Init(dir); err != nil {
		t.Fatalf("Init: %v", err)
	}

	sub := filepath.Join(dir, "a", "b", "c")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	r, err := Open(sub)
	if err != nil {
		t.Fatalf("Open(%q): %v", sub, err)
	}
	abs, _ := filepath.Abs(dir)
	if r.RootDir != abs {
		t.Errorf("RootDir = %q, want %q", r.RootDir, abs)
	}
}

func TestOpen_NoRepo_Error(t *testing.T) {
	if _, err := Open(t.TempDir()); err == nil {
		t.Fatal("Open should fail in non-repo directory, got nil error")
	}
}

func TestUpdateRef_ResolveRef_RoundTrip(t *testing.T) {
	r, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	h := object.Hash("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	if err := r.UpdateRef("refs/hgbridge/metadata", h); err != nil {
		t.Fatalf("UpdateRef: %v", err)
	}

	got, err := r.ResolveRef("refs/hgbridge/metadata")
	if err != nil {
		t.Fatalf("ResolveRef: %v", err)
	}
	if got != h {
		t.Errorf("ResolveRef = %q, want %q", got, h)
	}

	short, err := r.ResolveRef("metadata")
	if err != nil {
		t.Fatalf("ResolveRef(metadata): %v", err)
	}
	if short != h {
		t.Errorf("ResolveRef(metadata) = %q, want %q", short, h)
	}
}

func TestReadRef_MissingIsEmpty(t *testing.T) {
	r, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	h, err := r.ReadRef("refs/hgbridge/broken")
	if err != nil {
		t.Fatalf("ReadRef: %v", err)
	}
	if h != "" {
		t.Fatalf("ReadRef = %q, want empty", h)
	}
	if _, err := r.ResolveRef("refs/hgbridge/broken"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("ResolveRef missing: got %v, want os.ErrNotExist", err)
	}
}

// helpers

func assertDir(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Errorf("expected directory %q to exist: %v", path, err)
		return
	}
	if !info.IsDir() {
		t.Errorf("expected %q to be a directory", path)
	}
}

func assertFile(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Errorf("expected file %q to exist: %v", path, err)
		return
	}
	if info.IsDir() {
		t.Errorf("expected %q to be a file, got directory", path)
	}
}

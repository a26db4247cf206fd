package repo

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/odvcencio/hgbridge/pkg/object"
)

func TestTransaction_AppliesAllUpdates(t *testing.T) {
	r, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	a := object.Hash("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	b := object.Hash("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")

	err = r.Transaction().
		Update("refs/hgbridge/metadata", a, "", "import").
		Update("refs/hgbridge/checked", b, "", "fsck").
		Commit()
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	for name, want := range map[string]object.Hash{"metadata": a, "checked": b} {
		got, err := r.ResolveRef(name)
		if err != nil {
			t.Fatalf("ResolveRef(%s): %v", name, err)
		}
		if got != want {
			t.Fatalf("%s = %s, want %s", name, got, want)
		}
	}

	entries, err := r.ReadReflog("metadata", 0)
	if err != nil {
		t.Fatalf("ReadReflog: %v", err)
	}
	if len(entries) != 1 || entries[0].Reason != "import" {
		t.Fatalf("reflog = %+v, want one import entry", entries)
	}
}

func TestTransaction_MismatchChangesNothing(t *testing.T) {
	r, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	a := object.Hash("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	b := object.Hash("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	if err := r.UpdateRef("refs/hgbridge/metadata", a); err != nil {
		t.Fatalf("UpdateRef: %v", err)
	}

	err = r.Transaction().
		Update("refs/hgbridge/broken", b, "", "broken").
		Update("refs/hgbridge/metadata", b, b, "import").
		Commit()
	if !errors.Is(err, ErrRefCASMismatch) {
		t.Fatalf("Commit: got %v, want CAS mismatch", err)
	}

	if h, _ := r.ReadRef("refs/hgbridge/broken"); h != "" {
		t.Fatalf("broken ref written despite failed transaction: %s", h)
	}
	if h, _ := r.ReadRef("refs/hgbridge/metadata"); h != a {
		t.Fatalf("metadata ref = %s, want %s", h, a)
	}
	for _, lock := range []string{"broken.lock", "metadata.lock"} {
		p := filepath.Join(r.Dir, "refs", "hgbridge", lock)
		if _, statErr := os.Stat(p); !os.IsNotExist(statErr) {
			t.Fatalf("lingering lockfile %s", p)
		}
	}
}

func TestTransaction_DeleteAndDuplicate(t *testing.T) {
	r, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	a := object.Hash("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	if err := r.UpdateRef("refs/hgbridge/broken", a); err != nil {
		t.Fatalf("UpdateRef: %v", err)
	}

	if err := r.Transaction().Delete("refs/hgbridge/broken", a, "fixed").Commit(); err != nil {
		t.Fatalf("Delete Commit: %v", err)
	}
	if h, _ := r.ReadRef("refs/hgbridge/broken"); h != "" {
		t.Fatalf("broken ref still present: %s", h)
	}

	err = r.Transaction().
		Update("refs/hgbridge/metadata", a, AnyOld, "x").
		Update("metadata", a, AnyOld, "y").
		Commit()
	if err == nil {
		t.Fatal("expected error for duplicate ref in one transaction")
	}
}

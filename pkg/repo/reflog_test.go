package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/odvcencio/hgbridge/pkg/object"
)

func TestUpdateRef_WritesReflog(t *testing.T) {
	r, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	h1 := object.Hash("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	h2 := object.Hash("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")

	if err := r.UpdateRef("refs/hgbridge/metadata", h1); err != nil {
		t.Fatalf("UpdateRef(h1): %v", err)
	}
	if err := r.UpdateRef("refs/hgbridge/metadata", h2); err != nil {
		t.Fatalf("UpdateRef(h2): %v", err)
	}

	entries, err := r.ReadReflog("metadata", 10)
	if err != nil {
		t.Fatalf("ReadReflog: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 reflog entries, got %d", len(entries))
	}
	if entries[0].NewHash != h2 || entries[0].OldHash != h1 {
		t.Fatalf("latest reflog entry = %+v", entries[0])
	}
	if entries[1].NewHash != h1 || entries[1].OldHash != zeroHash {
		t.Fatalf("previous reflog entry = %+v", entries[1])
	}

	assertFile(t, filepath.Join(r.Dir, "logs", "refs", "hgbridge", "metadata"))
}

func TestReadReflog_RespectsLimit(t *testing.T) {
	r, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	for i := 0; i < 5; i++ {
		h := object.Hash(fmt.Sprintf("%064x", i+1))
		if err := r.UpdateRef("refs/hgbridge/metadata", h); err != nil {
			t.Fatalf("UpdateRef(%d): %v", i, err)
		}
	}

	entries, err := r.ReadReflog("metadata", 2)
	if err != nil {
		t.Fatalf("ReadReflog: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries length = %d, want 2", len(entries))
	}
}

func TestReadReflog_SkipsMalformedLines(t *testing.T) {
	r, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	h := object.Hash(fmt.Sprintf("%064x", 7))
	if err := r.appendReflog("refs/hgbridge/checked", "", h, "fsck"); err != nil {
		t.Fatalf("appendReflog: %v", err)
	}
	f, err := os.OpenFile(r.reflogPath("refs/hgbridge/checked"), os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open reflog: %v", err)
	}
	if _, err := f.WriteString("garbage\n" + zeroHash + " " + zeroHash + " notatime fsck\n"); err != nil {
		t.Fatalf("write reflog: %v", err)
	}
	f.Close()

	entries, err := r.ReadReflog("checked", 0)
	if err != nil {
		t.Fatalf("ReadReflog: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %+v, want one", entries)
	}
	if entries[0].Ref != "refs/hgbridge/checked" || entries[0].NewHash != h || entries[0].Reason != "fsck" {
		t.Fatalf("entry = %+v", entries[0])
	}
	if entries[0].OldHash != zeroHash {
		t.Fatalf("old hash = %q, want zero hash", entries[0].OldHash)
	}
}

func TestReadReflog_EmptyRefName(t *testing.T) {
	r, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if _, err := r.ReadReflog("  ", 0); err == nil {
		t.Fatal("ReadReflog(blank) should fail")
	}
}

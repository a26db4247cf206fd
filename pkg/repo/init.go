package repo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/odvcencio/hgbridge/pkg/object"
)

var ErrRefCASMismatch = errors.New("ref compare-and-swap mismatch")
var ErrRefUpdatedButReflogAppendFailed = errors.New("ref updated but reflog append failed")

// RefUpdateReflogError indicates the ref file update succeeded, but appending
// the corresponding reflog entry failed.
type RefUpdateReflogError struct {
	Ref     string
	OldHash object.Hash
	NewHash object.Hash
	Err     error
}

func (e *RefUpdateReflogError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf(
		"update ref %q: %s (old=%s new=%s): %v",
		e.Ref,
		ErrRefUpdatedButReflogAppendFailed,
		e.OldHash,
		e.NewHash,
		e.Err,
	)
}

func (e *RefUpdateReflogError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *RefUpdateReflogError) Is(target error) bool {
	return target == ErrRefUpdatedButReflogAppendFailed
}

const (
	refLockRetryDelay = 5 * time.Millisecond
	refLockWaitLimit  = 2 * time.Second
)

// Init creates a new repository at path. It creates the .hgbridge/
// directory structure: objects/, notes/, refs/hgbridge/ and the matching
// logs/ tree. Returns an error if a .hgbridge/ directory already exists.
func Init(path string) (*Repo, error) {
	dir := filepath.Join(path, DirName)

	if _, err := os.Stat(dir); err == nil {
		return nil, fmt.Errorf("init: repository already exists at %s", dir)
	}

	dirs := []string{
		filepath.Join(dir, "objects"),
		filepath.Join(dir, "notes"),
		filepath.Join(dir, "refs", "hgbridge"),
		filepath.Join(dir, "logs", "refs", "hgbridge"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("init: mkdir %s: %w", d, err)
		}
	}

	return &Repo{
		RootDir: path,
		Dir:     dir,
		Store:   object.NewStore(dir),
	}, nil
}

// Open searches upward from path for a .hgbridge/ directory and opens the
// repository. Returns an error if no .hgbridge/ directory is found.
func Open(path string) (*Repo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("open: abs path: %w", err)
	}

	cur := abs
	for {
		dir := filepath.Join(cur, DirName)
		info, err := os.Stat(dir)
		if err == nil && info.IsDir() {
			return &Repo{
				RootDir: cur,
				Dir:     dir,
				Store:   object.NewStore(dir),
			}, nil
		}

		parent := filepath.Dir(cur)
		if parent == cur {
			return nil, fmt.Errorf("open: not an hgbridge repository (or any parent up to /)")
		}
		cur = parent
	}
}

func (r *Repo) path(elem ...string) string {
	return filepath.Join(append([]string{r.Dir}, elem...)...)
}

// ResolveRef resolves a ref name to an object hash. Names not starting
// with "refs/" are looked up under refs/hgbridge/. A missing ref is an
// error wrapping os.ErrNotExist.
func (r *Repo) ResolveRef(name string) (object.Hash, error) {
	full := qualifyRef(name)
	data, err := os.ReadFile(r.path(filepath.FromSlash(full)))
	if err != nil {
		return "", fmt.Errorf("resolve ref %q: %w", name, err)
	}
	return object.Hash(strings.TrimRight(string(data), "\n")), nil
}

// ReadRef returns the hash stored in the named ref, or the empty hash when
// the ref does not exist.
func (r *Repo) ReadRef(name string) (object.Hash, error) {
	h, err := readRefHash(r.path(filepath.FromSlash(qualifyRef(name))))
	if err != nil {
		return "", fmt.Errorf("read ref %q: %w", name, err)
	}
	return h, nil
}

func qualifyRef(name string) string {
	if strings.HasPrefix(name, "refs/") {
		return name
	}
	return "refs/hgbridge/" + name
}

// UpdateRef writes a hash to the named ref file. Parent directories are
// created as needed.
func (r *Repo) UpdateRef(name string, h object.Hash) error {
	return r.UpdateRefCAS(name, h)
}

// UpdateRefCAS writes a hash to the named ref file using lockfile + rename
// atomic semantics. If expectedOld is provided, the update only succeeds
// when the current ref hash matches it.
//
// Reflog append happens after the ref rename; if reflog append fails, the ref
// update remains committed and a RefUpdateReflogError is returned.
func (r *Repo) UpdateRefCAS(name string, h object.Hash, expectedOld ...object.Hash) error {
	if len(expectedOld) > 1 {
		return fmt.Errorf("update ref %q: expected at most one old hash", name)
	}
	tx := r.Transaction()
	if len(expectedOld) == 1 {
		tx.Update(name, h, expectedOld[0], "update")
	} else {
		tx.Update(name, h, AnyOld, "update")
	}
	return tx.Commit()
}

func acquireRefLock(lockPath string) (*os.File, error) {
	deadline := time.Now().Add(refLockWaitLimit)
	for {
		f, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, nil
		}
		if os.IsExist(err) {
			if time.Now().After(deadline) {
				return nil, fmt.Errorf("timeout waiting for lock %q", lockPath)
			}
			time.Sleep(refLockRetryDelay)
			continue
		}
		return nil, err
	}
}

func readRefHash(refPath string) (object.Hash, error) {
	data, err := os.ReadFile(refPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return object.Hash(strings.TrimSpace(string(data))), nil
}

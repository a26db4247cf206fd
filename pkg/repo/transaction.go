package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/odvcencio/hgbridge/pkg/object"
)

// AnyOld disables the compare-and-swap check for one queued update.
const AnyOld object.Hash = "\x00any"

type refUpdate struct {
	name    string
	newHash object.Hash
	oldHash object.Hash
	reason  string
	delete  bool

	path     string
	lock     *os.File
	observed object.Hash
}

// Transaction queues ref updates and applies them together: every ref is
// locked and checked before any of them is moved.
type Transaction struct {
	repo    *Repo
	updates []*refUpdate
}

// Transaction starts an empty ref transaction.
func (r *Repo) Transaction() *Transaction {
	return &Transaction{repo: r}
}

// Update queues setting name to newHash. The update only applies when the
// current value equals oldHash; the empty hash requires the ref to be
// absent and AnyOld skips the check.
func (t *Transaction) Update(name string, newHash, oldHash object.Hash, reason string) *Transaction {
	t.updates = append(t.updates, &refUpdate{
		name:    qualifyRef(name),
		newHash: newHash,
		oldHash: oldHash,
		reason:  reason,
	})
	return t
}

// Delete queues removing name, with the same oldHash semantics as Update.
func (t *Transaction) Delete(name string, oldHash object.Hash, reason string) *Transaction {
	t.updates = append(t.updates, &refUpdate{
		name:    qualifyRef(name),
		oldHash: oldHash,
		reason:  reason,
		delete:  true,
	})
	return t
}

// Commit applies all queued updates. Nothing is changed if any lock
// cannot be taken or any compare-and-swap check fails. Reflog failures are
// reported after all refs moved, as a *RefUpdateReflogError.
func (t *Transaction) Commit() error {
	if len(t.updates) == 0 {
		return nil
	}
	sort.SliceStable(t.updates, func(i, j int) bool { return t.updates[i].name < t.updates[j].name })
	for i := 1; i < len(t.updates); i++ {
		if t.updates[i].name == t.updates[i-1].name {
			return fmt.Errorf("ref transaction: %q updated twice", t.updates[i].name)
		}
	}

	defer t.release()
	for _, u := range t.updates {
		if err := t.prepare(u); err != nil {
			return err
		}
	}

	for _, u := range t.updates {
		if u.delete {
			if err := os.Remove(u.path); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("delete ref %q: %w", u.name, err)
			}
			continue
		}
		if err := os.Rename(u.path+".lock", u.path); err != nil {
			return fmt.Errorf("update ref %q: rename: %w", u.name, err)
		}
		u.lock = nil
	}

	var firstErr error
	for _, u := range t.updates {
		if err := t.repo.appendReflog(u.name, u.observed, u.newHash, u.reason); err != nil && firstErr == nil {
			firstErr = &RefUpdateReflogError{Ref: u.name, OldHash: u.observed, NewHash: u.newHash, Err: err}
		}
	}
	return firstErr
}

func (t *Transaction) prepare(u *refUpdate) error {
	u.path = t.repo.path(filepath.FromSlash(u.name))
	if err := os.MkdirAll(filepath.Dir(u.path), 0o755); err != nil {
		return fmt.Errorf("update ref %q: mkdir: %w", u.name, err)
	}
	lock, err := acquireRefLock(u.path + ".lock")
	if err != nil {
		return fmt.Errorf("update ref %q: lock: %w", u.name, err)
	}
	u.lock = lock

	observed, err := readRefHash(u.path)
	if err != nil {
		return fmt.Errorf("update ref %q: read old hash: %w", u.name, err)
	}
	u.observed = observed
	if u.oldHash != AnyOld && observed != u.oldHash {
		return fmt.Errorf(
			"update ref %q: %w (expected %s, found %s)",
			u.name,
			ErrRefCASMismatch,
			u.oldHash,
			observed,
		)
	}
	if u.delete {
		return nil
	}

	if _, err := lock.WriteString(string(u.newHash) + "\n"); err != nil {
		return fmt.Errorf("update ref %q: write: %w", u.name, err)
	}
	if err := lock.Sync(); err != nil {
		return fmt.Errorf("update ref %q: sync: %w", u.name, err)
	}
	if err := lock.Close(); err != nil {
		return fmt.Errorf("update ref %q: close: %w", u.name, err)
	}
	return nil
}

// release drops every lock file that was not renamed into place.
func (t *Transaction) release() {
	for _, u := range t.updates {
		if u.lock == nil {
			continue
		}
		_ = u.lock.Close()
		_ = os.Remove(u.path + ".lock")
		u.lock = nil
	}
}

package graft

import (
	"fmt"
	"sync"

	"github.com/odvcencio/hgbridge/pkg/hg"
	"github.com/odvcencio/hgbridge/pkg/object"
)

// Index grafts onto native commits reachable from a set of roots, matching
// them by tree and parents. When several commits match, the ones whose
// author date and message agree with the changeset are preferred.
//
// An explicit index stands for user-requested grafting; a non-explicit one
// only recognizes commits created earlier for the same changesets.
type Index struct {
	mu       sync.Mutex
	store    *object.Store
	byTree   map[object.TreeID][]object.CommitID
	taken    func(object.CommitID) bool
	explicit bool
	grafted  bool
}

// IndexOptions configures NewIndex.
type IndexOptions struct {
	// Explicit marks user-requested grafting.
	Explicit bool
	// Taken reports commits that already represent a changeset. Such
	// commits are never offered again.
	Taken func(object.CommitID) bool
}

// NewIndex indexes every commit reachable from roots.
func NewIndex(store *object.Store, roots []object.CommitID, opts IndexOptions) (*Index, error) {
	idx := &Index{
		store:    store,
		byTree:   make(map[object.TreeID][]object.CommitID),
		taken:    opts.Taken,
		explicit: opts.Explicit,
	}
	seen := make(map[object.CommitID]bool)
	queue := append([]object.CommitID(nil), roots...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true
		c, err := store.ReadCommit(id)
		if err != nil {
			return nil, fmt.Errorf("graft index: %w", err)
		}
		tree := object.TreeID(c.TreeHash)
		idx.byTree[tree] = append(idx.byTree[tree], id)
		for _, p := range c.Parents {
			queue = append(queue, object.CommitID(p))
		}
	}
	return idx, nil
}

// Len returns the number of indexed commits still available.
func (idx *Index) Len() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	n := 0
	for _, ids := range idx.byTree {
		n += len(ids)
	}
	return n
}

// Grafted reports whether this index performs user-requested grafting and
// has adopted at least one commit.
func (idx *Index) Grafted() bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.grafted
}

// Graft returns the commit to adopt for the changeset, ErrNoGraft when no
// commit matches, or an *AmbiguousError.
func (idx *Index) Graft(id hg.ChangesetID, raw []byte, tree object.TreeID, parents []object.CommitID) (object.CommitID, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	type candidate struct {
		id     object.CommitID
		commit *object.CommitObj
	}
	var candidates []candidate
	for _, cid := range idx.byTree[tree] {
		if idx.taken != nil && idx.taken(cid) {
			continue
		}
		c, err := idx.store.ReadCommit(cid)
		if err != nil {
			return "", fmt.Errorf("graft %s: %w", id, err)
		}
		if !sameParents(c.Parents, parents) {
			continue
		}
		candidates = append(candidates, candidate{id: cid, commit: c})
	}
	if len(candidates) == 0 {
		return "", ErrNoGraft
	}

	if len(candidates) > 1 {
		cs, err := hg.ParseChangeset(raw)
		if err != nil {
			return "", fmt.Errorf("graft %s: %w", id, err)
		}
		author, err := cs.Authorship()
		if err != nil {
			return "", fmt.Errorf("graft %s: %w", id, err)
		}
		var narrowed []candidate
		for _, c := range candidates {
			if c.commit.Timestamp == author.Timestamp && c.commit.Message == string(cs.Body) {
				narrowed = append(narrowed, c)
			}
		}
		if len(narrowed) != 1 {
			err := &AmbiguousError{Changeset: id}
			for _, c := range candidates {
				err.Candidates = append(err.Candidates, c.id)
			}
			return "", err
		}
		candidates = narrowed
	}

	chosen := candidates[0].id
	idx.remove(tree, chosen)
	if idx.explicit {
		idx.grafted = true
	}
	return chosen, nil
}

func (idx *Index) remove(tree object.TreeID, id object.CommitID) {
	ids := idx.byTree[tree]
	for i, c := range ids {
		if c == id {
			idx.byTree[tree] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	if len(idx.byTree[tree]) == 0 {
		delete(idx.byTree, tree)
	}
}

func sameParents(have []object.Hash, want []object.CommitID) bool {
	if len(have) != len(want) {
		return false
	}
	for i := range have {
		if object.CommitID(have[i]) != want[i] {
			return false
		}
	}
	return true
}

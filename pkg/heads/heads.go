// Package heads tracks the per-branch heads of the changeset graph as
// changesets are added, without rescanning history.
package heads

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	"github.com/odvcencio/hgbridge/pkg/dag"
	"github.com/odvcencio/hgbridge/pkg/hg"
)

// DefaultBranch is the branch of a changeset without a "branch" extra.
const DefaultBranch = "default"

type info struct {
	hasChildren bool
	branch      string
}

// BranchHead is one entry of the branch head set.
type BranchHead struct {
	ID     hg.ChangesetID
	Branch string
}

// ChangesetHeads keeps the changeset graph and the set of nodes that have
// no child on their own branch. It is safe for concurrent use; every call
// holds the lock for one update only.
type ChangesetHeads struct {
	mu    sync.Mutex
	graph *dag.Dag[hg.ChangesetID, info]
	heads map[dag.NodeID]struct{}
}

// New returns an empty tracker.
func New() *ChangesetHeads {
	return &ChangesetHeads{
		graph: dag.New[hg.ChangesetID, info](),
		heads: make(map[dag.NodeID]struct{}),
	}
}

// Add records cs with its parents on branch. A parent on the same branch
// stops being a branch head; every found parent is marked as having a
// child. Adding a changeset twice panics.
func (h *ChangesetHeads) Add(cs hg.ChangesetID, parents []hg.ChangesetID, branch string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.graph.Add(cs, parents, info{branch: branch}, func(pid dag.NodeID, parent *info) {
		parent.hasChildren = true
		if parent.branch == branch {
			delete(h.heads, pid)
		}
	})
	h.heads[id] = struct{}{}
}

// Contains reports whether cs has been added.
func (h *ChangesetHeads) Contains(cs hg.ChangesetID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, _, ok := h.graph.Get(cs)
	return ok
}

func (h *ChangesetHeads) sortedHeads() []dag.NodeID {
	ids := make([]dag.NodeID, 0, len(h.heads))
	for id := range h.heads {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// BranchHeads returns every branch head in insertion order. A branch head
// may still have children on other branches.
func (h *ChangesetHeads) BranchHeads() []BranchHead {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []BranchHead
	for _, id := range h.sortedHeads() {
		cs, data := h.graph.GetByID(id)
		out = append(out, BranchHead{ID: cs, Branch: data.branch})
	}
	return out
}

// Heads returns the branch heads that have no child at all.
func (h *ChangesetHeads) Heads() []hg.ChangesetID {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []hg.ChangesetID
	for _, id := range h.sortedHeads() {
		cs, data := h.graph.GetByID(id)
		if !data.hasChildren {
			out = append(out, cs)
		}
	}
	return out
}

// IsEmpty reports whether no changeset was added.
func (h *ChangesetHeads) IsEmpty() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.heads) == 0
}

// Len returns the number of changesets in the graph.
func (h *ChangesetHeads) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.graph.Len()
}

// ---------------------------------------------------------------------------
// Persisted form
// ---------------------------------------------------------------------------

// Parse rebuilds a tracker from its persisted body: one "<hex> <branch>"
// line per branch head. Heads are added without parents.
func Parse(body []byte) (*ChangesetHeads, error) {
	h := New()
	for _, line := range bytes.Split(body, []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		hexID, branch, ok := bytes.Cut(line, []byte(" "))
		if !ok {
			return nil, fmt.Errorf("parse heads: malformed line %q", line)
		}
		cs, err := hg.ParseChangesetID(string(hexID))
		if err != nil {
			return nil, fmt.Errorf("parse heads: %w", err)
		}
		if h.Contains(cs) {
			return nil, fmt.Errorf("parse heads: duplicate head %s", cs)
		}
		h.Add(cs, nil, string(branch))
	}
	return h, nil
}

// Body returns the persisted form of the branch heads, newline separated
// without a trailing newline.
func (h *ChangesetHeads) Body() []byte {
	var buf bytes.Buffer
	for i, bh := range h.BranchHeads() {
		if i > 0 {
			buf.WriteByte('\n')
		}
		fmt.Fprintf(&buf, "%s %s", bh.ID, bh.Branch)
	}
	return buf.Bytes()
}

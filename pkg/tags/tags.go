// Package tags parses .hgtags files and merges the tag sets found on
// several heads the way Mercurial resolves them.
package tags

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/odvcencio/hgbridge/pkg/hg"
)

type entry struct {
	node    hg.ChangesetID
	history map[hg.ChangesetID]struct{}
}

// TagSet maps tag names to the changeset they point at and the nodes they
// pointed at before. Tags keep their first-seen order.
type TagSet struct {
	order []string
	tags  map[string]*entry
}

// Tag is one resolved tag.
type Tag struct {
	Name string
	Node hg.ChangesetID
}

// New returns an empty set.
func New() *TagSet {
	return &TagSet{tags: make(map[string]*entry)}
}

// Parse reads a .hgtags file: "<hex> <tag>" per line. A later line for the
// same tag moves the earlier node into the tag's history.
func Parse(buf []byte) (*TagSet, error) {
	ts := New()
	for _, line := range bytes.Split(buf, []byte("\n")) {
		line = bytes.TrimSuffix(line, []byte("\r"))
		if len(line) == 0 {
			continue
		}
		hexID, name, ok := bytes.Cut(line, []byte(" "))
		if !ok {
			return nil, fmt.Errorf("parse tags: malformed line %q", line)
		}
		node, err := hg.ParseChangesetID(string(hexID))
		if err != nil {
			return nil, fmt.Errorf("parse tags: %w", err)
		}
		tag := string(bytes.TrimSpace(name))
		if e, exists := ts.tags[tag]; exists {
			e.history[e.node] = struct{}{}
			e.node = node
			continue
		}
		ts.insert(tag, &entry{node: node, history: make(map[hg.ChangesetID]struct{})})
	}
	return ts, nil
}

func (ts *TagSet) insert(tag string, e *entry) {
	ts.order = append(ts.order, tag)
	ts.tags[tag] = e
}

// Len returns the number of tags, including deleted ones.
func (ts *TagSet) Len() int { return len(ts.order) }

// Merge folds other into ts. For a tag known to both, other's node wins
// unless ts's node superseded it: ts's history contains other's node and
// either other never saw ts's node or ts has the longer history.
func (ts *TagSet) Merge(other *TagSet) {
	if other == nil {
		return
	}
	if len(ts.order) == 0 {
		ts.order = append([]string(nil), other.order...)
		ts.tags = make(map[string]*entry, len(other.tags))
		for _, tag := range other.order {
			ts.tags[tag] = other.tags[tag].clone()
		}
		return
	}
	for _, tag := range other.order {
		a := other.tags[tag]
		b, ok := ts.tags[tag]
		if !ok {
			ts.insert(tag, a.clone())
			continue
		}
		_, bSupersedes := b.history[a.node]
		_, aSawB := a.history[b.node]
		keepB := b.node != a.node && bSupersedes && (!aSawB || len(b.history) > len(a.history))
		if !keepB {
			b.node = a.node
		}
		for n := range a.history {
			b.history[n] = struct{}{}
		}
	}
}

func (e *entry) clone() *entry {
	out := &entry{node: e.node, history: make(map[hg.ChangesetID]struct{}, len(e.history))}
	for n := range e.history {
		out.history[n] = struct{}{}
	}
	return out
}

// Tags returns the live tags in first-seen order. A tag pointing at the
// null changeset is a deleted tag and is left out.
func (ts *TagSet) Tags() []Tag {
	var out []Tag
	for _, tag := range ts.order {
		e := ts.tags[tag]
		if e.node.IsNull() {
			continue
		}
		out = append(out, Tag{Name: tag, Node: e.node})
	}
	return out
}

// Equal reports whether both sets resolve to the same live tags.
func (ts *TagSet) Equal(other *TagSet) bool {
	a, b := ts.sorted(), other.sorted()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (ts *TagSet) sorted() []Tag {
	out := ts.Tags()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Node.Compare(out[j].Node.ObjectID) < 0
	})
	return out
}

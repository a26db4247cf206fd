// Package graft decides whether an incoming changeset should adopt a native
// commit that already exists instead of getting a freshly synthesized one.
package graft

import (
	"errors"
	"fmt"
	"strings"

	"github.com/odvcencio/hgbridge/pkg/hg"
	"github.com/odvcencio/hgbridge/pkg/object"
)

// ErrNoGraft means no existing commit can be adopted.
var ErrNoGraft = errors.New("no graft candidate")

// AmbiguousError is returned when several existing commits match one
// changeset equally well.
type AmbiguousError struct {
	Changeset  hg.ChangesetID
	Candidates []object.CommitID
}

func (e *AmbiguousError) Error() string {
	ids := make([]string, len(e.Candidates))
	for i, c := range e.Candidates {
		ids[i] = c.String()
	}
	return fmt.Sprintf("cannot graft %s, candidates: %s", e.Changeset, strings.Join(ids, ", "))
}

// Decider picks the native commit a changeset adopts. Graft returns the
// zero id or ErrNoGraft when there is nothing to adopt.
type Decider interface {
	Graft(id hg.ChangesetID, raw []byte, tree object.TreeID, parents []object.CommitID) (object.CommitID, error)
	// Grafted reports whether grafting of history that was never mapped
	// is in force.
	Grafted() bool
}

// None never grafts.
type None struct{}

func (None) Graft(hg.ChangesetID, []byte, object.TreeID, []object.CommitID) (object.CommitID, error) {
	return "", nil
}

func (None) Grafted() bool { return false }

package graft

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/hgbridge/pkg/hg"
	"github.com/odvcencio/hgbridge/pkg/object"
)

func writeCommit(t *testing.T, s *object.Store, tree object.TreeID, ts int64, msg string, parents ...object.CommitID) object.CommitID {
	t.Helper()
	c := &object.CommitObj{
		TreeHash:           object.Hash(tree),
		Author:             "Jane <jane@example.com>",
		Timestamp:          ts,
		Committer:          "Jane <jane@example.com>",
		CommitterTimestamp: ts,
		Message:            msg,
	}
	for _, p := range parents {
		c.Parents = append(c.Parents, object.Hash(p))
	}
	id, err := s.WriteCommit(c)
	require.NoError(t, err)
	return id
}

func rawChangeset(ts int64, body string) []byte {
	return []byte(fmt.Sprintf("%s\nJane <jane@example.com>\n%d 0\n\n%s", hg.NullID, ts, body))
}

var csID = hg.MustChangesetID("1111111111111111111111111111111111111111")

func TestNoneNeverGrafts(t *testing.T) {
	id, err := None{}.Graft(csID, nil, object.EmptyTreeID, nil)
	assert.NoError(t, err)
	assert.True(t, id.IsZero())
	assert.False(t, None{}.Grafted())
}

func TestIndexMatchesTreeAndParents(t *testing.T) {
	s := object.NewStore(t.TempDir())
	treeA, err := s.WriteTree(&object.TreeObj{Entries: []object.TreeEntry{{Name: "a", BlobHash: object.Hash(object.EmptyBlobID)}}})
	require.NoError(t, err)
	root := writeCommit(t, s, object.EmptyTreeID, 1, "root")
	child := writeCommit(t, s, treeA, 2, "child", root)

	idx, err := NewIndex(s, []object.CommitID{child}, IndexOptions{Explicit: true})
	require.NoError(t, err)
	assert.Equal(t, 2, idx.Len())

	_, err = idx.Graft(csID, rawChangeset(2, "child"), treeA, nil)
	assert.ErrorIs(t, err, ErrNoGraft, "parents differ")

	got, err := idx.Graft(csID, rawChangeset(2, "child"), treeA, []object.CommitID{root})
	require.NoError(t, err)
	assert.Equal(t, child, got)
	assert.True(t, idx.Grafted())

	_, err = idx.Graft(csID, rawChangeset(2, "child"), treeA, []object.CommitID{root})
	assert.ErrorIs(t, err, ErrNoGraft, "a commit is adopted once")
}

func TestIndexNarrowsByDateAndMessage(t *testing.T) {
	s := object.NewStore(t.TempDir())
	a := writeCommit(t, s, object.EmptyTreeID, 10, "first")
	b := writeCommit(t, s, object.EmptyTreeID, 20, "second")

	idx, err := NewIndex(s, []object.CommitID{a, b}, IndexOptions{})
	require.NoError(t, err)

	got, err := idx.Graft(csID, rawChangeset(20, "second"), object.EmptyTreeID, nil)
	require.NoError(t, err)
	assert.Equal(t, b, got)
	assert.False(t, idx.Grafted(), "non-explicit index never reports grafting")
}

func TestIndexAmbiguous(t *testing.T) {
	s := object.NewStore(t.TempDir())
	a := writeCommit(t, s, object.EmptyTreeID, 10, "same")
	b := writeCommit(t, s, object.EmptyTreeID, 10, "same\n")
	c := writeCommit(t, s, object.EmptyTreeID, 30, "other")

	idx, err := NewIndex(s, []object.CommitID{a, b, c}, IndexOptions{Explicit: true})
	require.NoError(t, err)

	_, err = idx.Graft(csID, rawChangeset(99, "nothing"), object.EmptyTreeID, nil)
	var amb *AmbiguousError
	require.True(t, errors.As(err, &amb))
	assert.Len(t, amb.Candidates, 3)
	assert.Contains(t, amb.Error(), csID.String())
}

func TestIndexSkipsTakenCommits(t *testing.T) {
	s := object.NewStore(t.TempDir())
	a := writeCommit(t, s, object.EmptyTreeID, 10, "a")
	idx, err := NewIndex(s, []object.CommitID{a}, IndexOptions{
		Taken: func(id object.CommitID) bool { return id == a },
	})
	require.NoError(t, err)
	_, err = idx.Graft(csID, rawChangeset(10, "a"), object.EmptyTreeID, nil)
	assert.ErrorIs(t, err, ErrNoGraft)
}

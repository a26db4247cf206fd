// Package changeset regenerates raw foreign changesets from native commits
// plus their metadata, and derives that metadata from raw changesets.
package changeset

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/odvcencio/hgbridge/pkg/hg"
	"github.com/odvcencio/hgbridge/pkg/metadata"
	"github.com/odvcencio/hgbridge/pkg/object"
	"github.com/odvcencio/hgbridge/pkg/xdiff"
)

// ErrUnknownParent is returned when a native parent has no changeset.
var ErrUnknownParent = errors.New("parent commit has no changeset")

// ParentResolver maps native commits to the changesets they represent.
type ParentResolver interface {
	ChangesetFor(id object.CommitID) (hg.ChangesetID, error)
}

// MapResolver resolves parents from an in-memory map.
type MapResolver map[object.CommitID]hg.ChangesetID

func (m MapResolver) ChangesetFor(id object.CommitID) (hg.ChangesetID, error) {
	cs, ok := m[id]
	if !ok {
		return hg.ChangesetID{}, fmt.Errorf("%w: %s", ErrUnknownParent, id)
	}
	return cs, nil
}

func authorIdent(c *object.CommitObj) hg.NativeIdent {
	return hg.NativeIdent{Ident: c.Author, Timestamp: c.Timestamp, Timezone: c.AuthorTimezone}
}

func committerIdent(c *object.CommitObj) hg.NativeIdent {
	return hg.NativeIdent{Ident: c.Committer, Timestamp: c.CommitterTimestamp, Timezone: c.CommitterTimezone}
}

// Reconstruct regenerates the raw changeset for commit from its metadata.
func Reconstruct(commit *object.CommitObj, md *metadata.ChangesetMetadata, parents ParentResolver) ([]byte, error) {
	author := hg.FromNative(authorIdent(commit))
	authorText := author.Author
	if md.Author != nil {
		authorText = string(md.Author)
	}

	extra := md.ExtraDict()
	if !commit.SameAuthorAndCommitter() {
		if _, ok := extraGet(extra, "committer"); !ok {
			if extra == nil {
				extra = hg.NewExtra()
			}
			extra.Set("committer", hg.FromNative(committerIdent(commit)).Committer())
		}
	}

	var buf bytes.Buffer
	buf.WriteString(md.ManifestID.String())
	buf.WriteByte('\n')
	buf.WriteString(authorText)
	buf.WriteByte('\n')
	buf.WriteString(author.DateLine())
	if extra != nil {
		buf.WriteByte(' ')
		extra.DumpInto(&buf)
	}
	files := md.FileList()
	sort.Slice(files, func(i, j int) bool { return bytes.Compare(files[i], files[j]) < 0 })
	for _, f := range files {
		buf.WriteByte('\n')
		buf.Write(f)
	}
	buf.WriteString("\n\n")
	buf.WriteString(commit.Message)

	out := buf.Bytes()
	if md.Patch != nil {
		hunks, err := md.PatchHunks()
		if err != nil {
			return nil, fmt.Errorf("reconstruct %s: %w", md.ChangesetID, err)
		}
		out, err = xdiff.Apply(out, hunks)
		if err != nil {
			return nil, fmt.Errorf("reconstruct %s: patch: %w", md.ChangesetID, err)
		}
	}

	if md.ChangesetID.IsNull() {
		return out, nil
	}
	return trimTrailingNULs(out, md.ChangesetID, commit, parents)
}

// trimTrailingNULs undoes the NUL bytes appended to commit messages to keep
// otherwise identical changesets on distinct native commits. While the text
// ends in NUL and does not hash to target, one byte is dropped.
func trimTrailingNULs(out []byte, target hg.ChangesetID, commit *object.CommitObj, parents ParentResolver) ([]byte, error) {
	if len(out) == 0 || out[len(out)-1] != 0 {
		return out, nil
	}
	var p [2]hg.ObjectID
	for i, parent := range commit.Parents {
		if i == 2 {
			break
		}
		cs, err := parents.ChangesetFor(object.CommitID(parent))
		if err != nil {
			return nil, fmt.Errorf("reconstruct %s: %w", target, err)
		}
		p[i] = cs.ObjectID
	}
	for len(out) > 0 && out[len(out)-1] == 0 {
		if hg.NodeHash(p[0], p[1], out) == target.ObjectID {
			break
		}
		out = out[:len(out)-1]
	}
	return out, nil
}

func extraGet(e *hg.Extra, key string) (string, bool) {
	if e == nil {
		return "", false
	}
	return e.Get(key)
}

// Derive computes the minimal metadata that lets Reconstruct regenerate raw
// from commit.
func Derive(commit *object.CommitObj, id hg.ChangesetID, raw []byte, parents ParentResolver) (*metadata.ChangesetMetadata, error) {
	cs, err := hg.ParseChangeset(raw)
	if err != nil {
		return nil, fmt.Errorf("derive %s: %w", id, err)
	}
	md := &metadata.ChangesetMetadata{
		ChangesetID: id,
		ManifestID:  cs.Manifest,
	}
	if hg.AuthorFromIdent(commit.Author) != string(cs.Author) {
		md.Author = append([]byte{}, cs.Author...)
	}
	if extra := cs.ExtraDict(); extra != nil {
		derived := hg.FromNative(committerIdent(commit)).Committer()
		if v, ok := extra.Get("committer"); ok && v == derived {
			extra.Unset("committer")
		}
		if extra.Len() > 0 {
			md.Extra = extra.Bytes()
		}
	}
	if cs.Files != nil {
		md.Files = bytes.Join(cs.Files, []byte{0})
	}

	canonical, err := Reconstruct(commit, md, parents)
	if err != nil {
		return nil, err
	}
	if bytes.Equal(canonical, raw) {
		return md, nil
	}
	hunks := xdiff.TextDiff(canonical, raw)
	for i, h := range hunks {
		hunks[i] = xdiff.Trim(canonical, h)
	}
	md.Patch = metadata.EncodePatch(hunks)
	return md, nil
}

// CommitFromChangeset builds the native commit that represents cs. The
// committer comes from the "committer" extra entry when present.
func CommitFromChangeset(cs *hg.Changeset, tree object.TreeID, parents []object.CommitID) (*object.CommitObj, error) {
	author, err := cs.Authorship()
	if err != nil {
		return nil, err
	}
	committer := author
	if v, ok := extraGet(cs.ExtraDict(), "committer"); ok {
		committer, err = hg.ParseCommitter(v, author)
		if err != nil {
			return nil, err
		}
	}
	a, c := author.Native(), committer.Native()
	commit := &object.CommitObj{
		TreeHash:           object.Hash(tree),
		Author:             a.Ident,
		Timestamp:          a.Timestamp,
		AuthorTimezone:     a.Timezone,
		Committer:          c.Ident,
		CommitterTimestamp: c.Timestamp,
		CommitterTimezone:  c.Timezone,
		Message:            string(cs.Body),
	}
	for _, p := range parents {
		commit.Parents = append(commit.Parents, object.Hash(p))
	}
	return commit, nil
}

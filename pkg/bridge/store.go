package bridge

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/odvcencio/hgbridge/pkg/changeset"
	"github.com/odvcencio/hgbridge/pkg/graft"
	"github.com/odvcencio/hgbridge/pkg/heads"
	"github.com/odvcencio/hgbridge/pkg/hg"
	"github.com/odvcencio/hgbridge/pkg/metadata"
	"github.com/odvcencio/hgbridge/pkg/notes"
	"github.com/odvcencio/hgbridge/pkg/object"
	"github.com/odvcencio/hgbridge/pkg/repo"
)

// Identity used for the commits the bridge creates for its own
// bookkeeping.
const (
	manifestIdent = "hgbridge <manifest@hgbridge>"
	metadataIdent = "hgbridge <metadata@hgbridge>"
)

// ---------------------------------------------------------------------------
// Manifests
// ---------------------------------------------------------------------------

// StoreManifest records the full text of a manifest revision. The text is
// kept as the message of a native commit whose parents are the parent
// manifests' commits.
func (s *Session) StoreManifest(id hg.ManifestID, p1, p2 hg.ManifestID, text []byte) (object.CommitID, error) {
	commit := &object.CommitObj{
		TreeHash:  object.Hash(object.EmptyTreeID),
		Author:    manifestIdent,
		Committer: manifestIdent,
		Message:   string(text),
	}
	for _, p := range [2]hg.ManifestID{p1, p2} {
		if p.IsNull() {
			continue
		}
		pc, err := s.ManifestCommit(p)
		if errors.Is(err, ErrNotFound) {
			s.log.Debugw("manifest parent not stored", "manifest", id, "parent", p)
			continue
		}
		if err != nil {
			return "", err
		}
		commit.Parents = append(commit.Parents, object.Hash(pc))
	}
	if _, err := s.store.EnsureEmptyTree(); err != nil {
		return "", err
	}
	cid, err := s.store.WriteCommit(commit)
	if err != nil {
		return "", fmt.Errorf("store manifest %s: %w", id, err)
	}
	if err := s.notes.Set(notes.Manifest, id.String(), cid.String()); err != nil {
		return "", fmt.Errorf("store manifest %s: %w", id, err)
	}
	return cid, nil
}

// ReadManifest returns the full text of a stored manifest.
func (s *Session) ReadManifest(id hg.ManifestID) ([]byte, error) {
	if id.IsNull() {
		return nil, nil
	}
	cid, err := s.ManifestCommit(id)
	if err != nil {
		return nil, err
	}
	c, err := s.store.ReadCommit(cid)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", id, err)
	}
	return []byte(c.Message), nil
}

func modeForFlags(flags string) string {
	switch flags {
	case "x":
		return object.TreeModeExecutable
	case "l":
		return object.TreeModeSymlink
	}
	return object.TreeModeFile
}

// changesetTree builds the native tree of a changeset from its manifest:
// every manifest entry becomes a tree entry for the file's content blob.
func (s *Session) changesetTree(id hg.ManifestID) (object.TreeID, error) {
	if id.IsNull() {
		return s.store.EnsureEmptyTree()
	}
	s.treeMu.Lock()
	tree, ok := s.trees[id]
	s.treeMu.Unlock()
	if ok {
		return tree, nil
	}

	text, err := s.ReadManifest(id)
	if err != nil {
		return "", err
	}
	entries, err := hg.ParseManifest(text)
	if err != nil {
		return "", fmt.Errorf("manifest %s: %w", id, err)
	}
	files := make([]repo.TreeFileEntry, 0, len(entries))
	for _, e := range entries {
		blob, err := s.lookup(notes.File, e.Node.String())
		if err != nil {
			return "", fmt.Errorf("manifest %s: file %s: %w", id, e.Path, err)
		}
		files = append(files, repo.TreeFileEntry{Path: e.Path, Mode: modeForFlags(e.Flags), BlobHash: blob})
	}
	tree, err = s.repo.BuildTree(files)
	if err != nil {
		return "", fmt.Errorf("manifest %s: %w", id, err)
	}
	s.treeMu.Lock()
	s.trees[id] = tree
	s.treeMu.Unlock()
	return tree, nil
}

// ---------------------------------------------------------------------------
// Files
// ---------------------------------------------------------------------------

// StoreFile records the full text of a file revision. A metadata block
// (copy information) is kept in a separate blob so the content blob is the
// plain file.
func (s *Session) StoreFile(id hg.FileID, text []byte) (object.BlobID, error) {
	meta, content := hg.SplitFile(text)
	blob, err := s.store.WriteBlob(content)
	if err != nil {
		return "", fmt.Errorf("store file %s: %w", id, err)
	}
	if err := s.notes.Set(notes.File, id.String(), blob.String()); err != nil {
		return "", fmt.Errorf("store file %s: %w", id, err)
	}
	if meta == nil {
		return blob, nil
	}
	metaBlob, err := s.store.WriteBlob(meta)
	if err != nil {
		return "", fmt.Errorf("store file %s: metadata: %w", id, err)
	}
	if err := s.notes.Set(notes.FileMeta, id.String(), metaBlob.String()); err != nil {
		return "", fmt.Errorf("store file %s: %w", id, err)
	}
	return blob, nil
}

// ReadFile returns the full text of a stored file revision, metadata block
// included.
func (s *Session) ReadFile(id hg.FileID) ([]byte, error) {
	if id.IsNull() {
		return nil, nil
	}
	blob, err := s.lookup(notes.File, id.String())
	if err != nil {
		return nil, err
	}
	content, err := s.store.ReadBlob(object.BlobID(blob))
	if err != nil {
		return nil, fmt.Errorf("read file %s: %w", id, err)
	}
	metaHash, ok, err := s.notes.Get(notes.FileMeta, id.String())
	if err != nil {
		return nil, err
	}
	if !ok {
		return content, nil
	}
	meta, err := s.store.ReadBlob(object.BlobID(metaHash))
	if err != nil {
		return nil, fmt.Errorf("read file %s: metadata: %w", id, err)
	}
	return hg.JoinFile(meta, content), nil
}

// ---------------------------------------------------------------------------
// Changesets
// ---------------------------------------------------------------------------

// ReadChangeset regenerates the raw text of a stored changeset.
func (s *Session) ReadChangeset(id hg.ChangesetID) ([]byte, error) {
	cid, err := s.ChangesetCommit(id)
	if err != nil {
		return nil, err
	}
	commit, err := s.store.ReadCommit(cid)
	if err != nil {
		return nil, fmt.Errorf("read changeset %s: %w", id, err)
	}
	md, err := s.CommitMetadata(cid)
	if err != nil {
		return nil, fmt.Errorf("read changeset %s: %w", id, err)
	}
	return changeset.Reconstruct(commit, md, s)
}

// StoreChangeset records a changeset whose parents are already stored. A
// changeset that is already mapped is left as is. It returns the native
// commit and, when a previously adopted commit had to be
// replaced, the replaced commit. An unmapped parent yields
// graft.ErrNoGraft.
func (s *Session) StoreChangeset(id hg.ChangesetID, parents []hg.ChangesetID, raw []byte) (object.CommitID, object.CommitID, error) {
	// A changeset stored earlier keeps its commit, and the head set loaded
	// from metadata must not see it again as a childless node.
	if existing, err := s.ChangesetCommit(id); err == nil {
		return existing, "", nil
	} else if !errors.Is(err, ErrNotFound) {
		return "", "", err
	}

	nativeParents := make([]object.CommitID, 0, len(parents))
	for _, p := range parents {
		pc, err := s.ChangesetCommit(p)
		if errors.Is(err, ErrNotFound) {
			return "", "", fmt.Errorf("%w: parent %s of %s is not stored", graft.ErrNoGraft, p, id)
		}
		if err != nil {
			return "", "", err
		}
		nativeParents = append(nativeParents, pc)
	}

	cs, err := hg.ParseChangeset(raw)
	if err != nil {
		return "", "", fmt.Errorf("store changeset %s: %w", id, err)
	}
	tree, err := s.changesetTree(cs.Manifest)
	if err != nil {
		return "", "", fmt.Errorf("store changeset %s: %w", id, err)
	}

	var (
		commitID object.CommitID
		md       *metadata.ChangesetMetadata
		replaced object.CommitID
	)
	adopted, err := s.grafter.Graft(id, raw, tree, nativeParents)
	switch {
	case errors.Is(err, graft.ErrNoGraft):
	case err != nil:
		return "", "", err
	case !adopted.IsZero():
		commit, err := s.store.ReadCommit(adopted)
		if err != nil {
			return "", "", fmt.Errorf("store changeset %s: %w", id, err)
		}
		md, err = changeset.Derive(commit, id, raw, s)
		if err != nil {
			return "", "", fmt.Errorf("store changeset %s: %w", id, err)
		}
		if !s.grafter.Grafted() && md.Patch != nil {
			s.log.Debugw("replacing adopted commit", "changeset", id, "commit", adopted)
			replaced = adopted
		} else {
			commitID = adopted
		}
	}

	if commitID.IsZero() {
		commitID, md, err = s.synthesize(id, cs, tree, nativeParents, raw)
		if err != nil {
			return "", "", err
		}
	}

	mdBlob, err := s.store.WriteBlob(md.Serialize())
	if err != nil {
		return "", "", fmt.Errorf("store changeset %s: %w", id, err)
	}
	if !replaced.IsZero() {
		if err := s.notes.Set(notes.Replace, replaced.String(), commitID.String()); err != nil {
			return "", "", err
		}
	}
	if err := s.notes.Set(notes.Changeset, id.String(), commitID.String()); err != nil {
		return "", "", err
	}
	if err := s.notes.Set(notes.Git2Hg, commitID.String(), mdBlob.String()); err != nil {
		return "", "", err
	}

	h, err := s.Heads()
	if err != nil {
		return "", "", err
	}
	if !h.Contains(id) {
		h.Add(id, parents, cs.Branch())
	}
	return commitID, replaced, nil
}

// synthesize writes a fresh native commit for cs. A commit that already
// stands for a different changeset gets NUL bytes appended to its message
// until it is unique; reconstruction strips them again.
func (s *Session) synthesize(id hg.ChangesetID, cs *hg.Changeset, tree object.TreeID, parents []object.CommitID, raw []byte) (object.CommitID, *metadata.ChangesetMetadata, error) {
	commit, err := changeset.CommitFromChangeset(cs, tree, parents)
	if err != nil {
		return "", nil, fmt.Errorf("store changeset %s: %w", id, err)
	}
	for {
		cid := object.CommitID(object.HashObject(object.TypeCommit, object.MarshalCommit(commit)))
		other, err := s.ChangesetFor(cid)
		if errors.Is(err, ErrNotFound) || (err == nil && other == id) {
			break
		}
		if err != nil {
			return "", nil, err
		}
		commit.Message += "\x00"
	}
	cid, err := s.store.WriteCommit(commit)
	if err != nil {
		return "", nil, fmt.Errorf("store changeset %s: %w", id, err)
	}
	md, err := changeset.Derive(commit, id, raw, s)
	if err != nil {
		return "", nil, fmt.Errorf("store changeset %s: %w", id, err)
	}
	return cid, md, nil
}

// CreateChangeset mints foreign metadata for a native commit whose parents
// already map to changesets, and records it. The branch is inherited from
// the first parent.
func (s *Session) CreateChangeset(commitID object.CommitID, manifest hg.ManifestID, files [][]byte) (hg.ChangesetID, error) {
	commit, err := s.store.ReadCommit(commitID)
	if err != nil {
		return hg.ChangesetID{}, fmt.Errorf("create changeset: %w", err)
	}
	md := &metadata.ChangesetMetadata{ManifestID: manifest}
	if len(files) > 0 {
		md.Files = bytes.Join(files, []byte{0})
	}

	branch := ""
	if len(commit.Parents) > 0 {
		pmd, err := s.CommitMetadata(object.CommitID(commit.Parents[0]))
		if err != nil {
			return hg.ChangesetID{}, fmt.Errorf("create changeset: %w", err)
		}
		if e := pmd.ExtraDict(); e != nil {
			branch, _ = e.Get("branch")
		}
	}
	if branch != "" {
		extra := hg.NewExtra()
		extra.Set("branch", branch)
		md.Extra = extra.Bytes()
	}

	raw, err := changeset.Reconstruct(commit, md, s)
	if err != nil {
		return hg.ChangesetID{}, fmt.Errorf("create changeset: %w", err)
	}
	var p [2]hg.ObjectID
	var parents []hg.ChangesetID
	for i, parent := range commit.Parents {
		cs, err := s.ChangesetFor(object.CommitID(parent))
		if err != nil {
			return hg.ChangesetID{}, fmt.Errorf("create changeset: %w", err)
		}
		if i < 2 {
			p[i] = cs.ObjectID
		}
		parents = append(parents, cs)
	}
	md.ChangesetID = hg.ChangesetID{ObjectID: hg.NodeHash(p[0], p[1], raw)}

	mdBlob, err := s.store.WriteBlob(md.Serialize())
	if err != nil {
		return hg.ChangesetID{}, fmt.Errorf("create changeset: %w", err)
	}
	if err := s.notes.Set(notes.Changeset, md.ChangesetID.String(), commitID.String()); err != nil {
		return hg.ChangesetID{}, err
	}
	if err := s.notes.Set(notes.Git2Hg, commitID.String(), mdBlob.String()); err != nil {
		return hg.ChangesetID{}, err
	}

	h, err := s.Heads()
	if err != nil {
		return hg.ChangesetID{}, err
	}
	if branch == "" {
		branch = heads.DefaultBranch
	}
	h.Add(md.ChangesetID, parents, branch)
	return md.ChangesetID, nil
}

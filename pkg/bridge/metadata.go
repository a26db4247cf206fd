package bridge

import (
	"fmt"

	"github.com/odvcencio/hgbridge/pkg/hg"
	"github.com/odvcencio/hgbridge/pkg/object"
	"github.com/odvcencio/hgbridge/pkg/repo"
	"github.com/odvcencio/hgbridge/pkg/sshsig"
)

// Layout of the persisted metadata.
const (
	// MetadataBody lists the storage features the metadata relies on.
	MetadataBody = "files-meta unified-manifests-v2"
	// MetadataAuthor is the identity of the bookkeeping commits.
	MetadataAuthor = metadataIdent

	notesEntry  = "notes"
	bundleEntry = "bundle"
)

// StoreMetadata persists the session state: a changesets commit whose
// parents are the branch heads and whose message lists them, and on top of
// it a metadata commit holding the note dump. The metadata ref is moved
// with a compare-and-swap against its value at the time of the call.
func (s *Session) StoreMetadata() (object.CommitID, error) {
	old, err := s.repo.ReadRef(MetadataRef)
	if err != nil {
		return "", err
	}
	h, err := s.Heads()
	if err != nil {
		return "", err
	}

	changesets := &object.CommitObj{
		Author:    metadataIdent,
		Committer: metadataIdent,
		Message:   string(h.Body()),
	}
	for _, bh := range h.BranchHeads() {
		cid, err := s.ChangesetCommit(bh.ID)
		if err != nil {
			return "", fmt.Errorf("store metadata: head %s: %w", bh.ID, err)
		}
		changesets.Parents = append(changesets.Parents, object.Hash(cid))
	}
	var files []repo.TreeFileEntry
	if !s.bundle.IsZero() {
		files = append(files, repo.TreeFileEntry{Path: bundleEntry, Mode: object.TreeModeFile, BlobHash: object.Hash(s.bundle)})
	}
	tree, err := s.repo.BuildTree(files)
	if err != nil {
		return "", fmt.Errorf("store metadata: %w", err)
	}
	changesets.TreeHash = object.Hash(tree)
	changesetsID, err := s.store.WriteCommit(changesets)
	if err != nil {
		return "", fmt.Errorf("store metadata: %w", err)
	}

	dump, err := s.notes.Dump()
	if err != nil {
		return "", fmt.Errorf("store metadata: %w", err)
	}
	notesBlob, err := s.store.WriteBlob(dump)
	if err != nil {
		return "", fmt.Errorf("store metadata: %w", err)
	}
	mdTree, err := s.repo.BuildTree([]repo.TreeFileEntry{{Path: notesEntry, Mode: object.TreeModeFile, BlobHash: object.Hash(notesBlob)}})
	if err != nil {
		return "", fmt.Errorf("store metadata: %w", err)
	}
	md := &object.CommitObj{
		TreeHash:  object.Hash(mdTree),
		Parents:   []object.Hash{object.Hash(changesetsID)},
		Author:    metadataIdent,
		Committer: metadataIdent,
		Message:   MetadataBody,
	}
	if key := s.cfg.Metadata.SigningKey; key != "" {
		signer, path, err := sshsig.LoadSigner(key)
		if err != nil {
			return "", fmt.Errorf("store metadata: %w", err)
		}
		if err := signer.SignCommit(md); err != nil {
			return "", fmt.Errorf("store metadata: %w", err)
		}
		s.log.Debugw("signed metadata", "key", path)
	}
	mdID, err := s.store.WriteCommit(md)
	if err != nil {
		return "", fmt.Errorf("store metadata: %w", err)
	}

	if err := s.repo.Transaction().Update(MetadataRef, object.Hash(mdID), old, "store").Commit(); err != nil {
		return "", fmt.Errorf("store metadata: %w", err)
	}
	s.bundle = ""
	s.log.Infow("stored metadata", "commit", mdID, "heads", h.Len())
	return mdID, nil
}

// RestoreNotes replaces the note tables with the dump held by a metadata
// commit and installs the branch heads that commit records.
func (s *Session) RestoreNotes(metadataCommit object.CommitID) error {
	commit, err := s.store.ReadCommit(metadataCommit)
	if err != nil {
		return fmt.Errorf("restore notes: %w", err)
	}
	entry, ok, err := s.repo.TreeEntryAtPath(object.TreeID(commit.TreeHash), notesEntry)
	if err != nil {
		return fmt.Errorf("restore notes: %w", err)
	}
	if !ok {
		return fmt.Errorf("restore notes: metadata %s has no %s entry", metadataCommit, notesEntry)
	}
	dump, err := s.store.ReadBlob(object.BlobID(entry.BlobHash))
	if err != nil {
		return fmt.Errorf("restore notes: %w", err)
	}
	h, err := s.headsOf(metadataCommit)
	if err != nil {
		return fmt.Errorf("restore notes: %w", err)
	}
	if err := s.notes.Load(dump); err != nil {
		return fmt.Errorf("restore notes: %w", err)
	}
	s.treeMu.Lock()
	s.trees = make(map[hg.ManifestID]object.TreeID)
	s.treeMu.Unlock()
	s.SetHeads(h)
	return nil
}

// BundleBlob returns the captured changegroup of the metadata commit, if
// any.
func (s *Session) BundleBlob(metadataCommit object.CommitID) (object.BlobID, bool, error) {
	commit, err := s.store.ReadCommit(metadataCommit)
	if err != nil {
		return "", false, err
	}
	if len(commit.Parents) == 0 {
		return "", false, fmt.Errorf("metadata %s has no changesets parent", metadataCommit)
	}
	changesets, err := s.store.ReadCommit(object.CommitID(commit.Parents[0]))
	if err != nil {
		return "", false, err
	}
	entry, ok, err := s.repo.TreeEntryAtPath(object.TreeID(changesets.TreeHash), bundleEntry)
	if err != nil || !ok {
		return "", false, err
	}
	return object.BlobID(entry.BlobHash), true, nil
}

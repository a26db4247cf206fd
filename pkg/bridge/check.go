package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/odvcencio/hgbridge/pkg/changeset"
	"github.com/odvcencio/hgbridge/pkg/hg"
	"github.com/odvcencio/hgbridge/pkg/notes"
	"github.com/odvcencio/hgbridge/pkg/object"
	"github.com/odvcencio/hgbridge/pkg/repo"
)

// CheckFile reports whether the stored text of a file revision hashes to
// its id. Besides the recorded parents, the combinations older clients
// used to compute file ids are accepted too.
func (s *Session) CheckFile(id, p1, p2 hg.FileID) (bool, error) {
	text, err := s.ReadFile(id)
	if err != nil {
		return false, err
	}
	null := hg.NullID
	for _, pair := range [][2]hg.ObjectID{
		{p1.ObjectID, p2.ObjectID},
		{p1.ObjectID, null},
		{p2.ObjectID, null},
		{p1.ObjectID, p1.ObjectID},
		{null, null},
	} {
		if hg.VerifyNode(id.ObjectID, pair[0], pair[1], text) {
			return true, nil
		}
	}
	return false, nil
}

// CheckFiles re-validates the file revisions tracked during imports. On
// failure the broken ref is pointed at the current metadata, an error with
// remediation steps is logged and false is returned; the imported data is
// kept.
func (s *Session) CheckFiles(ctx context.Context) (bool, error) {
	tracked := s.files.snapshot()
	s.log.Debugw("checking files", "count", len(tracked))
	var broken []hg.FileID
	for _, f := range tracked {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		ok, err := s.CheckFile(f.node, f.parents[0], f.parents[1])
		if err != nil {
			return false, fmt.Errorf("check file %s: %w", f.node, err)
		}
		if !ok {
			broken = append(broken, f.node)
		}
	}
	if len(broken) == 0 {
		return true, nil
	}

	for _, id := range broken {
		s.log.Debugw("file failed hash check", "file", id)
	}
	md, err := s.repo.ReadRef(MetadataRef)
	if err != nil {
		return false, err
	}
	if md == "" {
		s.log.Warnw("no metadata to mark as broken", "files", len(broken))
	} else {
		err := s.repo.Transaction().
			Update(BrokenRef, md, repo.AnyOld, "post-pull check").
			Commit()
		if err != nil {
			return false, fmt.Errorf("mark broken: %w", err)
		}
	}
	s.log.Errorw("the imported history is inconsistent; roll the metadata back to its previous state, or start over with a fresh clone",
		"files", len(broken),
		"rollback", "refs/hgbridge/metadata@{1}",
		"ref", "refs/hgbridge/"+BrokenRef)
	return false, nil
}

// ---------------------------------------------------------------------------
// Fsck
// ---------------------------------------------------------------------------

// FsckReport summarizes a full verification.
type FsckReport struct {
	Changesets int
	Manifests  int
	Files      int
	Problems   []string
}

// OK reports whether no problem was found.
func (r *FsckReport) OK() bool { return len(r.Problems) == 0 }

func (r *FsckReport) problem(format string, args ...any) {
	r.Problems = append(r.Problems, fmt.Sprintf(format, args...))
}

// Fsck verifies that every stored changeset and manifest regenerates to
// its id and that every file blob exists. A clean run moves the checked
// ref to the current metadata.
func (s *Session) Fsck(ctx context.Context) (*FsckReport, error) {
	report := &FsckReport{}

	manifestIDs := make(map[object.CommitID]hg.ManifestID)
	err := s.notes.Each(notes.Manifest, func(k, v string) error {
		id, err := hg.ParseManifestID(k)
		if err != nil {
			return err
		}
		manifestIDs[object.CommitID(v)] = id
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fsck: %w", err)
	}

	for commitID, id := range manifestIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		report.Manifests++
		commit, err := s.store.ReadCommit(commitID)
		if err != nil {
			report.problem("manifest %s: %v", id, err)
			continue
		}
		var p [2]hg.ObjectID
		for i, parent := range commit.Parents {
			pid, ok := manifestIDs[object.CommitID(parent)]
			if !ok || i > 1 {
				report.problem("manifest %s: unknown parent commit %s", id, parent)
				continue
			}
			p[i] = pid.ObjectID
		}
		if !hg.VerifyNode(id.ObjectID, p[0], p[1], []byte(commit.Message)) {
			report.problem("manifest %s: hash mismatch", id)
		}
	}

	err = s.notes.Each(notes.Changeset, func(k, v string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		report.Changesets++
		id, err := hg.ParseChangesetID(k)
		if err != nil {
			return err
		}
		if msg := s.verifyChangeset(id, object.CommitID(v)); msg != "" {
			report.problem("changeset %s: %s", id, msg)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fsck: %w", err)
	}

	err = s.notes.Each(notes.File, func(k, v string) error {
		report.Files++
		if !s.store.Has(object.Hash(v)) {
			report.problem("file %s: missing blob %s", k, v)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fsck: %w", err)
	}

	s.log.Infow("fsck done",
		"changesets", report.Changesets, "manifests", report.Manifests,
		"files", report.Files, "problems", len(report.Problems))
	if !report.OK() {
		return report, nil
	}
	md, err := s.repo.ReadRef(MetadataRef)
	if err != nil {
		return nil, err
	}
	if md != "" {
		if err := s.repo.Transaction().Update(CheckedRef, md, repo.AnyOld, "fsck").Commit(); err != nil {
			return nil, fmt.Errorf("fsck: %w", err)
		}
	}
	return report, nil
}

func (s *Session) verifyChangeset(id hg.ChangesetID, commitID object.CommitID) string {
	commit, err := s.store.ReadCommit(commitID)
	if err != nil {
		return err.Error()
	}
	md, err := s.CommitMetadata(commitID)
	if err != nil {
		return err.Error()
	}
	if md.ChangesetID != id {
		return fmt.Sprintf("commit %s carries metadata for %s", commitID, md.ChangesetID)
	}
	raw, err := changeset.Reconstruct(commit, md, s)
	if err != nil {
		return err.Error()
	}
	var p [2]hg.ObjectID
	for i, parent := range commit.Parents {
		if i > 1 {
			break
		}
		cs, err := s.ChangesetFor(object.CommitID(parent))
		if errors.Is(err, ErrNotFound) {
			return fmt.Sprintf("parent commit %s has no changeset", parent)
		}
		if err != nil {
			return err.Error()
		}
		p[i] = cs.ObjectID
	}
	if !hg.VerifyNode(id.ObjectID, p[0], p[1], raw) {
		return "hash mismatch"
	}
	return ""
}

package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"

	"github.com/odvcencio/hgbridge/pkg/bridge"
	"github.com/odvcencio/hgbridge/pkg/notes"
	"github.com/odvcencio/hgbridge/pkg/object"
	"github.com/odvcencio/hgbridge/pkg/sshsig"
)

// ErrHasMetadata is returned when the target repository already holds
// metadata; only empty repositories can be bootstrapped.
var ErrHasMetadata = errors.New("repository already has metadata")

// ValidationError reports fetched metadata that cannot be installed. Refs
// and notes are left untouched; fetched objects stay in the store, inert.
type ValidationError struct {
	Ref    string
	Commit object.CommitID
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Commit.IsZero() {
		return "invalid metadata: " + e.Reason
	}
	return fmt.Sprintf("invalid metadata %s (%s): %s", e.Commit, e.Ref, e.Reason)
}

// MergerOptions configures a Merger.
type MergerOptions struct {
	Fetcher Fetcher
	Logger  *zap.SugaredLogger
	// AllowedSigners, when not empty, requires the metadata commit to be
	// signed by one of these keys.
	AllowedSigners []ssh.PublicKey
}

// Merger installs published metadata into a session's repository.
type Merger struct {
	session *bridge.Session
	fetcher Fetcher
	log     *zap.SugaredLogger
	allowed []ssh.PublicKey
}

// NewMerger returns a Merger for s.
func NewMerger(s *bridge.Session, opts MergerOptions) *Merger {
	m := &Merger{session: s, fetcher: opts.Fetcher, log: opts.Logger, allowed: opts.AllowedSigners}
	if m.fetcher == nil {
		m.fetcher = NewFetcher(nil, opts.Logger)
	}
	if m.log == nil {
		m.log = zap.NewNop().Sugar()
	}
	return m
}

// Merge fetches the bundle at location and installs the metadata it
// publishes for hgURL. An explicit branch overrides the candidates derived
// from hgURL; with neither, the default branch is looked up.
func (m *Merger) Merge(ctx context.Context, location, hgURL, branch string) (object.CommitID, error) {
	has, err := m.session.HasMetadata()
	if err != nil {
		return "", err
	}
	if has {
		return "", ErrHasMetadata
	}

	rc, err := m.fetcher.Fetch(ctx, location)
	if err != nil {
		return "", err
	}
	defer rc.Close()
	bundle, err := ReadBundle(rc)
	if err != nil {
		return "", fmt.Errorf("bootstrap from %s: %w", location, err)
	}

	var branches []string
	switch {
	case branch != "":
		branches = []string{branch}
	case hgURL != "":
		branches = BranchesForURL(hgURL)
	default:
		branches = []string{DefaultBranch}
	}
	ref, hash, ok := SelectRef(bundle.RefMap(), branches)
	if !ok {
		m.log.Errorw("no metadata found", "location", location, "candidates", branches)
		return "", &ValidationError{Reason: fmt.Sprintf("no metadata ref among %s", strings.Join(branches, ", "))}
	}
	m.log.Debugw("selected metadata ref", "ref", ref, "commit", hash)

	n, err := bundle.Unpack(m.session.Repo().Store)
	if err != nil {
		return "", fmt.Errorf("bootstrap from %s: %w", location, err)
	}
	m.log.Infow("fetched metadata", "objects", n, "ref", ref)

	commit := object.CommitID(hash)
	if err := m.validate(ref, commit); err != nil {
		return "", err
	}

	err = m.session.Repo().Transaction().
		Update(bridge.MetadataRef, hash, "", "bootstrap").
		Commit()
	if err != nil {
		return "", fmt.Errorf("bootstrap: %w", err)
	}
	if err := m.session.RestoreNotes(commit); err != nil {
		return "", err
	}
	return commit, nil
}

func (m *Merger) validate(ref string, id object.CommitID) error {
	invalid := func(format string, args ...any) error {
		return &ValidationError{Ref: ref, Commit: id, Reason: fmt.Sprintf(format, args...)}
	}
	store := m.session.Repo().Store
	commit, err := store.ReadCommit(id)
	if err != nil {
		return invalid("unreadable commit: %v", err)
	}
	words := strings.Fields(commit.Message)
	sort.Strings(words)
	if !strings.Contains(commit.Author, "metadata@hgbridge") ||
		strings.Join(words, " ") != bridge.MetadataBody {
		m.log.Errorw("invalid metadata", "commit", id)
		return invalid("not a metadata commit")
	}
	if len(commit.Parents) != 1 {
		return invalid("want 1 parent, got %d", len(commit.Parents))
	}
	if len(m.allowed) > 0 {
		if err := sshsig.VerifyCommit(commit, m.allowed); err != nil {
			return invalid("signature: %v", err)
		}
	}

	changesets, err := store.ReadCommit(object.CommitID(commit.Parents[0]))
	if err != nil {
		return invalid("unreadable changesets commit: %v", err)
	}
	missing := 0
	for _, p := range changesets.Parents {
		if !store.Has(p) {
			m.log.Errorw("missing commit", "commit", p)
			missing++
		}
	}

	replaced, err := m.replaceNotes(id)
	if err != nil {
		return invalid("%v", err)
	}
	for _, pair := range replaced {
		for _, h := range pair {
			if !store.Has(h) {
				m.log.Errorw("missing commit", "commit", h)
				missing++
			}
		}
	}
	if missing > 0 {
		return invalid("%d missing commits", missing)
	}
	return nil
}

// replaceNotes loads the note dump of the metadata commit into a scratch
// store and returns its replace pairs.
func (m *Merger) replaceNotes(id object.CommitID) ([][2]object.Hash, error) {
	scratch, err := notes.OpenInMemory()
	if err != nil {
		return nil, err
	}
	defer scratch.Close()
	tmp := bridge.New(m.session.Repo(), scratch, bridge.Options{Logger: m.log})
	if err := tmp.RestoreNotes(id); err != nil {
		return nil, err
	}
	var out [][2]object.Hash
	err = scratch.Each(notes.Replace, func(k, v string) error {
		out = append(out, [2]object.Hash{object.Hash(k), object.Hash(v)})
		return nil
	})
	return out, err
}

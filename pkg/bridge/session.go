// Package bridge stores Mercurial history in the native object store and
// regenerates it byte for byte. A Session owns every piece of state one
// import or export needs: the object store, the note tables, the branch
// head tracker and the transient file tracker.
package bridge

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/odvcencio/hgbridge/pkg/config"
	"github.com/odvcencio/hgbridge/pkg/graft"
	"github.com/odvcencio/hgbridge/pkg/heads"
	"github.com/odvcencio/hgbridge/pkg/hg"
	"github.com/odvcencio/hgbridge/pkg/metadata"
	"github.com/odvcencio/hgbridge/pkg/notes"
	"github.com/odvcencio/hgbridge/pkg/object"
	"github.com/odvcencio/hgbridge/pkg/repo"
)

// Marker refs, relative to refs/hgbridge/.
const (
	MetadataRef = "metadata"
	CheckedRef  = "checked"
	BrokenRef   = "broken"
)

// ErrNotFound is returned when an id has no stored counterpart.
var ErrNotFound = errors.New("not found")

// Options configures a Session. Zero values select defaults.
type Options struct {
	Logger  *zap.SugaredLogger
	Config  *config.Config
	Grafter graft.Decider
}

// Session is the context of one store session.
type Session struct {
	repo    *repo.Repo
	store   *object.Store
	notes   *notes.Store
	log     *zap.SugaredLogger
	cfg     *config.Config
	grafter graft.Decider

	ownsNotes bool

	headsMu sync.Mutex
	heads   *heads.ChangesetHeads

	files *fileTracker

	treeMu sync.Mutex
	trees  map[hg.ManifestID]object.TreeID

	bundle object.BlobID
}

// Open opens the note tables of r and returns a session over them. Close
// releases the tables.
func Open(r *repo.Repo, opts Options) (*Session, error) {
	n, err := notes.Open(r.NotesDir())
	if err != nil {
		return nil, err
	}
	s := New(r, n, opts)
	s.ownsNotes = true
	return s, nil
}

// New returns a session over an already opened note store. The caller
// keeps ownership of n.
func New(r *repo.Repo, n *notes.Store, opts Options) *Session {
	s := &Session{
		repo:    r,
		store:   r.Store,
		notes:   n,
		log:     opts.Logger,
		cfg:     opts.Config,
		grafter: opts.Grafter,
		files:   newFileTracker(),
		trees:   make(map[hg.ManifestID]object.TreeID),
	}
	if s.log == nil {
		s.log = zap.NewNop().Sugar()
	}
	if s.cfg == nil {
		s.cfg = config.Default()
	}
	if s.grafter == nil {
		s.grafter = graft.None{}
	}
	return s
}

// Close releases the note store when the session opened it.
func (s *Session) Close() error {
	if s.ownsNotes {
		return s.notes.Close()
	}
	return nil
}

// Repo returns the underlying repository.
func (s *Session) Repo() *repo.Repo { return s.repo }

// Notes returns the note store.
func (s *Session) Notes() *notes.Store { return s.notes }

// ---------------------------------------------------------------------------
// Branch heads
// ---------------------------------------------------------------------------

// Heads returns the branch head tracker, loading it from the persisted
// metadata on first use.
func (s *Session) Heads() (*heads.ChangesetHeads, error) {
	s.headsMu.Lock()
	defer s.headsMu.Unlock()
	if s.heads != nil {
		return s.heads, nil
	}
	h, err := s.loadHeads()
	if err != nil {
		return nil, err
	}
	s.heads = h
	return h, nil
}

// ResetHeads drops the in-memory tracker; the next use reloads it from the
// persisted metadata.
func (s *Session) ResetHeads() {
	s.headsMu.Lock()
	defer s.headsMu.Unlock()
	s.heads = nil
}

// SetHeads replaces the tracker.
func (s *Session) SetHeads(h *heads.ChangesetHeads) {
	s.headsMu.Lock()
	defer s.headsMu.Unlock()
	s.heads = h
}

func (s *Session) loadHeads() (*heads.ChangesetHeads, error) {
	md, err := s.repo.ReadRef(MetadataRef)
	if err != nil {
		return nil, err
	}
	if md == "" {
		return heads.New(), nil
	}
	return s.headsOf(object.CommitID(md))
}

// headsOf parses the branch heads recorded by a metadata commit.
func (s *Session) headsOf(md object.CommitID) (*heads.ChangesetHeads, error) {
	commit, err := s.store.ReadCommit(md)
	if err != nil {
		return nil, fmt.Errorf("load heads: %w", err)
	}
	if len(commit.Parents) == 0 {
		return nil, fmt.Errorf("load heads: metadata commit %s has no changesets parent", md)
	}
	changesets, err := s.store.ReadCommit(object.CommitID(commit.Parents[0]))
	if err != nil {
		return nil, fmt.Errorf("load heads: %w", err)
	}
	h, err := heads.Parse([]byte(changesets.Message))
	if err != nil {
		return nil, fmt.Errorf("load heads: %w", err)
	}
	return h, nil
}

// HasMetadata reports whether metadata was ever persisted.
func (s *Session) HasMetadata() (bool, error) {
	md, err := s.repo.ReadRef(MetadataRef)
	if err != nil {
		return false, err
	}
	return md != "", nil
}

// ---------------------------------------------------------------------------
// Id mapping
// ---------------------------------------------------------------------------

func (s *Session) lookup(t notes.Table, key string) (object.Hash, error) {
	v, ok, err := s.notes.Get(t, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%s %s: %w", t, key, ErrNotFound)
	}
	return object.Hash(v), nil
}

// ChangesetCommit returns the native commit of a changeset.
func (s *Session) ChangesetCommit(id hg.ChangesetID) (object.CommitID, error) {
	h, err := s.lookup(notes.Changeset, id.String())
	return object.CommitID(h), err
}

// ManifestCommit returns the native commit holding a manifest.
func (s *Session) ManifestCommit(id hg.ManifestID) (object.CommitID, error) {
	h, err := s.lookup(notes.Manifest, id.String())
	return object.CommitID(h), err
}

// CommitMetadata returns the changeset metadata attached to a native
// commit.
func (s *Session) CommitMetadata(commit object.CommitID) (*metadata.ChangesetMetadata, error) {
	h, err := s.lookup(notes.Git2Hg, commit.String())
	if err != nil {
		return nil, err
	}
	data, err := s.store.ReadBlob(object.BlobID(h))
	if err != nil {
		return nil, fmt.Errorf("changeset metadata for %s: %w", commit, err)
	}
	md, err := metadata.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("changeset metadata for %s: %w", commit, err)
	}
	return md, nil
}

// ChangesetFor maps a native commit back to its changeset. It makes the
// session usable as a changeset.ParentResolver.
func (s *Session) ChangesetFor(commit object.CommitID) (hg.ChangesetID, error) {
	md, err := s.CommitMetadata(commit)
	if err != nil {
		return hg.ChangesetID{}, err
	}
	return md.ChangesetID, nil
}

package bootstrap

import (
	"fmt"
	"io"

	"github.com/odvcencio/hgbridge/pkg/bridge"
	"github.com/odvcencio/hgbridge/pkg/notes"
	"github.com/odvcencio/hgbridge/pkg/object"
)

// DefaultPublishRef is the ref published metadata is advertised under when
// no name is given.
const DefaultPublishRef = "refs/hgbridge/" + bridge.MetadataRef

// Publish writes a metadata bundle of the session's current metadata
// commit, advertised under names (DefaultPublishRef when empty). The bundle
// carries everything reachable from the metadata commit and from every
// note, so a repository restored from it can regenerate all changesets.
func Publish(w io.Writer, s *bridge.Session, names ...string) (object.CommitID, error) {
	md, err := s.Repo().ReadRef(bridge.MetadataRef)
	if err != nil {
		return "", fmt.Errorf("publish: %w", err)
	}
	if md == "" {
		return "", fmt.Errorf("publish: no metadata stored")
	}
	if len(names) == 0 {
		names = []string{DefaultPublishRef}
	}

	roots := []object.Hash{md}
	for _, t := range notes.Tables {
		err := s.Notes().Each(t, func(k, v string) error {
			roots = append(roots, object.Hash(v))
			if t == notes.Replace {
				roots = append(roots, object.Hash(k))
			}
			return nil
		})
		if err != nil {
			return "", fmt.Errorf("publish: %w", err)
		}
	}
	set, err := s.Repo().Store.ReachableSet(roots)
	if err != nil {
		return "", fmt.Errorf("publish: %w", err)
	}

	refs := make([]Ref, 0, len(names))
	for _, n := range names {
		refs = append(refs, Ref{Name: n, Hash: md})
	}
	if err := WriteBundle(w, s.Repo().Store, refs, object.SortedHashes(set)); err != nil {
		return "", fmt.Errorf("publish: %w", err)
	}
	return object.CommitID(md), nil
}

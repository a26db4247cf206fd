package bridge

import (
	"fmt"

	"github.com/odvcencio/hgbridge/pkg/object"
	"github.com/odvcencio/hgbridge/pkg/tags"
)

const tagsFile = ".hgtags"

// Tags resolves the tags of the stored history by merging the .hgtags file
// of every head. Heads sharing the same file content are read once.
func (s *Session) Tags() ([]tags.Tag, error) {
	h, err := s.Heads()
	if err != nil {
		return nil, err
	}
	if h.IsEmpty() {
		return nil, nil
	}
	merged := tags.New()
	seen := make(map[object.Hash]bool)
	for _, head := range h.Heads() {
		cid, err := s.ChangesetCommit(head)
		if err != nil {
			return nil, fmt.Errorf("tags: head %s: %w", head, err)
		}
		commit, err := s.store.ReadCommit(cid)
		if err != nil {
			return nil, fmt.Errorf("tags: head %s: %w", head, err)
		}
		entry, ok, err := s.repo.TreeEntryAtPath(object.TreeID(commit.TreeHash), tagsFile)
		if err != nil {
			return nil, fmt.Errorf("tags: head %s: %w", head, err)
		}
		if !ok || seen[entry.BlobHash] {
			continue
		}
		seen[entry.BlobHash] = true
		data, err := s.store.ReadBlob(object.BlobID(entry.BlobHash))
		if err != nil {
			return nil, fmt.Errorf("tags: head %s: %w", head, err)
		}
		ts, err := tags.Parse(data)
		if err != nil {
			s.log.Warnw("ignoring unparsable tags file", "head", head, "error", err)
			continue
		}
		merged.Merge(ts)
	}
	return merged.Tags(), nil
}

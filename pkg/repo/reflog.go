package repo

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/odvcencio/hgbridge/pkg/object"
)

const zeroHash = "0000000000000000000000000000000000000000000000000000000000000000"

// ReflogEntry records one move of a bridge ref such as
// refs/hgbridge/metadata, refs/hgbridge/checked or refs/hgbridge/broken.
// Reason names the bridge operation that moved it: "store",
// "bootstrap", "fsck" or "post-pull check".
type ReflogEntry struct {
	Ref       string
	OldHash   object.Hash
	NewHash   object.Hash
	Timestamp int64
	Reason    string
}

// reflogPath maps a qualified ref name to its log under .hgbridge/logs.
func (r *Repo) reflogPath(ref string) string {
	return filepath.Join(r.Dir, "logs", filepath.FromSlash(ref))
}

func hashOrZero(h object.Hash) string {
	if strings.TrimSpace(string(h)) == "" {
		return zeroHash
	}
	return string(h)
}

// appendReflog is called by ref transactions after a successful swap.
// A missing old or new value is logged as the zero hash.
func (r *Repo) appendReflog(ref string, oldHash, newHash object.Hash, reason string) error {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil
	}
	if strings.TrimSpace(reason) == "" {
		reason = "update"
	}

	path := r.reflogPath(ref)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("reflog mkdir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("reflog open: %w", err)
	}
	defer f.Close()

	line := fmt.Sprintf("%s %s %d %s\n", hashOrZero(oldHash), hashOrZero(newHash), time.Now().Unix(), reason)
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("reflog write: %w", err)
	}
	return nil
}

// parseReflogLine reads "<old> <new> <unix> <reason>"; malformed lines
// are reported as not ok and skipped by the caller.
func parseReflogLine(ref, line string) (ReflogEntry, bool) {
	parts := strings.SplitN(strings.TrimSpace(line), " ", 4)
	if len(parts) < 4 {
		return ReflogEntry{}, false
	}
	ts, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return ReflogEntry{}, false
	}
	return ReflogEntry{
		Ref:       ref,
		OldHash:   object.Hash(parts[0]),
		NewHash:   object.Hash(parts[1]),
		Timestamp: ts,
		Reason:    parts[3],
	}, true
}

// ReadReflog returns the moves of a bridge ref, newest first. Short names
// resolve under refs/hgbridge/, so "metadata" reads the metadata ref's
// history. A limit of zero returns every entry; a ref that never moved
// has no entries.
func (r *Repo) ReadReflog(ref string, limit int) ([]ReflogEntry, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("read reflog: empty ref name")
	}
	ref = qualifyRef(ref)

	f, err := os.Open(r.reflogPath(ref))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read reflog: %w", err)
	}
	defer f.Close()

	var entries []ReflogEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if e, ok := parseReflogLine(ref, scanner.Text()); ok {
			entries = append(entries, e)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read reflog: %w", err)
	}

	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

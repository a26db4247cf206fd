package repo

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/odvcencio/hgbridge/pkg/object"
)

// TreeFileEntry represents a single file in a flattened tree.
type TreeFileEntry struct {
	Path     string
	Mode     string
	BlobHash object.Hash
}

// BuildTree converts flat file entries into a hierarchical tree structure,
// writing TreeObj objects to the store and returning the root id.
//
// Entry paths use forward slashes (e.g. "pkg/util/util.go"). BuildTree
// groups them by directory, recursively creates subtrees, and returns the
// root tree id. An empty entry list yields the empty tree.
func (r *Repo) BuildTree(entries []TreeFileEntry) (object.TreeID, error) {
	byPath := make(map[string]TreeFileEntry, len(entries))
	for _, e := range entries {
		if e.Path == "" || strings.HasPrefix(e.Path, "/") || strings.HasSuffix(e.Path, "/") {
			return "", fmt.Errorf("build tree: invalid path %q", e.Path)
		}
		byPath[e.Path] = e
	}
	return r.buildTreeDir(byPath, "")
}

func (r *Repo) buildTreeDir(all map[string]TreeFileEntry, prefix string) (object.TreeID, error) {
	files := make(map[string]TreeFileEntry)
	subdirs := make(map[string]struct{})

	for p, entry := range all {
		var rel string
		if prefix == "" {
			rel = p
		} else {
			if !strings.HasPrefix(p, prefix+"/") {
				continue
			}
			rel = p[len(prefix)+1:]
		}

		slash := strings.IndexByte(rel, '/')
		if slash < 0 {
			files[rel] = entry
		} else {
			subdirs[rel[:slash]] = struct{}{}
		}
	}

	names := make([]string, 0, len(files)+len(subdirs))
	for name := range files {
		names = append(names, name)
	}
	for name := range subdirs {
		if _, isFile := files[name]; isFile {
			return "", fmt.Errorf("build tree: %q is both a file and a directory", path.Join(prefix, name))
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var entries []object.TreeEntry
	for _, name := range names {
		if entry, isFile := files[name]; isFile {
			entries = append(entries, object.TreeEntry{
				Name:     name,
				Mode:     entry.Mode,
				BlobHash: entry.BlobHash,
			})
			continue
		}
		childPrefix := name
		if prefix != "" {
			childPrefix = prefix + "/" + name
		}
		subID, err := r.buildTreeDir(all, childPrefix)
		if err != nil {
			return "", err
		}
		entries = append(entries, object.TreeEntry{
			Name:        name,
			IsDir:       true,
			SubtreeHash: object.Hash(subID),
		})
	}

	id, err := r.Store.WriteTree(&object.TreeObj{Entries: entries})
	if err != nil {
		return "", fmt.Errorf("write tree (prefix=%q): %w", prefix, err)
	}
	return id, nil
}

// FlattenTree walks a tree object recursively, returning all file entries
// with their full paths (using forward slashes) in path order.
func (r *Repo) FlattenTree(id object.TreeID) ([]TreeFileEntry, error) {
	return r.flattenTreeRec(id, "")
}

func (r *Repo) flattenTreeRec(id object.TreeID, prefix string) ([]TreeFileEntry, error) {
	treeObj, err := r.Store.ReadTree(id)
	if err != nil {
		return nil, fmt.Errorf("flatten tree: read %s: %w", id, err)
	}

	var result []TreeFileEntry
	for _, entry := range treeObj.Entries {
		fullPath := entry.Name
		if prefix != "" {
			fullPath = path.Join(prefix, entry.Name)
		}

		if entry.IsDir {
			sub, err := r.flattenTreeRec(object.TreeID(entry.SubtreeHash), fullPath)
			if err != nil {
				return nil, err
			}
			result = append(result, sub...)
		} else {
			mode := entry.Mode
			if mode == "" {
				mode = object.TreeModeFile
			}
			result = append(result, TreeFileEntry{
				Path:     fullPath,
				Mode:     mode,
				BlobHash: entry.BlobHash,
			})
		}
	}
	return result, nil
}

// TreeEntryAtPath looks up the file entry at relPath inside a tree.
func (r *Repo) TreeEntryAtPath(id object.TreeID, relPath string) (object.TreeEntry, bool, error) {
	parts := strings.Split(relPath, "/")
	current := id

	for i, part := range parts {
		treeObj, err := r.Store.ReadTree(current)
		if err != nil {
			return object.TreeEntry{}, false, fmt.Errorf("read tree %s: %w", current, err)
		}
		entry, found := treeObj.Entry(part)
		if !found {
			return object.TreeEntry{}, false, nil
		}
		if i == len(parts)-1 {
			if entry.IsDir {
				return object.TreeEntry{}, false, nil
			}
			return entry, true, nil
		}
		if !entry.IsDir || entry.SubtreeHash == "" {
			return object.TreeEntry{}, false, nil
		}
		current = object.TreeID(entry.SubtreeHash)
	}
	return object.TreeEntry{}, false, nil
}

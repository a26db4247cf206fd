package repo

import (
	"github.com/odvcencio/hgbridge/pkg/object"
)

// DirName is the name of the repository state directory.
const DirName = ".hgbridge"

// Repo represents an opened bridge repository.
type Repo struct {
	RootDir string        // directory containing .hgbridge/
	Dir     string        // .hgbridge/ directory
	Store   *object.Store // content-addressed object store
}

// NotesDir returns the directory holding the note tables.
func (r *Repo) NotesDir() string {
	return r.path("notes")
}

// ConfigPath returns the path of the repository configuration file.
func (r *Repo) ConfigPath() string {
	return r.path("config.toml")
}

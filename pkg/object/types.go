package object

// Hash is a 64-character hex-encoded SHA-256 digest.
type Hash string

// ObjectType identifies the kind of object stored.
type ObjectType string

const (
	TypeBlob   ObjectType = "blob"
	TypeTree   ObjectType = "tree"
	TypeCommit ObjectType = "commit"
)

const (
	// Tree mode constants compatible with Git's canonical mode strings.
	TreeModeDir        = "40000"
	TreeModeFile       = "100644"
	TreeModeExecutable = "100755"
	TreeModeSymlink    = "120000"
)

// Blob holds raw file data.
type Blob struct {
	Data []byte
}

// TreeEntry is one entry in a tree object. Names may contain spaces but
// never a newline or a tab.
type TreeEntry struct {
	Name        string
	IsDir       bool
	Mode        string
	BlobHash    Hash
	SubtreeHash Hash
}

// TreeObj holds a sorted list of tree entries.
type TreeObj struct {
	Entries []TreeEntry // sorted by Name
}

// Entry returns the entry with the given name, if present.
func (t *TreeObj) Entry(name string) (TreeEntry, bool) {
	for _, e := range t.Entries {
		if e.Name == name {
			return e, true
		}
	}
	return TreeEntry{}, false
}

// CommitObj represents a commit pointing to a tree with metadata.
//
// Author and Committer hold an identity ("Name <email>"); the timestamp and
// timezone ("+0100") are carried separately. Message is stored verbatim and
// may contain arbitrary bytes, including NUL.
type CommitObj struct {
	TreeHash           Hash
	Parents            []Hash
	Author             string
	Timestamp          int64
	AuthorTimezone     string
	Committer          string
	CommitterTimestamp int64
	CommitterTimezone  string
	Signature          string
	Message            string
}

// SameAuthorAndCommitter reports whether the committer identity, time and
// timezone are all equal to the author's.
func (c *CommitObj) SameAuthorAndCommitter() bool {
	return c.Author == c.Committer &&
		c.Timestamp == c.CommitterTimestamp &&
		c.AuthorTimezone == c.CommitterTimezone
}

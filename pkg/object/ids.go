package object

// Typed native ids. They share the Hash representation but are distinct
// types so a tree id cannot be passed where a commit id is expected.
type (
	CommitID Hash
	TreeID   Hash
	BlobID   Hash
)

func (id CommitID) String() string { return string(id) }
func (id TreeID) String() string   { return string(id) }
func (id BlobID) String() string   { return string(id) }

// IsZero reports whether the id is unset.
func (id CommitID) IsZero() bool { return id == "" }

// IsZero reports whether the id is unset.
func (id TreeID) IsZero() bool { return id == "" }

// IsZero reports whether the id is unset.
func (id BlobID) IsZero() bool { return id == "" }

// EmptyTreeID is the id of the tree with no entries.
var EmptyTreeID = TreeID(HashObject(TypeTree, nil))

// EmptyBlobID is the id of the zero-length blob.
var EmptyBlobID = BlobID(HashObject(TypeBlob, nil))

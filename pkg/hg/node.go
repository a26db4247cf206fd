package hg

import (
	"crypto/sha1"
)

// NodeHash computes a node id the way Mercurial does: the SHA-1 of the two
// parent ids in ascending order followed by the revision text.
func NodeHash(p1, p2 ObjectID, data []byte) ObjectID {
	if p1.Compare(p2) > 0 {
		p1, p2 = p2, p1
	}
	h := sha1.New()
	h.Write(p1[:])
	h.Write(p2[:])
	h.Write(data)
	var id ObjectID
	copy(id[:], h.Sum(nil))
	return id
}

// VerifyNode reports whether data hashes to node with the given parents.
func VerifyNode(node, p1, p2 ObjectID, data []byte) bool {
	return NodeHash(p1, p2, data) == node
}

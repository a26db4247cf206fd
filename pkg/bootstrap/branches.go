// Package bootstrap seeds a repository with metadata published elsewhere:
// it fetches a metadata bundle, picks the ref matching the Mercurial URL,
// validates what it points at and installs it.
package bootstrap

import (
	"net"
	"net/url"
	"strings"

	"github.com/odvcencio/hgbridge/pkg/object"
)

// DefaultBranch is the last candidate of every URL.
const DefaultBranch = "metadata"

// BranchesForURL lists the branch names metadata for rawURL may be
// published under, most specific first: the last path segment, then longer
// path suffixes, then the host followed by the whole path, then
// "metadata". Ports are ignored and IP hosts are skipped.
func BranchesForURL(rawURL string) []string {
	var parts []string
	if u, err := url.Parse(rawURL); err == nil {
		segments := strings.Split(strings.TrimPrefix(u.EscapedPath(), "/"), "/")
		for i := len(segments) - 1; i >= 0; i-- {
			parts = append(parts, segments[i])
		}
		if host := u.Hostname(); host != "" && net.ParseIP(host) == nil {
			parts = append(parts, host)
		}
	}
	var branches []string
	for _, p := range parts {
		if p == "" {
			continue
		}
		if n := len(branches); n > 0 {
			p = p + "/" + branches[n-1]
		}
		branches = append(branches, p)
	}
	return append(branches, DefaultBranch)
}

// refCandidates expands a branch name into the ref names it may be
// published as.
func refCandidates(branch string) []string {
	return []string{branch, "refs/hgbridge/" + branch, "refs/heads/" + branch}
}

// SelectRef returns the first ref of refs matching one of the branches.
func SelectRef(refs map[string]object.Hash, branches []string) (string, object.Hash, bool) {
	for _, b := range branches {
		for _, name := range refCandidates(b) {
			if h, ok := refs[name]; ok {
				return name, h, true
			}
		}
	}
	return "", "", false
}

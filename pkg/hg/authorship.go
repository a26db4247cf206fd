package hg

import (
	"fmt"
	"strconv"
	"strings"
)

// Authorship is a foreign author line together with its date. UTCOffset is
// in seconds west of UTC, as Mercurial records it.
type Authorship struct {
	Author    string
	Timestamp int64
	UTCOffset int
}

// NativeIdent is a native identity with its date and "+HHMM" timezone.
type NativeIdent struct {
	Ident     string
	Timestamp int64
	Timezone  string
}

// FromNative converts a native identity to foreign authorship.
func FromNative(n NativeIdent) Authorship {
	return Authorship{
		Author:    AuthorFromIdent(n.Ident),
		Timestamp: n.Timestamp,
		UTCOffset: UTCOffsetFromTimezone(n.Timezone),
	}
}

// Native converts foreign authorship to a native identity.
func (a Authorship) Native() NativeIdent {
	return NativeIdent{
		Ident:     IdentFromAuthor(a.Author),
		Timestamp: a.Timestamp,
		Timezone:  TimezoneFromUTCOffset(a.UTCOffset),
	}
}

// DateLine renders "timestamp utcoffset".
func (a Authorship) DateLine() string {
	return strconv.FormatInt(a.Timestamp, 10) + " " + strconv.Itoa(a.UTCOffset)
}

// Committer renders the value of the "committer" extra entry for this
// authorship: "author timestamp utcoffset".
func (a Authorship) Committer() string {
	return a.Author + " " + a.DateLine()
}

// IdentFromAuthor maps a foreign author line to a native "Name <email>"
// identity. Well formed lines pass through, a bare address is wrapped in
// angle brackets and anything else gets an empty address appended.
func IdentFromAuthor(author string) string {
	author = strings.TrimSpace(author)
	switch {
	case wellFormedIdent(author):
		return author
	case author != "" && !strings.ContainsAny(author, " <>") && strings.Contains(author, "@"):
		return "<" + author + ">"
	default:
		if author == "" {
			return "<>"
		}
		return author + " <>"
	}
}

// AuthorFromIdent is the reverse of IdentFromAuthor for the identities it
// produces. It is lossy; differences are recorded in changeset metadata.
func AuthorFromIdent(ident string) string {
	switch {
	case ident == "<>":
		return ""
	case strings.HasSuffix(ident, " <>"):
		return strings.TrimSuffix(ident, " <>")
	case strings.HasPrefix(ident, "<") && strings.HasSuffix(ident, ">") && strings.Count(ident, "<") == 1:
		return ident[1 : len(ident)-1]
	default:
		return ident
	}
}

func wellFormedIdent(s string) bool {
	open := strings.IndexByte(s, '<')
	return open > 0 && s[open-1] == ' ' && strings.HasSuffix(s, ">") &&
		strings.Count(s, "<") == 1 && strings.Count(s, ">") == 1
}

// UTCOffsetFromTimezone converts "+HHMM" to seconds west of UTC. Malformed
// input yields 0.
func UTCOffsetFromTimezone(tz string) int {
	if len(tz) != 5 || (tz[0] != '+' && tz[0] != '-') {
		return 0
	}
	hh, err1 := strconv.Atoi(tz[1:3])
	mm, err2 := strconv.Atoi(tz[3:5])
	if err1 != nil || err2 != nil {
		return 0
	}
	east := hh*3600 + mm*60
	if tz[0] == '-' {
		east = -east
	}
	return -east
}

// TimezoneFromUTCOffset converts seconds west of UTC to "+HHMM". Seconds
// below a minute are dropped.
func TimezoneFromUTCOffset(offset int) string {
	east := -offset
	sign := byte('+')
	if east < 0 {
		sign = '-'
		east = -east
	}
	return fmt.Sprintf("%c%02d%02d", sign, east/3600, (east%3600)/60)
}

// ParseCommitter interprets a "committer" extra value. A value ending in
// '>' is a bare identity that takes the author's date; otherwise it is
// "author timestamp utcoffset".
func ParseCommitter(value string, authorDate Authorship) (Authorship, error) {
	if strings.HasSuffix(value, ">") {
		return Authorship{Author: value, Timestamp: authorDate.Timestamp, UTCOffset: authorDate.UTCOffset}, nil
	}
	offIdx := strings.LastIndexByte(value, ' ')
	if offIdx < 0 {
		return Authorship{}, fmt.Errorf("committer %q: missing date", value)
	}
	tsIdx := strings.LastIndexByte(value[:offIdx], ' ')
	if tsIdx < 0 {
		return Authorship{}, fmt.Errorf("committer %q: missing timestamp", value)
	}
	ts, err := strconv.ParseInt(value[tsIdx+1:offIdx], 10, 64)
	if err != nil {
		return Authorship{}, fmt.Errorf("committer %q: %w", value, err)
	}
	off, err := strconv.Atoi(value[offIdx+1:])
	if err != nil {
		return Authorship{}, fmt.Errorf("committer %q: %w", value, err)
	}
	return Authorship{Author: value[:tsIdx], Timestamp: ts, UTCOffset: off}, nil
}

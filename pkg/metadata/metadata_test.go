package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/hgbridge/pkg/hg"
	"github.com/odvcencio/hgbridge/pkg/xdiff"
)

const (
	csHex = "0123456789abcdef0123456789abcdef01234567"
	mfHex = "89abcdef0123456789abcdef0123456789abcdef"
)

func TestRoundTrip(t *testing.T) {
	cases := []*ChangesetMetadata{
		{ChangesetID: hg.MustChangesetID(csHex)},
		{
			ChangesetID: hg.MustChangesetID(csHex),
			ManifestID:  mustManifest(t, mfHex),
			Author:      []byte("someone"),
			Extra:       []byte("branch:stable\x00close:1"),
			Files:       []byte("a\x00b/c"),
			Patch:       EncodePatch([]xdiff.Hunk{{Start: 1, End: 2, Data: []byte("x y\n")}}),
		},
		{ChangesetID: hg.MustChangesetID(csHex), Author: []byte{}},
		{ChangesetID: hg.MustChangesetID(csHex), Files: []byte("only")},
	}
	for _, m := range cases {
		got, err := Parse(m.Serialize())
		require.NoError(t, err)
		assert.True(t, m.Equal(got), "round trip of %q", m.Serialize())
	}
}

func TestSerializeLayout(t *testing.T) {
	m := &ChangesetMetadata{
		ChangesetID: hg.MustChangesetID(csHex),
		Files:       []byte("a"),
		Author:      []byte("x"),
	}
	assert.Equal(t, "changeset "+csHex+"\nauthor x\nfiles a", string(m.Serialize()))
}

func TestEqualDistinguishesAbsentFromEmpty(t *testing.T) {
	a := &ChangesetMetadata{ChangesetID: hg.MustChangesetID(csHex)}
	b := &ChangesetMetadata{ChangesetID: hg.MustChangesetID(csHex), Extra: []byte{}}
	assert.False(t, a.Equal(b))
	assert.True(t, a.Equal(&ChangesetMetadata{ChangesetID: hg.MustChangesetID(csHex)}))
}

func TestParseRejects(t *testing.T) {
	for _, data := range []string{
		"",
		"manifest " + mfHex,
		"changeset " + csHex + "\nbogus value",
		"changeset " + csHex + "\nnospace",
		"changeset nothex",
	} {
		_, err := Parse([]byte(data))
		assert.ErrorIs(t, err, ErrInvalidMetadata, "Parse(%q)", data)
	}
}

func TestManifestDefaultsToNull(t *testing.T) {
	m, err := Parse([]byte("changeset " + csHex))
	require.NoError(t, err)
	assert.True(t, m.ManifestID.IsNull())
	assert.Nil(t, m.ExtraDict())
	assert.Nil(t, m.FileList())
}

func TestPercentEncoding(t *testing.T) {
	assert.Equal(t, "abcXYZ019", string(PercentEncode([]byte("abcXYZ019"))))
	assert.Equal(t, "a%20b%2C%00%FF%25-", string(PercentEncode([]byte("a b,\x00\xff%")))+"-")
	all := make([]byte, 256)
	for i := range all {
		all[i] = byte(i)
	}
	assert.Equal(t, all, PercentDecode(PercentEncode(all)))
	assert.Equal(t, "100%", string(PercentDecode([]byte("100%"))))
	assert.Equal(t, "%zz", string(PercentDecode([]byte("%zz"))))
}

func TestPatchCodec(t *testing.T) {
	hunks := []xdiff.Hunk{
		{Start: 0, End: 3, Data: []byte("a,b\x00c")},
		{Start: 10, End: 10, Data: nil},
	}
	enc := EncodePatch(hunks)
	assert.Equal(t, "0,3,a%2Cb%00c\x0010,10,", string(enc))
	dec, err := DecodePatch(enc)
	require.NoError(t, err)
	require.Len(t, dec, 2)
	assert.Equal(t, "a,b\x00c", string(dec[0].Data))
	assert.Equal(t, 10, dec[1].Start)
	assert.Empty(t, dec[1].Data)

	_, err = DecodePatch([]byte("1,2"))
	assert.ErrorIs(t, err, ErrInvalidMetadata)
	_, err = DecodePatch([]byte("x,2,"))
	assert.ErrorIs(t, err, ErrInvalidMetadata)
}

func mustManifest(t *testing.T, s string) hg.ManifestID {
	t.Helper()
	id, err := hg.ParseManifestID(s)
	require.NoError(t, err)
	return id
}

package alphabet

import (
	"path/filepath"
	"testing"

	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromLabels(t *testing.T) {
	a := FromLabels([]string{"banana", "abba", "cab"})
	require.Equal(t, Alphabet("abcn"), a)

	// Permuting the labels must not change the derived alphabet.
	b := FromLabels([]string{"cab", "banana", "abba"})
	require.Equal(t, a, b)

	require.Empty(t, FromLabels(nil))
}

func TestMapperRoundTrip(t *testing.T) {
	a := FromLabels([]string{"Hello, World!"})
	m := NewMapper(a)
	require.Equal(t, len(a)+1, m.NumClasses())
	for _, r := range a {
		idx := must.M1(m.CharacterToIndex(r))
		require.Greater(t, idx, int32(Blank))
		back := must.M1(m.IndexToCharacter(idx))
		assert.Equal(t, r, back)
	}
}

func TestMapperEncode(t *testing.T) {
	m := NewMapper(Alphabet("ab"))
	indices := must.M1(m.Encode("ab"))
	require.Equal(t, []int32{1, 2}, indices)
	indices = must.M1(m.Encode("ba"))
	require.Equal(t, []int32{2, 1}, indices)

	_, err := m.Encode("abc")
	require.Error(t, err)
	var unknownErr *UnknownSymbolError
	require.ErrorAs(t, err, &unknownErr)
	assert.Equal(t, 'c', unknownErr.Symbol)

	// Blank and out-of-range indices are not decodable.
	_, err = m.Decode([]int32{Blank})
	require.Error(t, err)
	_, err = m.Decode([]int32{3})
	require.Error(t, err)
}

func TestSaveLoad(t *testing.T) {
	a := FromLabels([]string{"größe", "naïve"})
	filePath := filepath.Join(t.TempDir(), "alphabet.json")
	require.NoError(t, a.Save(filePath))
	loaded := must.M1(Load(filePath))
	require.Equal(t, a, loaded)

	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

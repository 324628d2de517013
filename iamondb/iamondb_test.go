package iamondb

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/janpfeifer/must"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PellelNitram/carbune2020-implementation/handwriting"
)

const strokeFileTemplate = `<?xml version="1.0" encoding="ISO-8859-1"?>
<WhiteboardCaptureSession>
  <StrokeSet>
    <Stroke colour="black" start_time="0.00" end_time="0.20">
      <Point x="100" y="200" time="0.00"/>
      <Point x="110" y="210" time="0.10"/>
      <Point x="120" y="200" time="0.20"/>
    </Stroke>
    <Stroke colour="black" start_time="0.50" end_time="0.60">
      <Point x="130" y="220" time="0.50"/>
      <Point x="140" y="230" time="0.60"/>
    </Stroke>
  </StrokeSet>
</WhiteboardCaptureSession>
`

const asciiFile = `OCR corrected version

CSR:

A first test line
A second test line
`

// writeCorpus lays out a minimal IAM-OnDB tree with the given stroke files
// under document a01-000u.
func writeCorpus(t *testing.T, strokeFiles map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	strokesDir := filepath.Join(dir, "lineStrokes-all", "lineStrokes", "a01", "a01-000")
	asciiDir := filepath.Join(dir, "ascii-all", "ascii", "a01", "a01-000")
	require.NoError(t, os.MkdirAll(strokesDir, 0755))
	require.NoError(t, os.MkdirAll(asciiDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(asciiDir, "a01-000u.txt"), []byte(asciiFile), 0644))
	for name, contents := range strokeFiles {
		require.NoError(t, os.WriteFile(filepath.Join(strokesDir, name), []byte(contents), 0644))
	}
	return dir
}

func TestLoad(t *testing.T) {
	dir := writeCorpus(t, map[string]string{
		"a01-000u-01.xml": strokeFileTemplate,
		"a01-000u-02.xml": strokeFileTemplate,
	})
	src := New(dir, zerolog.Nop())
	ds := must.M1(src.Load(-1))
	require.Equal(t, 2, ds.Len())

	s := ds.At(0)
	assert.Equal(t, "a01-000u-01", s.Name)
	assert.Equal(t, "A first test line", s.Label)
	require.NoError(t, s.Validate())
	require.Equal(t, 5, s.NumPoints())
	assert.Equal(t, []float64{0, 0, 0, 1, 1}, s.Series[handwriting.FeatureStroke])
	assert.Equal(t, []float64{100, 110, 120, 130, 140}, s.Series[handwriting.FeatureX])
	// y is flipped so text reads upright.
	assert.Equal(t, []float64{-200, -210, -200, -220, -230}, s.Series[handwriting.FeatureY])

	assert.Equal(t, "A second test line", ds.At(1).Label)
}

func TestLoadLimit(t *testing.T) {
	dir := writeCorpus(t, map[string]string{
		"a01-000u-01.xml": strokeFileTemplate,
		"a01-000u-02.xml": strokeFileTemplate,
	})
	src := New(dir, zerolog.Nop())
	ds := must.M1(src.Load(1))
	require.Equal(t, 1, ds.Len())
}

func TestLoadSkipsMalformedRecords(t *testing.T) {
	dir := writeCorpus(t, map[string]string{
		"a01-000u-01.xml": "<WhiteboardCaptureSession><StrokeSet></Str", // Truncated XML.
		"a01-000u-02.xml": strokeFileTemplate,
		// Line 03 has no CSR transcription.
		"a01-000u-03.xml": strokeFileTemplate,
	})
	src := New(dir, zerolog.Nop())
	ds := must.M1(src.Load(-1))
	require.Equal(t, 1, ds.Len())
	assert.Equal(t, "a01-000u-02", ds.At(0).Name)
}

func TestLoadMissingCorpus(t *testing.T) {
	src := New(t.TempDir(), zerolog.Nop())
	_, err := src.Load(-1)
	require.Error(t, err)
}

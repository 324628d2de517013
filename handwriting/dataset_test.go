package handwriting

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDataset(t *testing.T) *Dataset {
	t.Helper()
	ds := New("test", zerolog.Nop())
	ds.Append(
		FromStrokes("s0", "ab", []Stroke{
			{{X: 0, Y: 0, T: 0}, {X: 1, Y: 1, T: 0.1}, {X: 2, Y: 0, T: 0.2}},
		}),
		FromStrokes("s1", "ba", []Stroke{
			{{X: 0, Y: 0, T: 0}, {X: 1, Y: 0, T: 0.1}},
			{{X: 1, Y: 1, T: 0.3}, {X: 0, Y: 1, T: 0.4}, {X: 0, Y: 0, T: 0.5}},
		}),
	)
	return ds
}

func TestFromStrokes(t *testing.T) {
	ds := newTestDataset(t)
	require.Equal(t, 2, ds.Len())

	s := ds.At(1)
	require.NoError(t, s.Validate())
	require.Equal(t, 5, s.NumPoints())
	assert.Equal(t, []float64{0, 0, 1, 1, 1}, s.Series[FeatureStroke])
	assert.Equal(t, []float64{0, 0.1, 0.3, 0.4, 0.5}, s.Series[FeatureT])
	assert.Equal(t, []string{"ab", "ba"}, ds.Labels())
}

func TestSampleValidate(t *testing.T) {
	s := NewSample("s", "label")
	s.Series[FeatureX] = []float64{1, 2, 3}
	s.Series[FeatureY] = []float64{1, 2}
	require.Error(t, s.Validate())

	require.Error(t, NewSample("", "label").Validate())
}

func TestMap(t *testing.T) {
	ds := newTestDataset(t)

	identity := func(s *Sample) (*Sample, error) { return s.Clone(), nil }
	mapped, err := ds.Map("identity", identity)
	require.NoError(t, err)
	require.Equal(t, ds.Len(), mapped.Len())
	require.Zero(t, mapped.Skipped())

	// Mapping is pure: mutating the result must not touch the original.
	mapped.At(0).Series[FeatureX][0] = 42
	assert.Equal(t, 0.0, ds.At(0).Series[FeatureX][0])

	// Skips are silent omissions, counted on the new dataset.
	skipFirst := func(s *Sample) (*Sample, error) {
		if s.Name == "s0" {
			return nil, ErrSkipSample
		}
		return s, nil
	}
	mapped, err = ds.Map("skip-first", skipFirst)
	require.NoError(t, err)
	require.Equal(t, 1, mapped.Len())
	require.Equal(t, 1, mapped.Skipped())
	assert.Equal(t, "s1", mapped.At(0).Name)

	// A transform failing every sample yields a valid empty dataset.
	skipAll := func(s *Sample) (*Sample, error) { return nil, ErrSkipSample }
	mapped, err = ds.Map("skip-all", skipAll)
	require.NoError(t, err)
	require.Zero(t, mapped.Len())
	require.Equal(t, 2, mapped.Skipped())

	// Any other error aborts the whole map.
	boom := errors.New("boom")
	_, err = ds.Map("fail", func(s *Sample) (*Sample, error) { return nil, boom })
	require.ErrorIs(t, err, boom)
}

type stubSource struct {
	UnimplementedSource
}

func (stubSource) Name() string { return "stub" }

func TestUnimplementedSource(t *testing.T) {
	var src Source = stubSource{}
	_, err := src.Load(10)
	require.ErrorIs(t, err, ErrUnimplementedSource)
}

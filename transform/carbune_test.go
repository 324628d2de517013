package transform

import (
	"math"
	"testing"

	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"

	"github.com/PellelNitram/carbune2020-implementation/handwriting"
)

func TestCarbuneClampsZeroTimeDeltas(t *testing.T) {
	// Repeated timestamps happen in real recordings; dt must stay positive.
	s := handwriting.FromStrokes("flat_time", "a", []handwriting.Stroke{
		{{X: 0, Y: 0, T: 1.0}, {X: 1, Y: 2, T: 1.0}, {X: 2, Y: 4, T: 1.0}},
	})
	out := must.M1(carbuneStage{}.Apply(s))

	dt := out.Series[handwriting.FeatureT]
	assert.Equal(t, []float64{0, MinTimeDelta, MinTimeDelta}, dt)
	for _, feature := range []string{handwriting.FeatureX, handwriting.FeatureY, handwriting.FeatureT} {
		for _, v := range out.Series[feature] {
			require.False(t, math.IsNaN(v) || math.IsInf(v, 0), "%s contains non-finite values", feature)
		}
	}
}

func TestCarbuneStrokeBoundaryIsolation(t *testing.T) {
	// A huge pen jump between strokes must not leak into any delta.
	s := handwriting.FromStrokes("jump", "a", []handwriting.Stroke{
		{{X: 0, Y: 0, T: 0}, {X: 1, Y: 1, T: 0.1}},
		{{X: 1000, Y: 1000, T: 5}, {X: 1001, Y: 1001, T: 5.1}},
	})
	out := must.M1(carbuneStage{}.Apply(s))

	dx := out.Series[handwriting.FeatureX]
	dy := out.Series[handwriting.FeatureY]
	dt := out.Series[handwriting.FeatureT]
	// First point of the second stroke: all deltas reset.
	assert.Equal(t, 0.0, dx[2])
	assert.Equal(t, 0.0, dy[2])
	assert.Equal(t, 0.0, dt[2])
	// The within-stroke deltas on both sides are identical moves, so they
	// must match despite the jump in between.
	assert.InDelta(t, dx[1], dx[3], 1e-12)
	assert.InDelta(t, dy[1], dy[3], 1e-12)
	assert.InDelta(t, 0.1, dt[3], 1e-12)
}

func TestCarbuneScalesByHeight(t *testing.T) {
	s := handwriting.FromStrokes("tall", "a", []handwriting.Stroke{
		{{X: 0, Y: 0, T: 0}, {X: 10, Y: 20, T: 0.1}, {X: 20, Y: 0, T: 0.2}},
	})
	out := must.M1(carbuneStage{}.Apply(s))

	_, stdY := stat.MeanStdDev(s.Series[handwriting.FeatureY], nil)
	require.Greater(t, stdY, 0.0)
	assert.InDelta(t, 10.0/stdY, out.Series[handwriting.FeatureX][1], 1e-12)
	assert.InDelta(t, 20.0/stdY, out.Series[handwriting.FeatureY][1], 1e-12)
}

func TestCarbuneDegenerateHeight(t *testing.T) {
	// A perfectly horizontal line has zero y spread; the scale falls back to 1
	// instead of dividing by zero.
	s := handwriting.FromStrokes("flat", "a", []handwriting.Stroke{
		{{X: 0, Y: 5, T: 0}, {X: 1, Y: 5, T: 0.1}, {X: 2, Y: 5, T: 0.2}},
	})
	out := must.M1(carbuneStage{}.Apply(s))
	assert.Equal(t, []float64{0, 1, 1}, out.Series[handwriting.FeatureX])
	assert.Equal(t, []float64{0, 0, 0}, out.Series[handwriting.FeatureY])
}

func TestSimpleNormalise(t *testing.T) {
	s := handwriting.FromStrokes("norm", "a", []handwriting.Stroke{
		{{X: 10, Y: 100, T: 0}, {X: 20, Y: 300, T: 0.1}, {X: 60, Y: 200, T: 0.2}},
	})
	out := must.M1(simpleNormaliseStage{}.Apply(s))

	for _, feature := range []string{handwriting.FeatureX, handwriting.FeatureY} {
		mean, std := stat.MeanStdDev(out.Series[feature], nil)
		assert.InDelta(t, 0, mean, 1e-12, feature)
		assert.InDelta(t, 1, std, 1e-12, feature)
	}
	// Positions stay absolute, only standardized: the ordering survives.
	xs := out.Series[handwriting.FeatureX]
	assert.Less(t, xs[0], xs[1])
	assert.Less(t, xs[1], xs[2])
}

func TestSmoothKeepsSchema(t *testing.T) {
	s := handwriting.FromStrokes("smooth", "a", []handwriting.Stroke{
		{
			{X: 0, Y: 0, T: 0}, {X: 1, Y: 2, T: 0.1}, {X: 2, Y: 1.8, T: 0.2},
			{X: 3, Y: 4, T: 0.3}, {X: 4, Y: 3.9, T: 0.4}, {X: 5, Y: 6, T: 0.5},
		},
		{{X: 10, Y: 10, T: 1.0}, {X: 11, Y: 11, T: 1.1}},
	})
	out := must.M1(newSmoothStage().Apply(s))

	require.Equal(t, s.NumPoints(), out.NumPoints())
	require.NoError(t, out.Validate())
	// Timing and stroke structure pass through untouched.
	assert.Equal(t, s.Series[handwriting.FeatureT], out.Series[handwriting.FeatureT])
	assert.Equal(t, s.Series[handwriting.FeatureStroke], out.Series[handwriting.FeatureStroke])
	// The second stroke is too short to fit a cubic spline and stays as-is.
	assert.Equal(t, s.Series[handwriting.FeatureX][6:], out.Series[handwriting.FeatureX][6:])
	assert.Equal(t, s.Series[handwriting.FeatureY][6:], out.Series[handwriting.FeatureY][6:])
	// Smoothed values stay finite.
	for _, v := range out.Series[handwriting.FeatureY][:6] {
		require.False(t, math.IsNaN(v) || math.IsInf(v, 0))
	}
}

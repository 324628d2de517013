/*
 *	Copyright 2024 Martin Lellep
 *
 *	Licensed under the Apache License, Version 2.0 (the "License");
 *	you may not use this file except in compliance with the License.
 *	You may obtain a copy of the License at
 *
 *	http://www.apache.org/licenses/LICENSE-2.0
 *
 *	Unless required by applicable law or agreed to in writing, software
 *	distributed under the License is distributed on an "AS IS" BASIS,
 *	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *	See the License for the specific language governing permissions and
 *	limitations under the License.
 */

package transform

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"

	"github.com/PellelNitram/carbune2020-implementation/handwriting"
)

// MinTimeDelta is the smallest time step between consecutive points. Some
// recordings carry repeated timestamps; clamping keeps dt strictly positive so
// no downstream feature divides by (or trains on) a zero time step.
const MinTimeDelta = 1e-3

// carbuneStage normalizes ink geometry following Carbune et al. 2020
// ("Fast multi-language LSTM-based online handwriting recognition"):
// coordinates are shifted to the ink's mean and scaled by the standard
// deviation of y (writing height), then each point is replaced by its delta
// to the predecessor within the same stroke. The first point of every stroke
// carries zero deltas; its pen state is in the pen-lift channel instead.
type carbuneStage struct{}

func (carbuneStage) Name() string { return "carbune2020" }

func (carbuneStage) Apply(s *handwriting.Sample) (*handwriting.Sample, error) {
	for _, feature := range []string{handwriting.FeatureX, handwriting.FeatureY, handwriting.FeatureT, handwriting.FeatureStroke} {
		if _, found := s.Series[feature]; !found {
			return nil, errors.Errorf("sample %q has no %q series", s.Name, feature)
		}
	}
	if s.NumPoints() < 2 {
		// A single point has no deltas. Not worth training on.
		return nil, errors.WithStack(handwriting.ErrSkipSample)
	}

	xs := s.Series[handwriting.FeatureX]
	ys := s.Series[handwriting.FeatureY]
	ts := s.Series[handwriting.FeatureT]
	strokeNr := s.Series[handwriting.FeatureStroke]

	// Scale by the writing height, the standard deviation of y. The
	// translation part of the normalization cancels out in the deltas below,
	// so only the scale matters here.
	_, stdY := stat.MeanStdDev(ys, nil)
	scale := stdY
	if !(scale > 0) || math.IsNaN(scale) || math.IsInf(scale, 0) {
		// Degenerate height, e.g. a perfectly horizontal line.
		scale = 1
	}

	numPoints := len(xs)
	dx := make([]float64, numPoints)
	dy := make([]float64, numPoints)
	dt := make([]float64, numPoints)
	for ii := 0; ii < numPoints; ii++ {
		if ii == 0 || strokeNr[ii] != strokeNr[ii-1] {
			// Stroke boundary: the pen traveled through the air, so the
			// on-paper displacement is undefined. Emit zeros.
			continue
		}
		dx[ii] = (xs[ii] - xs[ii-1]) / scale
		dy[ii] = (ys[ii] - ys[ii-1]) / scale
		dt[ii] = math.Max(ts[ii]-ts[ii-1], MinTimeDelta)
	}

	out := s.Clone()
	out.Series[handwriting.FeatureX] = dx
	out.Series[handwriting.FeatureY] = dy
	out.Series[handwriting.FeatureT] = dt
	return out, nil
}

// simpleNormaliseStage standardizes x and y independently to zero mean and
// unit variance per sample, keeping absolute positions (no deltas). A cheaper
// baseline normalization than the Carbune one.
type simpleNormaliseStage struct{}

func (simpleNormaliseStage) Name() string { return "simple_normalise" }

func (simpleNormaliseStage) Apply(s *handwriting.Sample) (*handwriting.Sample, error) {
	if s.NumPoints() == 0 {
		return nil, errors.WithStack(handwriting.ErrSkipSample)
	}
	out := s.Clone()
	for _, feature := range []string{handwriting.FeatureX, handwriting.FeatureY} {
		values, found := s.Series[feature]
		if !found {
			return nil, errors.Errorf("sample %q has no %q series", s.Name, feature)
		}
		mean, std := stat.MeanStdDev(values, nil)
		if !(std > 0) || math.IsNaN(std) || math.IsInf(std, 0) {
			std = 1
		}
		standardized := make([]float64, len(values))
		for ii, v := range values {
			standardized[ii] = (v - mean) / std
		}
		out.Series[feature] = standardized
	}
	return out, nil
}

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
	"github.com/gomlx/bsplines"
	"github.com/pkg/errors"

	"github.com/PellelNitram/carbune2020-implementation/handwriting"
)

// smoothDegree is the B-spline degree used for stroke smoothing. Cubic is the
// usual choice for pen trajectories.
const smoothDegree = 3

// smoothStage reduces sensor jitter by re-sampling each stroke's x and y
// trajectories from a cubic B-spline fitted over the stroke: the stroke's
// points act as control points on a regular knot grid, and the trajectory is
// re-evaluated at the same number of positions. Point count, timestamps and
// stroke indices are unchanged, so the stage composes with the delta features
// downstream.
type smoothStage struct {
	degree int
}

func newSmoothStage() smoothStage {
	return smoothStage{degree: smoothDegree}
}

func (smoothStage) Name() string { return "bspline_smooth" }

func (st smoothStage) Apply(s *handwriting.Sample) (*handwriting.Sample, error) {
	strokeNr, found := s.Series[handwriting.FeatureStroke]
	if !found {
		return nil, errors.Errorf("sample %q has no %q series", s.Name, handwriting.FeatureStroke)
	}
	out := s.Clone()
	for _, feature := range []string{handwriting.FeatureX, handwriting.FeatureY} {
		values, found := s.Series[feature]
		if !found {
			return nil, errors.Errorf("sample %q has no %q series", s.Name, feature)
		}
		smoothed := make([]float64, len(values))
		copy(smoothed, values)
		for start := 0; start < len(values); {
			end := start + 1
			for end < len(values) && strokeNr[end] == strokeNr[start] {
				end++
			}
			st.smoothSegment(smoothed[start:end])
			start = end
		}
		out.Series[feature] = smoothed
	}
	return out, nil
}

// smoothSegment smooths one stroke's values in place. Strokes too short to
// define a spline of the configured degree are left untouched.
func (st smoothStage) smoothSegment(values []float64) {
	numPoints := len(values)
	if numPoints < st.degree+2 {
		return
	}
	control := make([]float64, numPoints)
	copy(control, values)
	b := bsplines.NewRegular(st.degree, numPoints).
		WithExtrapolation(bsplines.ExtrapolateConstant).
		WithControlPoints(control)
	for ii := range values {
		values[ii] = b.Evaluate(float64(ii) / float64(numPoints-1))
	}
}

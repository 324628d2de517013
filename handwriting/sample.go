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

// Package handwriting holds the in-memory representation of online
// handwriting corpora: samples of pen-stroke time series with their
// ground-truth transcriptions, and datasets of such samples with uniform
// load/save and map semantics.
//
// Concrete corpus formats (IAM-OnDB, Xournal) are parsed by the source
// packages, which all populate the same Sample schema.
package handwriting

import (
	"slices"

	"github.com/pkg/errors"
)

// Standard time-series feature names shared by all sources. After the Carbune
// transform the "x", "y" and "t" series hold per-step deltas instead of
// absolute values, and "n" is added as the pen-lift channel.
const (
	FeatureX      = "x"
	FeatureY      = "y"
	FeatureT      = "t"
	FeatureStroke = "stroke"
	FeatureN      = "n"
)

// Point is a single timestamped pen position. T is in seconds.
type Point struct {
	X, Y, T float64
}

// Stroke is a contiguous pen-down segment: the points recorded between a
// pen-down and the next pen-up event.
type Stroke []Point

// Sample is one handwriting recording: a set of named time series plus its
// transcription and a unique name. All time series within a sample have the
// same length; different samples may differ in length.
type Sample struct {
	// Name uniquely identifies the sample within its corpus, e.g. the
	// recording file stem.
	Name string

	// Label is the ground-truth transcription.
	Label string

	// Series maps a feature name to its per-point values. Which features are
	// present depends on the source and the transforms already applied.
	Series map[string][]float64
}

// NewSample creates an empty sample with the given identity.
func NewSample(name, label string) *Sample {
	return &Sample{
		Name:   name,
		Label:  label,
		Series: make(map[string][]float64),
	}
}

// FromStrokes converts a raw stroke sequence -- as produced by a corpus
// parser or by an interactive acquisition surface -- into a Sample with the
// standard "x", "y", "t" and "stroke" series.
func FromStrokes(name, label string, strokes []Stroke) *Sample {
	numPoints := 0
	for _, stroke := range strokes {
		numPoints += len(stroke)
	}
	s := NewSample(name, label)
	xs := make([]float64, 0, numPoints)
	ys := make([]float64, 0, numPoints)
	ts := make([]float64, 0, numPoints)
	strokeNr := make([]float64, 0, numPoints)
	for ii, stroke := range strokes {
		for _, p := range stroke {
			xs = append(xs, p.X)
			ys = append(ys, p.Y)
			ts = append(ts, p.T)
			strokeNr = append(strokeNr, float64(ii))
		}
	}
	s.Series[FeatureX] = xs
	s.Series[FeatureY] = ys
	s.Series[FeatureT] = ts
	s.Series[FeatureStroke] = strokeNr
	return s
}

// NumPoints returns the common length of the sample's time series, 0 for a
// sample without series.
func (s *Sample) NumPoints() int {
	for _, values := range s.Series {
		return len(values)
	}
	return 0
}

// Validate checks the sample invariants: a name, and all time series of equal
// length.
func (s *Sample) Validate() error {
	if s.Name == "" {
		return errors.New("sample has no name")
	}
	n := -1
	for feature, values := range s.Series {
		if n == -1 {
			n = len(values)
			continue
		}
		if len(values) != n {
			return errors.Errorf("sample %q: series %q has %d points, other series have %d",
				s.Name, feature, len(values), n)
		}
	}
	return nil
}

// Clone returns an independent deep copy of the sample.
func (s *Sample) Clone() *Sample {
	c := NewSample(s.Name, s.Label)
	for feature, values := range s.Series {
		c.Series[feature] = slices.Clone(values)
	}
	return c
}

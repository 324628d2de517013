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

// Package transform converts raw handwriting samples into the fixed-schema
// tensors a CTC sequence model trains on.
//
// A Pipeline is an ordered list of per-sample stages selected by an enumerated
// Config, followed by label encoding and coercion to an "ink" tensor with a
// fixed channel order. Stages are stateless per call and side-effect-free, so
// they are safe to run in parallel over samples. The output channel count and
// order are determined by the Config alone.
package transform

import (
	"fmt"

	"github.com/gomlx/gomlx/types/tensors"
	"github.com/pkg/errors"

	"github.com/PellelNitram/carbune2020-implementation/alphabet"
	"github.com/PellelNitram/carbune2020-implementation/handwriting"
)

// ConfigurationError reports an unrecognized pipeline configuration. Setup
// fails immediately on it; there is no fallback configuration.
type ConfigurationError struct {
	Name string
}

// Error implements error.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("unknown transform configuration %q", e.Name)
}

// Config selects a named pipeline: which stages run, and which channels the
// ink tensor carries, in which order.
type Config int

const (
	// ConfigXY feeds raw x/y coordinates, 2 channels. Mostly a baseline.
	ConfigXY Config = iota

	// ConfigCarbuneXYTN applies the Carbune normalization and feeds the
	// per-step deltas dx, dy, dt plus the pen-lift channel, 4 channels.
	ConfigCarbuneXYTN

	// ConfigCarbuneXYN is ConfigCarbuneXYTN without the time channel.
	ConfigCarbuneXYN

	// ConfigSimpleNormaliseXYN standardizes x/y per sample and adds the
	// pen-lift channel, 3 channels.
	ConfigSimpleNormaliseXYN

	// ConfigSmoothedCarbuneXYN smooths each stroke with a B-spline before the
	// Carbune normalization, 3 channels.
	ConfigSmoothedCarbuneXYN

	numConfigs
)

var configNames = [numConfigs]string{
	ConfigXY:                 "xy",
	ConfigCarbuneXYTN:        "carbune2020_xytn",
	ConfigCarbuneXYN:         "carbune2020_xyn",
	ConfigSimpleNormaliseXYN: "simple_normalise_xyn",
	ConfigSmoothedCarbuneXYN: "carbune2020_smoothed_xyn",
}

// String returns the configuration name.
func (c Config) String() string {
	if c < 0 || c >= numConfigs {
		return fmt.Sprintf("Config(%d)", int(c))
	}
	return configNames[c]
}

// ParseConfig resolves a configuration name, failing with a
// ConfigurationError on anything unknown.
func ParseConfig(name string) (Config, error) {
	for c, n := range configNames {
		if n == name {
			return Config(c), nil
		}
	}
	return 0, errors.WithStack(&ConfigurationError{Name: name})
}

// Stage is one step of the pipeline: it consumes a sample and returns a new
// one (or its input untouched). Returning handwriting.ErrSkipSample drops the
// sample, e.g. for degenerate geometry.
type Stage interface {
	// Name of the stage, for diagnostics.
	Name() string

	// Apply transforms the sample. It must not mutate its input.
	Apply(*handwriting.Sample) (*handwriting.Sample, error)
}

// InkSample is the tensor form of one transformed sample, ready for batching.
type InkSample struct {
	// Name of the originating sample.
	Name string

	// Ink is the multi-channel time series, shaped [NumPoints, numChannels],
	// float32.
	Ink *tensors.Tensor

	// NumPoints is the true (unpadded) sequence length.
	NumPoints int

	// Label is the class index sequence encoding the transcription.
	Label []int32
}

// Pipeline transforms samples per a validated Config. Immutable after
// construction and safe for concurrent use.
type Pipeline struct {
	config   Config
	stages   []Stage
	channels []string
	mapper   *alphabet.Mapper
}

// NewPipeline builds the pipeline for the given configuration. The
// configuration is validated here, at setup time; an unknown value fails with
// a ConfigurationError.
func NewPipeline(config Config, mapper *alphabet.Mapper) (*Pipeline, error) {
	p := &Pipeline{config: config, mapper: mapper}
	switch config {
	case ConfigXY:
		p.channels = []string{handwriting.FeatureX, handwriting.FeatureY}
	case ConfigCarbuneXYTN:
		p.stages = []Stage{penLiftStage{}, carbuneStage{}}
		p.channels = []string{handwriting.FeatureX, handwriting.FeatureY, handwriting.FeatureT, handwriting.FeatureN}
	case ConfigCarbuneXYN:
		p.stages = []Stage{penLiftStage{}, carbuneStage{}}
		p.channels = []string{handwriting.FeatureX, handwriting.FeatureY, handwriting.FeatureN}
	case ConfigSimpleNormaliseXYN:
		p.stages = []Stage{penLiftStage{}, simpleNormaliseStage{}}
		p.channels = []string{handwriting.FeatureX, handwriting.FeatureY, handwriting.FeatureN}
	case ConfigSmoothedCarbuneXYN:
		p.stages = []Stage{newSmoothStage(), penLiftStage{}, carbuneStage{}}
		p.channels = []string{handwriting.FeatureX, handwriting.FeatureY, handwriting.FeatureN}
	default:
		return nil, errors.WithStack(&ConfigurationError{Name: config.String()})
	}
	return p, nil
}

// Config returns the pipeline's configuration.
func (p *Pipeline) Config() Config { return p.config }

// NumChannels returns the channel count of the ink tensors this pipeline
// produces. The downstream model's input width.
func (p *Pipeline) NumChannels() int { return len(p.channels) }

// Channels returns the channel order of the ink tensor.
func (p *Pipeline) Channels() []string { return p.channels }

// SampleTransform returns the stage part of the pipeline as a MapFunc, to be
// applied eagerly over a whole dataset with Dataset.Map.
func (p *Pipeline) SampleTransform() handwriting.MapFunc {
	return func(s *handwriting.Sample) (*handwriting.Sample, error) {
		return p.runStages(s)
	}
}

func (p *Pipeline) runStages(s *handwriting.Sample) (*handwriting.Sample, error) {
	var err error
	for _, stage := range p.stages {
		s, err = stage.Apply(s)
		if err != nil {
			if errors.Is(err, handwriting.ErrSkipSample) {
				return nil, err
			}
			return nil, errors.WithMessagef(err, "stage %q", stage.Name())
		}
	}
	return s, nil
}

// Finalize converts a sample whose stages already ran (see SampleTransform)
// into tensor form: the channels stacked into a [numPoints, numChannels]
// float32 ink tensor, and the label encoded to class indices. An unknown
// label character fails loudly with alphabet.UnknownSymbolError.
func (p *Pipeline) Finalize(s *handwriting.Sample) (InkSample, error) {
	if err := s.Validate(); err != nil {
		return InkSample{}, err
	}
	numPoints := s.NumPoints()
	if numPoints == 0 {
		return InkSample{}, errors.WithStack(handwriting.ErrSkipSample)
	}
	numChannels := len(p.channels)
	flat := make([]float32, numPoints*numChannels)
	for c, feature := range p.channels {
		values, found := s.Series[feature]
		if !found {
			return InkSample{}, errors.Errorf("sample %q has no %q series required by configuration %s",
				s.Name, feature, p.config)
		}
		for ii, v := range values {
			flat[ii*numChannels+c] = float32(v)
		}
	}
	label, err := p.mapper.Encode(s.Label)
	if err != nil {
		return InkSample{}, errors.WithMessagef(err, "encoding label of sample %q", s.Name)
	}
	return InkSample{
		Name:      s.Name,
		Ink:       tensors.FromFlatDataAndDimensions(flat, numPoints, numChannels),
		NumPoints: numPoints,
		Label:     label,
	}, nil
}

// Apply runs the full pipeline -- stages then Finalize -- on one sample. Used
// for ad hoc single-sample inference; dataset training splits the two halves
// so the stages run once per sample, not once per epoch.
func (p *Pipeline) Apply(s *handwriting.Sample) (InkSample, error) {
	transformed, err := p.runStages(s)
	if err != nil {
		return InkSample{}, err
	}
	return p.Finalize(transformed)
}

// penLiftStage derives the pen-lift channel "n" from the stroke indices:
// n is 1 at the first point of every stroke and 0 elsewhere.
type penLiftStage struct{}

func (penLiftStage) Name() string { return "pen_lift" }

func (penLiftStage) Apply(s *handwriting.Sample) (*handwriting.Sample, error) {
	strokeNr, found := s.Series[handwriting.FeatureStroke]
	if !found {
		return nil, errors.Errorf("sample %q has no %q series", s.Name, handwriting.FeatureStroke)
	}
	out := s.Clone()
	n := make([]float64, len(strokeNr))
	for ii := range strokeNr {
		if ii == 0 || strokeNr[ii] != strokeNr[ii-1] {
			n[ii] = 1
		}
	}
	out.Series[handwriting.FeatureN] = n
	return out, nil
}

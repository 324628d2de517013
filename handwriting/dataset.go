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

package handwriting

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// ErrSkipSample is the sentinel returned by a MapFunc to drop the current
// sample from the mapped dataset -- e.g. for degenerate geometry. It is not a
// failure: Map counts the omission and carries on. Any other error returned by
// a MapFunc aborts the whole Map.
var ErrSkipSample = errors.New("sample skipped by transform")

// ErrUnimplementedSource is returned by UnimplementedSource.Load. Hitting it
// signals a programming error: a source variant was declared but its loader
// never implemented.
var ErrUnimplementedSource = errors.New("source does not implement Load")

// Source is the capability every corpus loader provides: parse its external
// format into a Dataset of uniformly-shaped samples.
//
// limit caps how many samples are materialized; limit <= 0 loads everything.
// Loaders must skip (and log) individually malformed records rather than
// aborting, unless the format makes the damage unbounded.
type Source interface {
	// Name identifies the source, e.g. "iamondb".
	Name() string

	// Load parses the corpus and returns a freshly-owned Dataset.
	Load(limit int) (*Dataset, error)
}

// UnimplementedSource can be embedded by source stubs that declare the Source
// contract before their parser exists. Its Load always fails with
// ErrUnimplementedSource.
type UnimplementedSource struct{}

// Load implements Source. It always fails.
func (UnimplementedSource) Load(limit int) (*Dataset, error) {
	return nil, errors.WithStack(ErrUnimplementedSource)
}

// MapFunc transforms one sample into another. Returning ErrSkipSample drops
// the sample from the mapped dataset; any other error aborts the Map. A
// MapFunc must be side-effect-free and independent of other samples, so maps
// are safe to run out of order or in parallel.
type MapFunc func(*Sample) (*Sample, error)

// Dataset is an ordered in-memory collection of samples. It exclusively owns
// its sample slice: loaders append into it during Load, transforms derive new
// independently-owned datasets with Map. It is not safe for concurrent
// mutation, but loading always completes before any transform stage reads it.
type Dataset struct {
	name    string
	logger  zerolog.Logger
	samples []*Sample
	skipped int
}

// New creates an empty dataset. The logger is the handle used for this
// dataset's diagnostics; pass zerolog.Nop() to silence it.
func New(name string, logger zerolog.Logger) *Dataset {
	ds := &Dataset{
		name:   name,
		logger: logger.With().Str("dataset", name).Logger(),
	}
	ds.logger.Debug().Msg("dataset created")
	return ds
}

// Name returns the dataset name.
func (ds *Dataset) Name() string { return ds.name }

// Len returns the number of samples.
func (ds *Dataset) Len() int { return len(ds.samples) }

// At returns the i-th sample. The sample is owned by the dataset; callers
// must not mutate it.
func (ds *Dataset) At(i int) *Sample { return ds.samples[i] }

// Append adds samples during loading.
func (ds *Dataset) Append(samples ...*Sample) {
	ds.samples = append(ds.samples, samples...)
}

// SetSamples replaces the whole sample sequence. The dataset takes ownership
// of the slice.
func (ds *Dataset) SetSamples(samples []*Sample) {
	ds.samples = samples
}

// Skipped returns how many samples the Map that produced this dataset
// dropped. Zero for loaded datasets.
func (ds *Dataset) Skipped() int { return ds.skipped }

// Labels returns the ground-truth label of every sample, in order.
func (ds *Dataset) Labels() []string {
	labels := make([]string, len(ds.samples))
	for ii, sample := range ds.samples {
		labels[ii] = sample.Label
	}
	return labels
}

// Map applies fn to every sample and returns a new dataset with the results,
// in order. Samples for which fn returns ErrSkipSample are omitted -- the
// count of omissions is observable on the new dataset's Skipped. The receiver
// is left untouched. Any error other than ErrSkipSample aborts the Map and is
// returned wrapped with the offending sample name.
func (ds *Dataset) Map(name string, fn MapFunc) (*Dataset, error) {
	mapped := New(name, ds.logger)
	mapped.samples = make([]*Sample, 0, len(ds.samples))
	for _, sample := range ds.samples {
		result, err := fn(sample)
		if err != nil {
			if errors.Is(err, ErrSkipSample) {
				mapped.skipped++
				ds.logger.Debug().Str("sample", sample.Name).Msg("sample skipped by transform")
				continue
			}
			return nil, errors.WithMessagef(err, "mapping sample %q", sample.Name)
		}
		mapped.samples = append(mapped.samples, result)
	}
	if mapped.skipped > 0 {
		ds.logger.Info().
			Int("skipped", mapped.skipped).
			Int("kept", len(mapped.samples)).
			Str("transform", name).
			Msg("transform dropped samples")
	}
	return mapped, nil
}

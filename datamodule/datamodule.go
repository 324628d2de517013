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

// Package datamodule ties the pipeline together: it loads a stroke source,
// derives the alphabet from the data, transforms every sample once, splits
// into train/validation/test and serves padded CTC batches as train.Dataset
// implementations.
package datamodule

import (
	"fmt"
	"math/rand"

	"github.com/gomlx/gomlx/ml/data"
	"github.com/gomlx/gomlx/ml/train"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/PellelNitram/carbune2020-implementation/alphabet"
	"github.com/PellelNitram/carbune2020-implementation/collate"
	"github.com/PellelNitram/carbune2020-implementation/handwriting"
	"github.com/PellelNitram/carbune2020-implementation/transform"
)

// DefaultSeed seeds the split shuffle when Config.Seed is left zero, so two
// runs with the same source and splits see the same partition.
const DefaultSeed = 42

// InsufficientDataError reports that the requested split sizes exceed the
// number of usable samples the source yielded.
type InsufficientDataError struct {
	Required  int
	Available int
}

// Error implements error.
func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("split sizes require %d samples but only %d usable samples were loaded",
		e.Required, e.Available)
}

// Config parameterizes a DataModule. Source, TrainValTestSplit and BatchSize
// are mandatory.
type Config struct {
	// Source provides the raw stroke samples.
	Source handwriting.Source

	// TrainValTestSplit gives the number of samples of the train, validation
	// and test partitions, in that order. The sum must not exceed the number
	// of usable samples.
	TrainValTestSplit [3]int

	// BatchSize of the served batches. The final batch of an epoch may be
	// smaller.
	BatchSize int

	// Transform selects the feature pipeline.
	Transform transform.Config

	// Limit caps how many samples the source loads; <= 0 loads everything.
	Limit int

	// Seed of the split shuffle; 0 means DefaultSeed.
	Seed int64

	// Parallelism > 0 wraps the served datasets in a parallelized prefetching
	// dataset with that many workers. BufferSize sets its prefetch buffer
	// (defaults to Parallelism).
	Parallelism int
	BufferSize  int

	// Logger for progress and skipped-sample reporting.
	Logger zerolog.Logger
}

func (c *Config) validate() error {
	if c.Source == nil {
		return errors.New("datamodule: Source is required")
	}
	if c.BatchSize <= 0 {
		return errors.Errorf("datamodule: BatchSize must be positive, got %d", c.BatchSize)
	}
	for _, n := range c.TrainValTestSplit {
		if n < 0 {
			return errors.Errorf("datamodule: negative split size in %v", c.TrainValTestSplit)
		}
	}
	if c.TrainValTestSplit[0]+c.TrainValTestSplit[1]+c.TrainValTestSplit[2] == 0 {
		return errors.New("datamodule: TrainValTestSplit is empty")
	}
	return nil
}

// DataModule owns the transformed dataset and its partitions. Create with
// New, then call Setup once before serving datasets.
type DataModule struct {
	config   Config
	logger   zerolog.Logger
	pipeline *transform.Pipeline
	alphabet alphabet.Alphabet
	mapper   *alphabet.Mapper

	// samples holds every transformed sample in source order; the partitions
	// index into it after a seeded shuffle.
	samples          []transform.InkSample
	train, val, test []transform.InkSample
}

// New validates the configuration. No data is touched until Setup.
func New(config Config) (*DataModule, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	if config.Seed == 0 {
		config.Seed = DefaultSeed
	}
	return &DataModule{
		config: config,
		logger: config.Logger.With().Str("component", "datamodule").Logger(),
	}, nil
}

// Setup loads the source, derives the alphabet from the loaded labels, runs
// the transform pipeline over every sample and partitions the result.
//
// Samples the pipeline marks as skippable (degenerate geometry) are dropped
// and counted; any other transform failure, including an unknown label
// symbol, aborts the setup.
func (dm *DataModule) Setup() error {
	ds, err := dm.config.Source.Load(dm.config.Limit)
	if err != nil {
		return errors.WithMessagef(err, "loading source %q", dm.config.Source.Name())
	}

	dm.alphabet = alphabet.FromLabels(ds.Labels())
	dm.mapper = alphabet.NewMapper(dm.alphabet)
	dm.pipeline, err = transform.NewPipeline(dm.config.Transform, dm.mapper)
	if err != nil {
		return err
	}

	transformed, err := ds.Map(dm.pipeline.Config().String(), dm.pipeline.SampleTransform())
	if err != nil {
		return errors.WithMessagef(err, "transforming source %q", dm.config.Source.Name())
	}

	dm.samples = make([]transform.InkSample, 0, transformed.Len())
	for ii := 0; ii < transformed.Len(); ii++ {
		ink, err := dm.pipeline.Finalize(transformed.At(ii))
		if err != nil {
			return errors.WithMessagef(err, "finalizing sample #%d", ii)
		}
		dm.samples = append(dm.samples, ink)
	}

	split := dm.config.TrainValTestSplit
	required := split[0] + split[1] + split[2]
	if required > len(dm.samples) {
		return errors.WithStack(&InsufficientDataError{Required: required, Available: len(dm.samples)})
	}

	shuffled := make([]transform.InkSample, len(dm.samples))
	copy(shuffled, dm.samples)
	rng := rand.New(rand.NewSource(dm.config.Seed))
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	dm.train = shuffled[:split[0]]
	dm.val = shuffled[split[0] : split[0]+split[1]]
	dm.test = shuffled[split[0]+split[1] : required]

	dm.logger.Info().
		Int("usable", len(dm.samples)).
		Int("skipped", transformed.Skipped()).
		Int("train", len(dm.train)).
		Int("validation", len(dm.val)).
		Int("test", len(dm.test)).
		Int("num_classes", dm.mapper.NumClasses()).
		Msg("data module ready")
	return nil
}

// Alphabet returns the alphabet derived from the loaded labels during Setup.
func (dm *DataModule) Alphabet() alphabet.Alphabet { return dm.alphabet }

// Mapper returns the symbol/index mapper derived during Setup.
func (dm *DataModule) Mapper() *alphabet.Mapper { return dm.mapper }

// Pipeline returns the configured transform pipeline.
func (dm *DataModule) Pipeline() *transform.Pipeline { return dm.pipeline }

// NumClasses returns the model output width: alphabet size plus the blank.
func (dm *DataModule) NumClasses() int { return dm.mapper.NumClasses() }

// NumSamples returns the number of usable (transformed) samples.
func (dm *DataModule) NumSamples() int { return len(dm.samples) }

// TransformedSample returns the i-th transformed sample in source order.
// Constant time; the transform ran once, during Setup.
func (dm *DataModule) TransformedSample(i int) (transform.InkSample, error) {
	if i < 0 || i >= len(dm.samples) {
		return transform.InkSample{}, errors.Errorf("sample index %d out of range [0, %d)", i, len(dm.samples))
	}
	return dm.samples[i], nil
}

// TrainDataset serves the training partition, reshuffled every epoch with a
// stream derived from the configured seed.
func (dm *DataModule) TrainDataset() (train.Dataset, error) {
	rng := rand.New(rand.NewSource(dm.config.Seed + 1))
	return dm.newDataset("train", dm.train, rng)
}

// ValidationDataset serves the validation partition in a fixed order.
func (dm *DataModule) ValidationDataset() (train.Dataset, error) {
	return dm.newDataset("validation", dm.val, nil)
}

// TestDataset serves the test partition in a fixed order.
func (dm *DataModule) TestDataset() (train.Dataset, error) {
	return dm.newDataset("test", dm.test, nil)
}

func (dm *DataModule) newDataset(name string, samples []transform.InkSample, rng *rand.Rand) (train.Dataset, error) {
	if dm.pipeline == nil {
		return nil, errors.New("datamodule: Setup must run before serving datasets")
	}
	var ds train.Dataset = newCTCDataset(name, samples, dm.config.BatchSize, rng)
	if dm.config.Parallelism > 0 {
		buffer := dm.config.BufferSize
		if buffer <= 0 {
			buffer = dm.config.Parallelism
		}
		ds = data.CustomParallel(ds).Parallelism(dm.config.Parallelism).Buffer(buffer).Start()
	}
	return ds, nil
}

// TransformStrokes runs the full pipeline on ad hoc, unlabeled strokes (e.g.
// freshly drawn ink) and returns them as a single-sample batch ready for
// inference. Requires Setup, since the pipeline and alphabet come from it.
func (dm *DataModule) TransformStrokes(strokes []handwriting.Stroke) (*collate.Batch, error) {
	if dm.pipeline == nil {
		return nil, errors.New("datamodule: Setup must run before TransformStrokes")
	}
	sample := handwriting.FromStrokes("adhoc", "", strokes)
	ink, err := dm.pipeline.Apply(sample)
	if err != nil {
		return nil, err
	}
	return collate.Collate([]transform.InkSample{ink})
}

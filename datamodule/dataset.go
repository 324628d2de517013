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

package datamodule

import (
	"io"
	"math/rand"
	"sync"

	"github.com/gomlx/gomlx/ml/train"
	"github.com/gomlx/gomlx/types/tensors"

	"github.com/PellelNitram/carbune2020-implementation/collate"
	"github.com/PellelNitram/carbune2020-implementation/transform"
)

var _ train.Dataset = &ctcDataset{}

// ctcDataset serves one partition as collated CTC batches. It implements
// train.Dataset: Yield returns io.EOF once the epoch is exhausted, and Reset
// rewinds (reshuffling if a rand source was given). Safe for concurrent
// Yield calls, so it can sit under data.CustomParallel.
type ctcDataset struct {
	name      string
	samples   []transform.InkSample
	batchSize int
	shuffle   *rand.Rand

	mu       sync.Mutex
	order    []int
	position int
}

func newCTCDataset(name string, samples []transform.InkSample, batchSize int, shuffle *rand.Rand) *ctcDataset {
	ds := &ctcDataset{
		name:      name,
		samples:   samples,
		batchSize: batchSize,
		shuffle:   shuffle,
	}
	ds.order = make([]int, len(samples))
	for ii := range ds.order {
		ds.order[ii] = ii
	}
	ds.reshuffleLocked()
	return ds
}

// Name implements train.Dataset.
func (ds *ctcDataset) Name() string { return ds.name }

// Reset implements train.Dataset: rewinds to the start of a new epoch.
func (ds *ctcDataset) Reset() {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.position = 0
	ds.reshuffleLocked()
}

func (ds *ctcDataset) reshuffleLocked() {
	if ds.shuffle == nil {
		return
	}
	ds.shuffle.Shuffle(len(ds.order), func(i, j int) {
		ds.order[i], ds.order[j] = ds.order[j], ds.order[i]
	})
}

// Yield implements train.Dataset. It returns:
//
//   - spec: unused, left as nil.
//   - inputs: the ink batch shaped [maxNumPoints, batchSize, numChannels] and
//     its true lengths shaped [batchSize].
//   - labels: the padded label batch shaped [batchSize, maxLabelLen] and its
//     true lengths shaped [batchSize].
//
// The final batch of an epoch may be smaller than the configured batch size.
func (ds *ctcDataset) Yield() (spec any, inputs, labels []*tensors.Tensor, err error) {
	ds.mu.Lock()
	if ds.position >= len(ds.order) {
		ds.mu.Unlock()
		return nil, nil, nil, io.EOF
	}
	start := ds.position
	end := start + ds.batchSize
	if end > len(ds.order) {
		end = len(ds.order)
	}
	ds.position = end
	picked := make([]transform.InkSample, 0, end-start)
	for _, idx := range ds.order[start:end] {
		picked = append(picked, ds.samples[idx])
	}
	ds.mu.Unlock()

	batch, err := collate.Collate(picked)
	if err != nil {
		return nil, nil, nil, err
	}
	return nil,
		[]*tensors.Tensor{batch.Ink, batch.InkLengths},
		[]*tensors.Tensor{batch.Labels, batch.LabelLengths},
		nil
}

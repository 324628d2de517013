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

// Package collate assembles variable-length ink samples into the padded,
// length-annotated tensors a CTC loss consumes.
package collate

import (
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"

	"github.com/PellelNitram/carbune2020-implementation/transform"
)

// Batch is a fixed-shape view of N variable-length samples. Padding is zeros;
// the true lengths travel alongside so the loss can ignore the padded tail.
//
// The ink tensor is time-major, the layout recurrent layers consume directly.
type Batch struct {
	// Ink is shaped [maxNumPoints, batchSize, numChannels], float32.
	Ink *tensors.Tensor

	// Labels is shaped [batchSize, maxLabelLen], int32. Padded positions hold
	// the blank index 0, but only the first LabelLengths[n] entries of row n
	// are meaningful.
	Labels *tensors.Tensor

	// InkLengths[n] is the true number of points of sample n, [batchSize] int32.
	InkLengths *tensors.Tensor

	// LabelLengths[n] is the true label length of sample n, [batchSize] int32.
	LabelLengths *tensors.Tensor

	// Names of the collated samples, in batch order.
	Names []string
}

// Collate pads the given samples to the batch's maximum sequence and label
// lengths and stacks them. Sample order is preserved: batch row n is
// samples[n]. All samples must share the same channel count; an empty batch
// is an error.
func Collate(samples []transform.InkSample) (*Batch, error) {
	if len(samples) == 0 {
		return nil, errors.New("cannot collate an empty batch")
	}
	numChannels := channelsOf(samples[0])
	maxNumPoints := 0
	maxLabelLen := 0
	for _, s := range samples {
		if c := channelsOf(s); c != numChannels {
			return nil, errors.Errorf("sample %q has %d channels, batch has %d; all samples of a batch must share one transform configuration",
				s.Name, c, numChannels)
		}
		maxNumPoints = maxOf(maxNumPoints, s.NumPoints)
		maxLabelLen = maxOf(maxLabelLen, len(s.Label))
	}
	if maxLabelLen == 0 {
		// All samples unlabeled (inference): tensors cannot have a zero axis,
		// so keep one all-blank column. LabelLengths stays 0.
		maxLabelLen = 1
	}

	batchSize := len(samples)
	ink := make([]float32, maxNumPoints*batchSize*numChannels)
	labels := make([]int32, batchSize*maxLabelLen)
	inkLengths := make([]int32, batchSize)
	labelLengths := make([]int32, batchSize)
	names := make([]string, batchSize)

	for n, s := range samples {
		names[n] = s.Name
		inkLengths[n] = int32(s.NumPoints)
		labelLengths[n] = int32(len(s.Label))
		copy(labels[n*maxLabelLen:], s.Label)
		tensors.ConstFlatData(s.Ink, func(flat []float32) {
			// Sample layout is [numPoints, numChannels]; scatter it into the
			// time-major [maxNumPoints, batchSize, numChannels] batch.
			for t := 0; t < s.NumPoints; t++ {
				row := flat[t*numChannels : (t+1)*numChannels]
				copy(ink[(t*batchSize+n)*numChannels:], row)
			}
		})
	}

	return &Batch{
		Ink:          tensors.FromFlatDataAndDimensions(ink, maxNumPoints, batchSize, numChannels),
		Labels:       tensors.FromFlatDataAndDimensions(labels, batchSize, maxLabelLen),
		InkLengths:   tensors.FromFlatDataAndDimensions(inkLengths, batchSize),
		LabelLengths: tensors.FromFlatDataAndDimensions(labelLengths, batchSize),
		Names:        names,
	}, nil
}

// Size returns the number of samples in the batch.
func (b *Batch) Size() int { return len(b.Names) }

func channelsOf(s transform.InkSample) int {
	dims := s.Ink.Shape().Dimensions
	return dims[len(dims)-1]
}

func maxOf[T constraints.Ordered](a, b T) T {
	if a > b {
		return a
	}
	return b
}

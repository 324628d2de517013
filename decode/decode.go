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

// Package decode turns per-frame CTC class scores back into text.
package decode

import (
	"strings"

	"github.com/gomlx/gomlx/types/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"

	"github.com/PellelNitram/carbune2020-implementation/alphabet"
)

// Greedy is best-path CTC decoding: per frame take the highest-scoring class,
// collapse repeats, drop blanks. scores must be shaped
// [maxNumPoints, batchSize, numClasses] (the time-major model output, float32
// or float64; argmax is monotone, so logits, probabilities and
// log-probabilities all work) and lengths gives the true frame count of each
// batch row.
func Greedy(scores *tensors.Tensor, lengths []int32, mapper *alphabet.Mapper) ([]string, error) {
	dims := scores.Shape().Dimensions
	if len(dims) != 3 {
		return nil, errors.Errorf("scores must be rank 3 [maxNumPoints, batchSize, numClasses], got shape %v", dims)
	}
	maxNumPoints, batchSize, numClasses := dims[0], dims[1], dims[2]
	if numClasses != mapper.NumClasses() {
		return nil, errors.Errorf("scores carry %d classes but the alphabet has %d", numClasses, mapper.NumClasses())
	}
	if len(lengths) != batchSize {
		return nil, errors.Errorf("got %d lengths for a batch of %d", len(lengths), batchSize)
	}
	for n, length := range lengths {
		if int(length) > maxNumPoints || length < 0 {
			return nil, errors.Errorf("length %d of batch row %d outside [0, %d]", length, n, maxNumPoints)
		}
	}

	bestPath := make([]int32, maxNumPoints*batchSize)
	argmax := func(frame func(c int) float64) int32 {
		best := 0
		for c := 1; c < numClasses; c++ {
			if frame(c) > frame(best) {
				best = c
			}
		}
		return int32(best)
	}
	switch dtype := scores.Shape().DType; dtype {
	case dtypes.Float32:
		tensors.ConstFlatData(scores, func(flat []float32) {
			for tn := range bestPath {
				bestPath[tn] = argmax(func(c int) float64 { return float64(flat[tn*numClasses+c]) })
			}
		})
	case dtypes.Float64:
		tensors.ConstFlatData(scores, func(flat []float64) {
			for tn := range bestPath {
				bestPath[tn] = argmax(func(c int) float64 { return flat[tn*numClasses+c] })
			}
		})
	default:
		return nil, errors.Errorf("unsupported scores dtype %s", dtype)
	}

	decoded := make([]string, batchSize)
	for n := 0; n < batchSize; n++ {
		var b strings.Builder
		prev := int32(-1)
		for t := 0; t < int(lengths[n]); t++ {
			idx := bestPath[t*batchSize+n]
			if idx != alphabet.Blank && idx != prev {
				r, err := mapper.IndexToCharacter(idx)
				if err != nil {
					return nil, err
				}
				b.WriteRune(r)
			}
			prev = idx
		}
		decoded[n] = b.String()
	}
	return decoded, nil
}

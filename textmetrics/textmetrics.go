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

// Package textmetrics measures recognition quality: character and word error
// rates, the edit distance between decoded text and reference transcriptions
// normalized by the reference length.
package textmetrics

import (
	"strings"

	"github.com/pkg/errors"
)

// CharErrorRate is the total character-level edit distance over all pairs
// divided by the total reference length. 0 is a perfect match; rates above 1
// are possible when predictions are longer than their references.
func CharErrorRate(predictions, references []string) (float64, error) {
	return errorRate(predictions, references, func(s string) []string {
		chars := make([]string, 0, len(s))
		for _, r := range s {
			chars = append(chars, string(r))
		}
		return chars
	})
}

// WordErrorRate is CharErrorRate at word granularity, with words separated by
// whitespace.
func WordErrorRate(predictions, references []string) (float64, error) {
	return errorRate(predictions, references, strings.Fields)
}

func errorRate(predictions, references []string, tokenize func(string) []string) (float64, error) {
	if len(predictions) != len(references) {
		return 0, errors.Errorf("got %d predictions for %d references", len(predictions), len(references))
	}
	if len(references) == 0 {
		return 0, errors.New("cannot compute an error rate over zero pairs")
	}
	totalDistance := 0
	totalLength := 0
	for ii := range references {
		ref := tokenize(references[ii])
		totalDistance += levenshtein(tokenize(predictions[ii]), ref)
		totalLength += len(ref)
	}
	if totalLength == 0 {
		return 0, errors.New("references are empty")
	}
	return float64(totalDistance) / float64(totalLength), nil
}

// levenshtein is the edit distance between token sequences, two-row dynamic
// programming.
func levenshtein(a, b []string) int {
	if len(a) == 0 {
		return len(b)
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = minOf(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func minOf(values ...int) int {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

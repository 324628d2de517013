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

// Package alphabet maps between label characters and the integer class indices
// consumed by a CTC loss and decoder.
//
// Index 0 is reserved for the CTC blank symbol; real characters occupy indices
// 1..N in the sorted order of the alphabet. The alphabet derived for a training
// run must be persisted (see Alphabet.Save) and loaded back at inference time,
// so both sides agree on the exact symbol↔index assignment.
package alphabet

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"

	"github.com/pkg/errors"
)

// Blank is the class index reserved for the CTC blank symbol.
const Blank = 0

// Alphabet is the deduplicated, sorted list of characters a model can predict,
// excluding the blank. Sorting makes the index assignment reproducible across
// runs independently of sample order.
type Alphabet []rune

// FromLabels derives the alphabet from ground-truth label strings: the set of
// distinct characters across all labels, lexicographically sorted.
func FromLabels(labels []string) Alphabet {
	seen := make(map[rune]struct{})
	for _, label := range labels {
		for _, r := range label {
			seen[r] = struct{}{}
		}
	}
	a := make(Alphabet, 0, len(seen))
	for r := range seen {
		a = append(a, r)
	}
	slices.Sort(a)
	return a
}

// Save writes the alphabet as a JSON list of single-character strings, one per
// symbol. Written once at the start of a training run, next to the checkpoints.
func (a Alphabet) Save(filePath string) error {
	symbols := make([]string, len(a))
	for ii, r := range a {
		symbols[ii] = string(r)
	}
	encoded, err := json.Marshal(symbols)
	if err != nil {
		return errors.Wrapf(err, "failed to encode alphabet")
	}
	if err := os.WriteFile(filePath, encoded, 0644); err != nil {
		return errors.Wrapf(err, "failed to write alphabet to %q", filePath)
	}
	return nil
}

// Load reads back an alphabet written by Save.
func Load(filePath string) (Alphabet, error) {
	encoded, err := os.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read alphabet from %q", filePath)
	}
	var symbols []string
	if err := json.Unmarshal(encoded, &symbols); err != nil {
		return nil, errors.Wrapf(err, "failed to decode alphabet from %q", filePath)
	}
	a := make(Alphabet, 0, len(symbols))
	for ii, s := range symbols {
		runes := []rune(s)
		if len(runes) != 1 {
			return nil, errors.Errorf("alphabet in %q: entry #%d (%q) is not a single character", filePath, ii, s)
		}
		a = append(a, runes[0])
	}
	return a, nil
}

// UnknownSymbolError reports a label character that is not part of the
// alphabet. Encoding fails loudly on it: silently mapping an unknown character
// to blank would corrupt supervision.
type UnknownSymbolError struct {
	Symbol rune
}

// Error implements error.
func (e *UnknownSymbolError) Error() string {
	return fmt.Sprintf("symbol %q is not part of the alphabet", e.Symbol)
}

// Mapper is an immutable bijection between alphabet characters and their class
// indices (1-based, 0 being the blank). Built once per run, it is safe for
// concurrent use by any number of transform goroutines.
type Mapper struct {
	toIndex map[rune]int32
	toRune  []rune
}

// NewMapper builds a Mapper from the given alphabet.
func NewMapper(a Alphabet) *Mapper {
	m := &Mapper{
		toIndex: make(map[rune]int32, len(a)),
		toRune:  slices.Clone(a),
	}
	for ii, r := range a {
		m.toIndex[r] = int32(ii) + 1 // Index 0 is the blank.
	}
	return m
}

// NumClasses returns the number of classes the model must output, blank
// included.
func (m *Mapper) NumClasses() int { return len(m.toRune) + 1 }

// CharacterToIndex returns the class index for the given character, or an
// UnknownSymbolError if it's not part of the alphabet.
func (m *Mapper) CharacterToIndex(r rune) (int32, error) {
	idx, found := m.toIndex[r]
	if !found {
		return 0, errors.WithStack(&UnknownSymbolError{Symbol: r})
	}
	return idx, nil
}

// IndexToCharacter returns the character for a class index in 1..N.
func (m *Mapper) IndexToCharacter(idx int32) (rune, error) {
	if idx <= Blank || int(idx) > len(m.toRune) {
		return 0, errors.Errorf("class index %d out of alphabet range 1..%d", idx, len(m.toRune))
	}
	return m.toRune[idx-1], nil
}

// Encode converts a label string to its class index sequence, one index per
// character. It fails with UnknownSymbolError on the first character not in
// the alphabet.
func (m *Mapper) Encode(label string) ([]int32, error) {
	indices := make([]int32, 0, len(label))
	for _, r := range label {
		idx, err := m.CharacterToIndex(r)
		if err != nil {
			return nil, err
		}
		indices = append(indices, idx)
	}
	return indices, nil
}

// Decode converts a class index sequence back to text. Blanks are not valid
// here -- the caller (e.g. a CTC decoder) removes them first.
func (m *Mapper) Decode(indices []int32) (string, error) {
	runes := make([]rune, 0, len(indices))
	for _, idx := range indices {
		r, err := m.IndexToCharacter(idx)
		if err != nil {
			return "", err
		}
		runes = append(runes, r)
	}
	return string(runes), nil
}

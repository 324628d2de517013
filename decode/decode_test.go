package decode

import (
	"testing"

	"github.com/gomlx/gomlx/types/tensors"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PellelNitram/carbune2020-implementation/alphabet"
)

// scoresFromPaths builds a [T, N, numClasses] score tensor whose argmax per
// frame follows the given class index paths (one per batch row, padded with
// blanks to the longest).
func scoresFromPaths(numClasses int, paths ...[]int32) *tensors.Tensor {
	maxT := 0
	for _, p := range paths {
		if len(p) > maxT {
			maxT = len(p)
		}
	}
	n := len(paths)
	flat := make([]float32, maxT*n*numClasses)
	for nn, p := range paths {
		for t := 0; t < maxT; t++ {
			idx := int32(alphabet.Blank)
			if t < len(p) {
				idx = p[t]
			}
			flat[(t*n+nn)*numClasses+int(idx)] = 1
		}
	}
	return tensors.FromFlatDataAndDimensions(flat, maxT, n, numClasses)
}

func testMapper() *alphabet.Mapper {
	// Alphabet {a, b}: indices a=1, b=2, blank=0.
	return alphabet.NewMapper(alphabet.FromLabels([]string{"ab"}))
}

func TestGreedy(t *testing.T) {
	mapper := testMapper()
	// "aab" frames: repeats collapse, blanks separate repeated symbols.
	scores := scoresFromPaths(mapper.NumClasses(),
		[]int32{1, 1, 0, 1, 2, 2}, // a a _ a b b -> "aab"
		[]int32{0, 2, 0, 0, 1, 0}, // _ b _ _ a _ -> "ba"
	)
	decoded := must.M1(Greedy(scores, []int32{6, 6}, mapper))
	assert.Equal(t, []string{"aab", "ba"}, decoded)
}

func TestGreedyRespectsLengths(t *testing.T) {
	mapper := testMapper()
	// The tail beyond the true length is padding and must not decode.
	scores := scoresFromPaths(mapper.NumClasses(), []int32{1, 0, 2, 2, 2, 2})
	decoded := must.M1(Greedy(scores, []int32{2}, mapper))
	assert.Equal(t, []string{"a"}, decoded)
}

func TestGreedyAllBlanks(t *testing.T) {
	mapper := testMapper()
	scores := scoresFromPaths(mapper.NumClasses(), []int32{0, 0, 0})
	decoded := must.M1(Greedy(scores, []int32{3}, mapper))
	assert.Equal(t, []string{""}, decoded)
}

func TestGreedyValidation(t *testing.T) {
	mapper := testMapper()
	scores := scoresFromPaths(mapper.NumClasses(), []int32{1})

	_, err := Greedy(scores, []int32{1, 1}, mapper) // Wrong batch size.
	require.Error(t, err)

	_, err = Greedy(scores, []int32{5}, mapper) // Length beyond frames.
	require.Error(t, err)

	bad := tensors.FromFlatDataAndDimensions(make([]float32, 6), 2, 3) // Rank 2.
	_, err = Greedy(bad, []int32{2}, mapper)
	require.Error(t, err)
}

func TestGreedyFloat64(t *testing.T) {
	mapper := testMapper()
	flat := []float64{
		0.1, 0.8, 0.1, // a
		0.1, 0.8, 0.1, // a (collapsed)
		0.1, 0.1, 0.8, // b
	}
	scores := tensors.FromFlatDataAndDimensions(flat, 3, 1, 3)
	decoded := must.M1(Greedy(scores, []int32{3}, mapper))
	assert.Equal(t, []string{"ab"}, decoded)
}

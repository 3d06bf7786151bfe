package probability

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/clinops/stratrand/internal/modules/allocation"
)

func TestBuild_JoinCorrectness(t *testing.T) {
	// Stratum A: 20 rows (15 treatment1, 5 treatment2); stratum B: 10 rows all treatment3.
	keyA := allocation.KeyOf([]string{"Site A", "Male"})
	keyB := allocation.KeyOf([]string{"Site B", "Female"})

	freq := &allocation.Frequencies{
		Grouped: map[string]map[string]int{
			keyA: {"treatment1": 15, "treatment2": 5},
			keyB: {"treatment3": 10},
		},
		Totals: map[string]int{keyA: 20, keyB: 10},
	}

	index := NewCalculator(zerolog.Nop()).Build(freq)

	require.Len(t, index, 2)
	assert.Equal(t, Distribution{"treatment1": 0.75, "treatment2": 0.25}, index[keyA])
	assert.Equal(t, Distribution{"treatment3": 1.0}, index[keyB])
}

func TestBuild_ProbabilityNormalization(t *testing.T) {
	freq := &allocation.Frequencies{
		Grouped: map[string]map[string]int{
			"a": {"t1": 1, "t2": 1, "t3": 1},
			"b": {"t1": 7, "t2": 3},
			"c": {"t1": 5, "t2": 55, "t3": 25, "t4": 15},
		},
		Totals: map[string]int{"a": 3, "b": 10, "c": 100},
	}

	index := NewCalculator(zerolog.Nop()).Build(freq)

	for key, dist := range index {
		weights := make([]float64, 0, len(dist))
		for _, p := range dist {
			weights = append(weights, p)
		}
		assert.InDelta(t, 1.0, floats.Sum(weights), 0.001, "stratum %s should sum to 1.0", key)
	}
}

func TestBuild_SingleTreatmentCertainty(t *testing.T) {
	freq := &allocation.Frequencies{
		Grouped: map[string]map[string]int{
			"only": {"treatment1": 42},
		},
		Totals: map[string]int{"only": 42},
	}

	index := NewCalculator(zerolog.Nop()).Build(freq)

	dist := index["only"]
	require.Len(t, dist, 1)
	assert.Equal(t, 1.0, dist["treatment1"])
}

func TestBuild_UnobservedTreatmentsAbsent(t *testing.T) {
	freq := &allocation.Frequencies{
		Grouped: map[string]map[string]int{
			"a": {"t1": 2},
			"b": {"t1": 1, "t2": 1},
		},
		Totals: map[string]int{"a": 2, "b": 2},
	}

	index := NewCalculator(zerolog.Nop()).Build(freq)

	// t2 was never observed for stratum a: it must be absent, not zero.
	_, present := index["a"]["t2"]
	assert.False(t, present)
}

func TestBuild_RoundsToThreeDecimals(t *testing.T) {
	freq := &allocation.Frequencies{
		Grouped: map[string]map[string]int{
			"a": {"t1": 1, "t2": 2},
		},
		Totals: map[string]int{"a": 3},
	}

	index := NewCalculator(zerolog.Nop()).Build(freq)

	assert.Equal(t, 0.333, index["a"]["t1"])
	assert.Equal(t, 0.667, index["a"]["t2"])
}

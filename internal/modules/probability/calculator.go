// Package probability builds the per-stratum treatment probability index
// from aggregated allocation counts and reconciles its encoding with the
// pending-subject records.
package probability

import (
	"math"
	"strings"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"

	"github.com/clinops/stratrand/internal/modules/allocation"
)

// sumTolerance is how far a distribution may drift from 1.0 after rounding.
const sumTolerance = 0.001

// Distribution maps treatment -> conditional probability for one stratum.
// Only treatments actually observed for the stratum appear; unobserved
// treatments are absent, not zero.
type Distribution map[string]float64

// Index maps stratum key -> Distribution. Keys present are exactly the
// strata observed in the historical table. Read-only during randomization.
type Index map[string]Distribution

// KeyOf joins ordered criteria codes into a stratum key. Codes are integers
// (or the unknown sentinel) after reconciliation, so "|" never collides.
func KeyOf(codes []string) string {
	return strings.Join(codes, "|")
}

// Calculator computes the probability index from aggregated frequencies.
type Calculator struct {
	log zerolog.Logger
}

// NewCalculator creates a new probability calculator
func NewCalculator(log zerolog.Logger) *Calculator {
	return &Calculator{
		log: log.With().Str("component", "probability").Logger(),
	}
}

// Build computes, for every (stratum, treatment) pair, the conditional
// probability grouped/totals. Totals are pre-aggregated by exact stratum
// key, so the join is a direct map lookup rather than a scan over row pairs.
// Probabilities are rounded to 3 decimal digits.
func (c *Calculator) Build(freq *allocation.Frequencies) Index {
	index := make(Index, len(freq.Grouped))

	for key, byTreatment := range freq.Grouped {
		total := freq.Totals[key]
		if total == 0 {
			// Cannot happen when freq came from Aggregate, but a zero total
			// must never turn into a division.
			continue
		}

		dist := make(Distribution, len(byTreatment))
		for treatment, count := range byTreatment {
			dist[treatment] = round3(float64(count) / float64(total))
		}
		index[key] = dist

		if dev := deviation(dist); dev > sumTolerance {
			c.log.Warn().
				Str("stratum", key).
				Float64("deviation", dev).
				Msg("Distribution drifts from 1.0 after rounding")
		}
	}

	c.log.Info().Int("strata", len(index)).Msg("Built probability index")
	return index
}

// deviation returns how far the distribution's probabilities are from
// summing to exactly 1.0.
func deviation(dist Distribution) float64 {
	weights := make([]float64, 0, len(dist))
	for _, p := range dist {
		weights = append(weights, p)
	}
	return math.Abs(floats.Sum(weights) - 1.0)
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

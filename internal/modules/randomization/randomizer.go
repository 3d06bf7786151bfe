// Package randomization draws a treatment for each pending subject from its
// stratum's historical probability distribution.
package randomization

import (
	"math/rand/v2"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat/sampleuv"

	"github.com/clinops/stratrand/internal/modules/probability"
)

// Randomizer assigns treatments via weighted random sampling. Draws are
// independent across subjects; the random source is the only shared state.
// Cryptographic randomness is not required for treatment allocation.
type Randomizer struct {
	src rand.Source
	log zerolog.Logger
}

// NewRandomizer creates a randomizer using the given random source.
func NewRandomizer(src rand.Source, log zerolog.Logger) *Randomizer {
	return &Randomizer{
		src: src,
		log: log.With().Str("component", "randomizer").Logger(),
	}
}

// NewSeeded creates a randomizer with a deterministic source when seed is
// non-zero, and an entropy-seeded one otherwise. Fixed seeds make repeated
// runs over identical inputs reproducible.
func NewSeeded(seed int64, log zerolog.Logger) *Randomizer {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return NewRandomizer(rand.NewPCG(uint64(seed), uint64(seed)), log)
}

// Assign draws one treatment for every subject whose stratum key is present
// in the index, writing it into the subject's randomized field in place.
// Subjects missing a stratification field are skipped; subjects whose
// stratum has no historical precedent are left unassigned - the system never
// invents a distribution for an unseen stratum.
func (r *Randomizer) Assign(subjects []*Subject, criteria []string, randomizedField string, index probability.Index) *Report {
	report := &Report{
		Subjects:   len(subjects),
		Unassigned: []string{},
		Skipped:    []string{},
	}

	codes := make([]string, len(criteria))
	for _, subject := range subjects {
		complete := true
		for i, criterion := range criteria {
			code, ok := subject.Key[criterion]
			if !ok {
				complete = false
				break
			}
			codes[i] = code
		}
		if !complete {
			r.log.Warn().Str("subject", subject.ID).Msg("Subject missing stratification fields, skipping")
			report.Skipped = append(report.Skipped, subject.ID)
			continue
		}

		key := probability.KeyOf(codes)
		dist, ok := index[key]
		if !ok {
			r.log.Info().
				Str("subject", subject.ID).
				Str("stratum", key).
				Msg("No historical precedent for stratum, leaving unassigned")
			report.Unassigned = append(report.Unassigned, subject.ID)
			continue
		}

		treatment := r.draw(dist)
		subject.Raw[randomizedField] = treatment
		report.Assigned++

		r.log.Debug().
			Str("subject", subject.ID).
			Str("stratum", key).
			Str("treatment", treatment).
			Msg("Assigned treatment")
	}

	return report
}

// draw samples one treatment with probability proportional to its weight.
// Treatments are sorted before weighting so a fixed source yields identical
// assignments across runs regardless of map iteration order.
func (r *Randomizer) draw(dist probability.Distribution) string {
	treatments := make([]string, 0, len(dist))
	for treatment := range dist {
		treatments = append(treatments, treatment)
	}
	sort.Strings(treatments)

	if len(treatments) == 1 {
		// Single observed treatment means certain assignment, not a coin flip.
		return treatments[0]
	}

	weights := make([]float64, len(treatments))
	for i, treatment := range treatments {
		weights[i] = dist[treatment]
	}

	// sampleuv.Weighted mutates its weights on Take, so each draw gets a
	// fresh sampler; draws stay independent across subjects.
	w := sampleuv.NewWeighted(weights, r.src)
	idx, ok := w.Take()
	if !ok {
		// All weights zero; fall back to the first option deterministically.
		return treatments[0]
	}
	return treatments[idx]
}

package randomization

import (
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinops/stratrand/internal/modules/probability"
)

func subject(id string, key map[string]string) *Subject {
	return &Subject{ID: id, Raw: map[string]string{"record_id": id}, Key: key}
}

func TestAssign_MatchedSubjectGetsTreatment(t *testing.T) {
	index := probability.Index{
		probability.KeyOf([]string{"1", "2"}): {"1": 0.5, "2": 0.5},
	}

	s := subject("1001", map[string]string{"site": "1", "sex": "2"})
	r := NewSeeded(7, zerolog.Nop())
	report := r.Assign([]*Subject{s}, []string{"site", "sex"}, "rand_arm", index)

	assert.Equal(t, 1, report.Assigned)
	assert.Empty(t, report.Unassigned)
	assert.Empty(t, report.Skipped)

	treatment := s.Raw["rand_arm"]
	assert.Contains(t, []string{"1", "2"}, treatment, "treatment is written into the record in place")
}

func TestAssign_UnknownStratumLeftUnassigned(t *testing.T) {
	index := probability.Index{
		probability.KeyOf([]string{"1"}): {"1": 1.0},
	}

	s := subject("1001", map[string]string{"site": "9"})
	r := NewSeeded(7, zerolog.Nop())
	report := r.Assign([]*Subject{s}, []string{"site"}, "rand_arm", index)

	assert.Equal(t, 0, report.Assigned)
	assert.Equal(t, []string{"1001"}, report.Unassigned)

	_, set := s.Raw["rand_arm"]
	assert.False(t, set, "no distribution is invented for an unseen stratum")
}

func TestAssign_MissingFieldSkipped(t *testing.T) {
	index := probability.Index{
		probability.KeyOf([]string{"1", "1"}): {"1": 1.0},
	}

	// Key lacks "sex" entirely: the record has no such field, not even blank.
	s := subject("1001", map[string]string{"site": "1"})
	r := NewSeeded(7, zerolog.Nop())
	report := r.Assign([]*Subject{s}, []string{"site", "sex"}, "rand_arm", index)

	assert.Equal(t, 0, report.Assigned)
	assert.Equal(t, []string{"1001"}, report.Skipped)
	assert.Empty(t, report.Unassigned)
}

func TestAssign_SingleTreatmentIsCertain(t *testing.T) {
	index := probability.Index{
		probability.KeyOf([]string{"1"}): {"3": 1.0},
	}

	subjects := make([]*Subject, 20)
	for i := range subjects {
		subjects[i] = subject(fmt.Sprintf("s%d", i), map[string]string{"site": "1"})
	}

	r := NewSeeded(7, zerolog.Nop())
	report := r.Assign(subjects, []string{"site"}, "rand_arm", index)

	assert.Equal(t, 20, report.Assigned)
	for _, s := range subjects {
		assert.Equal(t, "3", s.Raw["rand_arm"])
	}
}

func TestAssign_DeterministicUnderFixedSeed(t *testing.T) {
	index := probability.Index{
		probability.KeyOf([]string{"1"}): {"1": 0.4, "2": 0.35, "3": 0.25},
	}

	run := func() []string {
		subjects := make([]*Subject, 100)
		for i := range subjects {
			subjects[i] = subject(fmt.Sprintf("s%d", i), map[string]string{"site": "1"})
		}
		r := NewSeeded(42, zerolog.Nop())
		r.Assign(subjects, []string{"site"}, "rand_arm", index)

		result := make([]string, len(subjects))
		for i, s := range subjects {
			result[i] = s.Raw["rand_arm"]
		}
		return result
	}

	assert.Equal(t, run(), run(), "identical seed and inputs produce identical assignments")
}

func TestAssign_FrequenciesConvergeToDistribution(t *testing.T) {
	index := probability.Index{
		probability.KeyOf([]string{"1"}): {"1": 0.75, "2": 0.25},
	}

	const draws = 1000
	subjects := make([]*Subject, draws)
	for i := range subjects {
		subjects[i] = subject(fmt.Sprintf("s%d", i), map[string]string{"site": "1"})
	}

	r := NewSeeded(99, zerolog.Nop())
	report := r.Assign(subjects, []string{"site"}, "rand_arm", index)
	require.Equal(t, draws, report.Assigned)

	counts := map[string]int{}
	for _, s := range subjects {
		counts[s.Raw["rand_arm"]]++
	}

	// 1000 draws from {0.75, 0.25}: expect ~750/250 within ~4 standard
	// deviations (sigma ~ 13.7).
	assert.InDelta(t, 750, counts["1"], 55)
	assert.InDelta(t, 250, counts["2"], 55)
	assert.Equal(t, draws, counts["1"]+counts["2"])
}

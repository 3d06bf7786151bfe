package probability

import (
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/clinops/stratrand/internal/modules/allocation"
	"github.com/clinops/stratrand/internal/modules/codebook"
)

// UnknownCode is the sentinel for a missing or unmapped criterion value.
// It is distinct from every valid raw code, so subjects with incomplete
// criteria form their own stratum instead of matching a populated one.
const UnknownCode = "-1"

// Canonicalize normalizes a raw value to its integer-or-sentinel form so
// that historical and pending stratum keys compare by plain equality.
// Empty and non-numeric values become the unknown sentinel; the second
// return reports whether the value was a valid code.
func Canonicalize(value string) (string, bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return UnknownCode, true
	}
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return UnknownCode, false
	}
	return strconv.Itoa(n), true
}

// Reconciler rewrites the index's labels into the raw codes used by the
// pending-subject records.
type Reconciler struct {
	log zerolog.Logger
}

// NewReconciler creates a new encoding reconciler
func NewReconciler(log zerolog.Logger) *Reconciler {
	return &Reconciler{
		log: log.With().Str("component", "reconciler").Logger(),
	}
}

// Reconcile converts a label-encoded index (as built from the historical
// table) into a code-encoded one. Every criterion value and every treatment
// key is rewritten from label to raw code via the codebook translation;
// a label with no mapping becomes the unknown sentinel rather than an error,
// so out-of-band labels degrade gracefully instead of aborting the run.
func (r *Reconciler) Reconcile(index Index, criteria []string, treatmentField string, trans codebook.Translation) Index {
	reconciled := make(Index, len(index))

	for labelKey, dist := range index {
		labels := allocation.LabelsOf(labelKey)
		codes := make([]string, len(labels))
		for i, label := range labels {
			codes[i] = r.codeFor(criteria[i], label, trans)
		}
		key := KeyOf(codes)

		target, exists := reconciled[key]
		if !exists {
			target = make(Distribution, len(dist))
			reconciled[key] = target
		} else {
			// Two label strata can collapse onto one code stratum when both
			// contain unmapped labels. Later entries win, as in the source data order.
			r.log.Warn().Str("stratum", key).Msg("Stratum key collision during reconciliation")
		}

		for treatmentLabel, p := range dist {
			target[r.codeFor(treatmentField, treatmentLabel, trans)] = p
		}
	}

	return reconciled
}

// codeFor resolves one label to its canonical code, falling back to the
// unknown sentinel with a data-quality warning.
func (r *Reconciler) codeFor(field, label string, trans codebook.Translation) string {
	if label == "" {
		return UnknownCode
	}

	code, ok := trans.CodeFor(field, label)
	if !ok {
		r.log.Warn().
			Str("field", field).
			Str("label", label).
			Msg("No code mapping for label, using unknown sentinel")
		return UnknownCode
	}

	canonical, numeric := Canonicalize(code)
	if !numeric {
		r.log.Warn().
			Str("field", field).
			Str("code", code).
			Msg("Non-numeric raw code, using unknown sentinel")
	}
	return canonical
}

// Package codebook converts field metadata from the data-capture system into
// label/code translations for the fields used in randomization.
package codebook

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// ErrMalformedChoices is returned when a field of interest has a choices
// specification that cannot be parsed. This is a fatal configuration error:
// randomizing with a wrong or partial mapping would silently corrupt the
// probability computation downstream.
type ErrMalformedChoices struct {
	Field  string
	Reason string
}

func (e ErrMalformedChoices) Error() string {
	return fmt.Sprintf("malformed choices for field %q: %s", e.Field, e.Reason)
}

// Translation maps field name -> label -> raw code.
type Translation map[string]map[string]string

// CodeFor returns the raw code for a label within a field.
func (t Translation) CodeFor(field, label string) (string, bool) {
	choices, ok := t[field]
	if !ok {
		return "", false
	}
	code, ok := choices[label]
	return code, ok
}

// LabelFor returns the label for a raw code within a field (the reverse
// lookup of CodeFor).
func (t Translation) LabelFor(field, code string) (string, bool) {
	choices, ok := t[field]
	if !ok {
		return "", false
	}
	for label, c := range choices {
		if c == code {
			return label, true
		}
	}
	return "", false
}

// Translator builds label/code translations from field metadata.
type Translator struct {
	log zerolog.Logger
}

// NewTranslator creates a new codebook translator
func NewTranslator(log zerolog.Logger) *Translator {
	return &Translator{
		log: log.With().Str("component", "codebook").Logger(),
	}
}

// Translate builds the Translation for every field in the interest set.
// Fields outside the set are ignored even if well-formed; fields of an
// unsupported type are skipped with a diagnostic, not treated as an error.
func (t *Translator) Translate(fields []Field, interest map[string]bool) (Translation, error) {
	translation := make(Translation)

	for _, field := range fields {
		choices := field.Choices

		switch field.Type {
		case TypeYesNo:
			choices = yesNoChoices
		case TypeTrueFalse:
			choices = trueFalseChoices
		case TypeDropdown, TypeRadio, TypeCheckbox:
			// choices come from the metadata as-is
		default:
			t.log.Warn().
				Str("field", field.Name).
				Str("type", field.Type).
				Msg("Unsupported field type, skipping")
			continue
		}

		if !interest[field.Name] || choices == "" {
			continue
		}

		parsed, err := parseChoices(choices)
		if err != nil {
			return nil, ErrMalformedChoices{Field: field.Name, Reason: err.Error()}
		}

		translation[field.Name] = parsed
		t.log.Debug().
			Str("field", field.Name).
			Str("type", field.Type).
			Int("choices", len(parsed)).
			Msg("Translated field")
	}

	return translation, nil
}

// parseChoices parses a pipe-delimited choices specification into a
// label -> code map. Each pair is "code, label"; the first comma-delimited
// token is the code and the remainder (trimmed) is the label.
func parseChoices(raw string) (map[string]string, error) {
	pairs := strings.Split(raw, "|")
	result := make(map[string]string, len(pairs))

	for _, pair := range pairs {
		if strings.TrimSpace(pair) == "" {
			return nil, fmt.Errorf("empty choice pair in %q", raw)
		}

		parts := strings.SplitN(pair, ",", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("choice pair %q has no code/label delimiter", strings.TrimSpace(pair))
		}

		code := strings.TrimSpace(parts[0])
		label := strings.TrimSpace(parts[1])
		if code == "" || label == "" {
			return nil, fmt.Errorf("choice pair %q has an empty code or label", strings.TrimSpace(pair))
		}

		result[label] = code
	}

	return result, nil
}

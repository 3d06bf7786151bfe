package codebook

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChoices(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected map[string]string
		wantErr  bool
	}{
		{
			name: "simple pairs",
			raw:  "1, Site A | 2, Site B | 3, Site C",
			expected: map[string]string{
				"Site A": "1",
				"Site B": "2",
				"Site C": "3",
			},
		},
		{
			name: "label containing a comma",
			raw:  "1, Small, rural | 2, Large, urban",
			expected: map[string]string{
				"Small, rural": "1",
				"Large, urban": "2",
			},
		},
		{
			name:     "single pair",
			raw:      "0, Control",
			expected: map[string]string{"Control": "0"},
		},
		{
			name:    "missing delimiter",
			raw:     "1 Site A | 2 Site B",
			wantErr: true,
		},
		{
			name:    "empty pair",
			raw:     "1, Site A | | 2, Site B",
			wantErr: true,
		},
		{
			name:    "empty label",
			raw:     "1, ",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := parseChoices(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestTranslate_SupportedTypes(t *testing.T) {
	fields := []Field{
		{Name: "site", Type: TypeDropdown, Choices: "1, Site A | 2, Site B"},
		{Name: "sex", Type: TypeRadio, Choices: "1, Male | 2, Female"},
		{Name: "consented", Type: TypeYesNo},
		{Name: "remote", Type: TypeTrueFalse},
		{Name: "tags", Type: TypeCheckbox, Choices: "1, Urban | 2, Rural"},
	}
	interest := map[string]bool{
		"site": true, "sex": true, "consented": true, "remote": true, "tags": true,
	}

	translator := NewTranslator(zerolog.Nop())
	translation, err := translator.Translate(fields, interest)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"Site A": "1", "Site B": "2"}, translation["site"])
	assert.Equal(t, map[string]string{"Male": "1", "Female": "2"}, translation["sex"])
	assert.Equal(t, map[string]string{"Yes": "1", "No": "0"}, translation["consented"])
	assert.Equal(t, map[string]string{"True": "1", "False": "0"}, translation["remote"])
	assert.Equal(t, map[string]string{"Urban": "1", "Rural": "2"}, translation["tags"])
}

func TestTranslate_UnsupportedTypeSkipped(t *testing.T) {
	fields := []Field{
		{Name: "notes", Type: "text"},
		{Name: "site", Type: TypeDropdown, Choices: "1, Site A"},
	}
	interest := map[string]bool{"notes": true, "site": true}

	translator := NewTranslator(zerolog.Nop())
	translation, err := translator.Translate(fields, interest)
	require.NoError(t, err)

	assert.NotContains(t, translation, "notes")
	assert.Contains(t, translation, "site")
}

func TestTranslate_FieldOutsideInterestIgnored(t *testing.T) {
	fields := []Field{
		{Name: "site", Type: TypeDropdown, Choices: "1, Site A"},
		{Name: "other", Type: TypeDropdown, Choices: "1, Something"},
	}
	interest := map[string]bool{"site": true}

	translator := NewTranslator(zerolog.Nop())
	translation, err := translator.Translate(fields, interest)
	require.NoError(t, err)

	assert.Contains(t, translation, "site")
	assert.NotContains(t, translation, "other")
}

func TestTranslate_MalformedChoicesFatal(t *testing.T) {
	fields := []Field{
		{Name: "site", Type: TypeDropdown, Choices: "garbage without delimiter"},
	}
	interest := map[string]bool{"site": true}

	translator := NewTranslator(zerolog.Nop())
	_, err := translator.Translate(fields, interest)

	require.Error(t, err)
	var malformed ErrMalformedChoices
	assert.ErrorAs(t, err, &malformed)
	assert.Equal(t, "site", malformed.Field)
}

func TestTranslate_MalformedOutsideInterestIsNotFatal(t *testing.T) {
	fields := []Field{
		{Name: "other", Type: TypeDropdown, Choices: "garbage without delimiter"},
		{Name: "site", Type: TypeDropdown, Choices: "1, Site A"},
	}
	interest := map[string]bool{"site": true}

	translator := NewTranslator(zerolog.Nop())
	translation, err := translator.Translate(fields, interest)

	require.NoError(t, err)
	assert.Contains(t, translation, "site")
}

func TestTranslation_LabelRoundTrip(t *testing.T) {
	fields := []Field{
		{Name: "treatment", Type: TypeDropdown, Choices: "1, Drug A | 2, Drug B | 3, Placebo"},
	}
	interest := map[string]bool{"treatment": true}

	translator := NewTranslator(zerolog.Nop())
	translation, err := translator.Translate(fields, interest)
	require.NoError(t, err)

	// Encoding a label to its code and decoding it back recovers the label
	// for every entry in a well-formed specification.
	for label := range translation["treatment"] {
		code, ok := translation.CodeFor("treatment", label)
		require.True(t, ok)

		recovered, ok := translation.LabelFor("treatment", code)
		require.True(t, ok)
		assert.Equal(t, label, recovered)
	}
}

func TestTranslation_UnknownFieldLookups(t *testing.T) {
	translation := Translation{}

	_, ok := translation.CodeFor("missing", "label")
	assert.False(t, ok)

	_, ok = translation.LabelFor("missing", "1")
	assert.False(t, ok)
}

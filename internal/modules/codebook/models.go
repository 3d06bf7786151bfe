package codebook

// Field is one field descriptor from the data-capture system's metadata
// (codebook) export.
type Field struct {
	Name    string `json:"field_name"`
	Type    string `json:"field_type"`
	Choices string `json:"select_choices_or_calculations"`
}

// Supported field types. Yes/No and True/False fields carry no choices
// specification of their own, so their label/code pairs are synthesized.
const (
	TypeDropdown  = "dropdown"
	TypeRadio     = "radio"
	TypeCheckbox  = "checkbox"
	TypeYesNo     = "yesno"
	TypeTrueFalse = "truefalse"
)

// Choice specifications synthesized for the binary field types.
const (
	yesNoChoices     = "1, Yes | 0, No"
	trueFalseChoices = "1, True | 0, False"
)

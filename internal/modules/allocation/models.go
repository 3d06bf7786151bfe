package allocation

import "strings"

// keySep separates the label values inside a composite stratum key. A unit
// separator cannot appear in codebook labels, so joined keys never collide.
const keySep = "\x1f"

// Table is the historical allocation table: one row per already-allocated
// subject, one column per stratification criterion plus the treatment column.
// Values are stored as labels (human-readable strings). Immutable once loaded.
type Table struct {
	Columns []string
	Rows    []map[string]string
}

// Criteria returns the table's column names minus the treatment column,
// preserving column order.
func (t *Table) Criteria(treatmentField string) []string {
	criteria := make([]string, 0, len(t.Columns))
	for _, col := range t.Columns {
		if col != treatmentField {
			criteria = append(criteria, col)
		}
	}
	return criteria
}

// Frequencies holds the aggregated counts from the historical table.
// Grouped maps stratum key -> treatment label -> row count; Totals maps
// stratum key -> row count regardless of treatment. Keeping both keyed by
// the exact stratum key makes the probability join a direct map lookup.
type Frequencies struct {
	Grouped map[string]map[string]int
	Totals  map[string]int
}

// KeyOf joins ordered label values into a composite stratum key.
func KeyOf(labels []string) string {
	return strings.Join(labels, keySep)
}

// LabelsOf splits a composite stratum key back into its ordered label values.
func LabelsOf(key string) []string {
	return strings.Split(key, keySep)
}

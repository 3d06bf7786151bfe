package allocation

// Aggregate collapses the table into per-stratum counts in a single pass.
// Rows with missing values in any grouping column are counted under their
// own category (missing is never coalesced with a real value).
func Aggregate(table *Table, criteria []string, treatmentField string) *Frequencies {
	freq := &Frequencies{
		Grouped: make(map[string]map[string]int),
		Totals:  make(map[string]int),
	}

	labels := make([]string, len(criteria))
	for _, row := range table.Rows {
		for i, col := range criteria {
			labels[i] = row[col]
		}
		key := KeyOf(labels)
		treatment := row[treatmentField]

		byTreatment, ok := freq.Grouped[key]
		if !ok {
			byTreatment = make(map[string]int)
			freq.Grouped[key] = byTreatment
		}
		byTreatment[treatment]++
		freq.Totals[key]++
	}

	return freq
}

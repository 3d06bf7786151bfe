// Package allocation loads the historical allocation table and aggregates
// treatment frequencies per stratum.
package allocation

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Loader reads allocation tables from local storage.
type Loader struct {
	log zerolog.Logger
}

// NewLoader creates a new allocation table loader
func NewLoader(log zerolog.Logger) *Loader {
	return &Loader{
		log: log.With().Str("component", "allocation").Logger(),
	}
}

// LoadCSV reads an allocation table from a CSV file. The first row is the
// header; empty cells are kept as empty strings so that missing values form
// their own category during aggregation.
func (l *Loader) LoadCSV(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open allocation table %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	// Exported tables sometimes carry short rows; trailing columns backfill
	// as missing values rather than failing the load.
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse allocation table %s: %w", path, err)
	}

	if len(records) < 2 {
		return nil, fmt.Errorf("allocation table %s has no data rows", path)
	}

	columns := make([]string, len(records[0]))
	for i, col := range records[0] {
		columns[i] = strings.TrimSpace(col)
	}

	rows := make([]map[string]string, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make(map[string]string, len(columns))
		for i, col := range columns {
			if i < len(record) {
				row[col] = strings.TrimSpace(record[i])
			} else {
				row[col] = ""
			}
		}
		rows = append(rows, row)
	}

	l.log.Info().
		Str("path", path).
		Int("rows", len(rows)).
		Int("columns", len(columns)).
		Msg("Loaded allocation table")

	return &Table{Columns: columns, Rows: rows}, nil
}

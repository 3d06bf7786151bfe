// Package services contains the business logic orchestrating randomization runs.
package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinops/stratrand/internal/clients/redcap"
	"github.com/clinops/stratrand/internal/config"
	"github.com/clinops/stratrand/internal/modules/allocation"
	"github.com/clinops/stratrand/internal/modules/codebook"
	"github.com/clinops/stratrand/internal/modules/probability"
	"github.com/clinops/stratrand/internal/modules/randomization"
	"github.com/clinops/stratrand/internal/modules/runs"
)

// CaptureAPI is the data-capture system surface the service needs.
type CaptureAPI interface {
	ExportReport(ctx context.Context, reportID string) (*redcap.Report, error)
	ExportMetadata(ctx context.Context) ([]codebook.Field, error)
	ImportRecords(ctx context.Context, records []map[string]interface{}) (int, error)
}

// TableLoader loads the historical allocation table from local storage.
type TableLoader interface {
	LoadCSV(path string) (*allocation.Table, error)
}

// ErrCriteriaMismatch is returned when the stratification criteria in the
// pending-subject report and the allocation table disagree. Randomizing
// against mismatched strata would produce silently wrong assignments, so
// the run aborts before any subject is touched.
type ErrCriteriaMismatch struct {
	ReportCriteria []string
	TableCriteria  []string
}

func (e ErrCriteriaMismatch) Error() string {
	return fmt.Sprintf("criteria field mismatch: report has [%s], table has [%s]",
		strings.Join(e.ReportCriteria, ", "), strings.Join(e.TableCriteria, ", "))
}

// RandomizationService runs the full pipeline: export pending subjects and
// metadata, aggregate the historical table, build and reconcile the
// probability index, assign treatments, import the results, and record the
// run for audit.
type RandomizationService struct {
	api        CaptureAPI
	loader     TableLoader
	translator *codebook.Translator
	calculator *probability.Calculator
	reconciler *probability.Reconciler
	randomizer *randomization.Randomizer
	runsRepo   *runs.Repository
	cfg        *config.Config
	log        zerolog.Logger
}

// NewRandomizationService creates a new randomization service
func NewRandomizationService(
	api CaptureAPI,
	loader TableLoader,
	randomizer *randomization.Randomizer,
	runsRepo *runs.Repository,
	cfg *config.Config,
	log zerolog.Logger,
) *RandomizationService {
	return &RandomizationService{
		api:        api,
		loader:     loader,
		translator: codebook.NewTranslator(log),
		calculator: probability.NewCalculator(log),
		reconciler: probability.NewReconciler(log),
		randomizer: randomizer,
		runsRepo:   runsRepo,
		cfg:        cfg,
		log:        log.With().Str("service", "randomization").Logger(),
	}
}

// Run executes one randomization run and records its outcome. Fatal errors
// abort before any records are imported; the failed run is still recorded.
func (s *RandomizationService) Run(ctx context.Context) (*runs.Run, error) {
	run := &runs.Run{
		ID:         uuid.NewString(),
		StartedAt:  time.Now().UTC(),
		Unassigned: []string{},
		Skipped:    []string{},
	}

	report, snapshot, err := s.execute(ctx)
	run.FinishedAt = time.Now().UTC()

	if errors.Is(err, redcap.ErrNoEligibleRecords) {
		// Normal between enrollments; recording it as failed would fill the
		// audit trail with spurious failures on every scheduled tick.
		run.Status = runs.StatusEmpty
	} else if err != nil {
		run.Status = runs.StatusFailed
		run.Error = err.Error()
	} else {
		run.Status = runs.StatusCompleted
		run.Subjects = report.Subjects
		run.Assigned = report.Assigned
		run.Unassigned = report.Unassigned
		run.Skipped = report.Skipped
		run.IndexSnapshot = snapshot
	}

	if s.runsRepo != nil {
		if recordErr := s.runsRepo.Create(run); recordErr != nil {
			s.log.Error().Err(recordErr).Str("run_id", run.ID).Msg("Failed to record run")
		}
	}

	if err != nil {
		return run, err
	}

	s.log.Info().
		Str("run_id", run.ID).
		Int("subjects", run.Subjects).
		Int("assigned", run.Assigned).
		Int("unassigned", len(run.Unassigned)).
		Int("skipped", len(run.Skipped)).
		Msg("Randomization run completed")

	return run, nil
}

// execute performs the pipeline and returns the assignment report plus the
// encoded probability index snapshot.
func (s *RandomizationService) execute(ctx context.Context) (*randomization.Report, []byte, error) {
	report, err := s.api.ExportReport(ctx, s.cfg.ReportID)
	if err != nil {
		return nil, nil, err
	}

	metadata, err := s.api.ExportMetadata(ctx)
	if err != nil {
		return nil, nil, err
	}

	criteria, err := s.deriveCriteria(report.Fields)
	if err != nil {
		return nil, nil, err
	}
	s.log.Info().Strs("criteria", criteria).Msg("Stratification criteria selected")

	// Translation covers every stratification criterion plus the randomized
	// field, whose codebook maps treatment labels to raw codes.
	interest := make(map[string]bool, len(criteria)+1)
	for _, c := range criteria {
		interest[c] = true
	}
	interest[s.cfg.RandomizedField] = true

	translation, err := s.translator.Translate(metadata, interest)
	if err != nil {
		return nil, nil, err
	}

	table, err := s.loader.LoadCSV(s.cfg.AllocationTable)
	if err != nil {
		return nil, nil, err
	}

	if err := matchCriteria(criteria, table.Criteria(s.cfg.TreatmentField)); err != nil {
		return nil, nil, err
	}

	// Aggregate in report-criteria order so historical and pending stratum
	// keys are built from the same column sequence.
	freq := allocation.Aggregate(table, criteria, s.cfg.TreatmentField)
	index := s.calculator.Build(freq)
	reconciled := s.reconciler.Reconcile(index, criteria, s.cfg.RandomizedField, translation)

	subjects := s.buildSubjects(report, criteria)
	result := s.randomizer.Assign(subjects, criteria, s.cfg.RandomizedField, reconciled)

	if _, err := s.api.ImportRecords(ctx, s.importPayload(subjects)); err != nil {
		return nil, nil, err
	}

	snapshot, err := runs.EncodeIndexSnapshot(reconciled)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to encode index snapshot")
		snapshot = nil
	}

	return result, snapshot, nil
}

// deriveCriteria returns the stratification criteria: either the configured
// override, or the report's field order minus the identifier (first field)
// and the randomized field.
func (s *RandomizationService) deriveCriteria(fields []string) ([]string, error) {
	if len(s.cfg.CriteriaFields) > 0 {
		return s.cfg.CriteriaFields, nil
	}

	if len(fields) < 2 {
		return nil, fmt.Errorf("report has no criteria fields beyond the identifier")
	}

	criteria := make([]string, 0, len(fields)-1)
	for _, field := range fields[1:] {
		if field != s.cfg.RandomizedField {
			criteria = append(criteria, field)
		}
	}
	if len(criteria) == 0 {
		return nil, fmt.Errorf("report has no stratification criteria")
	}
	return criteria, nil
}

// matchCriteria verifies the report and the allocation table stratify over
// the same fields, order aside.
func matchCriteria(reportCriteria, tableCriteria []string) error {
	a := append([]string(nil), reportCriteria...)
	b := append([]string(nil), tableCriteria...)
	sort.Strings(a)
	sort.Strings(b)

	if len(a) != len(b) {
		return ErrCriteriaMismatch{ReportCriteria: a, TableCriteria: b}
	}
	for i := range a {
		if a[i] != b[i] {
			return ErrCriteriaMismatch{ReportCriteria: a, TableCriteria: b}
		}
	}
	return nil
}

// buildSubjects converts exported records into subjects with canonicalized
// stratum codes. A criterion missing from the record entirely stays absent
// from the key (the subject will be skipped); blank and non-numeric values
// normalize to the unknown sentinel and form their own stratum.
func (s *RandomizationService) buildSubjects(report *redcap.Report, criteria []string) []*randomization.Subject {
	idField := report.Fields[0]

	subjects := make([]*randomization.Subject, 0, len(report.Records))
	for _, record := range report.Records {
		raw := make(map[string]string, len(record))
		for k, v := range record {
			raw[k] = v
		}

		key := make(map[string]string, len(criteria))
		for _, criterion := range criteria {
			value, ok := record[criterion]
			if !ok {
				continue
			}
			code, numeric := probability.Canonicalize(value)
			if !numeric {
				s.log.Warn().
					Str("subject", record[idField]).
					Str("field", criterion).
					Str("value", value).
					Msg("Non-numeric criterion value, using unknown sentinel")
			}
			key[criterion] = code
		}

		subjects = append(subjects, &randomization.Subject{
			ID:  record[idField],
			Raw: raw,
			Key: key,
		})
	}

	return subjects
}

// importPayload builds the records to push back. Every record is imported,
// assigned or not; blank and unknown-sentinel values go back as null. The
// sentinel is an internal marker, never a valid choice code, so storing it
// in the capture system would corrupt the record.
func (s *RandomizationService) importPayload(subjects []*randomization.Subject) []map[string]interface{} {
	records := make([]map[string]interface{}, 0, len(subjects))
	for _, subject := range subjects {
		record := make(map[string]interface{}, len(subject.Raw))
		for field, value := range subject.Raw {
			if value == "" || value == probability.UnknownCode {
				record[field] = nil
			} else {
				record[field] = value
			}
		}
		records = append(records, record)

		s.log.Debug().Str("subject", subject.ID).Interface("record", record).Msg("Record queued for import")
	}
	return records
}

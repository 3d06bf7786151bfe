package scheduler

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/clinops/stratrand/internal/clients/redcap"
	"github.com/clinops/stratrand/internal/services"
)

// RandomizeJob runs the randomization pipeline on a schedule.
type RandomizeJob struct {
	service *services.RandomizationService
	log     zerolog.Logger
}

// NewRandomizeJob creates a new scheduled randomization job.
func NewRandomizeJob(service *services.RandomizationService, log zerolog.Logger) *RandomizeJob {
	return &RandomizeJob{
		service: service,
		log:     log.With().Str("job", "randomize").Logger(),
	}
}

// Run executes one randomization run. An empty report is normal between
// enrollments and is not treated as a failure.
func (j *RandomizeJob) Run() error {
	_, err := j.service.Run(context.Background())
	if errors.Is(err, redcap.ErrNoEligibleRecords) {
		j.log.Info().Msg("No eligible records, nothing to randomize")
		return nil
	}
	return err
}

// Name returns the job name for scheduling and logging.
func (j *RandomizeJob) Name() string {
	return "randomize"
}

package runs

import (
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/clinops/stratrand/internal/modules/probability"
)

// Run statuses. Empty marks a run that found no eligible records, which is
// normal between enrollments and distinct from a failure.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusEmpty     = "empty"
)

// Run is one randomization run's audit record.
type Run struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Status     string    `json:"status"`
	Subjects   int       `json:"subjects"`
	Assigned   int       `json:"assigned"`
	Unassigned []string  `json:"unassigned"`
	Skipped    []string  `json:"skipped"`
	Error      string    `json:"error,omitempty"`

	// IndexSnapshot is the reconciled probability index the run assigned
	// from, msgpack-encoded. Kept so past assignments can be audited against
	// the exact distributions in force at the time.
	IndexSnapshot []byte `json:"-"`
}

// EncodeIndexSnapshot serializes a probability index for storage.
func EncodeIndexSnapshot(index probability.Index) ([]byte, error) {
	return msgpack.Marshal(index)
}

// DecodeIndexSnapshot restores a probability index from its stored form.
func DecodeIndexSnapshot(data []byte) (probability.Index, error) {
	var index probability.Index
	if err := msgpack.Unmarshal(data, &index); err != nil {
		return nil, err
	}
	return index, nil
}

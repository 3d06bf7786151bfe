package randomization

// Subject is one pending record from the data-capture system.
//
// Raw holds the record exactly as exported (field -> value); the assigned
// treatment is written into Raw so the record can be imported back
// structurally unchanged. Key holds the canonicalized stratification codes;
// a criterion absent from Key means the record lacks the field entirely
// (not merely left blank), which disqualifies the subject from this run.
type Subject struct {
	ID  string
	Raw map[string]string
	Key map[string]string
}

// Report summarizes one randomization pass. Unassigned lists subjects whose
// stratum has no historical precedent; Skipped lists subjects missing one or
// more stratification fields. Both are surfaced for manual review rather
// than silently dropped.
type Report struct {
	Subjects   int      `json:"subjects"`
	Assigned   int      `json:"assigned"`
	Unassigned []string `json:"unassigned"`
	Skipped    []string `json:"skipped"`
}

package constants

// JobStatus is the lifecycle status of an evaluation job.
type JobStatus string

// Stable values (these exact strings are reported to clients).
const (
	JobStatusPending   JobStatus = "pending"   // accepted, waiting for a worker
	JobStatusRunning   JobStatus = "running"   // a worker owns the job
	JobStatusCompleted JobStatus = "completed" // final result available
	JobStatusFailed    JobStatus = "failed"    // terminal until resumed
)

// Terminal reports whether no worker will touch the job again without a resume.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Stage is the durable pipeline progress marker stored in a checkpoint.
// Values are ordered; a checkpoint's stage never moves backwards.
type Stage int

const (
	StageStarted Stage = iota
	StageOCRComplete
	StageEvaluationComplete
	StageAggregationComplete
	// StageFailed is reported in progress views only; checkpoints keep their
	// last good stage so a resume can re-enter there.
	StageFailed
)

var stageNames = map[Stage]string{
	StageStarted:             "STARTED",
	StageOCRComplete:         "OCR_COMPLETE",
	StageEvaluationComplete:  "EVALUATION_COMPLETE",
	StageAggregationComplete: "AGGREGATION_COMPLETE",
	StageFailed:              "FAILED",
}

func (s Stage) String() string {
	if n, ok := stageNames[s]; ok {
		return n
	}
	return "UNKNOWN"
}

// ParseStage maps a stored stage name back to its value.
func ParseStage(name string) (Stage, bool) {
	for st, n := range stageNames {
		if n == name {
			return st, true
		}
	}
	return StageStarted, false
}

// MarshalText stores stages by name so on-disk checkpoints stay readable.
func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Stage) UnmarshalText(b []byte) error {
	st, ok := ParseStage(string(b))
	if !ok {
		return &UnknownStageError{Name: string(b)}
	}
	*s = st
	return nil
}

type UnknownStageError struct{ Name string }

func (e *UnknownStageError) Error() string { return "unknown stage: " + e.Name }

// JobEventType names the transitions published to the status layer.
type JobEventType string

const (
	JobEventCreated   JobEventType = "created"
	JobEventRunning   JobEventType = "running"
	JobEventCompleted JobEventType = "completed"
	JobEventFailed    JobEventType = "failed"
)

package jobregistry

import "time"

// JobState is the lifecycle state of a compile job.
//
// NOTE: These values are persisted in job.json and are part of the stable
// on-disk contract.
type JobState string

const (
	JobStateRunning JobState = "running"
	JobStateSuccess JobState = "success"
	JobStateFailed  JobState = "failed"

	// JobStateError means the job could not be judged: invalid input, an
	// unwritable directory, or the process died mid-run.
	JobStateError JobState = "error"
)

// Terminal reports whether the state is final.
func (s JobState) Terminal() bool {
	return s == JobStateSuccess || s == JobStateFailed || s == JobStateError
}

// JobRecord is the persistent record written to job.json.
//
// The schema is designed for backward-compatible extension (additive fields).
type JobRecord struct {
	JobID     string    `json:"job_id"`
	Dialect   string    `json:"dialect"`
	State     JobState  `json:"state"`
	RequestID string    `json:"request_id,omitempty"`
	PID       int       `json:"pid,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	StartedAt  *time.Time `json:"started_at,omitempty"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	DurationMS int64      `json:"duration_ms,omitempty"`

	CompiledFile string `json:"compiled_file,omitempty"`
	OutputPath   string `json:"output_path,omitempty"`
	ErrorSummary string `json:"error_summary,omitempty"`
}

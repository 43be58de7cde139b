// Package output provides JSONL output for build runs.
//
// Output is structured as typed record envelopes containing per-job compile
// results, errors, progress updates and a final summary. Each line is a
// self-contained JSON object that can be parsed independently.
package output

import (
	"encoding/json"
	"errors"
	"time"
)

// Record type constants define the envelope types for JSONL output.
// These follow the pattern: mqlforge.<type>.v<version>
const (
	// TypeCompile identifies per-job compile result records.
	TypeCompile = "mqlforge.compile.v1"

	// TypeError identifies error records.
	TypeError = "mqlforge.error.v1"

	// TypeProgress identifies progress update records.
	TypeProgress = "mqlforge.progress.v1"

	// TypeSummary identifies final summary records.
	TypeSummary = "mqlforge.summary.v1"
)

// Record is the envelope for all JSONL output.
//
// The type field determines how to interpret the Data payload.
type Record struct {
	// Type identifies the record type (e.g., "mqlforge.compile.v1").
	Type string `json:"type"`

	// TS is the timestamp when the record was created (RFC3339Nano).
	TS time.Time `json:"ts"`

	// BuildID correlates every record of one build run.
	BuildID string `json:"build_id"`

	// Manifest is the manifest path the build was started from.
	Manifest string `json:"manifest,omitempty"`

	// Data contains the type-specific payload as raw JSON.
	Data json.RawMessage `json:"data"`
}

// CompileRecord is the data payload for one finished compile job.
type CompileRecord struct {
	JobID   string `json:"job_id"`
	Source  string `json:"source"`
	Dialect string `json:"dialect"`

	// Status is success, failed, error or skipped.
	Status string `json:"status"`

	CompiledFile   string `json:"compiled_file,omitempty"`
	OutputPath     string `json:"output_path,omitempty"`
	CompilerOutput string `json:"compiler_output,omitempty"`
	Errors         string `json:"errors,omitempty"`

	DurationMS int64 `json:"duration_ms"`
}

// ErrorRecord is the data payload for errors that stop a job from being
// judged at all (unreadable source, failed move into durable storage).
//
// Errors are emitted as records rather than failing the entire build,
// allowing partial results when some jobs fail.
type ErrorRecord struct {
	// Code is a machine-readable error code.
	Code string `json:"code"`

	// Message is a human-readable error description.
	Message string `json:"message"`

	// JobID is the job related to this error, if applicable.
	JobID string `json:"job_id,omitempty"`

	// Source is the manifest-relative source path, if applicable.
	Source string `json:"source,omitempty"`

	// Details contains additional error context.
	Details any `json:"details,omitempty"`
}

// Error codes for ErrorRecord.
const (
	// ErrCodeSourceUnreadable indicates the source file could not be read.
	ErrCodeSourceUnreadable = "SOURCE_UNREADABLE"

	// ErrCodeInvalidJob indicates the job was rejected before compiling.
	ErrCodeInvalidJob = "INVALID_JOB"

	// ErrCodeInternal indicates an unexpected internal error.
	ErrCodeInternal = "INTERNAL"
)

// ProgressRecord is the data payload for progress updates.
type ProgressRecord struct {
	// Phase indicates the current build phase.
	Phase string `json:"phase"`

	Total     int `json:"total"`
	Completed int `json:"completed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Progress phase constants.
const (
	// PhaseStarting is emitted once sources are expanded.
	PhaseStarting = "starting"

	// PhaseCompiling is emitted after each finished job.
	PhaseCompiling = "compiling"

	// PhaseComplete indicates the build has finished.
	PhaseComplete = "complete"
)

// SummaryRecord is the data payload for the final summary.
type SummaryRecord struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Errors    int `json:"errors"`
	Skipped   int `json:"skipped"`

	// Duration is the total build duration.
	Duration time.Duration `json:"duration_ns"`

	// DurationHuman is a human-readable duration string.
	DurationHuman string `json:"duration"`

	// Cancelled is set when the build was interrupted.
	Cancelled bool `json:"cancelled,omitempty"`
}

// Writer errors.
var (
	// ErrWriterClosed is returned when writing to a closed writer.
	ErrWriterClosed = errors.New("writer is closed")
)

// WriteError wraps errors that occur during write operations.
type WriteError struct {
	Op  string // Operation that failed (e.g., "marshal_data", "write")
	Err error  // Underlying error
}

func (e *WriteError) Error() string {
	return "output: " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

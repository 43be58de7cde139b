package jobregistry

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/3leaps/mqlforge/pkg/compiler"
)

// Recorder writes a JobRecord for every compile job the orchestrator runs.
type Recorder struct {
	store *Store
	pid   int
}

var _ compiler.Recorder = (*Recorder)(nil)

// NewRecorder returns a Recorder backed by store.
func NewRecorder(store *Store) *Recorder {
	return &Recorder{store: store, pid: os.Getpid()}
}

// JobStarted writes a running record, replacing any earlier record with the
// same identifier.
func (r *Recorder) JobStarted(_ context.Context, job compiler.Job, at time.Time) error {
	at = at.UTC()
	return r.store.Write(&JobRecord{
		JobID:     job.JobID,
		Dialect:   job.Dialect.String(),
		State:     JobStateRunning,
		RequestID: job.RequestID,
		PID:       r.pid,
		CreatedAt: at,
		StartedAt: &at,
	})
}

// JobFinished records the verdict.
func (r *Recorder) JobFinished(_ context.Context, job compiler.Job, res *compiler.Result, runErr error, at time.Time) error {
	rec, err := r.store.Get(job.JobID)
	if err != nil {
		started := at.UTC()
		rec = &JobRecord{
			JobID:     job.JobID,
			Dialect:   job.Dialect.String(),
			RequestID: job.RequestID,
			CreatedAt: started,
			StartedAt: &started,
		}
	}

	ended := at.UTC()
	rec.EndedAt = &ended
	rec.PID = 0
	if rec.StartedAt != nil {
		rec.DurationMS = ended.Sub(*rec.StartedAt).Milliseconds()
	}

	switch {
	case runErr != nil:
		rec.State = JobStateError
		rec.ErrorSummary = runErr.Error()
	case res == nil:
		rec.State = JobStateError
		rec.ErrorSummary = compiler.MessageUnknownFailed
	case res.Success:
		rec.State = JobStateSuccess
		rec.CompiledFile = res.CompiledFile
		rec.OutputPath = res.OutputPath
	default:
		rec.State = JobStateFailed
		rec.ErrorSummary = firstLine(res.Errors)
	}
	return r.store.Write(rec)
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

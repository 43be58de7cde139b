package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/3leaps/mqlforge/internal/errors"
	"github.com/3leaps/mqlforge/pkg/jobregistry"
)

// JobReader reads job records.
type JobReader interface {
	Get(jobID string) (*jobregistry.JobRecord, error)
}

// JobStatusHandler serves GET /jobs/{jobId}.
func JobStatusHandler(jobs JobReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := chi.URLParam(r, "jobId")
		record, err := jobs.Get(jobID)
		if err != nil {
			if errors.Is(err, jobregistry.ErrNotFound) {
				respondWithError(w, r, apperrors.NewNotFoundError("job not found"))
				return
			}
			respondWithError(w, r, apperrors.WrapInternal(r.Context(), err, "failed to read job record"))
			return
		}
		apperrors.WriteJSON(w, http.StatusOK, record)
	}
}

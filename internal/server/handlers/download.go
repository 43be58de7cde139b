package handlers

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/3leaps/mqlforge/internal/errors"
	"github.com/3leaps/mqlforge/pkg/artifact"
	"github.com/3leaps/mqlforge/pkg/compiler"
)

// MsgCompiledFileNotFound is returned when no artifact exists for a job.
const MsgCompiledFileNotFound = "Compiled file not found"

// ArtifactSource locates and opens persisted artifacts.
type ArtifactSource interface {
	Locate(ctx context.Context, jobID string, exts []string) (*artifact.Location, error)
	Open(ctx context.Context, loc *artifact.Location) (io.ReadCloser, int64, error)
}

// DownloadHandler serves GET /download/{jobId}.
type DownloadHandler struct {
	artifacts ArtifactSource
	logger    *zap.Logger
}

func NewDownloadHandler(artifacts ArtifactSource, logger *zap.Logger) *DownloadHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DownloadHandler{artifacts: artifacts, logger: logger}
}

func (h *DownloadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	if compiler.ValidateJobID(jobID) != nil {
		respondWithError(w, r, apperrors.NewNotFoundError(MsgCompiledFileNotFound))
		return
	}

	loc, err := h.artifacts.Locate(r.Context(), jobID, compiler.DownloadExtensions())
	if err != nil {
		h.fail(w, r, jobID, err)
		return
	}

	body, size, err := h.artifacts.Open(r.Context(), loc)
	if err != nil {
		h.fail(w, r, jobID, err)
		return
	}
	defer func() { _ = body.Close() }()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": loc.Name}))

	if rs, ok := body.(io.ReadSeeker); ok {
		http.ServeContent(w, r, loc.Name, time.Time{}, rs)
		return
	}
	if size >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.Warn("download interrupted",
			zap.String("job_id", jobID),
			zap.String("compiled_file", loc.Name),
			zap.Error(err))
	}
}

func (h *DownloadHandler) fail(w http.ResponseWriter, r *http.Request, jobID string, err error) {
	if errors.Is(err, artifact.ErrNotFound) {
		respondWithError(w, r, apperrors.NewNotFoundError(MsgCompiledFileNotFound))
		return
	}
	h.logger.Error("artifact lookup failed",
		zap.String("job_id", jobID),
		zap.String("request_id", apperrors.RequestIDFromContext(r.Context())),
		zap.Error(err))
	respondWithError(w, r, apperrors.NewExternalServiceError("artifact storage unavailable").WithCause(err))
}

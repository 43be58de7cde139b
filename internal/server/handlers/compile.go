package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/3leaps/mqlforge/internal/errors"
	"github.com/3leaps/mqlforge/pkg/compiler"
)

// MsgMissingFields is returned when code, platform or jobId is absent.
const MsgMissingFields = "Missing required fields: code, platform, or jobId"

// Compiler runs one compile job.
type Compiler interface {
	Compile(ctx context.Context, job compiler.Job) (*compiler.Result, error)
}

// CompileRequest is the body of POST /compile, as JSON or form fields.
type CompileRequest struct {
	Code     string `json:"code"`
	Platform string `json:"platform"`
	JobID    string `json:"jobId"`
}

// compileFailure is the error body of POST /compile.
type compileFailure struct {
	Success bool   `json:"success"`
	Errors  string `json:"errors"`
}

// CompileHandler serves POST /compile.
type CompileHandler struct {
	compiler Compiler
	logger   *zap.Logger
}

// NewCompileHandler returns a handler that submits jobs to c.
func NewCompileHandler(c Compiler, logger *zap.Logger) *CompileHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CompileHandler{compiler: c, logger: logger}
}

func (h *CompileHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := apperrors.RequestIDFromContext(r.Context())

	req, err := decodeCompileRequest(r)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondWithError(w, r, apperrors.NewPayloadTooLargeError(maxErr.Limit))
			return
		}
		writeCompileFailure(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.Code == "" || req.Platform == "" || req.JobID == "" {
		writeCompileFailure(w, http.StatusBadRequest, MsgMissingFields)
		return
	}

	dialect, err := compiler.ParseDialect(req.Platform)
	if err != nil {
		writeCompileFailure(w, http.StatusBadRequest, err.Error())
		return
	}

	job := compiler.Job{Source: req.Code, Dialect: dialect, JobID: req.JobID, RequestID: requestID}
	start := time.Now()
	res, err := h.compiler.Compile(r.Context(), job)
	if err != nil {
		if errors.Is(err, compiler.ErrInvalidJob) {
			writeCompileFailure(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("compile failed",
			zap.String("job_id", job.JobID),
			zap.String("dialect", dialect.String()),
			zap.String("request_id", requestID),
			zap.Error(err))
		writeCompileFailure(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.logger.Info("compile finished",
		zap.String("job_id", job.JobID),
		zap.String("dialect", dialect.String()),
		zap.String("request_id", requestID),
		zap.Bool("success", res.Success),
		zap.String("compiled_file", res.CompiledFile),
		zap.Duration("duration", time.Since(start)))

	apperrors.WriteJSON(w, http.StatusOK, res)
}

func decodeCompileRequest(r *http.Request) (CompileRequest, error) {
	var req CompileRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			return req, err
		}
		return formRequest(r), nil
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return req, err
		}
		return formRequest(r), nil
	}

	if r.Body == nil || r.Body == http.NoBody {
		return req, nil
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return req, err
		case errors.Is(err, io.EOF):
			// An empty body is reported as missing fields.
			return req, nil
		default:
			return req, errors.New("request body must be a JSON object")
		}
	}
	return req, nil
}

func formRequest(r *http.Request) CompileRequest {
	return CompileRequest{
		Code:     r.PostFormValue("code"),
		Platform: r.PostFormValue("platform"),
		JobID:    r.PostFormValue("jobId"),
	}
}

func writeCompileFailure(w http.ResponseWriter, status int, msg string) {
	apperrors.WriteJSON(w, status, compileFailure{Success: false, Errors: msg})
}

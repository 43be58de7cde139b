package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/3leaps/mqlforge/internal/errors"
)

func TestSetHTTPErrorResponder(t *testing.T) {
	original := httpErrorResponder
	defer func() { httpErrorResponder = original }()

	t.Run("sets custom responder", func(t *testing.T) {
		called := false
		customResponder := func(w http.ResponseWriter, r *http.Request, err error) {
			called = true
			w.WriteHeader(http.StatusTeapot)
		}

		SetHTTPErrorResponder(customResponder)

		req := httptest.NewRequest("GET", "/test", nil)
		rec := httptest.NewRecorder()
		respondWithError(rec, req, assert.AnError)

		assert.True(t, called)
		assert.Equal(t, http.StatusTeapot, rec.Code)
	})

	t.Run("nil resets to default", func(t *testing.T) {
		SetHTTPErrorResponder(func(w http.ResponseWriter, r *http.Request, err error) {
			w.WriteHeader(http.StatusTeapot)
		})

		SetHTTPErrorResponder(nil)

		req := httptest.NewRequest("GET", "/download/x", nil)
		rec := httptest.NewRecorder()
		respondWithError(rec, req, apperrors.NewNotFoundError(MsgCompiledFileNotFound))

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "NOT_FOUND")
	})
}

func TestResetHTTPErrorResponder(t *testing.T) {
	original := httpErrorResponder
	defer func() { httpErrorResponder = original }()

	customCalled := false
	SetHTTPErrorResponder(func(w http.ResponseWriter, r *http.Request, err error) {
		customCalled = true
	})

	ResetHTTPErrorResponder()

	rec := httptest.NewRecorder()
	respondWithError(rec, httptest.NewRequest("GET", "/", nil), apperrors.NewForbiddenError("Invalid API key"))

	assert.False(t, customCalled)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRespondWithError(t *testing.T) {
	original := httpErrorResponder
	defer func() { httpErrorResponder = original }()

	called := false
	var capturedErr error

	SetHTTPErrorResponder(func(w http.ResponseWriter, r *http.Request, err error) {
		called = true
		capturedErr = err
		w.WriteHeader(http.StatusInternalServerError)
	})

	req := httptest.NewRequest("GET", "/test", nil)
	rec := httptest.NewRecorder()

	respondWithError(rec, req, assert.AnError)

	assert.True(t, called)
	assert.Equal(t, assert.AnError, capturedErr)
}

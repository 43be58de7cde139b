package handlers

import (
	"net/http"
	"runtime"

	apperrors "github.com/3leaps/mqlforge/internal/errors"
)

// VersionInfo is the body of GET /version.
type VersionInfo struct {
	Version     string            `json:"version"`
	Commit      string            `json:"commit"`
	BuildDate   string            `json:"build_date"`
	GoVersion   string            `json:"go_version"`
	Executables map[string]string `json:"executables,omitempty"`
}

// VersionHandler serves info, filling in the Go runtime version.
func VersionHandler(info VersionInfo) http.HandlerFunc {
	if info.GoVersion == "" {
		info.GoVersion = runtime.Version()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		apperrors.WriteJSON(w, http.StatusOK, info)
	}
}

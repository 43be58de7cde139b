package compiler

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrInvalidJob indicates a job request that cannot be compiled as submitted.
var ErrInvalidJob = errors.New("invalid compile job")

// Job is one compile request.
type Job struct {
	Source  string
	Dialect Dialect
	JobID   string

	// RequestID correlates the job with the inbound request. Optional.
	RequestID string
}

// MaxJobIDLength bounds job identifiers.
const MaxJobIDLength = 128

// Job identifiers become file names in both the transient and durable
// directories, so they are limited to a portable, separator-free set.
var jobIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ValidateJobID reports whether id is usable as a job identifier.
func ValidateJobID(id string) error {
	switch {
	case id == "":
		return fmt.Errorf("%w: jobId is required", ErrInvalidJob)
	case len(id) > MaxJobIDLength:
		return fmt.Errorf("%w: jobId exceeds %d characters", ErrInvalidJob, MaxJobIDLength)
	case !jobIDPattern.MatchString(id):
		return fmt.Errorf("%w: jobId %q may only contain letters, digits, '.', '_' and '-' and must start with a letter or digit", ErrInvalidJob, id)
	}
	return nil
}

// Validate checks the preconditions for compiling j.
func (j Job) Validate() error {
	if j.Source == "" {
		return fmt.Errorf("%w: code is required", ErrInvalidJob)
	}
	if j.Dialect == "" {
		return fmt.Errorf("%w: platform is required", ErrInvalidJob)
	}
	if _, ok := SpecFor(j.Dialect); !ok {
		return fmt.Errorf("%w: unsupported platform %q", ErrInvalidJob, j.Dialect)
	}
	return ValidateJobID(j.JobID)
}

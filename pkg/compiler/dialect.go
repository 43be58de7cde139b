// Package compiler orchestrates MetaEditor compile jobs.
//
// A job is staged into a transient directory, handed to the external compiler
// executable, and judged purely by whether the expected compiled file appears
// on disk. The compiler's exit status is never trusted: MetaEditor returns
// non-zero for successful builds with warnings and zero for some failures.
package compiler

import (
	"fmt"
	"strings"
)

// Dialect identifies a supported source language variant.
type Dialect string

const (
	// DialectMQL4 is MetaTrader 4 source (.mq4 -> .ex4).
	DialectMQL4 Dialect = "mql4"

	// DialectMQL5 is MetaTrader 5 source (.mq5 -> .ex5).
	DialectMQL5 Dialect = "mql5"
)

// String returns the string representation of the dialect.
func (d Dialect) String() string {
	return string(d)
}

// DialectSpec describes the file naming and default executable for a dialect.
type DialectSpec struct {
	Dialect     Dialect
	SourceExt   string
	CompiledExt string

	// DefaultExecutable is used when no executable is configured.
	DefaultExecutable string
}

var dialectSpecs = map[Dialect]DialectSpec{
	DialectMQL4: {
		Dialect:           DialectMQL4,
		SourceExt:         ".mq4",
		CompiledExt:       ".ex4",
		DefaultExecutable: `C:\Program Files\MetaTrader\metaeditor.exe`,
	},
	DialectMQL5: {
		Dialect:           DialectMQL5,
		SourceExt:         ".mq5",
		CompiledExt:       ".ex5",
		DefaultExecutable: `C:\Program Files\MetaTrader 5\metaeditor64.exe`,
	},
}

// ParseDialect resolves a dialect name. Matching is case-insensitive.
func ParseDialect(s string) (Dialect, error) {
	d := Dialect(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := dialectSpecs[d]; !ok {
		return "", fmt.Errorf("%w: unsupported platform %q", ErrInvalidJob, s)
	}
	return d, nil
}

// SpecFor returns the naming rules for d.
func SpecFor(d Dialect) (DialectSpec, bool) {
	spec, ok := dialectSpecs[d]
	return spec, ok
}

// DialectForSource infers the dialect from a source file extension.
func DialectForSource(path string) (Dialect, bool) {
	lower := strings.ToLower(path)
	for _, spec := range dialectSpecs {
		if strings.HasSuffix(lower, spec.SourceExt) {
			return spec.Dialect, true
		}
	}
	return "", false
}

// DownloadExtensions lists compiled extensions in download preference order:
// MQL5 first, then MQL4.
func DownloadExtensions() []string {
	return []string{
		dialectSpecs[DialectMQL5].CompiledExt,
		dialectSpecs[DialectMQL4].CompiledExt,
	}
}

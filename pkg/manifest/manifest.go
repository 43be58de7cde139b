// Package manifest provides loading and validation of mqlforge build manifests.
//
// A build manifest is a YAML, JSON or TOML file that selects MQL sources by glob
// pattern and compiles them as one batch. Manifests are validated against an
// embedded JSON Schema that enforces strict typing and disallows unknown
// properties.
//
// Example manifest (YAML):
//
//	version: "1.0"
//	dialect: mql5
//	sources:
//	  - "experts/**/*.mq5"
//	excludes:
//	  - "**/_archive/**"
//	job_id_prefix: "nightly-"
//	concurrency: 2
package manifest

// Manifest represents a validated build manifest.
type Manifest struct {
	// Schema is an optional JSON Schema reference for editor support.
	Schema string `json:"$schema,omitempty" yaml:"$schema,omitempty"`

	// Version is the manifest schema version. Must be "1.0".
	Version string `json:"version" yaml:"version"`

	// Dialect applies to sources whose extension does not name one.
	Dialect string `json:"dialect,omitempty" yaml:"dialect,omitempty"`

	// Root is the directory patterns are evaluated against. Relative roots
	// resolve against the manifest file's directory. Default: that directory.
	Root string `json:"root,omitempty" yaml:"root,omitempty"`

	// Sources are doublestar glob patterns; at least one is required.
	Sources []string `json:"sources" yaml:"sources"`

	// Excludes drop matched sources. Optional.
	Excludes []string `json:"excludes,omitempty" yaml:"excludes,omitempty"`

	// IncludeHidden includes files under dot-directories. Default: false.
	IncludeHidden bool `json:"include_hidden,omitempty" yaml:"include_hidden,omitempty"`

	// JobIDPrefix is prepended to every derived job identifier.
	JobIDPrefix string `json:"job_id_prefix,omitempty" yaml:"job_id_prefix,omitempty"`

	// Concurrency bounds parallel compiler runs. Range 1-64. Default: 2.
	Concurrency int `json:"concurrency,omitempty" yaml:"concurrency,omitempty"`

	// FailFast stops scheduling new sources after the first failure.
	FailFast bool `json:"fail_fast,omitempty" yaml:"fail_fast,omitempty"`

	// baseDir is the directory of the manifest file, set by Load.
	baseDir string
}

// Default values for optional configuration fields.
const (
	// DefaultVersion is the current manifest schema version.
	DefaultVersion = "1.0"

	// DefaultConcurrency is the default number of parallel compiler runs.
	// MetaEditor is heavy; two keeps a typical build agent responsive.
	DefaultConcurrency = 2
)

// ApplyDefaults fills in default values for optional fields.
func (m *Manifest) ApplyDefaults() {
	if m.Concurrency == 0 {
		m.Concurrency = DefaultConcurrency
	}
}

// SetBaseDir sets the directory relative roots resolve against.
func (m *Manifest) SetBaseDir(dir string) {
	m.baseDir = dir
}

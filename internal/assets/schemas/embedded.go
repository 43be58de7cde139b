// Package schemasassets provides embedded JSON schemas for standalone binary behavior.
//
// Schemas are embedded at compile time so the CLI validates manifests
// regardless of the working directory or installation location.
package schemasassets

import _ "embed"

// BuildManifestSchema is the embedded build-manifest JSON schema.
//
//go:embed build-manifest.schema.json
var BuildManifestSchema []byte

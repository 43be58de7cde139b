package manifest

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/3leaps/mqlforge/pkg/compiler"
)

// ErrNoSources is returned when the patterns select no files.
var ErrNoSources = errors.New("manifest selected no source files")

// Source is one file selected by a manifest.
type Source struct {
	// Path is the absolute or root-joined file path.
	Path string

	// Rel is the slash-separated path relative to the manifest root.
	Rel string

	Dialect compiler.Dialect
	JobID   string
}

// RootDir returns the directory patterns are evaluated against.
func (m *Manifest) RootDir() string {
	root := m.Root
	if root == "" {
		root = "."
	}
	if filepath.IsAbs(root) || m.baseDir == "" {
		return filepath.Clean(root)
	}
	return filepath.Join(m.baseDir, root)
}

// Expand resolves the manifest's patterns into compile sources, sorted by
// relative path.
//
// Each source gets a dialect from its extension, falling back to the
// manifest dialect, and a job identifier of JobIDPrefix plus the file stem.
// Two sources resolving to the same identifier are an error, since the second
// would overwrite the first one's artifact.
func (m *Manifest) Expand() ([]Source, error) {
	root := m.RootDir()
	st, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("manifest root: %w", err)
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("manifest root %s is not a directory", root)
	}

	var fallback compiler.Dialect
	if m.Dialect != "" {
		fallback, err = compiler.ParseDialect(m.Dialect)
		if err != nil {
			return nil, err
		}
	}

	excludes := make([]string, 0, len(m.Excludes))
	for _, raw := range m.Excludes {
		p := normalizePattern(raw)
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid exclude pattern %q", raw)
		}
		excludes = append(excludes, p)
	}

	fsys := os.DirFS(root)
	seen := make(map[string]struct{})
	var rels []string
	for _, raw := range m.Sources {
		p := strings.TrimPrefix(normalizePattern(raw), "./")
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid source pattern %q", raw)
		}
		matches, err := doublestar.Glob(fsys, p, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("expand %q: %w", raw, err)
		}
		for _, rel := range matches {
			if _, dup := seen[rel]; dup {
				continue
			}
			if !m.IncludeHidden && isHidden(rel) {
				continue
			}
			if matchesAny(excludes, rel) {
				continue
			}
			seen[rel] = struct{}{}
			rels = append(rels, rel)
		}
	}
	sort.Strings(rels)

	sources := make([]Source, 0, len(rels))
	owners := make(map[string]string, len(rels))
	for _, rel := range rels {
		dialect, ok := compiler.DialectForSource(rel)
		if !ok {
			if fallback == "" {
				return nil, fmt.Errorf("%s: cannot infer dialect from extension and manifest sets none", rel)
			}
			dialect = fallback
		}

		jobID := m.JobIDPrefix + sanitizeStem(rel)
		if err := compiler.ValidateJobID(jobID); err != nil {
			return nil, fmt.Errorf("%s: %w", rel, err)
		}
		if prev, dup := owners[jobID]; dup {
			return nil, fmt.Errorf("%s and %s both map to job id %q", prev, rel, jobID)
		}
		owners[jobID] = rel

		sources = append(sources, Source{
			Path:    filepath.Join(root, filepath.FromSlash(rel)),
			Rel:     rel,
			Dialect: dialect,
			JobID:   jobID,
		})
	}

	if len(sources) == 0 {
		return nil, ErrNoSources
	}
	return sources, nil
}

func matchesAny(patterns []string, rel string) bool {
	for _, p := range patterns {
		if ok, err := doublestar.Match(p, rel); err == nil && ok {
			return true
		}
	}
	return false
}

// sanitizeStem maps a file's base name without extension onto the job
// identifier alphabet.
func sanitizeStem(rel string) string {
	base := path.Base(rel)
	stem := strings.TrimSuffix(base, path.Ext(base))
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			return r
		}
		return '-'
	}, stem)
}

// isHidden reports whether any path segment starts with a dot.
func isHidden(rel string) bool {
	for _, seg := range strings.Split(rel, "/") {
		if seg != "" && seg != "." && seg != ".." && strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}

const globEscapable = `*?[]{}\`

// normalizePattern turns unescaped backslashes into forward slashes so that
// Windows-style patterns work, while keeping escapes of glob metacharacters.
//
//	"experts\grid\Grid.mq5" -> "experts/grid/Grid.mq5"
//	"lib/file\*.mq4"        -> "lib/file\*.mq4"
func normalizePattern(pattern string) string {
	var b strings.Builder
	b.Grow(len(pattern))

	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '\\' {
			b.WriteRune(r)
			continue
		}
		if i+1 < len(runes) && strings.ContainsRune(globEscapable, runes[i+1]) {
			b.WriteRune('\\')
			b.WriteRune(runes[i+1])
			i++
			continue
		}
		b.WriteRune('/')
	}
	return b.String()
}


package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/mqlforge/pkg/compiler"
)

func touch(t *testing.T, root string, rels ...string) {
	t.Helper()
	for _, rel := range rels {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("// "+rel), 0o644))
	}
}

func jobIDs(sources []Source) []string {
	out := make([]string, len(sources))
	for i, s := range sources {
		out[i] = s.JobID
	}
	return out
}

func TestExpand(t *testing.T) {
	root := t.TempDir()
	touch(t, root,
		"experts/Grid.mq5",
		"experts/trend/Trend Follower.mq5",
		"experts/_archive/Old.mq5",
		"experts/.cache/Hidden.mq5",
		"scripts/Close.mq4",
		"include/Common.mqh",
	)

	m := &Manifest{
		Sources:     []string{"experts/**/*.mq5", "scripts/*.mq4", "experts/Grid.mq5"},
		Excludes:    []string{"**/_archive/**"},
		JobIDPrefix: "ci-",
	}
	m.SetBaseDir(root)

	sources, err := m.Expand()
	require.NoError(t, err)
	require.Len(t, sources, 3)

	assert.Equal(t, "experts/Grid.mq5", sources[0].Rel)
	assert.Equal(t, compiler.DialectMQL5, sources[0].Dialect)
	assert.Equal(t, filepath.Join(root, "experts", "Grid.mq5"), sources[0].Path)

	assert.Equal(t, "experts/trend/Trend Follower.mq5", sources[1].Rel)
	assert.Equal(t, "scripts/Close.mq4", sources[2].Rel)
	assert.Equal(t, compiler.DialectMQL4, sources[2].Dialect)

	assert.Equal(t, []string{"ci-Grid", "ci-Trend-Follower", "ci-Close"}, jobIDs(sources))
}

func TestExpand_IncludeHidden(t *testing.T) {
	root := t.TempDir()
	touch(t, root, ".wip/Draft.mq5", "Live.mq5")

	m := &Manifest{Sources: []string{"**/*.mq5"}, IncludeHidden: true}
	m.SetBaseDir(root)

	sources, err := m.Expand()
	require.NoError(t, err)
	assert.Equal(t, []string{"Draft", "Live"}, jobIDs(sources))
}

func TestExpand_DialectFallback(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "legacy/Robot.txt")

	m := &Manifest{Sources: []string{"legacy/*.txt"}}
	m.SetBaseDir(root)
	_, err := m.Expand()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot infer dialect")

	m.Dialect = "mql4"
	sources, err := m.Expand()
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, compiler.DialectMQL4, sources[0].Dialect)
}

func TestExpand_DuplicateJobIDs(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "a/Robot.mq5", "b/Robot.mq5")

	m := &Manifest{Sources: []string{"**/*.mq5"}}
	m.SetBaseDir(root)

	_, err := m.Expand()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"Robot"`)
}

func TestExpand_NoMatches(t *testing.T) {
	m := &Manifest{Sources: []string{"**/*.mq5"}}
	m.SetBaseDir(t.TempDir())

	_, err := m.Expand()
	assert.ErrorIs(t, err, ErrNoSources)
}

func TestExpand_RootRelativeToManifest(t *testing.T) {
	base := t.TempDir()
	touch(t, base, "src/One.mq4")

	m := &Manifest{Root: "src", Sources: []string{"*.mq4"}}
	m.SetBaseDir(base)
	assert.Equal(t, filepath.Join(base, "src"), m.RootDir())

	sources, err := m.Expand()
	require.NoError(t, err)
	assert.Equal(t, []string{"One"}, jobIDs(sources))

	m.Root = filepath.Join(base, "missing")
	_, err = m.Expand()
	assert.Error(t, err)
}

func TestExpand_InvalidPattern(t *testing.T) {
	m := &Manifest{Sources: []string{"experts/[.mq5"}}
	m.SetBaseDir(t.TempDir())

	_, err := m.Expand()
	assert.Error(t, err)
}

func TestNormalizePattern(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"experts/**/*.mq5", "experts/**/*.mq5"},
		{`experts\grid\Grid.mq5`, "experts/grid/Grid.mq5"},
		{`lib/file\*.mq4`, `lib/file\*.mq4`},
		{`trailing\`, "trailing/"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizePattern(tt.in), tt.in)
	}
}

func TestSanitizeStem(t *testing.T) {
	assert.Equal(t, "Trend-Follower", sanitizeStem("experts/Trend Follower.mq5"))
	assert.Equal(t, "v1.2_final", sanitizeStem("v1.2_final.mq4"))
	assert.Equal(t, "caf-", sanitizeStem("caf\u00e9.mq5"))
}

package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/mqlforge/pkg/artifact"
)

func TestFetchDestination(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		out  string
		want string
	}{
		{name: "empty uses artifact name", out: "", want: "job-1.ex5"},
		{name: "existing directory", out: dir, want: filepath.Join(dir, "job-1.ex5")},
		{name: "trailing separator", out: filepath.Join(dir, "new") + string(os.PathSeparator), want: filepath.Join(dir, "new", "job-1.ex5")},
		{name: "explicit file", out: filepath.Join(dir, "renamed.ex5"), want: filepath.Join(dir, "renamed.ex5")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, fetchDestination(tt.out, "job-1.ex5"))
		})
	}
}

func TestWriteFileAtomic(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "dist", "job-1.ex5")

	n, err := writeFileAtomic(dst, strings.NewReader("EX5"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = writeFileAtomic(dst, strings.NewReader("EX5-v2"))
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "EX5-v2", string(data))

	entries, err := os.ReadDir(filepath.Dir(dst))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files are cleaned up")
}

func TestWriteLocation(t *testing.T) {
	local := &artifact.Location{Name: "job-1.ex5", Path: "/data/compiled/job-1.ex5", Size: 10}
	mirrored := &artifact.Location{Name: "job-1.ex4", MirrorKey: "builds/job-1.ex4", Size: 7}

	var buf bytes.Buffer
	require.NoError(t, writeLocation(&buf, local, false))
	assert.Equal(t, "/data/compiled/job-1.ex5\n", buf.String())

	buf.Reset()
	require.NoError(t, writeLocation(&buf, mirrored, false))
	assert.Equal(t, "mirror:builds/job-1.ex4\n", buf.String())

	buf.Reset()
	require.NoError(t, writeLocation(&buf, mirrored, true))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, true, decoded["mirrored"])
	assert.Equal(t, "builds/job-1.ex4", decoded["mirror_key"])
	assert.Equal(t, float64(7), decoded["size"])
}

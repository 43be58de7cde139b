package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/3leaps/mqlforge/internal/config"
	"github.com/3leaps/mqlforge/pkg/compiler"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	return &config.Config{
		Compiler: config.CompilerConfig{
			Timeout:        time.Second,
			TempDir:        filepath.Join(root, "temp"),
			CompiledDir:    filepath.Join(root, "compiled"),
			MQL5Executable: "/opt/mt5/metaeditor64.exe",
		},
		Jobs: config.JobsConfig{Enabled: true, Dir: filepath.Join(root, "jobs")},
	}
}

func TestCompilerConfig(t *testing.T) {
	cc := compilerConfig(config.CompilerConfig{
		Timeout:         5 * time.Second,
		TempDir:         "/tmp/x",
		MQL4Executable:  " ",
		MQL5Executable:  "/opt/mt5/metaeditor64.exe",
		SerializeJobIDs: true,
	})

	assert.Equal(t, "/tmp/x", cc.TempDir)
	assert.Equal(t, 5*time.Second, cc.Timeout)
	assert.True(t, cc.SerializeJobIDs)
	assert.Equal(t, map[compiler.Dialect]string{compiler.DialectMQL5: "/opt/mt5/metaeditor64.exe"}, cc.Executables)
}

func TestNewMirror(t *testing.T) {
	t.Run("none", func(t *testing.T) {
		m, err := newMirror(context.Background(), config.MirrorConfig{})
		require.NoError(t, err)
		assert.Nil(t, m)
	})

	t.Run("file", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "mirror")
		m, err := newMirror(context.Background(), config.MirrorConfig{Provider: "FILE", BaseDir: dir})
		require.NoError(t, err)
		require.NotNil(t, m)
		defer func() { _ = m.Close() }()
		assert.DirExists(t, dir)
	})

	t.Run("s3 requires bucket", func(t *testing.T) {
		m, err := newMirror(context.Background(), config.MirrorConfig{Provider: "s3"})
		assert.Error(t, err)
		assert.Nil(t, m)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := newMirror(context.Background(), config.MirrorConfig{Provider: "ftp"})
		assert.Error(t, err)
	})
}

func TestNewPipeline(t *testing.T) {
	cfg := testConfig(t)
	cfg.Mirror = config.MirrorConfig{Provider: config.MirrorFile, BaseDir: filepath.Join(t.TempDir(), "mirror"), Prefix: "builds"}

	p, err := newPipeline(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	require.NotNil(t, p.orchestrator)
	require.NotNil(t, p.jobs)
	assert.NotNil(t, p.mirror)
	assert.True(t, p.artifacts.HasMirror())
	assert.Equal(t, cfg.Compiler.CompiledDir, p.artifacts.Dir())
	assert.Equal(t, cfg.Jobs.Dir, p.jobs.RootDir())
	assert.Equal(t, "/opt/mt5/metaeditor64.exe", p.orchestrator.Executable(compiler.DialectMQL5))
	assert.DirExists(t, cfg.Compiler.TempDir)
}

func TestNewPipeline_JobsDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Jobs.Enabled = false

	p, err := newPipeline(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	assert.Nil(t, p.jobs)
	assert.Nil(t, p.mirror)
}

func TestVersionPayload(t *testing.T) {
	p, err := newPipeline(context.Background(), testConfig(t), zap.NewNop())
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	info := versionPayload(p.orchestrator)
	assert.Equal(t, versionInfo.Version, info.Version)
	assert.Equal(t, "/opt/mt5/metaeditor64.exe", info.Executables["mql5"])
	assert.NotEmpty(t, info.Executables["mql4"])
}

func TestWriteVersion(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeVersion(&buf, false))
	assert.Contains(t, buf.String(), "mqlforge "+versionInfo.Version)

	buf.Reset()
	require.NoError(t, writeVersion(&buf, true))
	assert.Contains(t, buf.String(), `"go_version"`)
}

func TestCompileViaPipeline_UnavailableCompiler(t *testing.T) {
	cfg := testConfig(t)
	cfg.Compiler.MQL5Executable = filepath.Join(t.TempDir(), "no-such-metaeditor")

	p, err := newPipeline(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	res, err := p.orchestrator.Compile(context.Background(), compiler.Job{
		Source:  "void OnStart(){}",
		Dialect: compiler.DialectMQL5,
		JobID:   "job-1",
	})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, compiler.MessageUnknownFailed, res.Errors)

	rec, err := p.jobs.Get("job-1")
	require.NoError(t, err)
	assert.Equal(t, "failed", string(rec.State))

	entries, err := os.ReadDir(cfg.Compiler.TempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

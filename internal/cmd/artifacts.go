package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/mqlforge/internal/observability"
	"github.com/3leaps/mqlforge/pkg/artifact"
	"github.com/3leaps/mqlforge/pkg/compiler"
)

var artifactsCmd = &cobra.Command{
	Use:   "artifacts",
	Short: "Find and fetch compiled artifacts",
	Long: `Resolve compiled artifacts by job id.

Lookup follows the download endpoint: <job_id>.ex5 first, then
<job_id>.ex4, checking compiler.compiled_dir before the configured mirror.`,
}

var artifactsLocateCmd = &cobra.Command{
	Use:   "locate <job_id>",
	Short: "Print where the artifact for a job is stored",
	Args:  cobra.ExactArgs(1),
	RunE:  runArtifactsLocate,
}

var artifactsFetchCmd = &cobra.Command{
	Use:   "fetch <job_id>",
	Short: "Copy the artifact for a job to a local path",
	Long: `Copy the artifact for a job to a local path, downloading it from the
mirror when the local compiled directory no longer has it.

Examples:
  mqlforge artifacts fetch nightly-Scalper
  mqlforge artifacts fetch nightly-Scalper --out ./dist/`,
	Args: cobra.ExactArgs(1),
	RunE: runArtifactsFetch,
}

func init() {
	rootCmd.AddCommand(artifactsCmd)
	artifactsCmd.AddCommand(artifactsLocateCmd)
	artifactsCmd.AddCommand(artifactsFetchCmd)

	artifactsLocateCmd.Flags().Bool("json", false, "Output as JSON")
	artifactsFetchCmd.Flags().String("out", ".", "Destination file or directory")
}

func openArtifactStore(cmd *cobra.Command) (*artifact.Store, error) {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return nil, err
	}
	mirror, err := newMirror(cmd.Context(), cfg.Mirror)
	if err != nil {
		return nil, exitError(foundry.ExitExternalServiceUnavailable, "Failed to connect to mirror", err)
	}
	store, err := artifact.NewStore(artifact.Config{
		Dir:          cfg.Compiler.CompiledDir,
		Mirror:       mirror,
		MirrorPrefix: cfg.Mirror.Prefix,
		Logger:       observability.CLILogger,
	})
	if err != nil {
		if mirror != nil {
			_ = mirror.Close()
		}
		return nil, exitError(foundry.ExitFileNotFound, "Failed to open compiled directory", err)
	}
	return store, nil
}

func locateArtifact(cmd *cobra.Command, store *artifact.Store, jobID string) (*artifact.Location, error) {
	loc, err := store.Locate(cmd.Context(), jobID, compiler.DownloadExtensions())
	if err != nil {
		if errors.Is(err, artifact.ErrNotFound) {
			return nil, exitError(foundry.ExitFileNotFound, "Compiled file not found", fmt.Errorf("job %s", jobID))
		}
		return nil, exitError(foundry.ExitExternalServiceUnavailable, "Artifact lookup failed", err)
	}
	return loc, nil
}

func runArtifactsLocate(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	store, err := openArtifactStore(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	loc, err := locateArtifact(cmd, store, args[0])
	if err != nil {
		return err
	}
	return writeLocation(cmd.OutOrStdout(), loc, jsonOutput)
}

func writeLocation(out io.Writer, loc *artifact.Location, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"name":       loc.Name,
			"path":       loc.Path,
			"mirror_key": loc.MirrorKey,
			"mirrored":   loc.Mirrored(),
			"size":       loc.Size,
		})
	}
	if loc.Mirrored() {
		_, _ = fmt.Fprintf(out, "mirror:%s\n", loc.MirrorKey)
		return nil
	}
	_, _ = fmt.Fprintln(out, loc.Path)
	return nil
}

func runArtifactsFetch(cmd *cobra.Command, args []string) error {
	outPath, _ := cmd.Flags().GetString("out")

	store, err := openArtifactStore(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	loc, err := locateArtifact(cmd, store, args[0])
	if err != nil {
		return err
	}

	body, size, err := store.Open(cmd.Context(), loc)
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to open artifact", err)
	}
	defer func() { _ = body.Close() }()

	dst := fetchDestination(outPath, loc.Name)
	n, err := writeFileAtomic(dst, body)
	if err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to write artifact", err)
	}

	observability.CLILogger.Info(fmt.Sprintf("Fetched %s ✅ %s", loc.Name, dst),
		zap.Int64("bytes", n),
		zap.Int64("size", size),
		zap.Bool("mirrored", loc.Mirrored()))
	return nil
}

// fetchDestination treats an existing directory or a trailing separator as a
// directory target.
func fetchDestination(out, name string) string {
	if out == "" {
		return name
	}
	if st, err := os.Stat(out); err == nil && st.IsDir() {
		return filepath.Join(out, name)
	}
	if os.IsPathSeparator(out[len(out)-1]) {
		return filepath.Join(out, name)
	}
	return out
}

func writeFileAtomic(dst string, r io.Reader) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".tmp-*")
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return n, err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		_ = os.Remove(tmp.Name())
		return n, err
	}
	return n, nil
}

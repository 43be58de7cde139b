package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/mqlforge/internal/observability"
	"github.com/3leaps/mqlforge/pkg/compiler"
)

// exitCompileFailed is returned when the compiler produced no output.
const exitCompileFailed = 1

var (
	compileFile    string
	compileDialect string
	compileJobID   string
)

var compileCmd = &cobra.Command{
	Use:   "compile",
	Short: "Compile one source file",
	Long: `Compile a single MQL4/MQL5 source file through the same pipeline the
HTTP service uses and print the result as JSON.

The dialect is taken from --dialect or inferred from the .mq4/.mq5
extension. Use --file - to read the source from stdin (requires --dialect).

Examples:
  mqlforge compile --file experts/Scalper.mq5
  mqlforge compile --file legacy.mq4 --job-id legacy-nightly
  cat ea.txt | mqlforge compile --file - --dialect mql5`,
	RunE: runCompile,
}

func init() {
	rootCmd.AddCommand(compileCmd)
	compileCmd.Flags().StringVarP(&compileFile, "file", "f", "", "Source file to compile, or - for stdin")
	compileCmd.Flags().StringVar(&compileDialect, "dialect", "", "Source dialect (mql4, mql5)")
	compileCmd.Flags().StringVar(&compileJobID, "job-id", "", "Job identifier (default: random UUID)")
	_ = compileCmd.MarkFlagRequired("file")
}

func runCompile(cmd *cobra.Command, args []string) error {
	dialect, err := resolveDialect(compileDialect, compileFile)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Cannot determine dialect", err)
	}

	source, err := readSource(cmd.InOrStdin(), compileFile)
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to read source", err)
	}

	jobID := compileJobID
	if jobID == "" {
		jobID = uuid.New().String()
	}
	if err := compiler.ValidateJobID(jobID); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid --job-id", err)
	}

	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}

	p, err := newPipeline(cmd.Context(), cfg, observability.CLILogger)
	if err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to initialize compile pipeline", err)
	}
	defer func() { _ = p.Close() }()

	observability.CLILogger.Debug("Compiling",
		zap.String("job_id", jobID),
		zap.String("dialect", dialect.String()),
		zap.String("executable", p.orchestrator.Executable(dialect)))

	res, err := p.orchestrator.Compile(cmd.Context(), compiler.Job{
		Source:  source,
		Dialect: dialect,
		JobID:   jobID,
	})
	if err != nil {
		return exitError(foundry.ExitFileWriteError, "Compile failed", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to write result", err)
	}

	if !res.Success {
		return exitError(exitCompileFailed, "Compilation failed", fmt.Errorf("job %s produced no compiled file", jobID))
	}
	return nil
}

// resolveDialect prefers an explicit name and falls back to the source
// extension.
func resolveDialect(name, path string) (compiler.Dialect, error) {
	if name != "" {
		return compiler.ParseDialect(name)
	}
	if d, ok := compiler.DialectForSource(path); ok {
		return d, nil
	}
	return "", fmt.Errorf("cannot infer dialect from %q; pass --dialect", path)
}

func readSource(stdin io.Reader, path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"sync/atomic"
	"text/tabwriter"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/mqlforge/internal/observability"
	"github.com/3leaps/mqlforge/pkg/compiler"
	"github.com/3leaps/mqlforge/pkg/manifest"
	"github.com/3leaps/mqlforge/pkg/output"
)

var (
	buildManifest    string
	buildConcurrency int
	buildFailFast    bool
	buildDryRun      bool
	buildJSON        bool
	buildJSONL       bool
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Compile every source selected by a build manifest",
	Long: `Compile a batch of sources described by a YAML or JSON manifest.

Sources are selected with doublestar globs relative to the manifest root.
Each file becomes one job named <job_id_prefix><file stem>. Compiles run in
parallel up to the manifest concurrency.

Examples:
  mqlforge build --manifest build.yaml
  mqlforge build --manifest build.yaml --concurrency 1 --fail-fast
  mqlforge build --manifest build.yaml --dry-run`,
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)
	buildCmd.Flags().StringVarP(&buildManifest, "manifest", "m", "", "Path to build manifest")
	buildCmd.Flags().IntVar(&buildConcurrency, "concurrency", 0, "Override manifest concurrency")
	buildCmd.Flags().BoolVar(&buildFailFast, "fail-fast", false, "Stop scheduling after the first failure")
	buildCmd.Flags().BoolVar(&buildDryRun, "dry-run", false, "List selected sources without compiling")
	buildCmd.Flags().BoolVar(&buildJSON, "json", false, "Output results as JSON")
	buildCmd.Flags().BoolVar(&buildJSONL, "jsonl", false, "Stream mqlforge.*.v1 records as jobs finish")
	_ = buildCmd.MarkFlagRequired("manifest")
}

// buildOutcome is one row of the build report.
type buildOutcome struct {
	JobID    string           `json:"job_id"`
	Source   string           `json:"source"`
	Dialect  string           `json:"dialect"`
	Status   string           `json:"status"`
	Duration string           `json:"duration,omitempty"`
	Result   *compiler.Result `json:"result,omitempty"`
	Error    string           `json:"error,omitempty"`

	err     error
	elapsed time.Duration
}

const (
	buildStatusSuccess = "success"
	buildStatusFailed  = "failed"
	buildStatusError   = "error"
	buildStatusSkipped = "skipped"
	buildStatusPlanned = "planned"
)

// jobCompiler is the orchestrator surface a build needs.
type jobCompiler interface {
	Compile(ctx context.Context, job compiler.Job) (*compiler.Result, error)
}

func runBuild(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	m, err := manifest.Load(buildManifest)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid manifest", err)
	}
	if cmd.Flags().Changed("concurrency") {
		if buildConcurrency < 1 {
			return exitError(foundry.ExitInvalidArgument, "Invalid --concurrency value", fmt.Errorf("concurrency must be >= 1"))
		}
		m.Concurrency = buildConcurrency
	}
	if cmd.Flags().Changed("fail-fast") {
		m.FailFast = buildFailFast
	}

	sources, err := m.Expand()
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Failed to expand manifest sources", err)
	}

	if buildDryRun {
		outcomes := make([]buildOutcome, 0, len(sources))
		for _, src := range sources {
			outcomes = append(outcomes, buildOutcome{
				JobID:   src.JobID,
				Source:  src.Rel,
				Dialect: src.Dialect.String(),
				Status:  buildStatusPlanned,
			})
		}
		return writeBuildReport(outcomes)
	}

	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}
	p, err := newPipeline(ctx, cfg, observability.CLILogger)
	if err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to initialize compile pipeline", err)
	}
	defer func() { _ = p.Close() }()

	observability.CLILogger.Info(fmt.Sprintf("Building %d source(s) from %s", len(sources), buildManifest),
		zap.Int("concurrency", m.Concurrency),
		zap.Bool("fail_fast", m.FailFast))

	var w output.Writer
	if buildJSONL {
		jw := output.NewJSONLWriter(cmd.OutOrStdout(), uuid.New().String(), buildManifest)
		defer func() { _ = jw.Close() }()
		w = jw
		_ = w.WriteProgress(ctx, &output.ProgressRecord{Phase: output.PhaseStarting, Total: len(sources)})
	}

	started := time.Now()
	outcomes := runBuildJobs(ctx, p.orchestrator, sources, m.Concurrency, m.FailFast, w)
	counts := countOutcomes(outcomes)

	if w != nil {
		elapsed := time.Since(started)
		if err := w.WriteSummary(context.Background(), &output.SummaryRecord{
			Total:         len(outcomes),
			Succeeded:     counts[buildStatusSuccess],
			Failed:        counts[buildStatusFailed],
			Errors:        counts[buildStatusError],
			Skipped:       counts[buildStatusSkipped],
			Duration:      elapsed,
			DurationHuman: elapsed.Round(time.Millisecond).String(),
			Cancelled:     ctx.Err() != nil,
		}); err != nil {
			return exitError(foundry.ExitFileWriteError, "Failed to write summary", err)
		}
	} else if err := writeBuildReport(outcomes); err != nil {
		return err
	}

	if ctx.Err() != nil {
		return exitError(foundry.ExitSignalInt, "build cancelled", ctx.Err())
	}
	if counts[buildStatusError] > 0 {
		return exitError(foundry.ExitFileWriteError, "build completed with errors",
			fmt.Errorf("errors=%d failed=%d", counts[buildStatusError], counts[buildStatusFailed]))
	}
	if counts[buildStatusFailed] > 0 {
		return exitError(exitCompileFailed, "build completed with failed compiles",
			fmt.Errorf("failed=%d skipped=%d", counts[buildStatusFailed], counts[buildStatusSkipped]))
	}
	return nil
}

// runBuildJobs compiles sources with a bounded worker pool. Outcomes keep the
// order of sources. With failFast, sources not yet started after the first
// failure are reported as skipped.
//
// When w is non-nil every finished job is also streamed to it.
func runBuildJobs(ctx context.Context, c jobCompiler, sources []manifest.Source, concurrency int, failFast bool, w output.Writer) []buildOutcome {
	if concurrency < 1 {
		concurrency = 1
	}
	outcomes := make([]buildOutcome, len(sources))
	for i, src := range sources {
		outcomes[i] = buildOutcome{
			JobID:   src.JobID,
			Source:  src.Rel,
			Dialect: src.Dialect.String(),
			Status:  buildStatusSkipped,
		}
	}

	var (
		stop      atomic.Bool
		done      atomic.Int64
		succeeded atomic.Int64
		failed    atomic.Int64
		total     = len(sources)
	)

	tasks := make(chan int, concurrency*2)
	var wg sync.WaitGroup
	for range concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range tasks {
				if ctx.Err() != nil || (failFast && stop.Load()) {
					continue
				}
				outcome := compileSource(ctx, c, sources[i])
				outcomes[i] = outcome
				if outcome.Status == buildStatusSuccess {
					succeeded.Add(1)
				} else {
					failed.Add(1)
					stop.Store(true)
				}
				n := done.Add(1)
				logBuildOutcome(int(n), total, outcome)
				if w != nil {
					if err := emitOutcome(ctx, w, outcome); err != nil {
						observability.CLILogger.Error("Failed to write record", zap.Error(err))
					}
					if err := w.WriteProgress(ctx, &output.ProgressRecord{
						Phase:     output.PhaseCompiling,
						Total:     total,
						Completed: int(n),
						Succeeded: int(succeeded.Load()),
						Failed:    int(failed.Load()),
					}); err != nil {
						observability.CLILogger.Error("Failed to write record", zap.Error(err))
					}
				}
			}
		}()
	}

	for i := range sources {
		if ctx.Err() != nil || (failFast && stop.Load()) {
			break
		}
		tasks <- i
	}
	close(tasks)
	wg.Wait()
	return outcomes
}

func countOutcomes(outcomes []buildOutcome) map[string]int {
	counts := map[string]int{}
	for _, o := range outcomes {
		counts[o.Status]++
	}
	return counts
}

func emitOutcome(ctx context.Context, w output.Writer, o buildOutcome) error {
	if o.Status == buildStatusError {
		code := output.ErrCodeInternal
		switch {
		case errors.Is(o.err, compiler.ErrInvalidJob):
			code = output.ErrCodeInvalidJob
		case errors.Is(o.err, fs.ErrNotExist), errors.Is(o.err, fs.ErrPermission):
			code = output.ErrCodeSourceUnreadable
		}
		return w.WriteError(ctx, &output.ErrorRecord{
			Code:    code,
			Message: o.Error,
			JobID:   o.JobID,
			Source:  o.Source,
		})
	}

	rec := &output.CompileRecord{
		JobID:      o.JobID,
		Source:     o.Source,
		Dialect:    o.Dialect,
		Status:     o.Status,
		DurationMS: o.elapsed.Milliseconds(),
	}
	if o.Result != nil {
		rec.CompiledFile = o.Result.CompiledFile
		rec.OutputPath = o.Result.OutputPath
		rec.CompilerOutput = o.Result.CompilerOutput
		rec.Errors = o.Result.Errors
	}
	return w.WriteCompile(ctx, rec)
}

func compileSource(ctx context.Context, c jobCompiler, src manifest.Source) (out buildOutcome) {
	out = buildOutcome{
		JobID:   src.JobID,
		Source:  src.Rel,
		Dialect: src.Dialect.String(),
	}
	started := time.Now()
	defer func() {
		out.elapsed = time.Since(started)
		out.Duration = out.elapsed.Round(time.Millisecond).String()
	}()

	data, err := os.ReadFile(src.Path)
	if err != nil {
		out.Status = buildStatusError
		out.Error = err.Error()
		out.err = err
		return out
	}

	res, err := c.Compile(ctx, compiler.Job{
		Source:  string(data),
		Dialect: src.Dialect,
		JobID:   src.JobID,
	})
	switch {
	case err != nil:
		out.Status = buildStatusError
		out.Error = err.Error()
		out.err = err
	case res.Success:
		out.Status = buildStatusSuccess
		out.Result = res
	default:
		out.Status = buildStatusFailed
		out.Result = res
	}
	return out
}

func logBuildOutcome(n, total int, o buildOutcome) {
	fields := []zap.Field{zap.String("job_id", o.JobID), zap.String("source", o.Source)}
	switch o.Status {
	case buildStatusSuccess:
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] %s... ✅ %s", n, total, o.Source, o.Result.CompiledFile), fields...)
	case buildStatusFailed:
		observability.CLILogger.Warn(fmt.Sprintf("[%d/%d] %s... ❌ compile failed", n, total, o.Source),
			append(fields, zap.String("errors", o.Result.Errors))...)
	default:
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] %s... ❌ %s", n, total, o.Source, o.Error), fields...)
	}
}

func writeBuildReport(outcomes []buildOutcome) error {
	if buildJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(outcomes); err != nil {
			return exitError(foundry.ExitFileWriteError, "Failed to write JSON", err)
		}
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "JOB_ID\tDIALECT\tSTATUS\tDURATION\tSOURCE")
	for _, o := range outcomes {
		duration := o.Duration
		if duration == "" {
			duration = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", o.JobID, o.Dialect, o.Status, duration, o.Source)
	}
	return w.Flush()
}

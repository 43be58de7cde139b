package compiler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/mqlforge/pkg/compilelog"
)

// Persister moves a compiled file into durable storage under name and
// returns its durable path. An existing artifact with the same name is
// replaced.
type Persister interface {
	Persist(ctx context.Context, srcPath, name string) (string, error)
}

// Recorder observes job lifecycle transitions. Recorder errors are logged and
// never change the outcome of a job.
type Recorder interface {
	JobStarted(ctx context.Context, job Job, at time.Time) error
	JobFinished(ctx context.Context, job Job, res *Result, runErr error, at time.Time) error
}

// Config configures an Orchestrator.
type Config struct {
	// TempDir holds staged sources, compiler logs and fresh compiled output.
	TempDir string

	// Executables overrides the compiler executable per dialect. Missing
	// entries use DialectSpec.DefaultExecutable.
	Executables map[Dialect]string

	// Timeout bounds each compiler run. Zero means DefaultTimeout.
	Timeout time.Duration

	// SerializeJobIDs makes concurrent jobs sharing an identifier run one at
	// a time instead of racing on the same transient paths.
	SerializeJobIDs bool
}

// Validate checks that required configuration is present.
func (c Config) Validate() error {
	if strings.TrimSpace(c.TempDir) == "" {
		return errors.New("compiler temp dir is required")
	}
	for d := range c.Executables {
		if _, ok := SpecFor(d); !ok {
			return fmt.Errorf("executable configured for unknown dialect %q", d)
		}
	}
	return nil
}

// Orchestrator runs compile jobs end to end.
//
// Orchestrator is safe for concurrent use. Jobs with distinct identifiers
// never touch the same files.
type Orchestrator struct {
	cfg      Config
	invoker  Invoker
	store    Persister
	recorder Recorder
	logger   *zap.Logger
	locks    *keyedMutex
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithInvoker replaces the process invoker (tests use a fake compiler).
func WithInvoker(inv Invoker) Option {
	return func(o *Orchestrator) { o.invoker = inv }
}

// WithRecorder attaches a job lifecycle recorder.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// New creates an Orchestrator that stages work in cfg.TempDir and hands
// successful output to store.
func New(cfg Config, store Persister, opts ...Option) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.New("artifact store is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if err := os.MkdirAll(cfg.TempDir, 0o755); err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}

	o := &Orchestrator{
		cfg:     cfg,
		invoker: ExecInvoker{},
		store:   store,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if cfg.SerializeJobIDs {
		o.locks = newKeyedMutex()
	}
	return o, nil
}

// Executable returns the compiler executable used for d.
func (o *Orchestrator) Executable(d Dialect) string {
	if exe := strings.TrimSpace(o.cfg.Executables[d]); exe != "" {
		return exe
	}
	spec, _ := SpecFor(d)
	return spec.DefaultExecutable
}

// TempDir returns the transient working directory.
func (o *Orchestrator) TempDir() string {
	return o.cfg.TempDir
}

// jobPaths are the transient locations derived from a job identifier.
type jobPaths struct {
	source   string
	log      string
	compiled string
}

func (o *Orchestrator) pathsFor(job Job, spec DialectSpec) jobPaths {
	source := filepath.Join(o.cfg.TempDir, job.JobID+spec.SourceExt)
	return jobPaths{
		source:   source,
		log:      filepath.Join(o.cfg.TempDir, job.JobID+".log"),
		compiled: strings.TrimSuffix(source, spec.SourceExt) + spec.CompiledExt,
	}
}

// Compile runs job and reports the compilation verdict.
//
// Compilation failures are returned as a Result with Success=false. An error
// is returned only for invalid jobs (wrapping ErrInvalidJob) and for
// infrastructure failures such as an unwritable temp dir or a failed move
// into durable storage. Transient files are removed on every path.
//
// Cancelling ctx does not interrupt a job once it is running; the configured
// timeout is the only bound on the compiler.
func (o *Orchestrator) Compile(ctx context.Context, job Job) (res *Result, err error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}
	spec, _ := SpecFor(job.Dialect)

	if o.locks != nil {
		unlock := o.locks.Lock(job.JobID)
		defer unlock()
	}

	log := o.logger.With(
		zap.String("job_id", job.JobID),
		zap.String("dialect", job.Dialect.String()),
	)
	if job.RequestID != "" {
		log = log.With(zap.String("request_id", job.RequestID))
	}

	started := time.Now()
	o.recordStarted(ctx, log, job, started)
	defer func() {
		o.recordFinished(ctx, log, job, res, err)
	}()

	paths := o.pathsFor(job, spec)
	defer o.cleanup(log, paths)

	// Only the compile timeout stops a run. A caller that goes away (client
	// disconnect, shutdown) does not abort the compiler or the persist step.
	runCtx := context.WithoutCancel(ctx)

	// A compiled file left behind by an earlier run would read as success.
	removeQuietly(paths.compiled)

	if err := os.WriteFile(paths.source, []byte(job.Source), 0o644); err != nil {
		return nil, fmt.Errorf("write source file: %w", err)
	}

	exe := o.Executable(job.Dialect)
	outcome, invokeErr := o.invoker.Invoke(runCtx, Invocation{
		Executable: exe,
		Args:       CompileArgs(paths.source, paths.log),
		Dir:        o.cfg.TempDir,
		Timeout:    o.cfg.Timeout,
	})
	if invokeErr != nil {
		log.Debug("Compiler invocation reported an error",
			zap.String("executable", exe),
			zap.Bool("timed_out", outcome.TimedOut),
			zap.Int("exit_code", outcome.ExitCode),
			zap.Error(invokeErr))
	}

	compiled := fileExists(paths.compiled)
	diagnostics := o.readLog(log, paths.log)

	log.Debug("Compiler finished",
		zap.Bool("output_present", compiled),
		zap.Duration("compile_duration", outcome.Duration),
		zap.Int("log_chars", len(diagnostics)))

	if !compiled {
		if strings.TrimSpace(diagnostics) == "" {
			return Failed(""), nil
		}
		return Failed(compilelog.ExtractErrorLines(diagnostics)), nil
	}

	name := job.JobID + spec.CompiledExt
	outputPath, err := o.store.Persist(runCtx, paths.compiled, name)
	if err != nil {
		return nil, fmt.Errorf("persist compiled file: %w", err)
	}

	compilerOutput := ""
	if diagnostics != "" {
		compilerOutput = compilelog.ExtractErrorLines(diagnostics)
	}
	return Succeeded(name, outputPath, compilerOutput), nil
}

// readLog returns the decoded compiler log, or "" when it is missing or
// unreadable.
func (o *Orchestrator) readLog(log *zap.Logger, path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Warn("Could not read compiler log", zap.String("path", path), zap.Error(err))
		}
		return ""
	}
	return compilelog.Recover(data)
}

func (o *Orchestrator) cleanup(log *zap.Logger, paths jobPaths) {
	for _, p := range []string{paths.source, paths.log, paths.compiled} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Debug("Failed to remove transient file", zap.String("path", p), zap.Error(err))
		}
	}
}

func (o *Orchestrator) recordStarted(ctx context.Context, log *zap.Logger, job Job, at time.Time) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.JobStarted(ctx, job, at); err != nil {
		log.Warn("Failed to record job start", zap.Error(err))
	}
}

func (o *Orchestrator) recordFinished(ctx context.Context, log *zap.Logger, job Job, res *Result, runErr error) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.JobFinished(ctx, job, res, runErr, time.Now()); err != nil {
		log.Warn("Failed to record job result", zap.Error(err))
	}
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}

func removeQuietly(path string) {
	_ = os.Remove(path)
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/mqlforge/internal/config"
	"github.com/3leaps/mqlforge/internal/observability"
	"github.com/3leaps/mqlforge/internal/server"
	"github.com/3leaps/mqlforge/internal/server/handlers"
	"github.com/3leaps/mqlforge/pkg/compiler"
	"github.com/3leaps/mqlforge/pkg/provider"
)

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the compile HTTP service",
	Long: `Run the HTTP service exposing POST /compile, GET /download/{jobId},
GET /jobs/{jobId} and the health endpoints.

The server drains in-flight compiles on SIGINT or SIGTERM for up to
server.shutdown_timeout.

Examples:
  mqlforge serve
  mqlforge serve --port 8080
  MQLFORGE_API_KEY=secret mqlforge serve --config ./mqlforge.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Listen host (overrides server.host)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (overrides server.port)")
}

func runServe(cmd *cobra.Command, args []string) error {
	overrides := map[string]any{}
	if cmd.Flags().Changed("host") {
		overrides["server.host"] = serveHost
	}
	if cmd.Flags().Changed("port") {
		overrides["server.port"] = servePort
	}
	cfg, err := loadConfig(cmd, overrides)
	if err != nil {
		return err
	}

	logger, err := observability.InitServerLogger(appIdentity.BinaryName, cfg.Logging.Options())
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Failed to initialize logger", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := newPipeline(ctx, cfg, logger)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to initialize compile pipeline", err)
	}
	defer func() { _ = p.Close() }()

	if cfg.Auth.APIKey == "" {
		logger.Warn("auth.api_key is empty; every authenticated request will be rejected")
	}

	initHealth(cfg, p)

	opts := []server.Option{
		server.WithLogger(logger),
		server.WithCompiler(p.orchestrator),
		server.WithArtifacts(p.artifacts),
		server.WithAPIKey(cfg.Auth.APIKey),
		server.WithVersion(versionPayload(p.orchestrator)),
		server.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
		server.WithCompileRateLimit(cfg.Server.CompileRateLimit, cfg.Server.CompileRateBurst),
		server.WithCORSOrigins(cfg.Server.CORSOrigins),
		server.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.IdleTimeout),
	}
	if p.jobs != nil {
		opts = append(opts, server.WithJobs(p.jobs))
	}
	srv := server.New(cfg.Server.Host, cfg.Server.Port, opts...)

	logger.Info("Starting mqlforge",
		zap.String("version", versionInfo.Version),
		zap.String("addr", srv.Addr()),
		zap.String("temp_dir", p.orchestrator.TempDir()),
		zap.String("compiled_dir", p.artifacts.Dir()),
		zap.Bool("mirror", p.artifacts.HasMirror()),
		zap.Bool("jobs", p.jobs != nil))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		if err != nil {
			return exitError(foundry.ExitExternalServiceUnavailable, "HTTP server failed", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutdown signal received, draining in-flight requests",
		zap.Duration("timeout", cfg.Server.ShutdownTimeout))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			logger.Warn("Shutdown timed out with requests still running")
		}
		return exitError(foundry.ExitSignalInt, "Graceful shutdown failed", err)
	}
	if err := <-errCh; err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "HTTP server failed", err)
	}
	logger.Info("Server stopped")
	return nil
}

func initHealth(cfg *config.Config, p *pipeline) *handlers.HealthManager {
	hm := handlers.InitHealthManager(versionInfo.Version)
	id := GetAppIdentity()
	if id != nil {
		hm.RegisterChecker("identity", identityHealthChecker{
			binaryName: id.BinaryName,
			envPrefix:  id.EnvPrefix,
			configName: id.ConfigName,
		})
	}
	hm.RegisterChecker("signals", signalHealthChecker{})

	for _, d := range []compiler.Dialect{compiler.DialectMQL4, compiler.DialectMQL5} {
		hm.SetInfo(d.String()+"_executable", p.orchestrator.Executable(d))
	}
	if !cfg.Health.Enabled {
		return hm
	}

	hm.RegisterChecker("temp_dir", handlers.DirWritableChecker{Dir: p.orchestrator.TempDir()})
	hm.RegisterChecker("compiled_dir", handlers.DirWritableChecker{Dir: p.artifacts.Dir()})
	if p.jobs != nil {
		hm.RegisterChecker("jobs_dir", jobsDirChecker{dir: p.jobs.RootDir()})
	}
	if p.mirror != nil {
		hm.RegisterChecker("mirror", mirrorHealthChecker{mirror: p.mirror, key: healthProbeKey(cfg.Mirror.Prefix)})
	}
	return hm
}

func versionPayload(o *compiler.Orchestrator) handlers.VersionInfo {
	exes := map[string]string{}
	for _, d := range []compiler.Dialect{compiler.DialectMQL4, compiler.DialectMQL5} {
		exes[d.String()] = o.Executable(d)
	}
	return handlers.VersionInfo{
		Version:     versionInfo.Version,
		Commit:      versionInfo.Commit,
		BuildDate:   versionInfo.BuildDate,
		Executables: exes,
	}
}

// signalHealthChecker reports healthy while the process can still receive
// shutdown signals.
type signalHealthChecker struct{}

func (signalHealthChecker) CheckHealth(ctx context.Context) error {
	return nil
}

type identityHealthChecker struct {
	binaryName string
	envPrefix  string
	configName string
}

func (c identityHealthChecker) CheckHealth(ctx context.Context) error {
	switch {
	case c.binaryName == "":
		return fmt.Errorf("app identity missing binary name")
	case c.envPrefix == "":
		return fmt.Errorf("app identity missing env prefix")
	case c.configName == "":
		return fmt.Errorf("app identity missing config name")
	}
	return nil
}

// jobsDirChecker tolerates a registry root that has not been created yet.
type jobsDirChecker struct {
	dir string
}

func (c jobsDirChecker) CheckHealth(ctx context.Context) error {
	if _, err := os.Stat(c.dir); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return handlers.DirWritableChecker{Dir: c.dir}.CheckHealth(ctx)
}

// mirrorHealthChecker probes the mirror with a HEAD on a key that normally
// does not exist; not-found proves reachability.
type mirrorHealthChecker struct {
	mirror provider.ObjectStore
	key    string
}

func (c mirrorHealthChecker) CheckHealth(ctx context.Context) error {
	_, err := c.mirror.Head(ctx, c.key)
	switch {
	case err == nil || provider.IsNotFound(err):
		return nil
	case provider.IsAccessDenied(err):
		return fmt.Errorf("mirror credentials rejected: %w", err)
	}
	return fmt.Errorf("mirror unreachable: %w", err)
}

func healthProbeKey(prefix string) string {
	return prefix + ".mqlforge-health"
}

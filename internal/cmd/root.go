// Package cmd implements the mqlforge command line.
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/3leaps/mqlforge/internal/config"
	"github.com/3leaps/mqlforge/internal/observability"
)

var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "unknown",
	BuildDate: "unknown",
}

var (
	cfgFile     string
	verbose     bool
	appIdentity *config.Identity
)

var rootCmd = &cobra.Command{
	Use:   "mqlforge",
	Short: "Compile MQL4/MQL5 sources with MetaEditor",
	Long: `mqlforge wraps the MetaEditor command-line compiler.

It accepts MQL4/MQL5 source, runs the compiler under a timeout, judges the
outcome by the presence of the compiled file and recovers readable
diagnostics from the compiler log whatever its encoding.

Run 'mqlforge serve' for the HTTP API or 'mqlforge compile' for a one-shot
compile.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initRuntime,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: ./mqlforge.yaml or user config dir)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug output")
}

// SetVersionInfo records build metadata injected by main.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// GetAppIdentity returns the identity resolved during startup, or nil when
// no command has run yet.
func GetAppIdentity() *config.Identity {
	return appIdentity
}

// setDefaults registers config defaults on the global viper so flags bound
// to it report the same values as the loader.
func setDefaults() {
	config.SetDefaults(viper.GetViper())
}

func initRuntime(_ *cobra.Command, _ []string) error {
	if appIdentity == nil {
		id := config.DefaultIdentity()
		appIdentity = &id
	}
	observability.InitCLILogger(appIdentity.BinaryName, verbose)
	config.SetConfigFile(cfgFile)
	setDefaults()
	return nil
}

// loadConfig loads configuration with flag overrides applied on top.
func loadConfig(cmd *cobra.Command, overrides map[string]any) (*config.Config, error) {
	cfg, err := config.Load(cmd.Context(), overrides)
	if err != nil {
		return nil, exitError(foundry.ExitInvalidArgument, "Failed to load configuration", err)
	}
	return cfg, nil
}

// Execute runs the root command and exits with the mapped exit code.
func Execute() {
	err := rootCmd.Execute()
	observability.Sync()
	if err == nil {
		return
	}

	var ce *commandError
	if errors.As(err, &ce) {
		logCommandError(observability.CLILogger, ce.msg, ce.err)
		os.Exit(ce.code)
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(1)
}

// exitCode is satisfied by the foundry exit code constants.
type exitCode interface {
	~int | ~int32 | ~int64 | ~uint8
}

// commandError carries the process exit code for a failed command.
type commandError struct {
	code int
	msg  string
	err  error
}

func (e *commandError) Error() string {
	if e.err == nil {
		return e.msg
	}
	return e.msg + ": " + e.err.Error()
}

func (e *commandError) Unwrap() error { return e.err }

// exitError returns an error that makes Execute exit with code.
func exitError[C exitCode](code C, msg string, err error) error {
	return &commandError{code: int(code), msg: msg, err: err}
}

// ExitWithCode logs msg and terminates the process with code.
func ExitWithCode[C exitCode](logger *zap.Logger, code C, msg string, err error) {
	logCommandError(logger, msg, err)
	observability.Sync()
	os.Exit(int(code))
}

func logCommandError(logger *zap.Logger, msg string, err error) {
	if logger == nil {
		logger = observability.CLILogger
	}
	if err != nil {
		logger.Error(msg, zap.Error(err))
		return
	}
	logger.Error(msg)
}

package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	appconfig "github.com/3leaps/mqlforge/internal/config"
	errwrap "github.com/3leaps/mqlforge/internal/errors"
	"github.com/3leaps/mqlforge/internal/observability"
	"github.com/3leaps/mqlforge/internal/server/handlers"
	"github.com/3leaps/mqlforge/pkg/compiler"
)

var (
	doctorProvider string
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long: `Run diagnostic checks on the system and suggest fixes for common issues.

Examples:
  mqlforge doctor                # Full environment check
  mqlforge doctor --provider s3  # Include S3 mirror credential checks`,
	Run: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().StringVar(&doctorProvider, "provider", "", "Run provider-specific checks (s3)")
}

func runDoctor(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	identity := GetAppIdentity()
	bannerName := "doctor"
	if identity != nil && identity.BinaryName != "" {
		bannerName = identity.BinaryName + " doctor"
	}
	observability.CLILogger.Info("=== " + bannerName + " ===")
	observability.CLILogger.Info("")
	observability.CLILogger.Info("Running diagnostic checks...")
	observability.CLILogger.Info("")

	allChecks := true
	checkNum := 1
	totalChecks := 9

	cfg, cfgErr := appconfig.Load(ctx)
	provider := doctorProvider
	if provider == "" && cfgErr == nil && cfg.Mirror.Provider == appconfig.MirrorS3 {
		provider = appconfig.MirrorS3
	}
	if provider == appconfig.MirrorS3 {
		totalChecks = 11
	}

	// Check 1: Go version
	goVersion := runtime.Version()
	if goVersion >= "go1.23" {
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking Go version... ✅ %s", checkNum, totalChecks, goVersion),
			zap.String("go_version", goVersion))
	} else {
		observability.CLILogger.Warn(fmt.Sprintf("[%d/%d] Checking Go version... ⚠️  %s (recommended: go1.23+)", checkNum, totalChecks, goVersion),
			zap.String("go_version", goVersion))
		allChecks = false
	}
	checkNum++

	// Check 2: Crucible access
	version := crucible.GetVersion()
	if version.Crucible != "" {
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking Crucible access... ✅ v%s", checkNum, totalChecks, version.Crucible),
			zap.String("crucible_version", version.Crucible))
	} else {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking Crucible access... ❌ Cannot access Crucible", checkNum, totalChecks))
		ExitWithCode(observability.CLILogger, foundry.ExitExternalServiceUnavailable, "Cannot access Crucible",
			errwrap.NewExternalServiceError("Crucible service unavailable"))
		allChecks = false
	}
	checkNum++

	// Check 3: Gofulmen access
	if version.Gofulmen != "" {
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking Gofulmen access... ✅ v%s", checkNum, totalChecks, version.Gofulmen),
			zap.String("gofulmen_version", version.Gofulmen))
	} else {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking Gofulmen access... ❌ Cannot access Gofulmen", checkNum, totalChecks))
		allChecks = false
	}
	checkNum++

	// Check 4: Config directory
	configDir, err := os.UserConfigDir()
	if err != nil {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking config directory... ❌ Cannot find config directory", checkNum, totalChecks),
			zap.Error(err))
		ExitWithCode(observability.CLILogger, foundry.ExitFileNotFound, "Cannot find config directory",
			errwrap.WrapInternal(ctx, err, "Cannot find config directory"))
		allChecks = false
	} else {
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking config directory... ✅ %s", checkNum, totalChecks, configDir),
			zap.String("config_dir", configDir))
	}
	checkNum++

	// Check 5: Environment
	observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking environment... ✅ %s/%s", checkNum, totalChecks, runtime.GOOS, runtime.GOARCH),
		zap.String("os", runtime.GOOS),
		zap.String("arch", runtime.GOARCH))
	if runtime.GOOS != "windows" {
		observability.CLILogger.Warn("    MetaEditor is a Windows program; compiles need Wine or a wrapper executable on " + runtime.GOOS)
	}
	checkNum++

	// Check 6: Configuration
	if cfgErr != nil {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking configuration... ❌ %v", checkNum, totalChecks, cfgErr))
		observability.CLILogger.Info("")
		observability.CLILogger.Warn("⚠️  Configuration is invalid; remaining checks skipped.")
		return
	}
	observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking configuration... ✅ port %d", checkNum, totalChecks, cfg.Server.Port),
		zap.String("addr", cfg.Server.Addr()),
		zap.Bool("api_key_set", cfg.Auth.APIKey != ""))
	if cfg.Auth.APIKey == "" {
		observability.CLILogger.Warn("    auth.api_key is empty; POST /compile will reject every request")
	}
	checkNum++

	// Checks 7-9: working directories and compiler executables
	for _, dir := range []struct{ label, path string }{
		{"temp directory", cfg.Compiler.TempDir},
		{"compiled directory", cfg.Compiler.CompiledDir},
	} {
		if err := ensureWritableDir(ctx, dir.path); err != nil {
			observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking %s... ❌ %v", checkNum, totalChecks, dir.label, err))
			allChecks = false
		} else {
			observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking %s... ✅ %s", checkNum, totalChecks, dir.label, dir.path))
		}
		checkNum++
	}

	exes := compilerConfig(cfg.Compiler).Executables
	missing := 0
	for _, d := range []compiler.Dialect{compiler.DialectMQL4, compiler.DialectMQL5} {
		exe := exes[d]
		if exe == "" {
			spec, _ := compiler.SpecFor(d)
			exe = spec.DefaultExecutable
		}
		if err := (handlers.ExecutableChecker{Path: exe}).CheckHealth(ctx); err != nil {
			observability.CLILogger.Warn(fmt.Sprintf("    %s compiler not found at %s", d, exe))
			missing++
		}
	}
	switch missing {
	case 0:
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking compiler executables... ✅ mql4, mql5", checkNum, totalChecks))
	case 1:
		observability.CLILogger.Warn(fmt.Sprintf("[%d/%d] Checking compiler executables... ⚠️  one dialect unavailable", checkNum, totalChecks))
	default:
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking compiler executables... ❌ none found", checkNum, totalChecks))
		allChecks = false
	}
	checkNum++

	// S3-specific checks
	if provider == appconfig.MirrorS3 {
		allChecks = runS3Checks(ctx, checkNum, totalChecks, allChecks)
	}

	observability.CLILogger.Info("")
	if allChecks {
		observability.CLILogger.Info(fmt.Sprintf("✅ All checks passed! Your %s installation is healthy.", bannerName))
	} else {
		observability.CLILogger.Warn("⚠️  Some checks failed. Review the output above for details.")
	}
	observability.CLILogger.Info("")
	observability.CLILogger.Info("=== End Diagnostics ===")
}

func ensureWritableDir(ctx context.Context, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return handlers.DirWritableChecker{Dir: dir}.CheckHealth(ctx)
}

// runS3Checks runs S3-specific diagnostic checks.
func runS3Checks(ctx context.Context, checkNum, totalChecks int, allChecks bool) bool {
	observability.CLILogger.Info("")
	observability.CLILogger.Info("S3 Mirror Checks:")

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking AWS credentials... ❌ Cannot load AWS config", checkNum, totalChecks),
			zap.Error(err))
		printAWSCredentialsHelp()
		return false
	}

	creds, err := cfg.Credentials.Retrieve(ctx)
	if err != nil {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking AWS credentials... ❌ Cannot retrieve credentials", checkNum, totalChecks),
			zap.Error(err))
		printAWSCredentialsHelp()
		return false
	}

	maskedKey := maskAccessKey(creds.AccessKeyID)
	observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking AWS credentials... ✅ Found credentials", checkNum, totalChecks),
		zap.String("access_key", maskedKey),
		zap.String("source", creds.Source))
	checkNum++

	source := creds.Source
	if source == "" {
		source = "unknown"
	}
	observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking credential source... ✅ %s", checkNum, totalChecks, source),
		zap.String("credential_source", source))

	return allChecks
}

// maskAccessKey masks all but the last 4 characters of an access key.
func maskAccessKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

// printAWSCredentialsHelp prints help for configuring AWS credentials.
func printAWSCredentialsHelp() {
	observability.CLILogger.Info("")
	observability.CLILogger.Info("To configure AWS credentials for the artifact mirror:")
	observability.CLILogger.Info("  1. Set AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY environment variables, or")
	observability.CLILogger.Info("  2. Run 'aws configure' and set mirror.profile, or")
	observability.CLILogger.Info("  3. Use an IAM role when running on AWS infrastructure")
	observability.CLILogger.Info("")
	observability.CLILogger.Info("For S3-compatible storage (MinIO, Wasabi, etc.), also set:")
	observability.CLILogger.Info("  - mirror.endpoint (MQLFORGE_MIRROR_ENDPOINT)")
	observability.CLILogger.Info("")
}

// Package observability owns the process-wide zap loggers.
package observability

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logging profiles.
const (
	ProfileStructured = "STRUCTURED"
	ProfileSimple     = "SIMPLE"
)

// Per-level log file names written under LogOptions.Dir.
const (
	InfoLogFile  = "info.log"
	WarnLogFile  = "warn.log"
	ErrorLogFile = "error.log"
)

var (
	// CLILogger is the human-oriented logger used by commands.
	CLILogger = zap.NewNop()

	// ServerLogger is the structured logger used by the HTTP service and the
	// compile pipeline. It stays a no-op until InitServerLogger runs.
	ServerLogger = zap.NewNop()
)

// LogOptions configures the server logger.
type LogOptions struct {
	Level   string
	Profile string

	// Dir enables per-level rotating files. Each file receives exactly one
	// level: info.log only info, warn.log only warn, error.log error and above.
	Dir        string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// InitCLILogger configures CLILogger for terminal output.
func InitCLILogger(appName string, verbose bool) {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.TimeKey = ""
	encCfg.LevelKey = ""
	encCfg.CallerKey = ""
	encCfg.NameKey = ""
	if verbose {
		encCfg.LevelKey = "L"
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stderr), level)
	CLILogger = zap.New(core).Named(appName)
}

// InitServerLogger configures ServerLogger and returns it.
func InitServerLogger(appName string, opts LogOptions) (*zap.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	encoder := newEncoder(opts.Profile)
	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), level),
	}

	if strings.TrimSpace(opts.Dir) != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		files := []struct {
			name   string
			enable zapcore.LevelEnabler
		}{
			{InfoLogFile, exactLevel(level, zapcore.InfoLevel)},
			{WarnLogFile, exactLevel(level, zapcore.WarnLevel)},
			{ErrorLogFile, zap.LevelEnablerFunc(func(l zapcore.Level) bool {
				return l >= zapcore.ErrorLevel && level.Enabled(l)
			})},
		}
		for _, f := range files {
			sink := zapcore.AddSync(&lumberjack.Logger{
				Filename:   filepath.Join(opts.Dir, f.name),
				MaxSize:    opts.MaxSizeMB,
				MaxBackups: opts.MaxBackups,
				MaxAge:     opts.MaxAgeDays,
			})
			cores = append(cores, zapcore.NewCore(encoder, sink, f.enable))
		}
	}

	ServerLogger = zap.New(zapcore.NewTee(cores...), zap.AddCaller()).
		With(zap.String("service", appName))
	return ServerLogger, nil
}

// ParseLevel maps a config level name to a zap level. Empty means info.
func ParseLevel(s string) (zapcore.Level, error) {
	if strings.TrimSpace(s) == "" {
		return zapcore.InfoLevel, nil
	}
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(s)))); err != nil {
		return level, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

// Sync flushes both loggers.
func Sync() {
	_ = CLILogger.Sync()
	_ = ServerLogger.Sync()
}

func exactLevel(min, want zapcore.Level) zap.LevelEnablerFunc {
	return func(l zapcore.Level) bool {
		return l == want && min.Enabled(l)
	}
}

func newEncoder(profile string) zapcore.Encoder {
	if strings.EqualFold(profile, ProfileSimple) {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
		cfg.ConsoleSeparator = " "
		return zapcore.NewConsoleEncoder(cfg)
	}
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "timestamp"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return zapcore.NewJSONEncoder(cfg)
}

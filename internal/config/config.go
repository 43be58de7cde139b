// Package config loads service configuration from defaults, an optional
// mqlforge.yaml file, MQLFORGE_* environment variables and runtime overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/3leaps/mqlforge/internal/observability"
)

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Health   HealthConfig   `mapstructure:"health"`
	Compiler CompilerConfig `mapstructure:"compiler"`
	Jobs     JobsConfig     `mapstructure:"jobs"`
	Mirror   MirrorConfig   `mapstructure:"mirror"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`

	// CompileRateLimit is the sustained POST /compile rate per second.
	// Zero disables admission control.
	CompileRateLimit float64 `mapstructure:"compile_rate_limit"`
	CompileRateBurst int     `mapstructure:"compile_rate_burst"`

	CORSOrigins []string `mapstructure:"cors_origins"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type AuthConfig struct {
	// APIKey is the bearer token required on authenticated routes. An empty
	// key rejects every token.
	APIKey string `mapstructure:"api_key"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Profile    string `mapstructure:"profile"`
	Dir        string `mapstructure:"dir"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// Options converts the section into logger options.
func (l LoggingConfig) Options() observability.LogOptions {
	return observability.LogOptions{
		Level:      l.Level,
		Profile:    l.Profile,
		Dir:        l.Dir,
		MaxSizeMB:  l.MaxSizeMB,
		MaxBackups: l.MaxBackups,
		MaxAgeDays: l.MaxAgeDays,
	}
}

type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type CompilerConfig struct {
	Timeout         time.Duration `mapstructure:"timeout"`
	TempDir         string        `mapstructure:"temp_dir"`
	CompiledDir     string        `mapstructure:"compiled_dir"`
	MQL4Executable  string        `mapstructure:"mql4_executable"`
	MQL5Executable  string        `mapstructure:"mql5_executable"`
	SerializeJobIDs bool          `mapstructure:"serialize_job_ids"`
}

type JobsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

// Mirror providers.
const (
	MirrorNone = ""
	MirrorFile = "file"
	MirrorS3   = "s3"
)

type MirrorConfig struct {
	Provider       string `mapstructure:"provider"`
	BaseDir        string `mapstructure:"base_dir"`
	Bucket         string `mapstructure:"bucket"`
	Region         string `mapstructure:"region"`
	Endpoint       string `mapstructure:"endpoint"`
	Profile        string `mapstructure:"profile"`
	Prefix         string `mapstructure:"prefix"`
	ForcePathStyle bool   `mapstructure:"force_path_style"`
}

// Enabled reports whether a mirror provider is configured.
func (m MirrorConfig) Enabled() bool {
	return strings.TrimSpace(m.Provider) != MirrorNone
}

// Validate checks cross-field constraints that defaults cannot guarantee.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.max_body_bytes must be positive")
	}
	if c.Server.CompileRateLimit < 0 {
		return fmt.Errorf("server.compile_rate_limit must not be negative")
	}
	if c.Compiler.Timeout <= 0 {
		return fmt.Errorf("compiler.timeout must be positive")
	}
	if strings.TrimSpace(c.Compiler.TempDir) == "" || strings.TrimSpace(c.Compiler.CompiledDir) == "" {
		return fmt.Errorf("compiler.temp_dir and compiler.compiled_dir are required")
	}
	if _, err := observability.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	switch strings.ToUpper(c.Logging.Profile) {
	case observability.ProfileStructured, observability.ProfileSimple:
	default:
		return fmt.Errorf("logging.profile %q must be STRUCTURED or SIMPLE", c.Logging.Profile)
	}
	switch strings.ToLower(strings.TrimSpace(c.Mirror.Provider)) {
	case MirrorNone:
	case MirrorFile:
		if strings.TrimSpace(c.Mirror.BaseDir) == "" {
			return fmt.Errorf("mirror.base_dir is required for the file mirror")
		}
	case MirrorS3:
		if strings.TrimSpace(c.Mirror.Bucket) == "" {
			return fmt.Errorf("mirror.bucket is required for the s3 mirror")
		}
	default:
		return fmt.Errorf("mirror.provider %q must be file or s3", c.Mirror.Provider)
	}
	return nil
}

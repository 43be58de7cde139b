package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Identity names the application for env prefixes and config lookup.
type Identity struct {
	BinaryName string
	EnvPrefix  string
	ConfigName string
}

// DefaultIdentity returns the mqlforge identity.
func DefaultIdentity() Identity {
	return Identity{BinaryName: "mqlforge", EnvPrefix: "MQLFORGE", ConfigName: "mqlforge"}
}

var (
	configMu    sync.RWMutex
	appIdentity *Identity
	appConfig   *Config
	configFile  string
)

// envSpec maps an environment variable onto a config path. Legacy names are
// consulted after Name.
type envSpec struct {
	Name   string
	Path   string
	Legacy []string
}

// SetConfigFile forces Load to read path instead of searching for
// mqlforge.yaml. An empty path restores the search.
func SetConfigFile(path string) {
	configMu.Lock()
	defer configMu.Unlock()
	configFile = path
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	dataDir := gfconfig.GetAppDataDir(DefaultIdentity().BinaryName)

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3001)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "90s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.max_body_bytes", 10<<20)
	v.SetDefault("server.compile_rate_limit", 0)
	v.SetDefault("server.compile_rate_burst", 1)
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("auth.api_key", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "STRUCTURED")
	v.SetDefault("logging.dir", "")
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 30)

	v.SetDefault("health.enabled", true)

	v.SetDefault("compiler.timeout", "30s")
	v.SetDefault("compiler.temp_dir", filepath.Join(dataDir, "temp"))
	v.SetDefault("compiler.compiled_dir", filepath.Join(dataDir, "compiled"))
	v.SetDefault("compiler.mql4_executable", `C:\Program Files\MetaTrader\metaeditor.exe`)
	v.SetDefault("compiler.mql5_executable", `C:\Program Files\MetaTrader 5\metaeditor64.exe`)
	v.SetDefault("compiler.serialize_job_ids", false)

	v.SetDefault("jobs.enabled", true)
	v.SetDefault("jobs.dir", filepath.Join(dataDir, "jobs"))

	v.SetDefault("mirror.provider", "")
	v.SetDefault("mirror.base_dir", "")
	v.SetDefault("mirror.bucket", "")
	v.SetDefault("mirror.region", "")
	v.SetDefault("mirror.endpoint", "")
	v.SetDefault("mirror.profile", "")
	v.SetDefault("mirror.prefix", "")
	v.SetDefault("mirror.force_path_style", false)
}

// Load builds the configuration. Precedence, highest first: overrides,
// environment, config file, defaults. The result becomes GetConfig's value.
func Load(ctx context.Context, overrides ...map[string]any) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	configMu.Lock()
	defer configMu.Unlock()

	if appIdentity == nil {
		id := DefaultIdentity()
		appIdentity = &id
	}

	v := viper.New()
	SetDefaults(v)

	if err := readConfigFile(v, configFile, userConfigPaths(appIdentity)); err != nil {
		return nil, err
	}

	for _, spec := range envSpecsFor(appIdentity) {
		names := append([]string{spec.Name}, spec.Legacy...)
		if err := v.BindEnv(append([]string{spec.Path}, names...)...); err != nil {
			return nil, fmt.Errorf("bind %s: %w", spec.Name, err)
		}
	}

	for _, o := range overrides {
		flat := make(map[string]any)
		flatten("", o, flat)
		keys := make([]string, 0, len(flat))
		for k := range flat {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			v.Set(k, flat[k])
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	appConfig = &cfg
	return &cfg, nil
}

// GetConfig returns the most recently loaded configuration, or nil.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

func readConfigFile(v *viper.Viper, explicit string, searchPaths []string) error {
	if explicit != "" {
		v.SetConfigFile(explicit)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", explicit, err)
		}
		return nil
	}

	v.SetConfigName(DefaultIdentity().ConfigName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	for _, p := range searchPaths {
		v.AddConfigPath(p)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func getUserConfigPaths() []string {
	configMu.RLock()
	defer configMu.RUnlock()
	return userConfigPaths(appIdentity)
}

func userConfigPaths(id *Identity) []string {
	if id == nil {
		return []string{}
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return []string{}
	}
	return []string{filepath.Join(dir, id.ConfigName)}
}

func getEnvSpecs() []envSpec {
	configMu.RLock()
	defer configMu.RUnlock()
	return envSpecsFor(appIdentity)
}

func envSpecsFor(id *Identity) []envSpec {
	if id == nil {
		return []envSpec{}
	}
	p := id.EnvPrefix + "_"
	return []envSpec{
		{Name: p + "HOST", Path: "server.host"},
		{Name: p + "PORT", Path: "server.port", Legacy: []string{"PORT"}},
		{Name: p + "READ_TIMEOUT", Path: "server.read_timeout"},
		{Name: p + "WRITE_TIMEOUT", Path: "server.write_timeout"},
		{Name: p + "IDLE_TIMEOUT", Path: "server.idle_timeout"},
		{Name: p + "SHUTDOWN_TIMEOUT", Path: "server.shutdown_timeout"},
		{Name: p + "MAX_BODY_BYTES", Path: "server.max_body_bytes"},
		{Name: p + "COMPILE_RATE_LIMIT", Path: "server.compile_rate_limit"},
		{Name: p + "COMPILE_RATE_BURST", Path: "server.compile_rate_burst"},
		{Name: p + "CORS_ORIGINS", Path: "server.cors_origins"},
		{Name: p + "API_KEY", Path: "auth.api_key", Legacy: []string{"API_Key"}},
		{Name: p + "LOG_LEVEL", Path: "logging.level"},
		{Name: p + "LOG_PROFILE", Path: "logging.profile"},
		{Name: p + "LOG_DIR", Path: "logging.dir"},
		{Name: p + "HEALTH_ENABLED", Path: "health.enabled"},
		{Name: p + "COMPILE_TIMEOUT", Path: "compiler.timeout"},
		{Name: p + "TEMP_DIR", Path: "compiler.temp_dir"},
		{Name: p + "COMPILED_DIR", Path: "compiler.compiled_dir"},
		{Name: p + "MQL4_EXECUTABLE", Path: "compiler.mql4_executable"},
		{Name: p + "MQL5_EXECUTABLE", Path: "compiler.mql5_executable"},
		{Name: p + "SERIALIZE_JOB_IDS", Path: "compiler.serialize_job_ids"},
		{Name: p + "JOBS_ENABLED", Path: "jobs.enabled"},
		{Name: p + "JOBS_DIR", Path: "jobs.dir"},
		{Name: p + "MIRROR_PROVIDER", Path: "mirror.provider"},
		{Name: p + "MIRROR_DIR", Path: "mirror.base_dir"},
		{Name: p + "MIRROR_BUCKET", Path: "mirror.bucket"},
		{Name: p + "MIRROR_REGION", Path: "mirror.region"},
		{Name: p + "MIRROR_ENDPOINT", Path: "mirror.endpoint"},
		{Name: p + "MIRROR_PROFILE", Path: "mirror.profile"},
		{Name: p + "MIRROR_PREFIX", Path: "mirror.prefix"},
		{Name: p + "MIRROR_FORCE_PATH_STYLE", Path: "mirror.force_path_style"},
	}
}

// flatten turns nested override maps into dotted viper keys.
func flatten(prefix string, in map[string]any, out map[string]any) {
	for k, val := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := val.(map[string]any); ok {
			flatten(key, nested, out)
			continue
		}
		out[key] = val
	}
}

package cmd

import (
	"errors"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetVersionInfo(t *testing.T) {
	// Save original values
	origVersion := versionInfo.Version
	origCommit := versionInfo.Commit
	origBuildDate := versionInfo.BuildDate
	defer func() {
		versionInfo.Version = origVersion
		versionInfo.Commit = origCommit
		versionInfo.BuildDate = origBuildDate
	}()

	tests := []struct {
		name      string
		version   string
		commit    string
		buildDate string
	}{
		{
			name:      "set all values",
			version:   "1.0.0",
			commit:    "abc123",
			buildDate: "2024-01-15",
		},
		{
			name:      "set dev version",
			version:   "dev",
			commit:    "HEAD",
			buildDate: "unknown",
		},
		{
			name:      "set empty values",
			version:   "",
			commit:    "",
			buildDate: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			SetVersionInfo(tt.version, tt.commit, tt.buildDate)

			assert.Equal(t, tt.version, versionInfo.Version)
			assert.Equal(t, tt.commit, versionInfo.Commit)
			assert.Equal(t, tt.buildDate, versionInfo.BuildDate)
		})
	}
}

func TestGetAppIdentity(t *testing.T) {
	t.Run("returns nil before init", func(t *testing.T) {
		// Save and restore
		orig := appIdentity
		appIdentity = nil
		defer func() { appIdentity = orig }()

		result := GetAppIdentity()
		assert.Nil(t, result)
	})

	t.Run("returns identity after set", func(t *testing.T) {
		// If appIdentity is already set from other tests, verify it returns
		if appIdentity != nil {
			result := GetAppIdentity()
			assert.NotNil(t, result)
			assert.Equal(t, appIdentity, result)
		}
	})
}

func TestSetDefaults(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	setDefaults()

	// Server defaults
	assert.Equal(t, "0.0.0.0", viper.GetString("server.host"))
	assert.Equal(t, 3001, viper.GetInt("server.port"))
	assert.Equal(t, "30s", viper.GetString("server.read_timeout"))
	assert.Equal(t, "90s", viper.GetString("server.write_timeout"))
	assert.Equal(t, "120s", viper.GetString("server.idle_timeout"))
	assert.Equal(t, "10s", viper.GetString("server.shutdown_timeout"))
	assert.Equal(t, int64(10<<20), viper.GetInt64("server.max_body_bytes"))

	// Logging defaults
	assert.Equal(t, "info", viper.GetString("logging.level"))
	assert.Equal(t, "STRUCTURED", viper.GetString("logging.profile"))

	// Health defaults
	assert.True(t, viper.GetBool("health.enabled"))

	// Compiler defaults
	assert.Equal(t, "30s", viper.GetString("compiler.timeout"))
	assert.False(t, viper.GetBool("compiler.serialize_job_ids"))
	assert.NotEmpty(t, viper.GetString("compiler.temp_dir"))
	assert.NotEmpty(t, viper.GetString("compiler.compiled_dir"))

	// Mirror is off by default
	assert.Empty(t, viper.GetString("mirror.provider"))
}

func TestExitError(t *testing.T) {
	cause := errors.New("boom")
	err := exitError(7, "Something failed", cause)

	var ce *commandError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 7, ce.code)
	assert.Equal(t, "Something failed: boom", err.Error())
	assert.ErrorIs(t, err, cause)

	assert.Equal(t, "bare", exitError(2, "bare", nil).Error())
}

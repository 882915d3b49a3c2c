package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nestedConfig struct {
	Token string `env:"TEST_NESTED_TOKEN" yaml:"token"`
}

type testConfig struct {
	Name     string        `env:"TEST_NAME" yaml:"name" default:"responder"`
	Port     int           `env:"TEST_PORT" yaml:"port" default:"8080"`
	Cooldown time.Duration `env:"TEST_COOLDOWN" yaml:"cooldown" default:"5s"`
	Debug    bool          `env:"TEST_DEBUG" yaml:"debug"`
	Origins  []string      `env:"TEST_ORIGINS" yaml:"origins" default:"a,b"`
	Nested   nestedConfig  `yaml:"nested,inline"`
}

type requiredConfig struct {
	APIKey string `env:"TEST_REQUIRED_API_KEY" yaml:"api_key" required:"true"`
}

type validatedConfig struct {
	Port int `env:"TEST_VALIDATED_PORT" yaml:"port" default:"8080"`
}

func (c validatedConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return errors.New("port out of range")
	}
	return nil
}

func TestDefaultsApplied(t *testing.T) {
	var cfg testConfig
	require.NoError(t, GetConfigFromEnvVars(&cfg))

	assert.Equal(t, "responder", cfg.Name)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 5*time.Second, cfg.Cooldown)
	assert.False(t, cfg.Debug)
	assert.Equal(t, []string{"a", "b"}, cfg.Origins)
}

func TestEnvOverridesDefaults(t *testing.T) {
	t.Setenv("TEST_NAME", "other")
	t.Setenv("TEST_PORT", "9000")
	t.Setenv("TEST_COOLDOWN", "250ms")
	t.Setenv("TEST_DEBUG", "true")
	t.Setenv("TEST_NESTED_TOKEN", "secret")

	var cfg testConfig
	require.NoError(t, GetConfigFromEnvVars(&cfg))

	assert.Equal(t, "other", cfg.Name)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, 250*time.Millisecond, cfg.Cooldown)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "secret", cfg.Nested.Token)
}

func TestRequiredFieldMissing(t *testing.T) {
	var cfg requiredConfig
	err := GetConfigFromEnvVars(&cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TEST_REQUIRED_API_KEY")
}

func TestInvalidEnvValue(t *testing.T) {
	t.Setenv("TEST_PORT", "not-a-number")

	var cfg testConfig
	err := GetConfigFromEnvVars(&cfg)
	require.Error(t, err)
	assert.Zero(t, cfg, "config must be reset on failure")
}

func TestValidatorHook(t *testing.T) {
	t.Setenv("TEST_VALIDATED_PORT", "70000")

	var cfg validatedConfig
	err := GetConfigFromEnvVars(&cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port out of range")
}

func TestYAMLFileWithEnvOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: from-file\nport: 3000\n"), 0o600))

	t.Setenv("TEST_PORT", "4000")

	var cfg testConfig
	require.NoError(t, GetConfig(&cfg, path, false))

	assert.Equal(t, "from-file", cfg.Name)
	assert.Equal(t, 4000, cfg.Port, "env must win over file")
}

func TestMissingFileFallsBackWhenAllowed(t *testing.T) {
	var cfg testConfig
	require.NoError(t, GetConfig(&cfg, "/does/not/exist.yaml", true))
	assert.Equal(t, "responder", cfg.Name)

	var strict testConfig
	assert.Error(t, GetConfig(&strict, "/does/not/exist.yaml", false))
}

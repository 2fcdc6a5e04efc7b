package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleConfig struct {
	HTTP struct {
		Port string `yaml:"port"`
	} `yaml:"http"`
	Sweeper struct {
		Interval time.Duration `yaml:"interval"`
	} `yaml:"sweeper"`
	Seed struct {
		Terminals []string `yaml:"terminals" env:"SAMPLE_SEED_TERMINALS"`
	} `yaml:"seed"`
	Secret  string `yaml:"secret" env:"SAMPLE_SECRET"`
	Verbose bool   `yaml:"verbose"`
	Skipped string `env:"-"`
}

func TestLoadConfigRejectsNonPointer(t *testing.T) {
	require.Error(t, LoadConfig(nil))
	require.Error(t, LoadConfig(sampleConfig{}))
}

func TestLoadConfigReadsYAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := []byte("http:\n  port: \"9000\"\nsweeper:\n  interval: 2s\nseed:\n  terminals: [PC-01, PC-02]\nsecret: from-file\n")
	require.NoError(t, os.WriteFile(path, body, 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("SAMPLE_SECRET", "from-env")
	t.Setenv("HTTP_PORT", "9100")

	var cfg sampleConfig
	require.NoError(t, LoadConfig(&cfg))

	assert.Equal(t, "9100", cfg.HTTP.Port)
	assert.Equal(t, 2*time.Second, cfg.Sweeper.Interval)
	assert.Equal(t, []string{"PC-01", "PC-02"}, cfg.Seed.Terminals)
	assert.Equal(t, "from-env", cfg.Secret)
}

func TestLoadConfigEnvDurationsAndLists(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("SWEEPER_INTERVAL", "250ms")
	t.Setenv("SAMPLE_SEED_TERMINALS", " A , B,,C ")
	t.Setenv("VERBOSE", "true")
	t.Setenv("SKIPPED", "ignored")

	var cfg sampleConfig
	require.NoError(t, LoadConfig(&cfg))

	assert.Equal(t, 250*time.Millisecond, cfg.Sweeper.Interval)
	assert.Equal(t, []string{"A", "B", "C"}, cfg.Seed.Terminals)
	assert.True(t, cfg.Verbose)
	assert.Empty(t, cfg.Skipped)
}

func TestLoadConfigReportsBadValues(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("SWEEPER_INTERVAL", "soon")

	var cfg sampleConfig
	err := LoadConfig(&cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SWEEPER_INTERVAL")
}

func TestLoadConfigMissingFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	var cfg sampleConfig
	require.Error(t, LoadConfig(&cfg))
}

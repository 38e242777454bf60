package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		App:     AppConfig{Environment: "development"},
		Logger:  LoggerConfig{Level: "info"},
		Storage: StorageConfig{DataPath: "/var/lib/lutrin", Backend: BackendBadger},
		Gateway: GatewayConfig{BaseURL: "http://lutrin.local:5000", RPS: 5, Burst: 5},
		Engines: EngineConfig{OCR: "tesseract", TTS: "piper"},
		Monitor: MonitorConfig{Interval: 30 * time.Second, ProbeTimeout: 5 * time.Second},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_AllEnvironments(t *testing.T) {
	tests := []struct {
		env   string
		valid bool
	}{
		{"development", true},
		{"staging", true},
		{"production", true},
		{"test", false},
		{"", false},
		{"DEVELOPMENT", false},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			cfg := validConfig()
			cfg.App.Environment = tt.env

			err := cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"log level", func(c *Config) { c.Logger.Level = "verbose" }, "invalid log level"},
		{"data path", func(c *Config) { c.Storage.DataPath = "" }, "data path"},
		{"backend", func(c *Config) { c.Storage.Backend = "postgres" }, "invalid store backend"},
		{"gateway url", func(c *Config) { c.Gateway.BaseURL = "lutrin" }, "invalid gateway url"},
		{"engines", func(c *Config) { c.Engines.TTS = "" }, "TTS_ENGINE"},
		{"interval", func(c *Config) { c.Monitor.Interval = 0 }, "monitor interval"},
		{"probe timeout", func(c *Config) { c.Monitor.ProbeTimeout = time.Minute }, "probe timeout"},
		{"rate", func(c *Config) { c.Gateway.RPS = 0 }, "rate limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestExpandPaths_Defaults(t *testing.T) {
	cfg := validConfig()
	cfg.Storage.DataPath = ""

	require.NoError(t, cfg.expandPaths())

	homeDir, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(homeDir, "Lutrin", "data"), cfg.Storage.DataPath)
	assert.Equal(t, filepath.Join(homeDir, "Lutrin", "data", "cache", "audio"), cfg.Storage.AudioCachePath)
	assert.Empty(t, cfg.Inbox.Path)
}

func TestExpandPaths_TildeAndRelative(t *testing.T) {
	cfg := validConfig()
	cfg.Storage.DataPath = "~/reader"
	cfg.Inbox.Path = "inbox"

	require.NoError(t, cfg.expandPaths())

	homeDir, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(homeDir, "reader"), cfg.Storage.DataPath)
	assert.True(t, filepath.IsAbs(cfg.Inbox.Path))
}

func TestGetConfigValue_Precedence(t *testing.T) {
	assert.Equal(t, "flag-value", getConfigValue("flag-value", "LUTRIN_TEST_KEY", "default-value"))

	t.Setenv("LUTRIN_TEST_KEY", "env-value")
	assert.Equal(t, "env-value", getConfigValue("", "LUTRIN_TEST_KEY", "default-value"))

	assert.Equal(t, "default-value", getConfigValue("", "LUTRIN_NONEXISTENT_KEY", "default-value"))
}

func TestTypedConfigValues(t *testing.T) {
	t.Setenv("LUTRIN_TEST_BOOL", "Yes")
	t.Setenv("LUTRIN_TEST_INT", "12")
	t.Setenv("LUTRIN_TEST_FLOAT", "2.5")
	t.Setenv("LUTRIN_TEST_BAD_INT", "twelve")

	assert.True(t, getBoolConfigValue("", "LUTRIN_TEST_BOOL", false))
	assert.Equal(t, 12, getIntConfigValue("", "LUTRIN_TEST_INT", 1))
	assert.InDelta(t, 2.5, getFloatConfigValue("", "LUTRIN_TEST_FLOAT", 1), 0.0001)
	assert.Equal(t, 1, getIntConfigValue("", "LUTRIN_TEST_BAD_INT", 1))
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"http://a", "http://b"}, splitList(" http://a, ,http://b "))
	assert.Nil(t, splitList(""))
}

func TestLoadEnvFile_ValidFile(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")

	content := `# Lutrin appliance
OCR_ENGINE=easyocr
# Comment line
GATEWAY_URL="http://lutrin.local:5000"
TTS_ENGINE='gtts'
`
	require.NoError(t, os.WriteFile(envFile, []byte(content), 0o644))

	t.Setenv("OCR_ENGINE", "")
	t.Setenv("GATEWAY_URL", "")
	t.Setenv("TTS_ENGINE", "")

	require.NoError(t, loadEnvFile(envFile))

	assert.Equal(t, "easyocr", os.Getenv("OCR_ENGINE"))
	assert.Equal(t, "http://lutrin.local:5000", os.Getenv("GATEWAY_URL"))
	assert.Equal(t, "gtts", os.Getenv("TTS_ENGINE"))
}

func TestLoadEnvFile_InvalidFormat(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")

	content := `VALID_KEY=valid_value
INVALID LINE WITHOUT EQUALS
`
	require.NoError(t, os.WriteFile(envFile, []byte(content), 0o644))

	err := loadEnvFile(envFile)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestLoadEnvFile_NonExistentFile(t *testing.T) {
	assert.Error(t, loadEnvFile("/nonexistent/file/.env"))
}

func TestLoadEnvFile_ExistingEnvVarsNotOverwritten(t *testing.T) {
	t.Setenv("LUTRIN_TEST_VAR", "original-value")

	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte(`LUTRIN_TEST_VAR=new-value`), 0o644))

	require.NoError(t, loadEnvFile(envFile))

	assert.Equal(t, "original-value", os.Getenv("LUTRIN_TEST_VAR"))
}

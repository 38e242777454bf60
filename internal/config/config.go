// Package config provides application configuration management with support for environment variables, command-line flags, and .env files.
package config

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Version is the daemon version, overridden at build time with
// -ldflags "-X github.com/lutrinapp/lutrin/internal/config.Version=...".
var Version = "0.1.0-dev"

// Store backends.
const (
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
)

// Config holds the application configuration.
type Config struct {
	App     AppConfig
	Logger  LoggerConfig
	Storage StorageConfig
	Gateway GatewayConfig
	Engines EngineConfig
	Monitor MonitorConfig
	Inbox   InboxConfig
	Server  ServerConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// StorageConfig holds local persistence configuration.
type StorageConfig struct {
	DataPath       string // Root for the library database, search index and caches
	Backend        string // badger or sqlite (default: badger)
	AudioCachePath string // Locally-owned TTS clips (default: {data}/cache/audio)
}

// GatewayConfig holds Remote Processing Gateway client configuration.
type GatewayConfig struct {
	BaseURL string
	APIKey  string
	// Timeout bounds each gateway call. Zero means wait for the gateway.
	Timeout time.Duration
	RPS     float64
	Burst   int
}

// EngineConfig holds the externally selected OCR and TTS engine identifiers.
// Both are passed through to the gateway opaquely.
type EngineConfig struct {
	OCR string
	TTS string
}

// MonitorConfig holds connectivity monitor configuration.
type MonitorConfig struct {
	Interval     time.Duration // Probe interval (default: 30s)
	ProbeTimeout time.Duration // Per-probe timeout (default: 5s)
}

// InboxConfig holds inbox folder ingestion configuration.
type InboxConfig struct {
	// Path is watched for dropped e-books, one sub-directory per owner. Empty disables the watcher.
	Path string
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Name          string
	Port          string        // Server port (default: 8080)
	ReadTimeout   time.Duration // HTTP read timeout (default: 15s)
	WriteTimeout  time.Duration // HTTP write timeout (default: 0, SSE streams stay open)
	IdleTimeout   time.Duration // HTTP idle timeout (default: 60s)
	AdvertiseMDNS bool          // Advertise via mDNS/Zeroconf (default: false)
	CORSOrigins   []string
}

// LoadConfig loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func LoadConfig() (*Config, error) {
	env := flag.String("env", "", "Environment (development, staging, production)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	dataPath := flag.String("data-path", "", "Base path for local data")
	backend := flag.String("store-backend", "", "Library store backend (badger, sqlite)")
	audioCachePath := flag.String("audio-cache-path", "", "Path for generated audio clips")

	gatewayURL := flag.String("gateway-url", "", "Base URL of the processing gateway")
	gatewayTimeout := flag.String("gateway-timeout", "", "Per-call gateway timeout (default: none)")
	ocrEngine := flag.String("ocr-engine", "", "OCR engine identifier")
	ttsEngine := flag.String("tts-engine", "", "TTS engine identifier")

	monitorInterval := flag.String("monitor-interval", "", "Connectivity probe interval (default: 30s)")
	probeTimeout := flag.String("probe-timeout", "", "Connectivity probe timeout (default: 5s)")

	inboxPath := flag.String("inbox-path", "", "Inbox folder watched for e-books")

	serverPort := flag.String("port", "", "Server port (default: 8080)")
	advertiseMDNS := flag.String("advertise-mdns", "", "Advertise via mDNS/Zeroconf (default: false)")

	envFile := flag.String("env-file", ".env", "Path to .env file")

	flag.Parse()

	// Missing .env is fine.
	_ = loadEnvFile(*envFile)

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", "info"),
		},
		Storage: StorageConfig{
			DataPath:       getConfigValue(*dataPath, "DATA_PATH", ""),
			Backend:        strings.ToLower(getConfigValue(*backend, "STORE_BACKEND", BackendBadger)),
			AudioCachePath: getConfigValue(*audioCachePath, "AUDIO_CACHE_PATH", ""),
		},
		Gateway: GatewayConfig{
			BaseURL: strings.TrimRight(getConfigValue(*gatewayURL, "GATEWAY_URL", "http://localhost:5000"), "/"),
			APIKey:  getConfigValue("", "GATEWAY_API_KEY", ""),
			RPS:     getFloatConfigValue("", "GATEWAY_RPS", 5),
			Burst:   getIntConfigValue("", "GATEWAY_BURST", 5),
		},
		Engines: EngineConfig{
			OCR: getConfigValue(*ocrEngine, "OCR_ENGINE", "tesseract"),
			TTS: getConfigValue(*ttsEngine, "TTS_ENGINE", "piper"),
		},
		Inbox: InboxConfig{
			Path: getConfigValue(*inboxPath, "INBOX_PATH", ""),
		},
		Server: ServerConfig{
			Name:          getConfigValue("", "SERVER_NAME", "Lutrin"),
			Port:          getConfigValue(*serverPort, "SERVER_PORT", "8080"),
			AdvertiseMDNS: getBoolConfigValue(*advertiseMDNS, "ADVERTISE_MDNS", false),
			CORSOrigins:   splitList(getConfigValue("", "CORS_ORIGINS", "*")),
		},
	}

	durations := []struct {
		dest  *time.Duration
		flag  string
		key   string
		value string
	}{
		{&cfg.Gateway.Timeout, *gatewayTimeout, "GATEWAY_TIMEOUT", "0s"},
		{&cfg.Monitor.Interval, *monitorInterval, "MONITOR_INTERVAL", "30s"},
		{&cfg.Monitor.ProbeTimeout, *probeTimeout, "PROBE_TIMEOUT", "5s"},
		{&cfg.Server.ReadTimeout, "", "SERVER_READ_TIMEOUT", "15s"},
		{&cfg.Server.WriteTimeout, "", "SERVER_WRITE_TIMEOUT", "0s"},
		{&cfg.Server.IdleTimeout, "", "SERVER_IDLE_TIMEOUT", "60s"},
	}
	for _, d := range durations {
		raw := getConfigValue(d.flag, d.key, d.value)
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", d.key, raw, err)
		}
		*d.dest = parsed
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %q (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Storage.DataPath == "" {
		return errors.New("data path cannot be empty after expansion")
	}

	if c.Storage.Backend != BackendBadger && c.Storage.Backend != BackendSQLite {
		return fmt.Errorf("invalid store backend: %s (must be badger or sqlite)", c.Storage.Backend)
	}

	u, err := url.Parse(c.Gateway.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid gateway url: %q", c.Gateway.BaseURL)
	}

	if c.Engines.OCR == "" || c.Engines.TTS == "" {
		return errors.New("OCR_ENGINE and TTS_ENGINE are required")
	}

	if c.Monitor.Interval <= 0 {
		return errors.New("monitor interval must be positive")
	}
	if c.Monitor.ProbeTimeout <= 0 || c.Monitor.ProbeTimeout > c.Monitor.Interval {
		return errors.New("probe timeout must be positive and not exceed the monitor interval")
	}

	if c.Gateway.RPS <= 0 || c.Gateway.Burst <= 0 {
		return errors.New("gateway rate limit must be positive")
	}

	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty, defaultPath is returned unchanged.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// expandPaths resolves the data, audio cache and inbox paths.
func (c *Config) expandPaths() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	if c.Storage.DataPath, err = expandPath(c.Storage.DataPath, filepath.Join(homeDir, "Lutrin", "data")); err != nil {
		return err
	}

	defaultCache := filepath.Join(c.Storage.DataPath, "cache", "audio")
	if c.Storage.AudioCachePath, err = expandPath(c.Storage.AudioCachePath, defaultCache); err != nil {
		return err
	}

	// Empty inbox path disables the watcher.
	if c.Inbox.Path, err = expandPath(c.Inbox.Path, ""); err != nil {
		return err
	}

	return nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}
	return defaultValue
}

// getBoolConfigValue returns a bool from flag, env var, or default.
// Accepts: "true", "1", "yes" (case-insensitive) as true; anything else is false.
func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	strValue = strings.ToLower(strValue)
	return strValue == "true" || strValue == "1" || strValue == "yes"
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	var result int
	if _, err := fmt.Sscanf(strValue, "%d", &result); err != nil {
		return defaultValue
	}
	return result
}

// getFloatConfigValue returns a float64 from flag, env var, or default.
func getFloatConfigValue(flagValue, envKey string, defaultValue float64) float64 {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	var result float64
	if _, err := fmt.Sscanf(strValue, "%g", &result); err != nil {
		return defaultValue
	}
	return result
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments).
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}

		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		// Real environment variables win over the file.
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}

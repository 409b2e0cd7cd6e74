package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config stores runtime configuration for the sync engine and its binaries.
type Config struct {
	Backend    BackendConfig
	Sync       SyncConfig
	Generation GenerationConfig
	Cache      CacheConfig
	Log        LogConfig

	// Source is the YAML file that was read, or "" when none was found.
	Source string
}

type BackendConfig struct {
	APIBaseURL     string
	WebSocketURL   string
	RequestTimeout time.Duration
}

type SyncConfig struct {
	ReconnectDelay time.Duration
	PollInterval   time.Duration
	SuccessTTL     time.Duration
	ErrorTTL       time.Duration
}

type GenerationConfig struct {
	StreamPath   string
	SystemPrompt string
}

type CacheConfig struct {
	Enabled bool
	Path    string
}

type LogConfig struct {
	File  string
	Level string
}

// fileConfig mirrors the optional YAML file. Zero values mean "not set".
type fileConfig struct {
	APIBase          string `yaml:"api_base"`
	WSURL            string `yaml:"ws_url"`
	RequestTimeoutMS int    `yaml:"request_timeout_ms"`
	ReconnectMS      int    `yaml:"reconnect_ms"`
	PollMS           int    `yaml:"poll_ms"`
	SuccessTTLMS     int    `yaml:"success_ttl_ms"`
	ErrorTTLMS       int    `yaml:"error_ttl_ms"`
	StreamPath       string `yaml:"stream_path"`
	SystemPrompt     string `yaml:"system_prompt"`
	CachePath        string `yaml:"cache_path"`
	LogFile          string `yaml:"log_file"`
	LogLevel         string `yaml:"log_level"`
}

const cacheDisabled = "off"

// Load resolves configuration from environment variables, then the YAML
// file, then defaults.
func Load() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.New("could not determine home directory")
	}

	configPath := strings.TrimSpace(os.Getenv("SCRIBEDESK_CONFIG"))
	explicit := configPath != ""
	if !explicit {
		configPath = filepath.Join(home, ".config", "scribedesk", "config.yaml")
	}

	file, found, err := readFile(configPath, explicit)
	if err != nil {
		return Config{}, err
	}

	defaultCache := filepath.Join(home, ".config", "scribedesk", "revisions.db")
	cachePath := envOrDefault("SCRIBEDESK_CACHE_PATH", firstNonEmpty(file.CachePath, defaultCache))

	cfg := Config{
		Backend: BackendConfig{
			APIBaseURL:     strings.TrimRight(envOrDefault("SCRIBEDESK_API_BASE", firstNonEmpty(file.APIBase, "http://localhost:8000")), "/"),
			WebSocketURL:   envOrDefault("SCRIBEDESK_WS_URL", file.WSURL),
			RequestTimeout: envOrDefaultDuration("SCRIBEDESK_REQUEST_TIMEOUT_MS", file.RequestTimeoutMS, 10000),
		},
		Sync: SyncConfig{
			ReconnectDelay: envOrDefaultDuration("SCRIBEDESK_RECONNECT_MS", file.ReconnectMS, 3000),
			PollInterval:   envOrDefaultDuration("SCRIBEDESK_POLL_MS", file.PollMS, 2000),
			SuccessTTL:     envOrDefaultDuration("SCRIBEDESK_SUCCESS_TTL_MS", file.SuccessTTLMS, 4000),
			ErrorTTL:       envOrDefaultDuration("SCRIBEDESK_ERROR_TTL_MS", file.ErrorTTLMS, 8000),
		},
		Generation: GenerationConfig{
			StreamPath:   envOrDefault("SCRIBEDESK_STREAM_PATH", firstNonEmpty(file.StreamPath, "/api/llm/chat/stream")),
			SystemPrompt: envOrDefault("SCRIBEDESK_SYSTEM_PROMPT", file.SystemPrompt),
		},
		Cache: CacheConfig{
			Enabled: !strings.EqualFold(cachePath, cacheDisabled),
			Path:    expandHome(cachePath, home),
		},
		Log: LogConfig{
			File:  expandHome(envOrDefault("SCRIBEDESK_LOG_FILE", file.LogFile), home),
			Level: envOrDefault("SCRIBEDESK_LOG_LEVEL", firstNonEmpty(file.LogLevel, "info")),
		},
	}
	if found {
		cfg.Source = configPath
	}
	if !cfg.Cache.Enabled {
		cfg.Cache.Path = ""
	}

	return cfg, nil
}

func readFile(path string, required bool) (fileConfig, bool, error) {
	var file fileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return file, false, nil
		}
		return file, false, fmt.Errorf("failed to read config file %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return file, false, fmt.Errorf("failed to parse config file %q: %w", path, err)
	}
	return file, true, nil
}

func expandHome(path string, home string) string {
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// envOrDefaultDuration reads a positive millisecond count from the environment,
// then from the file value, then the default.
func envOrDefaultDuration(key string, fileValue int, fallback int) time.Duration {
	if fileValue <= 0 {
		fileValue = fallback
	}
	ms := envOrDefaultInt(key, fileValue)
	if ms <= 0 {
		ms = fallback
	}
	return time.Duration(ms) * time.Millisecond
}

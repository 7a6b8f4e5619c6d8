package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"
)

const appName = "runpad"

// Config represents application configuration
type Config struct {
	// WorkspaceURL is the base URL of the workspace service. Empty means
	// local-only operation.
	WorkspaceURL string `json:"workspace_url"`
	// ExecutionURL is the base URL of the batch execution service (POST /run).
	ExecutionURL string `json:"execution_url"`
	// InteractiveURL is the websocket base URL; the language is appended as
	// the last path segment (ws://host/ws/python).
	InteractiveURL string `json:"interactive_url"`

	BatchTimeoutSeconds  int `json:"batch_timeout_seconds"`
	RemoteTimeoutSeconds int `json:"remote_timeout_seconds"`
	RemoteRetries        int `json:"remote_retries"` // tree fetch retries; negative disables
	ScrollbackLines      int `json:"scrollback_lines"`

	Prompt     string `json:"prompt"`
	DraftsPath string `json:"drafts_path"` // SQLite snapshot of local files; empty disables it
	ServeDir   string `json:"serve_dir"`             // directory served by `runpad serve`
	ServeAddr  string `json:"serve_addr"`

	MetricsAddr string `json:"metrics_addr,omitempty"` // e.g. "localhost:9464"; empty disables /metrics

	LogLevel string `json:"log_level"` // debug, info, warn, error, none
	LogPath  string `json:"-"`
}

func defaultConfigDir() string {
	switch runtime.GOOS {
	case "windows":
		if appData := strings.TrimSpace(os.Getenv("APPDATA")); appData != "" {
			return filepath.Join(appData, appName)
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, "AppData", "Roaming", appName)
	default:
		if configHome := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); configHome != "" {
			return filepath.Join(configHome, appName)
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".config", appName)
	}
}

func defaultStateDir() string {
	switch runtime.GOOS {
	case "linux":
		if stateHome := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); stateHome != "" {
			return filepath.Join(stateHome, appName)
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".local", "state", appName)
	case "windows":
		if localAppData := strings.TrimSpace(os.Getenv("LOCALAPPDATA")); localAppData != "" {
			return filepath.Join(localAppData, appName)
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, "AppData", "Local", appName)
	default:
		return defaultConfigDir()
	}
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		WorkspaceURL:         "http://localhost:8000",
		ExecutionURL:         "http://localhost:8000",
		InteractiveURL:       "ws://localhost:8000/ws",
		BatchTimeoutSeconds:  15,
		RemoteTimeoutSeconds: 5,
		RemoteRetries:        3,
		ScrollbackLines:      1000,
		Prompt:               "$ ",
		DraftsPath:           filepath.Join(defaultStateDir(), "drafts.db"),
		ServeDir:             "workspace",
		ServeAddr:            "localhost:8000",
		LogLevel:             "info",
		LogPath:              filepath.Join(defaultStateDir(), appName+".log"),
	}
}

// Load loads configuration from file. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, err
	}

	// Unmarshal into default config (overrides only provided fields)
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	defaults := DefaultConfig()
	if config.BatchTimeoutSeconds <= 0 {
		config.BatchTimeoutSeconds = defaults.BatchTimeoutSeconds
	}
	if config.RemoteTimeoutSeconds <= 0 {
		config.RemoteTimeoutSeconds = defaults.RemoteTimeoutSeconds
	}
	if config.ScrollbackLines <= 0 {
		config.ScrollbackLines = defaults.ScrollbackLines
	}
	if config.LogLevel == "" {
		config.LogLevel = defaults.LogLevel
	}
	if config.LogPath == "" {
		config.LogPath = defaults.LogPath
	}

	return config, config.Validate()
}

// ApplyEnv overrides fields from RUNPAD_* environment variables.
func (c *Config) ApplyEnv() {
	if v := strings.TrimSpace(os.Getenv("RUNPAD_LOG_LEVEL")); v != "" {
		c.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv("RUNPAD_LOG_PATH")); v != "" {
		c.LogPath = v
	}
	if v, ok := os.LookupEnv("RUNPAD_WORKSPACE_URL"); ok {
		c.WorkspaceURL = strings.TrimSpace(v)
	}
	if v := strings.TrimSpace(os.Getenv("RUNPAD_EXECUTION_URL")); v != "" {
		c.ExecutionURL = v
	}
	if v := strings.TrimSpace(os.Getenv("RUNPAD_INTERACTIVE_URL")); v != "" {
		c.InteractiveURL = v
	}
	if v, ok := os.LookupEnv("RUNPAD_DRAFTS_PATH"); ok {
		c.DraftsPath = strings.TrimSpace(v)
	}
	if v := strings.TrimSpace(os.Getenv("RUNPAD_BATCH_TIMEOUT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.BatchTimeoutSeconds = n
		}
	}
}

// Validate checks that configured URLs parse.
func (c *Config) Validate() error {
	for name, raw := range map[string]string{
		"workspace_url":   c.WorkspaceURL,
		"execution_url":   c.ExecutionURL,
		"interactive_url": c.InteractiveURL,
	} {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, raw, err)
		}
		if u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid %s %q: scheme and host are required", name, raw)
		}
	}
	return nil
}

// BatchTimeout returns the client-side bound of a batch run.
func (c *Config) BatchTimeout() time.Duration {
	return time.Duration(c.BatchTimeoutSeconds) * time.Second
}

// RemoteTimeout returns the per-request bound for workspace service calls.
func (c *Config) RemoteTimeout() time.Duration {
	return time.Duration(c.RemoteTimeoutSeconds) * time.Second
}

// Save saves configuration to file
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// GetConfigPath returns the default config path
func GetConfigPath() string {
	return filepath.Join(defaultConfigDir(), "config.json")
}

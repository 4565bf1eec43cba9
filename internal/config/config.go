// Package config loads agentlens settings from environment variables with a
// JSON config-file fallback under ~/.agentlens/.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	DefaultDebounceMs = 500
	DefaultPollSecs   = 30
	EnvDataDir        = "AGENTLENS_DATA_DIR"
	EnvDebug          = "AGENTLENS_DEBUG"
	EnvDebounceMs     = "AGENTLENS_DEBOUNCE_MS"
	EnvPollSecs       = "AGENTLENS_POLL_SECS"
	ConfigDirName     = ".agentlens"
	ConfigFileName    = "config.json"
)

// defaultRetryDelaysMs is the correlation retry schedule: escalating waits
// between re-snapshots while the agent's log file appears.
var defaultRetryDelaysMs = []int{500, 1000, 2000, 4000, 8000}

// Config holds the runtime configuration
type Config struct {
	DataDir       string `json:"data_dir,omitempty"`
	Debug         bool   `json:"debug,omitempty"`
	DebounceMs    int    `json:"debounce_ms,omitempty"`
	PollSecs      int    `json:"poll_secs,omitempty"`
	RetryDelaysMs []int  `json:"retry_delays_ms,omitempty"`
}

// Debounce returns the watcher debounce window
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// PollInterval returns the periodic collection interval
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollSecs) * time.Second
}

// RetryDelays returns the correlation retry schedule as durations
func (c *Config) RetryDelays() []time.Duration {
	out := make([]time.Duration, len(c.RetryDelaysMs))
	for i, ms := range c.RetryDelaysMs {
		out[i] = time.Duration(ms) * time.Millisecond
	}
	return out
}

// ConfigDir returns the path to the config directory
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ConfigDirName)
}

// ConfigPath returns the path to the config file
func ConfigPath() string {
	dir := ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, ConfigFileName)
}

// LoadFile reads the config file from disk; a missing file is not an error
func LoadFile() (*Config, error) {
	path := ConfigPath()
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SaveFile writes the config file to disk
func SaveFile(cfg *Config) error {
	dir := ConfigDir()
	if dir == "" {
		return os.ErrNotExist
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(ConfigPath(), data, 0600)
}

// Load builds the effective configuration: environment variables win over
// the config file, which wins over built-in defaults.
func Load() *Config {
	cfg := &Config{
		DataDir:    os.Getenv(EnvDataDir),
		Debug:      os.Getenv(EnvDebug) == "1" || os.Getenv(EnvDebug) == "true",
		DebounceMs: envInt(EnvDebounceMs),
		PollSecs:   envInt(EnvPollSecs),
	}

	if fc, err := LoadFile(); err == nil && fc != nil {
		if cfg.DataDir == "" {
			cfg.DataDir = fc.DataDir
		}
		if !cfg.Debug && fc.Debug {
			cfg.Debug = true
		}
		if cfg.DebounceMs == 0 {
			cfg.DebounceMs = fc.DebounceMs
		}
		if cfg.PollSecs == 0 {
			cfg.PollSecs = fc.PollSecs
		}
		if len(fc.RetryDelaysMs) > 0 {
			cfg.RetryDelaysMs = fc.RetryDelaysMs
		}
	}

	if cfg.DataDir == "" {
		cfg.DataDir = ConfigDir()
	}
	if cfg.DebounceMs <= 0 {
		cfg.DebounceMs = DefaultDebounceMs
	}
	if cfg.PollSecs <= 0 {
		cfg.PollSecs = DefaultPollSecs
	}
	if len(cfg.RetryDelaysMs) == 0 {
		cfg.RetryDelaysMs = append([]int(nil), defaultRetryDelaysMs...)
	}
	return cfg
}

func envInt(key string) int {
	s := os.Getenv(key)
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

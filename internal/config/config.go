// Package config loads and saves the warmachine configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Config is the root configuration for warmachine.
type Config struct {
	General GeneralConfig `json:"general"`
	Slack   SlackConfig   `json:"slack"`
	Store   StoreConfig   `json:"store"`
	Plugins PluginsConfig `json:"plugins"`
	Metrics MetricsConfig `json:"metrics"`
}

type GeneralConfig struct {
	LogLevel string `json:"logLevel"`
}

// SlackConfig carries the connector credential and tunables. Durations are
// in seconds.
type SlackConfig struct {
	Token             string `json:"token"`
	APIBase           string `json:"apiBase,omitempty"`
	ReconnectWaitSecs int    `json:"reconnectWaitSeconds,omitempty"`
	PingIntervalSecs  int    `json:"pingIntervalSeconds,omitempty"`
}

type StoreConfig struct {
	DBPath string `json:"dbPath"`
}

type PluginsConfig struct {
	// Dir holds per-plugin YAML option files.
	Dir     string        `json:"dir,omitempty"`
	Giphy   GiphyConfig   `json:"giphy"`
	Standup StandupConfig `json:"standup"`
}

type GiphyConfig struct {
	Enabled bool   `json:"enabled"`
	APIKey  string `json:"apiKey,omitempty"`
}

type StandupConfig struct {
	Enabled bool `json:"enabled"`
}

// MetricsConfig configures the Prometheus text exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
}

// DefaultConfigDir returns the default config directory (~/.warmachine).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".warmachine"
	}
	return filepath.Join(home, ".warmachine")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
		},
		Slack: SlackConfig{
			Token: "${SLACK_TOKEN}",
		},
		Store: StoreConfig{
			DBPath: filepath.Join(DefaultConfigDir(), "warmachine.db"),
		},
		Plugins: PluginsConfig{
			Giphy:   GiphyConfig{Enabled: true},
			Standup: StandupConfig{Enabled: true},
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9190",
		},
	}
}

func Load(path string) (*Config, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("cannot resolve home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset
// or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Slack.Token == "" {
		errs = append(errs, "slack.token must be set")
	}
	if cfg.Slack.ReconnectWaitSecs < 0 {
		errs = append(errs, "slack.reconnectWaitSeconds must not be negative")
	}
	if cfg.Slack.PingIntervalSecs < 0 {
		errs = append(errs, "slack.pingIntervalSeconds must not be negative")
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		errs = append(errs, "metrics.addr must be set when metrics are enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

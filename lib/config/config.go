// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the variable Load reads.
const EnvConfigPath = "NODEWATCH_CONFIG"

// Config is the daemon configuration.
type Config struct {
	Poll        PollConfig        `yaml:"poll"`
	Networks    []NetworkConfig   `yaml:"networks"`
	Alerts      AlertsConfig      `yaml:"alerts"`
	State       StateConfig       `yaml:"state"`
	Power       PowerConfig       `yaml:"power"`
	Telegram    TelegramConfig    `yaml:"telegram"`
	Matrix      MatrixConfig      `yaml:"matrix"`
	NATS        NATSConfig        `yaml:"nats"`
	Admin       AdminConfig       `yaml:"admin"`
	Control     ControlConfig     `yaml:"control"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// PollConfig sets the cycle period, the status thresholds, and the
// bounds on each kind of blocking call. Durations use Go syntax
// ("90s", "1h").
type PollConfig struct {
	Interval         time.Duration `yaml:"interval"`
	OfflineThreshold time.Duration `yaml:"offline_threshold"`
	StandbyThreshold time.Duration `yaml:"standby_threshold"`

	FetchTimeout      time.Duration `yaml:"fetch_timeout"`
	PowerCycleTimeout time.Duration `yaml:"power_cycle_timeout"`
	SendTimeout       time.Duration `yaml:"send_timeout"`
}

// NetworkConfig describes one polled network.
type NetworkConfig struct {
	Name string `yaml:"name"`

	// GraphQLURL is the indexer endpoint. Empty selects the built-in
	// endpoint for main, test, and dev.
	GraphQLURL string `yaml:"graphql_url"`

	// DefaultBootMinutes is the wake window for nodes without an
	// override. Zero keeps the built-in default.
	DefaultBootMinutes int `yaml:"default_boot_minutes"`

	// BootMinutes overrides the wake window per node id.
	BootMinutes map[uint32]int `yaml:"boot_minutes"`
}

// AlertsConfig controls delivery.
type AlertsConfig struct {
	// MinSeverity is "info" or "warning".
	MinSeverity string `yaml:"min_severity"`
}

// StateConfig locates the subscription database.
type StateConfig struct {
	// Path is the SQLite file. Empty keeps subscriptions in memory.
	Path string `yaml:"path"`
}

// PowerConfig locates the power controller registry.
type PowerConfig struct {
	// RegistryFile is a JSONC file; a missing file means no node has a
	// controller.
	RegistryFile string `yaml:"registry_file"`
}

// TelegramConfig enables delivery through the Telegram Bot API. The
// token comes from credentials.
type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url"`
}

// MatrixConfig enables delivery to Matrix rooms. The access token
// comes from credentials.
type MatrixConfig struct {
	Enabled       bool   `yaml:"enabled"`
	HomeserverURL string `yaml:"homeserver_url"`
}

// NATSConfig enables publishing every alert event to NATS.
type NATSConfig struct {
	// URL is empty to disable publishing.
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// AdminConfig configures the HTTP admin listener.
type AdminConfig struct {
	// Listen is a host:port. Empty disables the listener.
	Listen string `yaml:"listen"`
}

// ControlConfig configures the local control socket.
type ControlConfig struct {
	SocketPath string `yaml:"socket_path"`
}

// CredentialsConfig says where bot tokens come from. A sealed bundle
// takes precedence; otherwise the environment is read after loading
// DotenvFile, if set.
type CredentialsConfig struct {
	SealedFile   string `yaml:"sealed_file"`
	IdentityFile string `yaml:"identity_file"`
	DotenvFile   string `yaml:"dotenv_file"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	// Format is "text" or "json".
	Format string `yaml:"format"`
	// Level is "debug", "info", "warn", or "error".
	Level string `yaml:"level"`
}

// Default returns the configuration used for every field the file
// leaves out.
func Default() *Config {
	return &Config{
		Poll: PollConfig{
			Interval:          60 * time.Second,
			OfflineThreshold:  time.Hour,
			StandbyThreshold:  24 * time.Hour,
			FetchTimeout:      30 * time.Second,
			PowerCycleTimeout: 15 * time.Second,
			SendTimeout:       10 * time.Second,
		},
		Networks: []NetworkConfig{{Name: "main"}},
		Alerts:   AlertsConfig{MinSeverity: "info"},
		State:    StateConfig{Path: "${STATE_DIRECTORY:-/var/lib/nodewatch}/nodewatch.db"},
		Power:    PowerConfig{RegistryFile: "${CONFIGURATION_DIRECTORY:-/etc/nodewatch}/power.jsonc"},
		Telegram: TelegramConfig{BaseURL: "https://api.telegram.org"},
		NATS:     NATSConfig{SubjectPrefix: "nodewatch.alerts"},
		Control:  ControlConfig{SocketPath: "${RUNTIME_DIRECTORY:-/run/nodewatch}/control.sock"},
		Logging:  LoggingConfig{Format: "text", Level: "info"},
	}
}

// Load loads the file named by NODEWATCH_CONFIG. There is no fallback:
// an unset variable is an error.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvConfigPath)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your nodewatch.yaml, or use --config", EnvConfigPath)
	}
	return LoadFile(configPath)
}

// LoadFile loads and expands the configuration at path. It does not
// validate; call Validate.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over Default and expands path variables. Unknown
// keys are rejected so a typo cannot silently keep a default.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) expandVariables() {
	vars := map[string]string{"HOME": os.Getenv("HOME")}

	c.State.Path = expandVars(c.State.Path, vars)
	c.Power.RegistryFile = expandVars(c.Power.RegistryFile, vars)
	c.Control.SocketPath = expandVars(c.Control.SocketPath, vars)
	c.Credentials.SealedFile = expandVars(c.Credentials.SealedFile, vars)
	c.Credentials.IdentityFile = expandVars(c.Credentials.IdentityFile, vars)
	c.Credentials.DotenvFile = expandVars(c.Credentials.DotenvFile, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default}, checking vars before
// the environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		name, defaultValue := parts[1], parts[2]
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Poll.Interval <= 0 {
		errs = append(errs, fmt.Errorf("poll.interval must be positive"))
	}
	if c.Poll.OfflineThreshold <= 0 {
		errs = append(errs, fmt.Errorf("poll.offline_threshold must be positive"))
	}
	if c.Poll.StandbyThreshold <= c.Poll.OfflineThreshold {
		errs = append(errs, fmt.Errorf("poll.standby_threshold (%v) must exceed poll.offline_threshold (%v)",
			c.Poll.StandbyThreshold, c.Poll.OfflineThreshold))
	}
	for name, timeout := range map[string]time.Duration{
		"fetch_timeout":       c.Poll.FetchTimeout,
		"power_cycle_timeout": c.Poll.PowerCycleTimeout,
		"send_timeout":        c.Poll.SendTimeout,
	} {
		if timeout < 0 {
			errs = append(errs, fmt.Errorf("poll.%s must not be negative", name))
		}
	}

	if len(c.Networks) == 0 {
		errs = append(errs, fmt.Errorf("networks: at least one network is required"))
	}
	seen := make(map[string]bool, len(c.Networks))
	for i, network := range c.Networks {
		if network.Name == "" {
			errs = append(errs, fmt.Errorf("networks[%d].name is required", i))
			continue
		}
		if seen[network.Name] {
			errs = append(errs, fmt.Errorf("networks[%d]: duplicate network %q", i, network.Name))
		}
		seen[network.Name] = true
		if network.DefaultBootMinutes < 0 {
			errs = append(errs, fmt.Errorf("networks[%d].default_boot_minutes must not be negative", i))
		}
		for id, minutes := range network.BootMinutes {
			if id == 0 {
				errs = append(errs, fmt.Errorf("networks[%d].boot_minutes: node id 0 is invalid", i))
			}
			if minutes <= 0 {
				errs = append(errs, fmt.Errorf("networks[%d].boot_minutes[%d] must be positive", i, id))
			}
		}
	}

	if !slices.Contains([]string{"info", "warning", "warn"}, c.Alerts.MinSeverity) {
		errs = append(errs, fmt.Errorf("alerts.min_severity must be info or warning, got %q", c.Alerts.MinSeverity))
	}
	if c.Telegram.Enabled && c.Telegram.BaseURL == "" {
		errs = append(errs, fmt.Errorf("telegram.base_url is required when telegram is enabled"))
	}
	if c.Matrix.Enabled && c.Matrix.HomeserverURL == "" {
		errs = append(errs, fmt.Errorf("matrix.homeserver_url is required when matrix is enabled"))
	}
	if c.NATS.URL != "" && c.NATS.SubjectPrefix == "" {
		errs = append(errs, fmt.Errorf("nats.subject_prefix is required when nats.url is set"))
	}
	if c.Control.SocketPath == "" {
		errs = append(errs, fmt.Errorf("control.socket_path is required"))
	}
	if c.Credentials.SealedFile != "" && c.Credentials.IdentityFile == "" {
		errs = append(errs, fmt.Errorf("credentials.identity_file is required with credentials.sealed_file"))
	}
	if !slices.Contains([]string{"text", "json"}, c.Logging.Format) {
		errs = append(errs, fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format))
	}
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, c.Logging.Level) {
		errs = append(errs, fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level))
	}

	return errors.Join(errs...)
}

// EnsurePaths creates the parent directories of the state database
// and the control socket.
func (c *Config) EnsurePaths() error {
	for _, path := range []string{c.State.Path, c.Control.SocketPath} {
		if path == "" || path == ":memory:" {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return fmt.Errorf("config: creating %s: %w", filepath.Dir(path), err)
		}
	}
	return nil
}

// Network returns the named network's configuration.
func (c *Config) Network(name string) (NetworkConfig, bool) {
	for _, network := range c.Networks {
		if network.Name == name {
			return network, true
		}
	}
	return NetworkConfig{}, false
}

// Package config loads the TOML configuration file for the controller host.
// The file lives at ~/.opencontroller/config.toml by default, but can be
// overridden with the --config flag. CLI flags take precedence over file values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the host configuration file structure.
type Config struct {
	// Addr is the host:port for the HTTP and websocket server.
	Addr string `toml:"addr"`

	// DBPath is the SQLite database holding session history.
	// Empty disables persistence.
	DBPath string `toml:"db_path"`

	// RecordDir enables input recording when set.
	RecordDir string `toml:"record_dir"`

	// Driver selects the virtual device driver. Only "loopback" ships here.
	Driver string `toml:"driver"`

	// MaxDevices caps how many devices the loopback driver can hold.
	MaxDevices int `toml:"max_devices"`

	// InputRate is the per-client inbound event rate limit (events/sec).
	InputRate float64 `toml:"input_rate"`

	// InputBurst is the per-client burst size.
	InputBurst int `toml:"input_burst"`

	// HistorySize is the number of recent activity entries kept for /status.
	HistorySize int `toml:"history_size"`

	// MdnsEnabled advertises the host on the local network.
	MdnsEnabled bool `toml:"mdns_enabled"`

	// MdnsName overrides the advertised instance name (default: hostname).
	MdnsName string `toml:"mdns_name"`

	// QR prints the join URL as a terminal QR code at startup.
	QR bool `toml:"qr"`
}

// Default returns a Config populated with defaults.
func Default() *Config {
	return &Config{
		Addr:        DefaultAddr,
		DBPath:      DefaultDBPath,
		Driver:      DefaultDriver,
		MaxDevices:  DefaultMaxDevices,
		InputRate:   DefaultInputRate,
		InputBurst:  DefaultInputBurst,
		HistorySize: DefaultHistorySize,
		QR:          true,
	}
}

// DefaultConfigPath returns ~/.opencontroller/config.toml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".opencontroller", "config.toml"), nil
}

// Load reads a TOML config file on top of the defaults.
//
// Behavior:
//   - If path is empty, the default location is tried and a missing file is
//     not an error.
//   - If path is given, a missing file is an error.
//   - A file that exists but cannot be parsed is always an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return cfg, nil
		}
		if _, err := os.Stat(defaultPath); os.IsNotExist(err) {
			return cfg, nil
		}
		path = defaultPath
	} else if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr must not be empty")
	}
	if c.Driver != DefaultDriver {
		return fmt.Errorf("unknown driver %q", c.Driver)
	}
	if c.InputRate < 0 {
		return fmt.Errorf("input_rate must not be negative")
	}
	if c.InputBurst < 0 {
		return fmt.Errorf("input_burst must not be negative")
	}
	if c.MaxDevices < 0 {
		return fmt.Errorf("max_devices must not be negative")
	}
	return nil
}

// Package config loads starlingd's server configuration: a YAML file on
// disk, overlaid by a handful of environment variables. Command-line
// flags are applied on top by the caller (cmd/starlingd).
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds every recognized server option. Fields are intentionally
// flat (no nested structs) since every key here maps directly onto one
// of the options the external interfaces section documents.
type Config struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	Path string `yaml:"path"`

	// Timeout is the default item expiry in seconds; 0 means never.
	// It is informational only — the broker never imposes expiry itself,
	// clients set an explicit per-item expiry on SET.
	Timeout int `yaml:"timeout"`

	LogFile  string `yaml:"log_file"`
	LogLevel string `yaml:"log_level"`

	PIDFile   string `yaml:"pid_file"`
	Daemonize bool   `yaml:"daemonize"`
}

// Default returns the out-of-the-box configuration, matching the
// reference broker's defaults.
func Default() Config {
	return Config{
		Host:     "127.0.0.1",
		Port:     22122,
		Path:     "/var/spool/starling",
		Timeout:  0,
		LogLevel: "info",
		PIDFile:  "/var/run/starlingd.pid",
	}
}

// Load starts from Default(), overlays path (if non-empty and present —
// a missing file at an explicitly-requested path is an error, but an
// unset path is not), then overlays the STARLING_* environment
// variables. Flags are applied by the caller afterward, by assigning the
// Config fields only for flags that were given, so flag defaults never
// clobber a value the file or environment already set.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

// applyEnv overlays recognized STARLING_* environment variables onto
// cfg, each one overriding whatever the file set.
func applyEnv(cfg *Config) {
	if v := os.Getenv("STARLING_HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("STARLING_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Port = n
		}
	}
	if v := os.Getenv("STARLING_PATH"); v != "" {
		cfg.Path = v
	}
	if v := os.Getenv("STARLING_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("STARLING_PID_FILE"); v != "" {
		cfg.PIDFile = v
	}
}

// Addr returns the host:port listen address for net.Listen.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

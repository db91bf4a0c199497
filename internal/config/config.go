// Package config loads octo.yaml and applies environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/harshul/octo-preview/internal/ports"
	"gopkg.in/yaml.v3"
)

// DefaultFile is the config file looked up in the working directory
const DefaultFile = "octo.yaml"

// Defaults for the preview supervisor
const (
	DefaultLogLimit      = 400
	DefaultReadyTimeout  = 30 * time.Second
	DefaultReadyInterval = time.Second
	DefaultKillGrace     = 5 * time.Second
)

// Config is the daemon and CLI configuration.
type Config struct {
	ProjectsDir string        `yaml:"projects_dir"`
	Database    string        `yaml:"database"`
	Listen      string        `yaml:"listen"`
	Preview     PreviewConfig `yaml:"preview"`
	Log         LogConfig     `yaml:"log"`
}

// PreviewConfig tunes the dev-server supervisor.
type PreviewConfig struct {
	PortStart     int           `yaml:"port_start"`
	PortEnd       int           `yaml:"port_end"`
	LogLimit      int           `yaml:"log_limit"`
	ReadyTimeout  time.Duration `yaml:"ready_timeout"`
	ReadyInterval time.Duration `yaml:"ready_interval"`
	KillGrace     time.Duration `yaml:"kill_grace"`
	// InstallSlots caps concurrent dependency installs; 0 sizes it from the host
	InstallSlots int `yaml:"install_slots,omitempty"`
}

// LogConfig controls process logging
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		ProjectsDir: "./data/projects",
		Database:    "./data/octo.db",
		Listen:      "127.0.0.1:7777",
		Preview: PreviewConfig{
			PortStart:     ports.DefaultStart,
			PortEnd:       ports.DefaultEnd,
			LogLimit:      DefaultLogLimit,
			ReadyTimeout:  DefaultReadyTimeout,
			ReadyInterval: DefaultReadyInterval,
			KillGrace:     DefaultKillGrace,
		},
		Log: LogConfig{Level: "info", Format: "console"},
	}
}

// PortRange returns the resolved preview port range
func (c Config) PortRange() ports.Range {
	return ports.ResolveRange(c.Preview.PortStart, c.Preview.PortEnd)
}

// Load reads the file at path over the defaults, then applies environment
// overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnv overrides fields from the environment. Values that do not parse
// are ignored.
func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	str("PROJECTS_DIR", &c.ProjectsDir)
	str("OCTO_DATABASE", &c.Database)
	str("OCTO_LISTEN", &c.Listen)
	str("LOG_LEVEL", &c.Log.Level)
	num("PREVIEW_PORT_START", &c.Preview.PortStart)
	num("PREVIEW_PORT_END", &c.Preview.PortEnd)
	num("PREVIEW_LOG_LIMIT", &c.Preview.LogLimit)
}

// Validate checks the configuration for values the supervisor cannot use
func (c Config) Validate() error {
	if c.ProjectsDir == "" {
		return errors.New("projects_dir is required")
	}
	if c.Database == "" {
		return errors.New("database is required")
	}
	if c.Preview.LogLimit <= 0 {
		return fmt.Errorf("preview.log_limit must be positive, got %d", c.Preview.LogLimit)
	}
	if c.Preview.ReadyTimeout <= 0 || c.Preview.ReadyInterval <= 0 {
		return errors.New("preview.ready_timeout and preview.ready_interval must be positive")
	}
	if c.Preview.KillGrace < 0 {
		return errors.New("preview.kill_grace must not be negative")
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json, got %q", c.Log.Format)
	}
	return nil
}

// Write writes cfg as YAML to path
func Write(path string, cfg Config) error {
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

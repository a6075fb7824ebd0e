// Package config loads wisp settings.
//
// Settings come from, in increasing precedence: built-in defaults, a config
// file (TOML, YAML or JSON) and WISP_* environment variables, where the
// variable name is the upper-cased key with dots replaced by underscores
// (WISP_OUTPUT_WIDTH overrides output.width).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/logging"
)

// EnvPrefix is the prefix of environment overrides.
const EnvPrefix = "WISP"

// ErrInvalid is returned when a setting is out of range.
var ErrInvalid = errors.New("invalid config")

// LogConfig configures the base logger.
type LogConfig struct {
	File       string `mapstructure:"file" toml:"file" yaml:"file" json:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" toml:"max_size_mb" yaml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" toml:"max_backups" yaml:"max_backups" json:"max_backups"`
	Verbose    bool   `mapstructure:"verbose" toml:"verbose" yaml:"verbose" json:"verbose"`
}

// OutputConfig is the default viewport output size.
type OutputConfig struct {
	Width  int `mapstructure:"width" toml:"width" yaml:"width" json:"width"`
	Height int `mapstructure:"height" toml:"height" yaml:"height" json:"height"`
}

// DaemonConfig configures the live session daemon.
type DaemonConfig struct {
	Debounce   time.Duration `mapstructure:"debounce" toml:"debounce" yaml:"debounce" json:"debounce"`
	ScriptsDir string        `mapstructure:"scripts_dir" toml:"scripts_dir" yaml:"scripts_dir" json:"scripts_dir"`
}

// DashboardConfig configures the WebSocket dashboard.
type DashboardConfig struct {
	Host string `mapstructure:"host" toml:"host" yaml:"host" json:"host"`
	Port int    `mapstructure:"port" toml:"port" yaml:"port" json:"port"`
}

// LedgerConfig configures the session ledger. An empty path disables it.
type LedgerConfig struct {
	Path string `mapstructure:"path" toml:"path" yaml:"path" json:"path"`
}

// ViewportConfig names the viewport override and the camera it follows.
type ViewportConfig struct {
	OverrideName string `mapstructure:"override_name" toml:"override_name" yaml:"override_name" json:"override_name"`
	Camera       string `mapstructure:"camera" toml:"camera" yaml:"camera" json:"camera"`
}

// Config holds every wisp setting.
type Config struct {
	Log       LogConfig       `mapstructure:"log" toml:"log" yaml:"log" json:"log"`
	Output    OutputConfig    `mapstructure:"output" toml:"output" yaml:"output" json:"output"`
	Daemon    DaemonConfig    `mapstructure:"daemon" toml:"daemon" yaml:"daemon" json:"daemon"`
	Dashboard DashboardConfig `mapstructure:"dashboard" toml:"dashboard" yaml:"dashboard" json:"dashboard"`
	Ledger    LedgerConfig    `mapstructure:"ledger" toml:"ledger" yaml:"ledger" json:"ledger"`
	Viewport  ViewportConfig  `mapstructure:"viewport" toml:"viewport" yaml:"viewport" json:"viewport"`

	// File is the config file the settings were read from, if any.
	File string `mapstructure:"-" toml:"-" yaml:"-" json:"-"`
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() *Config {
	return &Config{
		Log:       LogConfig{MaxSizeMB: 10, MaxBackups: 3},
		Output:    OutputConfig{Width: 1280, Height: 720},
		Daemon:    DaemonConfig{Debounce: 100 * time.Millisecond, ScriptsDir: "scenes"},
		Dashboard: DashboardConfig{Host: "127.0.0.1", Port: 7420},
		Viewport:  ViewportConfig{OverrideName: "wisp_ViewportOverride", Camera: "persp"},
	}
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.verbose", d.Log.Verbose)
	v.SetDefault("output.width", d.Output.Width)
	v.SetDefault("output.height", d.Output.Height)
	v.SetDefault("daemon.debounce", d.Daemon.Debounce)
	v.SetDefault("daemon.scripts_dir", d.Daemon.ScriptsDir)
	v.SetDefault("dashboard.host", d.Dashboard.Host)
	v.SetDefault("dashboard.port", d.Dashboard.Port)
	v.SetDefault("ledger.path", d.Ledger.Path)
	v.SetDefault("viewport.override_name", d.Viewport.OverrideName)
	v.SetDefault("viewport.camera", d.Viewport.Camera)
}

// Load reads settings through viper. With an empty path it looks for
// wisp.{toml,yaml,json} in the working directory and the user config
// directory; a missing file is not an error. Environment overrides apply
// either way.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("wisp")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "wisp"))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode strictly reads a TOML or YAML config file over the defaults.
// Unknown keys are an error, unlike Load, which ignores them.
func Decode(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("%w: %s: unknown key %s", ErrInvalid, path, undecoded[0])
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(strings.NewReader(string(data)))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported config format %q", ErrInvalid, ext)
	}

	cfg.File = path
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.Output.Width <= 0 || c.Output.Height <= 0 {
		errs = append(errs, fmt.Errorf("output size %dx%d must be positive", c.Output.Width, c.Output.Height))
	}
	if c.Daemon.Debounce <= 0 {
		errs = append(errs, fmt.Errorf("daemon.debounce %v must be positive", c.Daemon.Debounce))
	}
	if c.Dashboard.Port < 0 || c.Dashboard.Port > 65535 {
		errs = append(errs, fmt.Errorf("dashboard.port %d out of range", c.Dashboard.Port))
	}
	if c.Log.MaxSizeMB < 0 || c.Log.MaxBackups < 0 {
		errs = append(errs, fmt.Errorf("log rotation limits must not be negative"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// Logging returns the logger settings.
func (c *Config) Logging() logging.Config {
	return logging.Config{
		File:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		Verbose:    c.Log.Verbose,
	}
}

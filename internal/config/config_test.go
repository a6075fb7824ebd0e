package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

func TestDefaultConfigValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestLoadWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Output.Width != 1280 || cfg.Daemon.Debounce != 100*time.Millisecond {
		t.Errorf("cfg = %+v, want defaults", cfg)
	}
}

func TestLoadFormats(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"toml", "wisp.toml", `
[output]
width = 1920
height = 1080

[daemon]
debounce = "250ms"
scripts_dir = "/tmp/scenes"

[ledger]
path = "wisp.db"
`},
		{"yaml", "wisp.yaml", `
output:
  width: 1920
  height: 1080
daemon:
  debounce: 250ms
  scripts_dir: /tmp/scenes
ledger:
  path: wisp.db
`},
		{"json", "wisp.json", `{
  "output": {"width": 1920, "height": 1080},
  "daemon": {"debounce": "250ms", "scripts_dir": "/tmp/scenes"},
  "ledger": {"path": "wisp.db"}
}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.file, tt.content)
			cfg, err := Load(path)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if cfg.Output.Width != 1920 || cfg.Output.Height != 1080 {
				t.Errorf("output = %+v", cfg.Output)
			}
			if cfg.Daemon.Debounce != 250*time.Millisecond || cfg.Daemon.ScriptsDir != "/tmp/scenes" {
				t.Errorf("daemon = %+v", cfg.Daemon)
			}
			if cfg.Ledger.Path != "wisp.db" {
				t.Errorf("ledger = %+v", cfg.Ledger)
			}
			if cfg.Dashboard.Port != 7420 {
				t.Errorf("dashboard.port = %d, want default", cfg.Dashboard.Port)
			}
			if cfg.File != path {
				t.Errorf("File = %q, want %q", cfg.File, path)
			}
		})
	}
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, "wisp.toml", "[output]\nwidth = 1920\nheight = 1080\n")
	t.Setenv("WISP_OUTPUT_WIDTH", "640")
	t.Setenv("WISP_DASHBOARD_PORT", "9000")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Output.Width != 640 || cfg.Output.Height != 1080 {
		t.Errorf("output = %+v, want env width over file height", cfg.Output)
	}
	if cfg.Dashboard.Port != 9000 {
		t.Errorf("dashboard.port = %d, want 9000", cfg.Dashboard.Port)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Error("Load of a missing explicit file succeeded")
	}
}

func TestDecodeStrict(t *testing.T) {
	good := writeConfig(t, "wisp.yaml", "viewport:\n  override_name: custom\nlog:\n  verbose: true\n")
	cfg, err := Decode(good)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if cfg.Viewport.OverrideName != "custom" || !cfg.Log.Verbose || cfg.Output.Width != 1280 {
		t.Errorf("cfg = %+v", cfg)
	}
	if lc := cfg.Logging(); !lc.Verbose || lc.MaxSizeMB != 10 {
		t.Errorf("Logging() = %+v", lc)
	}

	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"unknown toml key", "bad.toml", "[output]\nwidht = 10\n"},
		{"unknown yaml key", "bad.yaml", "output:\n  widht: 10\n"},
		{"bad type", "bad.toml", "[output]\nwidth = \"wide\"\n"},
		{"unsupported format", "bad.ini", "width=1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(writeConfig(t, tt.file, tt.content)); err == nil {
				t.Error("Decode succeeded, want error")
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero width", func(c *Config) { c.Output.Width = 0 }},
		{"negative height", func(c *Config) { c.Output.Height = -1 }},
		{"zero debounce", func(c *Config) { c.Daemon.Debounce = 0 }},
		{"port out of range", func(c *Config) { c.Dashboard.Port = 70000 }},
		{"negative backups", func(c *Config) { c.Log.MaxBackups = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
				t.Errorf("Validate() = %v, want ErrInvalid", err)
			}
		})
	}
}

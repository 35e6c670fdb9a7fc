package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chaz8081/sonic-lumina/internal/ble/protocol"
	"github.com/chaz8081/sonic-lumina/internal/preset"
)

// Config holds all application configuration.
type Config struct {
	BLE       BLEConfig    `yaml:"ble"`
	Audio     AudioConfig  `yaml:"audio"`
	Hotkey    HotkeyConfig `yaml:"hotkey"`
	UI        UIConfig     `yaml:"ui"`
	Sequence  []string     `yaml:"sequence,omitempty"` // note names; empty means the built-in tune
	ExportDir string       `yaml:"export_dir"`
	LogLevel  string       `yaml:"log_level"`
}

// BLEConfig holds discovery and connection settings.
type BLEConfig struct {
	AdapterID        string        `yaml:"adapter_id,omitempty"` // e.g. "hci1" (Linux only)
	ScanTimeout      time.Duration `yaml:"scan_timeout"`
	ConnectTimeout   time.Duration `yaml:"connect_timeout"`
	PreferredName    string        `yaml:"preferred_name,omitempty"`
	PreferredAddress string        `yaml:"preferred_address,omitempty"`
}

// AudioConfig holds local preview settings.
type AudioConfig struct {
	Enabled    bool          `yaml:"enabled"`
	SampleRate uint32        `yaml:"sample_rate"`
	Volume     float64       `yaml:"volume"`
	Tone       time.Duration `yaml:"tone"`    // tone length per sequence step
	Step       time.Duration `yaml:"step"`    // spacing between sequence steps
	Preview    time.Duration `yaml:"preview"` // note preview length when a step is edited
}

// HotkeyConfig holds the global key bindings.
type HotkeyConfig struct {
	Connect   []string `yaml:"connect"`
	NextColor []string `yaml:"next_color"`
	Preview   []string `yaml:"preview"`
	Upload    []string `yaml:"upload"`
	Export    []string `yaml:"export"`
	NextStep  []string `yaml:"next_step"`
	NextNote  []string `yaml:"next_note"`
	Reset     []string `yaml:"reset_sequence"`
}

// UIConfig holds front-end behavior.
type UIConfig struct {
	ErrorGrace   time.Duration `yaml:"error_grace"` // how long a connect failure stays visible
	InitialColor string        `yaml:"initial_color"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "sonic-lumina")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	home, _ := os.UserHomeDir()

	return &Config{
		BLE: BLEConfig{
			ScanTimeout:    5 * time.Second,
			ConnectTimeout: 20 * time.Second,
		},
		Audio: AudioConfig{
			Enabled:    true,
			SampleRate: 44100,
			Volume:     0.1,
			Tone:       200 * time.Millisecond,
			Step:       250 * time.Millisecond,
			Preview:    100 * time.Millisecond,
		},
		Hotkey: HotkeyConfig{
			Connect:   []string{"ctrl", "shift", "b"},
			NextColor: []string{"ctrl", "shift", "c"},
			Preview:   []string{"ctrl", "shift", "p"},
			Upload:    []string{"ctrl", "shift", "u"},
			Export:    []string{"ctrl", "shift", "e"},
			NextStep:  []string{"ctrl", "shift", "s"},
			NextNote:  []string{"ctrl", "shift", "n"},
			Reset:     []string{"ctrl", "shift", "r"},
		},
		UI: UIConfig{
			ErrorGrace:   4 * time.Second,
			InitialColor: preset.DefaultColor,
		},
		ExportDir: filepath.Join(home, "Music", "sonic-lumina"),
		LogLevel:  "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. Tilde (~) in export_dir is expanded to the user's home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.ExportDir = expandTilde(cfg.ExportDir)

	return cfg, nil
}

// WriteDefault writes the default config to DefaultConfigPath if no file
// exists there yet. It returns the path written, or "" if a config was
// already present.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}

	header := "# sonic-lumina configuration\n# Durations use Go syntax, e.g. 250ms, 5s.\n\n"
	if err := os.WriteFile(path, append([]byte(header), data...), 0644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.BLE.ScanTimeout <= 0 {
		return fmt.Errorf("ble.scan_timeout must be > 0")
	}
	if c.BLE.ConnectTimeout <= c.BLE.ScanTimeout {
		return fmt.Errorf("ble.connect_timeout (%s) must be longer than ble.scan_timeout (%s)", c.BLE.ConnectTimeout, c.BLE.ScanTimeout)
	}

	if c.Audio.SampleRate == 0 {
		return fmt.Errorf("audio.sample_rate must be > 0")
	}
	if c.Audio.Volume <= 0 || c.Audio.Volume > 1 {
		return fmt.Errorf("audio.volume must be in (0, 1], got %g", c.Audio.Volume)
	}
	if c.Audio.Tone <= 0 || c.Audio.Preview <= 0 {
		return fmt.Errorf("audio.tone and audio.preview must be > 0")
	}
	if c.Audio.Step < c.Audio.Tone {
		return fmt.Errorf("audio.step (%s) must not be shorter than audio.tone (%s)", c.Audio.Step, c.Audio.Tone)
	}

	bindings := map[string][]string{
		"connect":        c.Hotkey.Connect,
		"next_color":     c.Hotkey.NextColor,
		"preview":        c.Hotkey.Preview,
		"upload":         c.Hotkey.Upload,
		"export":         c.Hotkey.Export,
		"next_step":      c.Hotkey.NextStep,
		"next_note":      c.Hotkey.NextNote,
		"reset_sequence": c.Hotkey.Reset,
	}
	seen := make(map[string]string)
	for name, keys := range bindings {
		if len(keys) == 0 {
			return fmt.Errorf("hotkey.%s must not be empty", name)
		}
		combo := strings.Join(keys, "+")
		if other, ok := seen[combo]; ok {
			return fmt.Errorf("hotkey.%s and hotkey.%s both use %s", name, other, combo)
		}
		seen[combo] = name
	}

	if c.UI.ErrorGrace <= 0 {
		return fmt.Errorf("ui.error_grace must be > 0")
	}
	if _, ok := preset.LookupColor(c.UI.InitialColor); !ok {
		return fmt.Errorf("ui.initial_color %q is not a preset", c.UI.InitialColor)
	}

	if len(c.Sequence) > protocol.MaxNotes {
		return fmt.Errorf("sequence has %d notes, limit is %d", len(c.Sequence), protocol.MaxNotes)
	}
	for i, name := range c.Sequence {
		if _, ok := preset.Frequencies[name]; !ok {
			return fmt.Errorf("sequence[%d]: unknown note %q", i, name)
		}
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// ParseLogLevel maps a config log level to slog, defaulting to info.
func ParseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

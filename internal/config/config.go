// Package config loads the myomod YAML configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Source kinds.
const (
	SourceSimulator = "simulator"
	SourceMQTT      = "mqtt"
)

// Config is the full application configuration.
type Config struct {
	Listen    string          `yaml:"listen"`
	Database  string          `yaml:"database"`
	WebDir    string          `yaml:"web_dir"`
	TickHz    float64         `yaml:"tick_hz"`
	Tray      bool            `yaml:"tray"`
	Source    SourceConfig    `yaml:"source"`
	Wrist     WristConfig     `yaml:"wrist"`
	Recording RecordingConfig `yaml:"recording"`
	Plugins   PluginConfig    `yaml:"plugins"`

	// GestureWindow is the number of recent hand poses kept for motion
	// matching.
	GestureWindow int `yaml:"gesture_window"`
}

// SourceConfig selects and configures the notification source.
type SourceConfig struct {
	Kind      string          `yaml:"kind"`
	Simulator SimulatorConfig `yaml:"simulator"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
}

// SimulatorConfig sets the synthetic stream rates.
type SimulatorConfig struct {
	HandPoseHz float64 `yaml:"hand_pose_hz"`
	EMGHz      float64 `yaml:"emg_hz"`
	FilteredHz float64 `yaml:"filtered_hz"`
	DropEvery  int     `yaml:"drop_every"`
}

// MQTTConfig locates the gateway broker.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// WristConfig sets the angular sweep of the wrist readings in degrees.
type WristConfig struct {
	FlexRangeDeg     float64 `yaml:"flex_range_deg"`
	RotationRangeDeg float64 `yaml:"rotation_range_deg"`
}

// RecordingConfig controls session recording.
type RecordingConfig struct {
	Autostart bool `yaml:"autostart"`
	Queue     int  `yaml:"queue"`
}

// PluginConfig locates the action plugins run on gesture matches.
type PluginConfig struct {
	Dir       string `yaml:"dir"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Listen:   ":8080",
		Database: "~/.myomod/myomod.db",
		TickHz:   60,
		Source: SourceConfig{
			Kind: SourceSimulator,
			Simulator: SimulatorConfig{
				HandPoseHz: 50,
				EMGHz:      66,
				FilteredHz: 50,
			},
			MQTT: MQTTConfig{
				Broker:      "tcp://localhost:1883",
				ClientID:    "myomod",
				TopicPrefix: "myomod",
			},
		},
		Wrist: WristConfig{
			FlexRangeDeg:     90,
			RotationRangeDeg: 180,
		},
		Recording: RecordingConfig{
			Queue: 256,
		},
		Plugins: PluginConfig{
			Dir:       "~/.myomod/plugins",
			TimeoutMs: 5000,
		},
		GestureWindow: 90,
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := Parse(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML into cfg, keeping fields the document leaves out.
// Unknown keys are rejected.
func Parse(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return cfg.Validate()
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if c.Listen == "" {
		return errors.New("listen address is empty")
	}
	if c.Database == "" {
		return errors.New("database path is empty")
	}
	if c.TickHz <= 0 || c.TickHz > 1000 {
		return fmt.Errorf("tick_hz %.1f out of range (0, 1000]", c.TickHz)
	}
	switch c.Source.Kind {
	case SourceSimulator:
		s := c.Source.Simulator
		if s.HandPoseHz < 0 || s.EMGHz < 0 || s.FilteredHz < 0 {
			return errors.New("simulator rates must not be negative")
		}
		if s.DropEvery < 0 {
			return errors.New("simulator drop_every must not be negative")
		}
	case SourceMQTT:
		if c.Source.MQTT.Broker == "" {
			return errors.New("mqtt broker is empty")
		}
		if c.Source.MQTT.TopicPrefix == "" {
			return errors.New("mqtt topic_prefix is empty")
		}
	default:
		return fmt.Errorf("unknown source kind %q", c.Source.Kind)
	}
	if c.Wrist.FlexRangeDeg < 0 || c.Wrist.RotationRangeDeg < 0 {
		return errors.New("wrist ranges must not be negative")
	}
	if c.Recording.Queue < 1 {
		return errors.New("recording queue must hold at least one frame")
	}
	if c.Plugins.TimeoutMs <= 0 {
		return fmt.Errorf("plugins timeout_ms %d must be positive", c.Plugins.TimeoutMs)
	}
	if c.GestureWindow < 2 {
		return fmt.Errorf("gesture_window %d must hold at least two poses", c.GestureWindow)
	}
	return nil
}

// DatabasePath returns Database with a leading ~ expanded to the home
// directory.
func (c Config) DatabasePath() (string, error) {
	return expandHome(c.Database)
}

// PluginDir returns Plugins.Dir with a leading ~ expanded. An empty Dir
// disables plugins.
func (c Config) PluginDir() (string, error) {
	if c.Plugins.Dir == "" {
		return "", nil
	}
	return expandHome(c.Plugins.Dir)
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

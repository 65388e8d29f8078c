// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds resolved application paths and loaded settings
type Config struct {
	HomeDir      string
	LifelineDir  string
	DatabasePath string
	SettingsPath string
	Settings     *Settings
}

// Settings holds all tunable behavior, loaded from settings.yaml
type Settings struct {
	Thresholds Thresholds `yaml:"thresholds"`
	Triggers   Triggers   `yaml:"triggers"`
	Resume     Resume     `yaml:"resume"`
	Retention  Retention  `yaml:"retention"`

	// CompressionLevel is the zstd level used for checkpoint state blobs
	CompressionLevel int `yaml:"compression_level"`
}

// Thresholds defines the risk classification boundaries per signal metric
type Thresholds struct {
	WarningErrorRate float64       `yaml:"warning_error_rate"`
	DangerErrorRate  float64       `yaml:"danger_error_rate"`
	WarningDuration  time.Duration `yaml:"warning_duration"`
	DangerDuration   time.Duration `yaml:"danger_duration"`
	WarningLatency   time.Duration `yaml:"warning_latency"`
	DangerLatency    time.Duration `yaml:"danger_latency"`
	WarningToolCalls int           `yaml:"warning_tool_calls"`
	WarningMessages  int           `yaml:"warning_messages"`
}

// Triggers defines when an automatic checkpoint is taken
type Triggers struct {
	ToolCallInterval int           `yaml:"tool_call_interval"` // tool calls between checkpoints
	TimeInterval     time.Duration `yaml:"time_interval"`      // elapsed time between checkpoints
	WriteTimeout     time.Duration `yaml:"write_timeout"`      // budget for one checkpoint write
}

// Resume defines how an interrupted session is classified at startup
type Resume struct {
	NormalExitWindow time.Duration `yaml:"normal_exit_window"` // below this gap an unrestored checkpoint reads as a crash
	IdleThreshold    time.Duration `yaml:"idle_threshold"`     // above this gap the session is considered timed out
}

// Retention defines age-based cleanup for persisted records
type Retention struct {
	SignalDays     int `yaml:"signal_days"`
	CheckpointDays int `yaml:"checkpoint_days"`
}

// DefaultSettings returns the settings used when no settings.yaml exists
func DefaultSettings() *Settings {
	return &Settings{
		Thresholds: Thresholds{
			WarningErrorRate: 0.2,
			DangerErrorRate:  0.5,
			WarningDuration:  2 * time.Hour,
			DangerDuration:   4 * time.Hour,
			WarningLatency:   10 * time.Second,
			DangerLatency:    30 * time.Second,
			WarningToolCalls: 100,
			WarningMessages:  200,
		},
		Triggers: Triggers{
			ToolCallInterval: 10,
			TimeInterval:     5 * time.Minute,
			WriteTimeout:     5 * time.Second,
		},
		Resume: Resume{
			NormalExitWindow: 10 * time.Minute,
			IdleThreshold:    30 * time.Minute,
		},
		Retention: Retention{
			SignalDays:     7,
			CheckpointDays: 30,
		},
		CompressionLevel: 3,
	}
}

// Load creates a Config with resolved paths and settings
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	lifelineDir := filepath.Join(home, ".lifeline")
	if err := os.MkdirAll(lifelineDir, 0755); err != nil {
		return nil, err
	}

	cfg := &Config{
		HomeDir:      home,
		LifelineDir:  lifelineDir,
		DatabasePath: filepath.Join(lifelineDir, "lifeline.db"),
		SettingsPath: filepath.Join(lifelineDir, "settings.yaml"),
	}

	settings, err := LoadSettings(cfg.SettingsPath)
	if err != nil {
		return nil, err
	}
	cfg.Settings = settings

	return cfg, nil
}

// LoadSettings reads settings from a YAML file, falling back to defaults
// for a missing file or any unset field
func LoadSettings(path string) (*Settings, error) {
	settings := DefaultSettings()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return settings, nil
		}
		return nil, fmt.Errorf("read settings: %w", err)
	}

	if err := yaml.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}

	return settings, nil
}

// Validate rejects settings that would disable risk classification entirely
func (s *Settings) Validate() error {
	if s.Thresholds.DangerErrorRate < s.Thresholds.WarningErrorRate {
		return fmt.Errorf("danger_error_rate %.2f below warning_error_rate %.2f", s.Thresholds.DangerErrorRate, s.Thresholds.WarningErrorRate)
	}
	if s.Thresholds.DangerDuration < s.Thresholds.WarningDuration {
		return fmt.Errorf("danger_duration %s below warning_duration %s", s.Thresholds.DangerDuration, s.Thresholds.WarningDuration)
	}
	if s.Thresholds.DangerLatency < s.Thresholds.WarningLatency {
		return fmt.Errorf("danger_latency %s below warning_latency %s", s.Thresholds.DangerLatency, s.Thresholds.WarningLatency)
	}
	if s.Triggers.ToolCallInterval <= 0 {
		return fmt.Errorf("tool_call_interval must be positive, got %d", s.Triggers.ToolCallInterval)
	}
	if s.Triggers.TimeInterval <= 0 {
		return fmt.Errorf("time_interval must be positive, got %s", s.Triggers.TimeInterval)
	}
	if s.Resume.IdleThreshold < s.Resume.NormalExitWindow {
		return fmt.Errorf("idle_threshold %s below normal_exit_window %s", s.Resume.IdleThreshold, s.Resume.NormalExitWindow)
	}
	return nil
}

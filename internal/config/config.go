// Package config holds the commando configuration: its defaults, loading
// through viper, validation and hot reload.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/comalice/commando/internal/mailbox"
	"github.com/comalice/commando/internal/robot"
)

// EnvPrefix prefixes environment overrides, e.g. COMMANDO_PILOT_HALT_ON_STOP.
const EnvPrefix = "COMMANDO"

// Persistence kinds.
const (
	PersistNone = "none"
	PersistJSON = "json"
	PersistYAML = "yaml"
	PersistBolt = "bolt"
)

// Config is the complete commando configuration.
type Config struct {
	Pilot       PilotConfig       `mapstructure:"pilot"`
	Robot       RobotConfig       `mapstructure:"robot"`
	Bump        BumpConfig        `mapstructure:"bump"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
}

// PilotConfig controls the pilot engine and its mailbox.
type PilotConfig struct {
	// Mailbox is the name the pilot's mailbox is registered under.
	Mailbox string `mapstructure:"mailbox" validate:"required,startswith=/"`
	// QueueCapacity bounds the number of queued requests.
	QueueCapacity int `mapstructure:"queue_capacity" validate:"min=1,max=256"`
	// HaltOnStop makes every stop request zero the wheels.
	HaltOnStop bool `mapstructure:"halt_on_stop"`
}

// RobotConfig configures the simulated robot.
type RobotConfig struct {
	MaxPower  int `mapstructure:"max_power" validate:"min=1"`
	BumpEvery int `mapstructure:"bump_every" validate:"min=0"`
}

// BumpConfig controls the periodic bump check. A zero interval disables it.
type BumpConfig struct {
	Interval time.Duration `mapstructure:"interval" validate:"gte=0"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level string `mapstructure:"level" validate:"oneof=DEBUG INFO WARN ERROR debug info warn error"`
	// Dir receives pilot.log; empty logs to stderr.
	Dir string `mapstructure:"dir"`
}

// PersistenceConfig selects where pilot snapshots are stored.
type PersistenceConfig struct {
	Kind string `mapstructure:"kind" validate:"oneof=none json yaml bolt"`
	// Path is the snapshot directory.
	Path string `mapstructure:"path" validate:"required_unless=Kind none"`
}

// TelemetryConfig configures trace export. An empty endpoint disables it.
type TelemetryConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint" validate:"omitempty,hostname_port"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Pilot: PilotConfig{
			Mailbox:       mailbox.DefaultName,
			QueueCapacity: mailbox.DefaultCapacity,
		},
		Robot: RobotConfig{
			MaxPower: robot.DefaultMaxPower,
		},
		Bump: BumpConfig{
			Interval: 500 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level: "INFO",
		},
		Persistence: PersistenceConfig{
			Kind: PersistNone,
			Path: filepath.Join(DataDir(), "snapshots"),
		},
	}
}

// DataDir is the default directory for logs and snapshots.
func DataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "commando")
	}
	return ".commando"
}

// SetDefaults registers every default with v.
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("pilot.mailbox", d.Pilot.Mailbox)
	v.SetDefault("pilot.queue_capacity", d.Pilot.QueueCapacity)
	v.SetDefault("pilot.halt_on_stop", d.Pilot.HaltOnStop)

	v.SetDefault("robot.max_power", d.Robot.MaxPower)
	v.SetDefault("robot.bump_every", d.Robot.BumpEvery)

	v.SetDefault("bump.interval", d.Bump.Interval)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.dir", d.Logging.Dir)

	v.SetDefault("persistence.kind", d.Persistence.Kind)
	v.SetDefault("persistence.path", d.Persistence.Path)

	v.SetDefault("telemetry.otlp_endpoint", d.Telemetry.OTLPEndpoint)
}

// Load unmarshals and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to unmarshal the config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cfg against its validation tags.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Watch reloads the configuration whenever v's config file changes. Valid
// reloads go to onChange; invalid ones to onError and are otherwise ignored.
func Watch(v *viper.Viper, onChange func(*Config), onError func(error)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := Load(v)
		if err != nil {
			if onError != nil {
				onError(fmt.Errorf("reload %s: %w", e.Name, err))
			}
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
}

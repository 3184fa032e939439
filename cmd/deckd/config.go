package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration for the deckd daemon.
//
// The config file is the primary configuration surface; flags exist for small
// overrides and for environments where a file is awkward. Defaults and
// validation are centralized here so the rest of the code can assume a
// well-formed config.
//
// Note: this is the daemon's own configuration. The button map (key -> action
// bindings) lives in its own JSON file, see buttons.go.
type Config struct {
	// Serial link configuration
	Serial SerialConfig `yaml:"serial"`

	// Button map file configuration
	Buttons ButtonsConfig `yaml:"buttons"`

	// IPC configuration (unix socket for external clients / deckctl)
	IPC IPCConfig `yaml:"ipc"`

	// State websocket configuration (UI integration surface)
	StateWS StateWSConfig `yaml:"state_ws"`

	// Optional MQTT publisher for home-automation integration
	MQTT MQTTConfig `yaml:"mqtt"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

type SerialConfig struct {
	Port            string `yaml:"port"`
	BaudRate        int    `yaml:"baud_rate"`
	ReadTimeoutMS   int    `yaml:"read_timeout_ms"`
	RetryDelayMS    int    `yaml:"retry_delay_ms"`
	KeyEventDelayMS int    `yaml:"key_event_delay_ms"`
}

type ButtonsConfig struct {
	File  string `yaml:"file"`
	Watch bool   `yaml:"watch"`
}

type IPCConfig struct {
	SocketPath string `yaml:"socket_path"`
}

type StateWSConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
	Path       string `yaml:"path"`
}

type MQTTConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Broker    string `yaml:"broker"`
	ClientID  string `yaml:"client_id"`
	RootTopic string `yaml:"root_topic"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a fully-populated Config with defaults.
// Keep this aligned with constants.go defaults and current CLI defaults.
func DefaultConfig() Config {
	return Config{
		Serial: SerialConfig{
			Port:            defaultSerialPort,
			BaudRate:        defaultBaudRate,
			ReadTimeoutMS:   int(defaultReadTimeout.Milliseconds()),
			RetryDelayMS:    defaultRetryDelayMS,
			KeyEventDelayMS: defaultKeyEventDelayMS,
		},
		Buttons: ButtonsConfig{
			File:  defaultButtonsFile,
			Watch: true,
		},
		IPC: IPCConfig{
			SocketPath: "/tmp/deckd.sock",
		},
		StateWS: StateWSConfig{
			Enabled:    true,
			ListenAddr: "127.0.0.1:8629",
			Path:       "/ws/state",
		},
		MQTT: MQTTConfig{
			Enabled:   false,
			Broker:    "",
			ClientID:  "deckd",
			RootTopic: "consoledeck",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfigFile reads and parses a YAML config file.
//
// Unknown fields are rejected (helps catch typos) via KnownFields(true).
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Ensure there's no trailing garbage after the document. A clean file
	// yields io.EOF here; anything else means a second document.
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides applies overrides from flags on top of a loaded config.
// Each override is only applied if its pointer is non-nil.
type FlagOverrides struct {
	SerialPort      *string
	BaudRate        *int
	RetryDelayMS    *int
	KeyEventDelayMS *int

	ButtonsFile *string

	IPCSocketPath *string

	StateWSEnabled    *bool
	StateWSListenAddr *string

	MQTTEnabled *bool
	MQTTBroker  *string

	LogLevel *string
}

// Apply merges the overrides into cfg. If an override pointer is nil, it is ignored.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.SerialPort != nil {
		cfg.Serial.Port = *o.SerialPort
	}
	if o.BaudRate != nil {
		cfg.Serial.BaudRate = *o.BaudRate
	}
	if o.RetryDelayMS != nil {
		cfg.Serial.RetryDelayMS = *o.RetryDelayMS
	}
	if o.KeyEventDelayMS != nil {
		cfg.Serial.KeyEventDelayMS = *o.KeyEventDelayMS
	}

	if o.ButtonsFile != nil {
		cfg.Buttons.File = *o.ButtonsFile
	}

	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
	}

	if o.StateWSEnabled != nil {
		cfg.StateWS.Enabled = *o.StateWSEnabled
	}
	if o.StateWSListenAddr != nil {
		cfg.StateWS.ListenAddr = *o.StateWSListenAddr
	}

	if o.MQTTEnabled != nil {
		cfg.MQTT.Enabled = *o.MQTTEnabled
	}
	if o.MQTTBroker != nil {
		cfg.MQTT.Broker = *o.MQTTBroker
	}

	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

// Validate checks config invariants and returns a user-friendly error.
// Intended to be called after defaults + file + overrides are applied.
func (c *Config) Validate() error {
	// Serial
	if c.Serial.Port == "" {
		return errors.New("serial.port must not be empty")
	}
	if c.Serial.BaudRate <= 0 {
		return errors.New("serial.baud_rate must be > 0")
	}
	if c.Serial.ReadTimeoutMS <= 0 {
		return errors.New("serial.read_timeout_ms must be > 0")
	}
	if c.Serial.RetryDelayMS < 0 {
		return errors.New("serial.retry_delay_ms must be >= 0")
	}
	if c.Serial.KeyEventDelayMS < 0 {
		return errors.New("serial.key_event_delay_ms must be >= 0")
	}

	// Buttons
	if c.Buttons.File == "" {
		return errors.New("buttons.file must not be empty")
	}

	// IPC
	if c.IPC.SocketPath == "" {
		return errors.New("ipc.socket_path must not be empty")
	}

	// State websocket
	if c.StateWS.Enabled {
		if c.StateWS.ListenAddr == "" {
			return errors.New("state_ws.enabled is true but state_ws.listen_addr is empty")
		}
		if c.StateWS.Path == "" {
			return errors.New("state_ws.enabled is true but state_ws.path is empty")
		}
	}

	// MQTT
	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			return errors.New("mqtt.enabled is true but mqtt.broker is empty")
		}
		if c.MQTT.RootTopic == "" {
			return errors.New("mqtt.enabled is true but mqtt.root_topic is empty")
		}
	}

	// Logging
	if c.Logging.Level == "" {
		return errors.New("logging.level must not be empty")
	}

	return nil
}

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}

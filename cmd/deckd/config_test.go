package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "deckd.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
	if cfg.Serial.Port != defaultSerialPort {
		t.Errorf("expected port %s, got %s", defaultSerialPort, cfg.Serial.Port)
	}
	if cfg.Serial.BaudRate != defaultBaudRate {
		t.Errorf("expected baud %d, got %d", defaultBaudRate, cfg.Serial.BaudRate)
	}
}

func TestLoadConfigFile_PartialOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
serial:
  port: /dev/ttyACM0
  baud_rate: 115200
logging:
  level: debug
`)

	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}

	if cfg.Serial.Port != "/dev/ttyACM0" {
		t.Errorf("expected /dev/ttyACM0, got %s", cfg.Serial.Port)
	}
	if cfg.Serial.BaudRate != 115200 {
		t.Errorf("expected 115200, got %d", cfg.Serial.BaudRate)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected debug, got %s", cfg.Logging.Level)
	}

	// Untouched sections keep their defaults.
	if cfg.IPC.SocketPath != "/tmp/deckd.sock" {
		t.Errorf("expected default socket path, got %s", cfg.IPC.SocketPath)
	}
	if !cfg.StateWS.Enabled {
		t.Error("expected state_ws enabled by default")
	}
}

func TestLoadConfigFile_RejectsUnknownFields(t *testing.T) {
	path := writeConfigFile(t, `
serial:
  prot: COM3
`)
	if _, err := LoadConfigFile(path); err == nil {
		t.Fatal("expected error for misspelled field")
	}
}

func TestLoadConfigFile_RejectsTrailingDocument(t *testing.T) {
	path := writeConfigFile(t, `
serial:
  port: COM3
---
serial:
  port: COM4
`)
	_, err := LoadConfigFile(path)
	if err == nil || !strings.Contains(err.Error(), "trailing") {
		t.Fatalf("expected trailing document error, got %v", err)
	}
}

func TestLoadConfigFile_Missing(t *testing.T) {
	if _, err := LoadConfigFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestFlagOverrides_Apply(t *testing.T) {
	cfg := DefaultConfig()

	port := "/dev/ttyUSB1"
	baud := 57600
	level := "warn"
	mqttOn := true
	broker := "tcp://127.0.0.1:1883"

	FlagOverrides{
		SerialPort:  &port,
		BaudRate:    &baud,
		LogLevel:    &level,
		MQTTEnabled: &mqttOn,
		MQTTBroker:  &broker,
	}.Apply(&cfg)

	if cfg.Serial.Port != port {
		t.Errorf("expected %s, got %s", port, cfg.Serial.Port)
	}
	if cfg.Serial.BaudRate != baud {
		t.Errorf("expected %d, got %d", baud, cfg.Serial.BaudRate)
	}
	if cfg.Logging.Level != level {
		t.Errorf("expected %s, got %s", level, cfg.Logging.Level)
	}
	if !cfg.MQTT.Enabled || cfg.MQTT.Broker != broker {
		t.Errorf("mqtt override not applied: %+v", cfg.MQTT)
	}

	// Nil pointers leave values untouched.
	FlagOverrides{}.Apply(&cfg)
	if cfg.Serial.Port != port {
		t.Error("empty overrides must not reset values")
	}
}

func TestValidate_Failures(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty port", func(c *Config) { c.Serial.Port = "" }},
		{"zero baud", func(c *Config) { c.Serial.BaudRate = 0 }},
		{"negative retry delay", func(c *Config) { c.Serial.RetryDelayMS = -1 }},
		{"empty buttons file", func(c *Config) { c.Buttons.File = "" }},
		{"empty socket path", func(c *Config) { c.IPC.SocketPath = "" }},
		{"ws enabled without addr", func(c *Config) { c.StateWS.ListenAddr = "" }},
		{"mqtt enabled without broker", func(c *Config) { c.MQTT.Enabled = true }},
		{"empty log level", func(c *Config) { c.Logging.Level = "" }},
	}

	for _, tc := range cases {
		cfg := DefaultConfig()
		tc.mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}

	if got := ExpandPath("~/x/y.json"); got != filepath.Join(home, "x/y.json") {
		t.Errorf("expected home join, got %s", got)
	}
	if got := ExpandPath("/abs/path"); got != "/abs/path" {
		t.Errorf("absolute path must pass through, got %s", got)
	}
	if got := ExpandPath("rel.json"); got != "rel.json" {
		t.Errorf("relative path must pass through, got %s", got)
	}
	if got := ExpandPath(""); got != "" {
		t.Errorf("empty path must pass through, got %q", got)
	}
}

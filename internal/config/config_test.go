// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/ffutop/solar-modbus/modbus"
)

// isolate keeps LoadConfig from picking up a config file or MODBUS_
// variables of the machine running the tests.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	for _, env := range environment {
		t.Setenv(env, "")
		os.Unsetenv(env)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := LoadConfig("", nil)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	c := cfg.Connection
	if c.Backend != BackendSerial || c.Device != "/dev/ttyUSB0" {
		t.Errorf("backend/device = %q/%q", c.Backend, c.Device)
	}
	if c.BaudRate != 9600 || c.DataBits != 8 || c.Parity != "N" || c.StopBits != 1 {
		t.Errorf("line settings = %d %d %s %d", c.BaudRate, c.DataBits, c.Parity, c.StopBits)
	}
	if c.Timeout != 3*time.Second {
		t.Errorf("Timeout = %v, want 3s", c.Timeout)
	}
	if c.SlaveID != 1 {
		t.Errorf("SlaveID = %d, want 1", c.SlaveID)
	}
	if cfg.Exporter.Interval != 30*time.Second {
		t.Errorf("Interval = %v, want 30s", cfg.Exporter.Interval)
	}
	if got := len(cfg.ReadSpecs()); got != 29 {
		t.Errorf("ReadSpecs() has %d entries, want the 29 of the catalog", got)
	}
	if got := cfg.RegisterMapEntries()["inverter_switch"]; got != 0xdf00 {
		t.Errorf("inverter_switch = %#x, want 0xdf00", got)
	}
}

func TestLoadConfig_Environment(t *testing.T) {
	isolate(t)
	t.Setenv("MODBUS_PORT", "/dev/ttyS1")
	t.Setenv("MODBUS_BAUDRATE", "19200")
	t.Setenv("MODBUS_TIMEOUT", "5")
	t.Setenv("MODBUS_PARITY", "even")
	t.Setenv("MODBUS_STOPBITS", "2")
	t.Setenv("MODBUS_BYTESIZE", "7")
	t.Setenv("MODBUS_SLAVE", "3")

	cfg, err := LoadConfig("", nil)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	want := ConnectionConfig{
		Backend:  BackendSerial,
		Device:   "/dev/ttyS1",
		BaudRate: 19200,
		DataBits: 7,
		Parity:   "E",
		StopBits: 2,
		Timeout:  5 * time.Second,
		SlaveID:  3,
	}
	if cfg.Connection != want {
		t.Errorf("Connection = %+v, want %+v", cfg.Connection, want)
	}
}

func TestLoadConfig_FileAndFlags(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "solar.yaml")
	content := `
connection:
  backend: tcp
  tcp:
    address: 192.168.1.100:8899
  timeout: 500ms
  slave_id: 2
registers:
  - key: battery_voltage
    address: 0x0101
    description: Battery Voltage
    scale: 0.1
  - key: battery_soc
    address: 0x0100
register_map:
  - name: Inverter_Switch
    address: 0xdf00
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("slave-id", 0, "")
	flags.String("device", "", "")
	if err := flags.Parse([]string{"--slave-id=7"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path, flags)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Connection.Backend != BackendTCP || cfg.Connection.Tcp.Address != "192.168.1.100:8899" {
		t.Errorf("tcp backend not loaded: %+v", cfg.Connection)
	}
	if cfg.Connection.Timeout != 500*time.Millisecond {
		t.Errorf("Timeout = %v, want 500ms", cfg.Connection.Timeout)
	}
	if cfg.Connection.SlaveID != 7 {
		t.Errorf("SlaveID = %d, want the flag value 7", cfg.Connection.SlaveID)
	}
	if cfg.Connection.Device != "/dev/ttyUSB0" {
		t.Errorf("Device = %q, an unset flag must not override the default", cfg.Connection.Device)
	}

	specs := cfg.ReadSpecs()
	if len(specs) != 2 || specs[0].Address != 0x0101 || specs[0].Scale != 0.1 || specs[0].Name() != "battery_voltage" {
		t.Fatalf("ReadSpecs() = %+v", specs)
	}
	if specs[1].Scale != 1 {
		t.Errorf("unset scale = %v, want 1", specs[1].Scale)
	}
	entries := cfg.RegisterMapEntries()
	if len(entries) != 1 || entries["Inverter_Switch"] != 0xdf00 {
		t.Errorf("RegisterMapEntries() = %v", entries)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	isolate(t)

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Error("expected error for an explicit config file that does not exist")
	}

	t.Setenv("MODBUS_SLAVE", "0")
	_, err := LoadConfig("", nil)
	if !errors.Is(err, modbus.ErrConfiguration) {
		t.Errorf("LoadConfig() error = %v, want ErrConfiguration", err)
	}
}

func TestSecondsHook(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"3", 3 * time.Second},
		{" 10 ", 10 * time.Second},
		{"250ms", 250 * time.Millisecond},
		{"1m", time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			isolate(t)
			t.Setenv("MODBUS_TIMEOUT", tt.in)
			cfg, err := LoadConfig("", nil)
			if err != nil {
				t.Fatalf("LoadConfig() error = %v", err)
			}
			if cfg.Connection.Timeout != tt.want {
				t.Errorf("Timeout = %v, want %v", cfg.Connection.Timeout, tt.want)
			}
		})
	}
}

func validConnection() ConnectionConfig {
	return ConnectionConfig{
		Backend:  BackendSerial,
		Device:   "/dev/ttyUSB0",
		BaudRate: 9600,
		DataBits: 8,
		Parity:   "N",
		StopBits: 1,
		Timeout:  3 * time.Second,
		SlaveID:  1,
	}
}

func TestConnectionConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *ConnectionConfig)
	}{
		{"empty device", func(c *ConnectionConfig) { c.Device = "" }},
		{"zero baud", func(c *ConnectionConfig) { c.BaudRate = 0 }},
		{"data bits", func(c *ConnectionConfig) { c.DataBits = 9 }},
		{"parity", func(c *ConnectionConfig) { c.Parity = "X" }},
		{"stop bits", func(c *ConnectionConfig) { c.StopBits = 3 }},
		{"timeout", func(c *ConnectionConfig) { c.Timeout = 0 }},
		{"slave zero", func(c *ConnectionConfig) { c.SlaveID = 0 }},
		{"slave 248", func(c *ConnectionConfig) { c.SlaveID = 248 }},
		{"retries", func(c *ConnectionConfig) { c.Retries = -1 }},
		{"backend", func(c *ConnectionConfig) { c.Backend = "usb" }},
		{"tcp without address", func(c *ConnectionConfig) { c.Backend = BackendTCP }},
		{"mbap without address", func(c *ConnectionConfig) { c.Backend = BackendMBAP }},
	}

	c := validConnection()
	if err := c.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConnection()
			tt.modify(&c)
			if err := c.Validate(); !errors.Is(err, modbus.ErrConfiguration) {
				t.Errorf("Validate() error = %v, want ErrConfiguration", err)
			}
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	zero := 0.0
	tests := []struct {
		name string
		cfg  Config
	}{
		{"duplicate map entry", Config{RegisterMap: []RegisterMapEntry{{"a", 1}, {"a", 2}}}},
		{"empty map name", Config{RegisterMap: []RegisterMapEntry{{"", 1}}}},
		{"duplicate register key", Config{Registers: []RegisterConfig{{Key: "v", Address: 1}, {Key: "v", Address: 2}}}},
		{"zero scale", Config{Registers: []RegisterConfig{{Key: "v", Address: 1, Scale: &zero}}}},
		{"persistence", Config{Simulator: SimulatorConfig{Persistence: PersistenceConfig{Type: "sqlite"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.Connection = validConnection()
			if err := tt.cfg.Validate(); !errors.Is(err, modbus.ErrConfiguration) {
				t.Errorf("Validate() error = %v, want ErrConfiguration", err)
			}
		})
	}
}

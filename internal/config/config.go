// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package config

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ffutop/solar-modbus/modbus"
	"github.com/ffutop/solar-modbus/registers"
)

// Backends
const (
	BackendSerial = "serial"
	BackendTCP    = "tcp"
	BackendLocal  = "local"
	BackendMBAP   = "mbap"
)

// Config defines the global configuration structure
type Config struct {
	Connection  ConnectionConfig   `mapstructure:"connection"`
	Log         LogConfig          `mapstructure:"log"`
	Registers   []RegisterConfig   `mapstructure:"registers"`
	RegisterMap []RegisterMapEntry `mapstructure:"register_map"`
	Simulator   SimulatorConfig    `mapstructure:"simulator"`
	Exporter    ExporterConfig     `mapstructure:"exporter"`
}

// LogConfig defines logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
	File  string `mapstructure:"file"`  // Log file path
}

// ConnectionConfig describes how to reach the device. It is fixed for the
// lifetime of a session.
type ConnectionConfig struct {
	Backend  string        `mapstructure:"backend"` // "serial", "tcp", "mbap", "local"
	Device   string        `mapstructure:"device"`
	BaudRate int           `mapstructure:"baud_rate"`
	DataBits int           `mapstructure:"data_bits"`
	Parity   string        `mapstructure:"parity"` // N, E, O
	StopBits int           `mapstructure:"stop_bits"`
	Timeout  time.Duration `mapstructure:"timeout"`
	SlaveID  int           `mapstructure:"slave_id"`
	Retries  int           `mapstructure:"retries"`
	Tcp      TcpConfig     `mapstructure:"tcp"` // Used if Backend is "tcp" or "mbap"

	// RS485 specific
	RS485              bool          `mapstructure:"rs485"`
	DelayRtsBeforeSend time.Duration `mapstructure:"delay_rts_before_send"`
	DelayRtsAfterSend  time.Duration `mapstructure:"delay_rts_after_send"`
	RtsHighDuringSend  bool          `mapstructure:"rts_high_during_send"`
	RtsHighAfterSend   bool          `mapstructure:"rts_high_after_send"`
	RxDuringTx         bool          `mapstructure:"rx_during_tx"`
}

// TcpConfig defines TCP settings
type TcpConfig struct {
	Address string `mapstructure:"address"` // e.g. "192.168.1.100:8899"
}

// RegisterConfig is one entry of the poll list.
type RegisterConfig struct {
	Key         string   `mapstructure:"key"`
	Address     uint16   `mapstructure:"address"`
	Description string   `mapstructure:"description"`
	Scale       *float64 `mapstructure:"scale"` // 1 when unset

}

// RegisterMapEntry names one writable register. A list is used instead of a
// map so that names keep their case.
type RegisterMapEntry struct {
	Name    string `mapstructure:"name"`
	Address uint16 `mapstructure:"address"`
}

// SimulatorConfig defines the simulated device.
type SimulatorConfig struct {
	Device      string            `mapstructure:"device"`      // serial device to serve on
	Listen      string            `mapstructure:"listen"`      // RTU over TCP listen address
	MbapListen  string            `mapstructure:"mbap_listen"` // Modbus TCP listen address
	SlaveIDs    string            `mapstructure:"slave_ids"`   // "1", "1,2", "1-10"
	Persistence PersistenceConfig `mapstructure:"persistence"`
	Registers   []SeedRegister    `mapstructure:"registers"`
	// Strict answers illegal data address for registers that were not seeded.
	Strict bool `mapstructure:"strict"`
}

// PersistenceConfig defines data storage settings
type PersistenceConfig struct {
	Type string `mapstructure:"type"` // "memory", "file", "mmap"
	Path string `mapstructure:"path"` // File path for "file/mmap" type
}

// SeedRegister is an initial holding register value of the simulator.
type SeedRegister struct {
	Address uint16 `mapstructure:"address"`
	Value   uint16 `mapstructure:"value"`
}

// ExporterConfig defines the metrics exporter.
type ExporterConfig struct {
	Listen   string        `mapstructure:"listen"`
	Interval time.Duration `mapstructure:"interval"`
}

// environment holds the variables understood in addition to the config file.
var environment = map[string]string{
	"connection.device":      "MODBUS_PORT",
	"connection.baud_rate":   "MODBUS_BAUDRATE",
	"connection.timeout":     "MODBUS_TIMEOUT",
	"connection.parity":      "MODBUS_PARITY",
	"connection.stop_bits":   "MODBUS_STOPBITS",
	"connection.data_bits":   "MODBUS_BYTESIZE",
	"connection.slave_id":    "MODBUS_SLAVE",
	"connection.backend":     "MODBUS_BACKEND",
	"connection.tcp.address": "MODBUS_TCP_ADDRESS",
}

// flagKeys maps command line flags onto configuration keys.
var flagKeys = map[string]string{
	"backend":   "connection.backend",
	"device":    "connection.device",
	"baud-rate": "connection.baud_rate",
	"data-bits": "connection.data_bits",
	"parity":    "connection.parity",
	"stop-bits": "connection.stop_bits",
	"timeout":   "connection.timeout",
	"slave-id":  "connection.slave_id",
	"retries":   "connection.retries",
	"address":   "connection.tcp.address",
	"log-level": "log.level",
	"log-file":  "log.file",
	"listen":    "exporter.listen",
	"interval":  "exporter.interval",
}

// LoadConfig loads configuration from defaults, file, environment and flags,
// in increasing order of precedence. A missing config file is not an error
// unless configFile names it explicitly.
func LoadConfig(configFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/solar-modbus/")
		v.AddConfigPath("$HOME/.solar-modbus")
		v.AddConfigPath(".")
	}

	setDefaults(v)

	for key, env := range environment {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind env %s: %w", env, err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		secondsHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
	))
	if err := v.Unmarshal(&config, hook); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal config: %v", modbus.ErrConfiguration, err)
	}

	config.fixup()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("connection.backend", BackendSerial)
	v.SetDefault("connection.device", "/dev/ttyUSB0")
	v.SetDefault("connection.baud_rate", 9600)
	v.SetDefault("connection.data_bits", 8)
	v.SetDefault("connection.parity", "N")
	v.SetDefault("connection.stop_bits", 1)
	v.SetDefault("connection.timeout", "3s")
	v.SetDefault("connection.slave_id", 1)
	v.SetDefault("connection.retries", 0)
	v.SetDefault("simulator.slave_ids", "1")
	v.SetDefault("simulator.persistence.type", "memory")
	v.SetDefault("exporter.listen", ":9105")
	v.SetDefault("exporter.interval", "30s")
}

// secondsHookFunc lets durations be given as whole seconds ("3" or 3), the
// way MODBUS_TIMEOUT has always been written.
func secondsHookFunc() mapstructure.DecodeHookFuncType {
	return func(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
		if t != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch d := data.(type) {
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(d)); err == nil {
				return time.Duration(n) * time.Second, nil
			}
		case int:
			return time.Duration(d) * time.Second, nil
		case int64:
			return time.Duration(d) * time.Second, nil
		}
		return data, nil
	}
}

func (c *Config) fixup() {
	c.Connection.Backend = strings.ToLower(strings.TrimSpace(c.Connection.Backend))
	c.Connection.Parity = normalizeParity(c.Connection.Parity)
	c.Log.Level = strings.ToLower(c.Log.Level)
	c.Simulator.Persistence.Type = strings.ToLower(c.Simulator.Persistence.Type)
}

func normalizeParity(p string) string {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case "n", "none":
		return "N"
	case "e", "even":
		return "E"
	case "o", "odd":
		return "O"
	default:
		return p
	}
}

// Validate rejects parameter combinations before any port is touched.
func (c *Config) Validate() error {
	if err := c.Connection.Validate(); err != nil {
		return err
	}
	seen := make(map[string]bool, len(c.RegisterMap))
	for _, e := range c.RegisterMap {
		if seen[e.Name] {
			return fmt.Errorf("%w: register map entry %q defined twice", modbus.ErrConfiguration, e.Name)
		}
		seen[e.Name] = true
	}
	if _, err := registers.NewRegisterMap(c.RegisterMapEntries()); err != nil {
		return fmt.Errorf("%w: %v", modbus.ErrConfiguration, err)
	}
	if err := registers.ValidateSpecs(c.ReadSpecs()); err != nil {
		return fmt.Errorf("%w: %v", modbus.ErrConfiguration, err)
	}
	switch c.Simulator.Persistence.Type {
	case "", "memory", "file", "mmap":
	default:
		return fmt.Errorf("%w: unknown persistence type %q", modbus.ErrConfiguration, c.Simulator.Persistence.Type)
	}
	return nil
}

// Validate checks the connection parameters.
func (c *ConnectionConfig) Validate() error {
	fail := func(format string, v ...interface{}) error {
		return fmt.Errorf("%w: %s", modbus.ErrConfiguration, fmt.Sprintf(format, v...))
	}

	switch c.Backend {
	case BackendSerial:
		if c.Device == "" {
			return fail("serial device is required")
		}
	case BackendTCP, BackendMBAP:
		if c.Tcp.Address == "" {
			return fail("tcp address is required for backend %q", c.Backend)
		}
	case BackendLocal:
	default:
		return fail("unknown backend %q", c.Backend)
	}
	if c.BaudRate <= 0 {
		return fail("baud rate %d must be positive", c.BaudRate)
	}
	if c.DataBits < 5 || c.DataBits > 8 {
		return fail("data bits %d must be between 5 and 8", c.DataBits)
	}
	switch c.Parity {
	case "N", "E", "O":
	default:
		return fail("parity %q must be one of none, even, odd", c.Parity)
	}
	if c.StopBits != 1 && c.StopBits != 2 {
		return fail("stop bits %d must be 1 or 2", c.StopBits)
	}
	if c.Timeout <= 0 {
		return fail("timeout %v must be positive", c.Timeout)
	}
	if c.SlaveID < 1 || c.SlaveID > 247 {
		return fail("slave id %d must be between 1 and 247", c.SlaveID)
	}
	if c.Retries < 0 {
		return fail("retries %d must not be negative", c.Retries)
	}
	return nil
}

// ReadSpecs returns the configured poll list, or the built-in catalog when
// none is configured.
func (c *Config) ReadSpecs() []registers.RegisterSpec {
	if len(c.Registers) == 0 {
		return registers.DefaultSpecs()
	}
	specs := make([]registers.RegisterSpec, 0, len(c.Registers))
	for _, r := range c.Registers {
		scale := 1.0
		if r.Scale != nil {
			scale = *r.Scale
		}
		specs = append(specs, registers.RegisterSpec{
			Key:         r.Key,
			Address:     r.Address,
			Description: r.Description,
			Scale:       scale,
		})
	}
	return specs
}

// RegisterMapEntries returns the configured register map, or the built-in
// one when none is configured.
func (c *Config) RegisterMapEntries() map[string]uint16 {
	if len(c.RegisterMap) == 0 {
		return registers.DefaultRegisterMap()
	}
	entries := make(map[string]uint16, len(c.RegisterMap))
	for _, e := range c.RegisterMap {
		entries[e.Name] = e.Address
	}
	return entries
}

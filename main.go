// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/pflag"
	bugst "go.bug.st/serial"

	"github.com/ffutop/solar-modbus/internal/config"
	"github.com/ffutop/solar-modbus/internal/exporter"
	"github.com/ffutop/solar-modbus/internal/report"
	"github.com/ffutop/solar-modbus/internal/simulator"
	"github.com/ffutop/solar-modbus/modbus"
	"github.com/ffutop/solar-modbus/registers"
	"github.com/ffutop/solar-modbus/transport"
	"github.com/ffutop/solar-modbus/transport/local"
	"github.com/ffutop/solar-modbus/transport/rtu"
	"github.com/ffutop/solar-modbus/transport/rtuovertcp"
	"github.com/ffutop/solar-modbus/transport/tcp"
)

const usage = `usage: solar-modbus [flags] <command> [args]

Commands:
  read                         read the monitoring registers
  write <register_name> <value>
                               write one named register
  ports                        list serial ports
  simulate                     run the simulated inverter
  export                       serve the readings as Prometheus metrics

Flags:
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, stdout io.Writer) int {
	flags := pflag.NewFlagSet("solar-modbus", pflag.ContinueOnError)
	flags.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flags.PrintDefaults()
	}
	configFile := flags.StringP("config", "c", "", "Path to config file")
	flags.String("backend", "", "Transport: serial, tcp, mbap or local")
	flags.StringP("device", "d", "", "Serial device (MODBUS_PORT)")
	flags.Int("baud-rate", 0, "Baud rate (MODBUS_BAUDRATE)")
	flags.Int("data-bits", 0, "Data bits (MODBUS_BYTESIZE)")
	flags.String("parity", "", "Parity: none, even or odd (MODBUS_PARITY)")
	flags.Int("stop-bits", 0, "Stop bits (MODBUS_STOPBITS)")
	flags.String("timeout", "", "Response timeout, seconds or a duration (MODBUS_TIMEOUT)")
	flags.Int("slave-id", 0, "Slave address (MODBUS_SLAVE)")
	flags.Int("retries", 0, "Extra attempts per register after a timeout or transport error")
	flags.String("address", "", "host:port of an RTU over TCP device server")
	flags.String("log-level", "", "Log level: debug, info, warn, error")
	flags.String("log-file", "", "Log file, stderr if empty")
	flags.String("listen", "", "Metrics listen address for export")
	flags.String("interval", "", "Poll interval for export")
	format := flags.StringP("format", "f", report.FormatJSON, "Output format of read: json or table")
	strict := flags.Bool("strict", false, "Exit non-zero when any register could not be read")

	if err := flags.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return 0
		}
		return 2
	}
	if flags.NArg() == 0 {
		flags.Usage()
		return 2
	}
	command, rest := flags.Arg(0), flags.Args()[1:]

	if command == "ports" {
		return listPorts(stdout)
	}

	cfg, err := config.LoadConfig(*configFile, flags)
	if err != nil {
		if command == "write" {
			report.WriteJSON(stdout, errorMessage(err.Error()))
		} else {
			fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		}
		return 1
	}
	setupLogger(cfg.Log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch command {
	case "read":
		return runRead(ctx, cfg, *format, *strict, stdout)
	case "write":
		return runWrite(ctx, cfg, rest, stdout)
	case "simulate":
		return runSimulate(ctx, cfg)
	case "export":
		return runExport(ctx, cfg)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", command)
		flags.Usage()
		return 2
	}
}

func runRead(ctx context.Context, cfg *config.Config, format string, strict bool, stdout io.Writer) int {
	opener, closeFn, err := newOpener(cfg)
	if err != nil {
		slog.Error("Failed to set up transport", "err", err)
		return 1
	}
	defer closeFn()

	specs := cfg.ReadSpecs()
	reader := &registers.Reader{
		Opener:  opener,
		SlaveID: byte(cfg.Connection.SlaveID),
		Timeout: cfg.Connection.Timeout,
		Retries: cfg.Connection.Retries,
	}
	res, err := reader.ReadAll(ctx, specs)
	if res == nil {
		fmt.Fprintln(os.Stderr, readFailure(err))
		return 1
	}
	if err := report.WriteRead(stdout, format, specs, res); err != nil {
		slog.Error("Failed to write result", "err", err)
		return 1
	}
	if err != nil || (strict && len(res.Errors) > 0) {
		return 1
	}
	return 0
}

func runWrite(ctx context.Context, cfg *config.Config, args []string, stdout io.Writer) int {
	if len(args) != 2 {
		report.WriteJSON(stdout, errorMessage("usage: solar-modbus write <register_name> <value>"))
		return 1
	}
	value, err := strconv.Atoi(args[1])
	if err != nil {
		report.WriteJSON(stdout, errorMessage(fmt.Sprintf("invalid value %q: must be an integer", args[1])))
		return 1
	}

	registerMap, err := registers.NewRegisterMap(cfg.RegisterMapEntries())
	if err != nil {
		report.WriteJSON(stdout, errorMessage(err.Error()))
		return 1
	}
	slog.Debug("Register map loaded", "entries", registerMap.Len())
	opener, closeFn, err := newOpener(cfg)
	if err != nil {
		report.WriteJSON(stdout, errorMessage(err.Error()))
		return 1
	}
	defer closeFn()

	writer := &registers.Writer{
		Opener:  opener,
		SlaveID: byte(cfg.Connection.SlaveID),
		Timeout: cfg.Connection.Timeout,
	}
	out := writer.Write(ctx, registerMap, args[0], value)
	report.WriteJSON(stdout, out)
	if out.Status != registers.StatusSuccess {
		return 1
	}
	return 0
}

func runSimulate(ctx context.Context, cfg *config.Config) int {
	sim, err := simulator.New(cfg.Simulator)
	if err != nil {
		slog.Error("Failed to start simulator", "err", err)
		return 1
	}
	defer sim.Close()

	slog.Info("Starting simulated inverter...", "slaveIDs", cfg.Simulator.SlaveIDs)
	if err := sim.Run(ctx, cfg.Connection); err != nil {
		slog.Error("Simulator stopped with error", "err", err)
		return 1
	}
	slog.Info("Goodbye.")
	return 0
}

func runExport(ctx context.Context, cfg *config.Config) int {
	opener, closeFn, err := newOpener(cfg)
	if err != nil {
		slog.Error("Failed to set up transport", "err", err)
		return 1
	}
	defer closeFn()

	reader := &registers.Reader{
		Opener:  opener,
		SlaveID: byte(cfg.Connection.SlaveID),
		Timeout: cfg.Connection.Timeout,
		Retries: cfg.Connection.Retries,
	}
	e := exporter.New(reader, cfg.ReadSpecs(), cfg.Exporter)
	if err := e.Run(ctx); err != nil {
		slog.Error("Exporter stopped with error", "err", err)
		return 1
	}
	slog.Info("Goodbye.")
	return 0
}

// readFailure describes why a batch read produced no result at all.
func readFailure(err error) string {
	if errors.Is(err, modbus.ErrConfiguration) {
		return fmt.Sprintf("Invalid register list: %v", err)
	}
	return fmt.Sprintf("Failed to connect to Modbus device: %v", err)
}

// newOpener returns the transport opener for the configured backend. The
// returned func releases what the backend holds beyond single sessions.
func newOpener(cfg *config.Config) (transport.Opener, func(), error) {
	switch cfg.Connection.Backend {
	case config.BackendTCP:
		return rtuovertcp.NewOpener(cfg.Connection.Tcp.Address, cfg.Connection.Timeout), func() {}, nil
	case config.BackendMBAP:
		return tcp.NewOpener(cfg.Connection.Tcp.Address, cfg.Connection.Timeout), func() {}, nil
	case config.BackendLocal:
		sim, err := simulator.New(cfg.Simulator)
		if err != nil {
			return nil, nil, err
		}
		return local.NewOpener(sim.Handler()), func() { sim.Close() }, nil
	default:
		return rtu.NewOpener(cfg.Connection), func() {}, nil
	}
}

func listPorts(stdout io.Writer) int {
	ports, err := bugst.GetPortsList()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list serial ports: %v\n", err)
		return 1
	}
	if len(ports) == 0 {
		fmt.Fprintln(os.Stderr, "No serial ports found")
		return 0
	}
	for _, p := range ports {
		fmt.Fprintln(stdout, p)
	}
	return 0
}

func errorMessage(msg string) map[string]string {
	return map[string]string{"status": registers.StatusError, "message": msg}
}

func setupLogger(cfg config.LogConfig) {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	}

	// stdout carries the JSON results.
	var handler slog.Handler
	if cfg.File != "" && cfg.File != "-" {
		f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file, falling back to stderr: %v\n", err)
			handler = slog.NewTextHandler(os.Stderr, opts)
		} else {
			handler = slog.NewTextHandler(f, opts)
		}
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

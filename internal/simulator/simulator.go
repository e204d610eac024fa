// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package simulator implements a simulated solar inverter: a Modbus RTU
// slave holding registers in memory or on disk, served on a serial line,
// as RTU over TCP or as Modbus TCP.
package simulator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ffutop/solar-modbus/internal/config"
	"github.com/ffutop/solar-modbus/internal/simulator/model"
	"github.com/ffutop/solar-modbus/internal/simulator/persistence"
	"github.com/ffutop/solar-modbus/transport"
	"github.com/ffutop/solar-modbus/transport/rtu"
	"github.com/ffutop/solar-modbus/transport/rtuovertcp"
	"github.com/ffutop/solar-modbus/transport/tcp"
)

// Simulator owns the register bank and the listeners that expose it.
type Simulator struct {
	cfg     config.SimulatorConfig
	storage persistence.Storage
	device  *Device
}

// New loads the register bank and applies the seed values.
func New(cfg config.SimulatorConfig) (*Simulator, error) {
	ids, err := ParseSlaveIDs(cfg.SlaveIDs)
	if err != nil {
		return nil, fmt.Errorf("simulator: %w", err)
	}

	storage := persistence.New(cfg.Persistence.Type, cfg.Persistence.Path)
	bank, err := storage.Load()
	if err != nil {
		return nil, fmt.Errorf("simulator: failed to load registers: %w", err)
	}
	slog.Info("Simulator register bank loaded", "persistence", cfg.Persistence.Type, "path", cfg.Persistence.Path)

	seeds := make([]model.Seed, 0, len(cfg.Registers))
	for _, r := range cfg.Registers {
		seeds = append(seeds, model.Seed{Address: r.Address, Value: r.Value})
	}
	bank.Seed(seeds, cfg.Strict)
	if len(seeds) > 0 {
		if err := storage.Save(bank); err != nil {
			slog.Warn("Failed to persist seed registers", "err", err)
		}
	}

	slave := NewSlave(bank, storage)

	return &Simulator{
		cfg:     cfg,
		storage: storage,
		device:  NewDevice(slave, ids),
	}, nil
}

// Handler returns the request handler of the simulated device.
func (s *Simulator) Handler() transport.RequestHandler {
	return s.device.Handle
}

// Run serves on the configured serial device and TCP addresses until ctx is
// done. line supplies the serial line settings.
func (s *Simulator) Run(ctx context.Context, line config.ConnectionConfig) error {
	type server interface {
		Start(ctx context.Context, handler transport.RequestHandler) error
	}
	var servers []server
	if s.cfg.Device != "" {
		servers = append(servers, rtu.NewServer(line, s.cfg.Device))
	}
	if s.cfg.Listen != "" {
		servers = append(servers, rtuovertcp.NewServer(s.cfg.Listen))
	}
	if s.cfg.MbapListen != "" {
		servers = append(servers, tcp.NewServer(s.cfg.MbapListen))
	}
	if len(servers) == 0 {
		return fmt.Errorf("simulator: no serial device or listen address is configured")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errs := make(chan error, len(servers))
	var wg sync.WaitGroup
	for _, srv := range servers {
		wg.Add(1)
		go func(srv server) {
			defer wg.Done()
			if err := srv.Start(ctx, s.Handler()); err != nil {
				errs <- err
				cancel()
			}
		}(srv)
	}
	wg.Wait()
	close(errs)
	return <-errs
}

// Close releases the storage.
func (s *Simulator) Close() error {
	return s.storage.Close()
}

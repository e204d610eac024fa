// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/grid-x/serial"

	"github.com/ffutop/solar-modbus/internal/config"
	"github.com/ffutop/solar-modbus/modbus"
	rtupacket "github.com/ffutop/solar-modbus/modbus/rtu"
	"github.com/ffutop/solar-modbus/transport"
)

// Server answers requests on a serial line, acting as the slave side of
// the bus.
type Server struct {
	Config serial.Config
}

// NewServer creates a new RTU Server on device with the line settings of cfg.
func NewServer(cfg config.ConnectionConfig, device string) *Server {
	sc := newSerialConfig(cfg)
	sc.Address = device
	return &Server{Config: sc}
}

// Start opens the port and serves until ctx is done.
func (s *Server) Start(ctx context.Context, handler transport.RequestHandler) error {
	port, err := serial.Open(&s.Config)
	if err != nil {
		return fmt.Errorf("%w: failed to open serial port %s: %w", modbus.ErrConnection, s.Config.Address, err)
	}
	defer port.Close()
	slog.Info("RTU Server listening", "device", s.Config.Address)

	go func() {
		<-ctx.Done()
		port.Close()
	}()

	return s.scanLoop(ctx, port, handler)
}

func (s *Server) scanLoop(ctx context.Context, port io.ReadWriter, handler transport.RequestHandler) error {
	buf := make([]byte, rtupacket.MaxSize)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		// Read 1 byte to unblock
		n, err := port.Read(buf[:1])
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			continue
		}
		if n == 0 {
			continue
		}

		// Read header (attempt 7 bytes total to cover ByteCount for variable length functions)
		current := 1
		need := 7
		for current < need {
			n, err := port.Read(buf[current:need])
			if err != nil {
				break
			}
			current += n
		}
		if current < 2 {
			continue
		}

		expectedLen, err := rtupacket.CalculateRequestLength(buf[1], buf[:current])
		if err != nil {
			slog.Debug("dropping unframeable request", "err", err)
			continue
		}

		for current < expectedLen {
			n, err := port.Read(buf[current:expectedLen])
			if err != nil {
				break
			}
			current += n
		}
		if current < expectedLen {
			continue
		}

		resp, ok := transport.ServeFrame(ctx, buf[:expectedLen], handler)
		if !ok {
			continue
		}
		if _, err := port.Write(resp); err != nil {
			slog.Error("Failed to write response", "err", err)
		}
	}
}

// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/grid-x/serial"

	"github.com/ffutop/solar-modbus/internal/config"
	"github.com/ffutop/solar-modbus/modbus"
)

// pollInterval bounds a single blocking read so that receive deadlines are honored.
const pollInterval = 50 * time.Millisecond

// serialPort has configuration and I/O controller.
type serialPort struct {
	// Serial port configuration.
	serial.Config

	mu sync.Mutex
	// port is platform-dependent data structure for serial port.
	port         io.ReadWriteCloser
	lastActivity time.Time
}

func newSerialConfig(cfg config.ConnectionConfig) serial.Config {
	sc := serial.Config{
		Address:  cfg.Device,
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		StopBits: cfg.StopBits,
		Parity:   cfg.Parity,
		Timeout:  pollInterval,
	}
	if cfg.RS485 {
		sc.RS485 = serial.RS485Config{
			Enabled:            true,
			DelayRtsBeforeSend: cfg.DelayRtsBeforeSend,
			DelayRtsAfterSend:  cfg.DelayRtsAfterSend,
			RtsHighDuringSend:  cfg.RtsHighDuringSend,
			RtsHighAfterSend:   cfg.RtsHighAfterSend,
			RxDuringTx:         cfg.RxDuringTx,
		}
	}
	return sc
}

// connect connects to the serial port if it is not connected. Caller must hold the mutex.
func (sp *serialPort) connect(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if sp.port == nil {
		port, err := serial.Open(&sp.Config)
		if err != nil {
			return fmt.Errorf("%w: could not open %s: %w", modbus.ErrConnection, sp.Config.Address, err)
		}
		sp.port = port
	}
	return nil
}

func (sp *serialPort) Close() (err error) {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	return sp.close()
}

// close closes the serial port if it is connected. Caller must hold the mutex.
func (sp *serialPort) close() (err error) {
	if sp.port != nil {
		err = sp.port.Close()
		sp.port = nil
	}
	return
}

// deadlineReader turns the port's per-read timeouts into a single deadline
// for a whole frame.
type deadlineReader struct {
	r        io.Reader
	deadline time.Time
}

func (d *deadlineReader) Read(p []byte) (int, error) {
	if time.Now().After(d.deadline) {
		return 0, modbus.ErrRequestTimedOut
	}
	n, err := d.r.Read(p)
	if errors.Is(err, serial.ErrTimeout) {
		err = nil
	}
	return n, err
}

// discard drains the receive buffer for up to the duration of one maximum
// frame so a device that kept talking does not corrupt the next exchange.
func discard(r io.Reader, window time.Duration) {
	buf := make([]byte, 256)
	dr := &deadlineReader{r: r, deadline: time.Now().Add(window)}
	for {
		n, err := dr.Read(buf)
		if err != nil {
			return
		}
		if n > 0 {
			slog.Debug("discarded trailing bytes", "count", n)
		}
	}
}

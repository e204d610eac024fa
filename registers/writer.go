// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package registers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ffutop/solar-modbus/master"
	"github.com/ffutop/solar-modbus/transport"
)

// Write statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// WriteOutcome reports a write. Address is nil when the name did not resolve.
type WriteOutcome struct {
	Status       string  `json:"status"`
	Message      string  `json:"message"`
	RegisterName string  `json:"register_name"`
	Address      *string `json:"address"`
	Value        int     `json:"value"`
}

// Writer writes single named registers.
type Writer struct {
	Opener   transport.Opener
	SlaveID  byte
	Timeout  time.Duration
	Observer master.Observer
}

// Write resolves name through registerMap and writes value to it. Failures
// are reported in the outcome, never as an error. Nothing is sent when the
// name is unknown or the value does not fit in a register.
func (w *Writer) Write(ctx context.Context, registerMap RegisterMap, name string, value int) WriteOutcome {
	out := WriteOutcome{Status: StatusError, RegisterName: name, Value: value}

	address, ok := registerMap.Lookup(name)
	if !ok {
		out.Message = fmt.Sprintf("register not found: '%s' is not in the register map", name)
		slog.Warn("Unknown register", "register", name, "known", registerMap.Names())
		return out
	}
	hex := HexAddress(address)
	out.Address = &hex

	if value < 0 || value > 0xFFFF {
		out.Message = fmt.Sprintf("value %d out of range: must be between 0 and 65535", value)
		return out
	}

	t, err := w.Opener.Open(ctx)
	if err != nil {
		out.Message = fmt.Sprintf("failed to connect to the Modbus device: %v", err)
		return out
	}
	defer t.Close()

	m := master.New(t, w.SlaveID, w.Timeout)
	m.Observer = w.Observer

	res := m.Execute(ctx, master.WriteRequest{Address: address, Value: uint16(value)})
	if res.Outcome != master.Success {
		out.Message = fmt.Sprintf("failed to write register '%s' at address %s: %s", name, hex, res.Reason())
		slog.Warn("register write failed", "register", name, "address", hex, "outcome", res.Outcome)
		return out
	}

	out.Status = StatusSuccess
	out.Message = fmt.Sprintf("successfully wrote value %d to register '%s' at address %s", value, name, hex)
	slog.Info("register written", "register", name, "address", hex, "value", value)
	return out
}

// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package registers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ffutop/solar-modbus/master"
	"github.com/ffutop/solar-modbus/modbus"
	"github.com/ffutop/solar-modbus/transport"
)

// Reader polls a list of registers, one exchange per register.
type Reader struct {
	Opener  transport.Opener
	SlaveID byte
	Timeout time.Duration
	// Retries is the number of extra attempts after a transport error or a
	// timeout. Device exceptions are never retried.
	Retries  int
	Observer master.Observer
}

// ReadAll reads specs in order within one transport session. A register that
// fails is recorded in Result.Errors and the batch goes on.
//
// The returned error is non-nil only for failures of the connection itself.
// If the session cannot be opened the Result is nil; if the connection is
// lost midway, the remaining registers are reported as skipped.
func (r *Reader) ReadAll(ctx context.Context, specs []RegisterSpec) (*Result, error) {
	if err := ValidateSpecs(specs); err != nil {
		return nil, fmt.Errorf("%w: %v", modbus.ErrConfiguration, err)
	}

	t, err := r.Opener.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer t.Close()

	m := master.New(t, r.SlaveID, r.Timeout)
	m.Observer = r.Observer

	result := newResult(len(specs))
	var skip, connErr error
	for _, spec := range specs {
		if skip == nil {
			skip = ctx.Err()
		}
		if skip != nil {
			result.fail(spec.Name(), fmt.Sprintf("Skipped %s at address %s: %v", spec.Description, HexAddress(spec.Address), skip))
			continue
		}

		res := r.read(ctx, m, spec)
		if res.Outcome != master.Success {
			result.fail(spec.Name(), fmt.Sprintf("Error reading %s at address %s: %s", spec.Description, HexAddress(spec.Address), res.Reason()))
			if errors.Is(res.Err, modbus.ErrConnection) {
				connErr = res.Err
				skip = res.Err
			}
			continue
		}
		result.set(spec.Name(), spec.Apply(res.Values[0]))
	}

	slog.Debug("batch read finished", "registers", len(specs), "errors", len(result.Errors))
	return result, connErr
}

func (r *Reader) read(ctx context.Context, m *master.Master, spec RegisterSpec) master.ExchangeResult {
	req := master.ReadRequest{Address: spec.Address, Quantity: 1}
	res := m.Execute(ctx, req)
	for attempt := 0; attempt < r.Retries && retryable(ctx, res); attempt++ {
		slog.Debug("retrying register read", "register", spec.Name(), "attempt", attempt+1, "reason", res.Reason())
		res = m.Execute(ctx, req)
	}
	return res
}

func retryable(ctx context.Context, res master.ExchangeResult) bool {
	if ctx.Err() != nil || errors.Is(res.Err, modbus.ErrConnection) {
		return false
	}
	return res.Outcome == master.TransportError || res.Outcome == master.Timeout
}

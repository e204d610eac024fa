// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package master drives single Modbus RTU exchanges with one device and
// classifies how each of them ended.
package master

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ffutop/solar-modbus/modbus"
	rtupacket "github.com/ffutop/solar-modbus/modbus/rtu"
	"github.com/ffutop/solar-modbus/transport"
)

// Outcome classifies a finished exchange.
type Outcome int

const (
	Success Outcome = iota
	DeviceException
	TransportError
	Timeout
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case DeviceException:
		return "device_exception"
	case TransportError:
		return "transport_error"
	case Timeout:
		return "timeout"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// State is the position of an exchange in its life cycle:
// Idle -> Sent -> AwaitingResponse -> {Decoded | TimedOut | TransportFailed}.
type State int

const (
	Idle State = iota
	Sent
	AwaitingResponse
	Decoded
	TimedOut
	TransportFailed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Sent:
		return "sent"
	case AwaitingResponse:
		return "awaiting_response"
	case Decoded:
		return "decoded"
	case TimedOut:
		return "timed_out"
	case TransportFailed:
		return "transport_failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Request is a ReadRequest or a WriteRequest.
type Request interface {
	FunctionCode() byte
	encode(slaveID byte) ([]byte, error)
	check(resp *rtupacket.Response) error
}

// ReadRequest reads Quantity holding registers starting at Address.
type ReadRequest struct {
	Address  uint16
	Quantity uint16
}

func (r ReadRequest) FunctionCode() byte { return modbus.FuncCodeReadHoldingRegisters }

func (r ReadRequest) encode(slaveID byte) ([]byte, error) {
	return rtupacket.EncodeReadRequest(slaveID, r.Address, r.Quantity)
}

func (r ReadRequest) check(resp *rtupacket.Response) error {
	if len(resp.Values) != int(r.Quantity) {
		return modbus.NewProtocolError(modbus.ErrInvalidLength, "got %d registers, requested %d", len(resp.Values), r.Quantity)
	}
	return nil
}

// WriteRequest writes Value to the holding register at Address.
type WriteRequest struct {
	Address uint16
	Value   uint16
}

func (r WriteRequest) FunctionCode() byte { return modbus.FuncCodeWriteSingleRegister }

func (r WriteRequest) encode(slaveID byte) ([]byte, error) {
	return rtupacket.EncodeWriteRequest(slaveID, r.Address, r.Value)
}

func (r WriteRequest) check(resp *rtupacket.Response) error {
	if resp.Address != r.Address || resp.Value != r.Value {
		return modbus.NewProtocolError(modbus.ErrEchoMismatch, "wrote %#04x=%d, device echoed %#04x=%d", r.Address, r.Value, resp.Address, resp.Value)
	}
	return nil
}

// ExchangeResult is the classified result of one exchange. Err is nil only
// for Success.
type ExchangeResult struct {
	Outcome   Outcome
	State     State
	Values    []uint16
	Exception modbus.ExceptionCode
	Err       error
}

// Reason describes why the exchange failed, or "ok".
func (r ExchangeResult) Reason() string {
	switch r.Outcome {
	case Success:
		return "ok"
	case DeviceException:
		return fmt.Sprintf("device exception %d (%s)", byte(r.Exception), r.Exception)
	case Timeout:
		return fmt.Sprintf("timeout: %v", r.Err)
	default:
		return fmt.Sprintf("transport error: %v", r.Err)
	}
}

// Observer is told about every finished exchange.
type Observer interface {
	ObserveExchange(functionCode byte, outcome Outcome, elapsed time.Duration)
}

// Master issues requests to one slave over one transport. Exchanges are
// serialized: the bus is half-duplex and single-master.
type Master struct {
	SlaveID  byte
	Timeout  time.Duration
	Observer Observer

	mu        sync.Mutex
	transport transport.Transport
}

// New returns a Master that owns t for the duration of each exchange.
func New(t transport.Transport, slaveID byte, timeout time.Duration) *Master {
	return &Master{transport: t, SlaveID: slaveID, Timeout: timeout}
}

// Execute performs exactly one attempt of req. It never retries.
func (m *Master) Execute(ctx context.Context, req Request) ExchangeResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := time.Now()
	res := m.execute(ctx, req)
	elapsed := time.Since(start)

	if res.Outcome == Success {
		slog.Debug("modbus exchange", "slave", m.SlaveID, "function", req.FunctionCode(), "state", res.State, "elapsed", elapsed)
	} else {
		slog.Debug("modbus exchange failed", "slave", m.SlaveID, "function", req.FunctionCode(), "state", res.State, "outcome", res.Outcome, "reason", res.Reason())
	}
	if m.Observer != nil {
		m.Observer.ObserveExchange(req.FunctionCode(), res.Outcome, elapsed)
	}
	return res
}

func (m *Master) execute(ctx context.Context, req Request) ExchangeResult {
	state := Idle
	fail := func(outcome Outcome, err error) ExchangeResult {
		return ExchangeResult{Outcome: outcome, State: state, Err: err}
	}

	if err := ctx.Err(); err != nil {
		return fail(TransportError, err)
	}
	adu, err := req.encode(m.SlaveID)
	if err != nil {
		return fail(TransportError, err)
	}

	if err := m.transport.Send(adu); err != nil {
		state = TransportFailed
		return fail(TransportError, err)
	}
	state = Sent

	maxWait := m.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < maxWait {
			maxWait = left
		}
	}

	state = AwaitingResponse
	raw, err := m.transport.Receive(req.FunctionCode(), maxWait)
	if err != nil {
		if errors.Is(err, modbus.ErrRequestTimedOut) {
			state = TimedOut
			// A late reply must not be taken for the answer to the next request.
			m.discard()
			return fail(Timeout, err)
		}
		state = TransportFailed
		m.resync(err)
		return fail(TransportError, err)
	}

	resp, err := rtupacket.DecodeResponse(raw, m.SlaveID, req.FunctionCode())
	if err == nil && !resp.IsException() {
		err = req.check(resp)
	}
	if err != nil {
		state = TransportFailed
		m.resync(err)
		return fail(TransportError, err)
	}

	state = Decoded
	if resp.IsException() {
		return ExchangeResult{
			Outcome:   DeviceException,
			State:     state,
			Exception: resp.Exception,
			Err:       &modbus.ExceptionError{FunctionCode: req.FunctionCode(), ExceptionCode: resp.Exception},
		}
	}
	values := resp.Values
	if values == nil {
		values = []uint16{resp.Value}
	}
	return ExchangeResult{Outcome: Success, State: state, Values: values}
}

// resync drops what is left on the line after a bad frame, so the next
// exchange starts at a frame boundary.
func (m *Master) resync(err error) {
	var perr *modbus.ProtocolError
	if !errors.As(err, &perr) {
		return
	}
	m.discard()
}

func (m *Master) discard() {
	if d, ok := m.transport.(transport.Discarder); ok {
		d.Discard()
	}
}

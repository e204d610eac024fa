// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package transport

import (
	"context"
	"errors"
	"time"

	"github.com/ffutop/solar-modbus/modbus"
)

// Transport carries RTU frames to and from one device. It is owned by a
// single exchange at a time; the bus is half-duplex and single-master.
type Transport interface {
	// Send writes one request frame, observing the inter-frame silence.
	Send(adu []byte) error
	// Receive blocks until a complete response to functionCode has been
	// assembled or maxWait elapses. A partial frame at the deadline is
	// dropped and modbus.ErrRequestTimedOut is returned.
	Receive(functionCode byte, maxWait time.Duration) ([]byte, error)
	Close() error
}

// Discarder is implemented by transports that can drop whatever is left on
// the line after a corrupt frame, so the next exchange starts in sync.
type Discarder interface {
	Discard()
}

// Opener acquires a Transport. Failures wrap modbus.ErrConnection.
type Opener interface {
	Open(ctx context.Context) (Transport, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context) (Transport, error)

func (f OpenerFunc) Open(ctx context.Context) (Transport, error) {
	return f(ctx)
}

// RequestHandler answers one request PDU on the slave side of the bus.
type RequestHandler func(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error)

// ErrNoResponse is returned by a RequestHandler for requests it must not
// answer, such as frames addressed to another slave.
var ErrNoResponse = errors.New("transport: no response")

// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtuovertcp

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/ffutop/solar-modbus/modbus"
	rtupacket "github.com/ffutop/solar-modbus/modbus/rtu"
	"github.com/ffutop/solar-modbus/transport"
)

const (
	tcpTimeout = 10 * time.Second
	// discardWindow bounds how long stale bytes are drained after a bad frame.
	discardWindow = 50 * time.Millisecond
	// quietWindow is how long Send listens for leftovers before writing.
	quietWindow = 5 * time.Millisecond
)

// Opener dials RTU over TCP sessions, typically to a serial device server.
type Opener struct {
	Address string
	Timeout time.Duration
}

// NewOpener returns an Opener for address. A zero timeout uses the default.
func NewOpener(address string, timeout time.Duration) *Opener {
	if timeout <= 0 {
		timeout = tcpTimeout
	}
	return &Opener{Address: address, Timeout: timeout}
}

// Open dials the remote end.
func (o *Opener) Open(ctx context.Context) (transport.Transport, error) {
	d := net.Dialer{Timeout: o.Timeout}
	conn, err := d.DialContext(ctx, "tcp", o.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to %s: %w", modbus.ErrConnection, o.Address, err)
	}
	slog.Debug("RTU over TCP connected", "addr", o.Address)
	return NewClient(conn, o.Timeout), nil
}

// Client carries RTU frames over an established TCP stream.
type Client struct {
	Timeout time.Duration

	mu   sync.Mutex
	conn net.Conn
}

// NewClient wraps conn.
func NewClient(conn net.Conn, timeout time.Duration) *Client {
	return &Client{conn: conn, Timeout: timeout}
}

// Send writes one request frame. Bytes already waiting on the stream, such
// as a late reply to an earlier request, are dropped first.
func (mb *Client) Send(aduRequest []byte) error {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	if mb.conn == nil {
		return fmt.Errorf("%w: connection closed", modbus.ErrConnection)
	}
	mb.drain(quietWindow)
	if err := mb.conn.SetWriteDeadline(time.Now().Add(mb.Timeout)); err != nil {
		return err
	}
	slog.Debug("send to modbus slave", "request", hex.EncodeToString(aduRequest))
	if _, err := mb.conn.Write(aduRequest); err != nil {
		return fmt.Errorf("failed to write to connection: %w", err)
	}
	return nil
}

// Receive reads one response frame to functionCode. RTU over TCP is just RTU
// frames on a stream, so the serial framing applies unchanged.
func (mb *Client) Receive(functionCode byte, maxWait time.Duration) ([]byte, error) {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	if mb.conn == nil {
		return nil, fmt.Errorf("%w: connection closed", modbus.ErrConnection)
	}
	deadline := time.Now().Add(maxWait)
	if err := mb.conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	data, err := rtupacket.ReadFrame(functionCode, mb.conn, deadline)
	if err != nil {
		return nil, err
	}
	slog.Debug("recv from modbus slave", "response", hex.EncodeToString(data))
	return data, nil
}

// Discard drains bytes left on the stream after a corrupt frame.
func (mb *Client) Discard() {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	if mb.conn == nil {
		return
	}
	mb.drain(discardWindow)
}

// drain reads and drops input for window. Caller must hold the mutex.
func (mb *Client) drain(window time.Duration) {
	buf := make([]byte, rtupacket.MaxSize)
	_ = mb.conn.SetReadDeadline(time.Now().Add(window))
	for {
		n, err := mb.conn.Read(buf)
		if err != nil {
			return
		}
		slog.Debug("discarded trailing bytes", "count", n)
	}
}

// Close closes the connection.
func (mb *Client) Close() error {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	if mb.conn == nil {
		return nil
	}
	err := mb.conn.Close()
	mb.conn = nil
	return err
}

var _ transport.Transport = (*Client)(nil)
var _ transport.Discarder = (*Client)(nil)

// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package tcp

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
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
)

// Opener dials Modbus TCP sessions, as offered by most inverter data loggers.
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
	slog.Debug("Modbus TCP connected", "addr", o.Address)
	return NewClient(conn, o.Timeout), nil
}

// Client speaks Modbus TCP while presenting RTU frames to its caller: the
// CRC is stripped on the way out and recomputed on the way in, so the
// master validates every backend the same way.
type Client struct {
	Timeout time.Duration

	mu            sync.Mutex
	conn          net.Conn
	transactionID uint16
	pending       *ApplicationDataUnit
}

// NewClient wraps conn.
func NewClient(conn net.Conn, timeout time.Duration) *Client {
	return &Client{conn: conn, Timeout: timeout}
}

// Send converts one RTU request frame to MBAP and writes it.
func (mb *Client) Send(aduRequest []byte) error {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	if mb.conn == nil {
		return fmt.Errorf("%w: connection closed", modbus.ErrConnection)
	}
	rtuAdu, err := rtupacket.Decode(aduRequest)
	if err != nil {
		return fmt.Errorf("failed to decode request: %w", err)
	}
	mb.transactionID++
	adu := &ApplicationDataUnit{
		TransactionID: mb.transactionID,
		SlaveID:       rtuAdu.SlaveID,
		Pdu:           rtuAdu.Pdu,
	}
	raw, err := adu.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode ADU: %w", err)
	}

	if err := mb.conn.SetWriteDeadline(time.Now().Add(mb.Timeout)); err != nil {
		return err
	}
	slog.Debug("send to modbus tcp slave", "request", hex.EncodeToString(raw))
	if _, err := mb.conn.Write(raw); err != nil {
		return fmt.Errorf("%w: failed to write to connection: %w", modbus.ErrConnection, err)
	}
	mb.pending = adu
	return nil
}

// Receive reads the response to the last request and returns it as an RTU
// frame.
func (mb *Client) Receive(functionCode byte, maxWait time.Duration) ([]byte, error) {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	if mb.conn == nil {
		return nil, fmt.Errorf("%w: connection closed", modbus.ErrConnection)
	}
	if mb.pending == nil {
		return nil, fmt.Errorf("modbus: receive for function '%v' without a request", functionCode)
	}
	if err := mb.conn.SetReadDeadline(time.Now().Add(maxWait)); err != nil {
		return nil, err
	}
	for {
		raw, err := ReadFrame(mb.conn)
		if err != nil {
			var pe *modbus.ProtocolError
			switch {
			case errors.As(err, &pe):
				return nil, err
			case errors.Is(err, os.ErrDeadlineExceeded):
				return nil, modbus.ErrRequestTimedOut
			case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
				return nil, fmt.Errorf("%w: connection closed by peer", modbus.ErrConnection)
			default:
				return nil, err
			}
		}
		slog.Debug("recv from modbus tcp slave", "response", hex.EncodeToString(raw))

		resp, err := Decode(raw)
		if err != nil {
			return nil, err
		}
		if stale(mb.pending.TransactionID, resp.TransactionID) {
			slog.Debug("dropped late reply", "transactionID", resp.TransactionID, "want", mb.pending.TransactionID)
			continue
		}
		if err := mb.pending.Verify(resp); err != nil {
			return nil, err
		}
		mb.pending = nil

		rtuAdu := &rtupacket.ApplicationDataUnit{SlaveID: resp.SlaveID, Pdu: resp.Pdu}
		return rtuAdu.Encode()
	}
}

// stale reports whether got belongs to a request sent before want.
func stale(want, got uint16) bool {
	d := want - got
	return d != 0 && d < 0x8000
}

// Discard drains bytes left on the stream, such as a late answer to a
// request that already timed out.
func (mb *Client) Discard() {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	if mb.conn == nil {
		return
	}
	buf := make([]byte, tcpMaxSize)
	_ = mb.conn.SetReadDeadline(time.Now().Add(discardWindow))
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

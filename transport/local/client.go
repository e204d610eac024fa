// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package local connects a master to an in-process slave without any line in
// between. Frames still go through the RTU codec, so the master sees exactly
// what it would see on a serial line.
package local

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ffutop/solar-modbus/modbus"
	rtupacket "github.com/ffutop/solar-modbus/modbus/rtu"
	"github.com/ffutop/solar-modbus/transport"
)

// Client implements Transport for an in-process slave.
type Client struct {
	handler transport.RequestHandler

	mu      sync.Mutex
	pending []byte
	closed  bool
}

// NewClient creates a new Local Client answering through handler.
func NewClient(handler transport.RequestHandler) *Client {
	return &Client{handler: handler}
}

// NewOpener returns an Opener whose sessions all share handler.
func NewOpener(handler transport.RequestHandler) transport.Opener {
	return transport.OpenerFunc(func(ctx context.Context) (transport.Transport, error) {
		return NewClient(handler), nil
	})
}

// Send processes the frame locally and queues the reply, if any.
func (c *Client) Send(aduRequest []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("%w: local transport closed", modbus.ErrConnection)
	}
	resp, ok := transport.ServeFrame(context.Background(), aduRequest, c.handler)
	if ok {
		c.pending = append(c.pending[:0], resp...)
	} else {
		c.pending = nil
	}
	return nil
}

// Receive returns the queued reply. A slave that did not answer costs the
// full maxWait, as it would on a real line.
func (c *Client) Receive(functionCode byte, maxWait time.Duration) ([]byte, error) {
	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	if len(pending) == 0 {
		time.Sleep(maxWait)
		return nil, modbus.ErrRequestTimedOut
	}
	return rtupacket.ReadFrame(functionCode, bytes.NewReader(pending), time.Now().Add(maxWait))
}

// Close marks the client closed.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.pending = nil
	return nil
}

var _ transport.Transport = (*Client)(nil)

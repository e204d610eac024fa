// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"context"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/ffutop/solar-modbus/internal/config"
	rtupacket "github.com/ffutop/solar-modbus/modbus/rtu"
	"github.com/ffutop/solar-modbus/transport"
)

// Client is the serial-line Transport of a Modbus RTU master.
type Client struct {
	serialPort

	// pending is the number of characters of the last request plus its
	// expected reply, used to wait out the transmission before reading.
	pending int
}

// Opener opens serial sessions for one connection configuration.
type Opener struct {
	Config config.ConnectionConfig
}

// NewOpener returns an Opener for cfg.
func NewOpener(cfg config.ConnectionConfig) *Opener {
	return &Opener{Config: cfg}
}

// Open acquires the serial port. The caller must Close the returned
// Transport on every path.
func (o *Opener) Open(ctx context.Context) (transport.Transport, error) {
	client := NewClient(o.Config)
	client.mu.Lock()
	defer client.mu.Unlock()
	if err := client.connect(ctx); err != nil {
		return nil, err
	}
	slog.Debug("serial port opened", "device", o.Config.Device, "baudRate", o.Config.BaudRate, "parity", o.Config.Parity)
	return client, nil
}

// NewClient allocates and initializes a RTU Client.
func NewClient(cfg config.ConnectionConfig) *Client {
	return &Client{serialPort: serialPort{Config: newSerialConfig(cfg)}}
}

// Send writes one request frame after the line has been quiet for t3.5.
// Whatever arrives meanwhile, such as a late reply to an earlier request, is
// dropped so it cannot be read as the answer to this one.
func (mb *Client) Send(aduRequest []byte) error {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	if err := mb.connect(context.Background()); err != nil {
		return err
	}

	quiet := mb.frameDelay()
	if wait := time.Until(mb.lastActivity.Add(quiet)); wait > quiet {
		quiet = wait
	}
	discard(mb.port, quiet)

	slog.Debug("send to modbus slave", "request", hex.EncodeToString(aduRequest))
	if _, err := mb.port.Write(aduRequest); err != nil {
		return err
	}
	mb.lastActivity = time.Now()
	mb.pending = len(aduRequest) + rtupacket.ExpectedResponseLength(aduRequest)
	return nil
}

// Receive assembles the response frame to functionCode.
func (mb *Client) Receive(functionCode byte, maxWait time.Duration) ([]byte, error) {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	if err := mb.connect(context.Background()); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(maxWait)
	if delay := mb.calculateDelay(mb.pending); delay < maxWait {
		time.Sleep(delay)
	}
	mb.pending = 0

	data, err := rtupacket.ReadFrame(functionCode, &deadlineReader{r: mb.port, deadline: deadline}, deadline)
	mb.lastActivity = time.Now()
	if err != nil {
		return nil, err
	}
	slog.Debug("recv from modbus slave", "response", hex.EncodeToString(data))
	return data, nil
}

// Discard drops anything still arriving after a corrupt frame.
func (mb *Client) Discard() {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	if mb.port == nil {
		return
	}
	discard(mb.port, mb.calculateDelay(rtupacket.MaxSize))
	mb.lastActivity = time.Now()
}

// calculateDelay calculates the needed delay to separate frames.
func (mb *Client) calculateDelay(chars int) time.Duration {
	var characterDelay, frameDelay int

	if mb.BaudRate <= 0 || mb.BaudRate > 19200 {
		characterDelay = 750
		frameDelay = 1750
	} else {
		characterDelay = 15000000 / mb.BaudRate
		frameDelay = 35000000 / mb.BaudRate
	}
	return time.Duration(characterDelay*chars+frameDelay) * time.Microsecond
}

// frameDelay is the t3.5 silence that separates two frames.
func (mb *Client) frameDelay() time.Duration {
	return mb.calculateDelay(0)
}

var _ transport.Transport = (*Client)(nil)
var _ transport.Discarder = (*Client)(nil)

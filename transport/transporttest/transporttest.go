// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package transporttest provides a scripted Transport for tests.
package transporttest

import (
	"context"
	"sync"
	"time"

	"github.com/ffutop/solar-modbus/modbus"
	rtupacket "github.com/ffutop/solar-modbus/modbus/rtu"
	"github.com/ffutop/solar-modbus/transport"
)

// Reply is what the fake line delivers for one request: a raw frame, or an
// error returned from Receive.
type Reply struct {
	Frame []byte
	Err   error
}

// Transport replays Replies in order and records every request frame.
// When Replies runs out, Receive times out.
type Transport struct {
	Replies []Reply
	// Respond, when set, computes the reply to each request instead.
	Respond func(req []byte) Reply
	// SendErr fails every Send.
	SendErr error
	// OpenErr fails every Open.
	OpenErr error

	mu        sync.Mutex
	sent      [][]byte
	opens     int
	closes    int
	discards  int
	lastReply *Reply
}

func (t *Transport) Send(adu []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, append([]byte(nil), adu...))
	if t.SendErr != nil {
		return t.SendErr
	}
	var r Reply
	switch {
	case t.Respond != nil:
		r = t.Respond(adu)
	case len(t.Replies) > 0:
		r = t.Replies[0]
		t.Replies = t.Replies[1:]
	default:
		r = Reply{Err: modbus.ErrRequestTimedOut}
	}
	t.lastReply = &r
	return nil
}

func (t *Transport) Receive(functionCode byte, maxWait time.Duration) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.lastReply
	t.lastReply = nil
	if r == nil {
		return nil, modbus.ErrRequestTimedOut
	}
	return r.Frame, r.Err
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closes++
	return nil
}

func (t *Transport) Discard() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.discards++
}

// Open implements transport.Opener, handing out t itself.
func (t *Transport) Open(ctx context.Context) (transport.Transport, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.OpenErr != nil {
		return nil, t.OpenErr
	}
	t.opens++
	return t, nil
}

// Sent returns the request frames seen so far.
func (t *Transport) Sent() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([][]byte(nil), t.sent...)
}

// Opens, Closes and Discards count the calls made so far.
func (t *Transport) Opens() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.opens
}

func (t *Transport) Closes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closes
}

func (t *Transport) Discards() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.discards
}

// ReadReply is a valid response carrying values.
func ReadReply(slaveID byte, values ...uint16) Reply {
	raw, err := rtupacket.EncodeReadResponse(slaveID, values)
	return Reply{Frame: raw, Err: err}
}

// ExceptionReply is a device exception response.
func ExceptionReply(slaveID, functionCode byte, code modbus.ExceptionCode) Reply {
	raw, err := rtupacket.EncodeExceptionResponse(slaveID, functionCode, code)
	return Reply{Frame: raw, Err: err}
}

// CorruptReply is ReadReply with the last CRC byte flipped.
func CorruptReply(slaveID byte, values ...uint16) Reply {
	r := ReadReply(slaveID, values...)
	r.Frame[len(r.Frame)-1] ^= 0xFF
	return r
}

// TimeoutReply makes Receive time out.
func TimeoutReply() Reply {
	return Reply{Err: modbus.ErrRequestTimedOut}
}

// Echo answers write requests the way a device does.
func Echo(req []byte) Reply {
	return Reply{Frame: append([]byte(nil), req...)}
}

var (
	_ transport.Transport = (*Transport)(nil)
	_ transport.Discarder = (*Transport)(nil)
	_ transport.Opener    = (*Transport)(nil)
)

// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package tcp

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ffutop/solar-modbus/modbus"
	rtupacket "github.com/ffutop/solar-modbus/modbus/rtu"
)

func TestClient_Exchange(t *testing.T) {
	handler := func(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
		return modbus.ProtocolDataUnit{FunctionCode: 0x03, Data: []byte{0x02, 0x00, 0xF5}}, nil
	}
	addr := startServer(t, handler)

	tr, err := NewOpener(addr, time.Second).Open(context.Background())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer tr.Close()

	for i := 0; i < 2; i++ {
		req, _ := rtupacket.EncodeReadRequest(1, 0x0101, 1)
		if err := tr.Send(req); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
		frame, err := tr.Receive(0x03, time.Second)
		if err != nil {
			t.Fatalf("Receive failed: %v", err)
		}
		resp, err := rtupacket.DecodeResponse(frame, 1, 0x03)
		if err != nil {
			t.Fatalf("DecodeResponse failed: %v", err)
		}
		if len(resp.Values) != 1 || resp.Values[0] != 245 {
			t.Errorf("Values = %v, want [245]", resp.Values)
		}
	}
}

func TestClient_Timeout(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer listener.Close()

	go func() {
		conn, _ := listener.Accept()
		if conn != nil {
			// Read but never write back
			buf := make([]byte, 16)
			conn.Read(buf)
			time.Sleep(time.Second)
			conn.Close()
		}
	}()

	tr, err := NewOpener(listener.Addr().String(), time.Second).Open(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()

	req, _ := rtupacket.EncodeReadRequest(1, 0, 1)
	if err := tr.Send(req); err != nil {
		t.Fatal(err)
	}
	_, err = tr.Receive(0x03, 100*time.Millisecond)
	if !errors.Is(err, modbus.ErrRequestTimedOut) {
		t.Errorf("Receive() error = %v, want ErrRequestTimedOut", err)
	}
}

func TestClient_SkipsLateReply(t *testing.T) {
	var calls atomic.Int32
	handler := func(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
		if calls.Add(1) == 1 {
			time.Sleep(150 * time.Millisecond)
		}
		// Answer with the requested address as the value.
		return modbus.ProtocolDataUnit{FunctionCode: 0x03, Data: []byte{0x02, pdu.Data[0], pdu.Data[1]}}, nil
	}
	addr := startServer(t, handler)

	tr, err := NewOpener(addr, time.Second).Open(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()

	first, _ := rtupacket.EncodeReadRequest(1, 0x0100, 1)
	if err := tr.Send(first); err != nil {
		t.Fatal(err)
	}
	if _, err := tr.Receive(0x03, 100*time.Millisecond); !errors.Is(err, modbus.ErrRequestTimedOut) {
		t.Fatalf("expected ErrRequestTimedOut, got %v", err)
	}

	second, _ := rtupacket.EncodeReadRequest(1, 0x0200, 1)
	if err := tr.Send(second); err != nil {
		t.Fatal(err)
	}
	raw, err := tr.Receive(0x03, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := rtupacket.DecodeResponse(raw, 1, 0x03)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Values[0] != 0x0200 {
		t.Errorf("second request got value %#x, want its own %#x", resp.Values[0], 0x0200)
	}
}

func TestStale(t *testing.T) {
	tests := []struct {
		want, got uint16
		stale     bool
	}{
		{2, 1, true},
		{2, 2, false},
		{1, 0xFFFF, true},
		{1, 0x1234, false},
	}
	for _, tt := range tests {
		if got := stale(tt.want, tt.got); got != tt.stale {
			t.Errorf("stale(%d, %d) = %v, want %v", tt.want, tt.got, got, tt.stale)
		}
	}
}

func TestClient_TransactionMismatch(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer listener.Close()

	go func() {
		conn, _ := listener.Accept()
		if conn != nil {
			defer conn.Close()
			buf := make([]byte, 16)
			conn.Read(buf)
			conn.Write([]byte{0x12, 0x34, 0x00, 0x00, 0x00, 0x05, 0x01, 0x03, 0x02, 0x00, 0x01})
			time.Sleep(200 * time.Millisecond)
		}
	}()

	tr, err := NewOpener(listener.Addr().String(), time.Second).Open(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()

	req, _ := rtupacket.EncodeReadRequest(1, 0, 1)
	if err := tr.Send(req); err != nil {
		t.Fatal(err)
	}
	_, err = tr.Receive(0x03, time.Second)
	var pe *modbus.ProtocolError
	if !errors.As(err, &pe) || !errors.Is(err, modbus.ErrBadTransactionID) {
		t.Errorf("Receive() error = %v, want transaction id mismatch", err)
	}
}

func TestClient_PeerClosed(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer listener.Close()

	go func() {
		conn, _ := listener.Accept()
		if conn != nil {
			buf := make([]byte, 16)
			conn.Read(buf)
			conn.Write([]byte{0x00, 0x01, 0x00}) // Too short header
			conn.Close()
		}
	}()

	tr, err := NewOpener(listener.Addr().String(), time.Second).Open(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()

	req, _ := rtupacket.EncodeReadRequest(1, 0, 1)
	if err := tr.Send(req); err != nil {
		t.Fatal(err)
	}
	_, err = tr.Receive(0x03, time.Second)
	if !errors.Is(err, modbus.ErrConnection) {
		t.Errorf("Receive() error = %v, want ErrConnection", err)
	}
}

func TestOpener_Refused(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := listener.Addr().String()
	listener.Close()

	_, err = NewOpener(addr, 200*time.Millisecond).Open(context.Background())
	if !errors.Is(err, modbus.ErrConnection) {
		t.Errorf("Open() error = %v, want ErrConnection", err)
	}
}

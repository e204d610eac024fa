// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package tcp

import (
	"bytes"
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/ffutop/solar-modbus/modbus"
	"github.com/ffutop/solar-modbus/transport"
)

func startServer(t *testing.T, handler transport.RequestHandler) string {
	t.Helper()
	s := NewServer("127.0.0.1:0")
	if err := s.Listen(); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() {
		if err := s.Start(ctx, handler); err != nil {
			t.Logf("Server stopped: %v", err)
		}
	}()
	return s.Addr().String()
}

func TestServer_Start_And_Handle(t *testing.T) {
	handler := func(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
		if slaveID != 1 {
			t.Errorf("Handler expected slaveID 1, got %d", slaveID)
		}
		switch pdu.FunctionCode {
		case 0x03:
			return modbus.ProtocolDataUnit{FunctionCode: 0x03, Data: []byte{0x02, 0xAA, 0xBB}}, nil
		case 0x06:
			return pdu, nil
		}
		return modbus.ProtocolDataUnit{}, transport.ErrNoResponse
	}
	addr := startServer(t, handler)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	// ADU: [TransID(2)] [Proto(2)] [Len(2)] [UnitID(1)] [Func(1)] [Data...]
	reqADU := []byte{0x00, 0x7B, 0x00, 0x00, 0x00, 0x06, 0x01, 0x03, 0x00, 0x01, 0x00, 0x01}
	if _, err := conn.Write(reqADU); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(time.Second))
	raw, err := ReadFrame(conn)
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	want := []byte{0x00, 0x7B, 0x00, 0x00, 0x00, 0x05, 0x01, 0x03, 0x02, 0xAA, 0xBB}
	if !bytes.Equal(raw, want) {
		t.Errorf("response = % X, want % X", raw, want)
	}

	// Write single register is echoed under the next transaction id.
	reqADU = []byte{0x00, 0x7C, 0x00, 0x00, 0x00, 0x06, 0x01, 0x06, 0xDF, 0x00, 0x00, 0x01}
	if _, err := conn.Write(reqADU); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	raw, err = ReadFrame(conn)
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	if !bytes.Equal(raw, reqADU) {
		t.Errorf("echo = % X, want % X", raw, reqADU)
	}
	if tid := binary.BigEndian.Uint16(raw); tid != 0x7C {
		t.Errorf("transaction id = %d, want %d", tid, 0x7C)
	}
}

func TestServer_HandlerError(t *testing.T) {
	handler := func(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
		return modbus.ProtocolDataUnit{}, context.DeadlineExceeded
	}
	addr := startServer(t, handler)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x06, 0x02, 0x03, 0x00, 0x00, 0x00, 0x01}); err != nil {
		t.Fatal(err)
	}
	conn.SetReadDeadline(time.Now().Add(time.Second))
	raw, err := ReadFrame(conn)
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	adu, err := Decode(raw)
	if err != nil {
		t.Fatal(err)
	}
	if adu.Pdu.FunctionCode != 0x83 || len(adu.Pdu.Data) != 1 || adu.Pdu.Data[0] != 0x0B {
		t.Errorf("Unexpected exception response % X", raw)
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		raw     []byte
		wantErr bool
	}{
		{"read request", []byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x06, 0x01, 0x03, 0x00, 0x00, 0x00, 0x01}, false},
		{"short", []byte{0x00, 0x01, 0x00}, true},
		{"not modbus", []byte{0x00, 0x01, 0x00, 0x01, 0x00, 0x02, 0x01, 0x03}, true},
		{"length mismatch", []byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x09, 0x01, 0x03}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Errorf("Decode() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

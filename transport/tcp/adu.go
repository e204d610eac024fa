// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package tcp

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ffutop/solar-modbus/modbus"
)

const (
	headerSize = 7 // MBAP header including the unit identifier
	tcpMinSize = 8
	tcpMaxSize = 260
)

// ApplicationDataUnit is a PDU behind an MBAP header.
type ApplicationDataUnit struct {
	TransactionID uint16
	ProtocolID    uint16
	SlaveID       byte
	Pdu           modbus.ProtocolDataUnit
}

// Decode splits one complete MBAP frame.
func Decode(raw []byte) (*ApplicationDataUnit, error) {
	if len(raw) < tcpMinSize {
		return nil, modbus.NewProtocolError(modbus.ErrShortFrame, "frame length '%v' does not meet minimum '%v'", len(raw), tcpMinSize)
	}
	adu := &ApplicationDataUnit{
		TransactionID: binary.BigEndian.Uint16(raw[0:]),
		ProtocolID:    binary.BigEndian.Uint16(raw[2:]),
		SlaveID:       raw[6],
	}
	if adu.ProtocolID != 0 {
		return nil, modbus.NewProtocolError(modbus.ErrInvalidLength, "protocol id '%v' is not modbus", adu.ProtocolID)
	}
	length := int(binary.BigEndian.Uint16(raw[4:]))
	if length != len(raw)-6 {
		return nil, modbus.NewProtocolError(modbus.ErrInvalidLength, "header length '%v' does not match frame length '%v'", length, len(raw)-6)
	}
	adu.Pdu.FunctionCode = raw[7]
	adu.Pdu.Data = raw[8:]
	return adu, nil
}

// Encode encodes the ADU. The length field counts the unit identifier and
// the PDU.
func (adu *ApplicationDataUnit) Encode() ([]byte, error) {
	length := len(adu.Pdu.Data) + tcpMinSize
	if length > tcpMaxSize {
		return nil, fmt.Errorf("modbus: length of data '%v' must not be bigger than '%v'", length, tcpMaxSize)
	}
	raw := make([]byte, length)
	binary.BigEndian.PutUint16(raw[0:], adu.TransactionID)
	binary.BigEndian.PutUint16(raw[2:], adu.ProtocolID)
	binary.BigEndian.PutUint16(raw[4:], uint16(length-6))
	raw[6] = adu.SlaveID
	raw[7] = adu.Pdu.FunctionCode
	copy(raw[8:], adu.Pdu.Data)
	return raw, nil
}

// Verify checks that resp answers adu.
func (adu *ApplicationDataUnit) Verify(resp *ApplicationDataUnit) error {
	if resp.TransactionID != adu.TransactionID {
		return modbus.NewProtocolError(modbus.ErrBadTransactionID, "response transaction id '%v' does not match request '%v'", resp.TransactionID, adu.TransactionID)
	}
	return nil
}

// ReadFrame reads one MBAP frame from r. The header tells how many bytes
// follow, so no inter-frame timing is involved.
func ReadFrame(r io.Reader) ([]byte, error) {
	buf := make([]byte, tcpMaxSize)
	if _, err := io.ReadFull(r, buf[:headerSize]); err != nil {
		return nil, err
	}
	length := int(binary.BigEndian.Uint16(buf[4:]))
	if length < 2 || length+6 > tcpMaxSize {
		return nil, modbus.NewProtocolError(modbus.ErrInvalidLength, "header length '%v' out of range", length)
	}
	if _, err := io.ReadFull(r, buf[headerSize:length+6]); err != nil {
		return nil, err
	}
	return buf[:length+6], nil
}

// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"fmt"

	"github.com/ffutop/solar-modbus/modbus"
	"github.com/ffutop/solar-modbus/modbus/crc"
)

// ApplicationDataUnit is a PDU addressed to one slave.
type ApplicationDataUnit struct {
	SlaveID byte
	Pdu     modbus.ProtocolDataUnit
}

// Decode checks length and checksum of an RTU frame and splits it into
// slave address and PDU.
func Decode(raw []byte) (adu *ApplicationDataUnit, err error) {
	length := len(raw)
	// Minimum size (including address, function and CRC)
	if length < MinSize {
		err = modbus.NewProtocolError(modbus.ErrShortFrame, "frame length '%v' does not meet minimum '%v'", length, MinSize)
		return
	}

	var c crc.CRC
	c.Reset().PushBytes(raw[0 : length-2])
	checksum := uint16(raw[length-1])<<8 | uint16(raw[length-2])
	if checksum != c.Value() {
		err = modbus.NewProtocolError(modbus.ErrBadCRC, "frame crc '%04x' does not match expected '%04x'", checksum, c.Value())
		return
	}
	adu = &ApplicationDataUnit{}
	adu.SlaveID = raw[0]
	adu.Pdu.FunctionCode = raw[1]
	adu.Pdu.Data = raw[2 : length-2]
	return
}

// Encode encodes PDU in an RTU frame:
//
//	Slave Address   : 1 byte
//	Function        : 1 byte
//	Data            : 0 up to 252 bytes
//	CRC             : 2 bytes
func (adu *ApplicationDataUnit) Encode() (raw []byte, err error) {
	length := len(adu.Pdu.Data) + 4
	if length > MaxSize {
		err = fmt.Errorf("modbus: length of data '%v' must not be bigger than '%v'", length, MaxSize)
		return
	}
	raw = make([]byte, 2, length)
	raw[0] = adu.SlaveID
	raw[1] = adu.Pdu.FunctionCode
	raw = append(raw, adu.Pdu.Data...)
	raw = crc.Append(raw)
	return
}

// Verify verifies response length and slave id.
func (adu *ApplicationDataUnit) Verify(resp *ApplicationDataUnit) error {
	length := len(resp.Pdu.Data) + 4
	if length < MinSize {
		return modbus.NewProtocolError(modbus.ErrShortFrame, "response length '%v' does not meet minimum '%v'", length, MinSize)
	}
	if adu.SlaveID != resp.SlaveID {
		return modbus.NewProtocolError(modbus.ErrBadSlaveID, "response slave id '%v' does not match request '%v'", resp.SlaveID, adu.SlaveID)
	}
	return nil
}

// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"encoding/binary"
	"fmt"

	"github.com/ffutop/solar-modbus/modbus"
)

// Request is a decoded 0x03 or 0x06 request frame.
type Request struct {
	SlaveID      byte
	FunctionCode byte
	Address      uint16
	// Quantity for 0x03, register value for 0x06.
	Value uint16
}

// Response is a decoded response frame. Exactly one of Values (0x03),
// Address/Value (0x06 echo) or Exception (function code | 0x80) is set.
type Response struct {
	SlaveID      byte
	FunctionCode byte
	Values       []uint16
	Address      uint16
	Value        uint16
	Exception    modbus.ExceptionCode
}

// IsException reports whether the device refused the request.
// Exception code 0 is not defined but still marks a refusal.
func (r *Response) IsException() bool {
	return modbus.ProtocolDataUnit{FunctionCode: r.FunctionCode}.IsException()
}

// EncodeReadRequest builds a read holding registers (0x03) frame.
func EncodeReadRequest(slaveID byte, address, quantity uint16) ([]byte, error) {
	if quantity < 1 || quantity > modbus.MaxReadQuantity {
		return nil, fmt.Errorf("modbus: quantity '%v' must be between '%v' and '%v'", quantity, 1, modbus.MaxReadQuantity)
	}
	return encodeRequest(slaveID, modbus.FuncCodeReadHoldingRegisters, address, quantity)
}

// EncodeWriteRequest builds a write single register (0x06) frame.
func EncodeWriteRequest(slaveID byte, address, value uint16) ([]byte, error) {
	return encodeRequest(slaveID, modbus.FuncCodeWriteSingleRegister, address, value)
}

func encodeRequest(slaveID, functionCode byte, address, value uint16) ([]byte, error) {
	data := make([]byte, 4)
	binary.BigEndian.PutUint16(data[0:2], address)
	binary.BigEndian.PutUint16(data[2:4], value)

	adu := &ApplicationDataUnit{
		SlaveID: slaveID,
		Pdu:     modbus.ProtocolDataUnit{FunctionCode: functionCode, Data: data},
	}
	return adu.Encode()
}

// decodeRequest parses a 0x03 or 0x06 request frame.
func decodeRequest(raw []byte) (*Request, error) {
	adu, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	switch adu.Pdu.FunctionCode {
	case modbus.FuncCodeReadHoldingRegisters, modbus.FuncCodeWriteSingleRegister:
	default:
		return nil, modbus.NewProtocolError(modbus.ErrUnexpectedFunction, "function code '%v' not supported", adu.Pdu.FunctionCode)
	}
	if len(adu.Pdu.Data) != 4 {
		return nil, modbus.NewProtocolError(modbus.ErrInvalidLength, "request data length '%v', expected 4", len(adu.Pdu.Data))
	}
	return &Request{
		SlaveID:      adu.SlaveID,
		FunctionCode: adu.Pdu.FunctionCode,
		Address:      binary.BigEndian.Uint16(adu.Pdu.Data[0:2]),
		Value:        binary.BigEndian.Uint16(adu.Pdu.Data[2:4]),
	}, nil
}

// DecodeResponse validates a response frame against the slave and function
// of the request that produced it. Checksum, length and slave mismatches are
// returned as *modbus.ProtocolError; a device exception is a successfully
// decoded Response with Exception set.
func DecodeResponse(raw []byte, slaveID, functionCode byte) (*Response, error) {
	adu, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	if adu.SlaveID != slaveID {
		return nil, modbus.NewProtocolError(modbus.ErrBadSlaveID, "response slave id '%v' does not match request '%v'", adu.SlaveID, slaveID)
	}

	resp := &Response{SlaveID: adu.SlaveID, FunctionCode: adu.Pdu.FunctionCode}
	data := adu.Pdu.Data

	if adu.Pdu.FunctionCode == functionCode|modbus.ExceptionFlag {
		if len(data) != 1 {
			return nil, modbus.NewProtocolError(modbus.ErrInvalidLength, "exception response data length '%v', expected 1", len(data))
		}
		resp.Exception = modbus.ExceptionCode(data[0])
		return resp, nil
	}
	if adu.Pdu.FunctionCode != functionCode {
		return nil, modbus.NewProtocolError(modbus.ErrUnexpectedFunction, "response function '%v' does not match request '%v'", adu.Pdu.FunctionCode, functionCode)
	}

	switch functionCode {
	case modbus.FuncCodeReadHoldingRegisters:
		if len(data) < 1 {
			return nil, modbus.NewProtocolError(modbus.ErrShortFrame, "missing byte count")
		}
		count := int(data[0])
		if count == 0 || count%2 != 0 || count != len(data)-1 {
			return nil, modbus.NewProtocolError(modbus.ErrInvalidLength, "byte count '%v' with '%v' data bytes", count, len(data)-1)
		}
		resp.Values = make([]uint16, count/2)
		for i := range resp.Values {
			resp.Values[i] = binary.BigEndian.Uint16(data[1+i*2:])
		}
	case modbus.FuncCodeWriteSingleRegister:
		if len(data) != 4 {
			return nil, modbus.NewProtocolError(modbus.ErrInvalidLength, "write response data length '%v', expected 4", len(data))
		}
		resp.Address = binary.BigEndian.Uint16(data[0:2])
		resp.Value = binary.BigEndian.Uint16(data[2:4])
	default:
		return nil, modbus.NewProtocolError(modbus.ErrUnexpectedFunction, "function code '%v' not supported", functionCode)
	}
	return resp, nil
}

// EncodeReadResponse builds the reply a device sends for a 0x03 request.
func EncodeReadResponse(slaveID byte, values []uint16) ([]byte, error) {
	if len(values) < 1 || len(values) > modbus.MaxReadQuantity {
		return nil, fmt.Errorf("modbus: register count '%v' must be between '%v' and '%v'", len(values), 1, modbus.MaxReadQuantity)
	}
	data := make([]byte, 1+2*len(values))
	data[0] = byte(2 * len(values))
	for i, v := range values {
		binary.BigEndian.PutUint16(data[1+i*2:], v)
	}
	adu := &ApplicationDataUnit{
		SlaveID: slaveID,
		Pdu:     modbus.ProtocolDataUnit{FunctionCode: modbus.FuncCodeReadHoldingRegisters, Data: data},
	}
	return adu.Encode()
}

// EncodeExceptionResponse builds an exception reply to functionCode.
func EncodeExceptionResponse(slaveID, functionCode byte, code modbus.ExceptionCode) ([]byte, error) {
	adu := &ApplicationDataUnit{
		SlaveID: slaveID,
		Pdu: modbus.ProtocolDataUnit{
			FunctionCode: functionCode | modbus.ExceptionFlag,
			Data:         []byte{byte(code)},
		},
	}
	return adu.Encode()
}

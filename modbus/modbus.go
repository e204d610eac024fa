// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package modbus

import (
	"errors"
	"fmt"
)

// Function Codes
const (
	FuncCodeReadHoldingRegisters = 0x03
	FuncCodeWriteSingleRegister  = 0x06

	// ExceptionFlag is OR-ed into the function code of an exception response.
	ExceptionFlag = 0x80
)

// MaxReadQuantity is the largest register count a single 0x03 request may ask for.
const MaxReadQuantity = 125

// ExceptionCode is the one-byte code carried by an exception response.
type ExceptionCode byte

// Exception Codes
const (
	ExceptionCodeIllegalFunction                    ExceptionCode = 0x01
	ExceptionCodeIllegalDataAddress                 ExceptionCode = 0x02
	ExceptionCodeIllegalDataValue                   ExceptionCode = 0x03
	ExceptionCodeServerDeviceFailure                ExceptionCode = 0x04
	ExceptionCodeAcknowledge                        ExceptionCode = 0x05
	ExceptionCodeServerDeviceBusy                   ExceptionCode = 0x06
	ExceptionCodeMemoryParityError                  ExceptionCode = 0x08
	ExceptionCodeGatewayPathUnavailable             ExceptionCode = 0x0A
	ExceptionCodeGatewayTargetDeviceFailedToRespond ExceptionCode = 0x0B
)

func (c ExceptionCode) String() string {
	switch c {
	case ExceptionCodeIllegalFunction:
		return "illegal function"
	case ExceptionCodeIllegalDataAddress:
		return "illegal data address"
	case ExceptionCodeIllegalDataValue:
		return "illegal data value"
	case ExceptionCodeServerDeviceFailure:
		return "server device failure"
	case ExceptionCodeAcknowledge:
		return "acknowledge"
	case ExceptionCodeServerDeviceBusy:
		return "server device busy"
	case ExceptionCodeMemoryParityError:
		return "memory parity error"
	case ExceptionCodeGatewayPathUnavailable:
		return "gateway path unavailable"
	case ExceptionCodeGatewayTargetDeviceFailedToRespond:
		return "gateway target device failed to respond"
	default:
		return "unknown exception"
	}
}

// ProtocolDataUnit (PDU) is independent of underlying communication layers.
type ProtocolDataUnit struct {
	FunctionCode byte
	Data         []byte
}

// IsException reports whether the PDU carries an exception response.
func (pdu ProtocolDataUnit) IsException() bool {
	return pdu.FunctionCode&ExceptionFlag != 0
}

var (
	// ErrConfiguration marks invalid connection parameters. No I/O is attempted.
	ErrConfiguration = errors.New("modbus: configuration error")
	// ErrConnection marks a port or connection that could not be opened.
	ErrConnection = errors.New("modbus: connection error")
	// ErrRequestTimedOut marks a response that did not complete before the deadline.
	ErrRequestTimedOut = errors.New("modbus: request timed out")

	ErrBadCRC             = errors.New("bad crc")
	ErrShortFrame         = errors.New("short frame")
	ErrInvalidLength      = errors.New("invalid length")
	ErrBadSlaveID         = errors.New("bad slave id")
	ErrUnexpectedFunction = errors.New("unexpected function code")
	ErrEchoMismatch       = errors.New("echo mismatch")
	ErrBadTransactionID   = errors.New("transaction id mismatch")
)

// ProtocolError reports a response that could not be trusted: the frame was
// corrupted, truncated or addressed from another slave.
type ProtocolError struct {
	Kind   error
	Reason string
}

func (e *ProtocolError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("modbus: protocol error: %v", e.Kind)
	}
	return fmt.Sprintf("modbus: protocol error: %v: %s", e.Kind, e.Reason)
}

func (e *ProtocolError) Unwrap() error {
	return e.Kind
}

// NewProtocolError builds a ProtocolError of the given kind.
func NewProtocolError(kind error, format string, v ...interface{}) *ProtocolError {
	return &ProtocolError{Kind: kind, Reason: fmt.Sprintf(format, v...)}
}

// ExceptionError is a request the device actively refused.
type ExceptionError struct {
	FunctionCode  byte
	ExceptionCode ExceptionCode
}

func (e *ExceptionError) Error() string {
	return fmt.Sprintf("modbus: exception '%v' (%s), function '%v'", byte(e.ExceptionCode), e.ExceptionCode, e.FunctionCode)
}

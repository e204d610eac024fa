// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ffutop/solar-modbus/modbus"
)

const (
	stateSlaveID = 1 << iota
	stateFunctionCode
	stateReadLength
	stateReadPayload
	stateCRC
)

// ExpectedResponseLength returns the length of a successful response to the
// request ADU, or ExceptionSize if the function is unknown.
func ExpectedResponseLength(adu []byte) int {
	if len(adu) < 6 {
		return ExceptionSize
	}
	switch adu[1] {
	case modbus.FuncCodeReadHoldingRegisters:
		count := int(adu[4])<<8 | int(adu[5])
		return MinSize + 1 + count*2
	case modbus.FuncCodeWriteSingleRegister:
		return RequestSize
	default:
		return ExceptionSize
	}
}

// CalculateRequestLength returns the expected total length of the Request RTU ADU based on the header.
func CalculateRequestLength(funcCode byte, header []byte) (int, error) {
	// Header should be at least 7 bytes to cover ByteCount for 0x0F/0x10.
	// [SlaveID, Func, Appd1, Appd2, Appd3, Appd4/ByteCount]

	switch funcCode {
	case funcCodeReadCoils,
		funcCodeReadDiscreteInputs,
		modbus.FuncCodeReadHoldingRegisters,
		funcCodeReadInputRegisters,
		funcCodeWriteSingleCoil,
		modbus.FuncCodeWriteSingleRegister:
		// Fixed 8 bytes: [SlaveID, Func, Addr(2), Val(2), CRC(2)]
		return RequestSize, nil
	case funcCodeWriteMultipleCoils,
		funcCodeWriteMultipleRegisters:
		// Req: [SlaveID, Func, Addr(2), Quant(2), ByteCount(1), Data(N), CRC(2)]
		if len(header) < 7 {
			return 0, fmt.Errorf("need 7 bytes to determine length for 0x%02X, got %d", funcCode, len(header))
		}
		return 7 + int(header[6]) + 2, nil
	default:
		return 0, fmt.Errorf("unsupported function code: 0x%02X", funcCode)
	}
}

// ReadFrame reads one response frame to functionCode from r. The slave
// address is taken as received so that DecodeResponse can report a
// mismatch. A frame that is still incomplete at the deadline is dropped and
// modbus.ErrRequestTimedOut is returned.
func ReadFrame(functionCode byte, r io.Reader, deadline time.Time) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("reader is nil")
	}

	buf := make([]byte, 1)
	data := make([]byte, 0, MaxSize)

	state := stateSlaveID
	var toRead, crcCount int

	for {
		if time.Now().After(deadline) {
			return nil, timedOut(len(data))
		}

		if _, err := io.ReadAtLeast(r, buf, 1); err != nil {
			if isTimeout(err) {
				return nil, timedOut(len(data))
			}
			return nil, fmt.Errorf("modbus: read frame after %d bytes: %w", len(data), err)
		}
		data = append(data, buf[0])

		switch state {
		case stateSlaveID:
			state = stateFunctionCode
		case stateFunctionCode:
			switch {
			case buf[0] == functionCode|modbus.ExceptionFlag:
				state = stateReadPayload
				toRead = 1
			case buf[0] != functionCode:
				return nil, modbus.NewProtocolError(modbus.ErrUnexpectedFunction, "response function '%v' does not match request '%v'", buf[0], functionCode)
			case functionCode == modbus.FuncCodeReadHoldingRegisters:
				state = stateReadLength
			case functionCode == modbus.FuncCodeWriteSingleRegister:
				state = stateReadPayload
				toRead = 4
			default:
				return nil, fmt.Errorf("functioncode not handled: %d", functionCode)
			}
		case stateReadLength:
			length := int(buf[0])
			if length == 0 || length > MaxSize-5 {
				return nil, modbus.NewProtocolError(modbus.ErrInvalidLength, "invalid length received: %d", length)
			}
			toRead = length
			state = stateReadPayload
		case stateReadPayload:
			toRead--
			if toRead == 0 {
				state = stateCRC
			}
		case stateCRC:
			crcCount++
			if crcCount == 2 {
				return data, nil
			}
		}
	}
}

func timedOut(received int) error {
	if received == 0 {
		return modbus.ErrRequestTimedOut
	}
	return fmt.Errorf("%w: partial frame of %d bytes discarded", modbus.ErrRequestTimedOut, received)
}

func isTimeout(err error) bool {
	if errors.Is(err, modbus.ErrRequestTimedOut) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package simulator

import (
	"encoding/binary"
	"errors"
	"log/slog"

	"github.com/ffutop/solar-modbus/internal/simulator/model"
	"github.com/ffutop/solar-modbus/internal/simulator/persistence"
	"github.com/ffutop/solar-modbus/modbus"
)

// Slave answers register requests from a register bank.
type Slave struct {
	bank    *model.Bank
	storage persistence.Storage
}

// NewSlave creates a new Slave.
func NewSlave(bank *model.Bank, storage persistence.Storage) *Slave {
	if storage == nil {
		storage = persistence.NewMemoryStorage()
	}
	return &Slave{bank: bank, storage: storage}
}

// Process executes one request PDU and returns the reply PDU.
func (s *Slave) Process(req modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	switch req.FunctionCode {
	case modbus.FuncCodeReadHoldingRegisters:
		return s.read(req), nil
	case modbus.FuncCodeWriteSingleRegister:
		return s.write(req), nil
	default:
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalFunction), nil
	}
}

func (s *Slave) read(req modbus.ProtocolDataUnit) modbus.ProtocolDataUnit {
	if len(req.Data) != 4 {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	quantity := binary.BigEndian.Uint16(req.Data[2:4])
	if quantity > modbus.MaxReadQuantity {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}

	values, err := s.bank.Read(address, quantity)
	if err != nil {
		return refuse(req.FunctionCode, err)
	}
	data := make([]byte, 1+2*len(values))
	data[0] = byte(2 * len(values))
	for i, v := range values {
		binary.BigEndian.PutUint16(data[1+2*i:], v)
	}
	return modbus.ProtocolDataUnit{FunctionCode: req.FunctionCode, Data: data}
}

func (s *Slave) write(req modbus.ProtocolDataUnit) modbus.ProtocolDataUnit {
	if len(req.Data) != 4 {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	value := binary.BigEndian.Uint16(req.Data[2:4])

	if err := s.bank.Write(address, value); err != nil {
		return refuse(req.FunctionCode, err)
	}
	s.storage.OnWrite(address)
	return req
}

// refuse turns a bank error into the matching exception reply.
func refuse(funcCode byte, err error) modbus.ProtocolDataUnit {
	slog.Debug("Register request refused", "function", funcCode, "err", err)
	if errors.Is(err, model.ErrIllegalQuantity) {
		return exception(funcCode, modbus.ExceptionCodeIllegalDataValue)
	}
	return exception(funcCode, modbus.ExceptionCodeIllegalDataAddress)
}

func exception(funcCode byte, code modbus.ExceptionCode) modbus.ProtocolDataUnit {
	return modbus.ProtocolDataUnit{
		FunctionCode: funcCode | modbus.ExceptionFlag,
		Data:         []byte{byte(code)},
	}
}

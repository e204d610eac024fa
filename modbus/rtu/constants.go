// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

const (
	MinSize = 4
	MaxSize = 256

	ExceptionSize = 5

	// RequestSize is the length of a 0x03 or 0x06 request, and of a 0x06 response.
	RequestSize = 8
)

// Function codes the framer must be able to skip over even though the
// master never issues them.
const (
	funcCodeReadCoils              = 0x01
	funcCodeReadDiscreteInputs     = 0x02
	funcCodeReadInputRegisters     = 0x04
	funcCodeWriteSingleCoil        = 0x05
	funcCodeWriteMultipleCoils     = 0x0F
	funcCodeWriteMultipleRegisters = 0x10
)

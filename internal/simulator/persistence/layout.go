// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"fmt"
	"os"
	"unsafe"

	"github.com/ffutop/solar-modbus/internal/simulator/model"
)

// bankBytes is the on-disk size: every holding register as two bytes.
const bankBytes = model.Size * 2

// openBankFile opens path and sizes it to hold a full bank.
func openBankFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("open register file: %w", err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if fi.Size() != bankBytes {
		if err := f.Truncate(bankBytes); err != nil {
			f.Close()
			return nil, fmt.Errorf("resize register file: %w", err)
		}
	}
	return f, nil
}

// bankOver returns a bank whose registers live in data. Registers are kept
// in host byte order, so files do not move between architectures of
// different endianness.
func bankOver(data []byte) *model.Bank {
	return model.Over(unsafe.Slice((*uint16)(unsafe.Pointer(&data[0])), model.Size))
}

// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/ffutop/solar-modbus/internal/simulator/model"
)

// MmapStorage maps the register file into memory, so a register write is a
// store into the page cache followed by a flush.
type MmapStorage struct {
	path string
	file *os.File
	data mmap.MMap
}

func NewMmapStorage(path string) *MmapStorage {
	return &MmapStorage{path: path}
}

func (ms *MmapStorage) Load() (*model.Bank, error) {
	f, err := openBankFile(ms.path)
	if err != nil {
		return nil, err
	}
	data, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("map register file: %w", err)
	}
	ms.file, ms.data = f, data
	return bankOver(data), nil
}

func (ms *MmapStorage) Save(*model.Bank) error {
	if ms.data == nil {
		return errors.New("register file is not mapped")
	}
	return ms.data.Flush()
}

func (ms *MmapStorage) OnWrite(address uint16) {
	if ms.data == nil {
		return
	}
	if err := ms.data.Flush(); err != nil {
		slog.Error("Failed to flush register file", "address", address, "err", err)
	}
}

func (ms *MmapStorage) Close() error {
	var errs []error
	if ms.data != nil {
		errs = append(errs, ms.data.Unmap())
		ms.data = nil
	}
	if ms.file != nil {
		errs = append(errs, ms.file.Close())
		ms.file = nil
	}
	return errors.Join(errs...)
}

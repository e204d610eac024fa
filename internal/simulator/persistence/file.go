// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/ffutop/solar-modbus/internal/simulator/model"
)

// FileStorage reads the register file into memory and writes each changed
// register back in place.
type FileStorage struct {
	path string
	file *os.File
	data []byte
}

func NewFileStorage(path string) *FileStorage {
	return &FileStorage{path: path}
}

func (fs *FileStorage) Load() (*model.Bank, error) {
	f, err := openBankFile(fs.path)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("read register file: %w", err)
	}
	fs.file, fs.data = f, data
	return bankOver(data), nil
}

// Save rewrites the whole file.
func (fs *FileStorage) Save(*model.Bank) error {
	return fs.flush(0, bankBytes)
}

// OnWrite writes back the two bytes of address.
func (fs *FileStorage) OnWrite(address uint16) {
	off := int(address) * 2
	if err := fs.flush(off, off+2); err != nil {
		slog.Error("Failed to persist register", "address", address, "err", err)
	}
}

func (fs *FileStorage) flush(from, to int) error {
	if fs.data == nil || fs.file == nil {
		return nil
	}
	if _, err := fs.file.WriteAt(fs.data[from:to], int64(from)); err != nil {
		return fmt.Errorf("write register file: %w", err)
	}
	if err := fs.file.Sync(); err != nil {
		return fmt.Errorf("sync register file: %w", err)
	}
	return nil
}

func (fs *FileStorage) Close() error {
	if fs.file == nil {
		return nil
	}
	err := fs.file.Close()
	fs.file = nil
	return err
}

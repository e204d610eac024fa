// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package persistence keeps the simulator register bank across restarts.
package persistence

import (
	"github.com/ffutop/solar-modbus/internal/simulator/model"
)

// Storage backs a register bank.
type Storage interface {
	// Load returns the stored bank, zeroed when nothing was stored yet.
	Load() (*model.Bank, error)

	// Save writes the whole bank out.
	Save(bank *model.Bank) error

	// OnWrite is called after the register at address changed.
	OnWrite(address uint16)

	Close() error
}

// New returns the storage for kind, one of "memory", "file" or "mmap".
func New(kind, path string) Storage {
	switch kind {
	case "file":
		return NewFileStorage(path)
	case "mmap":
		return NewMmapStorage(path)
	default:
		return NewMemoryStorage()
	}
}

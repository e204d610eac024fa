// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import "github.com/ffutop/solar-modbus/internal/simulator/model"

// MemoryStorage forgets the bank when the simulator stops.
type MemoryStorage struct{}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (*MemoryStorage) Load() (*model.Bank, error) { return model.NewBank(), nil }

func (*MemoryStorage) Save(*model.Bank) error { return nil }

func (*MemoryStorage) OnWrite(uint16) {}

func (*MemoryStorage) Close() error { return nil }

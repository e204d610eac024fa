// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package model holds the register bank of the simulated inverter.
package model

import (
	"errors"
	"fmt"
	"sync"
)

// Size is the number of holding registers, one per 16-bit address.
const Size = 1 << 16

var (
	ErrIllegalQuantity = errors.New("illegal register quantity")
	ErrIllegalAddress  = errors.New("illegal register address")
)

// Seed is a register value applied at startup.
type Seed struct {
	Address uint16
	Value   uint16
}

// Bank is the holding register bank of the inverter. Once seeded in strict
// mode only the seeded addresses can be read or written.
type Bank struct {
	mu    sync.RWMutex
	regs  []uint16
	known map[uint16]struct{}
}

// NewBank returns a zeroed bank.
func NewBank() *Bank {
	return &Bank{regs: make([]uint16, Size)}
}

// Over returns a bank backed by regs, which must hold Size registers.
func Over(regs []uint16) *Bank {
	if len(regs) != Size {
		panic(fmt.Sprintf("model: bank needs %d registers, got %d", Size, len(regs)))
	}
	return &Bank{regs: regs}
}

// Seed stores the seed values. With strict set every other address is
// refused from then on; otherwise any earlier restriction is lifted.
func (b *Bank) Seed(seeds []Seed, strict bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.known = nil
	if strict {
		b.known = make(map[uint16]struct{}, len(seeds))
	}
	for _, s := range seeds {
		b.regs[s.Address] = s.Value
		if strict {
			b.known[s.Address] = struct{}{}
		}
	}
}

// Read returns quantity registers starting at address.
func (b *Bank) Read(address, quantity uint16) ([]uint16, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if err := b.check(address, int(quantity)); err != nil {
		return nil, err
	}
	values := make([]uint16, quantity)
	copy(values, b.regs[address:int(address)+int(quantity)])
	return values, nil
}

// Write stores value at address.
func (b *Bank) Write(address, value uint16) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.check(address, 1); err != nil {
		return err
	}
	b.regs[address] = value
	return nil
}

// Value returns the register at address, ignoring any restriction.
func (b *Bank) Value(address uint16) uint16 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.regs[address]
}

func (b *Bank) check(address uint16, quantity int) error {
	if quantity < 1 {
		return fmt.Errorf("%w: %d", ErrIllegalQuantity, quantity)
	}
	end := int(address) + quantity
	if end > Size {
		return fmt.Errorf("%w: %#04x+%d runs past the address space", ErrIllegalAddress, address, quantity)
	}
	if b.known == nil {
		return nil
	}
	for a := int(address); a < end; a++ {
		if _, ok := b.known[uint16(a)]; !ok {
			return fmt.Errorf("%w: %#04x is not mapped", ErrIllegalAddress, a)
		}
	}
	return nil
}

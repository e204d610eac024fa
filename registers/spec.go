// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package registers reads and writes the named holding registers of the
// inverter on top of the Modbus master.
package registers

import (
	"fmt"
	"math"
	"sort"
)

// RegisterSpec is one register of a batch read.
type RegisterSpec struct {
	// Key is the field name in the result. Description is used when empty.
	Key         string
	Address     uint16
	Description string
	// Scale multiplies the raw value. It must be finite and non-zero.
	Scale float64
}

// Name returns the result key of the spec.
func (s RegisterSpec) Name() string {
	if s.Key != "" {
		return s.Key
	}
	return s.Description
}

// Apply scales raw. The product is rounded to nine decimals so that a scale
// of 0.1 does not leak binary floating point noise into the readings.
func (s RegisterSpec) Apply(raw uint16) float64 {
	v := float64(raw) * s.Scale
	return math.Round(v*1e9) / 1e9
}

// ValidateSpecs rejects specs without a name, with a zero or non-finite
// scale, or whose names collide.
func ValidateSpecs(specs []RegisterSpec) error {
	seen := make(map[string]bool, len(specs))
	for i, s := range specs {
		name := s.Name()
		if name == "" {
			return fmt.Errorf("register %d at address %s has neither key nor description", i, HexAddress(s.Address))
		}
		if s.Scale == 0 || math.IsNaN(s.Scale) || math.IsInf(s.Scale, 0) {
			return fmt.Errorf("register %q has invalid scale %v: must be finite and non-zero", name, s.Scale)
		}
		if name == errorsKey {
			return fmt.Errorf("register key %q is reserved", name)
		}
		if seen[name] {
			return fmt.Errorf("register %q defined twice", name)
		}
		seen[name] = true
	}
	return nil
}

// HexAddress formats an address the way results report it, e.g. "0xdf00".
func HexAddress(address uint16) string {
	return fmt.Sprintf("0x%x", address)
}

// RegisterMap resolves symbolic register names to addresses. Lookups are
// case-sensitive exact matches. A RegisterMap is immutable.
type RegisterMap struct {
	addrs map[string]uint16
}

// NewRegisterMap copies entries into a RegisterMap.
func NewRegisterMap(entries map[string]uint16) (RegisterMap, error) {
	addrs := make(map[string]uint16, len(entries))
	for name, addr := range entries {
		if name == "" {
			return RegisterMap{}, fmt.Errorf("register map entry at address %s has an empty name", HexAddress(addr))
		}
		addrs[name] = addr
	}
	return RegisterMap{addrs: addrs}, nil
}

// Lookup returns the address of name.
func (m RegisterMap) Lookup(name string) (uint16, bool) {
	addr, ok := m.addrs[name]
	return addr, ok
}

// Names returns the register names in sorted order.
func (m RegisterMap) Names() []string {
	names := make([]string, 0, len(m.addrs))
	for name := range m.addrs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of entries.
func (m RegisterMap) Len() int {
	return len(m.addrs)
}

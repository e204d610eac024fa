// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"path/filepath"
	"testing"

	"github.com/ffutop/solar-modbus/internal/simulator/model"
)

func TestStorage_Reload(t *testing.T) {
	tests := []struct {
		name string
		kind string
	}{
		{"File", "file"},
		{"Mmap", "mmap"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "registers.bin")

			st := New(tt.kind, path)
			m, err := st.Load()
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if err := m.Write(0xE001, 245); err != nil {
				t.Fatal(err)
			}
			st.OnWrite(0xE001)
			if err := st.Close(); err != nil {
				t.Fatal(err)
			}

			st = New(tt.kind, path)
			m, err = st.Load()
			if err != nil {
				t.Fatalf("reload failed: %v", err)
			}
			defer st.Close()
			if v := m.Value(0xE001); v != 245 {
				t.Errorf("register after reload = %d, want 245", v)
			}
		})
	}
}

func TestMemoryStorage(t *testing.T) {
	st := New("memory", "")
	m, err := st.Load()
	if err != nil {
		t.Fatal(err)
	}
	st.OnWrite(0)
	if err := st.Save(m); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Read(0xFFFF, 1); err != nil {
		t.Errorf("last register unreachable: %v", err)
	}
}

func TestFileStorage_SeedThenWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registers.bin")

	st := NewFileStorage(path)
	b, err := st.Load()
	if err != nil {
		t.Fatal(err)
	}
	b.Seed([]model.Seed{{Address: 0x0101, Value: 245}}, false)
	if err := st.Save(b); err != nil {
		t.Fatal(err)
	}
	if err := b.Write(0xE001, 20); err != nil {
		t.Fatal(err)
	}
	st.OnWrite(0xE001)
	st.Close()

	st = NewFileStorage(path)
	b, err = st.Load()
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	if b.Value(0x0101) != 245 || b.Value(0xE001) != 20 {
		t.Errorf("reloaded = %d, %d", b.Value(0x0101), b.Value(0xE001))
	}
}

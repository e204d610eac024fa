// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"path/filepath"
	"testing"
)

// BenchmarkStorage_OnWrite measures the cost a register write pays for
// persistence with each storage kind.
func BenchmarkStorage_OnWrite(b *testing.B) {
	for _, kind := range []string{"memory", "file", "mmap"} {
		b.Run(kind, func(b *testing.B) {
			st := New(kind, filepath.Join(b.TempDir(), "bench.bin"))
			m, err := st.Load()
			if err != nil {
				b.Fatalf("Load failed: %v", err)
			}
			defer st.Close()

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				m.Write(0xE001, uint16(i))
				st.OnWrite(0xE001)
			}
		})
	}
}

// BenchmarkStorage_Load includes open, stat and mmap system calls.
func BenchmarkStorage_Load(b *testing.B) {
	for _, kind := range []string{"memory", "file", "mmap"} {
		b.Run(kind, func(b *testing.B) {
			path := filepath.Join(b.TempDir(), "bench_load.bin")
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				st := New(kind, path)
				if _, err := st.Load(); err != nil {
					b.Fatalf("Load failed: %v", err)
				}
				st.Close()
			}
		})
	}
}

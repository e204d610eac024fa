// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package crc

import (
	"testing"
)

func TestCRC(t *testing.T) {
	var crc CRC
	crc.Reset()
	crc.PushBytes([]byte{0x02, 0x07})

	if crc.Value() != 0x1241 {
		t.Fatalf("crc expected %v, actual %v", 0x1241, crc.Value())
	}
}

func TestCRCIncremental(t *testing.T) {
	frame := []byte{0x01, 0x03, 0x01, 0x01, 0x00, 0x01}

	var whole, split CRC
	whole.Reset().PushBytes(frame)
	split.Reset().PushBytes(frame[:2]).PushBytes(frame[2:])

	if whole.Value() != split.Value() {
		t.Fatalf("incremental crc %04x differs from whole %04x", split.Value(), whole.Value())
	}
	if whole.Value() != Checksum(frame) {
		t.Fatalf("Checksum %04x differs from CRC %04x", Checksum(frame), whole.Value())
	}
}

func TestAppendAndValid(t *testing.T) {
	// Read holding register 0x0000 x1 from slave 1: 01 03 00 00 00 01 84 0A
	frame := Append([]byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01})
	if frame[6] != 0x84 || frame[7] != 0x0A {
		t.Fatalf("unexpected crc bytes % X", frame[6:])
	}
	if !Valid(frame) {
		t.Fatal("Valid() = false for a freshly appended frame")
	}

	frame[7] ^= 0xFF
	if Valid(frame) {
		t.Fatal("Valid() = true for a corrupted frame")
	}
	if Valid([]byte{0x01, 0x03}) {
		t.Fatal("Valid() = true for a frame shorter than a checksum")
	}
}

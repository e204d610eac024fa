// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package report

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ffutop/solar-modbus/registers"
	"github.com/ffutop/solar-modbus/transport/transporttest"
)

func readResult(t *testing.T, specs []registers.RegisterSpec, replies ...transporttest.Reply) *registers.Result {
	t.Helper()
	tr := &transporttest.Transport{Replies: replies}
	r := &registers.Reader{Opener: tr, SlaveID: 1, Timeout: 10 * time.Millisecond}
	res, err := r.ReadAll(context.Background(), specs)
	if err != nil {
		t.Fatal(err)
	}
	return res
}

var specs = []registers.RegisterSpec{
	{Key: "battery_soc", Address: 0x0100, Description: "Battery SOC", Scale: 1},
	{Key: "battery_voltage", Address: 0x0101, Description: "Battery Voltage", Scale: 0.1},
}

func TestWriteJSON(t *testing.T) {
	res := readResult(t, specs, transporttest.ReadReply(1, 87), transporttest.ReadReply(1, 245))

	var buf bytes.Buffer
	if err := WriteRead(&buf, FormatJSON, specs, res); err != nil {
		t.Fatal(err)
	}
	want := "{\n    \"battery_soc\": 87,\n    \"battery_voltage\": 24.5,\n    \"errors\": []\n}\n"
	if buf.String() != want {
		t.Errorf("got:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestTable(t *testing.T) {
	res := readResult(t, specs, transporttest.ReadReply(1, 87), transporttest.TimeoutReply())

	out := Table(specs, res)
	for _, want := range []string{"KEY", "battery_soc", "0x100", "87", "Battery Voltage", "Error reading Battery Voltage"} {
		if !strings.Contains(out, want) {
			t.Errorf("table is missing %q:\n%s", want, out)
		}
	}
}

func TestWriteRead_UnknownFormat(t *testing.T) {
	if err := WriteRead(&bytes.Buffer{}, "xml", nil, nil); err == nil {
		t.Error("expected error")
	}
}

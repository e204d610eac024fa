// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package exporter

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ffutop/solar-modbus/internal/config"
	"github.com/ffutop/solar-modbus/registers"
	"github.com/ffutop/solar-modbus/transport/transporttest"
)

func TestExporter_Poll(t *testing.T) {
	tr := &transporttest.Transport{Replies: []transporttest.Reply{
		transporttest.ReadReply(1, 87),
		transporttest.TimeoutReply(),
	}}
	reader := &registers.Reader{Opener: tr, SlaveID: 1, Timeout: 50 * time.Millisecond}
	specs := []registers.RegisterSpec{
		{Key: "battery_soc", Address: 0x0100, Description: "Battery SOC", Scale: 1},
		{Key: "battery_voltage", Address: 0x0101, Description: "Battery Voltage", Scale: 0.1},
	}
	e := New(reader, specs, config.ExporterConfig{Listen: ":0", Interval: time.Second})

	if err := e.Poll(context.Background()); err != nil {
		t.Fatal(err)
	}

	m := e.Metrics
	if v := testutil.ToFloat64(m.registerValue.WithLabelValues("battery_soc")); v != 87 {
		t.Errorf("battery_soc = %v", v)
	}
	if n := testutil.CollectAndCount(m.registerValue); n != 1 {
		t.Errorf("%d register series, want 1", n)
	}
	if v := testutil.ToFloat64(m.readErrors); v != 1 {
		t.Errorf("solar_read_errors = %v", v)
	}
	if v := testutil.ToFloat64(m.exchanges.WithLabelValues("0x03", "success")); v != 1 {
		t.Errorf("successful exchanges = %v", v)
	}
	if v := testutil.ToFloat64(m.exchanges.WithLabelValues("0x03", "timeout")); v != 1 {
		t.Errorf("timed out exchanges = %v", v)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.readErrors.Set(2)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "solar_read_errors 2") {
		t.Errorf("metrics output:\n%s", body)
	}
}

func TestExporter_Run(t *testing.T) {
	tr := &transporttest.Transport{}
	reader := &registers.Reader{Opener: tr, SlaveID: 1, Timeout: 10 * time.Millisecond}
	e := New(reader, registers.DefaultSpecs()[:1], config.ExporterConfig{Listen: "127.0.0.1:0", Interval: 20 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := e.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if tr.Opens() < 2 {
		t.Errorf("polled %d times", tr.Opens())
	}

	bad := New(reader, nil, config.ExporterConfig{})
	if err := bad.Run(context.Background()); err == nil {
		t.Error("zero interval accepted")
	}
}

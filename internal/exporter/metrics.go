// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package exporter

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ffutop/solar-modbus/master"
	"github.com/ffutop/solar-modbus/registers"
)

// Metrics holds the collectors of the exporter in a private registry.
type Metrics struct {
	registry *prometheus.Registry

	registerValue *prometheus.GaugeVec
	readErrors    prometheus.Gauge
	lastPoll      prometheus.Gauge
	exchanges     *prometheus.CounterVec
	latency       *prometheus.HistogramVec
}

// NewMetrics creates and registers the collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		registerValue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "solar_register_value",
			Help: "Scaled value of an inverter register as of the last poll.",
		}, []string{"key"}),
		readErrors: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "solar_read_errors",
			Help: "Number of registers that could not be read in the last poll.",
		}),
		lastPoll: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "solar_last_poll_timestamp_seconds",
			Help: "Unix time of the last completed poll.",
		}),
		exchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "modbus_exchanges_total",
			Help: "Modbus exchanges by function code and outcome.",
		}, []string{"function", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "modbus_exchange_duration_seconds",
			Help:    "Duration of Modbus exchanges.",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"function"}),
	}
	m.registry.MustRegister(m.registerValue, m.readErrors, m.lastPoll, m.exchanges, m.latency)
	return m
}

// ObserveExchange implements master.Observer.
func (m *Metrics) ObserveExchange(functionCode byte, outcome master.Outcome, elapsed time.Duration) {
	fc := fmt.Sprintf("0x%02x", functionCode)
	m.exchanges.WithLabelValues(fc, outcome.String()).Inc()
	m.latency.WithLabelValues(fc).Observe(elapsed.Seconds())
}

// Update publishes a poll result. Registers that failed are removed rather
// than left at a stale value.
func (m *Metrics) Update(res *registers.Result) {
	for _, key := range res.Keys() {
		if v, ok := res.Value(key); ok {
			m.registerValue.WithLabelValues(key).Set(v)
		} else {
			m.registerValue.DeleteLabelValues(key)
		}
	}
	m.readErrors.Set(float64(len(res.Errors)))
	m.lastPoll.SetToCurrentTime()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

var _ master.Observer = (*Metrics)(nil)

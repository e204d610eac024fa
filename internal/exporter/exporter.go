// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package exporter polls the inverter periodically and exposes the readings
// as Prometheus metrics.
package exporter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ffutop/solar-modbus/internal/config"
	"github.com/ffutop/solar-modbus/registers"
)

const shutdownTimeout = 5 * time.Second

// Exporter couples a Reader to a metrics endpoint.
type Exporter struct {
	Reader   *registers.Reader
	Specs    []registers.RegisterSpec
	Listen   string
	Interval time.Duration
	Metrics  *Metrics
}

// New returns an Exporter polling specs through reader. The reader's
// exchanges are recorded in the exporter metrics.
func New(reader *registers.Reader, specs []registers.RegisterSpec, cfg config.ExporterConfig) *Exporter {
	metrics := NewMetrics()
	reader.Observer = metrics
	return &Exporter{
		Reader:   reader,
		Specs:    specs,
		Listen:   cfg.Listen,
		Interval: cfg.Interval,
		Metrics:  metrics,
	}
}

// Poll runs one batch read and publishes it.
func (e *Exporter) Poll(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, e.Interval)
	defer cancel()

	res, err := e.Reader.ReadAll(ctx, e.Specs)
	if res != nil {
		e.Metrics.Update(res)
		for _, msg := range res.Errors {
			slog.Warn("register read failed", "err", msg)
		}
	}
	return err
}

// Run serves /metrics and polls every Interval until ctx is done.
func (e *Exporter) Run(ctx context.Context) error {
	if e.Interval <= 0 {
		return fmt.Errorf("exporter: interval %v must be positive", e.Interval)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", e.Metrics.Handler())
	srv := &http.Server{Addr: e.Listen, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Metrics exporter listening", "addr", e.Listen, "interval", e.Interval)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	ticker := time.NewTicker(e.Interval)
	defer ticker.Stop()

	for {
		if err := e.Poll(ctx); err != nil {
			slog.Error("poll failed", "err", err)
		}
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		case err := <-errCh:
			return fmt.Errorf("exporter: %w", err)
		case <-ticker.C:
		}
	}
}

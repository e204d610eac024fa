// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package simulator

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/ffutop/solar-modbus/modbus"
	"github.com/ffutop/solar-modbus/transport"
)

// Device answers for one or more slave addresses on the bus.
type Device struct {
	slave *Slave
	ids   map[byte]bool
}

// NewDevice returns a Device that answers for ids.
func NewDevice(slave *Slave, ids []byte) *Device {
	d := &Device{slave: slave, ids: make(map[byte]bool, len(ids))}
	for _, id := range ids {
		d.ids[id] = true
	}
	return d
}

// Handle is a transport.RequestHandler. Requests for other slaves are left
// unanswered; broadcasts are executed but never answered.
func (d *Device) Handle(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	if slaveID == 0 {
		if pdu.FunctionCode == modbus.FuncCodeWriteSingleRegister {
			if _, err := d.slave.Process(pdu); err != nil {
				slog.Warn("broadcast write failed", "err", err)
			}
		}
		return modbus.ProtocolDataUnit{}, transport.ErrNoResponse
	}
	if !d.ids[slaveID] {
		return modbus.ProtocolDataUnit{}, transport.ErrNoResponse
	}
	return d.slave.Process(pdu)
}

// ParseSlaveIDs parses a string of slave IDs (e.g. "1,2,5-10") into a slice of bytes.
func ParseSlaveIDs(input string) ([]byte, error) {
	var ids []byte
	for _, part := range strings.Split(input, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.Contains(part, "-") {
			ranges := strings.Split(part, "-")
			if len(ranges) != 2 {
				return nil, fmt.Errorf("invalid range: %s", part)
			}
			start, err := parseSlaveID(ranges[0])
			if err != nil {
				return nil, fmt.Errorf("invalid start of range: %w", err)
			}
			end, err := parseSlaveID(ranges[1])
			if err != nil {
				return nil, fmt.Errorf("invalid end of range: %w", err)
			}
			if start > end {
				return nil, fmt.Errorf("start of range %d is greater than end %d", start, end)
			}
			for i := start; i <= end; i++ {
				ids = append(ids, byte(i))
			}
			continue
		}
		id, err := parseSlaveID(part)
		if err != nil {
			return nil, err
		}
		ids = append(ids, byte(id))
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no slave ids in %q", input)
	}
	return ids, nil
}

func parseSlaveID(s string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid id: %w", err)
	}
	if id < 1 || id > 247 {
		return 0, fmt.Errorf("id out of range: %d", id)
	}
	return id, nil
}

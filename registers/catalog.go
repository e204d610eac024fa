// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package registers

// DefaultSpecs returns the monitoring registers polled by default.
func DefaultSpecs() []RegisterSpec {
	return []RegisterSpec{
		{Key: "battery_soc", Address: 0x0100, Description: "Battery SOC", Scale: 1},
		{Key: "battery_voltage", Address: 0x0101, Description: "Battery Voltage", Scale: 0.1},
		{Key: "battery_current", Address: 0x0102, Description: "Battery Current", Scale: 0.1},
		{Key: "device_temperature", Address: 0x0103, Description: "Device Temperature", Scale: 1},
		{Key: "solar_panel_1_voltage", Address: 0x0107, Description: "Solar Panel 1 Voltage", Scale: 0.1},
		{Key: "solar_panel_1_current", Address: 0x0108, Description: "Solar Panel 1 Current", Scale: 0.1},
		{Key: "solar_panel_1_power", Address: 0x0109, Description: "Solar Panel 1 Power", Scale: 1},
		{Key: "total_power_of_solar_panels", Address: 0x010A, Description: "Total Power of Solar Panels", Scale: 1},
		{Key: "total_charging_power", Address: 0x010E, Description: "Total Charging Power", Scale: 1},
		{Key: "solar_panel_2_voltage", Address: 0x010F, Description: "Solar Panel 2 Voltage", Scale: 0.1},
		{Key: "solar_panel_2_current", Address: 0x0110, Description: "Solar Panel 2 Current", Scale: 0.1},
		{Key: "solar_panel_2_power", Address: 0x0111, Description: "Solar Panel 2 Power", Scale: 1},
		{Key: "load_voltage", Address: 0x0112, Description: "Load Voltage", Scale: 0.1},
		{Key: "load_current", Address: 0x0113, Description: "Load Current", Scale: 0.1},
		{Key: "load_power", Address: 0x0114, Description: "Load Power", Scale: 1},
		{Key: "grid_a_phase_voltage", Address: 0x0213, Description: "Grid A Phase Voltage", Scale: 0.1},
		{Key: "grid_a_phase_current", Address: 0x0214, Description: "Grid A Phase Current", Scale: 0.1},
		{Key: "grid_frequency", Address: 0x0215, Description: "Grid Frequency", Scale: 0.01},
		{Key: "inverter_phase_a_voltage", Address: 0x0216, Description: "Inverter Phase A Voltage", Scale: 0.1},
		{Key: "inverter_phase_a_current", Address: 0x0217, Description: "Inverter Phase A Current", Scale: 0.1},
		{Key: "inverter_frequency", Address: 0x0218, Description: "Inverter Frequency", Scale: 0.01},
		{Key: "load_phase_a_current", Address: 0x0219, Description: "Load Phase A Current", Scale: 0.1},
		{Key: "load_phase_a_active_power", Address: 0x021B, Description: "Load Phase A Active Power", Scale: 1},
		{Key: "heat_sink_a_temperature", Address: 0x0220, Description: "Heat Sink A Temperature", Scale: 0.1},
		{Key: "heat_sink_b_temperature", Address: 0x0221, Description: "Heat Sink B Temperature", Scale: 0.1},
		{Key: "heat_sink_c_temperature", Address: 0x0222, Description: "Heat Sink C Temperature", Scale: 0.1},
		{Key: "ambient_temperature", Address: 0x0223, Description: "Ambient Temperature", Scale: 0.1},
		{Key: "pv_charging_current", Address: 0x0224, Description: "PV Charging Current", Scale: 0.1},
		{Key: "discharge_limiting_voltage", Address: 0xE00E, Description: "Discharge Limiting Voltage", Scale: 0.1},
	}
}

// DefaultRegisterMap returns the writable settings of the inverter.
func DefaultRegisterMap() map[string]uint16 {
	return map[string]uint16{
		"pv_max_charging_current":      0xE001,
		"battery_nominal_capacity":     0xE002,
		"battery_type":                 0xE004,
		"overvoltage":                  0xE005,
		"charge_limit_voltage":         0xE006,
		"balanced_charge_voltage":      0xE007,
		"boost_charge_voltage":         0xE008,
		"float_charge_voltage":         0xE009,
		"boost_charge_return_voltage":  0xE00A,
		"undervoltage_warning_voltage": 0xE00C,
		"over_discharge_voltage":       0xE00D,
		"discharge_cutoff_soc":         0xE00F,
		"inverter_switch":              0xDF00,
	}
}

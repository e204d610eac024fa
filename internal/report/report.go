// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package report renders read and write results for the command line.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/ffutop/solar-modbus/registers"
)

// Output formats.
const (
	FormatJSON  = "json"
	FormatTable = "table"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	missStyle   = cellStyle.Foreground(lipgloss.Color("9"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// WriteJSON writes v indented by four spaces, followed by a newline.
func WriteJSON(w io.Writer, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "    "); err != nil {
		return err
	}
	buf.WriteByte('\n')
	_, err = buf.WriteTo(w)
	return err
}

// WriteRead writes a batch read result in format.
func WriteRead(w io.Writer, format string, specs []registers.RegisterSpec, res *registers.Result) error {
	switch format {
	case FormatJSON, "":
		return WriteJSON(w, res)
	case FormatTable:
		_, err := io.WriteString(w, Table(specs, res)+"\n")
		return err
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

// Table renders one row per register followed by the errors, if any.
func Table(specs []registers.RegisterSpec, res *registers.Result) string {
	rows := make([][]string, 0, len(specs))
	missing := make(map[int]bool)
	for i, s := range specs {
		value := "-"
		if v, ok := res.Value(s.Name()); ok {
			value = strconv.FormatFloat(v, 'f', -1, 64)
		} else {
			missing[i] = true
		}
		rows = append(rows, []string{s.Name(), registers.HexAddress(s.Address), s.Description, value})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("KEY", "ADDRESS", "DESCRIPTION", "VALUE").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case missing[row] && col == 3:
				return missStyle
			default:
				return cellStyle
			}
		})

	out := t.String()
	for _, e := range res.Errors {
		out += "\n" + errorStyle.Render(e)
	}
	return out
}

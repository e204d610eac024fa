// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package registers

import (
	"bytes"
	"encoding/json"
)

const errorsKey = "errors"

// Result is the outcome of a batch read: one field per requested register,
// in request order, plus the errors of the registers that could not be read.
// Every register has either a value or exactly one error, never both.
type Result struct {
	keys   []string
	values map[string]*float64
	Errors []string
}

func newResult(n int) *Result {
	return &Result{
		keys:   make([]string, 0, n),
		values: make(map[string]*float64, n),
		Errors: []string{},
	}
}

func (r *Result) set(key string, v float64) {
	r.add(key)
	r.values[key] = &v
}

func (r *Result) fail(key, msg string) {
	r.add(key)
	r.Errors = append(r.Errors, msg)
}

func (r *Result) add(key string) {
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
		r.values[key] = nil
	}
}

// Keys returns the register keys in request order.
func (r *Result) Keys() []string {
	return append([]string(nil), r.keys...)
}

// Value returns the scaled value of key, or false if it was not read.
func (r *Result) Value(key string) (float64, bool) {
	v := r.values[key]
	if v == nil {
		return 0, false
	}
	return *v, true
}

// Values returns the registers that were read.
func (r *Result) Values() map[string]float64 {
	out := make(map[string]float64, len(r.values))
	for k, v := range r.values {
		if v != nil {
			out[k] = *v
		}
	}
	return out
}

// MarshalJSON writes the registers in request order, null for the ones that
// failed, followed by "errors".
func (r *Result) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for _, k := range r.keys {
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
		buf.WriteByte(',')
	}
	errs, err := json.Marshal(r.Errors)
	if err != nil {
		return nil, err
	}
	buf.WriteString(`"errors":`)
	buf.Write(errs)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

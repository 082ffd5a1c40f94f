// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package regmap provides register and bit-field access to AFE devices
// with 8-bit addresses and 24-bit registers.
package regmap // import "github.com/go-lpc/afe/regmap"

import (
	"fmt"
	"sort"
)

// Bus is a register-level transport to a device.
type Bus interface {
	ReadReg(reg uint8) (uint32, error)
	WriteReg(reg uint8, v uint32) error
}

// IOError describes a failed register transaction.
type IOError struct {
	Op  string // "read" or "write"
	Reg uint8
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("regmap: could not %s register 0x%02x: %+v", e.Op, e.Reg, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// RegValue is a register address and the value to write to it.
type RegValue struct {
	Reg uint8
	Val uint32
}

// Option configures a Map.
type Option func(m *Map)

// WithCache enables a write-through register cache.
// Registers for which volatile returns true always go to the bus.
func WithCache(volatile func(reg uint8) bool) Option {
	return func(m *Map) {
		m.cache = make(map[uint8]uint32)
		m.volatile = volatile
		if m.volatile == nil {
			m.volatile = func(uint8) bool { return false }
		}
	}
}

// Map gives register, field and group access to a device.
// Map is not safe for concurrent use.
type Map struct {
	bus Bus
	tbl *Table

	cache    map[uint8]uint32
	volatile func(reg uint8) bool
}

// New returns a register map over bus, using the fields and groups of tbl.
func New(bus Bus, tbl *Table, opts ...Option) *Map {
	m := &Map{bus: bus, tbl: tbl}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Table returns the layout table of the map.
func (m *Map) Table() *Table { return m.tbl }

func (m *Map) cached(reg uint8) bool {
	return m.cache != nil && !m.volatile(reg)
}

// Read reads the value of register reg.
func (m *Map) Read(reg uint8) (uint32, error) {
	if m.cached(reg) {
		if v, ok := m.cache[reg]; ok {
			return v, nil
		}
	}

	v, err := m.bus.ReadReg(reg)
	if err != nil {
		return 0, &IOError{Op: "read", Reg: reg, Err: err}
	}
	v &= 1<<ValBits - 1

	if m.cached(reg) {
		m.cache[reg] = v
	}
	return v, nil
}

// Write writes the low 24 bits of v to register reg.
func (m *Map) Write(reg uint8, v uint32) error {
	v &= 1<<ValBits - 1
	err := m.bus.WriteReg(reg, v)
	if err != nil {
		return &IOError{Op: "write", Reg: reg, Err: err}
	}
	if m.cached(reg) {
		m.cache[reg] = v
	}
	return nil
}

// UpdateBits replaces the bits of register reg selected by mask with
// the corresponding bits of v.
// The register is always written back, even when unchanged.
func (m *Map) UpdateBits(reg uint8, mask, v uint32) error {
	old, err := m.Read(reg)
	if err != nil {
		return err
	}
	return m.Write(reg, old&^mask|v&mask)
}

// MultiWrite writes a sequence of registers in order, stopping at
// the first failure.
func (m *Map) MultiWrite(seq []RegValue) error {
	for _, rv := range seq {
		err := m.Write(rv.Reg, rv.Val)
		if err != nil {
			return err
		}
	}
	return nil
}

// ReadField reads the value of field f.
func (m *Map) ReadField(f Field) (uint32, error) {
	v, err := m.Read(f.Reg)
	if err != nil {
		return 0, err
	}
	return (v & f.Mask()) >> f.Shift, nil
}

// WriteField writes the low bits of v into field f.
func (m *Map) WriteField(f Field, v uint32) error {
	return m.UpdateBits(f.Reg, f.Mask(), v<<f.Shift)
}

// FieldRead reads the field with identifier id.
func (m *Map) FieldRead(id FieldID) (uint32, error) {
	return m.ReadField(m.tbl.fields[id])
}

// FieldWrite writes v into the field with identifier id.
func (m *Map) FieldWrite(id FieldID, v uint32) error {
	return m.WriteField(m.tbl.fields[id], v)
}

// ReadGroup reads the logical value of group id.
func (m *Map) ReadGroup(id GroupID) (uint32, error) {
	return ReadGroup(m, m.tbl, id)
}

// WriteGroup writes the logical value v to group id.
func (m *Map) WriteGroup(id GroupID, v uint32) error {
	return WriteGroup(m, m.tbl, id, v)
}

// Sync writes every cached register back to the device, in address order.
// It is a no-op when the map has no cache.
func (m *Map) Sync() error {
	if m.cache == nil {
		return nil
	}
	regs := make([]int, 0, len(m.cache))
	for reg := range m.cache {
		regs = append(regs, int(reg))
	}
	sort.Ints(regs)

	for _, reg := range regs {
		reg := uint8(reg)
		err := m.bus.WriteReg(reg, m.cache[reg])
		if err != nil {
			return &IOError{Op: "write", Reg: reg, Err: err}
		}
	}
	return nil
}

// Drop discards all cached register values.
func (m *Map) Drop() {
	if m.cache == nil {
		return
	}
	m.cache = make(map[uint8]uint32)
}

var (
	_ FieldReadWriter = (*Map)(nil)
)

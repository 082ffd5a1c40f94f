// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package regmap

import (
	"golang.org/x/xerrors"
)

const (
	// ValBits is the width of a device register.
	ValBits = 24

	// MaxGroupBits is the widest logical value a group may carry.
	MaxGroupBits = 32
)

// FieldID indexes a field in a Table.
// Zero is a valid field identifier.
type FieldID int

// GroupID indexes a group in a Table.
type GroupID int

// NoGroup marks an attribute that a channel does not carry.
const NoGroup GroupID = -1

// Field is a contiguous bit range within a single register.
type Field struct {
	Reg   uint8 // register address
	Shift uint8 // position of the least significant bit
	Width uint8 // number of bits
}

// NewField returns the field spanning bits [lsb, msb] of register reg.
func NewField(reg uint8, lsb, msb uint8) Field {
	return Field{Reg: reg, Shift: lsb, Width: msb - lsb + 1}
}

// Mask returns the in-register mask of the field.
func (f Field) Mask() uint32 {
	return (uint32(1)<<f.Width - 1) << f.Shift
}

func (f Field) valid() bool {
	return f.Width > 0 && int(f.Shift)+int(f.Width) <= ValBits
}

// Group is an ordered list of fields whose concatenation,
// least significant field first, holds one logical value.
type Group []FieldID

// Table holds the static field and group layout of a device.
type Table struct {
	fields []Field
	groups []Group
}

// NewTable creates a layout table from static field and group definitions,
// checking that every group only references existing fields and
// fits in MaxGroupBits.
func NewTable(fields []Field, groups []Group) (*Table, error) {
	for i, f := range fields {
		if !f.valid() {
			return nil, xerrors.Errorf(
				"regmap: invalid field %d (reg=0x%02x, shift=%d, width=%d)",
				i, f.Reg, f.Shift, f.Width,
			)
		}
	}

	for i, grp := range groups {
		if len(grp) == 0 {
			return nil, xerrors.Errorf("regmap: group %d is empty", i)
		}
		width := 0
		for _, id := range grp {
			if id < 0 || int(id) >= len(fields) {
				return nil, xerrors.Errorf("regmap: group %d references unknown field %d", i, id)
			}
			width += int(fields[id].Width)
		}
		if width > MaxGroupBits {
			return nil, xerrors.Errorf("regmap: group %d is %d bits wide (max=%d)", i, width, MaxGroupBits)
		}
	}

	return &Table{fields: fields, groups: groups}, nil
}

// Singletons returns one group per field, in field order.
func Singletons(n int) []Group {
	grps := make([]Group, n)
	for i := range grps {
		grps[i] = Group{FieldID(i)}
	}
	return grps
}

// NumFields returns the number of fields in the table.
func (tbl *Table) NumFields() int { return len(tbl.fields) }

// NumGroups returns the number of groups in the table.
func (tbl *Table) NumGroups() int { return len(tbl.groups) }

// Field returns the field with the provided identifier.
func (tbl *Table) Field(id FieldID) Field { return tbl.fields[id] }

// Group returns the group with the provided identifier.
func (tbl *Table) Group(id GroupID) Group { return tbl.groups[id] }

// HasGroup reports whether id names a group of the table.
func (tbl *Table) HasGroup(id GroupID) bool {
	return id >= 0 && int(id) < len(tbl.groups)
}

// Width returns the total width in bits of a group.
func (tbl *Table) Width(id GroupID) int {
	n := 0
	for _, f := range tbl.groups[id] {
		n += int(tbl.fields[f].Width)
	}
	return n
}

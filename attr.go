// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package afe

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/go-lpc/afe/fifo"
	"github.com/go-lpc/afe/regmap"
	"golang.org/x/xerrors"
)

// Fixed is a fixed-point value with micro-unit resolution.
type Fixed struct {
	Int   int
	Micro int
}

func (v Fixed) String() string {
	return fmt.Sprintf("%d.%06d", v.Int, v.Micro)
}

// ParseFixed parses a non-negative decimal value such as "100000", "0.0025" or
// "1.500000" into a Fixed. Digits beyond the sixth decimal are ignored.
func ParseFixed(s string) (Fixed, error) {
	s = strings.TrimSpace(s)
	ipart, fpart := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		ipart, fpart = s[:i], s[i+1:]
	}
	if (ipart == "" && fpart == "") || strings.HasPrefix(ipart, "-") {
		return Fixed{}, xerrors.Errorf("afe: invalid fixed-point value %q", s)
	}

	var (
		v   Fixed
		err error
	)
	if ipart != "" {
		v.Int, err = strconv.Atoi(ipart)
		if err != nil {
			return Fixed{}, xerrors.Errorf("afe: invalid fixed-point value %q: %w", s, err)
		}
	}

	if len(fpart) > 6 {
		fpart = fpart[:6]
	}
	for i := 0; i < 6; i++ {
		v.Micro *= 10
		if i >= len(fpart) {
			continue
		}
		c := fpart[i]
		if c < '0' || c > '9' {
			return Fixed{}, xerrors.Errorf("afe: invalid fixed-point value %q", s)
		}
		v.Micro += int(c - '0')
	}
	return v, nil
}

type attrKind uint8

const (
	attrRaw      attrKind = iota // plain register value, truncated on write
	attrAverages                 // conversions averaged, stored minus one
	attrTable                    // index into a table of fixed-point values
	attrValue                    // read-only signed 24-bit register
	attrConst                    // read-only constant text
)

// attribute is one named entry of the device configuration surface.
type attribute struct {
	name  string
	kind  attrKind
	group regmap.GroupID // for attrRaw, attrAverages and attrTable
	reg   uint8          // for attrValue
	table []Fixed        // for attrTable
	text  string         // for attrConst
}

func rawAttr(name string, grp regmap.GroupID) attribute {
	return attribute{name: name, kind: attrRaw, group: grp}
}

func averagesAttr(name string, grp regmap.GroupID) attribute {
	return attribute{name: name, kind: attrAverages, group: grp}
}

func tableAttr(name string, grp regmap.GroupID, table []Fixed) attribute {
	return attribute{name: name, kind: attrTable, group: grp, table: table}
}

func valueAttr(name string, reg uint8) attribute {
	return attribute{name: name, kind: attrValue, group: regmap.NoGroup, reg: reg}
}

func constAttr(name, text string) attribute {
	return attribute{name: name, kind: attrConst, group: regmap.NoGroup, text: text}
}

func tableText(table []Fixed) string {
	vs := make([]string, len(table))
	for i, v := range table {
		vs[i] = v.String()
	}
	return strings.Join(vs, " ")
}

const maxAverages = 16

// Attrs returns the sorted names of the device attributes.
func (dev *device) Attrs() []string {
	names := make([]string, len(dev.attrs))
	for i, attr := range dev.attrs {
		names[i] = attr.name
	}
	return names
}

func (dev *device) attr(name string) (attribute, bool) {
	i := sort.Search(len(dev.attrs), func(i int) bool {
		return dev.attrs[i].name >= name
	})
	if i < len(dev.attrs) && dev.attrs[i].name == name {
		return dev.attrs[i], true
	}
	return attribute{}, false
}

// Attr returns the formatted value of the named attribute.
func (dev *device) Attr(name string) (string, error) {
	attr, ok := dev.attr(name)
	if !ok {
		return "", configErrorf(name, "no such attribute")
	}

	switch attr.kind {
	case attrConst:
		return attr.text, nil

	case attrValue:
		v, err := dev.regs.Read(attr.reg)
		if err != nil {
			return "", xerrors.Errorf("afe: could not read %s: %w", name, err)
		}
		return strconv.Itoa(int(fifo.SignExtend(v, 24))), nil
	}

	v, err := dev.regs.ReadGroup(attr.group)
	if err != nil {
		return "", xerrors.Errorf("afe: could not read %s: %w", name, err)
	}

	switch attr.kind {
	case attrAverages:
		return strconv.Itoa(int(v) + 1), nil
	case attrTable:
		if int(v) >= len(attr.table) {
			return "", configErrorf(name, "register value %d not in table", v)
		}
		return attr.table[v].String(), nil
	default:
		return strconv.FormatUint(uint64(v), 10), nil
	}
}

// SetAttr parses value and stores it in the named attribute.
//
// Table attributes only accept values listed in their table and
// averages must be in [1, 16]. Plain numeric attributes keep the low
// bits of the value that fit in their field group.
func (dev *device) SetAttr(name, value string) error {
	attr, ok := dev.attr(name)
	if !ok {
		return configErrorf(name, "no such attribute")
	}
	value = strings.TrimSpace(value)

	var v uint32
	switch attr.kind {
	case attrConst, attrValue:
		return configErrorf(name, "read-only attribute")

	case attrAverages:
		n, err := strconv.ParseInt(value, 0, 32)
		if err != nil || n < 1 || n > maxAverages {
			return configErrorf(name, "invalid number of averages %q (want 1..%d)", value, maxAverages)
		}
		v = uint32(n - 1)

	case attrTable:
		fv, err := ParseFixed(value)
		if err != nil {
			return configErrorf(name, "invalid value %q", value)
		}
		idx := -1
		for i, tv := range attr.table {
			if tv == fv {
				idx = i
				break
			}
		}
		if idx < 0 {
			return configErrorf(name, "value %v not in [%s]", fv, tableText(attr.table))
		}
		v = uint32(idx)

	default:
		n, err := strconv.ParseInt(value, 0, 64)
		if err != nil {
			return configErrorf(name, "invalid integer %q", value)
		}
		v = uint32(n)
	}

	err := dev.regs.WriteGroup(attr.group, v)
	if err != nil {
		return xerrors.Errorf("afe: could not write %s: %w", name, err)
	}
	return nil
}
